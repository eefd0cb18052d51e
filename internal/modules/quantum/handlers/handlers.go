// Package handlers provides the HTTP API for disentangling sessions and
// validation runs.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/disentangle/internal/modules/environment"
	"github.com/aristath/disentangle/internal/modules/policy"
	"github.com/aristath/disentangle/internal/modules/quantum"
	"github.com/aristath/disentangle/internal/modules/rollout"
	"github.com/aristath/disentangle/internal/runstore"
)

// SuiteRunner runs equivalence suites on request.
type SuiteRunner interface {
	RunEquivalence(ctx context.Context, numQubits, trials int, seed uint64) (rollout.Report, error)
}

// RunStore lists and stores suite reports.
type RunStore interface {
	SaveReport(rep rollout.Report) error
	ListRuns(limit int) ([]runstore.Run, error)
	GetRun(id string) (*runstore.Run, error)
	Trajectories(runID string) ([]runstore.StoredTrajectory, error)
}

// MaxRequestTrials bounds trials of suites started over HTTP.
const MaxRequestTrials = 500

// Handler handles quantum HTTP requests
type Handler struct {
	sessions *SessionStore
	policies *policy.Registry
	suites   SuiteRunner
	runs     RunStore
	defaults environment.Config
	policy   string
	log      zerolog.Logger
}

// NewHandler creates a new quantum handler. defaults fill fields a create
// request leaves out.
func NewHandler(
	sessions *SessionStore,
	policies *policy.Registry,
	suites SuiteRunner,
	runs RunStore,
	defaults environment.Config,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		sessions: sessions,
		policies: policies,
		suites:   suites,
		runs:     runs,
		defaults: defaults,
		policy:   policy.Greedy,
		log:      log.With().Str("handler", "quantum").Logger(),
	}
}

// SetDefaultPolicy sets the policy streams use when none is requested.
func (h *Handler) SetDefaultPolicy(name string) {
	if name != "" {
		h.policy = name
	}
}

// CreateSessionRequest configures a new session. Zero fields take the
// server defaults.
type CreateSessionRequest struct {
	Qubits    int     `json:"qubits"`
	BatchSize int     `json:"batch_size"`
	MaxSteps  int     `json:"max_steps"`
	ObsFn     string  `json:"obs_fn"`
	Seed      *uint64 `json:"seed,omitempty"`
}

// ResetRequest optionally carries explicit initial states, one per slot,
// as lists of [re, im] pairs.
type ResetRequest struct {
	States [][][2]float64 `json:"states,omitempty"`
}

// StepRequest carries one action per slot, or a policy name that picks them.
type StepRequest struct {
	Actions   []int  `json:"actions,omitempty"`
	Policy    string `json:"policy,omitempty"`
	AutoReset bool   `json:"auto_reset"`
}

// PeekRequest previews one action on one slot.
type PeekRequest struct {
	Slot   int `json:"slot"`
	Action int `json:"action"`
}

// EquivalenceRequest starts an equivalence suite.
type EquivalenceRequest struct {
	Qubits int     `json:"qubits"`
	Trials int     `json:"trials"`
	Seed   *uint64 `json:"seed,omitempty"`
}

func encodeState(psi []complex128) [][2]float64 {
	out := make([][2]float64, len(psi))
	for k, c := range psi {
		out[k] = [2]float64{real(c), imag(c)}
	}
	return out
}

func decodeState(v [][2]float64) []complex128 {
	out := make([]complex128, len(v))
	for k, p := range v {
		out[k] = complex(p[0], p[1])
	}
	return out
}

func encodeMat4(m quantum.Mat4) [][2]float64 {
	return encodeState(m[:])
}

func envelope(data interface{}) map[string]interface{} {
	return map[string]interface{}{
		"data": data,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	}
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrTooManySessions):
		return http.StatusTooManyRequests
	case errors.Is(err, quantum.ErrInvalidAction),
		errors.Is(err, quantum.ErrInvalidState),
		errors.Is(err, quantum.ErrUnsupportedConfiguration):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.log.Error().Err(err).Msg("Request failed")
		http.Error(w, "Internal server error", status)
		return
	}
	http.Error(w, err.Error(), status)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if r.ContentLength == 0 {
		return true
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.log.Error().Err(err).Msg("Failed to decode request body")
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*Session, bool) {
	s, err := h.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return nil, false
	}
	return s, true
}

func sessionData(s *Session, env *environment.Env, res environment.StepResult) map[string]interface{} {
	cfg := env.Config()
	return map[string]interface{}{
		"session_id": s.ID,
		"qubits":     cfg.Qubits,
		"batch_size": cfg.BatchSize,
		"max_steps":  cfg.MaxSteps,
		"obs_fn":     cfg.ObsFn,
		"episodes":   env.EpisodeIDs(),
		"result":     res,
	}
}

// HandleCreateSession handles POST /api/quantum/sessions
func (h *Handler) HandleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if !h.decode(w, r, &req) {
		return
	}

	cfg := h.defaults
	if req.Qubits != 0 {
		cfg.Qubits = req.Qubits
		cfg.MaxSteps = 0
	}
	if req.BatchSize != 0 {
		cfg.BatchSize = req.BatchSize
	}
	if req.MaxSteps != 0 {
		cfg.MaxSteps = req.MaxSteps
	}
	if req.ObsFn != "" {
		cfg.ObsFn = req.ObsFn
	}
	if req.Seed != nil {
		cfg.Seed = *req.Seed
	}

	s, err := h.sessions.Create(cfg)
	if err != nil {
		h.writeError(w, err)
		return
	}
	var data map[string]interface{}
	_ = s.Do(func(env *environment.Env) error {
		data = sessionData(s, env, env.Snapshot())
		return nil
	})
	h.writeJSON(w, http.StatusCreated, envelope(data))
}

// HandleDeleteSession handles DELETE /api/quantum/sessions/{id}
func (h *Handler) HandleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Delete(chi.URLParam(r, "id")); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleReset handles POST /api/quantum/sessions/{id}/reset
func (h *Handler) HandleReset(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req ResetRequest
	if !h.decode(w, r, &req) {
		return
	}

	var data map[string]interface{}
	err := s.Do(func(env *environment.Env) error {
		if len(req.States) == 0 {
			data = sessionData(s, env, env.Reset())
			return nil
		}
		states := make([][]complex128, len(req.States))
		for b, v := range req.States {
			states[b] = decodeState(v)
		}
		res, err := env.ResetWith(states)
		if err != nil {
			return err
		}
		data = sessionData(s, env, res)
		return nil
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, envelope(data))
}

// HandleStep handles POST /api/quantum/sessions/{id}/step
func (h *Handler) HandleStep(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req StepRequest
	if !h.decode(w, r, &req) {
		return
	}

	var res environment.StepResult
	err := s.Do(func(env *environment.Env) error {
		actions := req.Actions
		if req.Policy != "" {
			var err error
			if actions, err = h.selectActions(env, req.Policy); err != nil {
				return err
			}
		}
		var err error
		res, err = env.Step(actions, req.AutoReset)
		return err
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	unitaries := make([][][2]float64, len(res.Info))
	for b, info := range res.Info {
		unitaries[b] = encodeMat4(info.Unitary)
	}
	h.writeJSON(w, http.StatusOK, envelope(map[string]interface{}{
		"session_id": s.ID,
		"result":     res,
		"unitaries":  unitaries,
	}))
}

func (h *Handler) selectActions(env *environment.Env, name string) ([]int, error) {
	p, err := h.policies.Lookup(name, env.Config().Qubits)
	if err != nil {
		return nil, err
	}
	actions := make([]int, env.Config().BatchSize)
	for b := range actions {
		if actions[b], err = p.SelectAction(env.RDMs(b)); err != nil {
			return nil, err
		}
	}
	return actions, nil
}

// HandleObserve handles GET /api/quantum/sessions/{id}/observe?fn=
func (h *Handler) HandleObserve(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var (
		name string
		obs  [][]float64
		ent  [][]float64
	)
	err := s.Do(func(env *environment.Env) error {
		name = r.URL.Query().Get("fn")
		if name == "" {
			name = env.Config().ObsFn
		}
		var err error
		obs, err = env.Observe(name)
		ent = env.Simulator().Entanglements()
		return err
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, envelope(map[string]interface{}{
		"session_id":    s.ID,
		"obs_fn":        name,
		"observations":  obs,
		"entanglements": ent,
	}))
}

// HandlePeek handles POST /api/quantum/sessions/{id}/peek
func (h *Handler) HandlePeek(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req PeekRequest
	if !h.decode(w, r, &req) {
		return
	}

	var peek quantum.PeekResult
	err := s.Do(func(env *environment.Env) error {
		var err error
		peek, err = env.PeekAction(req.Slot, req.Action)
		return err
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, envelope(map[string]interface{}{
		"session_id":    s.ID,
		"slot":          req.Slot,
		"action":        req.Action,
		"state":         encodeState(peek.State),
		"entanglements": peek.Entanglements,
		"disentangled":  quantum.IsDisentangled(peek.Entanglements, quantum.DefaultEntanglementThreshold),
	}))
}

// HandleGetActions handles GET /api/quantum/actions?qubits=
func (h *Handler) HandleGetActions(w http.ResponseWriter, r *http.Request) {
	numQubits := h.defaults.Qubits
	if v := r.URL.Query().Get("qubits"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			http.Error(w, "Invalid qubits parameter", http.StatusBadRequest)
			return
		}
		numQubits = n
	}
	as, err := quantum.NewActionSpace(numQubits)
	if err != nil {
		h.writeError(w, err)
		return
	}

	actions := make([]map[string]interface{}, 0, as.NumActions())
	for a, p := range as.Pairs() {
		dec, _ := quantum.DecideSwaps(numQubits, p[0], p[1])
		actions = append(actions, map[string]interface{}{
			"action":   a,
			"pair":     p,
			"preswap":  dec.Preswap,
			"postswap": dec.Postswap,
			"window":   dec.Window,
		})
	}
	h.writeJSON(w, http.StatusOK, envelope(map[string]interface{}{
		"qubits":       numQubits,
		"num_actions":  as.NumActions(),
		"actions":      actions,
		"observations": environment.ObservationNames(),
		"policies":     h.policies.Names(),
	}))
}

// HandleListRuns handles GET /api/quantum/runs?limit=
func (h *Handler) HandleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			http.Error(w, "Invalid limit parameter", http.StatusBadRequest)
			return
		}
		limit = n
	}
	runs, err := h.runs.ListRuns(limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, envelope(map[string]interface{}{
		"runs":  runs,
		"count": len(runs),
	}))
}

// HandleGetRun handles GET /api/quantum/runs/{id}
func (h *Handler) HandleGetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	run, err := h.runs.GetRun(id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if run == nil {
		http.Error(w, "Run not found", http.StatusNotFound)
		return
	}
	trials, err := h.runs.Trajectories(id)
	if err != nil {
		h.writeError(w, err)
		return
	}

	summaries := make([]map[string]interface{}, len(trials))
	for k, tr := range trials {
		summaries[k] = map[string]interface{}{
			"index":        tr.Index,
			"passed":       tr.Passed,
			"min_fidelity": tr.MinFidelity,
			"reason":       tr.Reason,
			"steps":        tr.Trajectory.Steps(),
			"actions":      tr.Trajectory.Actions,
			"done":         tr.Trajectory.Done,
		}
	}
	h.writeJSON(w, http.StatusOK, envelope(map[string]interface{}{
		"run":    run,
		"trials": summaries,
	}))
}

// HandleRunEquivalence handles POST /api/quantum/runs/equivalence
func (h *Handler) HandleRunEquivalence(w http.ResponseWriter, r *http.Request) {
	var req EquivalenceRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Qubits == 0 {
		req.Qubits = h.defaults.Qubits
	}
	if req.Trials == 0 {
		req.Trials = 10
	}
	if req.Trials < 0 || req.Trials > MaxRequestTrials {
		http.Error(w, "Trials must be between 1 and 500", http.StatusBadRequest)
		return
	}
	seed := uint64(time.Now().UnixNano())
	if req.Seed != nil {
		seed = *req.Seed
	}

	report, err := h.suites.RunEquivalence(r.Context(), req.Qubits, req.Trials, seed)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if err := h.runs.SaveReport(report); err != nil {
		h.log.Error().Err(err).Str("run_id", report.ID).Msg("Failed to store report")
	}
	h.writeJSON(w, http.StatusOK, envelope(map[string]interface{}{
		"run":    report,
		"seed":   seed,
		"passed": report.Passed(rollout.MinPassRate),
	}))
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
