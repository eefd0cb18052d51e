package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/disentangle/internal/modules/environment"
	"github.com/aristath/disentangle/internal/modules/policy"
	"github.com/aristath/disentangle/internal/modules/quantum"
	"github.com/aristath/disentangle/internal/modules/rollout"
	"github.com/aristath/disentangle/internal/runstore"
)

type memoryRuns struct {
	mu   sync.Mutex
	runs []rollout.Report
}

func (m *memoryRuns) SaveReport(rep rollout.Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, rep)
	return nil
}

func (m *memoryRuns) ListRuns(limit int) ([]runstore.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []runstore.Run{}
	for _, r := range m.runs {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, runstore.Run{Report: r})
	}
	return out, nil
}

func (m *memoryRuns) GetRun(id string) (*runstore.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.runs {
		if r.ID == id {
			return &runstore.Run{Report: r}, nil
		}
	}
	return nil, nil
}

func (m *memoryRuns) Trajectories(runID string) ([]runstore.StoredTrajectory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.runs {
		if r.ID != runID {
			continue
		}
		out := make([]runstore.StoredTrajectory, len(r.Results))
		for k, res := range r.Results {
			out[k] = runstore.StoredTrajectory{Index: res.Index, Passed: res.Passed, MinFidelity: res.MinFidelity, Trajectory: res.Simulator}
		}
		return out, nil
	}
	return nil, nil
}

func newTestRouter(t *testing.T) (*chi.Mux, *memoryRuns) {
	t.Helper()
	log := zerolog.New(nil).Level(zerolog.Disabled)
	policies := policy.DefaultRegistry(rand.New(rand.NewPCG(1, 2)))
	runs := &memoryRuns{}
	handler := NewHandler(
		NewSessionStore(4, log),
		policies,
		rollout.NewSuite(policies, 2, log),
		runs,
		environment.Config{Qubits: 4, BatchSize: 1, Seed: 7},
		log,
	)
	router := chi.NewRouter()
	handler.RegisterRoutes(router)
	return router, runs
}

type response struct {
	Data     json.RawMessage        `json:"data"`
	Metadata map[string]interface{} `json:"metadata"`
}

func do(t *testing.T, router http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	var resp response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Contains(t, resp.Metadata, "timestamp")
	require.NoError(t, json.Unmarshal(resp.Data, v))
}

type sessionResponse struct {
	SessionID string                 `json:"session_id"`
	Qubits    int                    `json:"qubits"`
	BatchSize int                    `json:"batch_size"`
	MaxSteps  int                    `json:"max_steps"`
	ObsFn     string                 `json:"obs_fn"`
	Result    environment.StepResult `json:"result"`
}

func createSession(t *testing.T, router http.Handler, req interface{}) sessionResponse {
	t.Helper()
	w := do(t, router, http.MethodPost, "/quantum/sessions", req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var s sessionResponse
	decodeData(t, w, &s)
	return s
}

func bellBell() [][2]float64 {
	return encodeState(quantum.Kron(quantum.BellPair(), quantum.BellPair()))
}

func TestHandleCreateSession_Defaults(t *testing.T) {
	router, _ := newTestRouter(t)

	s := createSession(t, router, nil)
	assert.NotEmpty(t, s.SessionID)
	assert.Equal(t, 4, s.Qubits)
	assert.Equal(t, 1, s.BatchSize)
	assert.Equal(t, 10, s.MaxSteps)
	assert.Equal(t, environment.DefaultObsFnName, s.ObsFn)
	require.Len(t, s.Result.Observations, 1)
	assert.Len(t, s.Result.Observations[0], 192)
}

func TestHandleCreateSession_Overrides(t *testing.T) {
	router, _ := newTestRouter(t)

	s := createSession(t, router, CreateSessionRequest{Qubits: 5, BatchSize: 3, ObsFn: environment.ObsRDMReal})
	assert.Equal(t, 5, s.Qubits)
	assert.Equal(t, 3, s.BatchSize)
	assert.Equal(t, 30, s.MaxSteps)
	assert.Len(t, s.Result.Observations, 3)
}

func TestHandleCreateSession_Invalid(t *testing.T) {
	router, _ := newTestRouter(t)

	w := do(t, router, http.MethodPost, "/quantum/sessions", CreateSessionRequest{Qubits: 2})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, router, http.MethodPost, "/quantum/sessions", CreateSessionRequest{ObsFn: "nope"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	req := httptest.NewRequest(http.MethodPost, "/quantum/sessions", bytes.NewBufferString("{"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleCreateSession_BatchTooLarge(t *testing.T) {
	router, _ := newTestRouter(t)

	w := do(t, router, http.MethodPost, "/quantum/sessions", CreateSessionRequest{Qubits: 16, BatchSize: 100000})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, router, http.MethodPost, "/quantum/sessions", CreateSessionRequest{BatchSize: environment.MaxBatchSize + 1})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleCreateSession_ReturnsInitialStates(t *testing.T) {
	router, _ := newTestRouter(t)
	seed := uint64(11)

	s := createSession(t, router, CreateSessionRequest{Seed: &seed})

	env, err := environment.New(environment.Config{Qubits: 4, BatchSize: 1, Seed: seed}, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, env.Snapshot().Observations, s.Result.Observations)
	assert.Equal(t, 0, s.Result.Info[0].Step)
}

func TestHandleCreateSession_Limit(t *testing.T) {
	router, _ := newTestRouter(t)
	for k := 0; k < 4; k++ {
		createSession(t, router, nil)
	}
	w := do(t, router, http.MethodPost, "/quantum/sessions", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestSessionLifecycle_BellBell(t *testing.T) {
	router, _ := newTestRouter(t)
	s := createSession(t, router, nil)
	base := "/quantum/sessions/" + s.SessionID

	w := do(t, router, http.MethodPost, base+"/reset", ResetRequest{States: [][][2]float64{bellBell()}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(t, router, http.MethodPost, base+"/step", StepRequest{Actions: []int{0}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var step struct {
		Result    environment.StepResult `json:"result"`
		Unitaries [][][2]float64         `json:"unitaries"`
	}
	decodeData(t, w, &step)
	assert.Equal(t, []bool{false}, step.Result.Done)
	assert.Equal(t, [2]int{0, 1}, step.Result.Info[0].Pair)
	require.Len(t, step.Unitaries, 1)
	assert.Len(t, step.Unitaries[0], 16)

	w = do(t, router, http.MethodPost, base+"/step", StepRequest{Actions: []int{5}})
	require.Equal(t, http.StatusOK, w.Code)
	decodeData(t, w, &step)
	assert.Equal(t, []bool{true}, step.Result.Done)
	assert.Equal(t, []float64{environment.SuccessReward}, step.Result.Rewards)
}

func TestHandleStep_PolicyPicksActions(t *testing.T) {
	router, _ := newTestRouter(t)
	s := createSession(t, router, nil)
	base := "/quantum/sessions/" + s.SessionID

	w := do(t, router, http.MethodPost, base+"/reset", ResetRequest{States: [][][2]float64{bellBell()}})
	require.Equal(t, http.StatusOK, w.Code)

	var step struct {
		Result environment.StepResult `json:"result"`
	}
	var actions []int
	for k := 0; k < 2; k++ {
		w = do(t, router, http.MethodPost, base+"/step", StepRequest{Policy: policy.Greedy})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		decodeData(t, w, &step)
		actions = append(actions, step.Result.Info[0].Action)
	}
	assert.Equal(t, []int{0, 5}, actions)
	assert.True(t, step.Result.Done[0])
}

func TestHandleStep_Errors(t *testing.T) {
	router, _ := newTestRouter(t)
	s := createSession(t, router, nil)
	base := "/quantum/sessions/" + s.SessionID

	tests := []struct {
		name string
		req  StepRequest
	}{
		{"action out of range", StepRequest{Actions: []int{6}}},
		{"wrong batch length", StepRequest{Actions: []int{0, 1}}},
		{"unknown policy", StepRequest{Policy: "oracle"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, router, http.MethodPost, base+"/step", tt.req)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestHandleReset_InvalidState(t *testing.T) {
	router, _ := newTestRouter(t)
	s := createSession(t, router, nil)

	w := do(t, router, http.MethodPost, "/quantum/sessions/"+s.SessionID+"/reset",
		ResetRequest{States: [][][2]float64{{{1, 0}, {0, 0}}}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleObserve(t *testing.T) {
	router, _ := newTestRouter(t)
	s := createSession(t, router, nil)
	base := "/quantum/sessions/" + s.SessionID

	w := do(t, router, http.MethodGet, base+"/observe", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var obs struct {
		ObsFn         string      `json:"obs_fn"`
		Observations  [][]float64 `json:"observations"`
		Entanglements [][]float64 `json:"entanglements"`
	}
	decodeData(t, w, &obs)
	assert.Equal(t, environment.DefaultObsFnName, obs.ObsFn)
	assert.Len(t, obs.Entanglements[0], 6)

	w = do(t, router, http.MethodGet, base+"/observe?fn="+environment.ObsRDMMeanReal, nil)
	require.Equal(t, http.StatusOK, w.Code)
	decodeData(t, w, &obs)
	size, err := environment.ObservationSize(environment.ObsRDMMeanReal, 4)
	require.NoError(t, err)
	assert.Len(t, obs.Observations[0], size)

	w = do(t, router, http.MethodGet, base+"/observe?fn=unknown", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandlePeek(t *testing.T) {
	router, _ := newTestRouter(t)
	s := createSession(t, router, nil)
	base := "/quantum/sessions/" + s.SessionID

	w := do(t, router, http.MethodPost, base+"/reset", ResetRequest{States: [][][2]float64{bellBell()}})
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, router, http.MethodPost, base+"/peek", PeekRequest{Slot: 0, Action: 0})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var peek struct {
		State         [][2]float64 `json:"state"`
		Entanglements []float64    `json:"entanglements"`
		Disentangled  bool         `json:"disentangled"`
	}
	decodeData(t, w, &peek)
	assert.Len(t, peek.State, 16)
	require.Len(t, peek.Entanglements, 6)
	assert.Less(t, peek.Entanglements[0], quantum.DefaultEntanglementThreshold)
	assert.False(t, peek.Disentangled)

	// Peeking leaves the session untouched.
	w = do(t, router, http.MethodPost, base+"/peek", PeekRequest{Slot: 0, Action: 0})
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, router, http.MethodPost, base+"/peek", PeekRequest{Slot: 1, Action: 0})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = do(t, router, http.MethodPost, base+"/peek", PeekRequest{Slot: 0, Action: 99})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUnknownSession(t *testing.T) {
	router, _ := newTestRouter(t)
	for _, path := range []string{"/reset", "/step", "/peek"} {
		w := do(t, router, http.MethodPost, "/quantum/sessions/missing"+path, nil)
		assert.Equal(t, http.StatusNotFound, w.Code, path)
	}
	w := do(t, router, http.MethodGet, "/quantum/sessions/missing/observe", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleDeleteSession(t *testing.T) {
	router, _ := newTestRouter(t)
	s := createSession(t, router, nil)

	w := do(t, router, http.MethodDelete, "/quantum/sessions/"+s.SessionID, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = do(t, router, http.MethodDelete, "/quantum/sessions/"+s.SessionID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleGetActions(t *testing.T) {
	router, _ := newTestRouter(t)

	w := do(t, router, http.MethodGet, "/quantum/actions?qubits=4", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var data struct {
		NumActions int `json:"num_actions"`
		Actions    []struct {
			Action int    `json:"action"`
			Pair   [2]int `json:"pair"`
		} `json:"actions"`
		Policies []string `json:"policies"`
	}
	decodeData(t, w, &data)
	assert.Equal(t, 6, data.NumActions)
	require.Len(t, data.Actions, 6)
	assert.Equal(t, [2]int{0, 1}, data.Actions[0].Pair)
	assert.Equal(t, [2]int{2, 3}, data.Actions[5].Pair)
	assert.Contains(t, data.Policies, policy.Greedy)

	w = do(t, router, http.MethodGet, "/quantum/actions?qubits=2", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = do(t, router, http.MethodGet, "/quantum/actions?qubits=four", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRuns(t *testing.T) {
	router, runs := newTestRouter(t)

	w := do(t, router, http.MethodGet, "/quantum/runs", nil)
	require.Equal(t, http.StatusOK, w.Code)

	seed := uint64(3)
	w = do(t, router, http.MethodPost, "/quantum/runs/equivalence", EquivalenceRequest{Qubits: 4, Trials: 3, Seed: &seed})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var started struct {
		Run    rollout.Report `json:"run"`
		Passed bool           `json:"passed"`
	}
	decodeData(t, w, &started)
	assert.Equal(t, 3, started.Run.Trials)
	assert.Equal(t, rollout.KindEquivalence, started.Run.Kind)
	require.Len(t, runs.runs, 1)

	w = do(t, router, http.MethodGet, "/quantum/runs?limit=10", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Count int `json:"count"`
	}
	decodeData(t, w, &list)
	assert.Equal(t, 1, list.Count)

	w = do(t, router, http.MethodGet, "/quantum/runs/"+started.Run.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var detail struct {
		Trials []map[string]interface{} `json:"trials"`
	}
	decodeData(t, w, &detail)
	assert.Len(t, detail.Trials, 3)

	w = do(t, router, http.MethodGet, "/quantum/runs/unknown", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = do(t, router, http.MethodGet, "/quantum/runs?limit=-1", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleRunEquivalence_Validation(t *testing.T) {
	router, _ := newTestRouter(t)

	w := do(t, router, http.MethodPost, "/quantum/runs/equivalence", EquivalenceRequest{Trials: MaxRequestTrials + 1})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = do(t, router, http.MethodPost, "/quantum/runs/equivalence", EquivalenceRequest{Qubits: 7, Trials: 1})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, statusFor(ErrSessionNotFound))
	assert.Equal(t, http.StatusBadRequest, statusFor(quantum.ErrInvalidAction))
	assert.Equal(t, http.StatusInternalServerError, statusFor(context.DeadlineExceeded))
}
