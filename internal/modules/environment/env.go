// Package environment wraps the quantum simulator in an episodic
// reset/step/observe interface.
package environment

import (
	"fmt"
	"math/rand/v2"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/disentangle/internal/modules/quantum"
)

// Rewards.
const (
	StepPenalty   = -1.0
	SuccessReward = 0.0
)

// Batch limits. MaxBatchAmplitudes bounds BatchSize * 2^Qubits, 64 MiB of
// state per environment.
const (
	MaxBatchSize       = 1024
	MaxBatchAmplitudes = 1 << 22
)

var defaultMaxSteps = map[int]int{4: 10, 5: 30, 6: 70}

// DefaultMaxSteps returns the step cap for an L-qubit episode.
func DefaultMaxSteps(numQubits int) int {
	if n, ok := defaultMaxSteps[numQubits]; ok {
		return n
	}
	return 2 * numQubits * numQubits
}

// Config configures an Env.
type Config struct {
	Qubits    int
	BatchSize int
	// MaxSteps caps each episode; zero selects DefaultMaxSteps.
	MaxSteps int
	ObsFn    string
	Seed     uint64
	// Tolerances; a zero EntanglementThreshold selects the defaults.
	Tolerances quantum.Tolerances
}

// Validate checks the configuration and fills defaults.
func (c *Config) Validate() error {
	if err := quantum.ValidateQubits(c.Qubits); err != nil {
		return err
	}
	if c.BatchSize == 0 {
		c.BatchSize = 1
	}
	if c.BatchSize < 0 || c.BatchSize > MaxBatchSize {
		return fmt.Errorf("%w: batch size %d (supported 1..%d)", quantum.ErrUnsupportedConfiguration, c.BatchSize, MaxBatchSize)
	}
	if c.BatchSize<<c.Qubits > MaxBatchAmplitudes {
		return fmt.Errorf("%w: batch of %d %d-qubit states exceeds %d amplitudes",
			quantum.ErrUnsupportedConfiguration, c.BatchSize, c.Qubits, MaxBatchAmplitudes)
	}
	if c.MaxSteps == 0 {
		c.MaxSteps = DefaultMaxSteps(c.Qubits)
	}
	if c.MaxSteps < 0 {
		return fmt.Errorf("%w: max steps %d", quantum.ErrUnsupportedConfiguration, c.MaxSteps)
	}
	if c.ObsFn == "" {
		c.ObsFn = DefaultObsFnName
	}
	if _, err := LookupObservation(c.ObsFn); err != nil {
		return err
	}
	if c.Tolerances.EntanglementThreshold == 0 {
		c.Tolerances = quantum.DefaultTolerances()
	}
	return nil
}

// StepInfo carries per-slot diagnostics of a step.
type StepInfo struct {
	EpisodeID     string       `json:"episode_id"`
	Step          int          `json:"step"`
	Action        int          `json:"action"`
	Pair          [2]int       `json:"pair"`
	Preswap       bool         `json:"preswap"`
	Postswap      bool         `json:"postswap"`
	Unitary       quantum.Mat4 `json:"-"`
	Entanglements []float64    `json:"entanglements"`
	// Reset is set when the slot was replaced by a fresh episode after this step.
	Reset bool `json:"reset"`
}

// StepResult is the outcome of Reset or Step for the whole batch.
type StepResult struct {
	Observations [][]float64 `json:"observations"`
	Rewards      []float64   `json:"rewards"`
	Done         []bool      `json:"done"`
	Truncated    []bool      `json:"truncated"`
	Info         []StepInfo  `json:"info"`
}

// Env is a batch of disentangling episodes. It is not safe for concurrent use.
type Env struct {
	cfg      Config
	sim      *quantum.Simulator
	obs      ObservationFunc
	rng      *rand.Rand
	log      zerolog.Logger
	steps    []int
	episodes []string
	finished []bool
}

// New creates an environment. Slots start with random states.
func New(cfg Config, log zerolog.Logger) (*Env, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	sim, err := quantum.NewSimulator(cfg.Qubits, cfg.BatchSize, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create simulator: %w", err)
	}
	sim.SetTolerances(cfg.Tolerances)
	obs, _ := LookupObservation(cfg.ObsFn)

	e := &Env{
		cfg:      cfg,
		sim:      sim,
		obs:      obs,
		rng:      rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x5851f42d4c957f2d)),
		log:      log.With().Str("component", "environment").Logger(),
		steps:    make([]int, cfg.BatchSize),
		episodes: make([]string, cfg.BatchSize),
		finished: make([]bool, cfg.BatchSize),
	}
	e.Reset()
	return e, nil
}

// Config returns the validated configuration.
func (e *Env) Config() Config { return e.cfg }

// Simulator exposes the underlying simulator for introspection.
func (e *Env) Simulator() *quantum.Simulator { return e.sim }

// EpisodeIDs returns the current episode id of every slot.
func (e *Env) EpisodeIDs() []string { return append([]string(nil), e.episodes...) }

// Steps returns the step counter of every slot.
func (e *Env) Steps() []int { return append([]int(nil), e.steps...) }

// Reset starts fresh random episodes in every slot.
func (e *Env) Reset() StepResult {
	e.SetRandomStates()
	return e.snapshot()
}

// Snapshot describes the current states without stepping.
func (e *Env) Snapshot() StepResult { return e.snapshot() }

// ResetWith starts fresh episodes from caller supplied states.
func (e *Env) ResetWith(states [][]complex128) (StepResult, error) {
	if err := e.sim.SetStates(states); err != nil {
		return StepResult{}, err
	}
	for b := range e.steps {
		e.clearSlot(b)
	}
	return e.snapshot(), nil
}

// SetRandomStates draws new random states for every slot. Each slot starts a
// new episode: its step counter restarts at zero and it gets a new episode id.
func (e *Env) SetRandomStates() {
	e.sim.SetRandomStates(e.rng)
	for b := range e.steps {
		e.clearSlot(b)
	}
}

func (e *Env) clearSlot(b int) {
	e.steps[b] = 0
	e.finished[b] = false
	e.episodes[b] = uuid.New().String()
}

func (e *Env) snapshot() StepResult {
	n := e.sim.BatchSize()
	res := StepResult{
		Observations: make([][]float64, n),
		Rewards:      make([]float64, n),
		Done:         make([]bool, n),
		Truncated:    make([]bool, n),
		Info:         make([]StepInfo, n),
	}
	ent := e.sim.Entanglements()
	for b := 0; b < n; b++ {
		res.Observations[b] = e.obs(e.sim.State(b), e.cfg.Qubits)
		res.Info[b] = StepInfo{
			EpisodeID:     e.episodes[b],
			Step:          e.steps[b],
			Action:        -1,
			Pair:          [2]int{-1, -1},
			Unitary:       quantum.Identity4(),
			Entanglements: ent[b],
		}
	}
	return res
}

// Step applies actions[b] to slot b. Slots whose episode already ended are
// left untouched unless autoReset is set, in which case every slot that ends
// on this step is replaced by a fresh random episode. The returned
// observations describe the states after any reset; Info describes the step.
func (e *Env) Step(actions []int, autoReset bool) (StepResult, error) {
	n := e.sim.BatchSize()
	if len(actions) != n {
		return StepResult{}, fmt.Errorf("%w: %d actions for batch of %d", quantum.ErrInvalidAction, len(actions), n)
	}
	as := e.sim.ActionSpace()
	for _, a := range actions {
		if _, _, err := as.Decode(a); err != nil {
			return StepResult{}, err
		}
	}

	res := StepResult{
		Observations: make([][]float64, n),
		Rewards:      make([]float64, n),
		Done:         make([]bool, n),
		Truncated:    make([]bool, n),
		Info:         make([]StepInfo, n),
	}
	for b, a := range actions {
		if e.finished[b] {
			res.Done[b] = e.sim.Done(b)
			res.Truncated[b] = !res.Done[b]
			res.Info[b] = StepInfo{EpisodeID: e.episodes[b], Step: e.steps[b], Action: -1, Pair: [2]int{-1, -1}}
			continue
		}
		if err := e.sim.ApplySlot(b, a); err != nil {
			return StepResult{}, err
		}
		e.steps[b]++

		done := e.sim.Done(b)
		truncated := !done && e.steps[b] >= e.cfg.MaxSteps
		res.Done[b], res.Truncated[b] = done, truncated
		if done {
			res.Rewards[b] = SuccessReward
		} else {
			res.Rewards[b] = StepPenalty
		}
		res.Info[b] = StepInfo{
			EpisodeID:     e.episodes[b],
			Step:          e.steps[b],
			Action:        a,
			Pair:          e.sim.LastPairs()[b],
			Preswap:       e.sim.Preswaps()[b],
			Postswap:      e.sim.Postswaps()[b],
			Unitary:       e.sim.Unitaries()[b],
			Entanglements: e.sim.Entanglements()[b],
		}

		if done || truncated {
			e.finished[b] = true
			e.log.Debug().
				Str("episode", e.episodes[b]).
				Int("steps", e.steps[b]).
				Bool("done", done).
				Msg("Episode finished")
			if autoReset {
				e.sim.SetRandomState(b, e.rng)
				e.clearSlot(b)
				res.Info[b].Reset = true
			}
		}
	}
	for b := range actions {
		res.Observations[b] = e.obs(e.sim.State(b), e.cfg.Qubits)
	}
	return res, nil
}

// Observe encodes the current states with the named encoding.
func (e *Env) Observe(name string) ([][]float64, error) {
	fn, err := LookupObservation(name)
	if err != nil {
		return nil, err
	}
	out := make([][]float64, e.sim.BatchSize())
	for b := range out {
		out[b] = fn(e.sim.State(b), e.cfg.Qubits)
	}
	return out, nil
}

// PeekAction previews action on slot without committing it.
func (e *Env) PeekAction(slot, action int) (quantum.PeekResult, error) {
	if slot < 0 || slot >= e.sim.BatchSize() {
		return quantum.PeekResult{}, fmt.Errorf("%w: slot %d outside batch of %d", quantum.ErrInvalidState, slot, e.sim.BatchSize())
	}
	i, j, err := e.sim.ActionSpace().Decode(action)
	if err != nil {
		return quantum.PeekResult{}, err
	}
	psi := e.sim.State(slot)
	rho, err := quantum.PairRDM(psi, e.cfg.Qubits, i, j)
	if err != nil {
		return quantum.PeekResult{}, err
	}
	dec, err := quantum.DecideSwaps(e.cfg.Qubits, i, j)
	if err != nil {
		return quantum.PeekResult{}, err
	}
	return quantum.Peek(psi, e.cfg.Qubits, quantum.GateMatrix(quantum.DisentanglingUnitary(rho), dec), i, j)
}

// RDMs returns the pair RDMs of slot b.
func (e *Env) RDMs(b int) []quantum.Mat4 {
	return e.sim.RDMs(b)
}
