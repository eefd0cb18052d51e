package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/aristath/disentangle/internal/modules/environment"
	"github.com/aristath/disentangle/internal/modules/policy"
	"github.com/aristath/disentangle/internal/modules/quantum"
)

// StreamFrame is one step of a streamed rollout.
type StreamFrame struct {
	Step          int       `json:"step"`
	Action        int       `json:"action"`
	Pair          [2]int    `json:"pair"`
	Preswap       bool      `json:"preswap"`
	Postswap      bool      `json:"postswap"`
	Entanglements []float64 `json:"entanglements"`
	Reward        float64   `json:"reward"`
	Done          bool      `json:"done"`
	Truncated     bool      `json:"truncated"`
}

// streamWriteTimeout bounds a single frame write.
const streamWriteTimeout = 5 * time.Second

func queryInt(r *http.Request, key string, def int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q", quantum.ErrUnsupportedConfiguration, key, v)
	}
	return n, nil
}

// HandleStream handles GET /api/quantum/stream?qubits=&policy=&seed=
// It upgrades to a websocket and streams one policy rollout frame by frame.
func (h *Handler) HandleStream(w http.ResponseWriter, r *http.Request) {
	numQubits, err := queryInt(r, "qubits", h.defaults.Qubits)
	if err != nil {
		h.writeError(w, err)
		return
	}
	name := r.URL.Query().Get("policy")
	if name == "" {
		name = h.policy
	}
	p, err := h.policies.Lookup(name, numQubits)
	if err != nil {
		h.writeError(w, err)
		return
	}
	seed, err := queryInt(r, "seed", int(time.Now().UnixNano()&0x7fffffff))
	if err != nil {
		h.writeError(w, err)
		return
	}

	cfg := h.defaults
	cfg.Qubits = numQubits
	cfg.BatchSize = 1
	cfg.MaxSteps = 0
	cfg.Seed = uint64(seed)
	env, err := environment.New(cfg, h.log)
	if err != nil {
		h.writeError(w, err)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to accept websocket")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "stream aborted")

	if err := h.streamRollout(r.Context(), conn, env, p); err != nil {
		if errors.Is(err, context.Canceled) || websocket.CloseStatus(err) != -1 {
			h.log.Debug().Err(err).Msg("Stream client went away")
			return
		}
		h.log.Error().Err(err).Msg("Stream failed")
		conn.Close(websocket.StatusInternalError, "rollout failed")
		return
	}
	conn.Close(websocket.StatusNormalClosure, "")
}

func (h *Handler) streamRollout(ctx context.Context, conn *websocket.Conn, env *environment.Env, p policy.Policy) error {
	res := env.Reset()
	if err := writeFrame(ctx, conn, StreamFrame{
		Step:          0,
		Action:        -1,
		Entanglements: res.Info[0].Entanglements,
		Done:          env.Simulator().Done(0),
	}); err != nil {
		return err
	}

	for !env.Simulator().Done(0) && !res.Truncated[0] {
		a, err := p.SelectAction(env.RDMs(0))
		if err != nil {
			return err
		}
		if res, err = env.Step([]int{a}, false); err != nil {
			return err
		}
		info := res.Info[0]
		frame := StreamFrame{
			Step:          info.Step,
			Action:        info.Action,
			Pair:          info.Pair,
			Preswap:       info.Preswap,
			Postswap:      info.Postswap,
			Entanglements: info.Entanglements,
			Reward:        res.Rewards[0],
			Done:          res.Done[0],
			Truncated:     res.Truncated[0],
		}
		if err := writeFrame(ctx, conn, frame); err != nil {
			return err
		}
	}
	h.log.Debug().
		Int("steps", env.Steps()[0]).
		Bool("done", env.Simulator().Done(0)).
		Msg("Stream rollout finished")
	return nil
}

func writeFrame(ctx context.Context, conn *websocket.Conn, frame StreamFrame) error {
	ctx, cancel := context.WithTimeout(ctx, streamWriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, frame)
}
