package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

func TestHandleStream(t *testing.T) {
	router, _ := newTestRouter(t)
	srv := httptest.NewServer(router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/quantum/stream?qubits=4&seed=11"
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	var frames []StreamFrame
	for {
		var frame StreamFrame
		if err := wsjson.Read(ctx, conn, &frame); err != nil {
			assert.Equal(t, websocket.StatusNormalClosure, websocket.CloseStatus(err))
			break
		}
		frames = append(frames, frame)
	}

	require.NotEmpty(t, frames)
	assert.Equal(t, -1, frames[0].Action)
	assert.Len(t, frames[0].Entanglements, 6)
	last := frames[len(frames)-1]
	assert.True(t, last.Done || last.Truncated)
	assert.LessOrEqual(t, last.Step, 10)
	for k, f := range frames[1:] {
		assert.Equal(t, k+1, f.Step)
	}
}

func TestHandleStream_RejectsBadParameters(t *testing.T) {
	router, _ := newTestRouter(t)

	for _, q := range []string{"qubits=x", "qubits=9", "policy=nope", "seed=abc"} {
		w := do(t, router, http.MethodGet, "/quantum/stream?"+q, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, q)
	}
}
