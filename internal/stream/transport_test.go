package stream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"intake-pipeline/backend/internal/status"
	"intake-pipeline/backend/pkg/models"
)

func TestSSEWriter(t *testing.T) {
	rec := httptest.NewRecorder()
	w, err := NewSSEWriter(rec)
	require.NoError(t, err)

	require.NoError(t, w.Send(Event{Name: EventProgress, Data: models.StatusView{CaseID: "J1", Status: models.StatusProcessing, Progress: 40}}))
	require.NoError(t, w.Heartbeat())

	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
	assert.True(t, rec.Flushed)

	body := rec.Body.String()
	assert.Contains(t, body, "event: progress\ndata: {")
	assert.Contains(t, body, `"progress":40`)
	assert.Contains(t, body, "\n\n: heartbeat ")
}

func TestWebSocketStream(t *testing.T) {
	store := status.NewMemoryStore(time.Hour)
	store.Put("J1", models.PipelineStatus{Status: models.StatusProcessing, Progress: 10})
	b := NewBroker(newQuery(store), &NoOpLogger{}, WithPollInterval(2*time.Millisecond), WithCloseGrace(0))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, ctx, cancel, err := UpgradeWebSocket(r.Context(), w, r)
		if err != nil {
			return
		}
		defer cancel()
		defer conn.Close()
		_ = b.Serve(ctx, "J1", conn)
	}))
	defer srv.Close()

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer client.Close()

	var frame struct {
		Event string            `json:"event"`
		Data  models.StatusView `json:"data"`
	}
	require.NoError(t, client.ReadJSON(&frame))
	assert.Equal(t, EventOpen, frame.Event)
	assert.Equal(t, 10, frame.Data.Progress)

	require.NoError(t, store.Update("J1", func(st *models.PipelineStatus) {
		st.Status = models.StatusSuccess
		st.Progress = 100
	}))

	require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, client.ReadJSON(&frame))
	assert.Equal(t, EventComplete, frame.Event)
	assert.Equal(t, models.StatusSuccess, frame.Data.Status)

	_, _, err = client.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure))
}

func TestWebSocketClientCloseCancels(t *testing.T) {
	store := status.NewMemoryStore(time.Hour)
	store.Put("J1", models.PipelineStatus{Status: models.StatusProcessing})
	b := NewBroker(newQuery(store), &NoOpLogger{}, WithPollInterval(2*time.Millisecond))

	served := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, ctx, cancel, err := UpgradeWebSocket(context.Background(), w, r)
		if err != nil {
			return
		}
		defer close(served)
		defer cancel()
		defer conn.Close()
		_ = b.Serve(ctx, "J1", conn)
	}))
	defer srv.Close()

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	var frame map[string]any
	require.NoError(t, client.ReadJSON(&frame))
	client.Close()

	select {
	case <-served:
	case <-time.After(2 * time.Second):
		t.Fatal("subscription outlived the client")
	}
	assert.Zero(t, b.Active())
}
