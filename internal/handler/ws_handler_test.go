package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stemsi/algoprep-backend/internal/config"
	"github.com/stemsi/algoprep-backend/internal/model"
	ws "github.com/stemsi/algoprep-backend/internal/websocket"
	"github.com/stemsi/algoprep-backend/internal/worker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type wsMessage struct {
	Event     ws.Event        `json:"event"`
	RequestID string          `json:"request_id"`
	Code      string          `json:"code"`
	Data      json.RawMessage `json:"data"`
}

func dialStream(t *testing.T, srv *httptest.Server, sessionID, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/v1/interviews/" + sessionID + "/stream?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readUntil skips messages until one with the given event and request id.
func readUntil(t *testing.T, conn *websocket.Conn, event ws.Event, requestID string) wsMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		var msg wsMessage
		require.NoError(t, conn.ReadJSON(&msg))
		if msg.Event == event && msg.RequestID == requestID {
			return msg
		}
	}
}

func TestInterviewStream_PasteIsQueuedWithSessionClock(t *testing.T) {
	f := newAPIFixture(t)
	view, err := f.sessions.Start(context.Background(), 7, model.StartInterviewRequest{
		QuestionIDs:      f.ids,
		TimeLimitSeconds: 600,
	})
	require.NoError(t, err)

	srv := httptest.NewServer(f.router)
	t.Cleanup(srv.Close)
	conn := dialStream(t, srv, view.Session.ID.String(), f.token(t, 7))

	readUntil(t, conn, ws.EventState, "")

	require.NoError(t, conn.WriteJSON(ws.RequestPayload{Action: ws.ActionPaste, RequestID: "p1", Length: 240}))
	readUntil(t, conn, ws.EventAck, "p1")

	jobs := f.queue.all()
	require.Len(t, jobs, 1)
	assert.Equal(t, config.WorkerKey.PersistPasteEventsQueue, jobs[0].queue)

	var p worker.PastePayload
	require.NoError(t, json.Unmarshal(jobs[0].data, &p))
	assert.Equal(t, t0.Unix(), p.Timestamp)
	assert.Equal(t, view.Session.ID.String(), p.SessionID)
	assert.Equal(t, f.ids[0], p.QuestionID)
	assert.Equal(t, 7, p.UserID)
	assert.Equal(t, 240, p.Length)
}

func TestInterviewStream_RejectsOtherUsersSession(t *testing.T) {
	f := newAPIFixture(t)
	view, err := f.sessions.Start(context.Background(), 7, model.StartInterviewRequest{
		QuestionIDs:      f.ids,
		TimeLimitSeconds: 600,
	})
	require.NoError(t, err)

	srv := httptest.NewServer(f.router)
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/v1/interviews/" + view.Session.ID.String() +
		"/stream?token=" + f.token(t, 8)
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
