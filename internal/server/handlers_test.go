package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moshesimon/OpenWork-sub000/internal/llm"
	"github.com/moshesimon/OpenWork-sub000/internal/store"
	"github.com/moshesimon/OpenWork-sub000/internal/testutil"
	"github.com/moshesimon/OpenWork-sub000/internal/turn"
)

type apiFixture struct {
	s       *store.Store
	user    *store.User
	sender  *store.User
	conv    *store.Conversation
	srcMsg  *store.Message
	handler http.Handler
}

func newAPIFixture(t *testing.T, primary llm.Provider, limiter *RateLimiter) *apiFixture {
	t.Helper()
	s := testutil.NewTestStore(t)
	user := testutil.SeedUser(t, s, "alice", "Alice")
	sender := testutil.SeedUser(t, s, "bob", "Bob")
	conv := testutil.SeedChannel(t, s, "general", "General", user.ID, sender.ID)
	msg := testutil.SeedMessage(t, s, conv.ID, sender.ID, "ping")

	adapter := llm.NewAdapter(primary, nil, "test-model", 8)
	runner := turn.NewRunner(turn.RunnerConfig{Store: s, Adapter: adapter, TurnBudget: 30 * time.Second})
	srv := NewServer(runner, s, limiter)
	return &apiFixture{s: s, user: user, sender: sender, conv: conv, srcMsg: msg, handler: srv.Routes()}
}

func textProvider(text string) *testutil.ToolCallMockProvider {
	return &testutil.ToolCallMockProvider{
		Responses: []*llm.Response{{Content: text, FinishReason: "stop"}},
	}
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHandleHealth(t *testing.T) {
	f := newAPIFixture(t, textProvider("ok"), nil)
	rec := doJSON(t, f.handler, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeBody(t, rec)["status"])
}

func TestHandleRunTurn(t *testing.T) {
	f := newAPIFixture(t, textProvider("here you go"), nil)

	rec := doJSON(t, f.handler, http.MethodPost, "/api/turns", map[string]string{
		"user_id": f.user.ID,
		"input":   "what's pending?",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "COMPLETED", body["status"])
	assert.Equal(t, "here you go", body["reply"])
	assert.NotEmpty(t, body["task_id"])
}

func TestHandleRunTurn_Validation(t *testing.T) {
	f := newAPIFixture(t, textProvider("unused"), nil)

	rec := doJSON(t, f.handler, http.MethodPost, "/api/turns", map[string]string{"user_id": f.user.ID})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_request", decodeBody(t, rec)["error"])
}

func TestHandleIngestEvent(t *testing.T) {
	f := newAPIFixture(t, textProvider("handled"), nil)

	payload := map[string]string{
		"user_id":           f.user.ID,
		"source":            string(store.SourceInboundChannelMessage),
		"conversation_id":   f.conv.ID,
		"source_message_id": f.srcMsg.ID,
		"sender_id":         f.sender.ID,
		"body":              f.srcMsg.Body,
	}
	rec := doJSON(t, f.handler, http.MethodPost, "/api/events", payload)
	require.Equal(t, http.StatusAccepted, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["handled"])
	taskID := body["task_id"].(string)
	require.NotEmpty(t, taskID)

	// Redelivery of the same event collapses onto the same task.
	rec = doJSON(t, f.handler, http.MethodPost, "/api/events", payload)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, taskID, decodeBody(t, rec)["task_id"])
}

func TestHandleIngestEvent_RejectsUserCommandSource(t *testing.T) {
	f := newAPIFixture(t, textProvider("unused"), nil)

	rec := doJSON(t, f.handler, http.MethodPost, "/api/events", map[string]string{
		"user_id":         f.user.ID,
		"source":          string(store.SourceUserCommand),
		"conversation_id": f.conv.ID,
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeBody(t, rec)["message"], "system event")
}

func TestHandleTaskView(t *testing.T) {
	f := newAPIFixture(t, textProvider("done"), nil)

	rec := doJSON(t, f.handler, http.MethodPost, "/api/turns", map[string]string{
		"user_id": f.user.ID,
		"input":   "do it",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	taskID := decodeBody(t, rec)["task_id"].(string)

	rec = doJSON(t, f.handler, http.MethodGet, fmt.Sprintf("/api/tasks/%s?user_id=%s", taskID, f.user.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, taskID, body["task_id"])
	assert.Equal(t, "COMPLETED", body["status"])

	// Wrong owner and unknown id are both plain 404s.
	rec = doJSON(t, f.handler, http.MethodGet, fmt.Sprintf("/api/tasks/%s?user_id=%s", taskID, f.sender.ID), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = doJSON(t, f.handler, http.MethodGet, "/api/tasks/nope?user_id="+f.user.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, f.handler, http.MethodGet, "/api/tasks/"+taskID, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleBriefings(t *testing.T) {
	f := newAPIFixture(t, textProvider("unused"), nil)
	require.NoError(t, f.s.InsertBriefing(context.Background(), f.s.DB(), &store.BriefingItem{
		UserID:     f.user.ID,
		Importance: store.ImportanceHigh,
		Summary:    "Deploy is blocked.",
	}))

	rec := doJSON(t, f.handler, http.MethodGet, "/api/briefings?user_id="+f.user.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	items := decodeBody(t, rec)["briefings"].([]interface{})
	require.Len(t, items, 1)
	first := items[0].(map[string]interface{})
	assert.Equal(t, "HIGH", first["importance"])

	rec = doJSON(t, f.handler, http.MethodGet, "/api/briefings", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRateLimit(t *testing.T) {
	f := newAPIFixture(t, textProvider("ok"), NewRateLimiter(0, 2))

	payload := map[string]string{"user_id": f.user.ID, "input": "hi"}
	rec := doJSON(t, f.handler, http.MethodPost, "/api/turns", payload)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = doJSON(t, f.handler, http.MethodPost, "/api/turns", payload)
	require.Equal(t, http.StatusOK, rec.Code)

	// Burst exhausted and zero refill: the third request is rejected.
	rec = doJSON(t, f.handler, http.MethodPost, "/api/turns", payload)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "rate_limited", decodeBody(t, rec)["error"])

	// The health endpoint is outside the limited group.
	rec = doJSON(t, f.handler, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
