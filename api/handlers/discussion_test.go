package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/paneltalk/api"
	"github.com/BaSui01/paneltalk/dialogue"
	"github.com/BaSui01/paneltalk/persona"
	"github.com/BaSui01/paneltalk/session"
	"github.com/BaSui01/paneltalk/types"
)

// =============================================================================
// 🧪 测试辅助
// =============================================================================

type generatorFunc func(ctx context.Context, speaker *types.Speaker, transcript []types.Utterance) (string, error)

func (f generatorFunc) Generate(ctx context.Context, sp *types.Speaker, tr []types.Utterance) (string, error) {
	return f(ctx, sp, tr)
}

// closingFactory 的生成器让每位发言人立即喊停，会话一轮收场。
func closingFactory([]*types.Speaker) dialogue.Generator {
	return generatorFunc(func(_ context.Context, sp *types.Speaker, _ []types.Utterance) (string, error) {
		return "closing thoughts from " + sp.Name + ". TERMINATE", nil
	})
}

func newTestHandler(t *testing.T) (*DiscussionHandler, persona.Store) {
	t.Helper()
	store, err := persona.NewFileStore(filepath.Join(t.TempDir(), "personas.json"), zap.NewNop())
	require.NoError(t, err)
	m := session.NewManager(session.DefaultConfig(), closingFactory, zap.NewNop())
	t.Cleanup(func() { _ = m.Shutdown(context.Background()) })
	return NewDiscussionHandler(m, store, zap.NewNop()), store
}

func postJSON(path, body string) *http.Request {
	r := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	return r
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	return resp
}

// waitForState 轮询会话状态直到终态或超时。
func waitForState(t *testing.T, h *DiscussionHandler, id string) dialogue.State {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		s, err := h.manager.Get(id)
		require.NoError(t, err)
		if s.State().Terminal() {
			return s.State()
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("session did not reach a terminal state")
	return ""
}

// =============================================================================
// 🧪 发起与查询
// =============================================================================

func TestDiscussionHandler_StartDetached(t *testing.T) {
	h, _ := newTestHandler(t)

	body := `{"topic":"urban transport","speakers":[{"name":"Host","role":"moderator"},{"name":"Engineer","role":"participant"}]}`
	w := httptest.NewRecorder()
	h.HandleStart(w, postJSON("/v1/discussions", body))

	require.Equal(t, http.StatusCreated, w.Code)
	resp := decodeEnvelope(t, w)
	require.True(t, resp.Success)

	data, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	id, _ := data["id"].(string)
	require.NotEmpty(t, id)
	assert.Equal(t, "urban transport", data["topic"])

	state := waitForState(t, h, id)
	assert.Equal(t, dialogue.StateCompleted, state)
}

func TestDiscussionHandler_StartRequiresTopic(t *testing.T) {
	h, _ := newTestHandler(t)

	w := httptest.NewRecorder()
	h.HandleStart(w, postJSON("/v1/discussions", `{"speakers":[{"name":"Host","role":"moderator"}]}`))

	require.Equal(t, http.StatusBadRequest, w.Code)
	resp := decodeEnvelope(t, w)
	assert.False(t, resp.Success)
	assert.Equal(t, string(types.ErrInvalidRequest), resp.Error.Code)
}

func TestDiscussionHandler_StartRejectsBadRole(t *testing.T) {
	h, _ := newTestHandler(t)

	body := `{"topic":"t","speakers":[{"name":"Host","role":"boss"},{"name":"E","role":"participant"}]}`
	w := httptest.NewRecorder()
	h.HandleStart(w, postJSON("/v1/discussions", body))

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDiscussionHandler_StartRejectsSmallRoster(t *testing.T) {
	h, _ := newTestHandler(t)

	body := `{"topic":"t","speakers":[{"name":"Host","role":"moderator"}]}`
	w := httptest.NewRecorder()
	h.HandleStart(w, postJSON("/v1/discussions", body))

	require.Equal(t, http.StatusBadRequest, w.Code)
	resp := decodeEnvelope(t, w)
	assert.Equal(t, string(types.ErrRosterTooSmall), resp.Error.Code)
}

func TestDiscussionHandler_StartFallsBackToStore(t *testing.T) {
	h, store := newTestHandler(t)
	require.NoError(t, persona.Seed(context.Background(), store))

	w := httptest.NewRecorder()
	h.HandleStart(w, postJSON("/v1/discussions", `{"topic":"seeded panel"}`))

	require.Equal(t, http.StatusCreated, w.Code)
	resp := decodeEnvelope(t, w)
	data := resp.Data.(map[string]any)
	speakers, ok := data["speakers"].([]any)
	require.True(t, ok)
	assert.Len(t, speakers, len(persona.Defaults()))
}

func TestDiscussionHandler_StartEmptyStore(t *testing.T) {
	h, _ := newTestHandler(t)

	w := httptest.NewRecorder()
	h.HandleStart(w, postJSON("/v1/discussions", `{"topic":"nobody here"}`))

	require.Equal(t, http.StatusBadRequest, w.Code)
	resp := decodeEnvelope(t, w)
	assert.Contains(t, resp.Error.Message, "persona store is empty")
}

func TestDiscussionHandler_GetAndList(t *testing.T) {
	h, _ := newTestHandler(t)

	body := `{"topic":"t","speakers":[{"name":"Host","role":"moderator"},{"name":"Engineer","role":"participant"}]}`
	w := httptest.NewRecorder()
	h.HandleStart(w, postJSON("/v1/discussions", body))
	require.Equal(t, http.StatusCreated, w.Code)
	id := decodeEnvelope(t, w).Data.(map[string]any)["id"].(string)
	waitForState(t, h, id)

	// Get
	r := httptest.NewRequest(http.MethodGet, "/v1/discussions/"+id, nil)
	r.SetPathValue("id", id)
	w = httptest.NewRecorder()
	h.HandleGet(w, r)
	require.Equal(t, http.StatusOK, w.Code)
	data := decodeEnvelope(t, w).Data.(map[string]any)
	assert.Equal(t, id, data["id"])

	// Get 未知 ID
	r = httptest.NewRequest(http.MethodGet, "/v1/discussions/nope", nil)
	r.SetPathValue("id", "nope")
	w = httptest.NewRecorder()
	h.HandleGet(w, r)
	require.Equal(t, http.StatusNotFound, w.Code)

	// List
	w = httptest.NewRecorder()
	h.HandleList(w, httptest.NewRequest(http.MethodGet, "/v1/discussions", nil))
	require.Equal(t, http.StatusOK, w.Code)
	listData := decodeEnvelope(t, w).Data.(map[string]any)
	discussions, ok := listData["discussions"].([]any)
	require.True(t, ok)
	assert.Len(t, discussions, 1)
}

func TestDiscussionHandler_Transcript(t *testing.T) {
	h, _ := newTestHandler(t)

	body := `{"topic":"the topic","speakers":[{"name":"Host","role":"moderator"},{"name":"Engineer","role":"participant"}]}`
	w := httptest.NewRecorder()
	h.HandleStart(w, postJSON("/v1/discussions", body))
	id := decodeEnvelope(t, w).Data.(map[string]any)["id"].(string)
	waitForState(t, h, id)

	r := httptest.NewRequest(http.MethodGet, "/v1/discussions/"+id+"/transcript", nil)
	r.SetPathValue("id", id)
	w = httptest.NewRecorder()
	h.HandleTranscript(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	data := decodeEnvelope(t, w).Data.(map[string]any)
	utterances, ok := data["utterances"].([]any)
	require.True(t, ok)
	require.NotEmpty(t, utterances)

	first := utterances[0].(map[string]any)
	assert.Equal(t, "user", first["speaker"])
	assert.Equal(t, "the topic", first["content"])
	assert.Equal(t, float64(0), first["sequence_number"])
}

func TestDiscussionHandler_Cancel(t *testing.T) {
	store, err := persona.NewFileStore(filepath.Join(t.TempDir(), "personas.json"), zap.NewNop())
	require.NoError(t, err)

	blocking := func([]*types.Speaker) dialogue.Generator {
		return generatorFunc(func(ctx context.Context, _ *types.Speaker, _ []types.Utterance) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		})
	}
	m := session.NewManager(session.DefaultConfig(), blocking, zap.NewNop())
	h := NewDiscussionHandler(m, store, zap.NewNop())

	body := `{"topic":"t","speakers":[{"name":"Host","role":"moderator"},{"name":"Engineer","role":"participant"}]}`
	w := httptest.NewRecorder()
	h.HandleStart(w, postJSON("/v1/discussions", body))
	require.Equal(t, http.StatusCreated, w.Code)
	id := decodeEnvelope(t, w).Data.(map[string]any)["id"].(string)

	r := httptest.NewRequest(http.MethodDelete, "/v1/discussions/"+id, nil)
	r.SetPathValue("id", id)
	w = httptest.NewRecorder()
	h.HandleCancel(w, r)
	require.Equal(t, http.StatusOK, w.Code)

	state := waitForState(t, h, id)
	assert.Equal(t, dialogue.StateFailed, state)

	// 再取消已结束的会话
	r = httptest.NewRequest(http.MethodDelete, "/v1/discussions/"+id, nil)
	r.SetPathValue("id", id)
	w = httptest.NewRecorder()
	h.HandleCancel(w, r)
	require.Equal(t, http.StatusConflict, w.Code)
}

// =============================================================================
// 🧪 SSE 流式
// =============================================================================

func TestDiscussionHandler_Stream(t *testing.T) {
	h, _ := newTestHandler(t)

	body := `{"topic":"streaming","speakers":[{"name":"Host","role":"moderator"},{"name":"Engineer","role":"participant"}]}`
	w := httptest.NewRecorder()
	h.HandleStream(w, postJSON("/v1/discussions/stream", body))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	assert.NotEmpty(t, w.Header().Get("X-Session-ID"))

	var events []api.StreamEvent
	var sawDone bool
	scanner := bufio.NewScanner(w.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		payload := strings.TrimPrefix(line, "data: ")
		if payload == "[DONE]" {
			sawDone = true
			continue
		}
		var ev api.StreamEvent
		require.NoError(t, json.Unmarshal([]byte(payload), &ev))
		events = append(events, ev)
	}

	require.True(t, sawDone, "stream should end with [DONE]")
	require.NotEmpty(t, events)

	last := events[len(events)-1]
	assert.Equal(t, "termination", last.Type)
	require.NotNil(t, last.Termination)
	assert.Equal(t, types.ReasonMarkerReached, last.Termination.Reason)

	for _, ev := range events[:len(events)-1] {
		assert.Equal(t, "turn", ev.Type)
		require.NotNil(t, ev.Turn)
	}
}

func TestDiscussionHandler_StreamRejectsBadContentType(t *testing.T) {
	h, _ := newTestHandler(t)

	r := httptest.NewRequest(http.MethodPost, "/v1/discussions/stream", strings.NewReader(`{"topic":"t"}`))
	r.Header.Set("Content-Type", "text/plain")
	w := httptest.NewRecorder()
	h.HandleStream(w, r)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

// =============================================================================
// 🧪 WebSocket 流式
// =============================================================================

func TestDiscussionHandler_WebSocket(t *testing.T) {
	h, _ := newTestHandler(t)

	srv := httptest.NewServer(http.HandlerFunc(h.HandleWebSocket))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	start := `{"topic":"ws panel","speakers":[{"name":"Host","role":"moderator"},{"name":"Engineer","role":"participant"}]}`
	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte(start)))

	var events []api.StreamEvent
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			break
		}
		var ev api.StreamEvent
		require.NoError(t, json.Unmarshal(data, &ev))
		events = append(events, ev)
		if ev.Type == "termination" {
			break
		}
	}

	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, "termination", last.Type)
	require.NotNil(t, last.Termination)
	assert.Equal(t, types.ReasonMarkerReached, last.Termination.Reason)
}
