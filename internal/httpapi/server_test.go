package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"botforge/internal/pipeline"
	"botforge/pkg/types"
)

type mockService struct {
	status  types.StatusResponse
	ready   bool
	chatErr error
	msgs    []types.BotMessage
}

func (m *mockService) Chat(ctx context.Context, req types.ChatRequest) ([]types.BotMessage, error) {
	if m.chatErr != nil {
		return nil, m.chatErr
	}
	if m.msgs != nil {
		return m.msgs, nil
	}
	return []types.BotMessage{{RecipientID: req.Sender, Text: "echo: " + req.Message}}, nil
}
func (m *mockService) Status() types.StatusResponse { return m.status }
func (m *mockService) Ready() bool                  { return m.ready }

func postChat(t *testing.T, h http.Handler, body string, ct string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/rest/webhook", bytes.NewBufferString(body))
	if ct != "" {
		req.Header.Set("Content-Type", ct)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestRootPageRenders(t *testing.T) {
	r := NewMux(&mockService{ready: true})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.Contains(ct, "text/html") {
		t.Fatalf("content-type=%s", ct)
	}
	if !strings.Contains(w.Body.String(), "/webhooks/rest/webhook") {
		t.Fatal("page must post to the rest webhook")
	}
}

func TestWebhookOK(t *testing.T) {
	r := NewMux(&mockService{ready: true})
	w := postChat(t, r, `{"sender":"alice","message":"hi"}`, "application/json")
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	var msgs []types.BotMessage
	if err := json.Unmarshal(w.Body.Bytes(), &msgs); err != nil {
		t.Fatalf("json: %v", err)
	}
	if len(msgs) != 1 || msgs[0].RecipientID != "alice" {
		t.Fatalf("msgs=%+v", msgs)
	}
}

func TestWebhookDefaultsSender(t *testing.T) {
	r := NewMux(&mockService{ready: true})
	w := postChat(t, r, `{"message":"hi"}`, "application/json")
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	var msgs []types.BotMessage
	_ = json.Unmarshal(w.Body.Bytes(), &msgs)
	if len(msgs) != 1 || msgs[0].RecipientID != "default" {
		t.Fatalf("msgs=%+v", msgs)
	}
}

func TestWebhookEmptyRepliesIsEmptyArray(t *testing.T) {
	r := NewMux(&mockService{ready: true, msgs: []types.BotMessage{}})
	w := postChat(t, r, `{"sender":"a","message":"unknown"}`, "application/json")
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	if got := strings.TrimSpace(w.Body.String()); got != "[]" {
		t.Fatalf("body=%q", got)
	}
}

func TestWebhookBadJSON(t *testing.T) {
	r := NewMux(&mockService{ready: true})
	w := postChat(t, r, "not-json", "application/json")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status=%d", w.Code)
	}
}

func TestWebhookMissingMessage(t *testing.T) {
	r := NewMux(&mockService{ready: true})
	w := postChat(t, r, `{"sender":"a","message":"  "}`, "application/json")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status=%d", w.Code)
	}
}

func TestWebhookWrongContentType(t *testing.T) {
	r := NewMux(&mockService{ready: true})
	w := postChat(t, r, `{"message":"hi"}`, "text/plain")
	if w.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("status=%d", w.Code)
	}
}

func TestWebhookNotServingMapsTo503(t *testing.T) {
	r := NewMux(&mockService{chatErr: pipeline.ErrNotServing(pipeline.StateAssembling)})
	w := postChat(t, r, `{"message":"hi"}`, "application/json")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d", w.Code)
	}
}

func TestWebhookTooBusyMapsTo429(t *testing.T) {
	r := NewMux(&mockService{chatErr: pipeline.ErrTooBusy()})
	w := postChat(t, r, `{"message":"hi"}`, "application/json")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status=%d", w.Code)
	}
}

func TestStatusHandler(t *testing.T) {
	r := NewMux(&mockService{status: types.StatusResponse{State: "serving", AttemptID: "a1"}})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/status", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	var body types.StatusResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("json: %v", err)
	}
	if body.State != "serving" || body.AttemptID != "a1" {
		t.Fatalf("body=%+v", body)
	}
}

func TestHealthz(t *testing.T) {
	r := NewMux(&mockService{})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
}

func TestReadyz(t *testing.T) {
	r := NewMux(&mockService{ready: true})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
}

func TestReadyzNotServing(t *testing.T) {
	r := NewMux(&mockService{ready: false})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "not serving") {
		t.Fatalf("body=%q", w.Body.String())
	}
}

func TestMetricsEndpoint(t *testing.T) {
	r := NewMux(&mockService{})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
}

func TestVersionEndpoint(t *testing.T) {
	r := NewMux(&mockService{})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/version", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "version") {
		t.Fatalf("body=%q", w.Body.String())
	}
}

func TestWebhookBodyTooLarge(t *testing.T) {
	old := maxBodyBytes
	SetMaxBodyBytes(16)
	defer SetMaxBodyBytes(old)
	r := NewMux(&mockService{ready: true})
	w := postChat(t, r, `{"sender":"alice","message":"this body is larger than sixteen bytes"}`, "application/json")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status=%d", w.Code)
	}
}
