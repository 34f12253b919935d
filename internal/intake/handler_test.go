package intake

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/symptom-intake/internal/dispatch"
	"github.com/wolfman30/symptom-intake/internal/session"
	"github.com/wolfman30/symptom-intake/internal/triage"
	"github.com/wolfman30/symptom-intake/pkg/logging"
)

func newTestRouter(t *testing.T, svc *Service, opts ...dispatch.Option) (http.Handler, *dispatch.Dispatcher) {
	t.Helper()
	d := dispatch.New(svc, logging.New("error"), opts...)
	h := NewHandler(svc, d, logging.New("error"))
	r := chi.NewRouter()
	r.Post("/v1/sessions", h.Start)
	r.Get("/v1/sessions/{sessionID}", h.Get)
	r.Post("/v1/sessions/{sessionID}/turns", h.Turn)
	return r, d
}

func do(t *testing.T, h http.Handler, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandlerStartAndTurn(t *testing.T) {
	f := newFixture(t)
	router, _ := newTestRouter(t, f.svc)

	rec := do(t, router, http.MethodPost, "/v1/sessions", `{"patientId":"p-1","language":"en"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var started StartResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&started))
	require.NotEmpty(t, started.SessionID)
	assert.Equal(t, "/v1/sessions/"+started.SessionID, rec.Header().Get("Location"))

	rec = do(t, router, http.MethodPost, "/v1/sessions/"+started.SessionID+"/turns", `{"utterance":"I have a headache"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var reply triage.Reply
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&reply))
	assert.Equal(t, triage.ReplyQuestion, reply.Type)
	assert.Equal(t, triage.StepSymptomQuestions, reply.Step)

	rec = do(t, router, http.MethodGet, "/v1/sessions/"+started.SessionID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var view struct {
		Step    triage.Step     `json:"step"`
		Session json.RawMessage `json:"session"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&view))
	assert.Equal(t, triage.StepSymptomQuestions, view.Step)
	assert.Contains(t, string(view.Session), "headache")
}

func TestHandlerStartAcceptsEmptyBody(t *testing.T) {
	f := newFixture(t)
	router, _ := newTestRouter(t, f.svc)
	rec := do(t, router, http.MethodPost, "/v1/sessions", "")
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestHandlerTurnValidation(t *testing.T) {
	f := newFixture(t)
	router, _ := newTestRouter(t, f.svc)

	rec := do(t, router, http.MethodPost, "/v1/sessions/any/turns", `{`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, router, http.MethodPost, "/v1/sessions/any/turns", `{"utterance":"   "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	long, _ := json.Marshal(map[string]string{"utterance": strings.Repeat("x", 2001)})
	rec = do(t, router, http.MethodPost, "/v1/sessions/any/turns", string(long))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, router, http.MethodPost, "/v1/sessions/missing/turns", `{"utterance":"hi"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, router, http.MethodGet, "/v1/sessions/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerCatalogUnavailableReturnsRetryReply(t *testing.T) {
	logger := logging.New("error")
	svc := NewService(triage.NewEngine(brokenCatalog{}, logger), session.NewMemoryStore(), logger)
	router, _ := newTestRouter(t, svc)

	resp, err := svc.Start(context.Background(), StartRequest{})
	require.NoError(t, err)

	rec := do(t, router, http.MethodPost, "/v1/sessions/"+resp.SessionID+"/turns", `{"utterance":"headache"}`)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "5", rec.Header().Get("Retry-After"))
	var body errorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.NotNil(t, body.Reply)
	assert.Equal(t, triage.ReplyError, body.Reply.Type)
}

func TestHandlerAsyncFallsBackToSyncWithoutQueue(t *testing.T) {
	f := newFixture(t)
	router, _ := newTestRouter(t, f.svc)
	resp, err := f.svc.Start(context.Background(), StartRequest{})
	require.NoError(t, err)

	rec := do(t, router, http.MethodPost, "/v1/sessions/"+resp.SessionID+"/turns", `{"utterance":"headache"}`, "Prefer", "respond-async")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandlerAsyncTurnIsQueued(t *testing.T) {
	f := newFixture(t)
	queue := dispatch.NewMemoryQueue(8)
	router, d := newTestRouter(t, f.svc, dispatch.WithQueue(queue), dispatch.WithReceiveWait(1))
	resp, err := f.svc.Start(context.Background(), StartRequest{})
	require.NoError(t, err)

	rec := do(t, router, http.MethodPost, "/v1/sessions/"+resp.SessionID+"/turns", `{"utterance":"I have a headache"}`, "Prefer", "wait=5, respond-async")
	require.Equal(t, http.StatusAccepted, rec.Code)
	var accepted AcceptedResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&accepted))
	assert.NotEmpty(t, accepted.JobID)
	assert.Equal(t, "queued", accepted.Status)

	ctx, cancel := context.WithCancel(context.Background())
	d.Start(ctx)
	defer func() {
		cancel()
		d.Wait()
	}()

	require.Eventually(t, func() bool {
		state, err := f.svc.Get(context.Background(), resp.SessionID)
		return err == nil && state.Step() == triage.StepSymptomQuestions
	}, 2*time.Second, 10*time.Millisecond)
}

func TestPrefersAsync(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	assert.False(t, prefersAsync(req))
	req.Header.Add("Prefer", "return=minimal")
	req.Header.Add("Prefer", "Respond-Async")
	assert.True(t, prefersAsync(req))
}
