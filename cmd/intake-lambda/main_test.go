package main

import (
	"context"
	"encoding/base64"
	"net/http"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/go-chi/chi/v5"
)

func echoRouter() http.Handler {
	r := chi.NewRouter()
	r.Post("/v1/sessions/{id}/turns", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Seen-Prefer", r.Header.Get("Prefer"))
		w.WriteHeader(http.StatusOK)
		buf := make([]byte, 64)
		n, _ := r.Body.Read(buf)
		_, _ = w.Write([]byte(chi.URLParam(r, "id") + ":" + string(buf[:n]) + ":" + r.URL.Query().Get("lang")))
	})
	return r
}

func TestHandleReplaysRequest(t *testing.T) {
	evt := events.APIGatewayV2HTTPRequest{
		RawPath:         "/v1/sessions/abc/turns",
		RawQueryString:  "lang=en",
		Headers:         map[string]string{"content-type": "application/json", "prefer": "respond-async"},
		Body:            base64.StdEncoding.EncodeToString([]byte(`{"utterance":"hi"}`)),
		IsBase64Encoded: true,
	}
	evt.RequestContext.HTTP.Method = "post"

	resp, err := handle(context.Background(), echoRouter(), evt)
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if resp.Body != `abc:{"utterance":"hi"}:en` {
		t.Fatalf("unexpected body %q", resp.Body)
	}
	if resp.Headers["content-type"] != "application/json" || resp.Headers["x-seen-prefer"] != "respond-async" {
		t.Fatalf("unexpected headers %v", resp.Headers)
	}
}

func TestHandleRejectsBadBase64(t *testing.T) {
	evt := events.APIGatewayV2HTTPRequest{RawPath: "/v1/sessions", Body: "%%%", IsBase64Encoded: true}
	evt.RequestContext.HTTP.Method = http.MethodPost
	resp, err := handle(context.Background(), echoRouter(), evt)
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestHandleUnknownRoute(t *testing.T) {
	evt := events.APIGatewayV2HTTPRequest{}
	evt.RequestContext.HTTP.Method = http.MethodGet
	evt.RequestContext.HTTP.Path = "/nope"
	resp, _ := handle(context.Background(), echoRouter(), evt)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}
