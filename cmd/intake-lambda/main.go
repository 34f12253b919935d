// Command intake-lambda serves the intake API behind an API Gateway HTTP
// API. WebSocket chat and queued turns are not available here.
package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"github.com/wolfman30/symptom-intake/cmd/mainconfig"
	"github.com/wolfman30/symptom-intake/internal/api/router"
	"github.com/wolfman30/symptom-intake/internal/app/bootstrap"
	"github.com/wolfman30/symptom-intake/internal/catalog"
	appconfig "github.com/wolfman30/symptom-intake/internal/config"
	"github.com/wolfman30/symptom-intake/internal/intake"
	"github.com/wolfman30/symptom-intake/pkg/logging"
)

func main() {
	cfg := appconfig.Load()
	cfg.TurnQueueURL = ""
	cfg.UseMemoryQueue = false
	logger := logging.New(cfg.LogLevel)

	ctx := context.Background()
	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		panic(err)
	}
	rt, err := bootstrap.BuildRuntime(ctx, cfg, awsCfg, nil, logger)
	if err != nil {
		logger.Error("failed to build runtime", "error", err)
		panic(err)
	}

	handler := router.New(&router.Config{
		Logger:             logger,
		IntakeHandler:      intake.NewHandler(rt.Service, rt.Dispatcher, logger),
		CatalogAdmin:       catalog.NewAdminHandler(rt.Catalog, logger),
		AdminAuthSecret:    cfg.AdminJWTSecret,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		ReadinessChecks:    rt.Checks,
	})
	lambda.Start(func(ctx context.Context, evt events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
		return handle(ctx, handler, evt)
	})
}

// handle replays the API Gateway event through the HTTP router.
func handle(ctx context.Context, handler http.Handler, evt events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	body, err := decodeBody(evt)
	if err != nil {
		return events.APIGatewayV2HTTPResponse{StatusCode: http.StatusBadRequest, Body: "invalid body"}, nil
	}

	method := strings.ToUpper(strings.TrimSpace(evt.RequestContext.HTTP.Method))
	path := strings.TrimSpace(evt.RawPath)
	if path == "" {
		path = strings.TrimSpace(evt.RequestContext.HTTP.Path)
	}
	if path == "" {
		path = "/"
	}
	target := "https://lambda.internal" + path
	if qs := strings.TrimSpace(evt.RawQueryString); qs != "" {
		target += "?" + qs
	}

	req, err := http.NewRequestWithContext(ctx, method, target, bytes.NewReader(body))
	if err != nil {
		return events.APIGatewayV2HTTPResponse{StatusCode: http.StatusBadRequest, Body: "invalid request"}, nil
	}
	for k, v := range evt.Headers {
		req.Header.Set(k, v)
	}
	if len(evt.Cookies) > 0 {
		req.Header.Set("Cookie", strings.Join(evt.Cookies, "; "))
	}
	if ip := strings.TrimSpace(evt.RequestContext.HTTP.SourceIP); ip != "" {
		req.RemoteAddr = ip + ":0"
		req.Header.Set("X-Real-IP", ip)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	out := events.APIGatewayV2HTTPResponse{
		StatusCode: rec.Code,
		Body:       rec.Body.String(),
		Headers:    map[string]string{},
	}
	for k, vs := range rec.Header() {
		out.Headers[strings.ToLower(k)] = strings.Join(vs, ",")
	}
	return out, nil
}

func decodeBody(evt events.APIGatewayV2HTTPRequest) ([]byte, error) {
	if !evt.IsBase64Encoded {
		return []byte(evt.Body), nil
	}
	return base64.StdEncoding.DecodeString(evt.Body)
}
