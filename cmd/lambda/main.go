// Command lambda serves the prediction routes behind an API Gateway HTTP API.
package main

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"go.uber.org/zap"

	"tripsense/app"
	"tripsense/config"
	qhttp "tripsense/http"
	"tripsense/logging"
)

func main() {
	cfg, err := config.Load(config.Path(""))
	if err != nil {
		zap.NewExample().Fatal("failed to load config", zap.Error(err))
	}
	// Lambda captures stderr; a rotating file has nowhere to live.
	cfg.Log.File = ""
	logger, err := logging.New(cfg.Log)
	if err != nil {
		zap.NewExample().Fatal("failed to build logger", zap.Error(err))
	}

	// No websocket hub loop: invocations are short-lived and cannot hold connections.
	a, err := app.Build(context.Background(), cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize", zap.Error(err))
	}

	router := qhttp.NewRouter(a.Server, a.Handler, logger)
	lambda.Start(proxy(router, a.Handler.Wait))
}

// proxy adapts an API Gateway v2 event to the HTTP router. flush runs before
// returning because the sandbox is frozen between invocations.
func proxy(router http.Handler, flush func()) func(context.Context, events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	return func(ctx context.Context, event events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
		body := event.Body
		if event.IsBase64Encoded {
			decoded, err := base64.StdEncoding.DecodeString(event.Body)
			if err != nil {
				return events.APIGatewayV2HTTPResponse{StatusCode: http.StatusBadRequest, Body: "invalid base64 body"}, nil
			}
			body = string(decoded)
		}

		target := event.RawPath
		if event.RawQueryString != "" {
			target += "?" + event.RawQueryString
		}
		req := httptest.NewRequest(event.RequestContext.HTTP.Method, target, strings.NewReader(body))
		req = req.WithContext(ctx)
		for k, v := range event.Headers {
			req.Header.Set(k, v)
		}
		if event.RequestContext.RequestID != "" && req.Header.Get("X-Request-ID") == "" {
			req.Header.Set("X-Request-ID", event.RequestContext.RequestID)
		}

		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		flush()

		headers := make(map[string]string, len(w.Header()))
		for k := range w.Header() {
			headers[k] = w.Header().Get(k)
		}
		return events.APIGatewayV2HTTPResponse{
			StatusCode: w.Code,
			Headers:    headers,
			Body:       w.Body.String(),
		}, nil
	}
}
