package main

// Build the Lambda handler binary:
//   GOOS=linux GOARCH=arm64 CGO_ENABLED=0 go build -o bootstrap ./cmd/lambda-http

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"

	"narrate-backend/internal/bootstrap"
	"narrate-backend/internal/shared/config"
	"narrate-backend/internal/shared/server/respond"
	"narrate-backend/internal/shared/telemetry"
)

var (
	initOnce  sync.Once
	initErr   error
	ginLambda *ginadapter.GinLambdaV2
)

func initApp() {
	app, err := bootstrap.Build(config.Load())
	if err != nil {
		initErr = err
		return
	}
	// Without a queue the API would run conversions in-process, which a
	// frozen Lambda cannot finish.
	if app.Queue == nil {
		telemetry.Warn("lambda.http.no_queue", map[string]any{"env": app.Config.Env})
	}
	ginLambda = ginadapter.NewV2(app.Router)
}

func errorResponse(status int, code, message string) events.APIGatewayV2HTTPResponse {
	body, _ := json.Marshal(respond.ErrorResponse{Error: respond.ErrorBody{Code: code, Message: message}})
	return events.APIGatewayV2HTTPResponse{
		StatusCode: status,
		Body:       string(body),
		Headers:    map[string]string{"Content-Type": "application/json"},
	}
}

func handler(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	initOnce.Do(initApp)
	if initErr != nil {
		telemetry.Error("lambda.http.bootstrap_failed", map[string]any{"error": initErr.Error()})
		return errorResponse(http.StatusServiceUnavailable, "bootstrap_failed", "service failed to start"), nil
	}
	return ginLambda.ProxyWithContext(ctx, req)
}

func main() {
	lambda.Start(handler)
}
