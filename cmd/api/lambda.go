package main

import (
	"context"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambdacontext"
	"github.com/awslabs/aws-lambda-go-api-proxy/httpadapter"
)

// lambdaHandler serves API Gateway HTTP API (payload v2) events.
type lambdaHandler func(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error)

// newLambdaHandler bridges API Gateway events to h. The adapter passes the
// raw body bytes through, which the Stripe signature check depends on.
func newLambdaHandler(h http.Handler) lambdaHandler {
	return httpadapter.NewV2(withInvocationRequestID(h)).ProxyWithContext
}

// withInvocationRequestID seeds X-Request-Id from the Lambda invocation so
// logs correlate with CloudWatch. An inbound header wins.
func withInvocationRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Request-Id") == "" {
			if lc, ok := lambdacontext.FromContext(r.Context()); ok && lc.AwsRequestID != "" {
				r.Header.Set("X-Request-Id", lc.AwsRequestID)
			}
		}
		next.ServeHTTP(w, r)
	})
}
