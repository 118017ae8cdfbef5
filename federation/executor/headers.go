package executor

import (
	"context"
	"net/http"
)

type requestHeaderKey struct{}

// SetRequestHeaderToContext stashes the incoming client request's headers
// on ctx so later subgraph requests issued during plan execution can
// forward a chosen subset of them (e.g. Authorization) downstream.
func SetRequestHeaderToContext(ctx context.Context, header http.Header) context.Context {
	return context.WithValue(ctx, requestHeaderKey{}, header)
}

// RequestHeaderFromContext retrieves the client request headers stashed by
// SetRequestHeaderToContext, if any were set.
func RequestHeaderFromContext(ctx context.Context) (http.Header, bool) {
	header, ok := ctx.Value(requestHeaderKey{}).(http.Header)
	return header, ok
}

// forwardedRequestHeaders lists the client request headers copied through
// to every subgraph request, when present on the incoming request.
var forwardedRequestHeaders = []string{"Authorization", "X-Request-Id"}

// applyForwardedHeaders copies the allow-listed headers from the client
// request (if stashed on ctx) onto an outgoing subgraph request.
func applyForwardedHeaders(ctx context.Context, req *http.Request) {
	header, ok := RequestHeaderFromContext(ctx)
	if !ok {
		return
	}
	for _, name := range forwardedRequestHeaders {
		if v := header.Get(name); v != "" {
			req.Header.Set(name, v)
		}
	}
}
