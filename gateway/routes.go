package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"strings"

	"github.com/n9te9/federation-router/federation/executor"
	"github.com/n9te9/federation-router/federation/fedgql"
	"github.com/n9te9/federation-router/federation/pipeline"
)

// requestError is a pipeline-param-extraction failure that short-circuits
// before any stage runs: a malformed request the GraphQL-over-HTTP spec
// says must be rejected with a particular HTTP status, not wrapped in a 200
// GraphQL error envelope.
type requestError struct {
	status  int
	code    string
	message string
}

// ServeHTTP dispatches /health, /readiness, and the configured GraphQL
// endpoint (GET for query-string operations and GraphiQL, POST for JSON
// bodies). Anything else is a 404, matching a conventional net/http mux.
func (g *gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/health":
		g.handleHealth(w, r)
		return
	case "/readiness":
		g.handleReadiness(w, r)
		return
	}

	endpoint := g.graphQLEndpoint
	if endpoint == "" {
		endpoint = "/graphql"
	}
	if r.URL.Path != endpoint && r.URL.Path != "/graphql" {
		http.NotFound(w, r)
		return
	}

	switch r.Method {
	case http.MethodGet:
		if wantsHTML(r.Header) {
			g.serveGraphiQL(w, r)
			return
		}
		g.serveGraphQL(w, r, true)
	case http.MethodPost:
		g.serveGraphQL(w, r, false)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (g *gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// handleReadiness reports 200 once a supergraph has been composed, and 500
// otherwise. The router never reloads a supergraph in place (see
// Non-goals), so once ready it stays ready for the process's lifetime.
func (g *gateway) handleReadiness(w http.ResponseWriter, r *http.Request) {
	if !g.ready.Load() {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("not ready"))
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ready"))
}

func wantsHTML(h http.Header) bool {
	return strings.Contains(h.Get("Accept"), "text/html")
}

func (g *gateway) serveGraphiQL(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(graphiqlHTML))
}

// serveGraphQL extracts a graphQLRequest from r (query string for GET, JSON
// body for POST), runs it through the request pipeline, and writes the
// result with content negotiated against the Accept header.
func (g *gateway) serveGraphQL(w http.ResponseWriter, r *http.Request, isGet bool) {
	req, reqErr := extractGraphQLRequest(r, isGet)
	contentType := negotiateContentType(r.Header.Get("Accept"))
	w.Header().Set("Content-Type", contentType)

	if reqErr != nil {
		w.WriteHeader(reqErr.status)
		json.NewEncoder(w).Encode(map[string]any{"errors": singleError(reqErr.message, reqErr.code)})
		return
	}

	ctx := r.Context()
	if g.enableHangOverRequestHeader {
		ctx = executor.SetRequestHeaderToContext(ctx, r.Header)
	}

	exposeQueryPlan := ""
	if g.hiveExposeQueryPlan {
		exposeQueryPlan = r.Header.Get("hive-expose-query-plan")
	}

	pl := pipeline.New(
		g.jwtStage(r.Header),
		g.csrfStage(r.Header, isGet),
		g.persistedDocumentStage(req),
		g.parseStage(req),
		g.introspectionStage(r.Header),
		g.accessibilityStage(),
		g.validateStage(),
		g.getMutationStage(isGet),
		g.planStage(req, exposeQueryPlan),
		g.executeStage(req, exposeQueryPlan),
	)

	bag := pipeline.NewBag()
	shortCircuit, err := pl.Run(ctx, bag)
	if err != nil {
		json.NewEncoder(w).Encode(map[string]any{"errors": singleError(err.Error(), "PLANNER_ERROR")})
		return
	}
	if shortCircuit != nil {
		if shortCircuit.StatusCode != 0 {
			w.WriteHeader(shortCircuit.StatusCode)
		}
		w.Write(shortCircuit.Body)
		return
	}

	resp, _ := bag.Get(bagKeyResp)
	if respMap, ok := resp.(map[string]interface{}); ok {
		if queryPlan, ok := bag.Get(bagKeyQueryPlan); ok {
			extensions, _ := respMap["extensions"].(map[string]interface{})
			if extensions == nil {
				extensions = map[string]interface{}{}
			}
			extensions["queryPlan"] = queryPlan
			respMap["extensions"] = extensions
		}
	}
	json.NewEncoder(w).Encode(resp)
}

// negotiateContentType honors the GraphQL-over-HTTP "application/graphql-
// response+json" media type when the client asked for it; every other
// Accept value (including none) gets the legacy "application/json".
func negotiateContentType(accept string) string {
	if strings.Contains(accept, "application/graphql-response+json") {
		return "application/graphql-response+json"
	}
	return "application/json"
}

// extractGraphQLRequest parses a GET's query-string operation or a POST's
// JSON body into a graphQLRequest, validating Content-Type on POST per the
// GraphQL-over-HTTP spec.
func extractGraphQLRequest(r *http.Request, isGet bool) (*graphQLRequest, *requestError) {
	if isGet {
		return extractGetRequest(r)
	}
	return extractPostRequest(r)
}

func extractGetRequest(r *http.Request) (*graphQLRequest, *requestError) {
	q := r.URL.Query()
	req := &graphQLRequest{
		Query:         q.Get("query"),
		OperationName: q.Get("operationName"),
	}
	if v := q.Get("variables"); v != "" {
		if err := json.Unmarshal([]byte(v), &req.Variables); err != nil {
			return nil, &requestError{status: http.StatusBadRequest, code: "BAD_REQUEST", message: "variables parameter is not valid JSON"}
		}
	}
	if v := q.Get("extensions"); v != "" {
		if err := json.Unmarshal([]byte(v), &req.Extensions); err != nil {
			return nil, &requestError{status: http.StatusBadRequest, code: "BAD_REQUEST", message: "extensions parameter is not valid JSON"}
		}
	}
	return req, nil
}

func extractPostRequest(r *http.Request) (*graphQLRequest, *requestError) {
	contentType := r.Header.Get("Content-Type")
	if contentType == "" {
		return nil, &requestError{status: http.StatusBadRequest, code: fedgql.CodeMissingContentType, message: "missing Content-Type header"}
	}

	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil || (mediaType != "application/json" && mediaType != "application/graphql-response+json") {
		return nil, &requestError{
			status:  http.StatusUnsupportedMediaType,
			code:    fedgql.CodeUnsupportedContentType,
			message: fmt.Sprintf("unsupported Content-Type %q", contentType),
		}
	}

	var req graphQLRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, &requestError{status: http.StatusBadRequest, code: "BAD_REQUEST", message: "invalid JSON body"}
	}
	return &req, nil
}

// csrfStage rejects "simple" requests lacking a required header, matching
// Apollo Server's CSRF-prevention plugin: a GET request carries no body and
// can be triggered cross-origin by an <img>/<link> tag without the browser
// ever sending a preflight, so it's the primary vector this guards.
func (g *gateway) csrfStage(header http.Header, isGet bool) pipeline.StageFunc {
	return pipeline.StageFunc{
		StageName: "csrf",
		Fn: func(ctx context.Context, bag *pipeline.Bag) (*pipeline.Response, error) {
			if !g.csrfPrevention || !isGet {
				return nil, nil
			}
			for _, required := range g.csrfRequiredHeaders {
				if header.Get(required) != "" {
					return nil, nil
				}
			}
			return &pipeline.Response{
				StatusCode: http.StatusForbidden,
				Body: mustJSON(map[string]any{
					"errors": singleError("request is missing a required CSRF-prevention header", fedgql.CodeCSRFPreventionFailed),
				}),
			}, nil
		},
	}
}

// persistedDocumentStage resolves a persisted-document id (sent as
// extensions.persistedQuery.sha256Hash, matching Apollo's Automatic
// Persisted Queries convention, or as extensions.documentId) into its
// stored query text, enforcing
// persistedDocumentsOnly when configured.
func (g *gateway) persistedDocumentStage(req *graphQLRequest) pipeline.StageFunc {
	return pipeline.StageFunc{
		StageName: "persisted-document",
		Fn: func(ctx context.Context, bag *pipeline.Bag) (*pipeline.Response, error) {
			id := persistedDocumentID(req)
			if id == "" {
				if g.persistedDocumentsOnly && req.Query != "" {
					return &pipeline.Response{
						StatusCode: http.StatusBadRequest,
						Body: mustJSON(map[string]any{
							"errors": singleError("this endpoint only accepts persisted documents", fedgql.CodePersistedDocumentsOnly),
						}),
					}, nil
				}
				return nil, nil
			}

			query, ok := g.persistedDocuments[id]
			if !ok {
				return &pipeline.Response{
					StatusCode: http.StatusNotFound,
					Body: mustJSON(map[string]any{
						"errors": singleError(fmt.Sprintf("no persisted document for id %q", id), fedgql.CodePersistedDocumentNotFound),
					}),
				}, nil
			}
			req.Query = query
			return nil, nil
		},
	}
}

// persistedDocumentID extracts the document id from a request's
// extensions: a "documentId" string if present, otherwise the Apollo
// APQ-style persistedQuery.sha256Hash.
func persistedDocumentID(req *graphQLRequest) string {
	if id, ok := req.Extensions["documentId"].(string); ok && id != "" {
		return id
	}
	persisted, ok := req.Extensions["persistedQuery"].(map[string]interface{})
	if !ok {
		return ""
	}
	hash, _ := persisted["sha256Hash"].(string)
	return hash
}

const graphiqlHTML = `<!DOCTYPE html>
<html>
<head>
  <title>GraphiQL</title>
  <style>body { height: 100%; margin: 0; } #graphiql { height: 100vh; }</style>
  <script src="https://unpkg.com/react/umd/react.production.min.js"></script>
  <script src="https://unpkg.com/react-dom/umd/react-dom.production.min.js"></script>
  <link rel="stylesheet" href="https://unpkg.com/graphiql/graphiql.min.css" />
</head>
<body>
  <div id="graphiql">Loading GraphiQL...</div>
  <script src="https://unpkg.com/graphiql/graphiql.min.js" type="application/javascript"></script>
  <script>
    ReactDOM.render(
      React.createElement(GraphiQL, {
        fetcher: GraphiQL.createFetcher({ url: window.location.pathname }),
      }),
      document.getElementById('graphiql'),
    );
  </script>
</body>
</html>
`
