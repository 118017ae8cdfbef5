// Package fedgql provides the federation-router error representation, built
// on top of vektah/gqlparser's gqlerror.Error so that downstream-service and
// planning failures travel in the same shape the wider GraphQL-Go ecosystem
// already expects on the wire.
package fedgql

import (
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"
)

// Error codes used in the "code" extension of emitted GraphQL errors.
const (
	CodeDownstreamServiceError = "DOWNSTREAM_SERVICE_ERROR"
	CodeSubgraphRequestFailure = "SUBGRAPH_REQUEST_FAILURE"
	CodeSubgraphInvalidResp    = "SUBGRAPH_INVALID_RESPONSE"
	CodeSubgraphUnknownEncode  = "SUBGRAPH_UNKNOWN_ENCODING"
	CodeInaccessibleField      = "INACCESSIBLE_FIELD"
	CodeOperationNotFound      = "OPERATION_NOT_FOUND"

	// Request pipeline errors, raised before planning/execution ever runs.
	CodeMissingContentType    = "MISSING_CONTENT_TYPE"
	CodeUnsupportedContentType = "UNSUPPORTED_CONTENT_TYPE"
	CodeMutationNotAllowedOverGet = "MUTATION_NOT_ALLOWED_OVER_HTTP_GET"
	CodeMaxDepthExceeded      = "MAX_DEPTH_EXCEEDED"
	CodeMaxDirectivesExceeded = "MAX_DIRECTIVES_EXCEEDED"
	CodeMaxAliasesExceeded    = "MAX_ALIASES_EXCEEDED"
	CodeTokenLimitExceeded    = "TOKEN_LIMIT_EXCEEDED"
	CodeCSRFPreventionFailed  = "CSRF_PREVENTION_FAILED"
	CodePersistedDocumentsOnly = "PERSISTED_DOCUMENTS_ONLY"
	CodePersistedDocumentNotFound = "PERSISTED_DOCUMENT_NOT_FOUND"
	CodeGatewayTimeout        = "GATEWAY_TIMEOUT"
	CodeIntrospectionDisabled = "INTROSPECTION_DISABLED"
	CodeUnknownFragment       = "UNKNOWN_FRAGMENT"

	// Header rules & JWT (component P).
	CodeJWTMissing = "JWT_MISSING"
	CodeJWTInvalid = "JWT_INVALID"
)

// New builds a gqlerror.Error for a failure at the given response path,
// tagging it with code and, when serviceName is non-empty, the subgraph
// that produced it.
func New(code, message string, path []interface{}, serviceName string) *gqlerror.Error {
	ext := map[string]interface{}{"code": code}
	if serviceName != "" {
		ext["serviceName"] = serviceName
	}

	return &gqlerror.Error{
		Message:    message,
		Path:       toASTPath(path),
		Extensions: ext,
	}
}

// WithExtensions merges additional extension key/value pairs onto err,
// returning err for chaining. Existing keys are not overwritten.
func WithExtensions(err *gqlerror.Error, extra map[string]interface{}) *gqlerror.Error {
	if err.Extensions == nil {
		err.Extensions = make(map[string]interface{}, len(extra))
	}
	for k, v := range extra {
		if _, exists := err.Extensions[k]; !exists {
			err.Extensions[k] = v
		}
	}
	return err
}

// ToResponseFields converts a gqlerror.Error to the plain map shape the
// plan executor's response writer serializes ("message", "path",
// "extensions"), matching the GraphQL-over-HTTP error format.
func ToResponseFields(err *gqlerror.Error) (message string, path []interface{}, extensions map[string]interface{}) {
	return err.Message, fromASTPath(err.Path), err.Extensions
}

func toASTPath(path []interface{}) ast.Path {
	if len(path) == 0 {
		return nil
	}
	out := make(ast.Path, 0, len(path))
	for _, seg := range path {
		switch v := seg.(type) {
		case string:
			out = append(out, ast.PathName(v))
		case int:
			out = append(out, ast.PathIndex(v))
		default:
			out = append(out, ast.PathName(fmtSprint(v)))
		}
	}
	return out
}

func fromASTPath(path ast.Path) []interface{} {
	if len(path) == 0 {
		return nil
	}
	out := make([]interface{}, 0, len(path))
	for _, seg := range path {
		switch v := seg.(type) {
		case ast.PathName:
			out = append(out, string(v))
		case ast.PathIndex:
			out = append(out, int(v))
		}
	}
	return out
}

func fmtSprint(v interface{}) string {
	type stringer interface{ String() string }
	if s, ok := v.(stringer); ok {
		return s.String()
	}
	return ""
}
