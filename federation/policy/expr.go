// Package policy implements dynamic per-request options (URL override,
// timeout, introspection toggle, HMAC enablement) as compiled closures
// rather than a full expression language, since no VRL-equivalent exists
// in the example corpus this router is grounded on.
package policy

import (
	"fmt"
	"net/http"
	"os"
	"strings"
)

// Input is the context an Expr evaluates against: the inbound HTTP request
// headers, available before the pipeline has parsed a GraphQL operation.
type Input struct {
	Header http.Header
}

// Expr is a compiled policy expression: a function from Input to a string
// result (header value, environment value, or a literal).
type Expr func(Input) (string, error)

// Compile parses a small named-builtin expression language into an Expr.
// Supported forms:
//
//	always:<value>   -- Expr always returns value
//	header:<name>     -- Expr returns http.Header.Get(name)
//	env:<name>        -- Expr returns os.Getenv(name)
//
// An empty expression compiles to an Expr that always returns "".
func Compile(expr string) (Expr, error) {
	if expr == "" {
		return func(Input) (string, error) { return "", nil }, nil
	}

	kind, arg, ok := strings.Cut(expr, ":")
	if !ok {
		return nil, fmt.Errorf("invalid policy expression %q: missing \"kind:arg\" separator", expr)
	}

	switch kind {
	case "always":
		return func(Input) (string, error) { return arg, nil }, nil
	case "header":
		return func(in Input) (string, error) { return in.Header.Get(arg), nil }, nil
	case "env":
		return func(Input) (string, error) { return os.Getenv(arg), nil }, nil
	default:
		return nil, fmt.Errorf("invalid policy expression %q: unknown builtin %q", expr, kind)
	}
}

// Bool compiles expr and wraps it so its result is interpreted as a
// boolean toggle ("true"/"1" are truthy, anything else including empty
// is falsy), for options like the introspection toggle or HMAC enablement.
func Bool(expr string) (func(Input) (bool, error), error) {
	e, err := Compile(expr)
	if err != nil {
		return nil, err
	}
	return func(in Input) (bool, error) {
		v, err := e(in)
		if err != nil {
			return false, err
		}
		return v == "true" || v == "1", nil
	}, nil
}
