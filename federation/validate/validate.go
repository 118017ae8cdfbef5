// Package validate implements the request pipeline's boundary-enforcement
// stage: depth, directive, alias and token ceilings applied to a parsed
// operation before it reaches the planner, so a pathological client document
// is rejected cheaply instead of walked by the full satisfiability graph.
package validate

import (
	"fmt"

	"github.com/n9te9/graphql-parser/ast"
)

// Limits bounds a single operation. A zero value disables the corresponding
// check.
type Limits struct {
	MaxDepth      int
	MaxDirectives int
	MaxAliases    int
	MaxTokens     int
}

// LimitError is returned by Check when a document exceeds one of Limits;
// Code names the fedgql error code the caller should attach to the
// response.
type LimitError struct {
	Code    string
	Message string
}

func (e *LimitError) Error() string { return e.Message }

// Check walks every selection set in op against limits, in the order depth,
// directives, aliases, tokens, returning the first violation found.
func Check(op *ast.OperationDefinition, limits Limits) error {
	if limits.MaxDepth > 0 {
		if d := depth(op.SelectionSet); d > limits.MaxDepth {
			return &LimitError{Code: "MAX_DEPTH_EXCEEDED", Message: fmt.Sprintf("operation depth %d exceeds the maximum allowed depth of %d", d, limits.MaxDepth)}
		}
	}
	if limits.MaxDirectives > 0 {
		if n := directiveCount(op.SelectionSet); n > limits.MaxDirectives {
			return &LimitError{Code: "MAX_DIRECTIVES_EXCEEDED", Message: fmt.Sprintf("operation uses %d directives, exceeding the maximum of %d", n, limits.MaxDirectives)}
		}
	}
	if limits.MaxAliases > 0 {
		if n := aliasCount(op.SelectionSet); n > limits.MaxAliases {
			return &LimitError{Code: "MAX_ALIASES_EXCEEDED", Message: fmt.Sprintf("operation uses %d aliases, exceeding the maximum of %d", n, limits.MaxAliases)}
		}
	}
	if limits.MaxTokens > 0 {
		if n := tokenCount(op.SelectionSet); n > limits.MaxTokens {
			return &LimitError{Code: "TOKEN_LIMIT_EXCEEDED", Message: fmt.Sprintf("operation has %d tokens, exceeding the maximum of %d", n, limits.MaxTokens)}
		}
	}
	return nil
}

// depth returns the number of nested selection-set levels below selections,
// counting the first level as 1.
func depth(selections []ast.Selection) int {
	if len(selections) == 0 {
		return 0
	}
	max := 0
	for _, sel := range selections {
		var children []ast.Selection
		switch s := sel.(type) {
		case *ast.Field:
			children = s.SelectionSet
		case *ast.InlineFragment:
			children = s.SelectionSet
		case *ast.FragmentSpread:
			continue
		}
		if d := depth(children); d > max {
			max = d
		}
	}
	return max + 1
}

func directiveCount(selections []ast.Selection) int {
	total := 0
	for _, sel := range selections {
		switch s := sel.(type) {
		case *ast.Field:
			total += len(s.Directives) + directiveCount(s.SelectionSet)
		case *ast.InlineFragment:
			total += len(s.Directives) + directiveCount(s.SelectionSet)
		case *ast.FragmentSpread:
			total += len(s.Directives)
		}
	}
	return total
}

func aliasCount(selections []ast.Selection) int {
	total := 0
	for _, sel := range selections {
		switch s := sel.(type) {
		case *ast.Field:
			if s.Alias != nil && s.Alias.String() != "" && s.Alias.String() != s.Name.String() {
				total++
			}
			total += aliasCount(s.SelectionSet)
		case *ast.InlineFragment:
			total += aliasCount(s.SelectionSet)
		}
	}
	return total
}

// tokenCount approximates the lexical token count of selections by walking
// the parsed AST (one token per field/alias/argument/directive/value
// occurrence) rather than re-lexing the source text, so the limit can be
// enforced on a document built by any caller, not only one built from raw
// query text.
func tokenCount(selections []ast.Selection) int {
	total := 0
	for _, sel := range selections {
		switch s := sel.(type) {
		case *ast.Field:
			total++ // field name
			if s.Alias != nil {
				total++
			}
			total += len(s.Arguments) * 2 // name + value, per argument
			total += len(s.Directives)
			total += tokenCount(s.SelectionSet)
		case *ast.InlineFragment:
			total++ // "on"
			total += len(s.Directives)
			total += tokenCount(s.SelectionSet)
		case *ast.FragmentSpread:
			total += 1 + len(s.Directives)
		}
	}
	return total
}
