// Package normalize implements the operation-normalization pass that runs
// before query planning: fragment spreads are inlined, conditionally
// omitted selections (@skip/@include, evaluated against the request's
// coerced variables) are dropped, redundant aliases are stripped, argument
// and directive lists are sorted into a canonical order, and duplicate
// sibling fields / equal inline fragments are merged.
//
// Variables are available at plan time (federation/planner.Planner.Plan
// already receives them), so @skip/@include are folded here rather than
// carried forward as a runtime Condition node — the same style of
// simplification the planner/executor already make for Sequence/Parallel
// (see DESIGN.md).
package normalize

import (
	"fmt"
	"sort"
	"strings"

	"github.com/n9te9/graphql-parser/ast"
)

// UnknownFragmentError reports a "...FragName" spread whose fragment has no
// definition in the document, alongside the names that were defined so
// callers can offer a "did you mean" suggestion.
type UnknownFragmentError struct {
	FragmentName      string
	KnownFragmentNames []string
}

func (e *UnknownFragmentError) Error() string {
	return fmt.Sprintf("unknown fragment %q", e.FragmentName)
}

// Normalize expands fragment spreads into inline fragments, folds
// @skip/@include against variables, normalizes field shape, and merges
// duplicate siblings, returning a new selection slice. It reports an
// *UnknownFragmentError if a spread names a fragment absent from
// fragmentDefs.
func Normalize(selections []ast.Selection, fragmentDefs map[string]*ast.FragmentDefinition, variables map[string]interface{}) ([]ast.Selection, error) {
	expanded, err := inlineFragmentSpreads(selections, fragmentDefs)
	if err != nil {
		return nil, err
	}
	kept := filterOmitted(expanded, variables)

	out := make([]ast.Selection, 0, len(kept))
	for _, sel := range kept {
		normalized, err := normalizeSelection(sel, fragmentDefs, variables)
		if err != nil {
			return nil, err
		}
		out = append(out, normalized)
	}

	out = mergeDuplicateFields(out)
	return mergeEqualInlineFragments(out), nil
}

// inlineFragmentSpreads replaces every *ast.FragmentSpread with an
// *ast.InlineFragment carrying the fragment definition's type condition,
// directives and selection set.
func inlineFragmentSpreads(selections []ast.Selection, fragmentDefs map[string]*ast.FragmentDefinition) ([]ast.Selection, error) {
	out := make([]ast.Selection, 0, len(selections))
	for _, sel := range selections {
		switch s := sel.(type) {
		case *ast.FragmentSpread:
			name := s.Name.String()
			fragDef, ok := fragmentDefs[name]
			if !ok {
				return nil, &UnknownFragmentError{FragmentName: name, KnownFragmentNames: knownFragmentNames(fragmentDefs)}
			}
			inlined, err := inlineFragmentSpreads(fragDef.SelectionSet, fragmentDefs)
			if err != nil {
				return nil, err
			}
			out = append(out, &ast.InlineFragment{
				TypeCondition: fragDef.TypeCondition,
				Directives:    mergeDirectives(fragDef.Directives, s.Directives),
				SelectionSet:  inlined,
			})
		case *ast.InlineFragment:
			inlined, err := inlineFragmentSpreads(s.SelectionSet, fragmentDefs)
			if err != nil {
				return nil, err
			}
			out = append(out, &ast.InlineFragment{
				TypeCondition: s.TypeCondition,
				Directives:    s.Directives,
				SelectionSet:  inlined,
			})
		default:
			out = append(out, sel)
		}
	}
	return out, nil
}

func knownFragmentNames(fragmentDefs map[string]*ast.FragmentDefinition) []string {
	names := make([]string, 0, len(fragmentDefs))
	for name := range fragmentDefs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func mergeDirectives(a, b []*ast.Directive) []*ast.Directive {
	if len(b) == 0 {
		return a
	}
	out := make([]*ast.Directive, 0, len(a)+len(b))
	out = append(out, a...)
	out = append(out, b...)
	return out
}

// filterOmitted drops selections whose @skip/@include directives evaluate
// to "omit" against variables.
func filterOmitted(selections []ast.Selection, variables map[string]interface{}) []ast.Selection {
	out := make([]ast.Selection, 0, len(selections))
	for _, sel := range selections {
		var directives []*ast.Directive
		switch s := sel.(type) {
		case *ast.Field:
			directives = s.Directives
		case *ast.InlineFragment:
			directives = s.Directives
		}
		if shouldOmit(directives, variables) {
			continue
		}
		out = append(out, sel)
	}
	return out
}

// shouldOmit implements the GraphQL @skip/@include rule: omit if
// @skip(if: true), or if @include(if: false). A variable-driven condition
// whose variable is missing evaluates to false; a non-boolean value
// evaluates to true, matching the plan executor's Condition semantics.
func shouldOmit(directives []*ast.Directive, variables map[string]interface{}) bool {
	skip := false
	include := true
	for _, d := range directives {
		switch d.Name {
		case "skip":
			skip = evalIfArgument(d, variables)
		case "include":
			include = evalIfArgument(d, variables)
		}
	}
	return skip || !include
}

func evalIfArgument(d *ast.Directive, variables map[string]interface{}) bool {
	for _, arg := range d.Arguments {
		if arg.Name.String() != "if" {
			continue
		}
		switch v := arg.Value.(type) {
		case *ast.BooleanValue:
			return v.Value
		case *ast.Variable:
			val, ok := variables[v.Name]
			if !ok {
				return false
			}
			b, ok := val.(bool)
			if !ok {
				return true
			}
			return b
		}
	}
	return false
}

// stripConditionDirectives removes resolved @skip/@include directives,
// since their outcome has already been folded into the selection set.
func stripConditionDirectives(directives []*ast.Directive) []*ast.Directive {
	out := make([]*ast.Directive, 0, len(directives))
	for _, d := range directives {
		if d.Name == "skip" || d.Name == "include" {
			continue
		}
		out = append(out, d)
	}
	return out
}

func normalizeSelection(sel ast.Selection, fragmentDefs map[string]*ast.FragmentDefinition, variables map[string]interface{}) (ast.Selection, error) {
	switch s := sel.(type) {
	case *ast.Field:
		alias := s.Alias
		if alias != nil && alias.String() == s.Name.String() {
			alias = nil
		}

		children := s.SelectionSet
		if len(children) > 0 {
			normalized, err := Normalize(children, fragmentDefs, variables)
			if err != nil {
				return nil, err
			}
			children = normalized
		}

		return &ast.Field{
			Alias:        alias,
			Name:         s.Name,
			Arguments:    sortArguments(s.Arguments),
			Directives:   sortDirectives(stripConditionDirectives(s.Directives)),
			SelectionSet: children,
		}, nil
	case *ast.InlineFragment:
		children := s.SelectionSet
		if len(children) > 0 {
			normalized, err := Normalize(children, fragmentDefs, variables)
			if err != nil {
				return nil, err
			}
			children = normalized
		}
		return &ast.InlineFragment{
			TypeCondition: s.TypeCondition,
			Directives:    sortDirectives(stripConditionDirectives(s.Directives)),
			SelectionSet:  children,
		}, nil
	default:
		return sel, nil
	}
}

func sortArguments(args []*ast.Argument) []*ast.Argument {
	if len(args) < 2 {
		return args
	}
	out := make([]*ast.Argument, len(args))
	copy(out, args)
	sort.Slice(out, func(i, j int) bool { return out[i].Name.String() < out[j].Name.String() })
	return out
}

func sortDirectives(directives []*ast.Directive) []*ast.Directive {
	if len(directives) < 2 {
		return directives
	}
	out := make([]*ast.Directive, len(directives))
	copy(out, directives)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// mergeDuplicateFields merges sibling fields with identical (name, alias,
// arguments, directives) by concatenating their children, then
// re-normalizing the merged children so nested duplicates collapse too.
func mergeDuplicateFields(selections []ast.Selection) []ast.Selection {
	order := make([]string, 0, len(selections))
	byKey := make(map[string]*ast.Field)
	passthrough := make([]ast.Selection, 0)

	for _, sel := range selections {
		field, ok := sel.(*ast.Field)
		if !ok {
			passthrough = append(passthrough, sel)
			continue
		}

		key := fieldSignature(field)
		if existing, ok := byKey[key]; ok {
			existing.SelectionSet = append(existing.SelectionSet, field.SelectionSet...)
			continue
		}

		byKey[key] = field
		order = append(order, key)
	}

	out := make([]ast.Selection, 0, len(order)+len(passthrough))
	for _, key := range order {
		field := byKey[key]
		if len(field.SelectionSet) > 0 {
			field.SelectionSet = mergeDuplicateFields(field.SelectionSet)
		}
		out = append(out, field)
	}
	return append(out, passthrough...)
}

// mergeEqualInlineFragments merges inline fragments that share the same
// (type_condition, directives) signature by concatenating their children.
func mergeEqualInlineFragments(selections []ast.Selection) []ast.Selection {
	order := make([]string, 0, len(selections))
	byKey := make(map[string]*ast.InlineFragment)
	passthrough := make([]ast.Selection, 0)

	for _, sel := range selections {
		frag, ok := sel.(*ast.InlineFragment)
		if !ok {
			passthrough = append(passthrough, sel)
			continue
		}

		key := fragmentSignature(frag)
		if existing, ok := byKey[key]; ok {
			existing.SelectionSet = append(existing.SelectionSet, frag.SelectionSet...)
			continue
		}

		byKey[key] = frag
		order = append(order, key)
	}

	out := make([]ast.Selection, 0, len(order)+len(passthrough))
	for _, key := range order {
		out = append(out, byKey[key])
	}
	return append(out, passthrough...)
}

func fieldSignature(f *ast.Field) string {
	var b strings.Builder
	b.WriteString(f.Name.String())
	b.WriteByte('|')
	if f.Alias != nil {
		b.WriteString(f.Alias.String())
	}
	b.WriteByte('|')
	b.WriteString(argumentsSignature(f.Arguments))
	b.WriteByte('|')
	b.WriteString(directivesSignature(f.Directives))
	return b.String()
}

func fragmentSignature(f *ast.InlineFragment) string {
	var b strings.Builder
	if f.TypeCondition != nil {
		b.WriteString(f.TypeCondition.Name.String())
	}
	b.WriteByte('|')
	b.WriteString(directivesSignature(f.Directives))
	return b.String()
}

func argumentsSignature(args []*ast.Argument) string {
	parts := make([]string, 0, len(args))
	for _, a := range args {
		parts = append(parts, a.Name.String()+"="+a.Value.String())
	}
	sort.Strings(parts)
	return strings.Join(parts, ",")
}

func directivesSignature(directives []*ast.Directive) string {
	parts := make([]string, 0, len(directives))
	for _, d := range directives {
		parts = append(parts, d.Name+"("+argumentsSignature(d.Arguments)+")")
	}
	sort.Strings(parts)
	return strings.Join(parts, ",")
}
