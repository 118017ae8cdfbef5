package projection_test

import (
	"testing"

	"github.com/n9te9/federation-router/federation/projection"
	"github.com/n9te9/graphql-parser/ast"
	"github.com/n9te9/graphql-parser/lexer"
	"github.com/n9te9/graphql-parser/parser"
)

func selectionsFor(t *testing.T, query string) []ast.Selection {
	t.Helper()
	l := lexer.New(query)
	p := parser.New(l)
	doc := p.ParseDocument()
	if len(p.Errors()) > 0 {
		t.Fatalf("parse error: %v", p.Errors())
	}
	for _, def := range doc.Definitions {
		if op, ok := def.(*ast.OperationDefinition); ok {
			return op.SelectionSet
		}
	}
	t.Fatal("no operation found")
	return nil
}

// fakeSchema is a minimal projection.Schema for non-nullability and
// possible-type tests that doesn't need a full supergraph.
type fakeSchema struct {
	nonNull       map[string]bool // "Type.field" -> non-null
	fieldType     map[string]string
	possibleTypes map[string]map[string]bool // abstract -> concrete -> true
}

func (s *fakeSchema) IsNonNullField(typeName, fieldName string) bool {
	return s.nonNull[typeName+"."+fieldName]
}

func (s *fakeSchema) FieldTypeName(typeName, fieldName string) string {
	return s.fieldType[typeName+"."+fieldName]
}

func (s *fakeSchema) IsPossibleType(abstractTypeName, concreteTypeName string) bool {
	return s.possibleTypes[abstractTypeName][concreteTypeName]
}

func TestProject_AliasAndDrop(t *testing.T) {
	sels := selectionsFor(t, `{ aliased: name extra }`)
	obj := map[string]interface{}{"name": "Uri", "extra": "dropped-if-not-selected", "other": "unused"}

	got, errs := projection.Project(obj, sels, nil, "Query")
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	m := got.(map[string]interface{})
	if m["aliased"] != "Uri" {
		t.Errorf("aliased = %v, want Uri", m["aliased"])
	}
	if m["extra"] != "dropped-if-not-selected" {
		t.Errorf("extra = %v", m["extra"])
	}
	if _, ok := m["other"]; ok {
		t.Error("unselected field \"other\" should not appear in the projection")
	}
}

func TestProject_TypenameSynthesis(t *testing.T) {
	sels := selectionsFor(t, `{ __typename name }`)
	obj := map[string]interface{}{"__typename": "User", "name": "Uri"}

	got, errs := projection.Project(obj, sels, nil, "Query")
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	m := got.(map[string]interface{})
	if m["__typename"] != "User" {
		t.Errorf("__typename = %v, want User", m["__typename"])
	}
}

func TestProject_InlineFragmentFiltersByTypeCondition(t *testing.T) {
	sels := selectionsFor(t, `{ id ... on Admin { permissions } ... on User { email } }`)
	schema := &fakeSchema{}

	obj := map[string]interface{}{"__typename": "User", "id": "1", "email": "a@example.com", "permissions": []interface{}{"admin"}}
	got, errs := projection.Project(obj, sels, schema, "Query")
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	m := got.(map[string]interface{})
	if m["email"] != "a@example.com" {
		t.Errorf("email = %v, want a@example.com", m["email"])
	}
	if _, ok := m["permissions"]; ok {
		t.Error("Admin fragment should not apply to a User object")
	}
}

func TestProject_InlineFragmentOnInterfaceMatchesMember(t *testing.T) {
	sels := selectionsFor(t, `{ id ... on Node { createdAt } }`)
	schema := &fakeSchema{
		possibleTypes: map[string]map[string]bool{
			"Node": {"User": true},
		},
	}
	obj := map[string]interface{}{"__typename": "User", "id": "1", "createdAt": "2026-01-01"}

	got, errs := projection.Project(obj, sels, schema, "Query")
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	m := got.(map[string]interface{})
	if m["createdAt"] != "2026-01-01" {
		t.Errorf("createdAt = %v, want 2026-01-01 (Node interface fragment should apply to member type User)", m["createdAt"])
	}
}

func TestProject_NonNullViolationPropagatesToNearestNullableAncestor(t *testing.T) {
	sels := selectionsFor(t, `{ product { name } }`)
	schema := &fakeSchema{
		nonNull: map[string]bool{
			"Product.name": true,
		},
		fieldType: map[string]string{
			"Query.product": "Product",
		},
	}
	// product.name resolved null even though schema says non-null.
	obj := map[string]interface{}{"product": map[string]interface{}{"name": nil}}

	got, errs := projection.Project(obj, sels, schema, "Query")
	if len(errs) != 1 {
		t.Fatalf("errs = %v, want exactly one non-null violation", errs)
	}
	if want := []interface{}{"product", "name"}; !pathEqual(errs[0].Path, want) {
		t.Errorf("error path = %v, want %v", errs[0].Path, want)
	}

	m := got.(map[string]interface{})
	if m["product"] != nil {
		t.Errorf("product = %v, want nil (nearest nullable ancestor of the violation)", m["product"])
	}
}

func TestProject_MissingNonNullFieldErrors(t *testing.T) {
	sels := selectionsFor(t, `{ id }`)
	schema := &fakeSchema{
		nonNull: map[string]bool{"Query.id": true},
	}
	obj := map[string]interface{}{}

	_, errs := projection.Project(obj, sels, schema, "Query")
	if len(errs) != 1 {
		t.Fatalf("errs = %v, want exactly one violation for a missing non-null field", errs)
	}
}

func pathEqual(a, b []interface{}) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
