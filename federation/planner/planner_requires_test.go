package planner_test

import (
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/n9te9/federation-router/federation/graph"
	"github.com/n9te9/federation-router/federation/planner"
	"github.com/n9te9/graphql-parser/ast"
	"github.com/n9te9/graphql-parser/lexer"
	"github.com/n9te9/graphql-parser/parser"
)

func parseQuery(t *testing.T, query string) *ast.Document {
	t.Helper()
	l := lexer.New(query)
	p := parser.New(l)
	doc := p.ParseDocument()
	if len(p.Errors()) > 0 {
		t.Fatalf("parse error: %v", p.Errors())
	}
	return doc
}

func fieldNames(selections []ast.Selection) []string {
	var names []string
	for _, sel := range selections {
		if f, ok := sel.(*ast.Field); ok {
			names = append(names, f.Name.String())
		}
	}
	sort.Strings(names)
	return names
}

// TestPlanner_RequiresDependencyInjection checks that a field named by a
// downstream subgraph's @requires directive is injected into the owning
// subgraph's root step, even though the client never asked for it, and that
// the requiring step records a DependsOn edge on the owning step.
func TestPlanner_RequiresDependencyInjection(t *testing.T) {
	productSchema := `
		type Product @key(fields: "id") {
			id: ID!
			name: String!
			weight: Float!
		}

		type Query {
			product(id: ID!): Product
		}
	`

	shippingSchema := `
		extend type Product @key(fields: "id") {
			id: ID! @external
			weight: Float! @external
			shippingCost: Float! @requires(fields: "weight")
		}
	`

	productSG, err := graph.NewSubGraph("products", []byte(productSchema), "http://products.example.com")
	if err != nil {
		t.Fatalf("NewSubGraph failed for products: %v", err)
	}

	shippingSG, err := graph.NewSubGraph("shipping", []byte(shippingSchema), "http://shipping.example.com")
	if err != nil {
		t.Fatalf("NewSubGraph failed for shipping: %v", err)
	}

	superGraph, err := graph.NewSuperGraph([]*graph.SubGraph{productSG, shippingSG})
	if err != nil {
		t.Fatalf("NewSuperGraph failed: %v", err)
	}

	p := planner.NewPlanner(superGraph)

	doc := parseQuery(t, `
		query {
			product(id: "p1") {
				id
				name
				shippingCost
			}
		}
	`)

	plan, err := p.Plan(doc, nil)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}

	var productStep, shippingStep *planner.Step
	for _, step := range plan.Steps {
		switch step.SubGraph.Name {
		case "products":
			productStep = step
		case "shipping":
			shippingStep = step
		}
	}
	if productStep == nil {
		t.Fatal("could not find the products step")
	}
	if shippingStep == nil {
		t.Fatal("could not find the shipping entity step")
	}

	got := fieldNames(productStep.SelectionSet)
	want := []string{"__typename", "id", "name", "weight"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("products step selection set mismatch (-want +got):\n%s", diff)
	}

	found := false
	for _, depID := range shippingStep.DependsOn {
		if depID == productStep.ID {
			found = true
		}
	}
	if !found {
		t.Errorf("shipping step DependsOn = %v, want it to include products step ID %d", shippingStep.DependsOn, productStep.ID)
	}
}

// TestPlanner_RequiresDependencyInjection_NoDuplicateWhenAlreadySelected
// checks that injectRequiresDependencies does not duplicate a required field
// the client already selected explicitly.
func TestPlanner_RequiresDependencyInjection_NoDuplicateWhenAlreadySelected(t *testing.T) {
	productSchema := `
		type Product @key(fields: "id") {
			id: ID!
			weight: Float!
		}

		type Query {
			product(id: ID!): Product
		}
	`

	shippingSchema := `
		extend type Product @key(fields: "id") {
			id: ID! @external
			weight: Float! @external
			shippingCost: Float! @requires(fields: "weight")
		}
	`

	productSG, err := graph.NewSubGraph("products", []byte(productSchema), "http://products.example.com")
	if err != nil {
		t.Fatalf("NewSubGraph failed for products: %v", err)
	}
	shippingSG, err := graph.NewSubGraph("shipping", []byte(shippingSchema), "http://shipping.example.com")
	if err != nil {
		t.Fatalf("NewSubGraph failed for shipping: %v", err)
	}
	superGraph, err := graph.NewSuperGraph([]*graph.SubGraph{productSG, shippingSG})
	if err != nil {
		t.Fatalf("NewSuperGraph failed: %v", err)
	}

	p := planner.NewPlanner(superGraph)
	doc := parseQuery(t, `
		query {
			product(id: "p1") {
				id
				weight
				shippingCost
			}
		}
	`)

	plan, err := p.Plan(doc, nil)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}

	var productStep *planner.Step
	for _, step := range plan.Steps {
		if step.SubGraph.Name == "products" {
			productStep = step
		}
	}
	if productStep == nil {
		t.Fatal("could not find the products step")
	}

	count := 0
	for _, sel := range productStep.SelectionSet {
		if f, ok := sel.(*ast.Field); ok && f.Name.String() == "weight" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("weight appears %d times in products step selection set, want exactly 1", count)
	}
}
