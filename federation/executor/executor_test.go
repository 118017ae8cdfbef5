package executor_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/n9te9/federation-router/federation/executor"
	"github.com/n9te9/federation-router/federation/graph"
	"github.com/n9te9/federation-router/federation/planner"
	"github.com/n9te9/graphql-parser/ast"
	"github.com/n9te9/graphql-parser/lexer"
	"github.com/n9te9/graphql-parser/parser"
)

const productsSchema = `
	type Product @key(fields: "id") {
		id: ID!
		name: String!
	}
	type Query {
		product(id: ID!): Product
	}
`

const reviewsSchema = `
	extend type Product @key(fields: "id") {
		id: ID! @external
		reviews: [Review!]!
	}
	type Review {
		id: ID!
		body: String!
	}
`

func buildTestSuperGraph(t *testing.T, productsHost, reviewsHost string) *graph.SuperGraph {
	t.Helper()
	productsSG, err := graph.NewSubGraph("products", []byte(productsSchema), productsHost)
	if err != nil {
		t.Fatalf("NewSubGraph(products) failed: %v", err)
	}
	reviewsSG, err := graph.NewSubGraph("reviews", []byte(reviewsSchema), reviewsHost)
	if err != nil {
		t.Fatalf("NewSubGraph(reviews) failed: %v", err)
	}
	sg, err := graph.NewSuperGraph([]*graph.SubGraph{productsSG, reviewsSG})
	if err != nil {
		t.Fatalf("NewSuperGraph failed: %v", err)
	}
	return sg
}

func parseTestDocument(t *testing.T, query string) *ast.Document {
	t.Helper()
	l := lexer.New(query)
	p := parser.New(l)
	doc := p.ParseDocument()
	if len(p.Errors()) > 0 {
		t.Fatalf("parse error: %v", p.Errors())
	}
	return doc
}

func TestExecutor_Execute_MergesEntityResultsIntoParentAcrossSubgraphs(t *testing.T) {
	productsServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": map[string]interface{}{
				"product": map[string]interface{}{
					"__typename": "Product",
					"id":         "p1",
					"name":       "Widget",
				},
			},
		})
	}))
	defer productsServer.Close()

	reviewsServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": map[string]interface{}{
				"_entities": []interface{}{
					map[string]interface{}{
						"reviews": []interface{}{
							map[string]interface{}{"id": "r1", "body": "great"},
						},
					},
				},
			},
		})
	}))
	defer reviewsServer.Close()

	sg := buildTestSuperGraph(t, productsServer.URL, reviewsServer.URL)
	p := planner.NewPlanner(sg)

	doc := parseTestDocument(t, `
		query {
			product(id: "p1") {
				id
				name
				reviews {
					id
					body
				}
			}
		}
	`)

	plan, err := p.Plan(doc, nil)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}

	exec := executor.NewExecutor(http.DefaultClient, sg)
	result, err := exec.Execute(context.Background(), plan, nil)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	data, ok := result["data"].(map[string]interface{})
	if !ok {
		t.Fatalf("result[data] = %v, want a map", result["data"])
	}
	product, ok := data["product"].(map[string]interface{})
	if !ok {
		t.Fatalf("data[product] = %v, want a map", data["product"])
	}
	if product["name"] != "Widget" {
		t.Errorf("product.name = %v, want Widget", product["name"])
	}
	reviews, ok := product["reviews"].([]interface{})
	if !ok || len(reviews) != 1 {
		t.Fatalf("product.reviews = %v, want a single-element slice", product["reviews"])
	}
	review := reviews[0].(map[string]interface{})
	if review["body"] != "great" {
		t.Errorf("reviews[0].body = %v, want great", review["body"])
	}
	if _, leaked := product["__typename"]; leaked {
		t.Error("pruneResponse should strip __typename injected for entity resolution and not requested by the client")
	}
}

func TestExecutor_Execute_SubgraphFailureProducesPartialResponseWithError(t *testing.T) {
	productsServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer productsServer.Close()

	reviewsServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{"data": map[string]interface{}{}})
	}))
	defer reviewsServer.Close()

	sg := buildTestSuperGraph(t, productsServer.URL, reviewsServer.URL)
	p := planner.NewPlanner(sg)

	doc := parseTestDocument(t, `
		query {
			product(id: "p1") {
				id
				name
			}
		}
	`)

	plan, err := p.Plan(doc, nil)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}

	exec := executor.NewExecutor(http.DefaultClient, sg)
	result, err := exec.Execute(context.Background(), plan, nil)
	if err != nil {
		t.Fatalf("Execute should not return a top-level error on subgraph failure: %v", err)
	}

	if _, hasErrors := result["errors"]; !hasErrors {
		t.Error("expected an errors array reporting the products subgraph failure")
	}
}

func TestExecutor_Execute_RequestDedupeCollapsesConcurrentIdenticalFetches(t *testing.T) {
	var hits int32
	productsServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": map[string]interface{}{
				"product": map[string]interface{}{
					"__typename": "Product",
					"id":         "p1",
					"name":       "Widget",
				},
			},
		})
	}))
	defer productsServer.Close()

	reviewsServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{"data": map[string]interface{}{}})
	}))
	defer reviewsServer.Close()

	sg := buildTestSuperGraph(t, productsServer.URL, reviewsServer.URL)
	p := planner.NewPlanner(sg)
	exec := executor.NewExecutor(http.DefaultClient, sg).WithRequestDedupe()

	doc := parseTestDocument(t, `
		query {
			product(id: "p1") {
				id
				name
			}
		}
	`)
	plan, err := p.Plan(doc, nil)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := exec.Execute(context.Background(), plan, nil); err != nil {
				t.Errorf("Execute failed: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := atomic.LoadInt32(&hits); got != 1 {
		t.Errorf("products subgraph received %d requests, want 1 (deduped)", got)
	}
}
