package graph_test

import (
	"testing"

	"github.com/n9te9/federation-router/federation/graph"
)

const productSchema = `
	type Product @key(fields: "id") {
		id: ID!
		name: String!
	}

	type Query {
		product(id: ID!): Product
	}
`

const reviewSchema = `
	extend type Product @key(fields: "id") {
		id: ID! @external
	}

	type Review {
		id: ID!
		body: String!
		product: Product
	}

	type Query {
		reviews: [Review!]!
	}
`

func TestNewSubGraph_ParsesEntitiesAndKeys(t *testing.T) {
	sg, err := graph.NewSubGraph("products", []byte(productSchema), "http://products.example.com")
	if err != nil {
		t.Fatalf("NewSubGraph failed: %v", err)
	}
	entity, ok := sg.GetEntity("Product")
	if !ok {
		t.Fatal("expected Product to be registered as an entity")
	}
	if len(entity.Keys) != 1 || entity.Keys[0].FieldSet != "id" {
		t.Errorf("Keys = %v, want a single key on \"id\"", entity.Keys)
	}
	if entity.IsExtension() {
		t.Error("Product defined with a bare ObjectTypeDefinition should not be an extension")
	}
}

func TestNewSubGraph_ParsesExtensionAsExtension(t *testing.T) {
	sg, err := graph.NewSubGraph("reviews", []byte(reviewSchema), "http://reviews.example.com")
	if err != nil {
		t.Fatalf("NewSubGraph failed: %v", err)
	}
	entity, ok := sg.GetEntity("Product")
	if !ok {
		t.Fatal("expected Product extension to be registered as an entity")
	}
	if !entity.IsExtension() {
		t.Error("Product extended via \"extend type\" should report IsExtension() true")
	}
}

func TestNewSubGraph_InvalidSchemaErrors(t *testing.T) {
	_, err := graph.NewSubGraph("broken", []byte("type {{{ not valid"), "http://broken.example.com")
	if err == nil {
		t.Fatal("expected a parse error for malformed SDL")
	}
}

func TestEntity_IsResolvableHonorsResolvableFalse(t *testing.T) {
	schema := `
		type Product @key(fields: "id", resolvable: false) {
			id: ID!
		}
		type Query { product(id: ID!): Product }
	`
	sg, err := graph.NewSubGraph("stub", []byte(schema), "http://stub.example.com")
	if err != nil {
		t.Fatalf("NewSubGraph failed: %v", err)
	}
	entity, _ := sg.GetEntity("Product")
	if entity.IsResolvable() {
		t.Error("a @key(resolvable: false) entity should not be resolvable")
	}
}
