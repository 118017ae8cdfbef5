package graph_test

import (
	"testing"

	"github.com/n9te9/federation-router/federation/graph"
)

func newTestSuperGraph(t *testing.T) *graph.SuperGraph {
	t.Helper()
	productSG, err := graph.NewSubGraph("products", []byte(productSchema), "http://products.example.com")
	if err != nil {
		t.Fatalf("NewSubGraph(products) failed: %v", err)
	}
	reviewSG, err := graph.NewSubGraph("reviews", []byte(reviewSchema), "http://reviews.example.com")
	if err != nil {
		t.Fatalf("NewSubGraph(reviews) failed: %v", err)
	}
	sg, err := graph.NewSuperGraph([]*graph.SubGraph{productSG, reviewSG})
	if err != nil {
		t.Fatalf("NewSuperGraph failed: %v", err)
	}
	return sg
}

func TestNewSuperGraph_OwnershipMapsFieldsToOwningSubGraph(t *testing.T) {
	sg := newTestSuperGraph(t)

	owners := sg.GetSubGraphsForField("Query", "product")
	if len(owners) != 1 || owners[0].Name != "products" {
		t.Errorf("Query.product owners = %v, want [products]", owners)
	}

	owners = sg.GetSubGraphsForField("Query", "reviews")
	if len(owners) != 1 || owners[0].Name != "reviews" {
		t.Errorf("Query.reviews owners = %v, want [reviews]", owners)
	}
}

func TestNewSuperGraph_ExternalFieldsAreNotOwnedByExtendingSubGraph(t *testing.T) {
	sg := newTestSuperGraph(t)

	owners := sg.GetSubGraphsForField("Product", "id")
	found := false
	for _, o := range owners {
		if o.Name == "reviews" {
			found = true
		}
	}
	if found {
		t.Error("Product.id is declared @external in the reviews subgraph and should not be an owner")
	}
}

func TestGetEntityOwnerSubGraph_ReturnsNonExtensionDefiner(t *testing.T) {
	sg := newTestSuperGraph(t)

	owner := sg.GetEntityOwnerSubGraph("Product")
	if owner == nil || owner.Name != "products" {
		t.Errorf("GetEntityOwnerSubGraph(Product) = %v, want products", owner)
	}
}

func TestGetEntityOwnerSubGraph_UnknownEntityReturnsNil(t *testing.T) {
	sg := newTestSuperGraph(t)
	if owner := sg.GetEntityOwnerSubGraph("DoesNotExist"); owner != nil {
		t.Errorf("GetEntityOwnerSubGraph(DoesNotExist) = %v, want nil", owner)
	}
}

func TestIsNonNullField(t *testing.T) {
	sg := newTestSuperGraph(t)
	if !sg.IsNonNullField("Product", "name") {
		t.Error("Product.name is declared String! and should be non-null")
	}
	if sg.IsNonNullField("Product", "doesNotExist") {
		t.Error("an unknown field should not report non-null")
	}
}

func TestFieldTypeName(t *testing.T) {
	sg := newTestSuperGraph(t)
	if got := sg.FieldTypeName("Query", "product"); got != "Product" {
		t.Errorf("FieldTypeName(Query, product) = %q, want Product", got)
	}
	if got := sg.FieldTypeName("Review", "__typename"); got != "String" {
		t.Errorf("FieldTypeName(__typename) = %q, want String", got)
	}
}

func TestIsPossibleType_SameTypeAlwaysTrue(t *testing.T) {
	sg := newTestSuperGraph(t)
	if !sg.IsPossibleType("Product", "Product") {
		t.Error("a type should always satisfy its own type condition")
	}
}
