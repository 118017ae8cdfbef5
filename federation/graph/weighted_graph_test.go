package graph_test

import (
	"testing"

	"github.com/n9te9/federation-router/federation/graph"
)

func TestBuildGraph_CrossSubGraphEdgeHasWeightOne(t *testing.T) {
	sg := newTestSuperGraph(t)

	productsTypeKey := graph.NodeKey("products", "Product", "")
	reviewsTypeKey := graph.NodeKey("reviews", "Product", "")

	node, ok := sg.Graph.Nodes[productsTypeKey]
	if !ok {
		t.Fatalf("expected a graph node for %s", productsTypeKey)
	}
	weight, ok := node.Edges[reviewsTypeKey]
	if !ok {
		t.Fatalf("expected a cross-subgraph edge from %s to %s", productsTypeKey, reviewsTypeKey)
	}
	if weight != 1 {
		t.Errorf("cross-subgraph edge weight = %d, want 1", weight)
	}
}

func TestBuildGraph_SameSubGraphFieldEdgeHasWeightZero(t *testing.T) {
	sg := newTestSuperGraph(t)

	typeKey := graph.NodeKey("products", "Product", "")
	fieldKey := graph.NodeKey("products", "Product", "name")

	node := sg.Graph.Nodes[typeKey]
	weight, ok := node.Edges[fieldKey]
	if !ok || weight != 0 {
		t.Errorf("type->field edge weight = %d, ok=%v, want 0", weight, ok)
	}
}

func TestDijkstra_FindsShortestCostFromEntryPoint(t *testing.T) {
	sg := newTestSuperGraph(t)

	entry := graph.NodeKey("products", "Product", "")
	result := sg.Graph.Dijkstra([]string{entry})

	target := graph.NodeKey("reviews", "Product", "")
	if result.Dist[target] != 1 {
		t.Errorf("Dist[%s] = %d, want 1 (one cross-subgraph hop)", target, result.Dist[target])
	}
	if result.Dist[entry] != 0 {
		t.Errorf("Dist[%s] = %d, want 0 at the entry point", entry, result.Dist[entry])
	}
}

func TestDijkstra_UnreachableNodeHasInfiniteDistance(t *testing.T) {
	sg := newTestSuperGraph(t)
	entry := graph.NodeKey("products", "Product", "")
	result := sg.Graph.Dijkstra([]string{entry})

	const inf = int(^uint(0) >> 1)
	if dist, ok := result.Dist["does-not-exist"]; ok && dist != inf {
		t.Errorf("an unknown node key should not be present with a finite distance, got %d", dist)
	}
}

func TestWeightedDirectedGraph_AddEdgePrefersLowerWeight(t *testing.T) {
	g := graph.NewWeightedDirectedGraph()
	g.AddNode("a", nil, "A", "")
	g.AddNode("b", nil, "B", "")
	g.AddEdge("a", "b", 1)
	g.AddEdge("a", "b", 0)
	if g.Nodes["a"].Edges["b"] != 0 {
		t.Errorf("edge weight = %d, want the minimum of the two writes (0)", g.Nodes["a"].Edges["b"])
	}
	g.AddEdge("a", "b", 5)
	if g.Nodes["a"].Edges["b"] != 0 {
		t.Errorf("edge weight = %d, want 0 to be retained over a higher later write", g.Nodes["a"].Edges["b"])
	}
}

func TestReconstructPath_ReturnsEntryToTargetChain(t *testing.T) {
	g := graph.NewWeightedDirectedGraph()
	g.AddNode("a", nil, "A", "")
	g.AddNode("b", nil, "B", "")
	g.AddNode("c", nil, "C", "")
	g.AddEdge("a", "b", 1)
	g.AddEdge("b", "c", 1)

	result := g.Dijkstra([]string{"a"})
	path := result.ReconstructPath("c")
	want := []string{"a", "b", "c"}
	if len(path) != len(want) {
		t.Fatalf("path = %v, want %v", path, want)
	}
	for i := range want {
		if path[i] != want[i] {
			t.Fatalf("path = %v, want %v", path, want)
		}
	}
}
