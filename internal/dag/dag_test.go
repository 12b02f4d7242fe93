package dag

import (
	"errors"
	"slices"
	"testing"
)

func TestGraph_AddNodeAndEdge(t *testing.T) {
	g := NewGraph()

	g.AddNode("lib", "Lib")
	g.AddNode("app", "App")
	g.AddNode("lib", "Lib v2")

	if g.NodeCount() != 2 {
		t.Errorf("expected 2 nodes, got %d", g.NodeCount())
	}
	if data, _ := g.Data("lib"); data != "Lib v2" {
		t.Errorf("expected data to be updated, got %v", data)
	}

	if err := g.AddEdge("lib", "app"); err != nil {
		t.Fatalf("failed to add edge: %v", err)
	}
	// Duplicate edges are ignored
	if err := g.AddEdge("lib", "app"); err != nil {
		t.Fatalf("failed to add duplicate edge: %v", err)
	}
	if got := g.GetChildren("lib"); len(got) != 1 {
		t.Errorf("expected 1 child, got %v", got)
	}
	if got := g.GetParents("app"); len(got) != 1 || got[0] != "lib" {
		t.Errorf("expected parent lib, got %v", got)
	}
}

func TestGraph_AddEdge_Invalid(t *testing.T) {
	g := NewGraph()
	g.AddNode("a", nil)

	if err := g.AddEdge("a", "nonexistent"); err == nil {
		t.Error("expected error for nonexistent child node")
	}
	if err := g.AddEdge("nonexistent", "a"); err == nil {
		t.Error("expected error for nonexistent parent node")
	}
	if err := g.AddEdge("a", "a"); err == nil {
		t.Error("expected error for self-loop")
	}
}

func TestGraph_HasCycle(t *testing.T) {
	g := NewGraph()
	for _, id := range []string{"a", "b", "c"} {
		g.AddNode(id, nil)
	}
	_ = g.AddEdge("a", "b")
	_ = g.AddEdge("b", "c")

	if hasCycle, _ := g.HasCycle(); hasCycle {
		t.Fatal("expected no cycle")
	}

	_ = g.AddEdge("c", "a")
	hasCycle, path := g.HasCycle()
	if !hasCycle {
		t.Fatal("expected cycle")
	}
	if len(path) < 3 {
		t.Errorf("expected cycle path with at least 3 entries, got %v", path)
	}
}

func TestGraph_TopologicalSort(t *testing.T) {
	g := NewGraph()
	// Insert dependents before dependencies to check ordering
	g.AddNode("app", nil)
	g.AddNode("tools", nil)
	g.AddNode("lib", nil)
	g.AddNode("core", nil)
	_ = g.AddEdge("lib", "app")
	_ = g.AddEdge("core", "lib")

	sorted, err := g.TopologicalSort()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"core", "lib", "app", "tools"}
	if !slices.Equal(sorted, want) {
		t.Errorf("expected %v, got %v", want, sorted)
	}
}

func TestGraph_TopologicalSort_Cycle(t *testing.T) {
	g := NewGraph()
	g.AddNode("a", nil)
	g.AddNode("b", nil)
	_ = g.AddEdge("a", "b")
	_ = g.AddEdge("b", "a")

	_, err := g.TopologicalSort()
	var cycleErr *CycleError
	if !errors.As(err, &cycleErr) {
		t.Fatalf("expected CycleError, got %v", err)
	}
}

func TestGraph_UpstreamAndAffected(t *testing.T) {
	g := NewGraph()
	for _, id := range []string{"core", "lib", "app", "other"} {
		g.AddNode(id, nil)
	}
	_ = g.AddEdge("core", "lib")
	_ = g.AddEdge("lib", "app")

	if got := g.GetUpstreamNodes("app"); !slices.Equal(got, []string{"core", "lib"}) {
		t.Errorf("unexpected upstream: %v", got)
	}
	if got := g.GetUpstreamNodes("core"); len(got) != 0 {
		t.Errorf("expected no upstream for root, got %v", got)
	}
	if got := g.GetAffectedNodes([]string{"lib", "missing"}); !slices.Equal(got, []string{"lib", "app"}) {
		t.Errorf("unexpected affected: %v", got)
	}
	if got := g.Nodes(); !slices.Equal(got, []string{"core", "lib", "app", "other"}) {
		t.Errorf("unexpected node order: %v", got)
	}
}
