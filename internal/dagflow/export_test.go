package dagflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExportDOT(t *testing.T) {
	nodes := map[string]*NodeDefinition{
		"start": {Name: "start", TaskName: "start_job", Kind: "job_management"},
		"work":  {Name: "work", TaskName: "execute_tool", Kind: "unknown_kind"},
	}
	edges := []EdgeDefinition{{From: "start", To: "work", Condition: "always"}}
	g := newGraph(nodes, edges)

	dot := ExportDOT(g)

	assert.Contains(t, dot, "digraph dagflow {")
	assert.Contains(t, dot, `"start"`)
	assert.Contains(t, dot, "lightblue")
	assert.Contains(t, dot, "white")
	assert.Contains(t, dot, `"start" -> "work"`)
}

func TestParseDOT_RoundTripsNodeAndEdgeSets(t *testing.T) {
	nodes := map[string]*NodeDefinition{
		"start": {Name: "start", TaskName: "start_job", Kind: "job_management"},
		"work":  {Name: "work", TaskName: "execute_tool", Kind: "unknown_kind"},
		"done":  {Name: "done", TaskName: "finish"},
	}
	edges := []EdgeDefinition{
		{From: "start", To: "work", Condition: "always"},
		{From: "work", To: "done", Condition: "result.ok == true"},
	}
	g := newGraph(nodes, edges)

	dot := ExportDOT(g)
	parsed, err := ParseDOT(dot)
	require.NoError(t, err)

	assert.ElementsMatch(t, g.NodeNames(), parsed.NodeNames())

	type pair struct{ from, to string }
	wantEdges := make([]pair, len(g.Edges))
	for i, e := range g.Edges {
		wantEdges[i] = pair{e.From, e.To}
	}
	gotEdges := make([]pair, len(parsed.Edges))
	for i, e := range parsed.Edges {
		gotEdges[i] = pair{e.From, e.To}
	}
	assert.ElementsMatch(t, wantEdges, gotEdges)
}

func TestParseDOT_RejectsTextWithNoNodes(t *testing.T) {
	_, err := ParseDOT("digraph dagflow {\n}\n")
	assert.Error(t, err)
}

func TestValidateConditionLabels_DoesNotPanicOnPlainOrExprLabels(t *testing.T) {
	nodes := map[string]*NodeDefinition{
		"a": {Name: "a", TaskName: "noop"},
		"b": {Name: "b", TaskName: "noop"},
	}
	edges := []EdgeDefinition{
		{From: "a", To: "b", Condition: "always"},
	}
	g := newGraph(nodes, edges)

	assert.NotPanics(t, func() { ValidateConditionLabels(g) })
}

