package dagflow

import (
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/cel-go/cel"
)

// conditionEnv is a minimal CEL environment used only to sanity-check that
// an edge's condition label looks like a boolean expression for
// diagnostics. Per spec §9 (see DESIGN.md open question 1), conditions
// never gate dispatch; this is presentation-layer validation only, so
// unknown identifiers are declared dynamic rather than exhaustively typed.
var conditionEnv, _ = cel.NewEnv(cel.Variable("node", cel.DynType))

// ValidateConditionLabels checks every edge's condition string against the
// CEL grammar and logs at debug level any that fail to parse, without
// altering the graph or returning an error. Empty labels and "always" are
// skipped; other plain labels that are not intended as expressions may
// fail this check harmlessly.
func ValidateConditionLabels(g *Graph) {
	for _, e := range g.Edges {
		if e.Condition == "" || e.Condition == "always" {
			continue
		}
		if _, issues := conditionEnv.Parse(e.Condition); issues != nil && issues.Err() != nil {
			slog.Debug("dagflow: edge condition is not a CEL expression, treated as a plain label",
				"from", e.From, "to", e.To, "condition", e.Condition, "parse_error", issues.Err())
		}
	}
}

// nodeColor maps a node's informational kind label to a Graphviz fill
// color, ported verbatim from the reference executor's _get_node_color
// (original_source/agentdev/dag/dag_executor.py). Unknown kinds fall back
// to white, matching the reference's color_map.get default.
var nodeColor = map[string]string{
	"job_management":  "lightblue",
	"ai_processing":   "lightgreen",
	"tool_execution":  "lightyellow",
	"security":        "lightcoral",
	"data_processing": "lightpink",
	"monitoring":      "lightgray",
	"custom":          "lightsteelblue",
}

// ExportDOT renders the graph as Graphviz DOT text (spec §9's open
// question on graph export format, decided in favor of the reference
// implementation's graphviz.Digraph rendering - see DESIGN.md). Output is
// deterministic: nodes are emitted in sorted name order and edges in the
// order the loader declared them.
func ExportDOT(g *Graph) string {
	var b strings.Builder
	b.WriteString("digraph dagflow {\n")
	b.WriteString("  rankdir=TB;\n")
	b.WriteString("  node [shape=box, style=\"rounded,filled\"];\n")

	for _, name := range g.NodeNames() {
		node := g.Nodes[name]
		color, ok := nodeColor[node.Kind]
		if !ok {
			color = "white"
		}
		fmt.Fprintf(&b, "  %q [label=%q, fillcolor=%q];\n", name, name+"\\n"+node.TaskName, color)
	}

	for _, e := range g.Edges {
		fmt.Fprintf(&b, "  %q -> %q [label=%q];\n", e.From, e.To, e.Condition)
	}

	b.WriteString("}\n")
	return b.String()
}

// qtoken matches one Go-%q-quoted token, the form every quoted field in
// ExportDOT's output takes.
const qtoken = `"(?:[^"\\]|\\.)*"`

var (
	dotNodeLine = regexp.MustCompile(`^\s*(` + qtoken + `) \[label=(` + qtoken + `), fillcolor=(` + qtoken + `)\];\s*$`)
	dotEdgeLine = regexp.MustCompile(`^\s*(` + qtoken + `) -> (` + qtoken + `) \[label=(` + qtoken + `)\];\s*$`)
)

// ParseDOT is ExportDOT's inverse (spec §8's round-trip property:
// Load(description).export_visual().parse_visual() preserves node set and
// edge set). It understands exactly the grammar ExportDOT emits rather
// than Graphviz DOT in general - there is no DOT parser anywhere in the
// reference implementation (original_source's dag_executor.py only calls
// graphviz.Digraph.render, never reads one back), so this is written as
// the specific left inverse of this package's own export function, not a
// general-purpose DOT reader. Fields are recovered with strconv.Unquote,
// the exact inverse of the %q formatting ExportDOT uses, so escaping
// round-trips losslessly; a node's task name is recovered by splitting
// its label on the literal "\n" ExportDOT joins name and task with.
// Edge weight and error-handling flags are not present in DOT output and
// so come back zero-valued; node kind is lost to the color mapping and
// is not recovered either - spec §8 only requires the node set and edge
// set to survive the round trip, not full node/edge definitions.
func ParseDOT(dot string) (*Graph, error) {
	nodes := make(map[string]*NodeDefinition)
	var edges []EdgeDefinition

	for _, line := range strings.Split(dot, "\n") {
		if m := dotNodeLine.FindStringSubmatch(line); m != nil {
			name, err := strconv.Unquote(m[1])
			if err != nil {
				return nil, fmt.Errorf("parse_visual: node name: %w", err)
			}
			label, err := strconv.Unquote(m[2])
			if err != nil {
				return nil, fmt.Errorf("parse_visual: node label: %w", err)
			}
			task := label
			if idx := strings.Index(label, `\n`); idx >= 0 {
				task = label[idx+2:]
			}
			nodes[name] = &NodeDefinition{Name: name, TaskName: task}
			continue
		}
		if m := dotEdgeLine.FindStringSubmatch(line); m != nil {
			from, err := strconv.Unquote(m[1])
			if err != nil {
				return nil, fmt.Errorf("parse_visual: edge from: %w", err)
			}
			to, err := strconv.Unquote(m[2])
			if err != nil {
				return nil, fmt.Errorf("parse_visual: edge to: %w", err)
			}
			condition, err := strconv.Unquote(m[3])
			if err != nil {
				return nil, fmt.Errorf("parse_visual: edge condition: %w", err)
			}
			if _, ok := nodes[from]; !ok {
				return nil, fmt.Errorf("parse_visual: edge references undeclared node %q", from)
			}
			if _, ok := nodes[to]; !ok {
				return nil, fmt.Errorf("parse_visual: edge references undeclared node %q", to)
			}
			edges = append(edges, EdgeDefinition{From: from, To: to, Condition: condition})
			continue
		}
	}

	if len(nodes) == 0 {
		return nil, fmt.Errorf("parse_visual: no nodes found in DOT text")
	}
	return newGraph(nodes, edges), nil
}
