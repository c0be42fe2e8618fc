package dagflow

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hrygo/dagflow/internal/version"
)

// rawDocument mirrors the YAML surface described in spec §6. Field names
// follow the document's own vocabulary, not Go convention, since this is a
// wire shape - generalized from the teacher's ai/configloader.Loader, which
// unmarshals one YAML file per call into a caller-supplied target.
type rawDocument struct {
	Nodes    rawNodes  `yaml:"nodes"`
	Edges    []rawEdge `yaml:"edges"`
	Settings Settings  `yaml:"settings"`
}

// rawNodeEntry pairs a declared node name with its body, preserving
// declaration order and letting UnmarshalYAML below see every key exactly
// as it appeared in the document - a plain map[string]rawNode silently
// keeps only the last occurrence of a repeated key, which would hide the
// "duplicate node names" schema violation spec §4.1 requires Load to
// reject.
type rawNodeEntry struct {
	Name string
	Body rawNode
}

// rawNodes decodes the `nodes` mapping entry-by-entry off the raw
// yaml.Node tree instead of through a Go map, so every key is seen even
// when repeated.
type rawNodes struct {
	entries []rawNodeEntry
}

func (n *rawNodes) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("nodes: expected a mapping, got %v", value.Kind)
	}

	seen := make(map[string]bool, len(value.Content)/2)
	for i := 0; i+1 < len(value.Content); i += 2 {
		name := value.Content[i].Value
		if seen[name] {
			return fmt.Errorf("duplicate node name %q", name)
		}
		seen[name] = true

		var body rawNode
		if err := value.Content[i+1].Decode(&body); err != nil {
			return fmt.Errorf("node %q: %w", name, err)
		}
		n.entries = append(n.entries, rawNodeEntry{Name: name, Body: body})
	}
	return nil
}

type rawNode struct {
	Task        string            `yaml:"task"`
	Kind        string            `yaml:"kind"`
	Inputs      map[string]string `yaml:"inputs"`
	Outputs     map[string]string `yaml:"outputs"`
	RetryPolicy struct {
		MaxRetries         int    `yaml:"max_retries"`
		BaseDelay          string `yaml:"base_delay"`
		ExponentialBackoff bool   `yaml:"exponential_backoff"`
	} `yaml:"retry_policy"`
	Timeout     string `yaml:"timeout"`
	CachePolicy struct {
		Enabled        bool   `yaml:"enabled"`
		TTL            string `yaml:"ttl"`
		KeyStrategy    string `yaml:"key_strategy"`
		CustomTemplate string `yaml:"custom_template"`
	} `yaml:"cache_policy"`
}

type rawEdge struct {
	From          string  `yaml:"from"`
	To            string  `yaml:"to"`
	Condition     string  `yaml:"condition"`
	Weight        float64 `yaml:"weight"`
	ErrorHandling bool    `yaml:"error_handling"`
}

// Warnings carries the non-fatal validator findings
// (orphan/unreachable nodes) alongside a successfully loaded workflow.
type Warnings struct {
	OrphanNodes      []string
	UnreachableNodes []string
}

// LoadedWorkflow is the immutable result of Load: a validated Graph plus
// the settings declared by the workflow author.
type LoadedWorkflow struct {
	Graph    *Graph
	Settings Settings
	Warnings Warnings
}

// Load parses a workflow description (YAML) from r, validates its shape,
// and returns an immutable, ready-to-execute workflow. It fails with a
// *SchemaError for malformed input and a *CyclicGraphError when the graph
// contains one or more cycles.
func Load(r io.Reader) (*LoadedWorkflow, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, newSchemaError("read workflow description: %v", err)
	}

	var doc rawDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, newSchemaError("parse YAML: %v", err)
	}

	if len(doc.Nodes.entries) == 0 {
		return nil, newSchemaError("workflow has no nodes")
	}

	nodes := make(map[string]*NodeDefinition, len(doc.Nodes.entries))
	for _, entry := range doc.Nodes.entries {
		name, raw := entry.Name, entry.Body
		if name == "" {
			return nil, newSchemaError("node declared with empty name")
		}
		if raw.Task == "" {
			return nil, newSchemaError("node %q missing required field task", name)
		}

		retryDelay, err := parseDuration(raw.RetryPolicy.BaseDelay, 0)
		if err != nil {
			return nil, newSchemaError("node %q retry_policy.base_delay: %v", name, err)
		}
		timeout, err := parseDuration(raw.Timeout, 0)
		if err != nil {
			return nil, newSchemaError("node %q timeout: %v", name, err)
		}
		ttl, err := parseDuration(raw.CachePolicy.TTL, 0)
		if err != nil {
			return nil, newSchemaError("node %q cache_policy.ttl: %v", name, err)
		}

		strategy := CacheKeyStrategy(raw.CachePolicy.KeyStrategy)
		if strategy == "" {
			strategy = CacheKeyByNameAndInputHash
		}

		nodes[name] = &NodeDefinition{
			Name:     name,
			TaskName: raw.Task,
			Kind:     raw.Kind,
			Inputs:   raw.Inputs,
			Outputs:  raw.Outputs,
			RetryPolicy: RetryPolicy{
				MaxRetries:         raw.RetryPolicy.MaxRetries,
				BaseDelay:          retryDelay,
				ExponentialBackoff: raw.RetryPolicy.ExponentialBackoff,
			},
			Timeout: timeout,
			CachePolicy: CachePolicy{
				Enabled:        raw.CachePolicy.Enabled,
				TTL:            ttl,
				KeyStrategy:    strategy,
				CustomTemplate: raw.CachePolicy.CustomTemplate,
			},
		}
	}

	edges := make([]EdgeDefinition, 0, len(doc.Edges))
	for i, raw := range doc.Edges {
		if raw.From == "" || raw.To == "" {
			return nil, newSchemaError("edge %d missing from/to", i)
		}
		if _, ok := nodes[raw.From]; !ok {
			return nil, newSchemaError("edge %d references undeclared node %q", i, raw.From)
		}
		if _, ok := nodes[raw.To]; !ok {
			return nil, newSchemaError("edge %d references undeclared node %q", i, raw.To)
		}
		condition := raw.Condition
		if condition == "" {
			condition = "always"
		}
		weight := raw.Weight
		if weight == 0 {
			weight = 1.0
		}
		edges = append(edges, EdgeDefinition{
			From:          raw.From,
			To:            raw.To,
			Condition:     condition,
			Weight:        weight,
			ErrorHandling: raw.ErrorHandling,
		})
	}

	graph := newGraph(nodes, edges)

	if cycles := graph.findCycles(); len(cycles) > 0 {
		return nil, newCyclicGraphError(cycles)
	}

	warnings := Warnings{
		OrphanNodes:      graph.orphanNodes(),
		UnreachableNodes: graph.unreachableNodes(),
	}
	if len(warnings.OrphanNodes) > 0 {
		slog.Warn("dagflow: loaded workflow has orphan nodes", "nodes", warnings.OrphanNodes)
	}
	if len(warnings.UnreachableNodes) > 0 {
		slog.Warn("dagflow: loaded workflow has unreachable nodes", "nodes", warnings.UnreachableNodes)
	}
	ValidateConditionLabels(graph)

	settings := doc.Settings
	if settings.MinEngineVersion != "" && !version.IsGreaterOrEqual(version.Version, settings.MinEngineVersion) {
		return nil, newSchemaError("workflow requires engine >= %s, running %s", settings.MinEngineVersion, version.Version)
	}
	settings.normalize()

	slog.Info("dagflow: loaded workflow", "nodes", len(nodes), "edges", len(edges))

	return &LoadedWorkflow{Graph: graph, Settings: settings, Warnings: warnings}, nil
}

func parseDuration(s string, fallback time.Duration) (time.Duration, error) {
	if s == "" {
		return fallback, nil
	}
	return time.ParseDuration(s)
}
