// Package dagflow implements a DAG workflow execution engine: a declarative
// workflow description (nodes = tasks, edges = dependencies) is loaded,
// validated, and scheduled for execution honoring dependencies, concurrency
// limits, per-node retry/timeout policies, and a TTL-bounded result cache.
package dagflow

import (
	"fmt"
	"time"
)

// NodeStatus is the lifecycle state of a single node within one execution.
type NodeStatus string

const (
	NodeStatusPending   NodeStatus = "pending"
	NodeStatusRunning   NodeStatus = "running"
	NodeStatusSuccess   NodeStatus = "success"
	NodeStatusFailed    NodeStatus = "failed"
	NodeStatusSkipped   NodeStatus = "skipped"
	NodeStatusCancelled NodeStatus = "cancelled"
)

// IsTerminal reports whether the status is a final state for a node.
func (s NodeStatus) IsTerminal() bool {
	switch s {
	case NodeStatusSuccess, NodeStatusFailed, NodeStatusSkipped, NodeStatusCancelled:
		return true
	default:
		return false
	}
}

// RunStatus is the overall lifecycle state of one execution.
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusSuccess   RunStatus = "success"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// Mode selects the concurrency discipline used to dispatch a run's layers.
type Mode string

const (
	ModeSequential Mode = "sequential"
	ModeParallel   Mode = "parallel"
	ModeHybrid     Mode = "hybrid"
)

// FailurePolicy controls how the scheduler reacts to a failed node.
type FailurePolicy string

const (
	FailurePolicyStopOnFirstFailure FailurePolicy = "stop_on_first_failure"
	FailurePolicyContinueOnFailure  FailurePolicy = "continue_on_failure"
)

// CacheKeyStrategy selects how a node's cache key is derived.
type CacheKeyStrategy string

const (
	CacheKeyByName              CacheKeyStrategy = "by_name"
	CacheKeyByNameAndInputHash  CacheKeyStrategy = "by_name_and_input_hash"
	CacheKeyCustomTemplate      CacheKeyStrategy = "custom_template"
)

// RetryPolicy is a node's attempt budget and backoff schedule.
type RetryPolicy struct {
	MaxRetries         int           `yaml:"max_retries" json:"max_retries"`
	BaseDelay          time.Duration `yaml:"base_delay" json:"base_delay"`
	ExponentialBackoff bool          `yaml:"exponential_backoff" json:"exponential_backoff"`
}

// Delay returns the backoff before the attempt indexed by attemptIndex,
// where attemptIndex starts at 0 for the first retry after the initial
// attempt, per spec.
func (p RetryPolicy) Delay(attemptIndex int) time.Duration {
	if !p.ExponentialBackoff {
		return p.BaseDelay
	}
	d := p.BaseDelay
	for i := 0; i < attemptIndex; i++ {
		d *= 2
	}
	return d
}

// CachePolicy is a node's caching configuration.
type CachePolicy struct {
	Enabled        bool             `yaml:"enabled" json:"enabled"`
	TTL            time.Duration    `yaml:"ttl" json:"ttl"`
	KeyStrategy    CacheKeyStrategy `yaml:"key_strategy" json:"key_strategy"`
	CustomTemplate string           `yaml:"custom_template" json:"custom_template,omitempty"`
}

// NodeDefinition is the static, immutable description of one task in the
// workflow graph, loaded once by the Workflow Loader.
type NodeDefinition struct {
	Name        string            `yaml:"-" json:"name"`
	TaskName    string             `yaml:"task" json:"task_name"`
	Kind        string             `yaml:"kind" json:"kind"`
	Inputs      map[string]string  `yaml:"inputs" json:"inputs,omitempty"`
	Outputs     map[string]string  `yaml:"outputs" json:"outputs,omitempty"`
	RetryPolicy RetryPolicy        `yaml:"retry_policy" json:"retry_policy"`
	Timeout     time.Duration      `yaml:"timeout" json:"timeout"`
	CachePolicy CachePolicy        `yaml:"cache_policy" json:"cache_policy"`
}

// EdgeDefinition is a dependency from From to To, carrying metadata that the
// core treats strictly as dependency ordering (see DESIGN.md open question 1).
type EdgeDefinition struct {
	From           string  `yaml:"from" json:"from"`
	To             string  `yaml:"to" json:"to"`
	Condition      string  `yaml:"condition" json:"condition"`
	Weight         float64 `yaml:"weight" json:"weight"`
	ErrorHandling  bool    `yaml:"error_handling" json:"error_handling"`
}

// Settings are the workflow's top-level, optional run configuration.
type Settings struct {
	FailurePolicy        FailurePolicy `yaml:"failure_policy" json:"failure_policy"`
	MaxConcurrentTasks   int           `yaml:"max_concurrent_tasks" json:"max_concurrent_tasks"`
	DefaultExecutionMode Mode          `yaml:"default_execution_mode" json:"default_execution_mode"`
	// MinEngineVersion, when set, is the lowest engine release the workflow
	// document was authored against; Load rejects documents that declare a
	// version newer than the running engine.
	MinEngineVersion string `yaml:"min_engine_version" json:"min_engine_version"`
}

// normalize fills in documented defaults.
func (s *Settings) normalize() {
	if s.FailurePolicy == "" {
		s.FailurePolicy = FailurePolicyStopOnFirstFailure
	}
	if s.MaxConcurrentTasks <= 0 {
		s.MaxConcurrentTasks = 10
	}
	if s.DefaultExecutionMode == "" {
		s.DefaultExecutionMode = ModeParallel
	}
}

// CacheEntry is a single stored result in the Result Cache.
type CacheEntry struct {
	Key        string
	Value      any
	InsertedAt time.Time
	TTL        time.Duration
	OriginNode string
}

// Live reports whether the entry has not yet expired, relative to now.
func (e CacheEntry) Live(now time.Time) bool {
	return now.Sub(e.InsertedAt) < e.TTL
}

func (n NodeDefinition) String() string {
	return fmt.Sprintf("node(%s task=%s kind=%s)", n.Name, n.TaskName, n.Kind)
}
