// Package domain contains the canonical result model for the comparison
// engine: retrieved chunks, per-query results, cross-provider comparisons,
// and run records. All types are value types that are safe to read
// concurrently once constructed; engines build them single-threaded after
// worker barriers and never mutate them afterwards.
package domain

import (
	"fmt"
	"sort"
)

// RagResult is a single retrieved passage returned by a provider's search
// call. Ordering within a result list is significant: providers return
// chunks ranked best-first.
type RagResult struct {
	// ID uniquely identifies the chunk within its provider's corpus.
	ID string `json:"id"`

	// Text is the retrieved passage content.
	Text string `json:"text"`

	// Score is the provider's relevance score normalized into [0, 1].
	// Normalization policy is adapter-specific; the engine only relies
	// on the range invariant.
	Score float64 `json:"score"`

	// Source names where the chunk came from (document, URL, index key).
	Source string `json:"source,omitempty"`

	// Metadata carries provider-specific fields. Values are reduced to
	// JSON-safe primitives by NormalizeMetadata before serialization.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// ErrorInfo records a per-query provider failure inside a QueryResult.
type ErrorInfo struct {
	// Provider is the name of the provider instance that failed.
	Provider string `json:"provider"`

	// Message is the human-readable cause.
	Message string `json:"message"`
}

// QueryResult is the outcome of running one query against one provider.
// Either Retrieved is populated or Error is set; both can coexist only
// when a provider returned partial results before failing.
type QueryResult struct {
	// Query is the text that was executed.
	Query string `json:"query"`

	// Retrieved holds the ranked chunks returned by the provider.
	Retrieved []RagResult `json:"retrieved,omitempty"`

	// Reference is an optional expected answer used by evaluation.
	Reference string `json:"reference,omitempty"`

	// DurationMS measures the provider call, from just before dispatch
	// to just after return.
	DurationMS float64 `json:"duration_ms"`

	// Error captures a per-query provider failure. A set Error never
	// aborts the batch the query belongs to.
	Error *ErrorInfo `json:"error,omitempty"`
}

// Evaluation is the optional automated judgment attached to a comparison.
type Evaluation struct {
	// Model identifies the LLM that produced the judgment.
	Model string `json:"model"`

	// Winner is the provider name the judge ranked best, if any.
	Winner string `json:"winner,omitempty"`

	// Scores maps provider name to the judge's score in [0, 1].
	Scores map[string]float64 `json:"scores,omitempty"`

	// Reasoning explains the judgment.
	Reasoning string `json:"reasoning,omitempty"`

	// Confidence is the judge's self-reported certainty in [0, 1].
	Confidence float64 `json:"confidence"`
}

// ComparisonResult aggregates one query's results across several providers.
//
// Invariant: Providers lists the requested provider names in request order,
// and every name appears in exactly one of ToolResults or Errors.
type ComparisonResult struct {
	// Query is the text that was fanned out.
	Query string

	// Providers preserves the requested provider order. Serialization and
	// iteration follow this order regardless of completion order.
	Providers []string

	// ToolResults maps provider name to its ranked chunks.
	ToolResults map[string][]RagResult

	// Errors maps provider name to a human-readable failure cause.
	Errors map[string]string

	// Evaluation is set when the optional LLM judgment ran successfully.
	Evaluation *Evaluation
}

// NewComparisonResult creates an empty comparison for the given query and
// requested provider order. The provider slice is copied so later mutation
// by the caller cannot break the ordering invariant.
func NewComparisonResult(query string, providers []string) *ComparisonResult {
	order := make([]string, len(providers))
	copy(order, providers)
	return &ComparisonResult{
		Query:       query,
		Providers:   order,
		ToolResults: make(map[string][]RagResult, len(providers)),
		Errors:      make(map[string]string),
	}
}

// SetResults records a provider's successful retrieval. Any previously
// recorded error for the provider is discarded so the key sets stay
// disjoint.
func (c *ComparisonResult) SetResults(provider string, chunks []RagResult) {
	delete(c.Errors, provider)
	c.ToolResults[provider] = chunks
}

// SetError records a provider's failure. Any previously recorded results
// for the provider are discarded so the key sets stay disjoint.
func (c *ComparisonResult) SetError(provider, message string) {
	delete(c.ToolResults, provider)
	c.Errors[provider] = message
}

// Validate checks the structural invariant: every requested provider is
// accounted for in exactly one of ToolResults or Errors, and no
// unrequested provider appears in either.
func (c *ComparisonResult) Validate() error {
	requested := make(map[string]struct{}, len(c.Providers))
	for _, name := range c.Providers {
		requested[name] = struct{}{}
	}

	for _, name := range c.Providers {
		_, ok := c.ToolResults[name]
		_, failed := c.Errors[name]
		switch {
		case ok && failed:
			return fmt.Errorf("provider %q appears in both tool_results and errors", name)
		case !ok && !failed:
			return fmt.Errorf("provider %q missing from both tool_results and errors", name)
		}
	}

	for name := range c.ToolResults {
		if _, ok := requested[name]; !ok {
			return fmt.Errorf("tool_results contains unrequested provider %q", name)
		}
	}
	for name := range c.Errors {
		if _, ok := requested[name]; !ok {
			return fmt.Errorf("errors contains unrequested provider %q", name)
		}
	}

	return nil
}

// NormalizeMetadata reduces a metadata map to JSON-safe primitives so
// serialization is deterministic and never fails. Strings, bools, nil,
// and numbers pass through (numbers as float64); nested maps and slices
// normalize recursively; everything else degrades to its string
// representation.
func NormalizeMetadata(meta map[string]any) map[string]any {
	if meta == nil {
		return nil
	}
	out := make(map[string]any, len(meta))
	for k, v := range meta {
		out[k] = normalizeValue(v)
	}
	return out
}

func normalizeValue(v any) any {
	switch val := v.(type) {
	case nil, string, bool, float64:
		return val
	case float32:
		return float64(val)
	case int:
		return float64(val)
	case int32:
		return float64(val)
	case int64:
		return float64(val)
	case uint:
		return float64(val)
	case map[string]any:
		return NormalizeMetadata(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = normalizeValue(item)
		}
		return out
	case []string:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = item
		}
		return out
	default:
		return fmt.Sprintf("%v", val)
	}
}

// SortedKeys returns the keys of a string-keyed map in sorted order.
// Diagnostics and deterministic iteration over unordered maps use it.
func SortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
