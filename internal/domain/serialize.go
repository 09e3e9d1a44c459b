package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Serialization in this package is deterministic: field order is fixed by
// the data model, provider-keyed objects render in requested-provider
// order, and map-valued metadata renders with sorted keys (encoding/json
// behavior). Serializing the deserialized form of a serialized value
// produces an identical string, which downstream diffing relies on.

// MarshalJSON renders the result with normalized metadata so opaque
// values degrade to strings instead of failing the whole encode.
func (r RagResult) MarshalJSON() ([]byte, error) {
	type alias RagResult
	a := alias(r)
	a.Metadata = NormalizeMetadata(r.Metadata)
	return json.Marshal(a)
}

// MarshalJSON renders the comparison with tool_results and errors as JSON
// objects whose keys appear in requested-provider order, independent of
// Go map iteration order.
func (c *ComparisonResult) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')

	if err := writeField(&buf, "query", c.Query, false); err != nil {
		return nil, err
	}
	if err := writeField(&buf, "providers", c.Providers, true); err != nil {
		return nil, err
	}

	buf.WriteString(`,"tool_results":`)
	if err := writeOrderedObject(&buf, c.Providers, func(name string) (any, bool) {
		chunks, ok := c.ToolResults[name]
		return chunks, ok
	}); err != nil {
		return nil, err
	}

	buf.WriteString(`,"errors":`)
	if err := writeOrderedObject(&buf, c.Providers, func(name string) (any, bool) {
		msg, ok := c.Errors[name]
		return msg, ok
	}); err != nil {
		return nil, err
	}

	if c.Evaluation != nil {
		if err := writeField(&buf, "llm_evaluation", c.Evaluation, true); err != nil {
			return nil, err
		}
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// comparisonJSON mirrors the wire shape of ComparisonResult. Key order
// inside tool_results/errors is not needed on decode because the
// providers list carries the ordering.
type comparisonJSON struct {
	Query       string                 `json:"query"`
	Providers   []string               `json:"providers"`
	ToolResults map[string][]RagResult `json:"tool_results"`
	Errors      map[string]string      `json:"errors"`
	Evaluation  *Evaluation            `json:"llm_evaluation,omitempty"`
}

// UnmarshalJSON restores a comparison from its wire shape.
func (c *ComparisonResult) UnmarshalJSON(data []byte) error {
	var raw comparisonJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	c.Query = raw.Query
	c.Providers = raw.Providers
	c.ToolResults = raw.ToolResults
	c.Errors = raw.Errors
	c.Evaluation = raw.Evaluation

	if c.ToolResults == nil {
		c.ToolResults = make(map[string][]RagResult)
	}
	if c.Errors == nil {
		c.Errors = make(map[string]string)
	}
	return nil
}

// EncodeComparison serializes a comparison to its canonical textual form.
func EncodeComparison(c *ComparisonResult) (string, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("encode comparison: %w", err)
	}
	return string(data), nil
}

// DecodeComparison parses the canonical textual form back into a
// ComparisonResult.
func DecodeComparison(s string) (*ComparisonResult, error) {
	var c ComparisonResult
	if err := json.Unmarshal([]byte(s), &c); err != nil {
		return nil, fmt.Errorf("decode comparison: %w", err)
	}
	return &c, nil
}

// EncodeRun serializes a run record, including its configuration and
// query-set snapshots, to its canonical textual form.
func EncodeRun(r *Run) (string, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("encode run: %w", err)
	}
	return string(data), nil
}

// DecodeRun parses a persisted run record back into the identical
// in-memory structure used during execution.
func DecodeRun(s string) (*Run, error) {
	var r Run
	if err := json.Unmarshal([]byte(s), &r); err != nil {
		return nil, fmt.Errorf("decode run: %w", err)
	}
	return &r, nil
}

// writeField appends a comma-separated "key":value pair to the buffer.
func writeField(buf *bytes.Buffer, key string, value any, comma bool) error {
	if comma {
		buf.WriteByte(',')
	}
	buf.WriteByte('"')
	buf.WriteString(key)
	buf.WriteString(`":`)
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal field %q: %w", key, err)
	}
	buf.Write(data)
	return nil
}

// writeOrderedObject renders a JSON object whose keys appear in the given
// order, skipping keys the lookup reports absent.
func writeOrderedObject(buf *bytes.Buffer, order []string, lookup func(string) (any, bool)) error {
	buf.WriteByte('{')
	first := true
	for _, name := range order {
		value, ok := lookup(name)
		if !ok {
			continue
		}
		if !first {
			buf.WriteByte(',')
		}
		first = false
		key, err := json.Marshal(name)
		if err != nil {
			return err
		}
		buf.Write(key)
		buf.WriteByte(':')
		data, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("marshal entry %q: %w", name, err)
		}
		buf.Write(data)
	}
	buf.WriteByte('}')
	return nil
}
