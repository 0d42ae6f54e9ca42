// Package protocol defines the wire types of a tool call and their canonical
// JSON encoding.
package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// ToolCall represents a request to execute a tool. Raw, when set, holds the
// undecoded arguments and takes precedence over Arguments.
type ToolCall struct {
	Name      string          `json:"name"`
	Arguments map[string]any  `json:"arguments,omitempty"`
	Raw       json.RawMessage `json:"-"`
}

// DecodeArguments returns the call arguments. Raw arguments must be a JSON
// object; null or empty means no arguments.
func (c *ToolCall) DecodeArguments() (map[string]any, error) {
	raw := bytes.TrimSpace(c.Raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		if c.Arguments == nil {
			return map[string]any{}, nil
		}
		return c.Arguments, nil
	}
	if raw[0] != '{' {
		return nil, fmt.Errorf("arguments must be a JSON object")
	}
	var args map[string]any
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, fmt.Errorf("arguments are not valid JSON: %w", err)
	}
	return args, nil
}

// Content block types.
const (
	ContentText = "text"
	ContentJSON = "json"
)

// ContentBlock is one piece of a result.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
	Data any    `json:"data,omitempty"`
}

// ErrorDetail describes a failed call.
type ErrorDetail struct {
	Code         string         `json:"code"`
	Category     string         `json:"category"`
	Message      string         `json:"message"`
	Retryable    bool           `json:"retryable"`
	RetryAfterMs int64          `json:"retry_after_ms,omitempty"`
	Fields       []string       `json:"fields,omitempty"`
	Context      map[string]any `json:"context,omitempty"`
	Suggestions  []string       `json:"suggestions,omitempty"`
}

// ToolResult represents the result of a tool execution.
type ToolResult struct {
	Content []ContentBlock `json:"content"`
	IsError bool           `json:"is_error"`
	Error   *ErrorDetail   `json:"error,omitempty"`
}

// ErrorResult builds the result of a failed call.
func ErrorResult(detail *ErrorDetail) *ToolResult {
	return &ToolResult{
		Content: []ContentBlock{{Type: ContentText, Text: "ERROR: " + detail.Code + ": " + detail.Message}},
		IsError: true,
		Error:   detail,
	}
}

// Text joins the text blocks of the result.
func (r *ToolResult) Text() string {
	var parts []string
	for _, b := range r.Content {
		if b.Type == ContentText {
			parts = append(parts, b.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// JSON returns the data of the first json block, or nil.
func (r *ToolResult) JSON() any {
	for _, b := range r.Content {
		if b.Type == ContentJSON {
			return b.Data
		}
	}
	return nil
}

// Marshal encodes v canonically: map keys sorted, struct fields in declaration
// order, no HTML escaping and a trailing newline. Equal values give equal bytes.
func Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
