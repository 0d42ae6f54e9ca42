package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeArguments(t *testing.T) {
	tests := []struct {
		name    string
		call    ToolCall
		want    map[string]any
		wantErr string
	}{
		{"no arguments", ToolCall{Name: "x"}, map[string]any{}, ""},
		{"map arguments", ToolCall{Arguments: map[string]any{"a": 1}}, map[string]any{"a": 1}, ""},
		{"raw object", ToolCall{Raw: json.RawMessage(` {"path":"src","n":2}`)}, map[string]any{"path": "src", "n": 2.0}, ""},
		{"raw null", ToolCall{Raw: json.RawMessage(`null`)}, map[string]any{}, ""},
		{"raw array", ToolCall{Raw: json.RawMessage(`["a"]`)}, nil, "must be a JSON object"},
		{"raw garbage", ToolCall{Raw: json.RawMessage(`{"a":`)}, nil, "not valid JSON"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.call.DecodeArguments()
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMarshalIsCanonical(t *testing.T) {
	result := &ToolResult{Content: []ContentBlock{
		{Type: ContentText, Text: "a < b && c"},
		{Type: ContentJSON, Data: map[string]any{"zeta": 1, "alpha": []string{"x"}, "mid": map[string]any{"b": true, "a": nil}}},
	}}

	first, err := Marshal(result)
	require.NoError(t, err)
	for range 5 {
		again, err := Marshal(result)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}

	want := `{"content":[{"type":"text","text":"a < b && c"},` +
		`{"type":"json","data":{"alpha":["x"],"mid":{"a":null,"b":true},"zeta":1}}],"is_error":false}` + "\n"
	assert.Equal(t, want, string(first))
}

func TestErrorResult(t *testing.T) {
	res := ErrorResult(&ErrorDetail{Code: "TOOL_NOT_FOUND", Category: "user", Message: "tool not found: nope"})
	assert.True(t, res.IsError)
	assert.Equal(t, "ERROR: TOOL_NOT_FOUND: tool not found: nope", res.Text())
	assert.Nil(t, res.JSON())
}
