package grammar

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSetCompilesEveryLanguage(t *testing.T) {
	set, err := NewSet()
	require.NoError(t, err)
	t.Cleanup(set.Close)

	for _, l := range Languages() {
		g := set.Grammar(l)
		require.NotNil(t, g, l.String())
		assert.Equal(t, l, g.Language)
		assert.NotNil(t, g.SitterLanguage())
		assert.NotNil(t, g.Query())
		assert.NotNil(t, g.Outline())
		assert.NotEmpty(t, g.Extensions)
	}
}

func TestLookupByExtension(t *testing.T) {
	set, err := NewSet()
	require.NoError(t, err)
	t.Cleanup(set.Close)

	tests := []struct {
		path string
		want Language
	}{
		{"src/main.rs", Rust},
		{"cmd/server/main.go", Go},
		{"lib/util.PY", Python},
		{"web/app.mjs", JavaScript},
		{"web/app.ts", TypeScript},
		{"include/list.h", C},
		{"src/list.hpp", Cpp},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			g, ok := set.Lookup(tt.path)
			require.True(t, ok)
			assert.Equal(t, tt.want, g.Language)
		})
	}

	_, ok := set.Lookup("README.md")
	assert.False(t, ok)
	_, ok = set.Lookup("Makefile")
	assert.False(t, ok)
}

func TestParseLanguage(t *testing.T) {
	for _, l := range Languages() {
		got, ok := ParseLanguage(l.String())
		require.True(t, ok)
		assert.Equal(t, l, got)
	}

	got, ok := ParseLanguage(" C++ ")
	require.True(t, ok)
	assert.Equal(t, Cpp, got)

	got, ok = ParseLanguage("golang")
	require.True(t, ok)
	assert.Equal(t, Go, got)

	_, ok = ParseLanguage("cobol")
	assert.False(t, ok)
}

func TestLanguageText(t *testing.T) {
	text, err := TypeScript.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "typescript", string(text))

	_, err = Language(200).MarshalText()
	assert.Error(t, err)
	assert.Equal(t, []string{"go", "python", "javascript", "typescript", "rust", "c", "cpp"}, Names())
}
