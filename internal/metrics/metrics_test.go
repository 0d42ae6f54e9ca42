package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Result().Body)
	require.NoError(t, err)
	return string(body)
}

func TestTrackCall(t *testing.T) {
	m := New()

	m.TrackCall("read_file")(OutcomeOK)
	m.TrackCall("read_file")(OutcomeOK)
	done := m.TrackCall("edit_file")
	assert.Contains(t, scrape(t, m), "corrode_tool_calls_in_flight 1")
	done("HUNK_MISMATCH")

	body := scrape(t, m)
	assert.Contains(t, body, `corrode_tool_calls_total{outcome="ok",tool="read_file"} 2`)
	assert.Contains(t, body, `corrode_tool_calls_total{outcome="HUNK_MISMATCH",tool="edit_file"} 1`)
	assert.Contains(t, body, `corrode_tool_call_duration_seconds_count{tool="read_file"} 2`)
	assert.Contains(t, body, "corrode_tool_calls_in_flight 0")
	assert.Contains(t, body, "go_goroutines")
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() { m.TrackCall("x")(OutcomeOK) })
}

func TestSeparateRegistries(t *testing.T) {
	a, b := New(), New()
	a.TrackCall("get_crate")(OutcomeOK)
	assert.NotContains(t, scrape(t, b), `tool="get_crate"`)
}
