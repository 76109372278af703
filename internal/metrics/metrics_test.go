package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecordInvocationAccumulates(t *testing.T) {
	c := New(nil)
	c.RecordInvocation(true, 10)
	c.RecordInvocation(false, 30)

	out := c.WriteProm()
	assert.Contains(t, out, "neo6_invoke_total 2")
	assert.Contains(t, out, "neo6_invoke_success_total 1")
	assert.Contains(t, out, "neo6_invoke_failure_total 1")
	assert.Contains(t, out, "neo6_invoke_duration_ms_avg 20")
}

func TestWritePromIncludesBreakerSnapshot(t *testing.T) {
	c := New(func() map[string]string {
		return map[string]string{"rest\x00ACCTBAL": "open"}
	})
	c.RecordInvocation(true, 5)

	out := c.WriteProm()
	assert.Contains(t, out, "neo6_breaker_state")
	assert.Contains(t, out, `endpoint="rest`)
}

func TestWritePromOmitsBreakerSectionWhenNil(t *testing.T) {
	c := New(nil)
	out := c.WriteProm()
	assert.NotContains(t, out, "neo6_breaker_state")
}

func TestBreakerStateValue(t *testing.T) {
	assert.Equal(t, 1, breakerStateValue("open"))
	assert.Equal(t, 2, breakerStateValue("half-open"))
	assert.Equal(t, 0, breakerStateValue("closed"))
}
