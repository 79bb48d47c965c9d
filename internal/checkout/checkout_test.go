package checkout

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParse_KnownFormats(t *testing.T) {
	want := time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)
	for _, raw := range []string{"01.03.2024", "2024-03-01", "03/01/2024", "1.3.2024", "2024-03-01T18:30:00Z", "Mar 1, 2024"} {
		got, ok := Parse(raw)
		assert.True(t, ok, raw)
		assert.Equal(t, want, got, raw)
	}
}

func TestParse_Unparseable(t *testing.T) {
	for _, raw := range []string{"", "  ", "soon", "32.13.2024"} {
		_, ok := Parse(raw)
		assert.False(t, ok, raw)
	}
}

func TestPassed_DateOnly(t *testing.T) {
	now := time.Date(2024, time.March, 5, 9, 0, 0, 0, time.UTC)
	assert.True(t, Passed("01.03.2024", now))
	assert.True(t, Passed("2024-03-04", now))
	assert.False(t, Passed("2024-03-05", now))
	assert.False(t, Passed("2024-03-05T23:59:00Z", now))
	assert.False(t, Passed("06.03.2024", now))
	assert.False(t, Passed("not a date", now))
}
