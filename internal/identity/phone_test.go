package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"hotel-messaging/internal/models"
)

func TestNormalize_CollapsesFormatting(t *testing.T) {
	for _, raw := range []string{"+1 555 0100", "15550100", "+15550100", "(1) 555-0100", "+１５５５０１００"} {
		assert.Equal(t, models.PhoneKey("15550100"), Normalize(raw), raw)
	}
}

func TestNormalize_EmptyIsInvalid(t *testing.T) {
	assert.False(t, Normalize("").Valid())
	assert.False(t, Normalize("n/a").Valid())
	assert.True(t, Normalize("+34 600").Valid())
}

func TestAlternateForms(t *testing.T) {
	with, without := AlternateForms("+34 600 111 222")
	assert.Equal(t, "+34600111222", with)
	assert.Equal(t, "34600111222", without)

	with, without = AlternateForms("34600111222")
	assert.Equal(t, "+34600111222", with)
	assert.Equal(t, "34600111222", without)

	with, without = AlternateForms("   ")
	assert.Empty(t, with)
	assert.Empty(t, without)
}

func TestKeys_Deduplicates(t *testing.T) {
	assert.Equal(t, []string{"34600111222", "+34600111222"}, Keys("+34600111222"))
	assert.Empty(t, Keys(""))
}
