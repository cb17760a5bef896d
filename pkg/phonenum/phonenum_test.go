package phonenum

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStripJID(t *testing.T) {
	assert.Equal(t, "5548912345678", StripJID("5548912345678@s.whatsapp.net"))
	assert.Equal(t, "5548912345678", StripJID("5548912345678:12@s.whatsapp.net"))
	assert.Equal(t, "5548912345678", StripJID("5548912345678@c.us"))
	assert.Equal(t, "123456789", StripJID("+12 345-67 89"))
	assert.Equal(t, "", StripJID("@s.whatsapp.net"))
}

func TestNormalizeInsertsNineForTwelveDigitBrazilianNumbers(t *testing.T) {
	assert.Equal(t, "5548912345678", Normalize("554812345678@s.whatsapp.net"))
	assert.Len(t, Normalize("554812345678"), 13)
}

func TestNormalizeLeavesOtherNumbersAlone(t *testing.T) {
	// Already modern 13-digit form.
	assert.Equal(t, "5548912345678", Normalize("5548912345678"))
	// Non-Brazilian numbers are never rewritten.
	assert.Equal(t, "341234567890", Normalize("341234567890"))
	assert.Equal(t, "15551234567", Normalize("15551234567@s.whatsapp.net"))
}

func TestVariants(t *testing.T) {
	assert.ElementsMatch(t,
		[]string{"5548912345678", "554812345678"},
		Variants("5548912345678"))
	assert.ElementsMatch(t,
		[]string{"554812345678", "5548912345678"},
		Variants("554812345678"))
	assert.Equal(t, []string{"15551234567"}, Variants("15551234567"))
}

func TestIsGroupAndIsLid(t *testing.T) {
	assert.True(t, IsGroup("1203630@g.us"))
	assert.False(t, IsGroup("5548912345678@s.whatsapp.net"))
	assert.True(t, IsLid("98765@lid"))
}
