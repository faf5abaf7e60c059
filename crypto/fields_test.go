package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRandomFieldElementDistinct(t *testing.T) {
	a, err := RandomFieldElement()
	require.NoError(t, err)
	b, err := RandomFieldElement()
	require.NoError(t, err)

	assert.False(t, a.Equal(&b), "two random scalars should not collide")
}

func TestFieldElementStringRoundTrip(t *testing.T) {
	el, err := RandomFieldElement()
	require.NoError(t, err)

	parsed, err := FieldElementFromString(el.String())
	require.NoError(t, err)
	assert.True(t, el.Equal(&parsed))
}

func TestFieldElementFromStringRejectsGarbage(t *testing.T) {
	_, err := FieldElementFromString("not-a-number")
	assert.Error(t, err)
}

func TestHashToFieldDeterministic(t *testing.T) {
	a := HashToField([]byte("payload"))
	b := HashToField([]byte("payload"))
	c := HashToField([]byte("payload!"))

	assert.True(t, a.Equal(&b))
	assert.False(t, a.Equal(&c))
}

func TestFieldElementFromBytesReduces(t *testing.T) {
	// 64 bytes of 0xff is far above the modulus; the result must still be a
	// canonical field element.
	big := make([]byte, 64)
	for i := range big {
		big[i] = 0xff
	}

	el := FieldElementFromBytes(big)
	reparsed, err := FieldElementFromString(el.String())
	require.NoError(t, err)
	assert.True(t, el.Equal(&reparsed))
}
