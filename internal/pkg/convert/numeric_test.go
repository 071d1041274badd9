package convert

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToFloat64(t *testing.T) {
	f, err := ToFloat64(" 1.5 ")
	require.NoError(t, err)
	assert.Equal(t, 1.5, f)

	f, err = ToFloat64(json.Number("2"))
	require.NoError(t, err)
	assert.Equal(t, 2.0, f)

	_, err = ToFloat64("abc")
	assert.Error(t, err)
	_, err = ToFloat64(true)
	assert.Error(t, err)
	_, err = ToFloat64("NaN")
	assert.Error(t, err)
}

func TestToInt(t *testing.T) {
	n, err := ToInt("20")
	require.NoError(t, err)
	assert.Equal(t, 20, n)

	n, err = ToInt(float64(7))
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	_, err = ToInt(7.5)
	assert.Error(t, err)
	_, err = ToInt("7.5")
	assert.Error(t, err)
}

func TestToBool(t *testing.T) {
	for _, in := range []any{true, "true", "ON", "yes", "1", float64(1)} {
		b, err := ToBool(in)
		require.NoError(t, err, in)
		assert.True(t, b, in)
	}
	for _, in := range []any{false, "false", "off", "0", 0} {
		b, err := ToBool(in)
		require.NoError(t, err, in)
		assert.False(t, b, in)
	}
	_, err := ToBool("maybe")
	assert.Error(t, err)
	_, err = ToBool(2)
	assert.Error(t, err)
}

func TestToStringList(t *testing.T) {
	out, err := ToStringList("BTCUSDT, ETHUSDT,,")
	require.NoError(t, err)
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, out)

	out, err = ToStringList([]any{"a", " b "})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, out)

	_, err = ToStringList([]any{"a", 1})
	assert.Error(t, err)
	_, err = ToStringList(3)
	assert.Error(t, err)
}
