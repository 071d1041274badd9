package text

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abc", 5))
	assert.Equal(t, "ab...", Truncate("abcdef", 2))
	// "é" 占两个字节，不在中间截断。
	assert.Equal(t, "a...", Truncate("aéb", 2))
	assert.Equal(t, "abc", Truncate("abc", 0))
}

func TestCapitalize(t *testing.T) {
	assert.Equal(t, "Safe", Capitalize("safe"))
	assert.Equal(t, "Aggressive", Capitalize("AGGRESSIVE"))
	assert.Equal(t, "", Capitalize(""))
}

func TestFlags(t *testing.T) {
	assert.Equal(t, "✅ Enabled", Enabled(true))
	assert.Equal(t, "❌ Disabled", Enabled(false))
	assert.Equal(t, "No (Simulation)", RealTrade(false))
}
