package prompt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKey_OmitsEmptyOptionalComponents(t *testing.T) {
	withSession := Key(KeyInputs{Version: "v1", TemplateHash: "t", CodeHash: "c", SessionContextHash: "s"})
	withoutSession := Key(KeyInputs{Version: "v1", TemplateHash: "t", CodeHash: "c"})
	assert.NotEqual(t, withSession, withoutSession)
}

func TestKey_Deterministic(t *testing.T) {
	a := Key(KeyInputs{Version: "v1", TemplateHash: "t", CodeHash: "c"})
	b := Key(KeyInputs{Version: "v1", TemplateHash: "t", CodeHash: "c"})
	assert.Equal(t, a, b)
}

func TestCache_GetSetRoundTrip(t *testing.T) {
	c := NewCache(10, 0, 0)
	key := Key(KeyInputs{Version: "v1", TemplateHash: "t", CodeHash: "c"})
	c.Set(key, "rendered prompt")

	v, ok := c.Get(key, "t", time.Millisecond)
	assert.True(t, ok)
	assert.Equal(t, "rendered prompt", v)

	stats := c.TemplateStats("t")
	assert.Equal(t, int64(1), stats.Hits)
}

func TestCache_MissRecordsTemplateStats(t *testing.T) {
	c := NewCache(10, 0, 0)
	_, ok := c.Get("missing-key", "t", time.Millisecond)
	assert.False(t, ok)
	assert.Equal(t, int64(1), c.TemplateStats("t").Misses)
}
