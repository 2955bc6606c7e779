package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCutoffs(t *testing.T) {
	now := time.Unix(1000, 0)
	c := NewCutoffs(now, 10*time.Second, 20*time.Second)
	assert.Equal(t, Cutoffs{UpdatedBefore: 990, CreatedBefore: 980}, c)

	assert.False(t, c.Expired(999, 999), "fresh")
	assert.False(t, c.Expired(980, 990), "exactly at both limits")
	assert.True(t, c.Expired(999, 989), "idle")
	assert.True(t, c.Expired(979, 999), "past lifetime while recently updated")
}

func TestCutoffsTruncateToSeconds(t *testing.T) {
	now := time.Unix(1000, 900_000_000)
	c := NewCutoffs(now, 1500*time.Millisecond, 0)
	assert.Equal(t, int64(999), c.UpdatedBefore)
	assert.Equal(t, int64(1000), c.CreatedBefore)
}
