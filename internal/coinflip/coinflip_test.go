package coinflip

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChanceBounds(t *testing.T) {
	for i := 0; i < 100; i++ {
		assert.False(t, Chance(0))
		assert.True(t, Chance(1))
	}
}

func TestBetween(t *testing.T) {
	for i := 0; i < 1000; i++ {
		n := Between(1000000, 9999999)
		assert.GreaterOrEqual(t, n, int64(1000000))
		assert.LessOrEqual(t, n, int64(9999999))
	}

	assert.Equal(t, int64(5), Between(5, 5))
}
