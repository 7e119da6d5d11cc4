package coinflip

import (
	"math/rand"
	"time"
)

func init() {
	rand.Seed(time.Now().UnixNano())
}

// Chance returns true with probability p.
func Chance(p float64) bool {
	return rand.Float64() < p
}

// Between returns a uniform integer in [min, max].
func Between(min, max int64) int64 {
	return min + rand.Int63n(max-min+1)
}
