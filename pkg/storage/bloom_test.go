package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBloom(t *testing.T) {
	hashes := []string{
		"2c26b46b68ffc68ff99b453c1d30413413422d706483bfa0f98a5e886266e7ae",
		"fcde2b2edba56bf408601fb721fe9b5c338d10ee429ea04fae5511b68fbf8fb9",
	}

	b, err := MakeBloom(hashes)
	if err != nil {
		t.Fatal(err)
	}

	yes, err := BloomContains(b, hashes[0])
	if err != nil {
		t.Fatal(err)
	}

	assert.True(t, yes)

	no, err := BloomContains(b, "")
	if err != nil {
		t.Fatal(err)
	}

	assert.False(t, no)

	_, err = BloomContains([]byte{1, 2}, hashes[0])
	assert.Error(t, err)
}
