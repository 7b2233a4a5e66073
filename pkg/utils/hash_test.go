package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHashText_SeparatesModelFromText(t *testing.T) {
	assert.NotEqual(t, HashText("ab", "c"), HashText("a", "bc"))
	assert.Equal(t, HashText("lsa", "doc"), HashText("lsa", "doc"))
	assert.Len(t, HashText("lsa", "doc"), 64)
}

func TestHashString(t *testing.T) {
	assert.Equal(t,
		"e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		HashString(""))
}
