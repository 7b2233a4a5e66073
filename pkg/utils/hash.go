package utils

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashText returns a stable hex digest of model and text, used as a cache key.
func HashText(model, text string) string {
	h := sha256.New()
	h.Write([]byte(model))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}

func HashString(input string) string {
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}
