package core

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"unicode/utf8"
)

// GetHash calculates the SHA-256 hash of data
func GetHash(data []byte) Hash {
	return sha256.Sum256(data)
}

// EncodeString serializes s as a little-endian uint32 length followed by its bytes
func EncodeString(s string) []byte {
	out := make([]byte, 4+len(s))
	binary.LittleEndian.PutUint32(out, uint32(len(s)))
	copy(out[4:], s)
	return out
}

// DecodeString is the inverse of EncodeString. The input must be consumed exactly.
func DecodeString(data []byte) (string, error) {
	if len(data) < 4 {
		return "", fmt.Errorf("string header needs 4 bytes, got %d: %w", len(data), ErrInvalidArgument)
	}
	n := binary.LittleEndian.Uint32(data)
	if uint64(n) != uint64(len(data)-4) {
		return "", fmt.Errorf("string length %d does not match %d payload bytes: %w", n, len(data)-4, ErrInvalidArgument)
	}
	if !utf8.Valid(data[4:]) {
		return "", fmt.Errorf("string is not valid utf-8: %w", ErrInvalidArgument)
	}
	return string(data[4:]), nil
}
