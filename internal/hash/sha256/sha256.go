// Package sha256 digests rendered feed documents by content.
package sha256

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
)

var (
	buildDateOpen  = []byte("<lastBuildDate>")
	buildDateClose = []byte("</lastBuildDate>")
)

// Hasher implements crawler.Hasher. The first <lastBuildDate> element is left
// out of the digest, so two builds with the same items share a value.
type Hasher struct{}

// New returns a content hasher.
func New() *Hasher {
	return &Hasher{}
}

// Hash returns the lowercase hex content digest of a feed document.
func (h *Hasher) Hash(data []byte) (string, error) {
	head, tail := splitBuildDate(data)
	return h.HashReader(io.MultiReader(bytes.NewReader(head), bytes.NewReader(tail)))
}

// HashReader returns the lowercase hex SHA-256 of everything read from r.
func (h *Hasher) HashReader(r io.Reader) (string, error) {
	digest := sha256.New()
	if _, err := io.Copy(digest, r); err != nil {
		return "", fmt.Errorf("hash feed: %w", err)
	}
	return hex.EncodeToString(digest.Sum(nil)), nil
}

// splitBuildDate returns the bytes before and after the build date element.
// Documents without a complete element come back whole in head.
func splitBuildDate(data []byte) (head, tail []byte) {
	start := bytes.Index(data, buildDateOpen)
	if start < 0 {
		return data, nil
	}
	end := bytes.Index(data[start:], buildDateClose)
	if end < 0 {
		return data, nil
	}
	return data[:start], data[start+end+len(buildDateClose):]
}
