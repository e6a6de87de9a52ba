package core

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// Hash represents a cryptographic hash
type Hash string

// NewHash creates a new hash from data
func NewHash(data []byte) Hash {
	sum := sha256.Sum256(data)
	return Hash(hex.EncodeToString(sum[:]))
}

// String returns the string representation
func (h Hash) String() string {
	return string(h)
}

// IsEmpty checks if the hash is empty
func (h Hash) IsEmpty() bool {
	return h == ""
}

// Short returns the first 12 hex characters, enough to tell runs apart in logs
func (h Hash) Short() string {
	if len(h) <= 12 {
		return string(h)
	}
	return string(h[:12])
}

// Domain-specific hash types
type (
	RuleSetHash Hash
	CorpusHash  Hash
)

func (h RuleSetHash) String() string { return Hash(h).String() }
func (h CorpusHash) String() string  { return Hash(h).String() }

// ComputeUnorderedHash hashes a collection of canonical record encodings
// independently of their order. Records are sorted before hashing.
func ComputeUnorderedHash(records []string) Hash {
	sorted := make([]string, len(records))
	copy(sorted, records)
	sort.Strings(sorted)
	return ComputeOrderedHash(sorted)
}

// ComputeOrderedHash hashes records in the order given
func ComputeOrderedHash(records []string) Hash {
	var data strings.Builder
	for _, r := range records {
		data.WriteString(r)
		data.WriteByte('\n')
	}
	return NewHash([]byte(data.String()))
}
