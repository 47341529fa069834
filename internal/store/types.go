// Package store holds the per-case retrieval indexes: an HNSW vector index
// persisted under the vector directory and an in-memory BM25 index rebuilt
// lazily from the document store.
//
// Every case gets its own namespace so retrieval can never cross case
// boundaries.
package store

import "strings"

// maxNamespaceLen caps the namespace directory name.
const maxNamespaceLen = 63

// VectorHit is a single nearest-neighbor result.
type VectorHit struct {
	ChunkID  string
	Distance float32
	// Score is 1/(1+distance): 1.0 at distance zero, decaying toward zero.
	Score float64
}

// LexicalHit is a single BM25 result.
type LexicalHit struct {
	ChunkID string
	Score   float64
}

// CaseNamespace derives the index namespace for a case ID. Characters
// outside [a-zA-Z0-9_] become underscores and the result is capped at 63
// characters including the prefix.
func CaseNamespace(caseID string) string {
	var b strings.Builder
	b.WriteString("case_")
	for _, r := range caseID {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	ns := b.String()
	if len(ns) > maxNamespaceLen {
		ns = ns[:maxNamespaceLen]
	}
	return ns
}

// distanceToScore converts an HNSW distance to a similarity score in (0, 1].
func distanceToScore(distance float32) float64 {
	return 1.0 / (1.0 + float64(distance))
}
