// Package cachekey builds deterministic cache keys from request parameters.
// Logically identical requests must map to the same key regardless of the
// order their parameters were supplied in; both the deduplication coordinator
// and the TTL cache store depend on this.
package cachekey

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// Build returns the key for a plain string identifier: "namespace:identifier".
func Build(namespace, identifier string) string {
	return namespace + ":" + identifier
}

// BuildParams canonicalizes a structured identifier and returns
// "namespace:<sha256 of canonical form>". Parameter keys are sorted
// lexicographically before serialization, so field order never changes the
// resulting key.
func BuildParams(namespace string, params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(params[k])
	}

	sum := sha256.Sum256([]byte(b.String()))
	return namespace + ":" + hex.EncodeToString(sum[:])
}
