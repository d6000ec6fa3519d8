package record

import (
	"strings"

	"github.com/cespare/xxhash/v2"
)

// ShingleHashes returns the deduplicated 64-bit hashes of all overlapping
// token n-grams of size n. The shingle set is derived state only; it is
// consumed by MinHash signature computation and never persisted.
//
// Returns nil when there are fewer than n tokens: such text cannot be
// meaningfully shingled and is excluded from near-duplicate indexing.
func ShingleHashes(tokens []string, n int) []uint64 {
	if n <= 0 || len(tokens) < n {
		return nil
	}

	seen := make(map[uint64]struct{}, len(tokens)-n+1)
	hashes := make([]uint64, 0, len(tokens)-n+1)

	var sb strings.Builder
	for i := 0; i+n <= len(tokens); i++ {
		sb.Reset()
		for j, tok := range tokens[i : i+n] {
			if j > 0 {
				sb.WriteByte(' ')
			}
			sb.WriteString(tok)
		}
		h := xxhash.Sum64String(sb.String())
		if _, dup := seen[h]; dup {
			continue
		}
		seen[h] = struct{}{}
		hashes = append(hashes, h)
	}

	return hashes
}
