// -----
// Dedup - 64-bit SimHash near-duplicate detection with union-find
// clustering
// -----

package dedup

import (
	"hash/fnv"
	"math/bits"
	"strings"
	"unicode"
)

// DefaultThreshold is the Hamming distance at or below which two documents
// are considered near-duplicates.
const DefaultThreshold = 3

const shingleSize = 3

// Fingerprint computes the 64-bit SimHash of a text: token 3-shingles are
// hashed and their bits vote on each output position.
func Fingerprint(text string) uint64 {
	tokens := tokenize(text)
	if len(tokens) == 0 {
		return 0
	}

	var votes [64]int
	emit := func(h uint64) {
		for i := 0; i < 64; i++ {
			if h&(1<<uint(i)) != 0 {
				votes[i]++
			} else {
				votes[i]--
			}
		}
	}

	if len(tokens) < shingleSize {
		emit(hashTokens(tokens))
	} else {
		for i := 0; i+shingleSize <= len(tokens); i++ {
			emit(hashTokens(tokens[i : i+shingleSize]))
		}
	}

	var fp uint64
	for i := 0; i < 64; i++ {
		if votes[i] > 0 {
			fp |= 1 << uint(i)
		}
	}
	return fp
}

// Distance returns the Hamming distance between two fingerprints.
func Distance(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}

// Similar reports whether two fingerprints fall within the threshold.
func Similar(a, b uint64, threshold int) bool {
	return Distance(a, b) <= threshold
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

func hashTokens(tokens []string) uint64 {
	h := fnv.New64a()
	for i, t := range tokens {
		if i > 0 {
			h.Write([]byte{0})
		}
		h.Write([]byte(t))
	}
	return h.Sum64()
}

// Cluster groups documents whose pairwise fingerprint distance is within
// the threshold, using union-find so transitively-similar documents land
// in one cluster. Returns cluster index per input position; representatives
// are the first member seen.
func Cluster(fingerprints []uint64, threshold int) []int {
	n := len(fingerprints)
	parent := make([]int, n)
	for i := range parent {
		parent[i] = i
	}

	var find func(int) int
	find = func(x int) int {
		for parent[x] != x {
			parent[x] = parent[parent[x]]
			x = parent[x]
		}
		return x
	}
	union := func(a, b int) {
		ra, rb := find(a), find(b)
		if ra == rb {
			return
		}
		// Smaller root wins so the first-seen member represents the cluster.
		if ra < rb {
			parent[rb] = ra
		} else {
			parent[ra] = rb
		}
	}

	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if Similar(fingerprints[i], fingerprints[j], threshold) {
				union(i, j)
			}
		}
	}

	clusters := make([]int, n)
	for i := range clusters {
		clusters[i] = find(i)
	}
	return clusters
}

// Deduplicate returns the indexes of cluster representatives, preserving
// input order. Non-representatives are near-duplicates of an earlier doc.
func Deduplicate(fingerprints []uint64, threshold int) []int {
	clusters := Cluster(fingerprints, threshold)
	var kept []int
	for i, root := range clusters {
		if root == i {
			kept = append(kept, i)
		}
	}
	return kept
}
