package application

import (
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	"golang.org/x/text/cases"

	"github.com/ahrav/rag-arena/internal/domain"
)

// DefaultSimilarityThreshold decides when two chunks from different
// providers count as the same piece of content.
const DefaultSimilarityThreshold = 0.85

// foldCaser performs Unicode case folding for caseless chunk
// comparison. cases.Fold handles characters that simple lowercasing
// misses.
var foldCaser = cases.Fold()

// PairOverlap describes how much two providers' result sets agree for
// one query.
type PairOverlap struct {
	// ProviderA and ProviderB identify the compared pair, in requested
	// order.
	ProviderA string `json:"provider_a"`
	ProviderB string `json:"provider_b"`

	// Shared counts chunks of A that have a near-duplicate in B.
	Shared int `json:"shared"`

	// OnlyA and OnlyB count chunks unique to each side.
	OnlyA int `json:"only_a"`
	OnlyB int `json:"only_b"`

	// Jaccard is Shared over the size of the union.
	Jaccard float64 `json:"jaccard"`
}

// DiffReport summarizes pairwise agreement between the providers of one
// comparison. Display layers use it to highlight where providers
// disagree.
type DiffReport struct {
	Query string        `json:"query"`
	Pairs []PairOverlap `json:"pairs"`
}

// Diff computes pairwise overlap between every provider pair that
// returned results, in requested-provider order. Chunks count as shared
// when their folded texts reach the similarity threshold; a
// non-positive threshold selects the default.
func Diff(result *domain.ComparisonResult, threshold float64) DiffReport {
	if threshold <= 0 {
		threshold = DefaultSimilarityThreshold
	}

	report := DiffReport{Query: result.Query}
	for i := 0; i < len(result.Providers); i++ {
		a := result.Providers[i]
		chunksA, ok := result.ToolResults[a]
		if !ok {
			continue
		}
		for j := i + 1; j < len(result.Providers); j++ {
			b := result.Providers[j]
			chunksB, ok := result.ToolResults[b]
			if !ok {
				continue
			}
			report.Pairs = append(report.Pairs, overlap(a, b, chunksA, chunksB, threshold))
		}
	}
	return report
}

// overlap matches A's chunks against B's greedily. Each chunk of B is
// consumed by at most one chunk of A.
func overlap(nameA, nameB string, chunksA, chunksB []domain.RagResult, threshold float64) PairOverlap {
	pair := PairOverlap{ProviderA: nameA, ProviderB: nameB}

	used := make([]bool, len(chunksB))
	for _, a := range chunksA {
		matched := false
		for i, b := range chunksB {
			if used[i] {
				continue
			}
			if ChunkSimilarity(a.Text, b.Text) >= threshold {
				used[i] = true
				matched = true
				break
			}
		}
		if matched {
			pair.Shared++
		} else {
			pair.OnlyA++
		}
	}
	for _, consumed := range used {
		if !consumed {
			pair.OnlyB++
		}
	}

	if union := pair.Shared + pair.OnlyA + pair.OnlyB; union > 0 {
		pair.Jaccard = float64(pair.Shared) / float64(union)
	} else {
		// Two empty result sets agree perfectly.
		pair.Jaccard = 1.0
	}
	return pair
}

// ChunkSimilarity returns the normalized Levenshtein similarity of two
// chunk texts in [0, 1], after whitespace trimming and case folding.
func ChunkSimilarity(a, b string) float64 {
	a = foldCaser.String(strings.TrimSpace(a))
	b = foldCaser.String(strings.TrimSpace(b))

	if a == b {
		return 1.0
	}
	longest := utf8.RuneCountInString(a)
	if n := utf8.RuneCountInString(b); n > longest {
		longest = n
	}
	if longest == 0 {
		return 1.0
	}

	distance := levenshtein.ComputeDistance(a, b)
	return 1.0 - float64(distance)/float64(longest)
}
