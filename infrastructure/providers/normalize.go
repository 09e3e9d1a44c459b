package providers

import "github.com/ahrav/rag-arena/internal/domain"

// Score normalization is adapter-specific policy. The helpers here only
// preserve the engine's invariant: every score that leaves an adapter
// lies in [0, 1].

// ClampScore forces a score into [0, 1].
func ClampScore(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// NormalizeByMax rescales raw scores by the maximum value in the list and
// clamps the outcome. Ranking back-ends with unbounded raw scores (BM25,
// dot products) use it so their best hit maps to 1.0.
func NormalizeByMax(chunks []domain.RagResult) []domain.RagResult {
	var maxScore float64
	for _, c := range chunks {
		if c.Score > maxScore {
			maxScore = c.Score
		}
	}
	if maxScore <= 0 {
		for i := range chunks {
			chunks[i].Score = 0
		}
		return chunks
	}
	for i := range chunks {
		chunks[i].Score = ClampScore(chunks[i].Score / maxScore)
	}
	return chunks
}
