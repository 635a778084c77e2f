package steps

import (
	"context"
	"sort"

	"github.com/morav/folio-backend/internal/domain"
)

// Retrieve runs one broad vector search for the routed query and partitions
// the hits: experience and project chunks are evidence, background chunks are
// flavor. Candidate slugs for the related rail come from evidence hits only.
func Retrieve(ctx context.Context, deps Deps, decision domain.RouteDecision) (RetrievalResult, error) {
	caps := deps.Caps.withDefaults()

	qvec, err := deps.Embedder.EmbedQuery(ctx, decision.RetrievalQuery)
	if err != nil {
		return RetrievalResult{}, classifyUpstream(FailureRetrievalUnavailable, err)
	}

	filter := map[string]any{domain.PayloadKeyKind: domain.RecordKindChunk}
	matches, err := deps.Vec.QueryMatches(ctx, qvec, caps.TopK, filter)
	if err != nil {
		return RetrievalResult{}, pipelineErr(FailureRetrievalUnavailable, err)
	}

	hits := make([]RetrievedChunk, 0, len(matches))
	for _, m := range matches {
		chunk, err := domain.ChunkFromPayload(m.Payload)
		if err != nil {
			deps.Log.Warn("skipping malformed chunk hit", "id", m.ID, "error", err)
			continue
		}
		hits = append(hits, RetrievedChunk{Chunk: chunk, Score: m.Score})
	}
	sortHits(hits)

	var out RetrievalResult
	seen := map[string]bool{}
	for _, hit := range hits {
		if hit.Chunk.ContentType.IsMain() {
			if len(out.Main) < caps.MaxMain {
				out.Main = append(out.Main, hit)
				if !seen[hit.Chunk.Slug] {
					seen[hit.Chunk.Slug] = true
					out.CandidateSlugs = append(out.CandidateSlugs, hit.Chunk.Slug)
				}
			}
			continue
		}
		if len(out.Background) < caps.MaxBackground {
			out.Background = append(out.Background, hit)
		}
	}

	deps.Log.Info("retrieval complete",
		"query_len", len(decision.RetrievalQuery),
		"hits", len(hits),
		"main", len(out.Main),
		"background", len(out.Background),
		"candidates", len(out.CandidateSlugs),
	)
	return out, nil
}

// sortHits orders by score descending, then updatedAt descending, then slug
// ascending, then chunk index ascending so equal-scored runs are stable.
func sortHits(hits []RetrievedChunk) {
	sort.SliceStable(hits, func(i, j int) bool {
		a, b := hits[i], hits[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if !a.Chunk.UpdatedAt.Equal(b.Chunk.UpdatedAt) {
			return a.Chunk.UpdatedAt.After(b.Chunk.UpdatedAt)
		}
		if a.Chunk.Slug != b.Chunk.Slug {
			return a.Chunk.Slug < b.Chunk.Slug
		}
		return a.Chunk.ChunkIndex < b.Chunk.ChunkIndex
	})
}
