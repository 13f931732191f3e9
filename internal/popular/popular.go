// Package popular picks the articles to feature in a post.
//
// Zenn feeds carry no like counts, so popularity is approximated: the most
// recent articles form a window and the selection is drawn from it at random.
package popular

import (
	"math/rand/v2"
	"sort"

	"github.com/TobiSchelling/ZennPost/internal/article"
)

// Oversample sizes the recency window as a multiple of the requested limit.
const Oversample = 4

// Select returns up to limit articles. A non-nil seed makes the draw
// reproducible for the same input order.
func Select(articles []article.Article, limit int, seed *int64) []article.Article {
	if limit <= 0 {
		return []article.Article{}
	}

	sorted := ByRecency(articles)
	if len(sorted) <= limit {
		return sorted
	}

	window := min(limit*Oversample, len(sorted))
	pool := sorted[:window]

	r := newRand(seed)
	// Partial Fisher-Yates: pool[:limit] ends up holding the draw in order.
	for i := 0; i < limit; i++ {
		j := i + r.IntN(len(pool)-i)
		pool[i], pool[j] = pool[j], pool[i]
	}

	out := make([]article.Article, limit)
	copy(out, pool[:limit])
	return out
}

// ByRecency returns a copy of articles sorted newest first. Ties keep input order.
func ByRecency(articles []article.Article) []article.Article {
	sorted := make([]article.Article, len(articles))
	copy(sorted, articles)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].PublishedAt.After(sorted[j].PublishedAt)
	})
	return sorted
}

func newRand(seed *int64) *rand.Rand {
	if seed != nil {
		return rand.New(rand.NewPCG(uint64(*seed), 0))
	}
	return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
}
