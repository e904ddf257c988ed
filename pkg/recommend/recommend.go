package recommend

import (
	"sort"
	"strings"

	"librarium/pkg/catalog"
	"librarium/pkg/graph"
	"librarium/pkg/models"
)

// maxDepth bounds the BFS over the interaction graph: user -> book ->
// other user -> their book is three hops.
const maxDepth = 3

// Engine scores candidate books for a user by combining graph
// proximity, interest match, and global popularity. It only reads the
// store, never mutates it.
type Engine struct {
	store *catalog.Store
}

func New(store *catalog.Store) *Engine {
	return &Engine{store: store}
}

// Recommendation pairs a candidate book with its computed score.
type Recommendation struct {
	Book  models.Book
	Score float64
}

// Recommend returns up to k scored books for the user. Books the user
// currently holds are excluded. When the interaction graph yields no
// candidates (isolated user, empty graph), it falls back to scoring
// the whole catalog by interest match and popularity.
func (e *Engine) Recommend(userID string, k int) []Recommendation {
	if k <= 0 {
		return nil
	}
	user, ok := e.store.GetUser(userID)
	if !ok {
		return nil
	}

	scores := make(map[string]float64)
	for _, visit := range e.store.BFSFrom(graph.UserNode(userID), maxDepth) {
		if visit.Node.Kind != graph.KindBook {
			continue
		}
		bookID := visit.Node.ID
		if user.HasBorrowed(bookID) {
			continue
		}
		book, ok := e.store.GetBook(bookID)
		if !ok {
			continue
		}
		// Closer in the graph is better; BFS reports minimum depth.
		score := 1.0 / float64(1+visit.Depth)
		if user.HasInterest(book.Genre) {
			score += 0.5
		}
		score += popularityBonus(book.BorrowCount)
		if score > scores[bookID] {
			scores[bookID] = score
		}
	}

	if len(scores) == 0 {
		for _, book := range e.store.Books() {
			if user.HasBorrowed(book.ID) {
				continue
			}
			score := 0.0
			if user.HasInterest(book.Genre) {
				score += 0.7
			}
			score += popularityBonus(book.BorrowCount)
			if score > 0 {
				scores[book.ID] = score
			}
		}
	}

	ranked := make([]Recommendation, 0, len(scores))
	for bookID, score := range scores {
		book, ok := e.store.GetBook(bookID)
		if !ok {
			continue
		}
		ranked = append(ranked, Recommendation{Book: book, Score: score})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		if ranked[i].Book.BorrowCount != ranked[j].Book.BorrowCount {
			return ranked[i].Book.BorrowCount > ranked[j].Book.BorrowCount
		}
		return strings.ToLower(ranked[i].Book.Title) < strings.ToLower(ranked[j].Book.Title)
	})
	if len(ranked) > k {
		ranked = ranked[:k]
	}
	return ranked
}

// popularityBonus maps borrow counts into [0, 1]: count/10 capped at 1.
func popularityBonus(borrowCount int) float64 {
	bonus := float64(borrowCount) / 10.0
	if bonus > 1.0 {
		return 1.0
	}
	return bonus
}
