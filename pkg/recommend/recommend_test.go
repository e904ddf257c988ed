package recommend

import (
	"testing"

	"librarium/pkg/catalog"
	"librarium/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func addBook(t *testing.T, s *catalog.Store, id, title, genre string, copies, borrowCount int) {
	t.Helper()
	book, err := models.NewBook(id, title, "Author", genre, copies, copies)
	require.NoError(t, err)
	book.BorrowCount = borrowCount
	s.AddBook(book)
}

func addUser(t *testing.T, s *catalog.Store, id, name string, interests ...string) {
	t.Helper()
	user, err := models.NewUser(id, name, interests)
	require.NoError(t, err)
	s.AddUser(user)
}

func TestRecommendUnknownUser(t *testing.T) {
	s := catalog.New()
	e := New(s)
	assert.Empty(t, e.Recommend("missing", 5))
}

func TestRecommendNonPositiveK(t *testing.T) {
	s := catalog.New()
	addBook(t, s, "b1", "Book", "tech", 1, 0)
	addUser(t, s, "u1", "Alice", "tech")
	e := New(s)

	assert.Empty(t, e.Recommend("u1", 0))
	assert.Empty(t, e.Recommend("u1", -3))
}

func TestRecommendFallbackScore(t *testing.T) {
	// Isolated user with no history: the graph yields nothing, so the
	// whole catalog is scored by interest match and popularity.
	s := catalog.New()
	addBook(t, s, "b1", "Tech Book", "tech", 1, 0)
	addUser(t, s, "u1", "Alice", "tech")
	e := New(s)

	recs := e.Recommend("u1", 5)
	require.Len(t, recs, 1)
	assert.Equal(t, "b1", recs[0].Book.ID)
	assert.InDelta(t, 0.7, recs[0].Score, 1e-9)
}

func TestRecommendFallbackRetainsOnlyPositive(t *testing.T) {
	s := catalog.New()
	addBook(t, s, "b1", "Unloved", "romance", 1, 0)
	addBook(t, s, "b2", "Popular", "romance", 1, 4)
	addUser(t, s, "u1", "Alice", "tech")
	e := New(s)

	recs := e.Recommend("u1", 5)
	require.Len(t, recs, 1)
	assert.Equal(t, "b2", recs[0].Book.ID)
	assert.InDelta(t, 0.4, recs[0].Score, 1e-9)
}

func TestRecommendFallbackExcludesBorrowed(t *testing.T) {
	s := catalog.New()
	addBook(t, s, "b1", "Only Book", "tech", 1, 0)
	addUser(t, s, "u1", "Alice", "tech")
	require.NoError(t, s.BorrowBook("u1", "b1"))
	e := New(s)

	// b1 is both the user's whole graph neighborhood and the whole
	// catalog, and it is excluded in each phase.
	assert.Empty(t, e.Recommend("u1", 5))
}

func TestRecommendViaGraph(t *testing.T) {
	// u1 borrowed b1; u2 borrowed b1 and b2. BFS from u1 reaches b2 at
	// depth 3 through b1 and u2.
	s := catalog.New()
	addBook(t, s, "b1", "Shared Book", "fiction", 2, 0)
	addBook(t, s, "b2", "Discovered Book", "tech", 1, 0)
	addUser(t, s, "u1", "Alice", "tech")
	addUser(t, s, "u2", "Bob")
	require.NoError(t, s.BorrowBook("u1", "b1"))
	require.NoError(t, s.BorrowBook("u2", "b1"))
	require.NoError(t, s.BorrowBook("u2", "b2"))
	e := New(s)

	recs := e.Recommend("u1", 5)
	require.Len(t, recs, 1)
	assert.Equal(t, "b2", recs[0].Book.ID)
	// 1/(1+3) proximity + 0.5 interest + 1/10 popularity.
	assert.InDelta(t, 0.25+0.5+0.1, recs[0].Score, 1e-9)
}

func TestRecommendExcludesCurrentlyBorrowed(t *testing.T) {
	s := catalog.New()
	addBook(t, s, "b1", "Held Book", "tech", 2, 0)
	addBook(t, s, "b2", "Other Book", "tech", 1, 0)
	addUser(t, s, "u1", "Alice", "tech")
	addUser(t, s, "u2", "Bob")
	require.NoError(t, s.BorrowBook("u1", "b1"))
	require.NoError(t, s.BorrowBook("u2", "b1"))
	require.NoError(t, s.BorrowBook("u2", "b2"))
	e := New(s)

	recs := e.Recommend("u1", 5)
	for _, rec := range recs {
		assert.NotEqual(t, "b1", rec.Book.ID)
	}

	// Once returned, the book becomes a candidate again at depth 1.
	require.NoError(t, s.ReturnBook("u1", "b1"))
	recs = e.Recommend("u1", 5)
	require.NotEmpty(t, recs)
	assert.Equal(t, "b1", recs[0].Book.ID)
	// 1/(1+1) proximity + 0.5 interest + 2/10 popularity.
	assert.InDelta(t, 0.5+0.5+0.2, recs[0].Score, 1e-9)
}

func TestRecommendRanking(t *testing.T) {
	s := catalog.New()
	// Same fallback score by interest; popularity then title decide.
	addBook(t, s, "b1", "Zebra", "tech", 1, 5)
	addBook(t, s, "b2", "Apple", "tech", 1, 5)
	addBook(t, s, "b3", "Middle", "tech", 1, 8)
	addUser(t, s, "u1", "Alice", "tech")
	e := New(s)

	recs := e.Recommend("u1", 5)
	require.Len(t, recs, 3)
	assert.Equal(t, "b3", recs[0].Book.ID)
	assert.Equal(t, "b2", recs[1].Book.ID)
	assert.Equal(t, "b1", recs[2].Book.ID)
}

func TestRecommendTruncatesToK(t *testing.T) {
	s := catalog.New()
	addBook(t, s, "b1", "A", "tech", 1, 1)
	addBook(t, s, "b2", "B", "tech", 1, 2)
	addBook(t, s, "b3", "C", "tech", 1, 3)
	addUser(t, s, "u1", "Alice", "tech")
	e := New(s)

	recs := e.Recommend("u1", 2)
	require.Len(t, recs, 2)
	assert.Equal(t, "b3", recs[0].Book.ID)
	assert.Equal(t, "b2", recs[1].Book.ID)
}

func TestPopularityBonusCap(t *testing.T) {
	s := catalog.New()
	addBook(t, s, "b1", "Blockbuster", "tech", 1, 50)
	addUser(t, s, "u1", "Alice")
	e := New(s)

	recs := e.Recommend("u1", 5)
	require.Len(t, recs, 1)
	// Bonus caps at 1.0 regardless of borrow count.
	assert.InDelta(t, 1.0, recs[0].Score, 1e-9)
}
