package snapshot

import (
	"os"
	"path/filepath"
	"testing"

	"librarium/pkg/catalog"
	"librarium/pkg/graph"
	"librarium/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildStore(t *testing.T) *catalog.Store {
	t.Helper()
	s := catalog.New()

	for _, b := range []struct {
		id, title, author, genre string
		copies                   int
	}{
		{"b1", "Clean Code", "Robert C. Martin", "technology", 3},
		{"b2", "1984", "George Orwell", "fiction", 2},
	} {
		book, err := models.NewBook(b.id, b.title, b.author, b.genre, b.copies, b.copies)
		require.NoError(t, err)
		s.AddBook(book)
	}

	alice, err := models.NewUser("u1", "Alice", []string{"technology"})
	require.NoError(t, err)
	s.AddUser(alice)
	bob, err := models.NewUser("u2", "Bob", []string{"fiction"})
	require.NoError(t, err)
	s.AddUser(bob)

	require.NoError(t, s.BorrowBook("u1", "b1"))
	require.NoError(t, s.BorrowBook("u2", "b1"))
	require.NoError(t, s.BorrowBook("u2", "b2"))
	require.NoError(t, s.ReturnBook("u2", "b2"))

	s.EnqueueBorrowRequest("u1", "b2")
	s.EnqueueBorrowRequest("u2", "b1")
	return s
}

func TestSaveLoadRoundTrip(t *testing.T) {
	original := buildStore(t)
	path := filepath.Join(t.TempDir(), "state", "library.json")

	require.NoError(t, Save(original, path))

	loaded, skipped, err := Load(path)
	require.NoError(t, err)
	assert.Empty(t, skipped)

	for _, want := range original.Books() {
		got, ok := loaded.GetBook(want.ID)
		require.True(t, ok)
		assert.Equal(t, want, got)
	}
	assert.Len(t, loaded.Books(), len(original.Books()))

	for _, want := range original.Users() {
		got, ok := loaded.GetUser(want.ID)
		require.True(t, ok)
		assert.Equal(t, want.Name, got.Name)
		assert.Equal(t, want.Interests, got.Interests)
		assert.Equal(t, want.BorrowedBooks, got.BorrowedBooks)
		assert.Equal(t, want.History, got.History)
	}

	// FIFO waitlist order survives the round trip.
	requests := loaded.PendingRequests()
	require.Len(t, requests, 2)
	assert.Equal(t, "u1", requests[0].UserID)
	assert.Equal(t, "u2", requests[1].UserID)
}

func TestLoadRebuildsGraphFromHistory(t *testing.T) {
	original := buildStore(t)
	path := filepath.Join(t.TempDir(), "library.json")
	require.NoError(t, Save(original, path))

	loaded, _, err := Load(path)
	require.NoError(t, err)

	// u2 returned b2, but the history edge remains: the graph replays
	// every historical borrow, not the current borrowed set.
	visits := loaded.BFSFrom(graph.UserNode("u2"), 1)
	assert.Contains(t, visits, graph.Visit{Node: graph.BookNode("b2"), Depth: 1})

	// u1 reaches u2 through the shared b1.
	visits = loaded.BFSFrom(graph.UserNode("u1"), 2)
	assert.Contains(t, visits, graph.Visit{Node: graph.UserNode("u2"), Depth: 2})
}

func TestLoadSkipsHistoryEdgesForMissingBooks(t *testing.T) {
	original := buildStore(t)
	original.RemoveBook("b1")
	path := filepath.Join(t.TempDir(), "library.json")
	require.NoError(t, Save(original, path))

	loaded, _, err := Load(path)
	require.NoError(t, err)

	// b1 is gone from the catalog, so no edge is replayed for it even
	// though it still appears in both users' histories.
	visits := loaded.BFSFrom(graph.UserNode("u1"), 3)
	assert.Equal(t, []graph.Visit{{Node: graph.UserNode("u1"), Depth: 0}}, visits)
}

func TestLoadMissingFile(t *testing.T) {
	_, _, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}

func TestLoadUnparsableEnvelope(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, _, err := Load(path)
	assert.Error(t, err)
}

func TestLoadSkipsMalformedRecords(t *testing.T) {
	payload := `{
		"version": 1,
		"books": {
			"b1": {"id": "b1", "title": "Good Book", "author": "Author", "genre": "fiction", "total_copies": 1, "available_copies": 1, "borrow_count": 0},
			"b2": {"id": "b2", "title": "", "author": "Author", "genre": "fiction", "total_copies": 1, "available_copies": 1, "borrow_count": 0},
			"b3": "not an object"
		},
		"users": {
			"u1": {"id": "u1", "name": "Alice", "interests": ["fiction"], "borrowed_books": [], "history": []},
			"u2": {"id": "u2", "name": "", "interests": [], "borrowed_books": [], "history": []}
		},
		"borrow_requests": [["u1", "b1"], ["orphan"], "garbage"]
	}`

	store, skipped, err := Decode([]byte(payload))
	require.NoError(t, err)

	sections := make(map[string]int)
	for _, s := range skipped {
		sections[s.Section]++
	}
	assert.Equal(t, 2, sections["books"])
	assert.Equal(t, 1, sections["users"])
	assert.Equal(t, 2, sections["borrow_requests"])

	_, ok := store.GetBook("b1")
	assert.True(t, ok)
	_, ok = store.GetBook("b2")
	assert.False(t, ok)
	_, ok = store.GetUser("u1")
	assert.True(t, ok)
	_, ok = store.GetUser("u2")
	assert.False(t, ok)

	requests := store.PendingRequests()
	require.Len(t, requests, 1)
	assert.Equal(t, "u1", requests[0].UserID)
}

func TestCaptureClampsNothing(t *testing.T) {
	s := catalog.New()
	book, err := models.NewBook("b1", "Book", "Author", "fiction", 2, 1)
	require.NoError(t, err)
	book.BorrowCount = 7
	s.AddBook(book)

	env := Capture(s)
	assert.Equal(t, Version, env.Version)
	rec := env.Books["b1"]
	assert.Equal(t, 2, rec.TotalCopies)
	assert.Equal(t, 1, rec.AvailableCopies)
	assert.Equal(t, 7, rec.BorrowCount)
}
