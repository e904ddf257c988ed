package catalog

import (
	"errors"
	"sort"
	"strings"
	"sync"

	"librarium/pkg/graph"
	"librarium/pkg/models"
	"librarium/pkg/queue"
)

var (
	ErrBookNotFound      = errors.New("book not found")
	ErrUserNotFound      = errors.New("user not found")
	ErrNoCopiesAvailable = errors.New("no copies available")
	ErrNotBorrowed       = errors.New("book not borrowed by user")
	ErrAllCopiesReturned = errors.New("all copies already returned")
)

// Store owns the books, users, borrow-request waitlist and the
// user-book interaction graph, and is the only mutator of all four.
// Borrow and return are multi-step sequences, so every operation
// serializes behind one mutex to stay atomic for concurrent callers.
type Store struct {
	mu       sync.Mutex
	books    map[string]*models.Book
	users    map[string]*models.User
	requests *queue.Queue[models.BorrowRequest]
	graph    *graph.Graph
}

func New() *Store {
	return &Store{
		books:    make(map[string]*models.Book),
		users:    make(map[string]*models.User),
		requests: queue.New[models.BorrowRequest](),
		graph:    graph.New(),
	}
}

// AddBook inserts the book, or merges copy counts onto the existing
// record when the id is already present. Re-adding is a restock: total
// and available counts accumulate, other fields keep their current
// values.
func (s *Store) AddBook(book *models.Book) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.books[book.ID]; ok {
		existing.TotalCopies += book.TotalCopies
		existing.AvailableCopies += book.AvailableCopies
		return
	}
	s.books[book.ID] = book
	s.graph.AddNode(graph.BookNode(book.ID))
}

// RemoveBook deletes the book and reports whether it existed. User
// borrow state and the graph are deliberately left untouched.
func (s *Store) RemoveBook(bookID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.books[bookID]; !ok {
		return false
	}
	delete(s.books, bookID)
	return true
}

// UpdateBook applies a partial patch to an existing book.
func (s *Store) UpdateBook(bookID string, patch models.BookPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	book, ok := s.books[bookID]
	if !ok {
		return ErrBookNotFound
	}
	book.Apply(patch)
	return nil
}

// AddUser registers the user unless the id is already taken (first
// registration wins). Reports whether the user was inserted.
func (s *Store) AddUser(user *models.User) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[user.ID]; ok {
		return false
	}
	s.users[user.ID] = user
	s.graph.AddNode(graph.UserNode(user.ID))
	return true
}

func (s *Store) GetBook(bookID string) (models.Book, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	book, ok := s.books[bookID]
	if !ok {
		return models.Book{}, false
	}
	return *book, true
}

func (s *Store) GetUser(userID string) (models.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[userID]
	if !ok {
		return models.User{}, false
	}
	return user.Clone(), true
}

// SearchBooks filters by partial title/author match and exact genre,
// all case-insensitive. Empty arguments match everything.
func (s *Store) SearchBooks(title, author, genre string) []models.Book {
	s.mu.Lock()
	defer s.mu.Unlock()

	title = strings.ToLower(title)
	author = strings.ToLower(author)
	genre = strings.ToLower(genre)

	matches := make([]models.Book, 0)
	for _, book := range s.books {
		if title != "" && !strings.Contains(strings.ToLower(book.Title), title) {
			continue
		}
		if author != "" && !strings.Contains(strings.ToLower(book.Author), author) {
			continue
		}
		if genre != "" && genre != strings.ToLower(book.Genre) {
			continue
		}
		matches = append(matches, *book)
	}
	return matches
}

// BorrowBook lends one copy to the user: availability down, popularity
// up, borrowed set and history updated, interaction edge added. On any
// failure nothing is changed.
func (s *Store) BorrowBook(userID, bookID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.borrowLocked(userID, bookID)
}

func (s *Store) borrowLocked(userID, bookID string) error {
	user, ok := s.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	book, ok := s.books[bookID]
	if !ok {
		return ErrBookNotFound
	}
	if !book.CanBorrow() {
		return ErrNoCopiesAvailable
	}
	book.AvailableCopies--
	book.BorrowCount++
	user.Borrow(bookID)
	s.graph.AddEdge(graph.UserNode(userID), graph.BookNode(bookID))
	return nil
}

// ReturnBook takes one copy back. Returning a book the user does not
// currently hold fails without side effects; an availability count
// already at total means the bookkeeping desynchronized (e.g. a
// tampered snapshot) and is reported as ErrAllCopiesReturned rather
// than panicking.
func (s *Store) ReturnBook(userID, bookID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	book, ok := s.books[bookID]
	if !ok {
		return ErrBookNotFound
	}
	if !user.HasBorrowed(bookID) {
		return ErrNotBorrowed
	}
	if book.AvailableCopies >= book.TotalCopies {
		return ErrAllCopiesReturned
	}
	book.AvailableCopies++
	user.Return(bookID)
	return nil
}

// EnqueueBorrowRequest appends a borrow request to the waitlist. The
// caller chooses to enqueue; a failed BorrowBook never does so itself.
func (s *Store) EnqueueBorrowRequest(userID, bookID string) {
	s.requests.Enqueue(models.BorrowRequest{UserID: userID, BookID: bookID})
}

// ProcessNextBorrow pops the oldest request and attempts the borrow
// once. A failed attempt drops the request instead of re-queueing it.
// Returns the request that was attempted and the borrow outcome;
// queue.ErrEmpty when nothing is pending.
func (s *Store) ProcessNextBorrow() (models.BorrowRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	request, err := s.requests.Dequeue()
	if err != nil {
		return models.BorrowRequest{}, err
	}
	return request, s.borrowLocked(request.UserID, request.BookID)
}

func (s *Store) PendingRequests() []models.BorrowRequest {
	return s.requests.Items()
}

// TopKBooks returns the k most borrowed books, ties broken by id so the
// ordering is deterministic. k <= 0 yields an empty result.
func (s *Store) TopKBooks(k int) []models.Book {
	if k <= 0 {
		return nil
	}
	books := s.Books()
	sort.Slice(books, func(i, j int) bool {
		if books[i].BorrowCount != books[j].BorrowCount {
			return books[i].BorrowCount > books[j].BorrowCount
		}
		return books[i].ID < books[j].ID
	})
	if len(books) > k {
		books = books[:k]
	}
	return books
}

// AvailableBooks lists books with at least one available copy, sorted
// by lowercased title then author.
func (s *Store) AvailableBooks() []models.Book {
	s.mu.Lock()
	defer s.mu.Unlock()

	available := make([]models.Book, 0)
	for _, book := range s.books {
		if book.AvailableCopies > 0 {
			available = append(available, *book)
		}
	}
	sort.Slice(available, func(i, j int) bool {
		ti, tj := strings.ToLower(available[i].Title), strings.ToLower(available[j].Title)
		if ti != tj {
			return ti < tj
		}
		return strings.ToLower(available[i].Author) < strings.ToLower(available[j].Author)
	})
	return available
}

// Books returns copies of every book record, in no particular order.
func (s *Store) Books() []models.Book {
	s.mu.Lock()
	defer s.mu.Unlock()

	books := make([]models.Book, 0, len(s.books))
	for _, book := range s.books {
		books = append(books, *book)
	}
	return books
}

// Users returns deep copies of every user record, in no particular order.
func (s *Store) Users() []models.User {
	s.mu.Lock()
	defer s.mu.Unlock()

	users := make([]models.User, 0, len(s.users))
	for _, user := range s.users {
		users = append(users, user.Clone())
	}
	return users
}

// BFSFrom runs a bounded breadth-first traversal over the interaction
// graph. Read-only with respect to store state.
func (s *Store) BFSFrom(start graph.NodeID, maxDepth int) []graph.Visit {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.graph.BFS(start, maxDepth)
}

// RebuildInteractionGraph discards the graph and replays every user's
// history as borrow edges, skipping books no longer in the catalog.
// Used after a snapshot load, which never persists the graph itself.
func (s *Store) RebuildInteractionGraph() {
	s.mu.Lock()
	defer s.mu.Unlock()

	g := graph.New()
	for bookID := range s.books {
		g.AddNode(graph.BookNode(bookID))
	}
	for userID := range s.users {
		g.AddNode(graph.UserNode(userID))
	}
	for userID, user := range s.users {
		for _, bookID := range user.History {
			if _, ok := s.books[bookID]; ok {
				g.AddEdge(graph.UserNode(userID), graph.BookNode(bookID))
			}
		}
	}
	s.graph = g
}
