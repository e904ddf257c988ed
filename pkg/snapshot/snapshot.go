package snapshot

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"librarium/pkg/catalog"
	"librarium/pkg/models"
)

// Version of the snapshot envelope format.
const Version = 1

// Envelope is the complete serialized catalog state.
type Envelope struct {
	Version        int                   `json:"version"`
	Books          map[string]BookRecord `json:"books"`
	Users          map[string]UserRecord `json:"users"`
	BorrowRequests [][]string            `json:"borrow_requests"`
}

type BookRecord struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	Author          string `json:"author"`
	Genre           string `json:"genre"`
	TotalCopies     int    `json:"total_copies"`
	AvailableCopies int    `json:"available_copies"`
	BorrowCount     int    `json:"borrow_count"`
}

type UserRecord struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Interests     []string `json:"interests"`
	BorrowedBooks []string `json:"borrowed_books"`
	History       []string `json:"history"`
}

// Skipped describes one malformed record dropped during a load.
type Skipped struct {
	Section string
	Key     string
	Reason  string
}

// rawEnvelope defers per-record decoding so one malformed record can be
// skipped without failing the whole load.
type rawEnvelope struct {
	Version        int                        `json:"version"`
	Books          map[string]json.RawMessage `json:"books"`
	Users          map[string]json.RawMessage `json:"users"`
	BorrowRequests []json.RawMessage          `json:"borrow_requests"`
}

// Capture builds an envelope from the store's current state. The
// waitlist is copied in FIFO order; the interaction graph is not
// persisted, it is rebuilt from user histories on load.
func Capture(store *catalog.Store) Envelope {
	env := Envelope{
		Version:        Version,
		Books:          make(map[string]BookRecord),
		Users:          make(map[string]UserRecord),
		BorrowRequests: make([][]string, 0),
	}
	for _, book := range store.Books() {
		env.Books[book.ID] = BookRecord{
			ID:              book.ID,
			Title:           book.Title,
			Author:          book.Author,
			Genre:           book.Genre,
			TotalCopies:     book.TotalCopies,
			AvailableCopies: book.AvailableCopies,
			BorrowCount:     book.BorrowCount,
		}
	}
	for _, user := range store.Users() {
		env.Users[user.ID] = UserRecord{
			ID:            user.ID,
			Name:          user.Name,
			Interests:     sortedKeys(user.Interests),
			BorrowedBooks: sortedKeys(user.BorrowedBooks),
			History:       user.History,
		}
	}
	for _, request := range store.PendingRequests() {
		env.BorrowRequests = append(env.BorrowRequests, []string{request.UserID, request.BookID})
	}
	return env
}

// Save writes the store's snapshot as indented JSON, creating parent
// directories as needed. In-memory state is never touched.
func Save(store *catalog.Store, path string) error {
	data, err := json.MarshalIndent(Capture(store), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create snapshot dir: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}

// Load reads and decodes a snapshot file. It fails only when the file
// is unreadable or the envelope itself does not parse; the caller then
// falls back to an empty or seeded catalog.
func Load(path string) (*catalog.Store, []Skipped, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read snapshot: %w", err)
	}
	return Decode(data)
}

// Decode rebuilds a store from snapshot bytes. Individually malformed
// book, user or request records are skipped and reported; the
// interaction graph is reconstructed from each user's history.
func Decode(data []byte) (*catalog.Store, []Skipped, error) {
	var raw rawEnvelope
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, nil, fmt.Errorf("parse snapshot: %w", err)
	}

	store := catalog.New()
	var skipped []Skipped

	for id, msg := range raw.Books {
		var rec BookRecord
		if err := json.Unmarshal(msg, &rec); err != nil {
			skipped = append(skipped, Skipped{Section: "books", Key: id, Reason: err.Error()})
			continue
		}
		book, err := models.NewBook(id, rec.Title, rec.Author, rec.Genre, rec.TotalCopies, rec.AvailableCopies)
		if err != nil {
			skipped = append(skipped, Skipped{Section: "books", Key: id, Reason: err.Error()})
			continue
		}
		book.BorrowCount = rec.BorrowCount
		store.AddBook(book)
	}

	for id, msg := range raw.Users {
		var rec UserRecord
		if err := json.Unmarshal(msg, &rec); err != nil {
			skipped = append(skipped, Skipped{Section: "users", Key: id, Reason: err.Error()})
			continue
		}
		user, err := models.NewUser(id, rec.Name, rec.Interests)
		if err != nil {
			skipped = append(skipped, Skipped{Section: "users", Key: id, Reason: err.Error()})
			continue
		}
		for _, bookID := range rec.BorrowedBooks {
			user.BorrowedBooks[bookID] = struct{}{}
		}
		user.History = rec.History
		store.AddUser(user)
	}

	store.RebuildInteractionGraph()

	for i, msg := range raw.BorrowRequests {
		var pair []string
		if err := json.Unmarshal(msg, &pair); err != nil || len(pair) != 2 {
			skipped = append(skipped, Skipped{
				Section: "borrow_requests",
				Key:     strconv.Itoa(i),
				Reason:  "expected a [user_id, book_id] pair",
			})
			continue
		}
		store.EnqueueBorrowRequest(pair[0], pair[1])
	}

	return store, skipped, nil
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
