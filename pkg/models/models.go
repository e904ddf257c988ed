package models

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Book is a catalog entry. Genre is stored normalized to lowercase.
type Book struct {
	ID              string `json:"id" validate:"required"`
	Title           string `json:"title" validate:"required"`
	Author          string `json:"author" validate:"required"`
	Genre           string `json:"genre" validate:"required"`
	TotalCopies     int    `json:"total_copies" validate:"gte=0"`
	AvailableCopies int    `json:"available_copies"`
	BorrowCount     int    `json:"borrow_count"`
}

// NewBook validates the required fields and normalizes the genre. An
// available count outside [0, total] is clamped to the total rather
// than rejected.
func NewBook(id, title, author, genre string, totalCopies, availableCopies int) (*Book, error) {
	b := &Book{
		ID:              strings.TrimSpace(id),
		Title:           strings.TrimSpace(title),
		Author:          strings.TrimSpace(author),
		Genre:           NormalizeGenre(genre),
		TotalCopies:     totalCopies,
		AvailableCopies: availableCopies,
	}
	if err := validate.Struct(b); err != nil {
		return nil, fmt.Errorf("invalid book: %w", err)
	}
	if b.AvailableCopies < 0 || b.AvailableCopies > b.TotalCopies {
		b.AvailableCopies = b.TotalCopies
	}
	return b, nil
}

func NormalizeGenre(genre string) string {
	return strings.ToLower(strings.TrimSpace(genre))
}

func (b *Book) CanBorrow() bool {
	return b.AvailableCopies > 0
}

// BookPatch is a partial update for a book. Nil fields are left untouched.
type BookPatch struct {
	Title  *string
	Author *string
	Genre  *string
}

// Apply writes the set fields onto the book, re-normalizing the genre.
func (b *Book) Apply(p BookPatch) {
	if p.Title != nil {
		b.Title = strings.TrimSpace(*p.Title)
	}
	if p.Author != nil {
		b.Author = strings.TrimSpace(*p.Author)
	}
	if p.Genre != nil {
		b.Genre = NormalizeGenre(*p.Genre)
	}
}

// User tracks interests, the current borrow set, and the full borrow
// history. Interests are normalized to lowercase. BorrowedBooks stays
// a subset of the ids appearing in History.
type User struct {
	ID            string              `json:"id" validate:"required"`
	Name          string              `json:"name" validate:"required"`
	Interests     map[string]struct{} `json:"-"`
	BorrowedBooks map[string]struct{} `json:"-"`
	History       []string            `json:"history"`
}

// NewUser validates the required fields; interests are trimmed,
// lowercased and deduplicated, empty entries dropped.
func NewUser(id, name string, interests []string) (*User, error) {
	u := &User{
		ID:            strings.TrimSpace(id),
		Name:          strings.TrimSpace(name),
		Interests:     make(map[string]struct{}),
		BorrowedBooks: make(map[string]struct{}),
	}
	if err := validate.Struct(u); err != nil {
		return nil, fmt.Errorf("invalid user: %w", err)
	}
	for _, interest := range interests {
		interest = strings.ToLower(strings.TrimSpace(interest))
		if interest != "" {
			u.Interests[interest] = struct{}{}
		}
	}
	return u, nil
}

// Borrow records a successful borrow: the id joins the borrowed set and
// is appended to the history (duplicates allowed there).
func (u *User) Borrow(bookID string) {
	u.BorrowedBooks[bookID] = struct{}{}
	u.History = append(u.History, bookID)
}

// Return removes the id from the borrowed set. History is never retracted.
func (u *User) Return(bookID string) {
	delete(u.BorrowedBooks, bookID)
}

func (u *User) HasBorrowed(bookID string) bool {
	_, ok := u.BorrowedBooks[bookID]
	return ok
}

func (u *User) HasInterest(genre string) bool {
	_, ok := u.Interests[strings.ToLower(genre)]
	return ok
}

// Clone returns a deep copy safe to hand out across the store boundary.
func (u *User) Clone() User {
	c := User{
		ID:            u.ID,
		Name:          u.Name,
		Interests:     make(map[string]struct{}, len(u.Interests)),
		BorrowedBooks: make(map[string]struct{}, len(u.BorrowedBooks)),
		History:       make([]string, len(u.History)),
	}
	for interest := range u.Interests {
		c.Interests[interest] = struct{}{}
	}
	for bookID := range u.BorrowedBooks {
		c.BorrowedBooks[bookID] = struct{}{}
	}
	copy(c.History, u.History)
	return c
}

// BorrowRequest is a queued (user, book) borrow attempt awaiting
// fulfillment. Duplicates are permitted.
type BorrowRequest struct {
	UserID string `json:"user_id"`
	BookID string `json:"book_id"`
}
