package main

import (
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"librarium/pkg/catalog"
	"librarium/pkg/models"
	"librarium/pkg/queue"
	"librarium/pkg/recommend"
	"librarium/pkg/snapshot"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
)

var (
	store        *catalog.Store
	engine       *recommend.Engine
	archive      *snapshot.Archive
	snapshotFile string
)

func main() {
	log.Println("Starting catalog service...")

	snapshotFile = getEnv("SNAPSHOT_FILE", "data/library.json")

	openArchive()
	restoreState()
	engine = recommend.New(store)

	// Persist state before the process goes away.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		log.Println("Shutting down, saving snapshot...")
		if err := saveState(); err != nil {
			log.Printf("Failed to save snapshot on shutdown: %v", err)
		}
		os.Exit(0)
	}()

	server := gin.Default()
	server.POST("/api/v1/books", addBook)
	server.GET("/api/v1/books", searchBooks)
	server.GET("/api/v1/books/available", availableBooks)
	server.GET("/api/v1/books/top", topBooks)
	server.GET("/api/v1/books/:bookId", getBook)
	server.PATCH("/api/v1/books/:bookId", updateBook)
	server.DELETE("/api/v1/books/:bookId", removeBook)
	server.POST("/api/v1/users", addUser)
	server.GET("/api/v1/users/:userId", getUser)
	server.POST("/api/v1/users/:userId/books/:bookId/borrow", borrowBook)
	server.POST("/api/v1/users/:userId/books/:bookId/return", returnBook)
	server.GET("/api/v1/users/:userId/recommendations", recommendations)
	server.POST("/api/v1/requests", enqueueRequest)
	server.GET("/api/v1/requests", listRequests)
	server.POST("/api/v1/requests/process", processRequest)
	server.POST("/manage/save", saveSnapshot)
	server.GET("/manage/health", healthCheck)

	port := getEnv("PORT", "8080")
	log.Printf("Catalog service starting on :%s", port)
	if err := server.Run(":" + port); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

func openArchive() {
	dsn := getEnv("ARCHIVE_DSN", "")
	path := getEnv("ARCHIVE_PATH", "")

	var err error
	switch {
	case dsn != "":
		log.Println("Opening postgres snapshot archive")
		archive, err = snapshot.OpenArchive(postgres.Open(dsn))
	case path != "":
		log.Printf("Opening sqlite snapshot archive: %s", path)
		archive, err = snapshot.OpenArchive(sqlite.Open(path))
	default:
		return
	}
	if err != nil {
		log.Fatalf("Failed to open snapshot archive: %v", err)
	}
}

func restoreState() {
	loaded, skipped, err := snapshot.Load(snapshotFile)
	if err == nil {
		store = loaded
		logSkipped(skipped)
		log.Printf("Loaded snapshot from %s", snapshotFile)
		return
	}
	log.Printf("Snapshot file unavailable: %v", err)

	if archive != nil {
		payload, archiveErr := archive.Latest()
		if archiveErr == nil {
			loaded, skipped, decodeErr := snapshot.Decode(payload)
			if decodeErr == nil {
				store = loaded
				logSkipped(skipped)
				log.Println("Restored state from snapshot archive")
				return
			}
			log.Printf("Archived snapshot unreadable: %v", decodeErr)
		}
	}

	store = catalog.New()
	seedDemoData()
}

func logSkipped(skipped []snapshot.Skipped) {
	for _, s := range skipped {
		log.Printf("Skipped malformed %s record %q: %s", s.Section, s.Key, s.Reason)
	}
}

func saveState() error {
	if err := snapshot.Save(store, snapshotFile); err != nil {
		return err
	}
	if archive != nil {
		if err := archive.Append(snapshot.Capture(store)); err != nil {
			return err
		}
	}
	return nil
}

func seedDemoData() {
	books := []struct {
		id, title, author, genre string
		copies                   int
	}{
		{"b1", "Clean Code", "Robert C. Martin", "technology", 3},
		{"b2", "The Pragmatic Programmer", "Andrew Hunt", "technology", 2},
		{"b3", "1984", "George Orwell", "fiction", 2},
		{"b4", "To Kill a Mockingbird", "Harper Lee", "fiction", 1},
		{"b5", "Sapiens", "Yuval Noah Harari", "history", 2},
	}
	for _, b := range books {
		book, err := models.NewBook(b.id, b.title, b.author, b.genre, b.copies, b.copies)
		if err != nil {
			log.Printf("Failed to seed book %s: %v", b.id, err)
			continue
		}
		store.AddBook(book)
	}

	users := []struct {
		id, name  string
		interests []string
	}{
		{"u1", "Alice", []string{"technology", "history"}},
		{"u2", "Bob", []string{"fiction"}},
	}
	for _, u := range users {
		user, err := models.NewUser(u.id, u.name, u.interests)
		if err != nil {
			log.Printf("Failed to seed user %s: %v", u.id, err)
			continue
		}
		store.AddUser(user)
	}
	log.Println("Catalog demo data seeded")
}

func addBook(c *gin.Context) {
	var request struct {
		ID              string `json:"id"`
		Title           string `json:"title" binding:"required"`
		Author          string `json:"author" binding:"required"`
		Genre           string `json:"genre" binding:"required"`
		TotalCopies     int    `json:"totalCopies" binding:"gte=0"`
		AvailableCopies *int   `json:"availableCopies"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if request.ID == "" {
		request.ID = uuid.New().String()
	}
	available := request.TotalCopies
	if request.AvailableCopies != nil {
		available = *request.AvailableCopies
	}

	book, err := models.NewBook(request.ID, request.Title, request.Author, request.Genre, request.TotalCopies, available)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	store.AddBook(book)

	// Re-read to reflect merged counts when the id already existed.
	merged, _ := store.GetBook(book.ID)
	c.JSON(http.StatusCreated, bookJSON(merged))
}

func getBook(c *gin.Context) {
	book, ok := store.GetBook(c.Param("bookId"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Book not found"})
		return
	}
	c.JSON(http.StatusOK, bookJSON(book))
}

func searchBooks(c *gin.Context) {
	books := store.SearchBooks(c.Query("title"), c.Query("author"), c.Query("genre"))
	items := make([]gin.H, len(books))
	for i, book := range books {
		items[i] = bookJSON(book)
	}
	c.JSON(http.StatusOK, gin.H{
		"totalElements": len(items),
		"items":         items,
	})
}

func availableBooks(c *gin.Context) {
	books := store.AvailableBooks()
	items := make([]gin.H, len(books))
	for i, book := range books {
		items[i] = bookJSON(book)
	}
	c.JSON(http.StatusOK, gin.H{
		"totalElements": len(items),
		"items":         items,
	})
}

func topBooks(c *gin.Context) {
	k, err := strconv.Atoi(c.DefaultQuery("k", "5"))
	if err != nil || k < 1 {
		k = 5
	}
	books := store.TopKBooks(k)
	items := make([]gin.H, len(books))
	for i, book := range books {
		items[i] = bookJSON(book)
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func updateBook(c *gin.Context) {
	var request struct {
		Title  *string `json:"title"`
		Author *string `json:"author"`
		Genre  *string `json:"genre"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	bookID := c.Param("bookId")
	patch := models.BookPatch{Title: request.Title, Author: request.Author, Genre: request.Genre}
	if err := store.UpdateBook(bookID, patch); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Book not found"})
		return
	}
	book, _ := store.GetBook(bookID)
	c.JSON(http.StatusOK, bookJSON(book))
}

func removeBook(c *gin.Context) {
	if !store.RemoveBook(c.Param("bookId")) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Book not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": true})
}

func addUser(c *gin.Context) {
	var request struct {
		ID        string   `json:"id"`
		Name      string   `json:"name" binding:"required"`
		Interests []string `json:"interests"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if request.ID == "" {
		request.ID = uuid.New().String()
	}
	user, err := models.NewUser(request.ID, request.Name, request.Interests)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// First registration wins; a duplicate id keeps the existing record.
	store.AddUser(user)
	current, _ := store.GetUser(user.ID)
	c.JSON(http.StatusCreated, userJSON(current))
}

func getUser(c *gin.Context) {
	user, ok := store.GetUser(c.Param("userId"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}
	c.JSON(http.StatusOK, userJSON(user))
}

func borrowBook(c *gin.Context) {
	userID := c.Param("userId")
	bookID := c.Param("bookId")

	if err := store.BorrowBook(userID, bookID); err != nil {
		c.JSON(borrowStatus(err), gin.H{"error": err.Error()})
		return
	}
	book, _ := store.GetBook(bookID)
	c.JSON(http.StatusOK, gin.H{
		"id":              book.ID,
		"availableCopies": book.AvailableCopies,
	})
}

func returnBook(c *gin.Context) {
	userID := c.Param("userId")
	bookID := c.Param("bookId")

	if err := store.ReturnBook(userID, bookID); err != nil {
		c.JSON(borrowStatus(err), gin.H{"error": err.Error()})
		return
	}
	book, _ := store.GetBook(bookID)
	c.JSON(http.StatusOK, gin.H{
		"id":              book.ID,
		"availableCopies": book.AvailableCopies,
	})
}

func borrowStatus(err error) int {
	if errors.Is(err, catalog.ErrBookNotFound) || errors.Is(err, catalog.ErrUserNotFound) {
		return http.StatusNotFound
	}
	return http.StatusConflict
}

func recommendations(c *gin.Context) {
	k, err := strconv.Atoi(c.DefaultQuery("k", "5"))
	if err != nil || k < 1 {
		k = 5
	}

	userID := c.Param("userId")
	if _, ok := store.GetUser(userID); !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	recs := engine.Recommend(userID, k)
	items := make([]gin.H, len(recs))
	for i, rec := range recs {
		item := bookJSON(rec.Book)
		item["score"] = rec.Score
		items[i] = item
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func enqueueRequest(c *gin.Context) {
	var request struct {
		UserID string `json:"userId" binding:"required"`
		BookID string `json:"bookId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	store.EnqueueBorrowRequest(request.UserID, request.BookID)
	c.JSON(http.StatusAccepted, gin.H{"pending": len(store.PendingRequests())})
}

func listRequests(c *gin.Context) {
	requests := store.PendingRequests()
	items := make([]gin.H, len(requests))
	for i, req := range requests {
		items[i] = gin.H{"userId": req.UserID, "bookId": req.BookID}
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func processRequest(c *gin.Context) {
	request, err := store.ProcessNextBorrow()
	if errors.Is(err, queue.ErrEmpty) {
		c.JSON(http.StatusNotFound, gin.H{"error": "No pending requests"})
		return
	}
	response := gin.H{
		"userId":    request.UserID,
		"bookId":    request.BookID,
		"fulfilled": err == nil,
	}
	if err != nil {
		// The request is dropped, not re-queued.
		response["reason"] = err.Error()
	}
	c.JSON(http.StatusOK, response)
}

func saveSnapshot(c *gin.Context) {
	if err := saveState(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"saved": snapshotFile})
}

func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "UP",
		"books":  len(store.Books()),
		"users":  len(store.Users()),
	})
}

func bookJSON(book models.Book) gin.H {
	return gin.H{
		"id":              book.ID,
		"title":           book.Title,
		"author":          book.Author,
		"genre":           book.Genre,
		"totalCopies":     book.TotalCopies,
		"availableCopies": book.AvailableCopies,
		"borrowCount":     book.BorrowCount,
	}
}

func userJSON(user models.User) gin.H {
	interests := make([]string, 0, len(user.Interests))
	for interest := range user.Interests {
		interests = append(interests, interest)
	}
	borrowed := make([]string, 0, len(user.BorrowedBooks))
	for bookID := range user.BorrowedBooks {
		borrowed = append(borrowed, bookID)
	}
	return gin.H{
		"id":            user.ID,
		"name":          user.Name,
		"interests":     interests,
		"borrowedBooks": borrowed,
		"history":       user.History,
	}
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}
