package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/sakif/bookclub/internal/apperror"
	"github.com/sakif/bookclub/internal/model"
	"github.com/sakif/bookclub/internal/repository"
)

func countCurrent(t *testing.T, db *DB) int {
	t.Helper()
	var n int
	if err := db.conn.QueryRow(`SELECT COUNT(*) FROM books WHERE is_current = 1`).Scan(&n); err != nil {
		t.Fatalf("counting current books: %v", err)
	}
	return n
}

// =========================================================================
// CREATE / GET TESTS
// =========================================================================

func TestCreateBook(t *testing.T) {
	db := newTestDB(t)

	book := &model.Book{
		Title:       "Anna Karenina",
		Author:      "Leo Tolstoy",
		Date:        "2026-03-15 19:00",
		Location:    "City library",
		Description: "A classic",
	}
	if err := db.CreateBook(context.Background(), book); err != nil {
		t.Fatalf("CreateBook() error = %v", err)
	}
	if book.ID == "" {
		t.Fatal("CreateBook() did not set ID")
	}

	got, err := db.GetBook(context.Background(), book.ID)
	if err != nil {
		t.Fatalf("GetBook() error = %v", err)
	}
	if got.Title != "Anna Karenina" || got.Description != "A classic" {
		t.Errorf("GetBook() = %+v", got.Book)
	}
	if got.AvgRating != nil {
		t.Errorf("AvgRating = %v, want nil without reviews", *got.AvgRating)
	}
	if got.ReviewCount != 0 {
		t.Errorf("ReviewCount = %d, want 0", got.ReviewCount)
	}
}

func TestGetBook_NotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := db.GetBook(context.Background(), "missing")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetBook() error = %v, want ErrNotFound", err)
	}
}

func TestGetBook_AverageRating(t *testing.T) {
	db := newTestDB(t)
	user := createTestUser(t, db, "critic@example.com")
	book := createTestBook(t, db, "Dead Souls", "Gogol")

	for _, rating := range []int{5, 4, 3} {
		r := &model.Review{UserID: user.ID, BookID: book.ID, Rating: rating}
		if err := db.CreateReview(context.Background(), r); err != nil {
			t.Fatalf("CreateReview() error = %v", err)
		}
	}

	got, err := db.GetBook(context.Background(), book.ID)
	if err != nil {
		t.Fatalf("GetBook() error = %v", err)
	}
	if got.AvgRating == nil || *got.AvgRating != 4.0 {
		t.Errorf("AvgRating = %v, want 4.0", got.AvgRating)
	}
	if got.ReviewCount != 3 {
		t.Errorf("ReviewCount = %d, want 3", got.ReviewCount)
	}
}

// =========================================================================
// CURRENT BOOK TESTS
// =========================================================================

func TestSetCurrentBook_Exclusive(t *testing.T) {
	db := newTestDB(t)
	a := createTestBook(t, db, "A", "Author A")
	b := createTestBook(t, db, "B", "Author B")
	c := createTestBook(t, db, "C", "Author C")

	for _, id := range []string{a.ID, b.ID, c.ID, a.ID} {
		if err := db.SetCurrentBook(context.Background(), id); err != nil {
			t.Fatalf("SetCurrentBook(%s) error = %v", id, err)
		}
		if n := countCurrent(t, db); n != 1 {
			t.Fatalf("after SetCurrentBook(%s): %d current books, want 1", id, n)
		}
	}

	got, err := db.GetCurrentBook(context.Background())
	if err != nil {
		t.Fatalf("GetCurrentBook() error = %v", err)
	}
	if got.ID != a.ID {
		t.Errorf("GetCurrentBook() = %s, want %s", got.ID, a.ID)
	}
}

func TestSetCurrentBook_NotFoundKeepsPreviousFlag(t *testing.T) {
	db := newTestDB(t)
	a := createTestBook(t, db, "A", "Author A")
	if err := db.SetCurrentBook(context.Background(), a.ID); err != nil {
		t.Fatalf("SetCurrentBook() error = %v", err)
	}

	err := db.SetCurrentBook(context.Background(), "missing")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Fatalf("SetCurrentBook(missing) error = %v, want ErrNotFound", err)
	}
	// The transaction rolled back, so the old flag survives.
	got, _ := db.GetBook(context.Background(), a.ID)
	if !got.IsCurrent {
		t.Error("previous current book lost its flag after a failed SetCurrentBook")
	}
}

func TestCreateBook_IsCurrentClearsOthers(t *testing.T) {
	db := newTestDB(t)
	first := &model.Book{Title: "First", Author: "X", Date: "d", Location: "l", IsCurrent: true}
	second := &model.Book{Title: "Second", Author: "Y", Date: "d", Location: "l", IsCurrent: true}

	if err := db.CreateBook(context.Background(), first); err != nil {
		t.Fatalf("CreateBook(first) error = %v", err)
	}
	if err := db.CreateBook(context.Background(), second); err != nil {
		t.Fatalf("CreateBook(second) error = %v", err)
	}

	if n := countCurrent(t, db); n != 1 {
		t.Errorf("%d current books, want 1", n)
	}
	got, _ := db.GetCurrentBook(context.Background())
	if got.ID != second.ID {
		t.Errorf("current = %s, want the second book", got.Title)
	}
}

func TestGetCurrentBook_FallsBackToNewest(t *testing.T) {
	db := newTestDB(t)
	steppingClock(db)
	createTestBook(t, db, "Old", "X")
	newest := createTestBook(t, db, "New", "Y")

	got, err := db.GetCurrentBook(context.Background())
	if err != nil {
		t.Fatalf("GetCurrentBook() error = %v", err)
	}
	if got.ID != newest.ID {
		t.Errorf("GetCurrentBook() = %q, want newest %q", got.Title, newest.Title)
	}
}

func TestGetCurrentBook_Empty(t *testing.T) {
	db := newTestDB(t)

	_, err := db.GetCurrentBook(context.Background())
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetCurrentBook() error = %v, want ErrNotFound", err)
	}
}

// =========================================================================
// LIST / SEARCH TESTS
// =========================================================================

func TestListBooks_NewestFirstWithPaging(t *testing.T) {
	db := newTestDB(t)
	steppingClock(db)
	for _, title := range []string{"One", "Two", "Three"} {
		createTestBook(t, db, title, "Someone")
	}

	books, total, err := db.ListBooks(context.Background(), repository.BookFilter{
		ListOptions: repository.ListOptions{Limit: 2},
	})
	if err != nil {
		t.Fatalf("ListBooks() error = %v", err)
	}
	if total != 3 {
		t.Errorf("total = %d, want 3", total)
	}
	if len(books) != 2 || books[0].Title != "Three" || books[1].Title != "Two" {
		t.Errorf("ListBooks() titles = %v", titles(books))
	}
}

func TestListBooks_Search(t *testing.T) {
	db := newTestDB(t)
	createTestBook(t, db, "War and Peace", "Leo Tolstoy")
	createTestBook(t, db, "Мастер и Маргарита", "Михаил Булгаков")
	createTestBook(t, db, "100% Pure", "Anon")
	createTestBook(t, db, "1000 Pages", "Anon")

	tests := []struct {
		name   string
		search string
		want   int
	}{
		{"title case-insensitive", "war AND", 1},
		{"author match", "tolstoy", 1},
		{"cyrillic case folding", "МАСТЕР", 1},
		{"cyrillic author", "булгаков", 1},
		{"percent matched literally", "100%", 1},
		{"no match", "dostoevsky", 0},
		{"blank search lists all", "   ", 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			books, total, err := db.ListBooks(context.Background(), repository.BookFilter{
				ListOptions: repository.ListOptions{Limit: 10},
				Search:      tt.search,
			})
			if err != nil {
				t.Fatalf("ListBooks() error = %v", err)
			}
			if total != tt.want || len(books) != tt.want {
				t.Errorf("ListBooks(%q) = %d items (total %d), want %d", tt.search, len(books), total, tt.want)
			}
		})
	}
}

func titles(books []model.BookWithRating) []string {
	out := make([]string, len(books))
	for i, b := range books {
		out[i] = b.Title
	}
	return out
}

// =========================================================================
// UPDATE / DELETE TESTS
// =========================================================================

func TestUpdateBook(t *testing.T) {
	db := newTestDB(t)
	book := createTestBook(t, db, "Draft", "Nobody")

	book.Title = "Final"
	book.Author = "Somebody"
	if err := db.UpdateBook(context.Background(), book); err != nil {
		t.Fatalf("UpdateBook() error = %v", err)
	}

	books, _, _ := db.ListBooks(context.Background(), repository.BookFilter{
		ListOptions: repository.ListOptions{Limit: 10},
		Search:      "somebody",
	})
	if len(books) != 1 || books[0].Title != "Final" {
		t.Errorf("search after update = %v, want [Final]", titles(books))
	}
}

func TestUpdateBook_NotFound(t *testing.T) {
	db := newTestDB(t)

	err := db.UpdateBook(context.Background(), &model.Book{ID: "missing", Title: "x"})
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("UpdateBook() error = %v, want ErrNotFound", err)
	}
}

func TestDeleteBook_CascadesDependents(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	user := createTestUser(t, db, "fan@example.com")
	book := createTestBook(t, db, "Gone", "Soon")

	if err := db.CreateFavorite(ctx, &model.Favorite{UserID: user.ID, BookID: book.ID}); err != nil {
		t.Fatalf("CreateFavorite() error = %v", err)
	}
	if err := db.CreateReview(ctx, &model.Review{UserID: user.ID, BookID: book.ID, Rating: 5}); err != nil {
		t.Fatalf("CreateReview() error = %v", err)
	}
	if err := db.CreateRegistration(ctx, &model.MeetingRegistration{UserID: user.ID, BookID: book.ID}); err != nil {
		t.Fatalf("CreateRegistration() error = %v", err)
	}

	if err := db.DeleteBook(ctx, book.ID); err != nil {
		t.Fatalf("DeleteBook() error = %v", err)
	}

	for _, table := range []string{"favorites", "reviews", "meeting_registrations"} {
		var n int
		if err := db.conn.QueryRow(`SELECT COUNT(*) FROM ` + table).Scan(&n); err != nil {
			t.Fatalf("counting %s: %v", table, err)
		}
		if n != 0 {
			t.Errorf("%s has %d rows after book delete, want 0", table, n)
		}
	}

	if err := db.DeleteBook(ctx, book.ID); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("second DeleteBook() error = %v, want ErrNotFound", err)
	}
}
