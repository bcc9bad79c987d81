package catalog

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/librarium-core/internal/infrastructure/database"
	_ "github.com/nerrad567/librarium-core/migrations"
)

// setupTestRepo opens a migrated in-memory SQLite database.
func setupTestRepo(t *testing.T) *SQLRepository {
	t.Helper()

	db, err := database.Open(context.Background(), database.Config{Driver: "sqlite", Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate(context.Background()))

	return NewSQLRepository(db)
}

func createBook(t *testing.T, repo *SQLRepository, in Input) *Book {
	t.Helper()
	b, err := NewBook(in)
	require.NoError(t, err)
	require.NoError(t, repo.Create(t.Context(), b))
	return b
}

func TestSQLRepository_CreateAndGet(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := t.Context()

	b := createBook(t, repo, validInput())
	assert.NotEmpty(t, b.ID)

	got, err := repo.GetByID(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, "Dune", got.Title)
	assert.Equal(t, "1965-08-01", got.PublicationDate)
	assert.True(t, got.CreatedAt.Equal(b.CreatedAt))

	byISBN, err := repo.GetByISBN(ctx, "978-0441172719")
	require.NoError(t, err)
	assert.Equal(t, b.ID, byISBN.ID)

	_, err = repo.GetByID(ctx, "book-missing")
	assert.ErrorIs(t, err, ErrBookNotFound)
}

func TestSQLRepository_DuplicateISBN(t *testing.T) {
	repo := setupTestRepo(t)
	createBook(t, repo, validInput())

	dup, err := NewBook(validInput())
	require.NoError(t, err)
	assert.ErrorIs(t, repo.Create(t.Context(), dup), ErrISBNExists)
}

func TestSQLRepository_UpdateAndDelete(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := t.Context()

	b := createBook(t, repo, validInput())
	other := validInput()
	other.ISBN = "9780141439518"
	other.Title = "Pride and Prejudice"
	createBook(t, repo, other)

	b.Title = "Dune (Deluxe Edition)"
	b.PublicationDate = ""
	require.NoError(t, repo.Update(ctx, b))

	got, err := repo.GetByID(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, "Dune (Deluxe Edition)", got.Title)
	assert.Empty(t, got.PublicationDate)

	b.ISBN = "9780141439518"
	assert.ErrorIs(t, repo.Update(ctx, b), ErrISBNExists)

	require.NoError(t, repo.SetCover(ctx, b.ID, "covers/"+b.ID+".jpg"))
	got, err = repo.GetByID(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, "covers/"+b.ID+".jpg", got.CoverImage)

	require.NoError(t, repo.Delete(ctx, b.ID))
	assert.ErrorIs(t, repo.Delete(ctx, b.ID), ErrBookNotFound)
	assert.ErrorIs(t, repo.Update(ctx, b), ErrBookNotFound)
	assert.ErrorIs(t, repo.SetCover(ctx, b.ID, "x"), ErrBookNotFound)
}

func TestSQLRepository_List(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := t.Context()

	n, err := SeedBooks(ctx, repo, slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))
	require.NoError(t, err)
	require.Equal(t, 2, n)
	createBook(t, repo, validInput())

	tests := []struct {
		name   string
		filter Filter
		titles []string
		total  int
	}{
		{"all", Filter{}, []string{"Dune", "Pride and Prejudice", "The Hitchhiker's Guide to the Galaxy"}, 3},
		{"query title", Filter{Query: "PRIDE"}, []string{"Pride and Prejudice"}, 1},
		{"query author", Filter{Query: "adams"}, []string{"The Hitchhiker's Guide to the Galaxy"}, 1},
		{"genre", Filter{Genre: "science fiction"}, []string{"Dune", "The Hitchhiker's Guide to the Galaxy"}, 2},
		{"genre and query", Filter{Genre: "Science Fiction", Query: "dune"}, []string{"Dune"}, 1},
		{"author exact", Filter{Author: "Jane Austen"}, []string{"Pride and Prejudice"}, 1},
		{"language", Filter{Language: "french"}, []string{}, 0},
		{"like wildcard is literal", Filter{Query: "%"}, []string{}, 0},
		{"paged", Filter{Limit: 1, Offset: 1}, []string{"Pride and Prejudice"}, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := repo.List(ctx, tt.filter)
			require.NoError(t, err)

			titles := make([]string, 0, len(res.Books))
			for _, b := range res.Books {
				titles = append(titles, b.Title)
			}
			assert.Equal(t, tt.titles, titles)
			assert.Equal(t, tt.total, res.Total)
		})
	}

	res, err := repo.List(ctx, Filter{Limit: 10000})
	require.NoError(t, err)
	assert.Equal(t, maxLimit, res.Limit)
}

func TestSeedBooks_SkipsNonEmpty(t *testing.T) {
	repo := setupTestRepo(t)
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))

	_, err := SeedBooks(t.Context(), repo, logger)
	require.NoError(t, err)
	n, err := SeedBooks(t.Context(), repo, logger)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSQLRepository_StoreErrors(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	repo := NewSQLRepository(db)

	outage := errors.New("driver: bad connection")

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM books")).WillReturnError(outage)
	_, err = repo.List(context.Background(), Filter{})
	assert.ErrorIs(t, err, outage)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO books")).WillReturnError(outage)
	b, err := NewBook(validInput())
	require.NoError(t, err)
	err = repo.Create(context.Background(), b)
	assert.ErrorIs(t, err, outage)
	assert.NotErrorIs(t, err, ErrISBNExists)

	mock.ExpectQuery(regexp.QuoteMeta("FROM books WHERE id = $1")).
		WithArgs("book-1").
		WillReturnError(outage)
	_, err = repo.GetByID(context.Background(), "book-1")
	assert.NotErrorIs(t, err, ErrBookNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}
