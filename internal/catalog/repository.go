package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/librarium-core/internal/infrastructure/database"
)

// Paging limits for List.
const (
	defaultLimit = 50
	maxLimit     = 200
)

// timeFormat matches the account store's fixed-width timestamp encoding.
const timeFormat = "2006-01-02T15:04:05.000000Z07:00"

// Filter narrows List results. Empty fields are ignored.
type Filter struct {
	Query    string // case-insensitive substring of title or author
	Author   string // exact, case-insensitive
	Genre    string // exact, case-insensitive
	Language string // exact, case-insensitive
	Limit    int    // default 50, max 200
	Offset   int
}

// ListResult is a page of books.
type ListResult struct {
	Books  []Book `json:"books"`
	Total  int    `json:"total"`
	Limit  int    `json:"limit"`
	Offset int    `json:"offset"`
}

// Repository defines book persistence.
type Repository interface {
	// Create assigns ID and timestamps and inserts b.
	// Returns ErrISBNExists if the ISBN is taken.
	Create(ctx context.Context, b *Book) error

	// GetByID returns ErrBookNotFound if the book does not exist.
	GetByID(ctx context.Context, id string) (*Book, error)

	// GetByISBN returns ErrBookNotFound if no book has the ISBN.
	GetByISBN(ctx context.Context, isbn string) (*Book, error)

	List(ctx context.Context, f Filter) (*ListResult, error)

	// Update replaces every writable field of the stored book.
	Update(ctx context.Context, b *Book) error

	// SetCover updates only the cover image reference.
	SetCover(ctx context.Context, id, cover string) error

	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)
}

const bookColumns = `id, title, author, isbn, description, publication_date, language, genre,
	cover_image, created_at, updated_at`

// SQLRepository implements Repository over database/sql.
type SQLRepository struct {
	db  database.DBTX
	now func() time.Time
}

// NewSQLRepository creates a book repository.
func NewSQLRepository(db database.DBTX) *SQLRepository {
	return &SQLRepository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// Create inserts a new book.
func (r *SQLRepository) Create(ctx context.Context, b *Book) error {
	if b.ID == "" {
		b.ID = GenerateID()
	}
	now := r.now()
	b.CreatedAt = now
	b.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO books (id, title, author, isbn, description, publication_date,
			language, genre, cover_image, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		b.ID, b.Title, b.Author, b.ISBN, b.Description, nullableString(b.PublicationDate),
		b.Language, b.Genre, b.CoverImage, now.Format(timeFormat), now.Format(timeFormat),
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return ErrISBNExists
		}
		return fmt.Errorf("inserting book: %w", err)
	}
	return nil
}

// GetByID retrieves a book by ID.
func (r *SQLRepository) GetByID(ctx context.Context, id string) (*Book, error) {
	return r.getOne(ctx, `SELECT `+bookColumns+` FROM books WHERE id = $1`, id)
}

// GetByISBN retrieves a book by ISBN.
func (r *SQLRepository) GetByISBN(ctx context.Context, isbn string) (*Book, error) {
	return r.getOne(ctx, `SELECT `+bookColumns+` FROM books WHERE isbn = $1`, NormaliseISBN(isbn))
}

func (r *SQLRepository) getOne(ctx context.Context, query, arg string) (*Book, error) {
	b, err := scanBook(r.db.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBookNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting book: %w", err)
	}
	return b, nil
}

// List returns books matching f, ordered by title.
func (r *SQLRepository) List(ctx context.Context, f Filter) (*ListResult, error) {
	if f.Limit <= 0 {
		f.Limit = defaultLimit
	}
	if f.Limit > maxLimit {
		f.Limit = maxLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	var (
		conditions []string
		args       []any
	)
	// Placeholders are numbered in order of first use.
	next := func() string { return fmt.Sprintf("$%d", len(args)) }

	if q := strings.TrimSpace(f.Query); q != "" {
		args = append(args, "%"+escapeLike(strings.ToLower(q))+"%")
		p := next()
		conditions = append(conditions,
			fmt.Sprintf(`(LOWER(title) LIKE %s ESCAPE '\' OR LOWER(author) LIKE %s ESCAPE '\')`, p, p))
	}
	exact := []struct{ col, val string }{
		{"author", f.Author},
		{"genre", f.Genre},
		{"language", f.Language},
	}
	for _, e := range exact {
		if val := strings.TrimSpace(e.val); val != "" {
			args = append(args, strings.ToLower(val))
			conditions = append(conditions, fmt.Sprintf("LOWER(%s) = %s", e.col, next()))
		}
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM books " + where //nolint:gosec // WHERE built from parameterised conditions, not user input
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting books: %w", err)
	}

	args = append(args, f.Limit)
	limit := next()
	args = append(args, f.Offset)
	offset := next()
	query := fmt.Sprintf("SELECT %s FROM books %s ORDER BY title, id LIMIT %s OFFSET %s", //nolint:gosec // WHERE built from parameterised conditions, not user input
		bookColumns, where, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying books: %w", err)
	}
	defer rows.Close()

	books := []Book{}
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning book: %w", err)
		}
		books = append(books, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating books: %w", err)
	}

	return &ListResult{Books: books, Total: total, Limit: f.Limit, Offset: f.Offset}, nil
}

// Update replaces the stored book's writable fields.
func (r *SQLRepository) Update(ctx context.Context, b *Book) error {
	b.UpdatedAt = r.now()
	res, err := r.db.ExecContext(ctx, `
		UPDATE books SET title = $1, author = $2, isbn = $3, description = $4,
			publication_date = $5, language = $6, genre = $7, cover_image = $8, updated_at = $9
		WHERE id = $10`,
		b.Title, b.Author, b.ISBN, b.Description, nullableString(b.PublicationDate),
		b.Language, b.Genre, b.CoverImage, b.UpdatedAt.Format(timeFormat), b.ID,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return ErrISBNExists
		}
		return fmt.Errorf("updating book: %w", err)
	}
	return expectOneRow(res)
}

// SetCover updates the cover image reference.
func (r *SQLRepository) SetCover(ctx context.Context, id, cover string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE books SET cover_image = $1, updated_at = $2 WHERE id = $3`,
		cover, r.now().Format(timeFormat), id)
	if err != nil {
		return fmt.Errorf("updating book cover: %w", err)
	}
	return expectOneRow(res)
}

// Delete removes a book.
func (r *SQLRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM books WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting book: %w", err)
	}
	return expectOneRow(res)
}

// Count returns the number of books.
func (r *SQLRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM books`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting books: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBook(s rowScanner) (*Book, error) {
	var (
		b                    Book
		pubDate              sql.NullString
		createdAt, updatedAt string
	)
	if err := s.Scan(&b.ID, &b.Title, &b.Author, &b.ISBN, &b.Description, &pubDate,
		&b.Language, &b.Genre, &b.CoverImage, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	b.PublicationDate = pubDate.String

	var err error
	if b.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at %q: %w", createdAt, err)
	}
	if b.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at %q: %w", updatedAt, err)
	}
	return &b, nil
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrBookNotFound
	}
	return nil
}

// nullableString maps "" to SQL NULL.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
