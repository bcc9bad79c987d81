package catalog

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Validation limits.
const (
	isbnLength           = 13
	maxTitleLength       = 300
	maxAuthorLength      = 200
	maxDescriptionLength = 10000
	maxShortFieldLength  = 64 // language, genre
	maxCoverLength       = 1024

	// DateLayout is the publication date format.
	DateLayout = "2006-01-02"
)

// Book is a catalog entry.
type Book struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Author          string    `json:"author"`
	ISBN            string    `json:"isbn"`
	Description     string    `json:"description,omitempty"`
	PublicationDate string    `json:"publication_date,omitempty"` // YYYY-MM-DD
	Language        string    `json:"language,omitempty"`
	Genre           string    `json:"genre,omitempty"`
	CoverImage      string    `json:"cover_image,omitempty"` // object key or URL
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Input is the writable subset of a Book, used for create and full update.
type Input struct {
	Title           string `json:"title"`
	Author          string `json:"author"`
	ISBN            string `json:"isbn"`
	Description     string `json:"description"`
	PublicationDate string `json:"publication_date"`
	Language        string `json:"language"`
	Genre           string `json:"genre"`
	CoverImage      string `json:"cover_image"`
}

// Normalise trims whitespace and strips ISBN separators in place.
func (in *Input) Normalise() {
	in.Title = strings.TrimSpace(in.Title)
	in.Author = strings.TrimSpace(in.Author)
	in.ISBN = NormaliseISBN(in.ISBN)
	in.Description = strings.TrimSpace(in.Description)
	in.PublicationDate = strings.TrimSpace(in.PublicationDate)
	in.Language = strings.TrimSpace(in.Language)
	in.Genre = strings.TrimSpace(in.Genre)
	in.CoverImage = strings.TrimSpace(in.CoverImage)
}

// Validate checks the input. Call Normalise first.
func (in *Input) Validate() error {
	if err := validateText("title", in.Title, maxTitleLength, true); err != nil {
		return err
	}
	if err := validateText("author", in.Author, maxAuthorLength, true); err != nil {
		return err
	}
	if err := ValidateISBN(in.ISBN); err != nil {
		return err
	}
	if err := validateText("description", in.Description, maxDescriptionLength, false); err != nil {
		return err
	}
	if in.PublicationDate != "" {
		if _, err := time.Parse(DateLayout, in.PublicationDate); err != nil {
			return fmt.Errorf("%w: publication_date must be YYYY-MM-DD", ErrInvalidBook)
		}
	}
	if err := validateText("language", in.Language, maxShortFieldLength, false); err != nil {
		return err
	}
	if err := validateText("genre", in.Genre, maxShortFieldLength, false); err != nil {
		return err
	}
	return validateText("cover_image", in.CoverImage, maxCoverLength, false)
}

// Apply copies the input's fields onto b.
func (in *Input) Apply(b *Book) {
	b.Title = in.Title
	b.Author = in.Author
	b.ISBN = in.ISBN
	b.Description = in.Description
	b.PublicationDate = in.PublicationDate
	b.Language = in.Language
	b.Genre = in.Genre
	b.CoverImage = in.CoverImage
}

// NewBook validates in and returns an unsaved Book.
func NewBook(in Input) (*Book, error) {
	in.Normalise()
	if err := in.Validate(); err != nil {
		return nil, err
	}
	b := &Book{}
	in.Apply(b)
	return b, nil
}

// NormaliseISBN strips hyphens and spaces.
func NormaliseISBN(isbn string) string {
	return strings.Map(func(r rune) rune {
		if r == '-' || r == ' ' {
			return -1
		}
		return r
	}, strings.TrimSpace(isbn))
}

// ValidateISBN checks that isbn is exactly 13 ASCII digits.
func ValidateISBN(isbn string) error {
	if len(isbn) != isbnLength {
		return fmt.Errorf("%w: must be %d digits", ErrInvalidISBN, isbnLength)
	}
	for i := 0; i < len(isbn); i++ {
		if isbn[i] < '0' || isbn[i] > '9' {
			return fmt.Errorf("%w: must contain only digits", ErrInvalidISBN)
		}
	}
	return nil
}

// GenerateID creates a new book ID.
func GenerateID() string {
	return "book-" + uuid.NewString()
}

func validateText(field, value string, maxLen int, required bool) error {
	if required && value == "" {
		return fmt.Errorf("%w: %s cannot be empty", ErrInvalidBook, field)
	}
	if utf8.RuneCountInString(value) > maxLen {
		return fmt.Errorf("%w: %s exceeds %d characters", ErrInvalidBook, field, maxLen)
	}
	return nil
}
