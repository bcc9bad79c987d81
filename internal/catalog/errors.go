package catalog

import "errors"

// Domain errors for the catalog package.
//
//	if errors.Is(err, catalog.ErrBookNotFound) {
//	    // handle not found case
//	}
var (
	// ErrBookNotFound is returned when a book ID does not exist.
	ErrBookNotFound = errors.New("catalog: book not found")

	// ErrISBNExists is returned when another book already has the ISBN.
	ErrISBNExists = errors.New("catalog: isbn already exists")

	// ErrInvalidBook is returned when book validation fails.
	ErrInvalidBook = errors.New("catalog: invalid book")

	// ErrInvalidISBN is returned when an ISBN is not 13 digits.
	ErrInvalidISBN = errors.New("catalog: invalid isbn")
)
