package catalog

import (
	"context"
	"fmt"
	"log/slog"
)

// sampleBooks populate an empty catalog.
var sampleBooks = []Input{
	{
		Title:           "The Hitchhiker's Guide to the Galaxy",
		Author:          "Douglas Adams",
		ISBN:            "9780345391803",
		Description:     "A humorous science fiction novel about a man who is unexpectedly forced to leave Earth just before it is destroyed to make way for a hyperspace bypass.",
		PublicationDate: "1979-10-12",
		Language:        "English",
		Genre:           "Science Fiction",
	},
	{
		Title:           "Pride and Prejudice",
		Author:          "Jane Austen",
		ISBN:            "9780141439518",
		Description:     "A classic romantic novel set in England in the late 18th century, focusing on the Bennet sisters and their search for love and marriage.",
		PublicationDate: "1813-01-28",
		Language:        "English",
		Genre:           "Romance",
	},
}

// SeedBooks adds the sample books if the catalog is empty.
// Returns the number of books created.
func SeedBooks(ctx context.Context, repo Repository, logger *slog.Logger) (int, error) {
	count, err := repo.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("checking book count: %w", err)
	}
	if count > 0 {
		logger.Info("catalog not empty, skipping book seed", "books", count)
		return 0, nil
	}

	for _, in := range sampleBooks {
		b, err := NewBook(in)
		if err != nil {
			return 0, fmt.Errorf("validating seed book %q: %w", in.Title, err)
		}
		if err := repo.Create(ctx, b); err != nil {
			return 0, fmt.Errorf("creating seed book %q: %w", in.Title, err)
		}
	}

	logger.Info("sample books seeded", "books", len(sampleBooks))
	return len(sampleBooks), nil
}
