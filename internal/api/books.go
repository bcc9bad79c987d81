package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/librarium-core/internal/audit"
	"github.com/nerrad567/librarium-core/internal/auth"
	"github.com/nerrad567/librarium-core/internal/catalog"
	"github.com/nerrad567/librarium-core/internal/infrastructure/mqtt"
)

// Catalog event names. WebSocket channels are prefixed with "catalog.".
const (
	eventBookCreated = "book_created"
	eventBookUpdated = "book_updated"
	eventBookDeleted = "book_deleted"
)

// catalogEvent is the payload broadcast on book changes.
type catalogEvent struct {
	Event   string        `json:"event"`
	BookID  string        `json:"book_id"`
	Book    *catalog.Book `json:"book,omitempty"`
	ActorID string        `json:"actor_id"`
}

// handleListBooks returns a page of books.
//
// Query parameters:
//   - q: substring match on title or author
//   - author, genre, language: exact (case-insensitive) match
//   - limit: max results (default 50, max 200)
//   - offset: pagination offset
func (s *Server) handleListBooks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := catalog.Filter{
		Query:    q.Get("q"),
		Author:   q.Get("author"),
		Genre:    q.Get("genre"),
		Language: q.Get("language"),
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Offset = n
		}
	}

	result, err := s.books.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("list books failed", "error", err)
		writeInternalError(w, "failed to list books")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleGetBook returns a single book.
func (s *Server) handleGetBook(w http.ResponseWriter, r *http.Request) {
	book, err := s.books.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeBookError(w, err, "failed to get book")
		return
	}
	writeJSON(w, http.StatusOK, book)
}

// handleGetBookByISBN looks a book up by ISBN. Hyphens and spaces in the
// path are ignored.
func (s *Server) handleGetBookByISBN(w http.ResponseWriter, r *http.Request) {
	book, err := s.books.GetByISBN(r.Context(), chi.URLParam(r, "isbn"))
	if err != nil {
		s.writeBookError(w, err, "failed to get book")
		return
	}
	writeJSON(w, http.StatusOK, book)
}

// handleCreateBook adds a book to the catalog.
func (s *Server) handleCreateBook(w http.ResponseWriter, r *http.Request) {
	var in catalog.Input
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	book, err := catalog.NewBook(in)
	if err != nil {
		s.writeBookError(w, err, "failed to create book")
		return
	}
	if err := s.books.Create(r.Context(), book); err != nil {
		s.writeBookError(w, err, "failed to create book")
		return
	}

	s.publishCatalogEvent(r, eventBookCreated, book.ID, book)
	writeJSON(w, http.StatusCreated, book)
}

// handleUpdateBook replaces a book's writable fields.
func (s *Server) handleUpdateBook(w http.ResponseWriter, r *http.Request) {
	var in catalog.Input
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	in.Normalise()
	if err := in.Validate(); err != nil {
		s.writeBookError(w, err, "failed to update book")
		return
	}

	book, err := s.books.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeBookError(w, err, "failed to update book")
		return
	}
	in.Apply(book)

	if err := s.books.Update(r.Context(), book); err != nil {
		s.writeBookError(w, err, "failed to update book")
		return
	}

	s.publishCatalogEvent(r, eventBookUpdated, book.ID, book)
	writeJSON(w, http.StatusOK, book)
}

// handleDeleteBook removes a book.
func (s *Server) handleDeleteBook(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.books.Delete(r.Context(), id); err != nil {
		s.writeBookError(w, err, "failed to delete book")
		return
	}

	s.publishCatalogEvent(r, eventBookDeleted, id, nil)
	w.WriteHeader(http.StatusNoContent)
}

// publishCatalogEvent fans a book change out to WebSocket subscribers,
// MQTT, metrics and the audit trail. MQTT failures are logged, not returned:
// the database write already succeeded.
func (s *Server) publishCatalogEvent(r *http.Request, event, bookID string, book *catalog.Book) {
	actor := principalFromContext(r.Context())
	var actorID string
	if actor != nil {
		actorID = actor.AccountID
	}

	payload := catalogEvent{Event: event, BookID: bookID, Book: book, ActorID: actorID}

	s.hub.Broadcast("catalog."+event, payload)
	s.metrics.CatalogEvent(event)

	if s.mqtt != nil {
		if err := s.mqtt.PublishEvent(mqtt.Topics{}.CatalogEvent(event), payload); err != nil {
			s.logger.Warn("catalog event publish failed", "event", event, "book_id", bookID, "error", err)
		}
	}

	action := audit.ActionUpdate
	switch event {
	case eventBookCreated:
		action = audit.ActionCreate
	case eventBookDeleted:
		action = audit.ActionDelete
	}
	var details map[string]any
	if book != nil {
		details = map[string]any{"isbn": book.ISBN, "title": book.Title}
	}
	s.audit.Record(action, audit.EntityBook, bookID, actorID, details)

	s.logger.Info("catalog changed", "event", event, "book_id", bookID, "by", actorID, "role", roleOf(actor))
}

func roleOf(p *auth.Principal) auth.Role {
	if p == nil {
		return ""
	}
	return p.Role
}

// writeBookError maps catalog errors to responses.
func (s *Server) writeBookError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, catalog.ErrBookNotFound):
		writeNotFound(w, "book not found")
	case errors.Is(err, catalog.ErrInvalidBook), errors.Is(err, catalog.ErrInvalidISBN):
		writeValidationError(w, err.Error())
	case errors.Is(err, catalog.ErrISBNExists):
		writeConflict(w, err.Error())
	default:
		s.logger.Error(fallback, "error", err)
		writeInternalError(w, fallback)
	}
}
