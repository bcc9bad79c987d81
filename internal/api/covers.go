package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/librarium-core/internal/audit"
	"github.com/nerrad567/librarium-core/internal/infrastructure/objectstore"
)

type coverUploadRequest struct {
	ContentType string `json:"content_type"`
}

// handleCreateCoverUpload returns a presigned PUT URL for a book cover and
// records the object key on the book. The client uploads the image bytes
// straight to the bucket.
func (s *Server) handleCreateCoverUpload(w http.ResponseWriter, r *http.Request) {
	if s.covers == nil {
		writeUnavailable(w, "cover storage is not configured")
		return
	}

	id := chi.URLParam(r, "id")

	var req coverUploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if _, err := s.books.GetByID(r.Context(), id); err != nil {
		s.writeBookError(w, err, "failed to prepare cover upload")
		return
	}

	key, err := objectstore.CoverKey(id, req.ContentType)
	if err != nil {
		s.writeCoverError(w, err)
		return
	}

	presigned, err := s.covers.PresignUpload(r.Context(), key, req.ContentType)
	if err != nil {
		s.writeCoverError(w, err)
		return
	}

	if err := s.books.SetCover(r.Context(), id, key); err != nil {
		s.writeBookError(w, err, "failed to prepare cover upload")
		return
	}

	p := principalFromContext(r.Context())
	s.audit.Record(audit.ActionUpdate, audit.EntityBook, id, p.AccountID, map[string]any{"cover_image": key})

	writeJSON(w, http.StatusOK, presigned)
}

// handleGetCover returns a presigned GET URL for the book's cover. Covers
// stored as absolute URLs are returned as-is.
func (s *Server) handleGetCover(w http.ResponseWriter, r *http.Request) {
	book, err := s.books.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeBookError(w, err, "failed to get cover")
		return
	}
	if book.CoverImage == "" {
		writeNotFound(w, "book has no cover")
		return
	}

	if strings.HasPrefix(book.CoverImage, "https://") || strings.HasPrefix(book.CoverImage, "http://") {
		writeJSON(w, http.StatusOK, objectstore.PresignedURL{URL: book.CoverImage, Method: http.MethodGet})
		return
	}

	if s.covers == nil {
		writeUnavailable(w, "cover storage is not configured")
		return
	}

	presigned, err := s.covers.PresignDownload(r.Context(), book.CoverImage)
	if err != nil {
		s.writeCoverError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, presigned)
}

func (s *Server) writeCoverError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, objectstore.ErrUnsupportedType), errors.Is(err, objectstore.ErrInvalidKey):
		writeValidationError(w, err.Error())
	default:
		s.logger.Error("cover presign failed", "error", err)
		writeInternalError(w, "failed to presign cover URL")
	}
}
