package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/matzehuels/deepsave/pkg/codec"
	deerrors "github.com/matzehuels/deepsave/pkg/errors"
	"github.com/matzehuels/deepsave/pkg/store"
	"github.com/matzehuels/deepsave/pkg/transport/rest"
)

const (
	headerAppID = rest.HeaderAppID
	maxBody     = 8 << 20
)

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	class := chi.URLParam(r, "className")
	doc, ok := decodeDocument(w, r)
	if !ok {
		return
	}
	resp, err := s.create(r, class, doc)
	if err != nil {
		writeAPIError(w, err)
		return
	}
	w.Header().Set("Location", r.URL.Path+"/"+resp.ObjectID)
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	class, id := chi.URLParam(r, "className"), chi.URLParam(r, "objectId")
	doc, ok := decodeDocument(w, r)
	if !ok {
		return
	}
	resp, err := s.update(r, class, id, doc)
	if err != nil {
		writeAPIError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	class, id := chi.URLParam(r, "className"), chi.URLParam(r, "objectId")
	if err := deerrors.ValidateClassName(class); err != nil {
		writeAPIError(w, err)
		return
	}
	rec, err := s.store.Get(r.Context(), class, id)
	if err != nil {
		writeAPIError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, objectJSON(rec))
}

func (s *Server) create(r *http.Request, class string, doc store.Document) (*rest.SaveResponse, error) {
	if err := validate(class, doc); err != nil {
		return nil, err
	}
	rec, err := s.store.Create(r.Context(), class, doc)
	if err != nil {
		return nil, err
	}
	return &rest.SaveResponse{ObjectID: rec.ID, CreatedAt: formatTime(rec.CreatedAt)}, nil
}

func (s *Server) update(r *http.Request, class, id string, doc store.Document) (*rest.SaveResponse, error) {
	if err := validate(class, doc); err != nil {
		return nil, err
	}
	rec, err := s.store.Update(r.Context(), class, id, doc)
	if err != nil {
		return nil, err
	}
	return &rest.SaveResponse{ObjectID: rec.ID, UpdatedAt: formatTime(rec.UpdatedAt)}, nil
}

func validate(class string, doc store.Document) error {
	if err := deerrors.ValidateClassName(class); err != nil {
		return err
	}
	for k := range doc {
		if err := deerrors.ValidateFieldName(k); err != nil {
			return err
		}
	}
	return nil
}

func decodeDocument(w http.ResponseWriter, r *http.Request) (store.Document, bool) {
	var doc store.Document
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody)).Decode(&doc); err != nil {
		writeError(w, http.StatusBadRequest, rest.CodeInvalidJSON, "invalid JSON body: "+err.Error())
		return nil, false
	}
	if doc == nil {
		doc = store.Document{}
	}
	return doc, true
}

func objectJSON(rec store.Record) map[string]any {
	out := make(map[string]any, len(rec.Data)+3)
	for k, v := range rec.Data {
		out[k] = v
	}
	out["objectId"] = rec.ID
	out["createdAt"] = formatTime(rec.CreatedAt)
	out["updatedAt"] = formatTime(rec.UpdatedAt)
	return out
}

func formatTime(t time.Time) string { return t.UTC().Format(codec.DateLayout) }

// =============================================================================
// Responses
// =============================================================================

// toAPIError maps a store or validation error to a status and body.
func toAPIError(err error) (int, *rest.APIError) {
	switch {
	case errors.Is(err, store.ErrNotFound), deerrors.Is(err, deerrors.ErrCodeInvalidObjectID):
		return http.StatusNotFound, &rest.APIError{Code: rest.CodeObjectNotFound, Message: "object not found"}
	case deerrors.Is(err, deerrors.ErrCodeInvalidClass):
		return http.StatusBadRequest, &rest.APIError{Code: rest.CodeInvalidClassName, Message: deerrors.UserMessage(err)}
	case deerrors.Is(err, deerrors.ErrCodeInvalidField):
		return http.StatusBadRequest, &rest.APIError{Code: rest.CodeInvalidKeyName, Message: deerrors.UserMessage(err)}
	case deerrors.Is(err, deerrors.ErrCodeInvalidInput):
		return http.StatusBadRequest, &rest.APIError{Code: rest.CodeIncorrectType, Message: deerrors.UserMessage(err)}
	default:
		return http.StatusInternalServerError, &rest.APIError{Code: rest.CodeInternal, Message: err.Error()}
	}
}

func writeAPIError(w http.ResponseWriter, err error) {
	status, body := toAPIError(err)
	writeJSON(w, status, body)
}

func writeError(w http.ResponseWriter, status, code int, msg string) {
	writeJSON(w, status, &rest.APIError{Code: code, Message: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
