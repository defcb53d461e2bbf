package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"

	"github.com/matzehuels/deepsave/pkg/store"
	"github.com/matzehuels/deepsave/pkg/transport/rest"
)

// batchPath matches the class and optional object id at the end of a
// sub-request path, ignoring any mount prefix the client included.
var batchPath = regexp.MustCompile(`(?:^|/)classes/([^/]+)(?:/([^/]+))?$`)

// creates collects the POSTs of one class so they go to the store in a
// single CreateMany call.
type creates struct {
	index []int
	docs  []store.Document
}

func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	var req rest.BatchRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, rest.CodeInvalidJSON, "invalid JSON body: "+err.Error())
		return
	}
	if len(req.Requests) > s.cfg.MaxBatch {
		writeError(w, http.StatusBadRequest, rest.CodeInvalidJSON,
			fmt.Sprintf("too many requests in batch: %d, max %d", len(req.Requests), s.cfg.MaxBatch))
		return
	}

	items := make([]rest.BatchItem, len(req.Requests))
	fail := func(i int, err error) {
		_, body := toAPIError(err)
		items[i] = rest.BatchItem{Error: body}
	}

	byClass := make(map[string]*creates)
	var classes []string
	for i, op := range req.Requests {
		m := batchPath.FindStringSubmatch(op.Path)
		if m == nil {
			items[i] = rest.BatchItem{Error: &rest.APIError{Code: rest.CodeInvalidJSON, Message: "unsupported path " + op.Path}}
			continue
		}
		class, id := m[1], m[2]
		doc := store.Document(op.Body)
		if doc == nil {
			doc = store.Document{}
		}

		switch {
		case op.Method == http.MethodPost && id == "":
			if err := validate(class, doc); err != nil {
				fail(i, err)
				continue
			}
			c, ok := byClass[class]
			if !ok {
				c = &creates{}
				byClass[class] = c
				classes = append(classes, class)
			}
			c.index = append(c.index, i)
			c.docs = append(c.docs, doc)
		case op.Method == http.MethodPut && id != "":
			resp, err := s.update(r, class, id, doc)
			if err != nil {
				fail(i, err)
				continue
			}
			items[i] = rest.BatchItem{Success: resp}
		default:
			items[i] = rest.BatchItem{Error: &rest.APIError{Code: rest.CodeInvalidJSON, Message: "unsupported method " + op.Method + " " + op.Path}}
		}
	}

	for _, class := range classes {
		c := byClass[class]
		results, err := s.store.CreateMany(r.Context(), class, c.docs)
		if err != nil {
			s.cfg.Logger.Error("batch insert failed", "class", class, "size", len(c.docs), "error", err)
			writeAPIError(w, err)
			return
		}
		for j, res := range results {
			i := c.index[j]
			if res.Err != nil {
				fail(i, res.Err)
				continue
			}
			items[i] = rest.BatchItem{Success: &rest.SaveResponse{
				ObjectID:  res.Record.ID,
				CreatedAt: formatTime(res.Record.CreatedAt),
			}}
		}
	}

	writeJSON(w, http.StatusOK, items)
}
