package server

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/restlessgo/restless"
	"github.com/restlessgo/restless/schema"
	"github.com/restlessgo/restless/serialize"
	"github.com/restlessgo/restless/storage"
)

func decodeDocument(r *http.Request) (*restless.Document, error) {
	doc := &restless.Document{}
	if err := restless.Decode(r.Body, doc); err != nil {
		return nil, restless.NewMalformedDocument(err)
	}
	return doc, nil
}

func (a *API) create(w http.ResponseWriter, r *http.Request) {
	if err := a.preprocess(OpCreate, r); err != nil {
		writeError(w, err)
		return
	}

	s, err := a.schemaFromRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}
	doc, err := decodeDocument(r)
	if err != nil {
		writeError(w, err)
		return
	}

	ctx := r.Context()
	des := &serialize.DefaultDeserializer{Repo: a.repo}
	payload, err := des.DeserializeDocument(ctx, s, doc, true)
	if err != nil {
		writeError(w, err)
		return
	}

	var record storage.Record
	err = a.repo.Transact(ctx, func(tx *storage.Repository) error {
		var txErr error
		record, txErr = tx.Insert(ctx, s, payload.Values)
		if txErr != nil {
			return txErr
		}
		id := recordID(s, record)
		for name, ids := range payload.ToMany {
			rel, _ := s.Relationship(name)
			if txErr = tx.AddToMany(ctx, s, id, rel, ids); txErr != nil {
				return txErr
			}
		}
		return nil
	})
	if err != nil {
		writeError(w, err)
		return
	}

	params, err := a.paramsFromRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}
	responseDoc, err := a.singleDocument(r, s, record, params)
	if err != nil {
		writeError(w, err)
		return
	}

	location := fmt.Sprintf("%s/%s/%s", a.config.baseURL, s.Type, recordID(s, record))
	w.Header().Set("Location", location)
	a.finish(OpCreate, w, r, http.StatusCreated, responseDoc)
}

func (a *API) update(w http.ResponseWriter, r *http.Request) {
	if err := a.preprocess(OpUpdate, r); err != nil {
		writeError(w, err)
		return
	}

	s, err := a.schemaFromRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}
	doc, err := decodeDocument(r)
	if err != nil {
		writeError(w, err)
		return
	}

	ctx := r.Context()
	id := chi.URLParam(r, "id")

	des := &serialize.DefaultDeserializer{Repo: a.repo}
	payload, err := des.DeserializeDocument(ctx, s, doc, false)
	if err != nil {
		writeError(w, err)
		return
	}
	if payload.ID != "" && payload.ID != id {
		writeError(w, restless.NewConflict(
			fmt.Sprintf("resource ID %q does not match endpoint ID %q", payload.ID, id)))
		return
	}
	delete(payload.Values, s.PrimaryKeyColumn())

	if len(payload.ToMany) > 0 && !a.config.allowToManyReplacement {
		writeError(w, restless.NewMethodNotAllowed(
			"replacing to-many relationships is not enabled for this endpoint"))
		return
	}

	var record storage.Record
	err = a.repo.Transact(ctx, func(tx *storage.Repository) error {
		var txErr error
		record, txErr = tx.Update(ctx, s, id, payload.Values)
		if txErr != nil {
			return txErr
		}
		for name, ids := range payload.ToMany {
			rel, _ := s.Relationship(name)
			if txErr = tx.ReplaceToMany(ctx, s, id, rel, ids); txErr != nil {
				return txErr
			}
		}
		return nil
	})
	if err != nil {
		writeError(w, err)
		return
	}

	params, err := a.paramsFromRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}
	responseDoc, err := a.singleDocument(r, s, record, params)
	if err != nil {
		writeError(w, err)
		return
	}
	a.finish(OpUpdate, w, r, http.StatusOK, responseDoc)
}

func (a *API) delete(w http.ResponseWriter, r *http.Request) {
	if err := a.preprocess(OpDelete, r); err != nil {
		writeError(w, err)
		return
	}

	s, err := a.schemaFromRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}

	err = a.repo.Transact(r.Context(), func(tx *storage.Repository) error {
		return tx.Delete(r.Context(), s, chi.URLParam(r, "id"))
	})
	if err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// recordID renders a record's primary key as it appears in URLs.
func recordID(s *schema.Schema, record storage.Record) string {
	value := record[s.PrimaryKeyColumn()]
	if value == nil {
		return ""
	}
	if str, ok := value.(string); ok {
		return str
	}
	return fmt.Sprintf("%v", value)
}
