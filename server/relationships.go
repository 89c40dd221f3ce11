package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/restlessgo/restless"
	"github.com/restlessgo/restless/schema"
	"github.com/restlessgo/restless/storage"
)

// relationshipRequest gathers the pieces every relationship handler
// needs: the owning schema and record plus the relationship itself.
type relationshipRequest struct {
	schema *schema.Schema
	record storage.Record
	rel    schema.Relationship
	id     string
}

func (a *API) relationshipFromRequest(r *http.Request) (*relationshipRequest, error) {
	s, err := a.schemaFromRequest(r)
	if err != nil {
		return nil, err
	}

	relName := chi.URLParam(r, "relationship")
	rel, ok := s.Relationship(relName)
	if !ok {
		return nil, restless.NewNotFound(
			fmt.Sprintf("no relationship %q on type %q", relName, s.Type))
	}

	id := chi.URLParam(r, "id")
	record, err := a.repo.GetByPK(r.Context(), s, id)
	if err != nil {
		return nil, err
	}

	return &relationshipRequest{schema: s, record: record, rel: rel, id: id}, nil
}

func (a *API) fetchRelationship(w http.ResponseWriter, r *http.Request) {
	if err := a.preprocess(OpFetchRelationship, r); err != nil {
		writeError(w, err)
		return
	}

	req, err := a.relationshipFromRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var doc *restless.Document
	if req.rel.IsToMany() {
		refs, err := a.repo.RelatedRefs(r.Context(), req.schema, req.record, req.rel)
		if err != nil {
			writeError(w, err)
			return
		}
		identifiers := make([]*restless.Resource, len(refs))
		for i, ref := range refs {
			identifiers[i] = &restless.Resource{Type: req.rel.Type, ID: ref}
		}
		doc = restless.NewMultiDocument(identifiers...)
	} else {
		fk := req.record[req.rel.Column]
		if fk == nil {
			doc = restless.NewSingleDocument(nil)
		} else {
			doc = restless.NewSingleDocument(&restless.Resource{
				Type: req.rel.Type,
				ID:   fmt.Sprintf("%v", fk),
			})
		}
	}

	if a.config.includeLinks {
		doc.Links = restless.Links{
			"self": {Href: fmt.Sprintf("%s/%s/%s/relationships/%s",
				a.config.baseURL, req.schema.Type, req.id, req.rel.Name)},
			"related": {Href: fmt.Sprintf("%s/%s/%s/%s",
				a.config.baseURL, req.schema.Type, req.id, req.rel.Name)},
		}
	}

	a.finish(OpFetchRelationship, w, r, http.StatusOK, doc)
}

func (a *API) replaceRelationship(w http.ResponseWriter, r *http.Request) {
	if err := a.preprocess(OpUpdateRelationship, r); err != nil {
		writeError(w, err)
		return
	}

	req, err := a.relationshipFromRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}
	doc, err := decodeDocument(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if !doc.HasData() {
		writeError(w, restless.NewMissingData(req.rel.Name))
		return
	}

	ctx := r.Context()

	if !req.rel.IsToMany() {
		linkage := doc.Data.First()
		if linkage == nil {
			err = a.repo.SetToOne(ctx, req.schema, req.id, req.rel, nil)
		} else if err = a.validateLinkage(ctx, req.rel, linkage); err == nil {
			err = a.repo.SetToOne(ctx, req.schema, req.id, req.rel, &linkage.ID)
		}
		if err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if !a.config.allowToManyReplacement {
		writeError(w, restless.NewMethodNotAllowed(
			"replacing to-many relationships is not enabled for this endpoint"))
		return
	}

	ids, err := a.validateLinkageItems(ctx, req.rel, doc.Data.Items())
	if err != nil {
		writeError(w, err)
		return
	}
	if err := a.repo.ReplaceToMany(ctx, req.schema, req.id, req.rel, ids); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) addToRelationship(w http.ResponseWriter, r *http.Request) {
	if err := a.preprocess(OpUpdateRelationship, r); err != nil {
		writeError(w, err)
		return
	}

	req, err := a.relationshipFromRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if !req.rel.IsToMany() {
		writeError(w, restless.NewMethodNotAllowed(
			"cannot POST to a to-one relationship; use PATCH"))
		return
	}

	doc, err := decodeDocument(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if !doc.HasData() {
		writeError(w, restless.NewMissingData(req.rel.Name))
		return
	}

	ctx := r.Context()
	ids, err := a.validateLinkageItems(ctx, req.rel, doc.Data.Items())
	if err != nil {
		writeError(w, err)
		return
	}
	err = a.repo.Transact(ctx, func(tx *storage.Repository) error {
		return tx.AddToMany(ctx, req.schema, req.id, req.rel, ids)
	})
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) removeFromRelationship(w http.ResponseWriter, r *http.Request) {
	if err := a.preprocess(OpUpdateRelationship, r); err != nil {
		writeError(w, err)
		return
	}

	req, err := a.relationshipFromRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if !req.rel.IsToMany() {
		writeError(w, restless.NewMethodNotAllowed(
			"cannot DELETE from a to-one relationship; use PATCH with null data"))
		return
	}
	if !a.config.allowDeleteFromToMany {
		writeError(w, restless.NewMethodNotAllowed(
			"deleting from to-many relationships is not enabled for this endpoint"))
		return
	}

	doc, err := decodeDocument(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if !doc.HasData() {
		writeError(w, restless.NewMissingData(req.rel.Name))
		return
	}

	ctx := r.Context()
	ids, err := a.validateLinkageItems(ctx, req.rel, doc.Data.Items())
	if err != nil {
		writeError(w, err)
		return
	}
	err = a.repo.Transact(ctx, func(tx *storage.Repository) error {
		return tx.RemoveToMany(ctx, req.schema, req.id, req.rel, ids)
	})
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// validateLinkage checks a single linkage object: identity members,
// type identity, and existence of the referenced resource.
func (a *API) validateLinkage(ctx context.Context, rel schema.Relationship, linkage *restless.Resource) error {
	if linkage.ID == "" {
		return restless.NewMissingID(rel.Name)
	}
	if linkage.Type == "" {
		return restless.NewMissingType(rel.Name)
	}
	if linkage.Type != rel.Type {
		return restless.NewConflictingType(rel.Type, linkage.Type, rel.Name)
	}
	related, ok := a.repo.Registry().Get(rel.Type)
	if !ok {
		return restless.NewUnknownRelationship(rel.Name)
	}
	_, err := a.repo.GetByPK(ctx, related, linkage.ID)
	return err
}

func (a *API) validateLinkageItems(ctx context.Context, rel schema.Relationship, items []*restless.Resource) ([]string, error) {
	ids := make([]string, 0, len(items))
	for _, linkage := range items {
		if err := a.validateLinkage(ctx, rel, linkage); err != nil {
			return nil, err
		}
		ids = append(ids, linkage.ID)
	}
	return ids, nil
}
