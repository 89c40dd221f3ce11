package server

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/restlessgo/restless"
	"github.com/restlessgo/restless/query"
	"github.com/restlessgo/restless/schema"
	"github.com/restlessgo/restless/serialize"
	"github.com/restlessgo/restless/storage"
)

// API serves the registered schemas as JSON:API endpoints. Mount it on
// any mux, or serve it directly; it carries its own router.
type API struct {
	repo   *storage.Repository
	config Config
	router chi.Router
}

// New builds the API over a repository. The repository's registry
// decides which resource types exist.
func New(repo *storage.Repository, options ...Options) *API {
	config := DefaultConfig()
	config.Apply(options...)

	a := &API{repo: repo, config: config}

	r := chi.NewRouter()
	r.Use(requestLogger(config.logger))
	r.Use(negotiate)
	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		writeError(w, restless.NewNotFound(fmt.Sprintf("no route for %q", req.URL.Path)))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		writeError(w, restless.NewMethodNotAllowed(
			fmt.Sprintf("method %s is not allowed for %q", req.Method, req.URL.Path)))
	})

	r.Route("/{type}", func(r chi.Router) {
		r.Get("/", a.fetchCollection)
		r.Post("/", a.create)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", a.fetchOne)
			r.Patch("/", a.update)
			r.Delete("/", a.delete)
			r.Route("/relationships/{relationship}", func(r chi.Router) {
				r.Get("/", a.fetchRelationship)
				r.Patch("/", a.replaceRelationship)
				r.Post("/", a.addToRelationship)
				r.Delete("/", a.removeFromRelationship)
			})
			// Related-resource URLs are read only; writes belong on the
			// relationship URL and are answered with 405.
			r.Get("/{relationship}", a.fetchRelated)
		})
	})

	a.router = r
	return a
}

// ServeHTTP implements http.Handler.
func (a *API) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.router.ServeHTTP(w, r)
}

func (a *API) schemaFromRequest(r *http.Request) (*schema.Schema, error) {
	resourceType := chi.URLParam(r, "type")
	s, ok := a.repo.Registry().Get(resourceType)
	if !ok {
		return nil, restless.NewNotFound(fmt.Sprintf("no collection %q", resourceType))
	}
	return s, nil
}

func (a *API) paramsFromRequest(r *http.Request) (*query.Params, error) {
	return query.Parse(r.URL.Query(), query.Options{
		DefaultPageSize: a.config.defaultPageSize,
		MaxPageSize:     a.config.maxPageSize,
	})
}

func (a *API) serializerFor(s *schema.Schema) serialize.Serializer {
	if ser, ok := a.config.serializers[s.Type]; ok {
		return ser
	}
	return &serialize.DefaultSerializer{
		Repo:         a.repo,
		BaseURL:      a.config.baseURL,
		IncludeLinks: a.config.includeLinks,
	}
}

func (a *API) fetchCollection(w http.ResponseWriter, r *http.Request) {
	if err := a.preprocess(OpFetchCollection, r); err != nil {
		writeError(w, err)
		return
	}

	s, err := a.schemaFromRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}
	params, err := a.paramsFromRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}

	ser := a.serializerFor(s)
	ctx := r.Context()

	if params.Single {
		record, err := a.repo.FindSingle(ctx, s, params)
		if err != nil {
			writeError(w, err)
			return
		}
		doc, err := a.singleDocument(r, s, record, params)
		if err != nil {
			writeError(w, err)
			return
		}
		a.finish(OpFetchCollection, w, r, http.StatusOK, doc)
		return
	}

	page, err := a.repo.Find(ctx, s, params)
	if err != nil {
		writeError(w, err)
		return
	}

	resources, err := serialize.SerializeMany(ctx, ser, s, page.Items, params.Fields[s.Type])
	if err != nil {
		writeError(w, err)
		return
	}
	included, err := serialize.ResolveIncludes(ctx, ser, a.repo, s, page.Items, params.Include, params.Fields)
	if err != nil {
		writeError(w, err)
		return
	}

	doc := restless.NewMultiDocument(resources...)
	doc.Included = included
	doc.Meta = restless.Meta{"total": page.NumResults}
	if a.config.includeLinks {
		doc.Links = a.paginationLinks(r, page)
	}

	a.finish(OpFetchCollection, w, r, http.StatusOK, doc)
}

func (a *API) fetchOne(w http.ResponseWriter, r *http.Request) {
	if err := a.preprocess(OpFetchOne, r); err != nil {
		writeError(w, err)
		return
	}

	s, err := a.schemaFromRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}
	params, err := a.paramsFromRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}

	record, err := a.repo.GetByPK(r.Context(), s, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}

	doc, err := a.singleDocument(r, s, record, params)
	if err != nil {
		writeError(w, err)
		return
	}
	a.finish(OpFetchOne, w, r, http.StatusOK, doc)
}

func (a *API) fetchRelated(w http.ResponseWriter, r *http.Request) {
	if err := a.preprocess(OpFetchRelated, r); err != nil {
		writeError(w, err)
		return
	}

	s, err := a.schemaFromRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}
	params, err := a.paramsFromRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}

	relName := chi.URLParam(r, "relationship")
	related, rel, ok := a.repo.Registry().Related(s, relName)
	if !ok {
		writeError(w, restless.NewNotFound(
			fmt.Sprintf("no relationship %q on type %q", relName, s.Type)))
		return
	}

	ctx := r.Context()
	record, err := a.repo.GetByPK(ctx, s, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}

	ser := a.serializerFor(related)

	if !rel.IsToMany() {
		relatedRecord, err := a.repo.RelatedOne(ctx, s, record, rel)
		if err != nil {
			writeError(w, err)
			return
		}
		if relatedRecord == nil {
			a.finish(OpFetchRelated, w, r, http.StatusOK, restless.NewSingleDocument(nil))
			return
		}
		doc, err := a.singleDocument(r, related, relatedRecord, params)
		if err != nil {
			writeError(w, err)
			return
		}
		a.finish(OpFetchRelated, w, r, http.StatusOK, doc)
		return
	}

	page, err := a.repo.RelatedMany(ctx, s, record, rel, params)
	if err != nil {
		writeError(w, err)
		return
	}
	resources, err := serialize.SerializeMany(ctx, ser, related, page.Items, params.Fields[related.Type])
	if err != nil {
		writeError(w, err)
		return
	}
	included, err := serialize.ResolveIncludes(ctx, ser, a.repo, related, page.Items, params.Include, params.Fields)
	if err != nil {
		writeError(w, err)
		return
	}

	doc := restless.NewMultiDocument(resources...)
	doc.Included = included
	doc.Meta = restless.Meta{"total": page.NumResults}
	if a.config.includeLinks {
		doc.Links = a.paginationLinks(r, page)
	}
	a.finish(OpFetchRelated, w, r, http.StatusOK, doc)
}

// singleDocument serializes one record as primary data with its
// compound-document inclusions.
func (a *API) singleDocument(r *http.Request, s *schema.Schema, record storage.Record, params *query.Params) (*restless.Document, error) {
	ctx := r.Context()
	ser := a.serializerFor(s)

	resource, err := ser.Serialize(ctx, s, record, params.Fields[s.Type])
	if err != nil {
		return nil, err
	}
	included, err := serialize.ResolveIncludes(ctx, ser, a.repo, s, []storage.Record{record}, params.Include, params.Fields)
	if err != nil {
		return nil, err
	}

	doc := restless.NewSingleDocument(resource)
	doc.Included = included
	return doc, nil
}

// finish runs the postprocessors and writes the response.
func (a *API) finish(op Operation, w http.ResponseWriter, r *http.Request, status int, doc *restless.Document) {
	if err := a.postprocess(op, r, doc); err != nil {
		writeError(w, err)
		return
	}
	writeDocument(w, status, doc)
}

// paginationLinks synthesizes self/first/last/prev/next links for a
// page, preserving every other query parameter.
func (a *API) paginationLinks(r *http.Request, page *storage.Page) restless.Links {
	links := restless.Links{
		"self": {Href: a.config.baseURL + r.URL.RequestURI()},
	}
	if page.Size == 0 {
		return links
	}

	links["first"] = &restless.Link{Href: a.pageURL(r.URL, 1)}
	links["last"] = &restless.Link{Href: a.pageURL(r.URL, page.LastPage())}
	if page.HasPrev() {
		links["prev"] = &restless.Link{Href: a.pageURL(r.URL, page.Number-1)}
	}
	if page.HasNext() {
		links["next"] = &restless.Link{Href: a.pageURL(r.URL, page.Number+1)}
	}
	return links
}

func (a *API) pageURL(u *url.URL, number int) string {
	u2 := *u
	values := u2.Query()
	values.Set(query.ParamPageNumber, strconv.Itoa(number))
	u2.RawQuery = values.Encode()
	return a.config.baseURL + u2.RequestURI()
}
