package server

import (
	"errors"
	"fmt"
	"net/http"
	"sort"

	"github.com/restlessgo/restless"
)

// writeDocument renders the response document with the JSON:API media
// type and version member. Document links are mirrored into the Link
// HTTP header.
func writeDocument(w http.ResponseWriter, status int, doc *restless.Document) {
	doc.JSONAPI = restless.JSONAPI{Version: restless.Version}

	header := w.Header()
	header.Set("Content-Type", restless.MediaType)
	for _, rel := range sortedLinkRels(doc.Links) {
		link := doc.Links[rel]
		if link == nil || link.Href == "" {
			continue
		}
		header.Add("Link", fmt.Sprintf("<%s>; rel=%q", link.Href, rel))
	}

	w.WriteHeader(status)
	if err := restless.Encode(w, doc); err != nil {
		// Headers are gone; nothing left to do but note it.
		return
	}
}

// writeError renders any failure as a JSON:API error document with the
// taxonomy's status code.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError

	var multi restless.MultiError
	var domain *restless.Error
	switch {
	case errors.As(err, &multi):
		status = multi.HTTPStatus()
	case errors.As(err, &domain):
		status = domain.HTTPStatus()
	}

	doc := restless.ErrorDocument(restless.Unpack(err)...)
	w.Header().Set("Content-Type", restless.MediaType)
	w.WriteHeader(status)
	restless.Encode(w, doc) //nolint:errcheck // headers already sent
}

func sortedLinkRels(links restless.Links) []string {
	rels := make([]string, 0, len(links))
	for rel := range links {
		rels = append(rels, rel)
	}
	sort.Strings(rels)
	return rels
}
