package server

import (
	"net/http"

	"github.com/restlessgo/restless"
)

// Preprocessor runs before an operation touches storage. Returning an
// error aborts the request with that error's document.
type Preprocessor func(r *http.Request) error

// Postprocessor runs after an operation succeeds, with the outgoing
// document available for inspection or modification.
type Postprocessor func(r *http.Request, doc *restless.Document) error

func (a *API) preprocess(op Operation, r *http.Request) error {
	for _, hook := range a.config.preprocessors[op] {
		if err := hook(r); err != nil {
			return err
		}
	}
	return nil
}

func (a *API) postprocess(op Operation, r *http.Request, doc *restless.Document) error {
	for _, hook := range a.config.postprocessors[op] {
		if err := hook(r, doc); err != nil {
			return err
		}
	}
	return nil
}
