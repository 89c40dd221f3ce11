package restless

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
)

// ErrorKind enumerates every request-failure condition this module can
// report. Each kind maps to a default HTTP status; validation failures
// are values of this taxonomy rather than panics, so callers can branch
// on the kind with errors.As.
type ErrorKind int

const (
	// KindInternal covers unexpected processing failures.
	KindInternal ErrorKind = iota
	// KindMissingData is raised when a document or relationship object
	// lacks the required "data" element.
	KindMissingData
	// KindMissingType is raised when a resource or linkage object lacks
	// the required "type" element.
	KindMissingType
	// KindMissingID is raised when a linkage object lacks the required
	// "id" element.
	KindMissingID
	// KindConflictingType is raised when a declared type does not match
	// the type registered for the endpoint or relationship.
	KindConflictingType
	// KindUnknownAttribute is raised when a document names an attribute
	// the model does not have.
	KindUnknownAttribute
	// KindUnknownRelationship is raised when a document names a
	// relationship the model does not have.
	KindUnknownRelationship
	// KindClientGeneratedID is raised when a create document carries an
	// id and the endpoint disallows client-generated IDs.
	KindClientGeneratedID
	// KindUnknownField is raised when a filter or sort names a field
	// that does not resolve on the target model.
	KindUnknownField
	// KindComparisonToNull is raised when a filter compares a field to
	// null through anything other than the nullness operators.
	KindComparisonToNull
	// KindInvalidPagination is raised for negative page bounds or a page
	// size above the configured maximum.
	KindInvalidPagination
	// KindNotFound covers missing resources, collections, and singleton
	// searches with zero or multiple results.
	KindNotFound
	// KindMethodNotAllowed is raised for writes against URL shapes that
	// do not accept them.
	KindMethodNotAllowed
	// KindSerializationFailed wraps failures raised by serializer hooks.
	KindSerializationFailed
	// KindConflict covers storage integrity violations.
	KindConflict
	// KindUnsupportedMediaType is raised when a write body does not
	// carry the JSON:API media type.
	KindUnsupportedMediaType
	// KindNotAcceptable is raised when the Accept header excludes the
	// JSON:API media type.
	KindNotAcceptable
	// KindMalformedDocument is raised when a request body cannot be
	// decoded as a JSON:API document.
	KindMalformedDocument
	// KindInvalidFilters is raised when the filter grammar cannot be
	// parsed: malformed JSON, unknown operators, or missing members.
	KindInvalidFilters
	// KindInvalidAttribute is raised when a declared attribute carries a
	// value that cannot be converted to its field kind.
	KindInvalidAttribute
)

// HTTPStatus returns the default HTTP status code for the kind.
func (k ErrorKind) HTTPStatus() int {
	switch k {
	case KindMissingData, KindMissingType, KindMissingID,
		KindUnknownAttribute, KindUnknownRelationship,
		KindClientGeneratedID, KindUnknownField,
		KindComparisonToNull, KindInvalidPagination,
		KindMalformedDocument, KindInvalidFilters,
		KindInvalidAttribute:
		return http.StatusBadRequest
	case KindConflictingType, KindConflict:
		return http.StatusConflict
	case KindNotFound:
		return http.StatusNotFound
	case KindMethodNotAllowed:
		return http.StatusMethodNotAllowed
	case KindUnsupportedMediaType:
		return http.StatusUnsupportedMediaType
	case KindNotAcceptable:
		return http.StatusNotAcceptable
	default:
		return http.StatusInternalServerError
	}
}

// code returns the application error code rendered on the wire.
func (k ErrorKind) code() string {
	switch k {
	case KindMissingData:
		return "missing_data"
	case KindMissingType:
		return "missing_type"
	case KindMissingID:
		return "missing_id"
	case KindConflictingType:
		return "conflicting_type"
	case KindUnknownAttribute:
		return "unknown_attribute"
	case KindUnknownRelationship:
		return "unknown_relationship"
	case KindClientGeneratedID:
		return "client_generated_id_not_allowed"
	case KindUnknownField:
		return "unknown_field"
	case KindComparisonToNull:
		return "comparison_to_null"
	case KindInvalidPagination:
		return "invalid_pagination"
	case KindNotFound:
		return "not_found"
	case KindMethodNotAllowed:
		return "method_not_allowed"
	case KindSerializationFailed:
		return "serialization_failed"
	case KindConflict:
		return "conflict"
	case KindUnsupportedMediaType:
		return "unsupported_media_type"
	case KindNotAcceptable:
		return "not_acceptable"
	case KindMalformedDocument:
		return "malformed_document"
	case KindInvalidFilters:
		return "invalid_filters"
	case KindInvalidAttribute:
		return "invalid_attribute"
	default:
		return "internal"
	}
}

// Error is both a domain error and a JSON:API error object. The Kind
// and the structured fields (Field, Relation, ExpectedType, GivenType)
// are for callers; the remaining members render on the wire.
// See https://jsonapi.org/format/#error-objects.
type Error struct {
	Kind   ErrorKind    // The failure condition.
	Status string       // HTTP status code, rendered as a string.
	Code   string       // Application-specific error code.
	Title  string       // Short summary of the problem.
	Detail string       // Specific explanation of this occurrence.
	Source *ErrorSource // Reference to the offending document member.
	Meta   Meta         // Non-standard information.

	Field        string // Offending attribute, relationship, or filter field.
	Relation     string // Relationship scope; empty at resource scope.
	ExpectedType string // Expected resource type for type conflicts.
	GivenType    string // Type given by the client for type conflicts.
}

// Error returns the combined title and detail as a single message.
func (e *Error) Error() string {
	if e.Title != "" && e.Detail != "" {
		return fmt.Sprintf("%s: %s", e.Title, e.Detail)
	}
	if e.Detail != "" {
		return e.Detail
	}
	return e.Title
}

// HTTPStatus returns the HTTP status for this error, preferring the
// explicit wire status over the kind default.
func (e *Error) HTTPStatus() int {
	if e.Status != "" {
		if status, err := strconv.Atoi(e.Status); err == nil {
			return status
		}
	}
	return e.Kind.HTTPStatus()
}

// MarshalJSON serializes the wire members of the error object.
func (e Error) MarshalJSON() ([]byte, error) {
	type out struct {
		Status string       `json:"status,omitempty"`
		Code   string       `json:"code,omitempty"`
		Title  string       `json:"title,omitempty"`
		Detail string       `json:"detail,omitempty"`
		Source *ErrorSource `json:"source,omitempty"`
		Meta   Meta         `json:"meta,omitempty"`
	}
	return json.Marshal(out{
		Status: e.Status,
		Code:   e.Code,
		Title:  e.Title,
		Detail: e.Detail,
		Source: e.Source,
		Meta:   e.Meta,
	})
}

// UnmarshalJSON deserializes an error object, recovering the kind from
// the wire code when possible.
func (e *Error) UnmarshalJSON(data []byte) error {
	type in struct {
		Status string       `json:"status,omitempty"`
		Code   string       `json:"code,omitempty"`
		Title  string       `json:"title,omitempty"`
		Detail string       `json:"detail,omitempty"`
		Source *ErrorSource `json:"source,omitempty"`
		Meta   Meta         `json:"meta,omitempty"`
	}
	node := in{}
	if err := json.Unmarshal(data, &node); err != nil {
		return err
	}
	e.Status = node.Status
	e.Code = node.Code
	e.Title = node.Title
	e.Detail = node.Detail
	e.Source = node.Source
	e.Meta = node.Meta
	return nil
}

// ErrorSource references the primary source of an error: a JSON pointer
// into the request document or the offending query parameter.
type ErrorSource struct {
	Pointer   string `json:"pointer,omitempty"`
	Parameter string `json:"parameter,omitempty"`
}

// newError builds an error of the given kind with wire status and code
// derived from the kind.
func newError(kind ErrorKind, detail string) *Error {
	return &Error{
		Kind:   kind,
		Status: strconv.Itoa(kind.HTTPStatus()),
		Code:   kind.code(),
		Detail: detail,
	}
}

// NewMissingData reports a document or linkage object without a "data"
// element. relation is empty at resource scope.
func NewMissingData(relation string) *Error {
	err := newError(KindMissingData, missingElementDetail("data", relation))
	err.Relation = relation
	return err
}

// NewMissingType reports a resource or linkage object without a "type"
// element. relation is empty at resource scope.
func NewMissingType(relation string) *Error {
	err := newError(KindMissingType, missingElementDetail("type", relation))
	err.Relation = relation
	return err
}

// NewMissingID reports a linkage object without an "id" element.
func NewMissingID(relation string) *Error {
	err := newError(KindMissingID, missingElementDetail("id", relation))
	err.Relation = relation
	return err
}

func missingElementDetail(element, relation string) string {
	if relation == "" {
		return fmt.Sprintf("missing %q element", element)
	}
	return fmt.Sprintf("missing %q element in linkage object for relationship %q", element, relation)
}

// NewConflictingType reports a declared type that does not match the
// registered type. relation is empty at resource scope.
func NewConflictingType(expected, given, relation string) *Error {
	var detail string
	if relation == "" {
		detail = fmt.Sprintf("expected type %q but got type %q", expected, given)
	} else {
		detail = fmt.Sprintf("expected type %q but got type %q in linkage object for relationship %q",
			expected, given, relation)
	}
	err := newError(KindConflictingType, detail)
	err.ExpectedType = expected
	err.GivenType = given
	err.Relation = relation
	return err
}

// NewUnknownAttribute reports an attribute name the model does not have.
func NewUnknownAttribute(field string) *Error {
	err := newError(KindUnknownAttribute, fmt.Sprintf("model has no attribute %q", field))
	err.Field = field
	err.Source = &ErrorSource{Pointer: "/data/attributes/" + field}
	return err
}

// NewUnknownRelationship reports a relationship name the model does not
// have.
func NewUnknownRelationship(field string) *Error {
	err := newError(KindUnknownRelationship, fmt.Sprintf("model has no relationship %q", field))
	err.Field = field
	err.Source = &ErrorSource{Pointer: "/data/relationships/" + field}
	return err
}

// NewClientGeneratedID reports a create document carrying an id when the
// endpoint disallows client-generated IDs.
func NewClientGeneratedID() *Error {
	return newError(KindClientGeneratedID, "server does not allow client-generated IDs")
}

// NewUnknownField reports a filter or sort field that does not resolve
// on the target model.
func NewUnknownField(field string) *Error {
	err := newError(KindUnknownField, fmt.Sprintf("no such field %q", field))
	err.Field = field
	err.Source = &ErrorSource{Parameter: "filter[objects]"}
	return err
}

// NewComparisonToNull reports a filter that compares a field to null
// through a non-nullness operator.
func NewComparisonToNull(field string) *Error {
	err := newError(KindComparisonToNull,
		fmt.Sprintf("cannot compare field %q to null; use the is_null or is_not_null operators", field))
	err.Field = field
	err.Source = &ErrorSource{Parameter: "filter[objects]"}
	return err
}

// NewInvalidPagination reports out-of-bounds page parameters.
func NewInvalidPagination(detail string) *Error {
	return newError(KindInvalidPagination, detail)
}

// NewNotFound reports a missing resource, collection, or singleton
// result.
func NewNotFound(detail string) *Error {
	return newError(KindNotFound, detail)
}

// NewMethodNotAllowed reports a write against a URL shape that does not
// accept it.
func NewMethodNotAllowed(detail string) *Error {
	return newError(KindMethodNotAllowed, detail)
}

// NewSerializationFailed wraps a serializer hook failure, recording the
// type and id of the offending instance.
func NewSerializationFailed(resourceType, resourceID string, cause error) *Error {
	err := newError(KindSerializationFailed,
		fmt.Sprintf("failed to serialize resource of type %q with ID %q: %s", resourceType, resourceID, cause))
	err.ExpectedType = resourceType
	err.Meta = Meta{"type": resourceType, "id": resourceID}
	return err
}

// NewConflict reports a storage integrity violation.
func NewConflict(detail string) *Error {
	return newError(KindConflict, detail)
}

// NewUnsupportedMediaType reports a write body without the JSON:API
// media type.
func NewUnsupportedMediaType() *Error {
	return newError(KindUnsupportedMediaType,
		fmt.Sprintf("request body must have the %q media type", MediaType))
}

// NewNotAcceptable reports an Accept header that excludes the JSON:API
// media type.
func NewNotAcceptable() *Error {
	return newError(KindNotAcceptable,
		fmt.Sprintf("request must accept the %q media type", MediaType))
}

// NewInvalidAttribute reports a declared attribute whose value could
// not be converted to the field's kind.
func NewInvalidAttribute(field string, cause error) *Error {
	err := newError(KindInvalidAttribute,
		fmt.Sprintf("invalid value for attribute %q: %s", field, cause))
	err.Field = field
	err.Source = &ErrorSource{Pointer: "/data/attributes/" + field}
	return err
}

// NewInvalidFilters reports filter grammar that could not be parsed.
func NewInvalidFilters(cause error) *Error {
	err := newError(KindInvalidFilters, fmt.Sprintf("unable to construct query: %s", cause))
	err.Source = &ErrorSource{Parameter: "filter[objects]"}
	return err
}

// NewMalformedDocument reports a request body that could not be decoded
// as a JSON:API document.
func NewMalformedDocument(cause error) *Error {
	return newError(KindMalformedDocument,
		fmt.Sprintf("unable to decode request body: %s", cause))
}

// NewInternal wraps an unexpected processing failure.
func NewInternal(cause error) *Error {
	return newError(KindInternal, cause.Error())
}

// AsError extracts a taxonomy error from err, wrapping foreign errors
// as KindInternal so every failure renders uniformly at the boundary.
func AsError(err error) *Error {
	var domain *Error
	if errors.As(err, &domain) {
		return domain
	}
	return NewInternal(err)
}

// MultiError aggregates failures that occur per instance, such as
// serialization of a collection, so each one renders as its own error
// object in the response document.
type MultiError []*Error

// Error returns the first failure's message, annotated with the count.
func (m MultiError) Error() string {
	if len(m) == 0 {
		return "no errors"
	}
	if len(m) == 1 {
		return m[0].Error()
	}
	return fmt.Sprintf("%s (and %d more)", m[0].Error(), len(m)-1)
}

// HTTPStatus returns the status shared by the aggregated failures, or
// 500 when they disagree.
func (m MultiError) HTTPStatus() int {
	if len(m) == 0 {
		return http.StatusInternalServerError
	}
	status := m[0].HTTPStatus()
	for _, err := range m[1:] {
		if err.HTTPStatus() != status {
			return http.StatusInternalServerError
		}
	}
	return status
}

// Unpack extracts the error objects rendered by err: every element of a
// MultiError, the single object of an *Error, or a synthetic internal
// error object for anything else.
func Unpack(err error) []*Error {
	var multi MultiError
	if errors.As(err, &multi) {
		return multi
	}
	return []*Error{AsError(err)}
}

// ErrorDocument renders one or more errors as a JSON:API error document.
func ErrorDocument(errs ...*Error) *Document {
	return &Document{
		JSONAPI: JSONAPI{Version: Version},
		Errors:  errs,
	}
}
