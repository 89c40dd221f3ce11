package query

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/restlessgo/restless"
)

// Query parameter names recognized by Parse.
const (
	ParamFilterObjects = "filter[objects]"
	ParamFilterSingle  = "filter[single]"
	ParamSort          = "sort"
	ParamGroupBy       = "group_by"
	ParamInclude       = "include"
	ParamPageNumber    = "page[number]"
	ParamPageSize      = "page[size]"
)

var fieldsPattern = regexp.MustCompile(`^fields\[([^\]]+)\]$`)

// Sort is one sort criterion: a field (possibly a dotted path crossing
// one relationship hop) and a direction.
type Sort struct {
	Field      string
	Descending bool
}

// Params is the parsed, validated bag of request-level query
// parameters. It is constructed once per request and immutable
// afterwards.
type Params struct {
	Filters    []Expression        // Filter predicate roots, implicitly ANDed.
	Single     bool                // Singleton search: exactly one result expected.
	Sort       []Sort              // Sort criteria in request order.
	GroupBy    []string            // Grouping fields.
	Include    []string            // Dotted relationship inclusion paths.
	Fields     map[string][]string // Sparse fieldsets keyed by resource type.
	PageNumber int                 // 1-based page number.
	PageSize   int                 // Page size; 0 disables pagination.
}

// Options bound the pagination parameters a client may request.
type Options struct {
	DefaultPageSize int // Page size applied when the client sends none.
	MaxPageSize     int // Upper bound on client-requested page sizes.
}

// Parse builds Params from the raw query string values. Malformed
// filter grammar, unknown operators, and out-of-bounds pagination are
// rejected here, before any query is issued.
func Parse(values url.Values, opts Options) (*Params, error) {
	params := &Params{
		Fields:     make(map[string][]string),
		PageNumber: 1,
		PageSize:   opts.DefaultPageSize,
	}

	filters, err := ParseFilters(values.Get(ParamFilterObjects))
	if err != nil {
		var domain *restless.Error
		if !errors.As(err, &domain) {
			err = restless.NewInvalidFilters(err)
		}
		return nil, err
	}
	params.Filters = filters

	if single := values.Get(ParamFilterSingle); single != "" {
		params.Single = single == "1" || strings.EqualFold(single, "true")
	}

	params.Sort = parseSort(values.Get(ParamSort))
	params.GroupBy = splitList(values.Get(ParamGroupBy))
	params.Include = splitList(values.Get(ParamInclude))

	for key, fieldValues := range values {
		matches := fieldsPattern.FindStringSubmatch(key)
		if len(matches) != 2 {
			continue
		}
		fields := []string{}
		if len(fieldValues) > 0 {
			fields = splitList(fieldValues[0])
		}
		params.Fields[matches[1]] = fields
	}

	if err := parsePage(values, opts, params); err != nil {
		return nil, err
	}

	return params, nil
}

// parseSort splits the sort parameter into criteria; a leading "-"
// marks descending order.
func parseSort(raw string) []Sort {
	criteria := make([]Sort, 0)
	for _, token := range splitList(raw) {
		if field, ok := strings.CutPrefix(token, "-"); ok {
			criteria = append(criteria, Sort{Field: field, Descending: true})
			continue
		}
		criteria = append(criteria, Sort{Field: strings.TrimPrefix(token, "+")})
	}
	return criteria
}

func parsePage(values url.Values, opts Options, params *Params) error {
	if raw := values.Get(ParamPageNumber); raw != "" {
		number, err := strconv.Atoi(raw)
		if err != nil {
			return restless.NewInvalidPagination(fmt.Sprintf("page number %q is not an integer", raw))
		}
		if number < 1 {
			return restless.NewInvalidPagination(fmt.Sprintf("page number must be positive, got %d", number))
		}
		params.PageNumber = number
	}

	if raw := values.Get(ParamPageSize); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil {
			return restless.NewInvalidPagination(fmt.Sprintf("page size %q is not an integer", raw))
		}
		if size < 0 {
			return restless.NewInvalidPagination(fmt.Sprintf("page size must not be negative, got %d", size))
		}
		if opts.MaxPageSize > 0 && size > opts.MaxPageSize {
			return restless.NewInvalidPagination(
				fmt.Sprintf("page size %d exceeds the maximum of %d", size, opts.MaxPageSize))
		}
		params.PageSize = size
	}

	return nil
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
