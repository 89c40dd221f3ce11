package storage

import (
	"context"

	"go.uber.org/zap"

	"github.com/restlessgo/restless"
	"github.com/restlessgo/restless/query"
	"github.com/restlessgo/restless/schema"
)

// Page is one window of a collection result, along with the totals the
// response envelope needs to render pagination links and meta.
type Page struct {
	Items      []Record
	Number     int // 1-based page number; 1 when pagination is off.
	Size       int // Requested page size; 0 when pagination is off.
	NumResults int // Matching rows across every page.
}

// LastPage returns the number of the final page. An empty collection
// still has one page.
func (p *Page) LastPage() int {
	if p.Size == 0 || p.NumResults == 0 {
		return 1
	}
	last := p.NumResults / p.Size
	if p.NumResults%p.Size != 0 {
		last++
	}
	return last
}

// HasPrev reports whether a previous page exists.
func (p *Page) HasPrev() bool { return p.Size > 0 && p.Number > 1 }

// HasNext reports whether a subsequent page exists.
func (p *Page) HasNext() bool { return p.Size > 0 && p.Number < p.LastPage() }

// Find runs the collection query described by params and returns the
// requested page. With pagination disabled (page size zero) every
// matching row is returned on a single page.
//
// When the first page comes back shorter than the page size, the page
// is necessarily the whole collection, so the separate count query is
// skipped.
func (r *Repository) Find(ctx context.Context, s *schema.Schema, params *query.Params) (*Page, error) {
	builder := newSelectBuilder(r.registry, s)
	if err := builder.apply(params); err != nil {
		return nil, err
	}

	page := &Page{Number: params.PageNumber, Size: params.PageSize}

	limit, offset := 0, 0
	if params.PageSize > 0 {
		limit = params.PageSize
		offset = (params.PageNumber - 1) * params.PageSize
	}

	sqlText, args := builder.selectSQL(limit, offset)
	rows, err := r.query(ctx, sqlText, args)
	if err != nil {
		return nil, err
	}
	items, err := scanRecords(rows)
	if err != nil {
		return nil, translate(err)
	}
	page.Items = items

	if params.PageSize == 0 || (params.PageNumber == 1 && len(items) < params.PageSize) {
		page.NumResults = len(items)
		return page, nil
	}

	countText, countArgs := builder.countSQL()
	r.logger.Debug("executing count query", zap.String("sql", countText))
	if err := r.run.QueryRowContext(ctx, countText, countArgs...).Scan(&page.NumResults); err != nil {
		return nil, translate(err)
	}
	return page, nil
}

// FindSingle runs the collection query expecting exactly one match,
// the filter[single] contract. Zero or multiple matches are reported
// as not-found conditions.
func (r *Repository) FindSingle(ctx context.Context, s *schema.Schema, params *query.Params) (Record, error) {
	builder := newSelectBuilder(r.registry, s)
	if err := builder.apply(params); err != nil {
		return nil, err
	}

	// Two rows are enough to distinguish "one" from "many".
	sqlText, args := builder.selectSQL(2, 0)
	rows, err := r.query(ctx, sqlText, args)
	if err != nil {
		return nil, err
	}
	items, err := scanRecords(rows)
	if err != nil {
		return nil, translate(err)
	}

	switch len(items) {
	case 0:
		return nil, restless.NewNotFound("no result found")
	case 1:
		return items[0], nil
	default:
		return nil, restless.NewNotFound("multiple results found")
	}
}
