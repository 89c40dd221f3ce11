package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/restlessgo/restless"
	"github.com/restlessgo/restless/query"
	"github.com/restlessgo/restless/schema"
)

// RelatedOne loads the record on the far side of a to-one relationship,
// or nil when the foreign key is null.
func (r *Repository) RelatedOne(ctx context.Context, s *schema.Schema, record Record, rel schema.Relationship) (Record, error) {
	related, ok := r.registry.Get(rel.Type)
	if !ok {
		return nil, restless.NewUnknownRelationship(rel.Name)
	}

	fk := record[rel.Column]
	if fk == nil {
		return nil, nil
	}
	return r.GetByPK(ctx, related, pkString(fk))
}

// RelatedMany loads the page of records on the far side of a to-many
// relationship, applying the request's filters, sort, and pagination to
// the related collection.
func (r *Repository) RelatedMany(ctx context.Context, s *schema.Schema, record Record, rel schema.Relationship, params *query.Params) (*Page, error) {
	related, ok := r.registry.Get(rel.Type)
	if !ok {
		return nil, restless.NewUnknownRelationship(rel.Name)
	}

	builder := newSelectBuilder(r.registry, related)
	if err := builder.apply(params); err != nil {
		return nil, err
	}
	r.constrainToOwner(builder, s, record, rel, related)

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
	if err := r.run.QueryRowContext(ctx, countText, countArgs...).Scan(&page.NumResults); err != nil {
		return nil, translate(err)
	}
	return page, nil
}

// RelatedRefs loads just the primary keys on the far side of a to-many
// relationship, enough to render resource linkage without materializing
// full records.
func (r *Repository) RelatedRefs(ctx context.Context, s *schema.Schema, record Record, rel schema.Relationship) ([]string, error) {
	related, ok := r.registry.Get(rel.Type)
	if !ok {
		return nil, restless.NewUnknownRelationship(rel.Name)
	}

	owner := record[s.PrimaryKeyColumn()]
	var sqlText string
	if rel.Through != "" {
		sqlText = fmt.Sprintf("SELECT %s FROM %s WHERE %s = $1",
			rel.ThroughRemote, rel.Through, rel.ThroughLocal)
	} else {
		sqlText = fmt.Sprintf("SELECT %s FROM %s WHERE %s = $1",
			related.PrimaryKeyColumn(), related.TableName(), rel.Remote)
	}

	rows, err := r.query(ctx, sqlText, []any{owner})
	if err != nil {
		return nil, err
	}
	records, err := scanRecords(rows)
	if err != nil {
		return nil, translate(err)
	}

	refs := make([]string, 0, len(records))
	for _, rec := range records {
		for _, v := range rec {
			refs = append(refs, pkString(v))
		}
	}
	return refs, nil
}

// SetToOne points a to-one relationship at the given related ID, or
// clears it when relatedID is nil.
func (r *Repository) SetToOne(ctx context.Context, s *schema.Schema, id string, rel schema.Relationship, relatedID *string) error {
	var value any
	if relatedID != nil {
		value = *relatedID
	}
	sqlText := fmt.Sprintf("UPDATE %s SET %s = $1 WHERE %s = $2",
		s.TableName(), rel.Column, s.PrimaryKeyColumn())
	result, err := r.exec(ctx, sqlText, []any{value, id})
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return translate(err)
	}
	if affected == 0 {
		return notFound(s, id)
	}
	return nil
}

// ReplaceToMany replaces the full membership of a to-many relationship.
func (r *Repository) ReplaceToMany(ctx context.Context, s *schema.Schema, id string, rel schema.Relationship, relatedIDs []string) error {
	return r.Transact(ctx, func(tx *Repository) error {
		if err := tx.clearToMany(ctx, s, id, rel); err != nil {
			return err
		}
		return tx.AddToMany(ctx, s, id, rel, relatedIDs)
	})
}

// AddToMany links the given related IDs into a to-many relationship.
func (r *Repository) AddToMany(ctx context.Context, s *schema.Schema, id string, rel schema.Relationship, relatedIDs []string) error {
	if len(relatedIDs) == 0 {
		return nil
	}

	if rel.Through != "" {
		values := make([]string, len(relatedIDs))
		args := make([]any, 0, len(relatedIDs)*2)
		for i, relatedID := range relatedIDs {
			values[i] = fmt.Sprintf("($%d, $%d)", i*2+1, i*2+2)
			args = append(args, id, relatedID)
		}
		sqlText := fmt.Sprintf("INSERT INTO %s (%s, %s) VALUES %s",
			rel.Through, rel.ThroughLocal, rel.ThroughRemote, strings.Join(values, ", "))
		_, err := r.exec(ctx, sqlText, args)
		return err
	}

	related, ok := r.registry.Get(rel.Type)
	if !ok {
		return restless.NewUnknownRelationship(rel.Name)
	}
	placeholders := make([]string, len(relatedIDs))
	args := make([]any, 0, len(relatedIDs)+1)
	args = append(args, id)
	for i, relatedID := range relatedIDs {
		placeholders[i] = fmt.Sprintf("$%d", i+2)
		args = append(args, relatedID)
	}
	sqlText := fmt.Sprintf("UPDATE %s SET %s = $1 WHERE %s IN (%s)",
		related.TableName(), rel.Remote, related.PrimaryKeyColumn(), strings.Join(placeholders, ", "))
	_, err := r.exec(ctx, sqlText, args)
	return err
}

// RemoveToMany unlinks the given related IDs from a to-many
// relationship.
func (r *Repository) RemoveToMany(ctx context.Context, s *schema.Schema, id string, rel schema.Relationship, relatedIDs []string) error {
	if len(relatedIDs) == 0 {
		return nil
	}

	if rel.Through != "" {
		placeholders := make([]string, len(relatedIDs))
		args := make([]any, 0, len(relatedIDs)+1)
		args = append(args, id)
		for i, relatedID := range relatedIDs {
			placeholders[i] = fmt.Sprintf("$%d", i+2)
			args = append(args, relatedID)
		}
		sqlText := fmt.Sprintf("DELETE FROM %s WHERE %s = $1 AND %s IN (%s)",
			rel.Through, rel.ThroughLocal, rel.ThroughRemote, strings.Join(placeholders, ", "))
		_, err := r.exec(ctx, sqlText, args)
		return err
	}

	related, ok := r.registry.Get(rel.Type)
	if !ok {
		return restless.NewUnknownRelationship(rel.Name)
	}
	placeholders := make([]string, len(relatedIDs))
	args := make([]any, 0, len(relatedIDs)+1)
	args = append(args, id)
	for i, relatedID := range relatedIDs {
		placeholders[i] = fmt.Sprintf("$%d", i+2)
		args = append(args, relatedID)
	}
	sqlText := fmt.Sprintf("UPDATE %s SET %s = NULL WHERE %s = $1 AND %s IN (%s)",
		related.TableName(), rel.Remote, rel.Remote, related.PrimaryKeyColumn(), strings.Join(placeholders, ", "))
	_, err := r.exec(ctx, sqlText, args)
	return err
}

func (r *Repository) clearToMany(ctx context.Context, s *schema.Schema, id string, rel schema.Relationship) error {
	if rel.Through != "" {
		sqlText := fmt.Sprintf("DELETE FROM %s WHERE %s = $1", rel.Through, rel.ThroughLocal)
		_, err := r.exec(ctx, sqlText, []any{id})
		return err
	}

	related, ok := r.registry.Get(rel.Type)
	if !ok {
		return restless.NewUnknownRelationship(rel.Name)
	}
	sqlText := fmt.Sprintf("UPDATE %s SET %s = NULL WHERE %s = $1",
		related.TableName(), rel.Remote, rel.Remote)
	_, err := r.exec(ctx, sqlText, []any{id})
	return err
}

// constrainToOwner narrows a related-collection query to rows linked to
// the owning record.
func (r *Repository) constrainToOwner(builder *selectBuilder, s *schema.Schema, record Record, rel schema.Relationship, related *schema.Schema) {
	owner := record[s.PrimaryKeyColumn()]
	if rel.Through != "" {
		builder.joins = append(builder.joins,
			fmt.Sprintf(" INNER JOIN %s ON %s.%s = %s.%s",
				rel.Through, rel.Through, rel.ThroughRemote, related.TableName(), related.PrimaryKeyColumn()))
		builder.whereEqual(rel.Through+"."+rel.ThroughLocal, owner)
		return
	}
	builder.whereEqual(related.TableName()+"."+rel.Remote, owner)
}
