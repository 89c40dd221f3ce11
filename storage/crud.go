package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/restlessgo/restless"
	"github.com/restlessgo/restless/schema"
)

// GetByPK fetches the record with the given primary key value.
func (r *Repository) GetByPK(ctx context.Context, s *schema.Schema, id string) (Record, error) {
	builder := newSelectBuilder(r.registry, s)
	builder.whereEqual(s.TableName()+"."+s.PrimaryKeyColumn(), id)

	sqlText, args := builder.selectSQL(1, 0)
	rows, err := r.query(ctx, sqlText, args)
	if err != nil {
		return nil, err
	}
	record, err := scanRecord(rows)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(s, id)
	}
	if err != nil {
		return nil, translate(err)
	}
	return record, nil
}

// Insert creates a row from the given column values and returns it as
// stored. String primary keys are generated server side when the caller
// provides none; integer keys are left to the database.
func (r *Repository) Insert(ctx context.Context, s *schema.Schema, values Record) (Record, error) {
	values = cloneRecord(values)

	pkColumn := s.PrimaryKeyColumn()
	if _, given := values[pkColumn]; !given {
		if field, ok := s.Field(s.PrimaryKeyName()); ok && field.Kind == schema.String {
			values[pkColumn] = uuid.NewString()
		}
	}

	columns := sortedColumns(values)
	placeholders := make([]string, len(columns))
	args := make([]any, len(columns))
	for i, column := range columns {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = values[column]
	}

	sqlText := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING *",
		s.TableName(), strings.Join(columns, ", "), strings.Join(placeholders, ", "))

	rows, err := r.query(ctx, sqlText, args)
	if err != nil {
		return nil, err
	}
	record, err := scanRecord(rows)
	if err != nil {
		return nil, translate(err)
	}
	return record, nil
}

// Update applies the given column values to the identified row and
// returns the updated record.
func (r *Repository) Update(ctx context.Context, s *schema.Schema, id string, values Record) (Record, error) {
	if len(values) == 0 {
		return r.GetByPK(ctx, s, id)
	}

	columns := sortedColumns(values)
	assignments := make([]string, len(columns))
	args := make([]any, 0, len(columns)+1)
	for i, column := range columns {
		assignments[i] = fmt.Sprintf("%s = $%d", column, i+1)
		args = append(args, values[column])
	}
	args = append(args, id)

	sqlText := fmt.Sprintf("UPDATE %s SET %s WHERE %s = $%d RETURNING *",
		s.TableName(), strings.Join(assignments, ", "), s.PrimaryKeyColumn(), len(columns)+1)

	rows, err := r.query(ctx, sqlText, args)
	if err != nil {
		return nil, err
	}
	record, err := scanRecord(rows)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(s, id)
	}
	if err != nil {
		return nil, translate(err)
	}
	return record, nil
}

// Delete removes the identified row. Deleting a row that does not exist
// is reported as not found.
func (r *Repository) Delete(ctx context.Context, s *schema.Schema, id string) error {
	sqlText := fmt.Sprintf("DELETE FROM %s WHERE %s = $1", s.TableName(), s.PrimaryKeyColumn())
	result, err := r.exec(ctx, sqlText, []any{id})
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

func notFound(s *schema.Schema, id string) error {
	return restless.NewNotFound(
		fmt.Sprintf("no resource found of type %q with ID %q", s.Type, id))
}

func sortedColumns(values Record) []string {
	columns := make([]string, 0, len(values))
	for column := range values {
		columns = append(columns, column)
	}
	sort.Strings(columns)
	return columns
}

func cloneRecord(values Record) Record {
	clone := make(Record, len(values))
	for k, v := range values {
		clone[k] = v
	}
	return clone
}
