package docstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/starford/monteerly/internal/apperr"
)

// Create inserts a new document with a store-assigned id.
func (s *Store) Create(ctx context.Context, collection string, fields map[string]any) (string, error) {
	id := s.newID()
	data, err := marshalFields(s.encodeFields(fields))
	if err != nil {
		return "", err
	}
	_, err = s.conn.ExecContext(ctx,
		`INSERT INTO documents (collection, id, data) VALUES (?, ?, ?)`,
		collection, id, data)
	if err != nil {
		return "", fmt.Errorf("docstore: create %s: %w", collection, err)
	}
	s.feed.Publish(collection)
	return id, nil
}

// Get returns one document or apperr.ErrNotFound.
func (s *Store) Get(ctx context.Context, collection, id string) (Doc, error) {
	var data string
	err := s.conn.QueryRowContext(ctx,
		`SELECT data FROM documents WHERE collection = ? AND id = ?`,
		collection, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return Doc{}, apperr.ErrNotFound
	}
	if err != nil {
		return Doc{}, fmt.Errorf("docstore: get %s/%s: %w", collection, id, err)
	}
	fields, err := unmarshalFields(data)
	if err != nil {
		return Doc{}, err
	}
	return Doc{ID: id, Fields: fields}, nil
}

// Update merges partial into an existing document. Only the given keys
// change; a nil value removes the key.
func (s *Store) Update(ctx context.Context, collection, id string, partial map[string]any) error {
	patch, err := marshalFields(s.encodeFields(partial))
	if err != nil {
		return err
	}
	res, err := s.conn.ExecContext(ctx,
		`UPDATE documents SET data = json_patch(data, ?) WHERE collection = ? AND id = ?`,
		patch, collection, id)
	if err != nil {
		return fmt.Errorf("docstore: update %s/%s: %w", collection, id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.ErrNotFound
	}
	s.feed.Publish(collection)
	return nil
}

// Delete removes a document.
func (s *Store) Delete(ctx context.Context, collection, id string) error {
	res, err := s.conn.ExecContext(ctx,
		`DELETE FROM documents WHERE collection = ? AND id = ?`, collection, id)
	if err != nil {
		return fmt.Errorf("docstore: delete %s/%s: %w", collection, id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.ErrNotFound
	}
	s.feed.Publish(collection)
	return nil
}

// SetMissing upserts a document keyed by id. Keys already present on the
// stored document are kept; only absent keys are written.
func (s *Store) SetMissing(ctx context.Context, collection, id string, fields map[string]any) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("docstore: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	merged := s.encodeFields(fields)
	var data string
	err = tx.QueryRowContext(ctx,
		`SELECT data FROM documents WHERE collection = ? AND id = ?`,
		collection, id).Scan(&data)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return fmt.Errorf("docstore: load %s/%s: %w", collection, id, err)
	default:
		existing, err := unmarshalFields(data)
		if err != nil {
			return err
		}
		for k, v := range existing {
			merged[k] = v
		}
	}

	encoded, err := marshalFields(merged)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO documents (collection, id, data) VALUES (?, ?, ?)
		ON CONFLICT(collection, id) DO UPDATE SET data = excluded.data
	`, collection, id, encoded)
	if err != nil {
		return fmt.Errorf("docstore: upsert %s/%s: %w", collection, id, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("docstore: commit: %w", err)
	}
	s.feed.Publish(collection)
	return nil
}

// Find runs a one-shot query.
func (s *Store) Find(ctx context.Context, collection string, q Query) ([]Doc, error) {
	query, args, err := s.buildQuery(collection, q)
	if err != nil {
		return nil, err
	}
	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("docstore: find %s: %w", collection, err)
	}
	defer rows.Close()

	out := []Doc{}
	for rows.Next() {
		var id, data string
		if err := rows.Scan(&id, &data); err != nil {
			return nil, fmt.Errorf("docstore: scan: %w", err)
		}
		fields, err := unmarshalFields(data)
		if err != nil {
			return nil, err
		}
		out = append(out, Doc{ID: id, Fields: fields})
	}
	return out, rows.Err()
}

func (s *Store) buildQuery(collection string, q Query) (string, []any, error) {
	var b strings.Builder
	args := []any{collection}
	b.WriteString(`SELECT id, data FROM documents WHERE collection = ?`)

	for _, f := range q.Where {
		if f.Field == "" {
			return "", nil, fmt.Errorf("docstore: filter without field")
		}
		switch f.Op {
		case OpEqual, "":
			b.WriteString(` AND json_extract(data, ?) = ?`)
			args = append(args, jsonPath(f.Field), s.encodeValue(f.Value))
		case OpIn:
			values, err := sliceValues(f.Value)
			if err != nil {
				return "", nil, err
			}
			if len(values) == 0 {
				b.WriteString(` AND 0`)
				continue
			}
			b.WriteString(` AND json_extract(data, ?) IN (`)
			args = append(args, jsonPath(f.Field))
			for i, v := range values {
				if i > 0 {
					b.WriteString(`, `)
				}
				b.WriteString(`?`)
				args = append(args, s.encodeValue(v))
			}
			b.WriteString(`)`)
		default:
			return "", nil, fmt.Errorf("docstore: unsupported operator %q", f.Op)
		}
	}

	if q.OrderBy != "" {
		b.WriteString(` ORDER BY json_extract(data, ?)`)
		args = append(args, jsonPath(q.OrderBy))
		if q.Desc {
			b.WriteString(` DESC`)
		}
		b.WriteString(`, rowid`)
	} else {
		b.WriteString(` ORDER BY rowid`)
	}
	if q.Limit > 0 {
		b.WriteString(` LIMIT ?`)
		args = append(args, q.Limit)
	}
	return b.String(), args, nil
}

func jsonPath(field string) string {
	return `$."` + strings.ReplaceAll(field, `"`, ``) + `"`
}

func sliceValues(v any) ([]any, error) {
	switch vs := v.(type) {
	case []any:
		return vs, nil
	case []string:
		out := make([]any, len(vs))
		for i, s := range vs {
			out[i] = s
		}
		return out, nil
	}
	return nil, fmt.Errorf("docstore: %q filter needs a slice, got %T", OpIn, v)
}
