package report

import (
	"context"
	"fmt"
	"strings"
)

// Sort orders for filtered queries.
const (
	SortByFilename  = "filename"
	SortBySharpness = "sharpness_desc"
	SortByAesthetic = "aesthetic_desc"
)

// Query narrows a photos-table read. Nil slices mean "no constraint";
// non-nil empty slices match nothing, mirroring an empty multi-select in a
// filter dropdown.
type Query struct {
	Ratings       []int
	FocusStatuses []string
	Flying        []bool
	Species       string
	SortBy        string
}

// QueryRows returns the rows matching q in the requested order.
func (d *DB) QueryRows(ctx context.Context, q Query) ([]*Row, error) {
	var where []string
	var params []any

	if q.Ratings != nil {
		if len(q.Ratings) == 0 {
			return nil, nil
		}
		where = append(where, "rating IN ("+placeholders(len(q.Ratings))+")")
		for _, r := range q.Ratings {
			params = append(params, r)
		}
	}
	if q.FocusStatuses != nil {
		if len(q.FocusStatuses) == 0 {
			return nil, nil
		}
		where = append(where, "focus_status IN ("+placeholders(len(q.FocusStatuses))+")")
		for _, f := range q.FocusStatuses {
			params = append(params, f)
		}
	}
	if q.Flying != nil {
		if len(q.Flying) == 0 {
			return nil, nil
		}
		where = append(where, "is_flying IN ("+placeholders(len(q.Flying))+")")
		for _, f := range q.Flying {
			params = append(params, boolToInt(f))
		}
	}
	if s := strings.TrimSpace(q.Species); s != "" {
		where = append(where, "species = ?")
		params = append(params, s)
	}

	sql := "SELECT " + rowColumns + " FROM photos"
	if len(where) > 0 {
		sql += " WHERE " + strings.Join(where, " AND ")
	}

	switch q.SortBy {
	case SortBySharpness:
		sql += " ORDER BY COALESCE(sharpness, -1e99) DESC, filename ASC"
	case SortByAesthetic:
		sql += " ORDER BY COALESCE(aesthetic, -1e99) DESC, filename ASC"
	case "", SortByFilename:
		sql += " ORDER BY filename ASC"
	default:
		return nil, fmt.Errorf("invalid sort order %q", q.SortBy)
	}

	rows, err := d.db.QueryContext(ctx, sql, params...)
	if err != nil {
		return nil, fmt.Errorf("filtered query failed: %w", err)
	}
	defer rows.Close()

	var out []*Row
	for rows.Next() {
		r, err := scanRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// DistinctSpecies returns the de-duplicated non-empty species names, for
// filter dropdowns.
func (d *DB) DistinctSpecies(ctx context.Context) ([]string, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT DISTINCT species FROM photos
		 WHERE species IS NOT NULL AND species != ''
		 ORDER BY species COLLATE NOCASE`)
	if err != nil {
		return nil, fmt.Errorf("failed to list species: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
