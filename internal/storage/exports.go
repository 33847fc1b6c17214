/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Export status values.
const (
	ExportOK     = "ok"
	ExportFailed = "failed"
)

// ExportRecord is one row of the export history.
type ExportRecord struct {
	ID       string
	Time     time.Time
	Format   string
	Filename string
	Path     string
	Bytes    int64
	PageWMM  float64
	PageHMM  float64
	DocHash  string
	Status   string
	Stage    string
	Error    string
}

// RecordExport appends rec to the export history. A zero Time means now.
func (x *Index) RecordExport(ctx context.Context, rec ExportRecord) error {
	if rec.Time.IsZero() {
		rec.Time = time.Now()
	}
	if rec.Status == "" {
		rec.Status = ExportOK
	}
	_, err := x.db.ExecContext(ctx, `INSERT INTO exports(export_id, ts, format, filename, path, bytes, page_w_mm, page_h_mm, doc_hash, status, stage, error)
		VALUES(?,?,?,?,?,?,?,?,?,?,?,?)`,
		rec.ID, rec.Time.UTC().Format(time.RFC3339Nano), rec.Format, rec.Filename, nullString(rec.Path),
		rec.Bytes, rec.PageWMM, rec.PageHMM, nullString(rec.DocHash), rec.Status, nullString(rec.Stage), nullString(rec.Error))
	if err != nil {
		return fmt.Errorf("record export: %w", err)
	}
	return nil
}

// ListExports returns the most recent exports first; limit <= 0 returns all.
func (x *Index) ListExports(ctx context.Context, limit int) ([]ExportRecord, error) {
	q := `SELECT export_id, ts, format, filename, path, bytes, page_w_mm, page_h_mm, doc_hash, status, stage, error
		FROM exports ORDER BY ts DESC, id DESC`
	args := []any{}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := x.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list exports: %w", err)
	}
	defer rows.Close()
	var out []ExportRecord
	for rows.Next() {
		var (
			r                          ExportRecord
			ts                         string
			path, hash, stage, errText sql.NullString
		)
		if err := rows.Scan(&r.ID, &ts, &r.Format, &r.Filename, &path, &r.Bytes, &r.PageWMM, &r.PageHMM, &hash, &r.Status, &stage, &errText); err != nil {
			return nil, fmt.Errorf("scan export: %w", err)
		}
		r.Time, _ = time.Parse(time.RFC3339Nano, ts)
		r.Path, r.DocHash, r.Stage, r.Error = path.String, hash.String, stage.String, errText.String
		out = append(out, r)
	}
	return out, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
