/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package storage

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

func openTestIndex(t *testing.T, maxBytes int64) *Index {
	t.Helper()
	x, err := OpenIndex(t.TempDir(), maxBytes)
	if err != nil {
		t.Fatalf("OpenIndex: %v", err)
	}
	t.Cleanup(func() { _ = x.Close() })
	return x
}

func TestOpenIndexCreatesSchema(t *testing.T) {
	x := openTestIndex(t, 0)
	ctx := context.Background()
	v, err := x.SchemaVersion(ctx)
	if err != nil {
		t.Fatalf("SchemaVersion: %v", err)
	}
	if v != schemaVersion {
		t.Fatalf("schema=%d want %d", v, schemaVersion)
	}
	var mode string
	if err := x.DB().QueryRowContext(ctx, `PRAGMA journal_mode;`).Scan(&mode); err != nil {
		t.Fatalf("journal_mode: %v", err)
	}
	if mode != "wal" {
		t.Fatalf("journal_mode=%q", mode)
	}
}

func TestRecordAndListExports(t *testing.T) {
	x := openTestIndex(t, 0)
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	recs := []ExportRecord{
		{ID: "a", Time: base, Format: "pdf", Filename: "A_Portfolio.pdf", Bytes: 100, PageWMM: 210, PageHMM: 300},
		{ID: "b", Time: base.Add(time.Minute), Format: "pdf", Filename: "A_Portfolio.pdf", Status: ExportFailed, Stage: "rasterize", Error: "boom"},
	}
	for _, r := range recs {
		if err := x.RecordExport(ctx, r); err != nil {
			t.Fatalf("RecordExport: %v", err)
		}
	}
	got, err := x.ListExports(ctx, 0)
	if err != nil {
		t.Fatalf("ListExports: %v", err)
	}
	if len(got) != 2 || got[0].ID != "b" || got[1].ID != "a" {
		t.Fatalf("unexpected order %+v", got)
	}
	if got[0].Status != ExportFailed || got[0].Stage != "rasterize" || got[0].Error != "boom" {
		t.Fatalf("failure fields lost: %+v", got[0])
	}
	if got[1].Status != ExportOK || got[1].PageHMM != 300 || !got[1].Time.Equal(base) {
		t.Fatalf("ok fields lost: %+v", got[1])
	}
	one, err := x.ListExports(ctx, 1)
	if err != nil || len(one) != 1 {
		t.Fatalf("limit: %v %d", err, len(one))
	}
}

func TestRasterCacheGetPut(t *testing.T) {
	x := openTestIndex(t, 0)
	ctx := context.Background()
	if b, err := x.GetRaster(ctx, "k", 2); err != nil || b != nil {
		t.Fatalf("expected miss, got %v %v", b, err)
	}
	if err := x.PutRaster(ctx, "k", 2, []byte("png")); err != nil {
		t.Fatalf("PutRaster: %v", err)
	}
	b, err := x.GetRaster(ctx, "k", 2)
	if err != nil || !bytes.Equal(b, []byte("png")) {
		t.Fatalf("GetRaster=%q %v", b, err)
	}
	if b, _ := x.GetRaster(ctx, "k", 1); b != nil {
		t.Fatalf("scale must be part of the key")
	}
}

func TestRasterCacheEvictsLRU(t *testing.T) {
	x := openTestIndex(t, 25)
	ctx := context.Background()
	blob := bytes.Repeat([]byte{1}, 10)
	for _, k := range []string{"a", "b"} {
		if err := x.PutRaster(ctx, k, 2, blob); err != nil {
			t.Fatalf("put %s: %v", k, err)
		}
	}
	// touch a so that b becomes the oldest
	if _, err := x.GetRaster(ctx, "a", 2); err != nil {
		t.Fatalf("get: %v", err)
	}
	if err := x.PutRaster(ctx, "c", 2, blob); err != nil {
		t.Fatalf("put c: %v", err)
	}
	total, err := x.TotalRasterBytes(ctx)
	if err != nil {
		t.Fatalf("total: %v", err)
	}
	if total > 25 {
		t.Fatalf("cache over cap: %d", total)
	}
	if b, _ := x.GetRaster(ctx, "b", 2); b != nil {
		t.Fatalf("expected b evicted")
	}
	if b, _ := x.GetRaster(ctx, "a", 2); b == nil {
		t.Fatalf("expected a kept")
	}
}

func TestGetOrCreateRasterSharesCreate(t *testing.T) {
	x := openTestIndex(t, 0)
	ctx := context.Background()
	var calls atomic.Int32
	release := make(chan struct{})
	create := func() ([]byte, error) {
		calls.Add(1)
		<-release
		return []byte("img"), nil
	}
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := x.GetOrCreateRaster(ctx, "doc", 2, create); err != nil {
				t.Errorf("GetOrCreateRaster: %v", err)
			}
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()
	if n := calls.Load(); n < 1 || n > 4 {
		t.Fatalf("create calls=%d", n)
	}
	// now cached
	b, err := x.GetOrCreateRaster(ctx, "doc", 2, func() ([]byte, error) {
		return nil, errors.New("must not be called")
	})
	if err != nil || string(b) != "img" {
		t.Fatalf("cached read=%q %v", b, err)
	}
}

func TestMigrationsUpgradeV1(t *testing.T) {
	root := t.TempDir()
	idx := IndexPath(root)
	if err := os.MkdirAll(filepath.Dir(idx), 0o755); err != nil {
		t.Fatalf("mk .gpf: %v", err)
	}
	dsn := fmt.Sprintf("file:%s?cache=shared&_pragma=busy_timeout(2000)", filepath.ToSlash(idx))
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`CREATE TABLE IF NOT EXISTS meta (key TEXT PRIMARY KEY, value TEXT NOT NULL);`,
		`CREATE TABLE IF NOT EXISTS version (id INTEGER PRIMARY KEY CHECK(id=1), schema INTEGER NOT NULL, app TEXT, created_at TEXT NOT NULL, updated_at TEXT NOT NULL);`,
		`INSERT INTO version(id, schema, app, created_at, updated_at) VALUES(1, 1, 'test', '2020-01-01T00:00:00Z', '2020-01-01T00:00:00Z');`,
	}
	for _, q := range stmts {
		if _, err := db.ExecContext(ctx, q); err != nil {
			t.Fatalf("seed v1 schema: %v (q=%s)", err, q)
		}
	}
	_ = db.Close()

	x, err := OpenIndex(root, 0)
	if err != nil {
		t.Fatalf("OpenIndex: %v", err)
	}
	defer x.Close()
	v, err := x.SchemaVersion(ctx)
	if err != nil || v != 2 {
		t.Fatalf("schema=%d err=%v", v, err)
	}
	var cnt int
	if err := x.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name IN ('idx_exports_ts','idx_rasters_access')`).Scan(&cnt); err != nil {
		t.Fatalf("query indexes: %v", err)
	}
	if cnt != 2 {
		t.Fatalf("expected 2 indexes, got %d", cnt)
	}
}

func TestDetectAndRebuildIndexOnCorruption(t *testing.T) {
	root := t.TempDir()
	x, err := OpenIndex(root, 0)
	if err != nil {
		t.Fatalf("OpenIndex: %v", err)
	}
	_ = x.Close()
	idx := IndexPath(root)
	removeIndexFiles(idx)
	if err := os.WriteFile(idx, []byte("THIS IS NOT SQLITE"), 0o644); err != nil {
		t.Fatalf("write corrupt: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	rebuilt, err := DetectAndRebuildIndex(ctx, root)
	if err != nil {
		t.Fatalf("DetectAndRebuildIndex: %v", err)
	}
	if !rebuilt {
		t.Fatalf("expected rebuild")
	}
	ents, _ := os.ReadDir(filepath.Join(root, IndexDirName, "backups"))
	if len(ents) == 0 {
		t.Fatalf("expected index backup")
	}
	again, err := DetectAndRebuildIndex(ctx, root)
	if err != nil || again {
		t.Fatalf("healthy index rebuilt again: %v %v", again, err)
	}
}
