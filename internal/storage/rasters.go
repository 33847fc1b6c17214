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
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

// GetRaster returns the cached PNG for key at scale, or nil when absent,
// and marks it as recently used.
func (x *Index) GetRaster(ctx context.Context, key string, scale float64) ([]byte, error) {
	var blob []byte
	err := x.db.QueryRowContext(ctx, `SELECT blob FROM rasters WHERE key=? AND scale=?`, key, scale).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query raster: %w", err)
	}
	_, _ = x.db.ExecContext(ctx, `UPDATE rasters SET last_access=? WHERE key=? AND scale=?`, accessStamp(), key, scale)
	return blob, nil
}

// PutRaster upserts a raster and evicts least recently used rows until
// the cache fits its byte cap.
func (x *Index) PutRaster(ctx context.Context, key string, scale float64, blob []byte) error {
	if len(blob) == 0 {
		return errors.New("empty raster blob")
	}
	now := time.Now().UTC()
	_, err := x.db.ExecContext(ctx, `INSERT INTO rasters(key, scale, blob, size, updated_at, last_access)
		VALUES(?,?,?,?,?,?)
		ON CONFLICT(key, scale) DO UPDATE SET blob=excluded.blob, size=excluded.size, updated_at=excluded.updated_at, last_access=excluded.last_access`,
		key, scale, blob, len(blob), now.Format(time.RFC3339), accessStamp())
	if err != nil {
		return fmt.Errorf("upsert raster: %w", err)
	}
	return x.EvictRastersToFit(ctx, x.maxBytes)
}

// GetOrCreateRaster returns the cached raster or stores the output of create.
// Concurrent callers for the same key share one create call.
func (x *Index) GetOrCreateRaster(ctx context.Context, key string, scale float64, create func() ([]byte, error)) ([]byte, error) {
	if b, err := x.GetRaster(ctx, key, scale); err != nil {
		return nil, err
	} else if b != nil {
		return b, nil
	}
	sfKey := key + "@" + strconv.FormatFloat(scale, 'g', -1, 64)
	v, err, _ := x.sf.Do(sfKey, func() (any, error) {
		data, err := create()
		if err != nil {
			return nil, err
		}
		if err := x.PutRaster(ctx, key, scale, data); err != nil {
			// the raster is still usable without the cache
			x.log.Warn("cache raster failed", slog.Any("err", err))
		}
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

// EvictRastersToFit deletes least recently used rows until total size <= capBytes.
func (x *Index) EvictRastersToFit(ctx context.Context, capBytes int64) error {
	var total int64
	if err := x.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(size),0) FROM rasters`).Scan(&total); err != nil {
		return fmt.Errorf("sum rasters size: %w", err)
	}
	if capBytes <= 0 || total <= capBytes {
		return nil
	}
	rows, err := x.db.QueryContext(ctx, `SELECT rowid, size FROM rasters ORDER BY last_access ASC`)
	if err != nil {
		return fmt.Errorf("select victims: %w", err)
	}
	victims := make([]any, 0, 8)
	cur := total
	for rows.Next() {
		var id, sz int64
		if err := rows.Scan(&id, &sz); err != nil {
			_ = rows.Close()
			return err
		}
		victims = append(victims, id)
		cur -= sz
		if cur <= capBytes {
			break
		}
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return err
	}
	// the single connection must be free before writing
	if err := rows.Close(); err != nil {
		return err
	}
	if len(victims) == 0 {
		return nil
	}
	q := `DELETE FROM rasters WHERE rowid IN (` + strings.TrimSuffix(strings.Repeat("?,", len(victims)), ",") + `)`
	if _, err := x.db.ExecContext(ctx, q, victims...); err != nil {
		return fmt.Errorf("evict delete: %w", err)
	}
	x.log.Debug("raster cache evicted", slog.Int("rows", len(victims)), slog.Int64("bytes_before", total))
	return nil
}

// TotalRasterBytes returns the bytes held by the raster cache.
func (x *Index) TotalRasterBytes(ctx context.Context) (int64, error) {
	var total int64
	if err := x.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(size),0) FROM rasters`).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

// accessStamp orders cache hits; nanoseconds keep quick successive hits apart.
func accessStamp() int64 { return time.Now().UnixNano() }
