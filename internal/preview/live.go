/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package preview

import (
	"context"
	"log/slog"
	"strconv"
	"sync"

	"golang.org/x/sync/singleflight"

	applog "goportfolio/internal/log"
	"goportfolio/internal/store"
)

// Live keeps the document for the latest store version. Concurrent readers
// of the same version share one render.
type Live struct {
	store *store.Store
	opts  Options
	group singleflight.Group
	log   *slog.Logger

	mu      sync.Mutex
	doc     Document
	version store.Version
	valid   bool
	cancel  func()
	renders int
}

// NewLive subscribes to s. Call Close to unsubscribe.
func NewLive(s *store.Store, opts Options) *Live {
	l := &Live{store: s, opts: opts, log: applog.WithComponent("preview")}
	l.cancel = s.Subscribe(func(c store.Change) {
		l.mu.Lock()
		if c.Version > l.version {
			l.valid = false
		}
		l.mu.Unlock()
	})
	return l
}

// Options returns the rendering options in use.
func (l *Live) Options() Options { return l.opts }

// Current returns the document for the current store version.
func (l *Live) Current() (Document, store.Version) {
	l.mu.Lock()
	if l.valid && l.version == l.store.Version() {
		d, v := l.doc, l.version
		l.mu.Unlock()
		return d, v
	}
	l.mu.Unlock()

	v := l.store.Version()
	res, _, _ := l.group.Do(strconv.FormatUint(uint64(v), 10), func() (any, error) {
		p, sv := l.store.Snapshot()
		d := Render(p, l.opts)
		l.mu.Lock()
		l.renders++
		if sv >= l.version {
			l.doc, l.version, l.valid = d, sv, true
		}
		l.mu.Unlock()
		l.log.Debug("rendered", slog.Uint64("version", uint64(sv)), slog.Int("projects", len(d.Projects)))
		return versioned{d, sv}, nil
	})
	r := res.(versioned)
	return r.doc, r.version
}

type versioned struct {
	doc     Document
	version store.Version
}

// Next blocks until the store moves past after and returns the new document.
func (l *Live) Next(ctx context.Context, after store.Version) (Document, store.Version, error) {
	if _, _, err := l.store.Wait(ctx, after); err != nil {
		return Document{}, after, err
	}
	d, v := l.Current()
	return d, v, nil
}

// Renders reports how many renders ran; used in tests and diagnostics.
func (l *Live) Renders() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.renders
}

// Close unsubscribes from the store.
func (l *Live) Close() { l.cancel() }
