/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package undo keeps a bounded undo/redo history of editor states.
package undo

import (
	"sync"
	"time"
)

// Entry is one reversible state. Key identifies the edited field; successive
// pushes with the same Key inside Config.MinInterval coalesce.
type Entry[T any] struct {
	Key   string
	State T
	Size  int
	TS    time.Time
}

// Config controls memory and depth caps and coalescing behaviour.
type Config struct {
	// MaxBytes is a soft cap on the summed Entry.Size; oldest entries are pruned.
	MaxBytes int
	// MaxDepth limits the number of undo entries (0 means unlimited).
	MaxDepth int
	// MinInterval is the coalescing window for same-key pushes.
	MinInterval time.Duration
}

// DefaultConfig is used by the editor.
func DefaultConfig() Config {
	return Config{MaxBytes: 16 << 20, MaxDepth: 200, MinInterval: 750 * time.Millisecond}
}

// Manager is an undo/redo stack. It is safe for concurrent use.
type Manager[T any] struct {
	cfg  Config
	mu   sync.Mutex
	undo []Entry[T]
	redo []Entry[T]
	// accounting covers the undo stack only
	totalBytes int
}

func NewManager[T any](cfg Config) *Manager[T] {
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 16 << 20
	}
	if cfg.MinInterval < 0 {
		cfg.MinInterval = 0
	}
	return &Manager[T]{cfg: cfg}
}

// Push records the state preceding an edit. When the previous entry has the
// same non-empty key and was pushed within MinInterval, the older state is
// kept and only its timestamp advances, so one undo reverts the whole burst.
// Any push clears the redo stack.
func (m *Manager[T]) Push(e Entry[T]) {
	if e.TS.IsZero() {
		e.TS = time.Now()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.redo = nil
	if n := len(m.undo); n > 0 && e.Key != "" {
		last := &m.undo[n-1]
		if last.Key == e.Key && e.TS.Sub(last.TS) < m.cfg.MinInterval {
			last.TS = e.TS
			return
		}
	}
	m.undo = append(m.undo, e)
	m.totalBytes += e.Size
	m.enforceCapsLocked()
}

// Undo pops the newest entry and records current on the redo stack.
func (m *Manager[T]) Undo(current Entry[T]) (Entry[T], bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.undo)
	if n == 0 {
		return Entry[T]{}, false
	}
	e := m.undo[n-1]
	m.undo = m.undo[:n-1]
	m.totalBytes -= e.Size
	current.Key = ""
	m.redo = append(m.redo, current)
	return e, true
}

// Redo pops the newest redo entry and records current on the undo stack.
func (m *Manager[T]) Redo(current Entry[T]) (Entry[T], bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.redo)
	if n == 0 {
		return Entry[T]{}, false
	}
	e := m.redo[n-1]
	m.redo = m.redo[:n-1]
	// restored states never coalesce with later edits
	current.Key = ""
	m.undo = append(m.undo, current)
	m.totalBytes += current.Size
	m.enforceCapsLocked()
	return e, true
}

// CanUndo reports whether Undo would succeed.
func (m *Manager[T]) CanUndo() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.undo) > 0
}

// CanRedo reports whether Redo would succeed.
func (m *Manager[T]) CanRedo() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.redo) > 0
}

// Clear drops all history.
func (m *Manager[T]) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.undo, m.redo, m.totalBytes = nil, nil, 0
}

// Stats returns current sizes for diagnostics.
func (m *Manager[T]) Stats() (totalBytes, undoDepth, redoDepth int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.totalBytes, len(m.undo), len(m.redo)
}

func (m *Manager[T]) enforceCapsLocked() {
	drop := 0
	if m.cfg.MaxDepth > 0 && len(m.undo) > m.cfg.MaxDepth {
		drop = len(m.undo) - m.cfg.MaxDepth
	}
	bytes := m.totalBytes
	for i := 0; i < drop; i++ {
		bytes -= m.undo[i].Size
	}
	// keep at least the newest entry even when it alone exceeds MaxBytes
	for bytes > m.cfg.MaxBytes && drop < len(m.undo)-1 {
		bytes -= m.undo[drop].Size
		drop++
	}
	if drop == 0 {
		return
	}
	m.undo = append([]Entry[T](nil), m.undo[drop:]...)
	m.totalBytes = bytes
}
