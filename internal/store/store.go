/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package store holds the canonical Profile as an observable, version-counted
// cell. Every mutation swaps the whole value and bumps the version.
package store

import (
	"context"
	"sync"

	"goportfolio/internal/domain"
)

// Version increases by one on every Replace.
type Version uint64

// Change is delivered to subscribers after a Replace.
type Change struct {
	Version Version
	Profile domain.Profile
}

// Store is safe for concurrent use. Values passed in and out are deep copies.
type Store struct {
	mu      sync.Mutex
	value   domain.Profile
	version Version
	subs    map[int]func(Change)
	nextSub int
	// closed and recreated on every Replace to wake waiters
	changed chan struct{}
}

// New returns a store holding initial at version 0.
func New(initial domain.Profile) *Store {
	return &Store{value: initial.Clone(), subs: make(map[int]func(Change)), changed: make(chan struct{})}
}

// Snapshot returns the current value and its version.
func (s *Store) Snapshot() (domain.Profile, Version) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value.Clone(), s.version
}

// Version returns the current version.
func (s *Store) Version() Version {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

// Replace swaps in next, increments the version and notifies subscribers.
func (s *Store) Replace(next domain.Profile) Version {
	s.mu.Lock()
	v, notify := s.replaceLocked(next)
	s.mu.Unlock()
	notify()
	return v
}

// Update applies fn to a copy of the current value and replaces it with the
// result. If fn returns an error the store is unchanged.
func (s *Store) Update(fn func(domain.Profile) (domain.Profile, error)) (Version, error) {
	s.mu.Lock()
	next, err := fn(s.value.Clone())
	if err != nil {
		v := s.version
		s.mu.Unlock()
		return v, err
	}
	v, notify := s.replaceLocked(next)
	s.mu.Unlock()
	notify()
	return v, nil
}

// replaceLocked returns a func delivering the change outside the lock.
func (s *Store) replaceLocked(next domain.Profile) (Version, func()) {
	s.value = next.Clone()
	s.version++
	close(s.changed)
	s.changed = make(chan struct{})

	fns := make([]func(Change), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	v := s.version
	snap := s.value
	return v, func() {
		for _, fn := range fns {
			fn(Change{Version: v, Profile: snap.Clone()})
		}
	}
}

// Subscribe registers fn for future changes. fn runs on the goroutine that
// performed the Replace and must not call back into Replace synchronously.
func (s *Store) Subscribe(fn func(Change)) (cancel func()) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

// Wait blocks until the version exceeds after, then returns the new value.
func (s *Store) Wait(ctx context.Context, after Version) (domain.Profile, Version, error) {
	for {
		s.mu.Lock()
		if s.version > after {
			p, v := s.value.Clone(), s.version
			s.mu.Unlock()
			return p, v, nil
		}
		ch := s.changed
		s.mu.Unlock()
		select {
		case <-ch:
		case <-ctx.Done():
			return domain.Profile{}, after, ctx.Err()
		}
	}
}
