/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package editor implements the mutation operations of the portfolio form:
// profile field edits, picture selection and project list maintenance. Every
// operation builds the next Profile from a copy and swaps it into the store.
package editor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"goportfolio/internal/domain"
	applog "goportfolio/internal/log"
	"goportfolio/internal/picture"
	"goportfolio/internal/store"
	"goportfolio/internal/undo"
)

var (
	// ErrUnknownField is returned for field names outside the data model.
	ErrUnknownField = domain.ErrUnknownField
	// ErrIndexOutOfRange is returned for project positions outside [0, len).
	ErrIndexOutOfRange = errors.New("project index out of range")
	// ErrProjectNotFound is returned for unknown project ids.
	ErrProjectNotFound = errors.New("project not found")
	// ErrPictureSuperseded is returned when a newer picture selection started
	// before this one finished; the store is left untouched.
	ErrPictureSuperseded = errors.New("picture selection superseded")
	ErrNothingToUndo     = errors.New("nothing to undo")
	ErrNothingToRedo     = errors.New("nothing to redo")
)

// Editor is safe for concurrent use.
type Editor struct {
	store   *store.Store
	history *undo.Manager[domain.Profile]
	picSeq  atomic.Uint64
	now     func() time.Time
	log     *slog.Logger
}

// Option configures an Editor.
type Option func(*Editor)

// WithUndoConfig replaces the default undo limits.
func WithUndoConfig(cfg undo.Config) Option {
	return func(e *Editor) { e.history = undo.NewManager[domain.Profile](cfg) }
}

// WithClock sets the time source used for undo coalescing.
func WithClock(now func() time.Time) Option { return func(e *Editor) { e.now = now } }

// New returns an editor operating on s.
func New(s *store.Store, opts ...Option) *Editor {
	e := &Editor{
		store:   s,
		history: undo.NewManager[domain.Profile](undo.DefaultConfig()),
		now:     time.Now,
		log:     applog.WithComponent("editor"),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Store returns the underlying store.
func (e *Editor) Store() *store.Store { return e.store }

// mutate runs fn on a copy of the current profile and records the previous
// value for undo under key.
func (e *Editor) mutate(key string, fn func(domain.Profile) (domain.Profile, error)) (store.Version, error) {
	return e.store.Update(func(cur domain.Profile) (domain.Profile, error) {
		prev := cur.Clone()
		next, err := fn(cur)
		if err != nil {
			return cur, err
		}
		e.history.Push(undo.Entry[domain.Profile]{Key: key, State: prev, Size: sizeOf(prev), TS: e.now()})
		return next, nil
	})
}

// UpdateTextField sets one profile field. Setting profilePicture directly
// also supersedes any picture read still in flight.
func (e *Editor) UpdateTextField(f domain.Field, value string) (store.Version, error) {
	if f == domain.FieldProfilePicture {
		e.picSeq.Add(1)
	}
	return e.mutate("field:"+string(f), func(p domain.Profile) (domain.Profile, error) {
		return p.With(f, value)
	})
}

// UpdateProfilePicture reads an image from r, encodes it as a data URI and
// stores it. On any failure the previous picture is kept and the error is
// returned. If another selection started meanwhile, ErrPictureSuperseded.
func (e *Editor) UpdateProfilePicture(ctx context.Context, r io.Reader) (store.Version, error) {
	seq := e.picSeq.Add(1)
	uri, err := picture.Encode(r)
	if err != nil {
		e.log.Warn("picture rejected", slog.String("err", err.Error()))
		return e.store.Version(), fmt.Errorf("update picture: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return e.store.Version(), err
	}
	return e.mutate("", func(p domain.Profile) (domain.Profile, error) {
		if e.picSeq.Load() != seq {
			return p, ErrPictureSuperseded
		}
		p.ProfilePicture = uri
		return p, nil
	})
}

// PictureResult is delivered by UpdateProfilePictureAsync.
type PictureResult struct {
	Version store.Version
	Err     error
}

// UpdateProfilePictureAsync runs UpdateProfilePicture on its own goroutine.
// The channel receives exactly one result and is then closed.
func (e *Editor) UpdateProfilePictureAsync(ctx context.Context, r io.Reader) <-chan PictureResult {
	ch := make(chan PictureResult, 1)
	go func() {
		defer close(ch)
		v, err := e.UpdateProfilePicture(ctx, r)
		ch <- PictureResult{Version: v, Err: err}
	}()
	return ch
}

// UpdateProjectField sets one field of the project at index.
func (e *Editor) UpdateProjectField(index int, f domain.ProjectField, value string) (store.Version, error) {
	snap, _ := e.store.Snapshot()
	id := ""
	if index >= 0 && index < len(snap.Projects) {
		id = snap.Projects[index].ID
	}
	return e.mutate(projectKey(id, f), func(p domain.Profile) (domain.Profile, error) {
		if index < 0 || index >= len(p.Projects) {
			return p, fmt.Errorf("%w: %d of %d", ErrIndexOutOfRange, index, len(p.Projects))
		}
		return withProject(p, index, f, value)
	})
}

// UpdateProjectFieldByID sets one field of the project with id.
func (e *Editor) UpdateProjectFieldByID(id string, f domain.ProjectField, value string) (store.Version, error) {
	return e.mutate(projectKey(id, f), func(p domain.Profile) (domain.Profile, error) {
		i := p.ProjectIndex(id)
		if i < 0 {
			return p, fmt.Errorf("%w: %s", ErrProjectNotFound, id)
		}
		return withProject(p, i, f, value)
	})
}

func withProject(p domain.Profile, i int, f domain.ProjectField, value string) (domain.Profile, error) {
	rec, err := p.Projects[i].With(f, value)
	if err != nil {
		return p, err
	}
	p.Projects[i] = rec
	return p, nil
}

func projectKey(id string, f domain.ProjectField) string {
	if id == "" {
		return ""
	}
	return "project:" + id + ":" + string(f)
}

// AddProject appends an empty project and returns its id.
func (e *Editor) AddProject() (string, store.Version) {
	rec := domain.NewProject()
	v, _ := e.mutate("", func(p domain.Profile) (domain.Profile, error) {
		p.Projects = append(p.Projects, rec)
		return p, nil
	})
	return rec.ID, v
}

// RemoveProject removes the project at index; later projects shift down.
func (e *Editor) RemoveProject(index int) (store.Version, error) {
	return e.mutate("", func(p domain.Profile) (domain.Profile, error) {
		if index < 0 || index >= len(p.Projects) {
			return p, fmt.Errorf("%w: %d of %d", ErrIndexOutOfRange, index, len(p.Projects))
		}
		p.Projects = append(p.Projects[:index], p.Projects[index+1:]...)
		return p, nil
	})
}

// RemoveProjectByID removes the project with id.
func (e *Editor) RemoveProjectByID(id string) (store.Version, error) {
	return e.mutate("", func(p domain.Profile) (domain.Profile, error) {
		i := p.ProjectIndex(id)
		if i < 0 {
			return p, fmt.Errorf("%w: %s", ErrProjectNotFound, id)
		}
		p.Projects = append(p.Projects[:i], p.Projects[i+1:]...)
		return p, nil
	})
}

// MoveProject moves the project with id to position to, clamped to the list.
func (e *Editor) MoveProject(id string, to int) (store.Version, error) {
	return e.mutate("", func(p domain.Profile) (domain.Profile, error) {
		from := p.ProjectIndex(id)
		if from < 0 {
			return p, fmt.Errorf("%w: %s", ErrProjectNotFound, id)
		}
		to = max(0, min(to, len(p.Projects)-1))
		rec := p.Projects[from]
		p.Projects = append(p.Projects[:from], p.Projects[from+1:]...)
		p.Projects = append(p.Projects[:to], append([]domain.ProjectRecord{rec}, p.Projects[to:]...)...)
		return p, nil
	})
}

// Undo restores the profile preceding the last edit.
func (e *Editor) Undo() (store.Version, error) {
	return e.store.Update(func(cur domain.Profile) (domain.Profile, error) {
		prev, ok := e.history.Undo(undo.Entry[domain.Profile]{State: cur, Size: sizeOf(cur), TS: e.now()})
		if !ok {
			return cur, ErrNothingToUndo
		}
		return prev.State, nil
	})
}

// Redo re-applies the last undone edit.
func (e *Editor) Redo() (store.Version, error) {
	return e.store.Update(func(cur domain.Profile) (domain.Profile, error) {
		next, ok := e.history.Redo(undo.Entry[domain.Profile]{State: cur, Size: sizeOf(cur), TS: e.now()})
		if !ok {
			return cur, ErrNothingToRedo
		}
		return next.State, nil
	})
}

// CanUndo reports whether Undo would change the profile.
func (e *Editor) CanUndo() bool { return e.history.CanUndo() }

// CanRedo reports whether Redo would change the profile.
func (e *Editor) CanRedo() bool { return e.history.CanRedo() }

// Reset replaces the whole profile, e.g. after opening a workspace, and drops history.
func (e *Editor) Reset(p domain.Profile) store.Version {
	e.picSeq.Add(1)
	p.EnsureIDs()
	v := e.store.Replace(p)
	e.history.Clear()
	return v
}

// sizeOf estimates the memory held by a profile snapshot.
func sizeOf(p domain.Profile) int {
	n := len(p.Name) + len(p.Role) + len(p.Skills.Text)*2 + len(p.Email) + len(p.ProfilePicture)
	for _, r := range p.Projects {
		n += len(r.ID) + len(r.Title) + len(r.Technologies.Text)*2 + len(r.Description)
	}
	return n
}
