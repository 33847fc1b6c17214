/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package editor

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"io"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"goportfolio/internal/domain"
	"goportfolio/internal/store"
	"goportfolio/internal/undo"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newEditor(t *testing.T) (*Editor, *fakeClock) {
	t.Helper()
	clk := &fakeClock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	return New(store.New(domain.DefaultProfile()), WithClock(clk.now)), clk
}

func snapshot(e *Editor) domain.Profile {
	p, _ := e.Store().Snapshot()
	return p
}

func TestUpdateTextFieldLastWriteWinsAndSiblingsUnchanged(t *testing.T) {
	e, _ := newEditor(t)
	orig := snapshot(e)
	writes := []struct {
		f domain.Field
		v string
	}{
		{domain.FieldName, "Sam"},
		{domain.FieldSkills, "Go, Rust,"},
		{domain.FieldName, "Sam Lee"},
		{domain.FieldEmail, ""},
	}
	for _, w := range writes {
		if _, err := e.UpdateTextField(w.f, w.v); err != nil {
			t.Fatalf("UpdateTextField(%s): %v", w.f, err)
		}
	}
	got := snapshot(e)
	for f, want := range map[domain.Field]string{
		domain.FieldName:           "Sam Lee",
		domain.FieldSkills:         "Go, Rust,",
		domain.FieldEmail:          "",
		domain.FieldRole:           orig.Role,
		domain.FieldProfilePicture: orig.ProfilePicture,
	} {
		if v, _ := got.Value(f); v != want {
			t.Errorf("%s = %q, want %q", f, v, want)
		}
	}
	if !reflect.DeepEqual(got.Projects, orig.Projects) {
		t.Fatalf("projects changed by profile field edits")
	}
}

func TestUpdateTextFieldUnknown(t *testing.T) {
	e, _ := newEditor(t)
	if _, err := e.UpdateTextField("nickname", "x"); !errors.Is(err, ErrUnknownField) {
		t.Fatalf("expected ErrUnknownField, got %v", err)
	}
	if v := e.Store().Version(); v != 0 {
		t.Fatalf("failed edit bumped version to %d", v)
	}
}

func TestAddThenRemoveLastIsIdentity(t *testing.T) {
	e, _ := newEditor(t)
	orig := snapshot(e)
	e.AddProject()
	if _, err := e.RemoveProject(len(orig.Projects)); err != nil {
		t.Fatalf("RemoveProject: %v", err)
	}
	if got := snapshot(e); !reflect.DeepEqual(got.Projects, orig.Projects) {
		t.Fatalf("add/remove-last is not an identity")
	}
}

func TestRemoveProjectShifts(t *testing.T) {
	e, _ := newEditor(t)
	for i := 0; i < 3; i++ {
		id, _ := e.AddProject()
		if _, err := e.UpdateProjectFieldByID(id, domain.ProjectTitle, strings.Repeat("x", i+1)); err != nil {
			t.Fatal(err)
		}
	}
	orig := snapshot(e).Projects
	const i = 1
	if _, err := e.RemoveProject(i); err != nil {
		t.Fatalf("RemoveProject: %v", err)
	}
	got := snapshot(e).Projects
	if len(got) != len(orig)-1 {
		t.Fatalf("len = %d, want %d", len(got), len(orig)-1)
	}
	for j := range got {
		want := orig[j]
		if j >= i {
			want = orig[j+1]
		}
		if !reflect.DeepEqual(got[j], want) {
			t.Fatalf("position %d = %+v, want %+v", j, got[j], want)
		}
	}
}

func TestIndexOutOfRange(t *testing.T) {
	e, _ := newEditor(t)
	if _, err := e.RemoveProject(2); !errors.Is(err, ErrIndexOutOfRange) {
		t.Fatalf("RemoveProject(2): %v", err)
	}
	if _, err := e.UpdateProjectField(-1, domain.ProjectTitle, "x"); !errors.Is(err, ErrIndexOutOfRange) {
		t.Fatalf("UpdateProjectField(-1): %v", err)
	}
	if _, err := e.RemoveProjectByID("nope"); !errors.Is(err, ErrProjectNotFound) {
		t.Fatalf("RemoveProjectByID: %v", err)
	}
}

func TestUpdateProjectFieldCopiesElementOnly(t *testing.T) {
	e, _ := newEditor(t)
	before := snapshot(e)
	if _, err := e.UpdateProjectField(1, domain.ProjectTechnologies, "Go, HTMX"); err != nil {
		t.Fatal(err)
	}
	after := snapshot(e)
	if !reflect.DeepEqual(after.Projects[0], before.Projects[0]) {
		t.Fatalf("sibling project changed")
	}
	if got := after.Projects[1].Technologies.Items; !reflect.DeepEqual(got, []string{"Go", "HTMX"}) {
		t.Fatalf("technologies = %q", got)
	}
	if after.Projects[1].ID != before.Projects[1].ID {
		t.Fatalf("project id changed")
	}
}

func TestAddProjectFromDefault(t *testing.T) {
	e, _ := newEditor(t)
	id, _ := e.AddProject()
	p := snapshot(e)
	if len(p.Projects) != 3 {
		t.Fatalf("len = %d", len(p.Projects))
	}
	last := p.Projects[2]
	if last.ID != id || last.Title != "" || last.Technologies.Text != "" || last.Description != "" {
		t.Fatalf("new project not empty: %+v", last)
	}
}

func TestIDTargetsSurviveRemoval(t *testing.T) {
	e, _ := newEditor(t)
	second := snapshot(e).Projects[1].ID
	if _, err := e.RemoveProject(0); err != nil {
		t.Fatal(err)
	}
	if _, err := e.UpdateProjectFieldByID(second, domain.ProjectTitle, "Renamed"); err != nil {
		t.Fatal(err)
	}
	p := snapshot(e)
	if p.Projects[0].ID != second || p.Projects[0].Title != "Renamed" {
		t.Fatalf("id-keyed edit hit the wrong record: %+v", p.Projects)
	}
}

func TestMoveProject(t *testing.T) {
	e, _ := newEditor(t)
	id, _ := e.AddProject()
	if _, err := e.MoveProject(id, 0); err != nil {
		t.Fatal(err)
	}
	p := snapshot(e)
	if p.Projects[0].ID != id || p.Projects[1].Title != "Fake News Checker" {
		t.Fatalf("unexpected order after move: %+v", p.Projects)
	}
	if _, err := e.MoveProject(id, 99); err != nil {
		t.Fatal(err)
	}
	if p := snapshot(e); p.Projects[2].ID != id {
		t.Fatalf("move past end should clamp to last position")
	}
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 2, 2))); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestUpdateProfilePicture(t *testing.T) {
	e, _ := newEditor(t)
	if _, err := e.UpdateProfilePicture(context.Background(), bytes.NewReader(pngBytes(t))); err != nil {
		t.Fatalf("UpdateProfilePicture: %v", err)
	}
	if p := snapshot(e); !strings.HasPrefix(p.ProfilePicture, "data:image/png;base64,") {
		t.Fatalf("picture not embedded: %.30s", p.ProfilePicture)
	}
}

func TestUpdateProfilePictureFailureKeepsPrevious(t *testing.T) {
	e, _ := newEditor(t)
	res := <-e.UpdateProfilePictureAsync(context.Background(), strings.NewReader("plain text"))
	if res.Err == nil {
		t.Fatalf("expected error for non-image input")
	}
	if p := snapshot(e); p.ProfilePicture != domain.DefaultPicture {
		t.Fatalf("picture changed on failure: %q", p.ProfilePicture)
	}
}

func TestClearingPictureFieldKeepsDefault(t *testing.T) {
	e, _ := newEditor(t)
	if _, err := e.UpdateTextField(domain.FieldProfilePicture, "assets/me.png"); err != nil {
		t.Fatalf("set picture: %v", err)
	}
	if _, err := e.UpdateTextField(domain.FieldProfilePicture, ""); err != nil {
		t.Fatalf("clear picture: %v", err)
	}
	if p := snapshot(e); p.ProfilePicture != domain.DefaultPicture {
		t.Fatalf("picture = %q, want default", p.ProfilePicture)
	}
}

// gatedReader blocks until release is closed.
type gatedReader struct {
	r       io.Reader
	release chan struct{}
	once    sync.Once
}

func (g *gatedReader) Read(p []byte) (int, error) {
	g.once.Do(func() { <-g.release })
	return g.r.Read(p)
}

func TestLatestPictureSelectionWins(t *testing.T) {
	e, _ := newEditor(t)
	slow := &gatedReader{r: bytes.NewReader(pngBytes(t)), release: make(chan struct{})}
	first := e.UpdateProfilePictureAsync(context.Background(), slow)

	// give the first read time to register its selection
	time.Sleep(20 * time.Millisecond)
	if _, err := e.UpdateTextField(domain.FieldProfilePicture, "assets/other.png"); err != nil {
		t.Fatal(err)
	}
	close(slow.release)
	if res := <-first; !errors.Is(res.Err, ErrPictureSuperseded) {
		t.Fatalf("stale read should be superseded, got %v", res.Err)
	}
	if p := snapshot(e); p.ProfilePicture != "assets/other.png" {
		t.Fatalf("stale read overwrote newer selection: %.30s", p.ProfilePicture)
	}
}

func TestUndoRedoWithCoalescing(t *testing.T) {
	e, clk := newEditor(t)
	for _, v := range []string{"A", "Al", "Ali"} {
		if _, err := e.UpdateTextField(domain.FieldName, v); err != nil {
			t.Fatal(err)
		}
		clk.advance(200 * time.Millisecond)
	}
	clk.advance(time.Second)
	if _, err := e.UpdateTextField(domain.FieldRole, "Designer"); err != nil {
		t.Fatal(err)
	}

	if _, err := e.Undo(); err != nil {
		t.Fatal(err)
	}
	if p := snapshot(e); p.Role != "Full-stack Developer" || p.Name != "Ali" {
		t.Fatalf("first undo: %q %q", p.Name, p.Role)
	}
	if _, err := e.Undo(); err != nil {
		t.Fatal(err)
	}
	if p := snapshot(e); p.Name != "Alex Morgan" {
		t.Fatalf("typing burst should undo in one step, name=%q", p.Name)
	}
	if _, err := e.Undo(); !errors.Is(err, ErrNothingToUndo) {
		t.Fatalf("expected ErrNothingToUndo, got %v", err)
	}
	if _, err := e.Redo(); err != nil {
		t.Fatal(err)
	}
	if p := snapshot(e); p.Name != "Ali" {
		t.Fatalf("redo: name=%q", p.Name)
	}
}

func TestUndoProjectRemoval(t *testing.T) {
	e, _ := newEditor(t)
	orig := snapshot(e)
	if _, err := e.RemoveProject(0); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Undo(); err != nil {
		t.Fatal(err)
	}
	if got := snapshot(e); !reflect.DeepEqual(got, orig) {
		t.Fatalf("undo did not restore removed project")
	}
	if _, err := e.Redo(); err != nil {
		t.Fatal(err)
	}
	if got := snapshot(e); len(got.Projects) != 1 {
		t.Fatalf("redo did not re-remove: %d", len(got.Projects))
	}
}

func TestResetClearsHistory(t *testing.T) {
	e := New(store.New(domain.DefaultProfile()), WithUndoConfig(undo.Config{MaxDepth: 5}))
	if _, err := e.UpdateTextField(domain.FieldName, "x"); err != nil {
		t.Fatal(err)
	}
	p := domain.Profile{Name: "Loaded", Projects: []domain.ProjectRecord{{Title: "legacy"}}}
	e.Reset(p)
	if e.CanUndo() {
		t.Fatalf("Reset should clear history")
	}
	if got := snapshot(e); got.Projects[0].ID == "" {
		t.Fatalf("Reset should assign missing ids")
	}
}
