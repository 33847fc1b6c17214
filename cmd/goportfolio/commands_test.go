/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"goportfolio/internal/config"
	"goportfolio/internal/crash"
	"goportfolio/internal/domain"
	"goportfolio/internal/export"
	"goportfolio/internal/preview"
	"goportfolio/internal/storage"
)

type stubRasterizer struct{}

func (stubRasterizer) Rasterize(_ context.Context, _ preview.Document, scale float64) (image.Image, error) {
	return image.NewRGBA(image.Rect(0, 0, int(100*scale), int(150*scale))), nil
}

func (stubRasterizer) Close() error { return nil }

// run executes the CLI with args and returns stdout.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv(config.EnvConfigFile, filepath.Join(t.TempDir(), "config.yaml"))
	t.Setenv("GPF_TELEMETRY_OPT_IN", "")
	var out bytes.Buffer
	c := &cli{out: &out, target: &crash.Target{}, rasterizer: stubRasterizer{}}
	root := c.rootCmd()
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := run(t, args...)
	if err != nil {
		t.Fatalf("%v: %v", args, err)
	}
	return out
}

func TestVersion(t *testing.T) {
	out := mustRun(t, "version")
	if !strings.HasPrefix(out, "GoPortfolio ") {
		t.Fatalf("out = %q", out)
	}
}

func TestInitShowSet(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "ws")
	mustRun(t, "init", dir)

	if _, err := run(t, "init", dir); err == nil {
		t.Fatal("second init should fail")
	}

	mustRun(t, "set", dir, "name", "Sam Lee")
	mustRun(t, "set", dir, "skills", "Go, Rust, ")

	var p domain.Profile
	if err := json.Unmarshal([]byte(mustRun(t, "show", dir, "--format", "json")), &p); err != nil {
		t.Fatal(err)
	}
	if p.Name != "Sam Lee" {
		t.Fatalf("name = %q", p.Name)
	}
	if p.Skills.Text != "Go, Rust, " || len(p.Skills.Items) != 3 {
		t.Fatalf("skills = %+v", p.Skills)
	}

	text := mustRun(t, "show", dir)
	if !strings.Contains(text, "Sam Lee") || !strings.Contains(text, "Projects:") {
		t.Fatalf("summary = %q", text)
	}
	if _, err := run(t, "set", dir, "salary", "1"); err == nil {
		t.Fatal("unknown field accepted")
	}
}

func projects(t *testing.T, dir string) []domain.ProjectRecord {
	t.Helper()
	ws, err := storage.Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	return ws.Profile.Projects
}

func TestProjectCommands(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "ws")
	mustRun(t, "init", dir)
	n := len(projects(t, dir))

	id := strings.TrimSpace(mustRun(t, "project", "add", dir, "--title", "CLI", "--technologies", "Go, Cobra"))
	got := projects(t, dir)
	if len(got) != n+1 {
		t.Fatalf("projects = %d, want %d", len(got), n+1)
	}
	last := got[len(got)-1]
	if last.ID != id || last.Title != "CLI" || len(last.Technologies.Items) != 2 {
		t.Fatalf("added = %+v", last)
	}

	mustRun(t, "project", "set", dir, id, "desc", "A command line tool.")
	mustRun(t, "project", "move", dir, id, "0")
	got = projects(t, dir)
	if got[0].ID != id || got[0].Description != "A command line tool." {
		t.Fatalf("first = %+v", got[0])
	}

	mustRun(t, "project", "remove", dir, "0")
	if len(projects(t, dir)) != n {
		t.Fatal("project not removed")
	}
	if _, err := run(t, "project", "remove", dir, "99"); err == nil {
		t.Fatal("out of range index accepted")
	}
	if _, err := run(t, "project", "remove", dir, "no-such-id"); err == nil {
		t.Fatal("unknown id accepted")
	}
}

func TestExportInspectHistory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "ws")
	mustRun(t, "init", dir)
	out := t.TempDir()

	lines := strings.Fields(mustRun(t, "export", dir, "--format", "pdf,png", "--out", out))
	if len(lines) != 2 {
		t.Fatalf("export output = %q", lines)
	}
	pdfPath := filepath.Join(out, export.Filename("Alex Morgan"))
	if lines[0] != pdfPath {
		t.Fatalf("pdf path = %q, want %q", lines[0], pdfPath)
	}
	for _, p := range lines {
		if _, err := os.Stat(p); err != nil {
			t.Fatal(err)
		}
	}

	var info export.Info
	if err := json.Unmarshal([]byte(mustRun(t, "inspect", pdfPath)), &info); err != nil {
		t.Fatal(err)
	}
	if info.Pages != 1 || info.Images != 1 || info.WidthMM < 209 || info.WidthMM > 211 {
		t.Fatalf("info = %+v", info)
	}

	hist := mustRun(t, "history", dir)
	if strings.Count(hist, "ok") != 2 || !strings.Contains(hist, "FORMAT") {
		t.Fatalf("history = %q", hist)
	}

	if _, err := run(t, "export", dir, "--format", "docx"); err == nil {
		t.Fatal("unknown format accepted")
	}
}

func TestImportYAML(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "ws")
	src := filepath.Join(t.TempDir(), "me.yaml")
	yml := "name: Kim Park\nrole: SRE\nskills: [Go, Terraform]\nprojects:\n  - title: Pager\n    technologies: Go\n"
	if err := os.WriteFile(src, []byte(yml), 0o644); err != nil {
		t.Fatal(err)
	}
	mustRun(t, "init", dir, "--from", src)
	ws, err := storage.Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	if ws.Profile.Name != "Kim Park" || len(ws.Profile.Projects) != 1 || ws.Profile.Projects[0].ID == "" {
		t.Fatalf("profile = %+v", ws.Profile)
	}

	mustRun(t, "import", dir, src)
	if _, err := run(t, "import", dir, filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("missing file accepted")
	}
}

func TestReindex(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "ws")
	mustRun(t, "init", dir)
	if out := mustRun(t, "reindex", dir); !strings.HasPrefix(out, "Index") {
		t.Fatalf("out = %q", out)
	}
}
