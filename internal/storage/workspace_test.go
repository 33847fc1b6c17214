/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"goportfolio/internal/domain"
)

func TestInitCreatesStructureAndDocument(t *testing.T) {
	root := t.TempDir()
	ws, err := Init(root, domain.DefaultProfile())
	if err != nil {
		t.Fatalf("Init error: %v", err)
	}
	b, err := os.ReadFile(ws.DocumentPath)
	if err != nil {
		t.Fatalf("read document: %v", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if raw["name"] != "Alex Morgan" {
		t.Fatalf("name=%v", raw["name"])
	}
	if raw["skills"] != "HTML, CSS, JavaScript, React, Node.js" {
		t.Fatalf("skills stored as %v", raw["skills"])
	}
	for _, d := range []string{AssetsDirName, ExportsDirName, BackupsDirName} {
		if fi, err := os.Stat(filepath.Join(root, d)); err != nil || !fi.IsDir() {
			t.Fatalf("expected directory %s", d)
		}
	}
	if err := Validate(b); err != nil {
		t.Fatalf("document does not conform to schema: %v", err)
	}
}

func TestOpenRoundTrip(t *testing.T) {
	root := t.TempDir()
	p := domain.DefaultProfile()
	p.Skills = domain.ParseTagList("Go, ")
	if _, err := Init(root, p); err != nil {
		t.Fatalf("Init: %v", err)
	}
	ws, err := Open(root)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if ws.Recovered {
		t.Fatalf("unexpected recovery")
	}
	if got := ws.Profile.Skills.Items; len(got) != 2 || got[0] != "Go" || got[1] != "" {
		t.Fatalf("skills items=%q", got)
	}
	if len(ws.Profile.Projects) != len(p.Projects) {
		t.Fatalf("projects=%d", len(ws.Profile.Projects))
	}
	for _, r := range ws.Profile.Projects {
		if r.ID == "" {
			t.Fatalf("project without id")
		}
	}
}

func TestSaveCreatesTimestampedBackup(t *testing.T) {
	root := t.TempDir()
	ws, err := Init(root, domain.DefaultProfile())
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	ws.Profile.Role = "changed"
	if err := Save(ws); err != nil {
		t.Fatalf("Save: %v", err)
	}
	baks, err := Backups(root)
	if err != nil {
		t.Fatalf("Backups: %v", err)
	}
	if len(baks) == 0 {
		t.Fatalf("expected at least one backup")
	}
	if !strings.HasPrefix(filepath.Base(baks[0]), DocumentFileName+".") {
		t.Fatalf("unexpected backup name %s", baks[0])
	}
}

func TestSaveKeepsNewestBackups(t *testing.T) {
	root := t.TempDir()
	ws, err := Init(root, domain.DefaultProfile())
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	crash, err := AutosaveCrashSnapshot(root, ws.Profile)
	if err != nil {
		t.Fatalf("AutosaveCrashSnapshot: %v", err)
	}
	for i := 0; i < MaxBackups+5; i++ {
		ws.Profile.Role = fmt.Sprintf("role %d", i)
		if err := Save(ws); err != nil {
			t.Fatalf("Save %d: %v", i, err)
		}
	}
	baks, err := Backups(root)
	if err != nil {
		t.Fatalf("Backups: %v", err)
	}
	if len(baks) != MaxBackups {
		t.Fatalf("got %d backups, want %d", len(baks), MaxBackups)
	}
	// the newest backup holds the document before the last save
	data, err := os.ReadFile(baks[len(baks)-1])
	if err != nil {
		t.Fatal(err)
	}
	if want := fmt.Sprintf("role %d", MaxBackups+3); !strings.Contains(string(data), want) {
		t.Fatalf("newest backup lacks %q", want)
	}
	if _, err := os.Stat(crash); err != nil {
		t.Fatalf("crash snapshot pruned: %v", err)
	}
}

func TestOpenFallsBackToLatestBackupOnCorruption(t *testing.T) {
	root := t.TempDir()
	ws, err := Init(root, domain.DefaultProfile())
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	ws.Profile.Role = "touch"
	if err := Save(ws); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := os.WriteFile(ws.DocumentPath, []byte("{ this is not json"), 0o644); err != nil {
		t.Fatalf("corrupt: %v", err)
	}
	opened, err := Open(root)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !opened.Recovered || opened.Profile.Name != "Alex Morgan" {
		t.Fatalf("expected recovery from backup, got %+v", opened.Profile)
	}
}

func TestOpenRejectsSchemaViolation(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, DocumentFileName), []byte(`{"name":"A","skils":"typo"}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, err := Open(root)
	if !errors.Is(err, ErrInvalidDocument) {
		t.Fatalf("expected ErrInvalidDocument, got %v", err)
	}
}

func TestDecodeJSONDefaultsPicture(t *testing.T) {
	p, err := DecodeJSON([]byte(`{"name":"A","projects":[{"title":"x","technologies":"Go,Rust"}]}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.ProfilePicture != domain.DefaultPicture {
		t.Fatalf("picture=%q", p.ProfilePicture)
	}
	if got := p.Projects[0].Technologies.Items; len(got) != 2 || got[1] != "Rust" {
		t.Fatalf("technologies=%q", got)
	}
}

func TestImportYAML(t *testing.T) {
	src := `
name: Sam Lee
role: Designer
skills: [Figma, Sketch]
email: sam@example.com
projects:
  - title: Site
    technologies: HTML, CSS
    description: A site.
`
	p, err := ImportYAML(strings.NewReader(src))
	if err != nil {
		t.Fatalf("ImportYAML: %v", err)
	}
	if p.Name != "Sam Lee" || p.Skills.Text != "Figma, Sketch" {
		t.Fatalf("unexpected profile %+v", p)
	}
	if len(p.Projects) != 1 || p.Projects[0].ID == "" || p.Projects[0].Technologies.Items[1] != "CSS" {
		t.Fatalf("unexpected projects %+v", p.Projects)
	}
	if p.ProfilePicture != domain.DefaultPicture {
		t.Fatalf("picture=%q", p.ProfilePicture)
	}

	if _, err := ImportYAML(strings.NewReader("name: A\nunknown: 1\n")); !errors.Is(err, ErrInvalidDocument) {
		t.Fatalf("expected ErrInvalidDocument, got %v", err)
	}
}

func TestExportYAMLReimports(t *testing.T) {
	var sb strings.Builder
	if err := ExportYAML(&sb, domain.DefaultProfile()); err != nil {
		t.Fatalf("ExportYAML: %v", err)
	}
	p, err := ImportYAML(strings.NewReader(sb.String()))
	if err != nil {
		t.Fatalf("ImportYAML: %v\n%s", err, sb.String())
	}
	if p.Skills.Text != domain.DefaultProfile().Skills.Text {
		t.Fatalf("skills=%q", p.Skills.Text)
	}
}

func TestAutosaveCrashSnapshotWritesFile(t *testing.T) {
	root := t.TempDir()
	path, err := AutosaveCrashSnapshot(root, domain.DefaultProfile())
	if err != nil {
		t.Fatalf("AutosaveCrashSnapshot: %v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	p, err := DecodeJSON(b)
	if err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if p.Name != "Alex Morgan" {
		t.Fatalf("snapshot name=%q", p.Name)
	}
}
