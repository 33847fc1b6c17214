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
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"goportfolio/internal/domain"
	applog "goportfolio/internal/log"
)

const (
	DocumentFileName = "portfolio.json"
	BackupsDirName   = "backups"
	AssetsDirName    = "assets"
	ExportsDirName   = "exports"
)

var standardSubDirs = []string{
	AssetsDirName,
	ExportsDirName,
	BackupsDirName,
}

// Workspace is a portfolio directory loaded from or saved to disk.
// Root contains portfolio.json and the standard subfolders.
type Workspace struct {
	Root         string
	DocumentPath string
	Profile      domain.Profile
	// Recovered is set when Open had to fall back to a backup.
	Recovered bool
}

// AssetsDir returns the workspace asset folder.
func (w *Workspace) AssetsDir() string { return filepath.Join(w.Root, AssetsDirName) }

// ExportsDir returns the default export folder.
func (w *Workspace) ExportsDir() string { return filepath.Join(w.Root, ExportsDirName) }

// Init creates a workspace at root (creating it if needed), scaffolds the
// standard subfolders and writes p as the initial document.
func Init(root string, p domain.Profile) (*Workspace, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("root path is required")
	}
	if err := scaffold(root); err != nil {
		return nil, err
	}
	p.EnsureIDs()
	ws := &Workspace{
		Root:         root,
		DocumentPath: filepath.Join(root, DocumentFileName),
		Profile:      p,
	}
	if err := Save(ws); err != nil {
		return nil, err
	}
	return ws, nil
}

func scaffold(root string) error {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return fmt.Errorf("create workspace root: %w", err)
	}
	for _, d := range standardSubDirs {
		if err := os.MkdirAll(filepath.Join(root, d), 0o755); err != nil {
			return fmt.Errorf("create subdir %s: %w", d, err)
		}
	}
	return nil
}

// Open loads the workspace at root. If the document cannot be read, parsed
// or validated, the latest backup is used instead and Recovered is set.
func Open(root string) (*Workspace, error) {
	dpath := filepath.Join(root, DocumentFileName)
	p, err := readDocument(dpath)
	if err != nil {
		bp, berr := openFromLatestBackup(root)
		if berr != nil {
			return nil, fmt.Errorf("open document: %w; backup attempt: %v", err, berr)
		}
		applog.WithComponent("storage").Warn("document unreadable, recovered from backup",
			slog.String("root", root), slog.Any("err", err))
		bp.EnsureIDs()
		return &Workspace{Root: root, DocumentPath: dpath, Profile: *bp, Recovered: true}, nil
	}
	p.EnsureIDs()
	return &Workspace{Root: root, DocumentPath: dpath, Profile: *p}, nil
}

func readDocument(path string) (*domain.Profile, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return DecodeJSON(b)
}

// DecodeJSON validates and decodes a portfolio document.
func DecodeJSON(b []byte) (*domain.Profile, error) {
	if err := Validate(b); err != nil {
		return nil, err
	}
	var p domain.Profile
	if err := json.Unmarshal(b, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	normalize(&p)
	return &p, nil
}

// normalize fills in values a document may omit.
func normalize(p *domain.Profile) {
	if p.ProfilePicture == "" {
		p.ProfilePicture = domain.DefaultPicture
	}
	if p.Skills.Items == nil {
		p.Skills = domain.ParseTagList(p.Skills.Text)
	}
	for i := range p.Projects {
		if p.Projects[i].Technologies.Items == nil {
			p.Projects[i].Technologies = domain.ParseTagList(p.Projects[i].Technologies.Text)
		}
	}
}

// EncodeJSON renders p the way it is stored on disk.
func EncodeJSON(p domain.Profile) ([]byte, error) {
	if p.Projects == nil {
		p.Projects = []domain.ProjectRecord{}
	}
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal document: %w", err)
	}
	return append(data, '\n'), nil
}

// Save writes ws.Profile to disk with transactional semantics and a
// timestamped backup of the previous document (if present).
func Save(ws *Workspace) error {
	if ws == nil {
		return errors.New("nil Workspace")
	}
	if ws.Root == "" || ws.DocumentPath == "" {
		return errors.New("invalid Workspace: missing paths")
	}
	data, err := EncodeJSON(ws.Profile)
	if err != nil {
		return err
	}
	if err := Validate(data); err != nil {
		return err
	}

	bdir := filepath.Join(ws.Root, BackupsDirName)
	if err := os.MkdirAll(bdir, 0o755); err != nil {
		return fmt.Errorf("ensure backups dir: %w", err)
	}
	if _, statErr := os.Stat(ws.DocumentPath); statErr == nil {
		bpath := filepath.Join(bdir, backupName(time.Now()))
		if cerr := copyFile(ws.DocumentPath, bpath); cerr != nil {
			return fmt.Errorf("backup current document: %w", cerr)
		}
	}

	dir := filepath.Dir(ws.DocumentPath)
	temp := filepath.Join(dir, fmt.Sprintf(".%s.tmp-%d-%d", DocumentFileName, os.Getpid(), rand.Int()))
	if werr := writeFileSync(temp, data); werr != nil {
		return fmt.Errorf("write temp document: %w", werr)
	}
	// Windows refuses to rename over an existing file
	if _, err := os.Stat(ws.DocumentPath); err == nil {
		_ = os.Remove(ws.DocumentPath)
	}
	if rerr := os.Rename(temp, ws.DocumentPath); rerr != nil {
		_ = os.Remove(temp)
		return fmt.Errorf("replace document: %w", rerr)
	}
	if perr := PruneBackups(ws.Root, MaxBackups); perr != nil {
		applog.WithComponent("storage").Warn("prune backups failed", slog.String("err", perr.Error()))
	}
	return nil
}

// MaxBackups is how many document backups Save keeps.
const MaxBackups = 20

// PruneBackups removes all but the newest keep document backups.
// Crash snapshots are left alone.
func PruneBackups(root string, keep int) error {
	baks, err := Backups(root)
	if err != nil {
		return err
	}
	if keep < 0 {
		keep = 0
	}
	var errs []error
	for _, b := range baks[:max(len(baks)-keep, 0)] {
		if err := os.Remove(b); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// backupName sorts lexicographically by time; the nanosecond suffix keeps
// saves within the same second apart.
func backupName(t time.Time) string {
	return fmt.Sprintf("%s.%s.%09d.bak", DocumentFileName, t.Format("20060102-150405"), t.Nanosecond())
}

// AutosaveCrashSnapshot writes p next to the backups as a crash snapshot
// and returns its path. The live document is left untouched.
func AutosaveCrashSnapshot(root string, p domain.Profile) (string, error) {
	if root == "" {
		return "", errors.New("workspace root is empty")
	}
	bdir := filepath.Join(root, BackupsDirName)
	if err := os.MkdirAll(bdir, 0o755); err != nil {
		return "", fmt.Errorf("ensure backups dir: %w", err)
	}
	data, err := EncodeJSON(p)
	if err != nil {
		return "", err
	}
	path := filepath.Join(bdir, fmt.Sprintf("%s.crash-%s.json", DocumentFileName, time.Now().Format("20060102-150405")))
	if err := writeFileSync(path, data); err != nil {
		return "", fmt.Errorf("write crash snapshot: %w", err)
	}
	return path, nil
}

// ImportYAML reads a profile from YAML. Tag lists may be written either as
// a comma string or as a sequence.
func ImportYAML(r io.Reader) (domain.Profile, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return domain.Profile{}, fmt.Errorf("read yaml: %w", err)
	}
	var generic map[string]any
	if err := yaml.Unmarshal(data, &generic); err != nil {
		return domain.Profile{}, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	if generic == nil {
		return domain.Profile{}, fmt.Errorf("%w: empty document", ErrInvalidDocument)
	}
	if err := validateValue(generic); err != nil {
		return domain.Profile{}, err
	}
	var p domain.Profile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		return domain.Profile{}, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	normalize(&p)
	p.EnsureIDs()
	return p, nil
}

// ExportYAML writes p as YAML.
func ExportYAML(w io.Writer, p domain.Profile) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(p); err != nil {
		return fmt.Errorf("encode yaml: %w", err)
	}
	return enc.Close()
}

// writeFileSync writes data to a file and flushes it to disk.
func writeFileSync(path string, data []byte) (err error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	if _, err := f.Write(data); err != nil {
		return err
	}
	return f.Sync()
}

// copyFile copies a file from src to dst (overwrites dst if exists).
func copyFile(src, dst string) (err error) {
	sf, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := sf.Close(); err == nil {
			err = cerr
		}
	}()
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	df, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := df.Close(); err == nil {
			err = cerr
		}
	}()
	if _, err := io.Copy(df, sf); err != nil {
		return err
	}
	return df.Sync()
}

// Backups lists document backups, oldest first.
func Backups(root string) ([]string, error) {
	bdir := filepath.Join(root, BackupsDirName)
	ents, err := os.ReadDir(bdir)
	if err != nil {
		return nil, fmt.Errorf("read backups dir: %w", err)
	}
	var out []string
	for _, e := range ents {
		name := e.Name()
		if strings.HasPrefix(name, DocumentFileName+".") && strings.HasSuffix(name, ".bak") {
			out = append(out, filepath.Join(bdir, name))
		}
	}
	sort.Strings(out)
	return out, nil
}

// openFromLatestBackup walks backups newest first and returns the first valid one.
func openFromLatestBackup(root string) (*domain.Profile, error) {
	candidates, err := Backups(root)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, errors.New("no backups found")
	}
	var lastErr error
	for i := len(candidates) - 1; i >= 0; i-- {
		p, err := readDocument(candidates[i])
		if err == nil {
			return p, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("no readable backup: %w", lastErr)
}
