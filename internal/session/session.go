/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package session wires one editable portfolio to its collaborators:
// the state store and editor, the live preview, the export pipeline and,
// when backed by a workspace directory, persistence and the index.
// The web surface, the desktop UI and the CLI all drive a Session.
package session

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"goportfolio/internal/config"
	"goportfolio/internal/domain"
	"goportfolio/internal/editor"
	"goportfolio/internal/export"
	"goportfolio/internal/htmlview"
	applog "goportfolio/internal/log"
	"goportfolio/internal/picture"
	"goportfolio/internal/preview"
	"goportfolio/internal/raster"
	"goportfolio/internal/storage"
	"goportfolio/internal/store"
	"goportfolio/internal/telemetry"
)

// ErrNoWorkspace is returned by operations that need a workspace directory.
var ErrNoWorkspace = errors.New("session has no workspace")

// Options configure Open.
type Options struct {
	Config config.AppConfig
	// Root is the workspace directory. Empty runs on the default profile in memory.
	Root string
	// Create initializes Root with the default profile when it holds no document.
	Create bool
	// Rasterizer overrides the one selected by Config.Export.Rasterizer.
	Rasterizer raster.Rasterizer
	// Telemetry defaults to the package default client.
	Telemetry *telemetry.Client
	// AutoSave debounces writes of the profile after edits; zero disables it.
	AutoSave time.Duration
}

// Session is safe for concurrent use.
type Session struct {
	cfg      config.AppConfig
	ws       *storage.Workspace
	index    *storage.Index
	store    *store.Store
	editor   *editor.Editor
	live     *preview.Live
	html     *htmlview.Renderer
	resolver picture.Resolver
	pipeline *export.Pipeline
	raster   raster.Rasterizer
	tel      *telemetry.Client
	log      *slog.Logger

	saveMu    sync.Mutex
	timerMu   sync.Mutex
	saveTimer *time.Timer
	unsub     func()
	closeOnce sync.Once
}

// Open builds a session. With a Root it loads (or creates) the workspace
// and opens its index; otherwise it starts from domain.DefaultProfile.
func Open(opts Options) (*Session, error) {
	cfg := opts.Config
	s := &Session{cfg: cfg, log: applog.WithComponent("session")}

	profile := domain.DefaultProfile()
	if opts.Root != "" {
		root, err := filepath.Abs(opts.Root)
		if err != nil {
			return nil, fmt.Errorf("resolve workspace: %w", err)
		}
		var ws *storage.Workspace
		_, statErr := os.Stat(filepath.Join(root, storage.DocumentFileName))
		if opts.Create && errors.Is(statErr, fs.ErrNotExist) {
			ws, err = storage.Init(root, domain.DefaultProfile())
		} else {
			ws, err = storage.Open(root)
		}
		if err != nil {
			return nil, err
		}
		if ws.Recovered {
			s.log.Warn("workspace recovered from backup", slog.String("root", root))
		}
		s.ws = ws
		profile = ws.Profile
		idx, err := storage.OpenIndex(root, cfg.Cache.MaxBytes)
		if err != nil {
			// history and caching are optional; editing still works
			s.log.Warn("index unavailable", slog.Any("err", err))
		} else {
			s.index = idx
		}
	}

	s.resolver = picture.Resolver{AssetsDir: s.assetsDir()}
	s.store = store.New(profile)
	s.editor = editor.New(s.store)
	s.editor.Reset(profile)
	s.live = preview.NewLive(s.store, preview.Options{
		DropEmptyTags:     cfg.Preview.DropEmptyTags,
		RenderDescription: cfg.Preview.RenderDescription,
	})
	s.html = htmlview.New(htmlview.Options{
		Resolver:  s.resolver,
		Width:     cfg.Preview.SurfaceWidth,
		MinHeight: cfg.Preview.MinHeight,
	})

	s.raster = opts.Rasterizer
	if s.raster == nil {
		r, err := raster.New(raster.Config{
			Kind:         raster.Kind(cfg.Export.Rasterizer),
			Resolver:     s.resolver,
			Width:        cfg.Preview.SurfaceWidth,
			MinHeight:    cfg.Preview.MinHeight,
			ChromePath:   cfg.Export.ChromePath,
			NoSandbox:    cfg.Export.ChromeNoSandbox,
			AutoDownload: cfg.Export.ChromeAutoDownload,
			Timeout:      cfg.Export.Timeout(),
		})
		if err != nil {
			s.closeStores()
			return nil, fmt.Errorf("rasterizer: %w", err)
		}
		s.raster = r
	}
	s.pipeline = &export.Pipeline{
		Rasterizer:  s.raster,
		Scale:       cfg.Export.Scale,
		PageWidthMM: cfg.Export.PageWidthMM,
		PageMode:    export.PageMode(cfg.Export.PageMode),
	}
	if s.index != nil {
		s.pipeline.Cache = s.index
	}

	s.tel = opts.Telemetry
	if s.tel == nil {
		s.tel = telemetry.Default()
	}
	if opts.AutoSave > 0 && s.ws != nil {
		delay := opts.AutoSave
		s.unsub = s.store.Subscribe(func(store.Change) { s.scheduleSave(delay) })
	}
	return s, nil
}

func (s *Session) assetsDir() string {
	if s.cfg.General.AssetsDir != "" {
		return s.cfg.General.AssetsDir
	}
	if s.ws != nil {
		return s.ws.AssetsDir()
	}
	return ""
}

// Editor returns the field and project editor.
func (s *Session) Editor() *editor.Editor { return s.editor }

// Store returns the state store.
func (s *Session) Store() *store.Store { return s.store }

// Live returns the live preview.
func (s *Session) Live() *preview.Live { return s.live }

// HTML returns the HTML renderer for the preview.
func (s *Session) HTML() *htmlview.Renderer { return s.html }

// Resolver returns the picture resolver in use.
func (s *Session) Resolver() picture.Resolver { return s.resolver }

// Config returns the configuration the session was opened with.
func (s *Session) Config() config.AppConfig { return s.cfg }

// Root returns the workspace directory, or "" for an in-memory session.
func (s *Session) Root() string {
	if s.ws == nil {
		return ""
	}
	return s.ws.Root
}

// Profile returns a copy of the current profile.
func (s *Session) Profile() domain.Profile {
	p, _ := s.store.Snapshot()
	return p
}

// Save writes the current profile to the workspace.
func (s *Session) Save() error {
	if s.ws == nil {
		return ErrNoWorkspace
	}
	s.saveMu.Lock()
	defer s.saveMu.Unlock()
	p, v := s.store.Snapshot()
	s.ws.Profile = p
	if err := storage.Save(s.ws); err != nil {
		s.log.Error("save failed", slog.Any("err", err))
		return err
	}
	s.log.Debug("saved", slog.Uint64("version", uint64(v)))
	return nil
}

func (s *Session) scheduleSave(delay time.Duration) {
	s.timerMu.Lock()
	defer s.timerMu.Unlock()
	if s.saveTimer != nil {
		s.saveTimer.Stop()
	}
	s.saveTimer = time.AfterFunc(delay, func() { _ = s.Save() })
}

// flushSave runs a pending autosave now.
func (s *Session) flushSave() {
	s.timerMu.Lock()
	t := s.saveTimer
	s.saveTimer = nil
	s.timerMu.Unlock()
	if t != nil && t.Stop() {
		_ = s.Save()
	}
}

// AutosaveCrash writes a crash snapshot of the current profile.
func (s *Session) AutosaveCrash() (string, error) {
	if s.ws == nil {
		return "", ErrNoWorkspace
	}
	return storage.AutosaveCrashSnapshot(s.ws.Root, s.Profile())
}

// OutDir returns the directory exports are saved to by default.
func (s *Session) OutDir() string {
	if s.cfg.Export.OutDir != "" {
		return s.cfg.Export.OutDir
	}
	if s.ws != nil {
		return s.ws.ExportsDir()
	}
	return "."
}

// Export renders the current preview and produces one result per format.
// Every attempt is logged, recorded in the history and reported to telemetry.
func (s *Session) Export(ctx context.Context, formats []export.Format) ([]*export.Result, error) {
	return s.export(ctx, formats, "")
}

// ExportTo runs Export and saves the results into dir ("" = OutDir()).
func (s *Session) ExportTo(ctx context.Context, dir string, formats []export.Format) ([]string, error) {
	if dir == "" {
		dir = s.OutDir()
	}
	results, err := s.export(ctx, formats, dir)
	if err != nil {
		return nil, err
	}
	paths := make([]string, len(results))
	for i, r := range results {
		paths[i] = filepath.Join(dir, r.Filename)
	}
	return paths, nil
}

func (s *Session) export(ctx context.Context, formats []export.Format, dir string) ([]*export.Result, error) {
	if len(formats) == 0 {
		formats = []export.Format{export.FormatPDF}
	}
	id := uuid.NewString()
	ctx = applog.ContextWithExportID(ctx, id)
	if s.ws != nil {
		ctx = applog.ContextWithWorkspace(ctx, s.ws.Root)
	}
	doc, _ := s.live.Current()
	start := time.Now()

	results, err := s.pipeline.ExportAll(ctx, doc, doc.Header.Name, formats)
	if err == nil && dir != "" {
		_, err = export.SaveAll(results, dir)
	}
	took := time.Since(start)
	if err != nil {
		stage := string(export.StageOf(err))
		for _, f := range formats {
			s.tel.ExportFailed(string(f), stage, took)
			s.record(ctx, storage.ExportRecord{
				ID: id, Format: string(f), Filename: filenameFor(f, doc.Header.Name),
				DocHash: doc.Hash(), Status: storage.ExportFailed, Stage: stage, Error: err.Error(),
			})
		}
		s.log.ErrorContext(ctx, "export failed", slog.String("stage", stage), slog.Any("err", err))
		return nil, err
	}
	for i, r := range results {
		rec := storage.ExportRecord{
			ID: id, Format: string(formats[i]), Filename: r.Filename, Bytes: int64(r.Len()),
			PageWMM: r.PageWidthMM, PageHMM: r.PageHeightMM, DocHash: doc.Hash(), Status: storage.ExportOK,
		}
		if dir != "" {
			rec.Path = filepath.Join(dir, r.Filename)
		}
		s.record(ctx, rec)
		s.tel.ExportCompleted(string(formats[i]), r.Len(), took)
	}
	s.log.InfoContext(ctx, "exported", slog.Int("files", len(results)), slog.Duration("took", took))
	return results, nil
}

func filenameFor(f export.Format, name string) string {
	if f == export.FormatPNG {
		return export.PNGFilename(name)
	}
	return export.Filename(name)
}

func (s *Session) record(ctx context.Context, rec storage.ExportRecord) {
	if s.index == nil {
		return
	}
	if err := s.index.RecordExport(context.WithoutCancel(ctx), rec); err != nil {
		s.log.WarnContext(ctx, "record export failed", slog.Any("err", err))
	}
}

// History lists recent exports, newest first.
func (s *Session) History(ctx context.Context, limit int) ([]storage.ExportRecord, error) {
	if s.index == nil {
		return nil, ErrNoWorkspace
	}
	return s.index.ListExports(ctx, limit)
}

// PreviewPNG rasterizes the current preview at scale (<= 0 means 1)
// and returns the PNG bytes with the store version they show.
func (s *Session) PreviewPNG(ctx context.Context, scale float64) ([]byte, store.Version, error) {
	if scale <= 0 {
		scale = 1
	}
	doc, v := s.live.Current()
	p := *s.pipeline
	p.Scale = scale
	res, err := p.ExportPNG(ctx, doc, doc.Header.Name)
	if err != nil {
		return nil, v, err
	}
	return res.Bytes(), v, nil
}

// Close flushes a pending autosave and releases the rasterizer and index.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		if s.unsub != nil {
			s.unsub()
		}
		s.flushSave()
		s.live.Close()
		err = errors.Join(s.raster.Close(), s.closeStores())
	})
	return err
}

func (s *Session) closeStores() error {
	if s.index == nil {
		return nil
	}
	return s.index.Close()
}
