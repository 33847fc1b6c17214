/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package web serves a two-pane browser editor for a session: the form on
// the left, the live preview on the right, and PDF download.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/flosch/pongo2/v6"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"goportfolio/internal/domain"
	"goportfolio/internal/editor"
	"goportfolio/internal/export"
	"goportfolio/internal/htmlview"
	applog "goportfolio/internal/log"
	"goportfolio/internal/picture"
	"goportfolio/internal/session"
	"goportfolio/internal/store"
)

const (
	maxFormBytes    = 1 << 20
	maxPictureBytes = 16 << 20
)

// Server handles the editor routes for one session.
type Server struct {
	sess *session.Session
	html *htmlview.Renderer
	log  *slog.Logger
}

// New returns a server for sess. Pictures are inlined so the browser needs no asset routes.
func New(sess *session.Session) *Server {
	cfg := sess.Config()
	return &Server{
		sess: sess,
		html: htmlview.New(htmlview.Options{
			InlineAssets: true,
			Resolver:     sess.Resolver(),
			Width:        cfg.Preview.SurfaceWidth,
			MinHeight:    cfg.Preview.MinHeight,
		}),
		log: applog.WithComponent("web"),
	}
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/", s.handleIndex)
	r.Get("/profile.json", s.handleProfile)
	r.Get("/preview", s.handlePreview)
	r.Get("/preview.png", s.handlePreviewPNG)
	r.Get("/export.pdf", s.handleExportPDF)

	r.Group(func(r chi.Router) {
		r.Use(sameOrigin)
		r.Post("/fields/{field}", s.handleField)
		r.Post("/picture", s.handlePicture)
		r.Post("/projects", s.handleAddProject)
		r.Post("/projects/{id}/fields/{field}", s.handleProjectField)
		r.Post("/projects/{id}/delete", s.handleDeleteProject)
		r.Post("/undo", s.handleUndo)
		r.Post("/redo", s.handleRedo)
	})
	return r
}

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.log.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug("request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Duration("took", time.Since(start)))
	})
}

// sameOrigin rejects browser requests sent from another site. Requests
// without Sec-Fetch-Site or Origin (curl, scripts) pass.
func sameOrigin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Header.Get("Sec-Fetch-Site") {
		case "", "same-origin", "none":
		default:
			httpError(w, http.StatusForbidden, "cross-site request rejected")
			return
		}
		if origin := r.Header.Get("Origin"); origin != "" {
			u, err := url.Parse(origin)
			if err != nil || u.Host == "" || !strings.EqualFold(u.Host, r.Host) {
				httpError(w, http.StatusForbidden, "cross-origin request rejected")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	doc, v := s.sess.Live().Current()
	frag, err := s.html.Fragment(r.Context(), doc)
	if err != nil {
		httpError(w, http.StatusInternalServerError, "render preview: %v", err)
		return
	}
	p := s.sess.Profile()
	out, err := indexTpl.Execute(pongo2.Context{
		"p":        p,
		"version":  uint64(v),
		"preview":  frag,
		"css":      htmlview.Stylesheet,
		"canUndo":  s.sess.Editor().CanUndo(),
		"canRedo":  s.sess.Editor().CanRedo(),
		"filename": export.Filename(p.Name),
	})
	if err != nil {
		httpError(w, http.StatusInternalServerError, "render page: %v", err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(out))
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	p, v := s.sess.Store().Snapshot()
	w.Header().Set("ETag", strconv.Quote(strconv.FormatUint(uint64(v), 10)))
	writeJSON(w, http.StatusOK, p)
}

// handlePreview returns the surface fragment. With ?after=N it waits up to
// 25s for a version newer than N, so the page can long-poll for changes.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	doc, v := s.sess.Live().Current()
	if after := r.URL.Query().Get("after"); after != "" {
		n, err := strconv.ParseUint(after, 10, 64)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid after: %q", after)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), 25*time.Second)
		defer cancel()
		d, nv, err := s.sess.Live().Next(ctx, store.Version(n))
		switch {
		case err == nil:
			doc, v = d, nv
		case errors.Is(err, context.DeadlineExceeded):
			w.WriteHeader(http.StatusNoContent)
			return
		default:
			return
		}
	}
	frag, err := s.html.Fragment(r.Context(), doc)
	if err != nil {
		httpError(w, http.StatusInternalServerError, "render preview: %v", err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("X-Version", strconv.FormatUint(uint64(v), 10))
	_, _ = w.Write([]byte(frag))
}

func (s *Server) handlePreviewPNG(w http.ResponseWriter, r *http.Request) {
	scale := 1.0
	if q := r.URL.Query().Get("scale"); q != "" {
		f, err := strconv.ParseFloat(q, 64)
		if err != nil || f <= 0 || f > 4 {
			httpError(w, http.StatusBadRequest, "invalid scale: %q", q)
			return
		}
		scale = f
	}
	b, v, err := s.sess.PreviewPNG(r.Context(), scale)
	if err != nil {
		exportError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("X-Version", strconv.FormatUint(uint64(v), 10))
	_, _ = w.Write(b)
}

func (s *Server) handleExportPDF(w http.ResponseWriter, r *http.Request) {
	results, err := s.sess.Export(r.Context(), []export.Format{export.FormatPDF})
	if err != nil {
		exportError(w, err)
		return
	}
	res := results[0]
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": res.Filename}))
	w.Header().Set("Content-Length", strconv.Itoa(res.Len()))
	_, _ = res.WriteTo(w)
}

func (s *Server) handleField(w http.ResponseWriter, r *http.Request) {
	f, err := domain.ParseField(chi.URLParam(r, "field"))
	if err != nil {
		httpError(w, http.StatusNotFound, "%v", err)
		return
	}
	value, ok := formValue(w, r)
	if !ok {
		return
	}
	v, err := s.sess.Editor().UpdateTextField(f, value)
	s.reply(w, v, err)
}

func (s *Server) handlePicture(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxPictureBytes)
	if err := r.ParseMultipartForm(maxPictureBytes); err != nil {
		httpError(w, http.StatusBadRequest, "invalid upload: %v", err)
		return
	}
	file, _, err := r.FormFile("picture")
	if err != nil {
		httpError(w, http.StatusBadRequest, "missing picture: %v", err)
		return
	}
	defer file.Close()
	v, err := s.sess.Editor().UpdateProfilePicture(r.Context(), file)
	s.reply(w, v, err)
}

func (s *Server) handleAddProject(w http.ResponseWriter, _ *http.Request) {
	id, v := s.sess.Editor().AddProject()
	writeJSON(w, http.StatusCreated, map[string]any{"id": id, "version": uint64(v)})
}

func (s *Server) handleProjectField(w http.ResponseWriter, r *http.Request) {
	f, err := domain.ParseProjectField(chi.URLParam(r, "field"))
	if err != nil {
		httpError(w, http.StatusNotFound, "%v", err)
		return
	}
	value, ok := formValue(w, r)
	if !ok {
		return
	}
	v, err := s.sess.Editor().UpdateProjectFieldByID(chi.URLParam(r, "id"), f, value)
	s.reply(w, v, err)
}

func (s *Server) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	v, err := s.sess.Editor().RemoveProjectByID(chi.URLParam(r, "id"))
	s.reply(w, v, err)
}

func (s *Server) handleUndo(w http.ResponseWriter, _ *http.Request) {
	v, err := s.sess.Editor().Undo()
	s.reply(w, v, err)
}

func (s *Server) handleRedo(w http.ResponseWriter, _ *http.Request) {
	v, err := s.sess.Editor().Redo()
	s.reply(w, v, err)
}

func (s *Server) reply(w http.ResponseWriter, v store.Version, err error) {
	if err != nil {
		httpError(w, statusFor(err), "%v", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"version": uint64(v)})
}

func formValue(w http.ResponseWriter, r *http.Request) (string, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := r.ParseForm(); err != nil {
		httpError(w, http.StatusBadRequest, "invalid form: %v", err)
		return "", false
	}
	return r.PostForm.Get("value"), true
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, editor.ErrUnknownField):
		return http.StatusNotFound
	case errors.Is(err, editor.ErrProjectNotFound), errors.Is(err, editor.ErrIndexOutOfRange):
		return http.StatusNotFound
	case errors.Is(err, editor.ErrNothingToUndo), errors.Is(err, editor.ErrNothingToRedo),
		errors.Is(err, editor.ErrPictureSuperseded):
		return http.StatusConflict
	case errors.Is(err, picture.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, picture.ErrUnsupportedImage):
		return http.StatusUnsupportedMediaType
	}
	return http.StatusInternalServerError
}

func exportError(w http.ResponseWriter, err error) {
	if st := export.StageOf(err); st != "" {
		httpError(w, http.StatusInternalServerError, "export failed at %s: %v", st, err)
		return
	}
	httpError(w, http.StatusInternalServerError, "export failed: %v", err)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, format string, args ...any) {
	writeJSON(w, code, map[string]any{"error": map[string]any{
		"message": fmt.Sprintf(format, args...),
		"status":  code,
	}})
}
