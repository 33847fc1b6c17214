/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package raster turns a preview Document into a bitmap. Native paints the
// document with Go fonts and x/image; Chrome screenshots the HTML view in a
// headless browser.
package raster

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strings"
	"time"

	"goportfolio/internal/htmlview"
	"goportfolio/internal/picture"
	"goportfolio/internal/preview"
)

// ErrClosed is returned when a rasterizer is used after Close.
var ErrClosed = errors.New("rasterizer closed")

// Surface dimensions in CSS pixels.
const (
	SurfaceWidth     = 794
	SurfaceMinHeight = 842
)

// Rasterizer renders a document at the given device scale.
// Implementations are safe for concurrent use.
type Rasterizer interface {
	Rasterize(ctx context.Context, doc preview.Document, scale float64) (image.Image, error)
	Close() error
}

// Kind names a Rasterizer implementation in configuration.
type Kind string

const (
	KindNative Kind = "native"
	KindChrome Kind = "chrome"
)

// Config selects and configures a rasterizer.
type Config struct {
	Kind         Kind
	Resolver     picture.Resolver
	Width        int
	MinHeight    int
	ChromePath   string
	NoSandbox    bool
	AutoDownload bool
	Timeout      time.Duration
}

// New builds the rasterizer named by cfg.Kind; the empty kind is native.
func New(cfg Config) (Rasterizer, error) {
	switch Kind(strings.ToLower(string(cfg.Kind))) {
	case "", KindNative:
		return NewNative(WithResolver(cfg.Resolver), WithSurface(cfg.Width, cfg.MinHeight))
	case KindChrome:
		html := htmlview.New(htmlview.Options{InlineAssets: true, Resolver: cfg.Resolver, Width: cfg.Width, MinHeight: cfg.MinHeight})
		return NewChrome(html,
			WithExecPath(cfg.ChromePath),
			WithNoSandbox(cfg.NoSandbox),
			WithAutoDownload(cfg.AutoDownload),
			WithTimeout(cfg.Timeout),
			WithViewport(cfg.Width, cfg.MinHeight),
		), nil
	}
	return nil, fmt.Errorf("unknown rasterizer %q", cfg.Kind)
}
