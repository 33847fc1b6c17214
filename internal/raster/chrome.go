/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package raster

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"sync"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/go-rod/rod/lib/launcher"

	"goportfolio/internal/htmlview"
	applog "goportfolio/internal/log"
	"goportfolio/internal/preview"
)

// Chrome renders the HTML view in a shared headless Chrome and screenshots
// the surface element. The browser starts on first use.
type Chrome struct {
	cfg  chromeConfig
	html *htmlview.Renderer
	log  *slog.Logger

	initOnce      sync.Once
	initErr       error
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc

	mu     sync.Mutex
	closed bool
}

type chromeConfig struct {
	execPath     string
	noSandbox    bool
	autoDownload bool
	timeout      time.Duration
	width        int
	minHeight    int
}

// ChromeOption configures a Chrome rasterizer.
type ChromeOption func(*chromeConfig)

// WithExecPath sets the Chrome or Chromium binary.
func WithExecPath(p string) ChromeOption { return func(c *chromeConfig) { c.execPath = p } }

// WithNoSandbox disables the Chrome sandbox, needed in most containers.
func WithNoSandbox(v bool) ChromeOption { return func(c *chromeConfig) { c.noSandbox = v } }

// WithAutoDownload fetches a Chromium build when no exec path is set.
func WithAutoDownload(v bool) ChromeOption { return func(c *chromeConfig) { c.autoDownload = v } }

// WithTimeout bounds a single Rasterize call.
func WithTimeout(d time.Duration) ChromeOption { return func(c *chromeConfig) { c.timeout = d } }

// WithViewport sets the surface width and minimum height in CSS pixels.
func WithViewport(width, minHeight int) ChromeOption {
	return func(c *chromeConfig) {
		if width > 0 {
			c.width = width
		}
		if minHeight > 0 {
			c.minHeight = minHeight
		}
	}
}

// NewChrome returns a Chrome rasterizer using html to produce the page.
// The HTML renderer should inline assets, since the page has no base URL.
func NewChrome(html *htmlview.Renderer, opts ...ChromeOption) *Chrome {
	cfg := chromeConfig{timeout: 30 * time.Second, width: SurfaceWidth, minHeight: SurfaceMinHeight}
	for _, o := range opts {
		o(&cfg)
	}
	return &Chrome{cfg: cfg, html: html, log: applog.WithComponent("raster.chrome")}
}

func (c *Chrome) ensureBrowser() error {
	c.initOnce.Do(func() {
		execPath := c.cfg.execPath
		if execPath == "" && c.cfg.autoDownload {
			p, err := launcher.NewBrowser().Get()
			if err != nil {
				c.initErr = fmt.Errorf("download browser: %w", err)
				return
			}
			execPath = p
		}
		opts := append(
			chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("disable-dev-shm-usage", true),
			chromedp.Flag("disable-extensions", true),
			chromedp.Flag("hide-scrollbars", true),
			chromedp.Flag("no-first-run", true),
		)
		if execPath != "" {
			opts = append(opts, chromedp.ExecPath(execPath))
		}
		if c.cfg.noSandbox {
			opts = append(opts, chromedp.NoSandbox)
		}
		var allocCtx context.Context
		allocCtx, c.allocCancel = chromedp.NewExecAllocator(context.Background(), opts...)
		c.browserCtx, c.browserCancel = chromedp.NewContext(allocCtx)
		if err := chromedp.Run(c.browserCtx); err != nil {
			c.browserCancel()
			c.allocCancel()
			c.initErr = fmt.Errorf("start browser: %w", err)
			return
		}
		c.log.Info("browser started", slog.String("exec", execPath))
	})
	return c.initErr
}

// Rasterize loads the page for doc and captures the surface at scale.
func (c *Chrome) Rasterize(ctx context.Context, doc preview.Document, scale float64) (image.Image, error) {
	if err := c.checkClosed(); err != nil {
		return nil, err
	}
	if scale <= 0 {
		scale = 1
	}
	html, err := c.html.Page(ctx, doc)
	if err != nil {
		return nil, err
	}
	if err := c.ensureBrowser(); err != nil {
		return nil, err
	}

	tabCtx, tabCancel := chromedp.NewContext(c.browserCtx)
	defer tabCancel()
	// tie the tab to the caller's context
	stop := context.AfterFunc(ctx, tabCancel)
	defer stop()
	if c.cfg.timeout > 0 {
		var cancel context.CancelFunc
		tabCtx, cancel = context.WithTimeout(tabCtx, c.cfg.timeout)
		defer cancel()
	}

	var shot []byte
	sel := "#" + htmlview.SurfaceID
	if err := chromedp.Run(tabCtx,
		chromedp.EmulateViewport(int64(c.cfg.width), int64(c.cfg.minHeight), chromedp.EmulateScale(scale)),
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			tree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			return page.SetDocumentContent(tree.Frame.ID, html).Do(ctx)
		}),
		chromedp.WaitVisible(sel, chromedp.ByQuery),
		// wait for the picture to decode before capturing
		chromedp.Evaluate(`Promise.all(Array.from(document.images).map(i => i.decode().catch(() => null)))`, nil,
			func(p *runtime.EvaluateParams) *runtime.EvaluateParams { return p.WithAwaitPromise(true) }),
		chromedp.Screenshot(sel, &shot, chromedp.ByQuery),
	); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("chrome capture: %w", err)
	}
	img, err := png.Decode(bytes.NewReader(shot))
	if err != nil {
		return nil, fmt.Errorf("decode screenshot: %w", err)
	}
	return img, nil
}

// Close stops the browser. It is idempotent.
func (c *Chrome) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if c.browserCancel != nil {
		c.browserCancel()
	}
	if c.allocCancel != nil {
		c.allocCancel()
	}
	return nil
}

func (c *Chrome) checkClosed() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	return nil
}
