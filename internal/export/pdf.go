/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"log/slog"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"

	applog "goportfolio/internal/log"
	"goportfolio/internal/preview"
	"goportfolio/internal/raster"
)

// Page geometry defaults.
const (
	DefaultScale       = 2.0
	DefaultPageWidthMM = 210.0
	A4HeightMM         = 297.0
)

// PageMode selects how the page height is derived.
type PageMode string

const (
	// PageScaled sizes the page to the image aspect ratio.
	PageScaled PageMode = "scaled"
	// PageA4 keeps a fixed A4 page; taller images run past the bottom edge.
	PageA4 PageMode = "a4"
)

// RasterCache stores encoded rasters keyed by document hash and scale.
type RasterCache interface {
	GetOrCreateRaster(ctx context.Context, key string, scale float64, create func() ([]byte, error)) ([]byte, error)
}

// Pipeline converts preview documents into PDF or PNG files.
// The zero values of Scale, PageWidthMM and PageMode select 2, 210 and scaled.
type Pipeline struct {
	Rasterizer  raster.Rasterizer
	Scale       float64
	PageWidthMM float64
	PageMode    PageMode
	// Cache is optional.
	Cache RasterCache
	// Author is written to the PDF info dictionary when set.
	Author string
}

// Export runs rasterize, encode and compose for doc and returns the PDF
// named after name. It does not touch the filesystem; see Result.Save.
func (p *Pipeline) Export(ctx context.Context, doc preview.Document, name string) (*Result, error) {
	l := applog.WithOperation(applog.WithComponent("export"), "pdf")
	start := time.Now()
	frame, err := p.frame(ctx, doc)
	if err != nil {
		l.ErrorContext(ctx, "export failed", slog.Any("err", err), slog.String("stage", string(StageOf(err))))
		return nil, err
	}
	res, err := p.compose(frame, name, doc.Header.Name)
	if err != nil {
		l.ErrorContext(ctx, "export failed", slog.Any("err", err), slog.String("stage", string(StageOf(err))))
		return nil, err
	}
	l.InfoContext(ctx, "export completed",
		slog.String("file", res.Filename),
		slog.Int("bytes", res.Len()),
		slog.Float64("page_h_mm", res.PageHeightMM),
		slog.Duration("took", time.Since(start)))
	return res, nil
}

// ExportPNG rasterizes doc and returns the encoded PNG alone.
func (p *Pipeline) ExportPNG(ctx context.Context, doc preview.Document, name string) (*Result, error) {
	frame, err := p.frame(ctx, doc)
	if err != nil {
		return nil, err
	}
	return &Result{Filename: PNGFilename(name), Width: frame.w, Height: frame.h, data: frame.png}, nil
}

// raster output encoded once and shared by the PDF and PNG writers
type frame struct {
	png  []byte
	w, h int
}

func (p *Pipeline) scale() float64 {
	if p.Scale > 0 {
		return p.Scale
	}
	return DefaultScale
}

func (p *Pipeline) pageWidth() float64 {
	if p.PageWidthMM > 0 {
		return p.PageWidthMM
	}
	return DefaultPageWidthMM
}

func (p *Pipeline) frame(ctx context.Context, doc preview.Document) (frame, error) {
	if p.Rasterizer == nil {
		return frame{}, stageErr(StageRasterize, ErrNoRasterizer)
	}
	scale := p.scale()
	create := func() ([]byte, error) {
		img, err := p.Rasterizer.Rasterize(ctx, doc, scale)
		if err != nil {
			return nil, stageErr(StageRasterize, err)
		}
		data, err := encodePNG(img)
		if err != nil {
			return nil, stageErr(StageEncode, err)
		}
		return data, nil
	}
	var (
		data []byte
		err  error
	)
	if p.Cache != nil {
		data, err = p.Cache.GetOrCreateRaster(ctx, doc.Hash(), scale, create)
	} else {
		data, err = create()
	}
	if err != nil {
		// cache failures surface as rasterize failures unless already staged
		return frame{}, stageErr(StageRasterize, err)
	}
	cfg, err := png.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return frame{}, stageErr(StageEncode, err)
	}
	if cfg.Width == 0 || cfg.Height == 0 {
		return frame{}, stageErr(StageRasterize, errors.New("empty raster"))
	}
	return frame{png: data, w: cfg.Width, h: cfg.Height}, nil
}

// encodePNG writes img as 8-bit PNG; the PDF writer rejects 16-bit depth.
func encodePNG(img image.Image) ([]byte, error) {
	if img == nil {
		return nil, errors.New("nil image")
	}
	switch img.(type) {
	case *image.RGBA, *image.NRGBA, *image.Gray, *image.Paletted:
	default:
		rgba := image.NewRGBA(img.Bounds())
		draw.Draw(rgba, rgba.Bounds(), img, img.Bounds().Min, draw.Src)
		img = rgba
	}
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := enc.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// PageSize returns the page and image heights in millimetres for a raster
// of w x h pixels. In scaled mode both are equal.
func (p *Pipeline) PageSize(w, h int) (pageW, pageH, imgH float64) {
	pageW = p.pageWidth()
	imgH = float64(h) * pageW / float64(w)
	pageH = imgH
	if PageMode(strings.ToLower(string(p.PageMode))) == PageA4 {
		pageH = A4HeightMM * pageW / DefaultPageWidthMM
	}
	return pageW, pageH, imgH
}

func (p *Pipeline) compose(f frame, name, title string) (*Result, error) {
	pageW, pageH, imgH := p.PageSize(f.w, f.h)
	size := gofpdf.SizeType{Wd: pageW, Ht: pageH}

	pdf := gofpdf.NewCustom(&gofpdf.InitType{
		UnitStr:        "mm",
		Size:           size,
		OrientationStr: "P",
	})
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetTitle(strings.TrimSpace(title+" Portfolio"), true)
	if p.Author != "" {
		pdf.SetAuthor(p.Author, true)
	}
	pdf.SetCreator("goportfolio", false)
	pdf.AddPageFormat("P", size)

	opt := gofpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader("portfolio", opt, bytes.NewReader(f.png))
	pdf.ImageOptions("portfolio", 0, 0, pageW, imgH, false, opt, 0, "")
	if err := pdf.Error(); err != nil {
		return nil, stageErr(StageCompose, err)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, stageErr(StageWrite, fmt.Errorf("write pdf: %w", err))
	}
	return &Result{
		Filename:     Filename(name),
		Width:        f.w,
		Height:       f.h,
		PageWidthMM:  pageW,
		PageHeightMM: pageH,
		data:         buf.Bytes(),
	}, nil
}
