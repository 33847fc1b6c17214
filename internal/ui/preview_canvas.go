//go:build fyne

/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package ui

import (
	"image"
	"image/color"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/widget"
)

// Preview surface size in CSS pixels before the first raster arrives.
const (
	surfaceWidth  = 794
	surfaceHeight = 842
)

const (
	minZoom     = 0.25
	maxZoom     = 3
	defaultZoom = 0.75
)

// PreviewCanvas shows the rasterized portfolio. Scrolling zooms.
type PreviewCanvas struct {
	widget.BaseWidget

	img  image.Image
	zoom float32
	// pixel density of img relative to CSS pixels
	scale float32
}

// NewPreviewCanvas returns an empty canvas at the default zoom.
func NewPreviewCanvas() *PreviewCanvas {
	p := &PreviewCanvas{zoom: defaultZoom, scale: 1}
	p.ExtendBaseWidget(p)
	return p
}

// SetImage replaces the displayed raster; scale is its pixel density.
// Call from the UI goroutine.
func (p *PreviewCanvas) SetImage(img image.Image, scale float32) {
	if scale <= 0 {
		scale = 1
	}
	p.img, p.scale = img, scale
	p.Refresh()
}

// Zoom returns the display zoom.
func (p *PreviewCanvas) Zoom() float32 { return p.zoom }

// SetZoom clamps z to [0.25, 3] and redraws.
func (p *PreviewCanvas) SetZoom(z float32) {
	p.zoom = clampZoom(z)
	p.Refresh()
}

func clampZoom(z float32) float32 {
	switch {
	case z < minZoom:
		return minZoom
	case z > maxZoom:
		return maxZoom
	}
	return z
}

// Scrolled zooms in or out by 10% per step.
func (p *PreviewCanvas) Scrolled(e *fyne.ScrollEvent) {
	switch {
	case e.Scrolled.DY > 0:
		p.SetZoom(p.zoom * 1.1)
	case e.Scrolled.DY < 0:
		p.SetZoom(p.zoom / 1.1)
	}
}

// contentSize is the displayed size of the surface.
func (p *PreviewCanvas) contentSize() fyne.Size {
	w, h := float32(surfaceWidth), float32(surfaceHeight)
	if p.img != nil {
		b := p.img.Bounds()
		w, h = float32(b.Dx())/p.scale, float32(b.Dy())/p.scale
	}
	return fyne.NewSize(w*p.zoom, h*p.zoom)
}

func (p *PreviewCanvas) CreateRenderer() fyne.WidgetRenderer {
	bg := canvas.NewRectangle(color.NRGBA{R: 0xf0, G: 0xf2, B: 0xf5, A: 0xff})
	placeholder := canvas.NewText("Rendering…", color.NRGBA{R: 0x77, G: 0x8d, B: 0xa9, A: 0xff})
	placeholder.Alignment = fyne.TextAlignCenter
	raster := canvas.NewImageFromImage(nil)
	raster.FillMode = canvas.ImageFillStretch
	raster.ScaleMode = canvas.ImageScaleSmooth
	r := &previewRenderer{pc: p, bg: bg, raster: raster, placeholder: placeholder}
	r.objects = []fyne.CanvasObject{bg, raster, placeholder}
	return r
}

type previewRenderer struct {
	pc          *PreviewCanvas
	bg          *canvas.Rectangle
	raster      *canvas.Image
	placeholder *canvas.Text
	objects     []fyne.CanvasObject
}

func (r *previewRenderer) Destroy()                     {}
func (r *previewRenderer) Objects() []fyne.CanvasObject { return r.objects }
func (r *previewRenderer) MinSize() fyne.Size           { return r.pc.contentSize() }

func (r *previewRenderer) Refresh() {
	r.raster.Image = r.pc.img
	r.placeholder.Hidden = r.pc.img != nil
	r.Layout(r.pc.Size())
	r.raster.Refresh()
	canvas.Refresh(r.pc)
}

// Layout centres the surface horizontally and pins it to the top.
func (r *previewRenderer) Layout(size fyne.Size) {
	r.bg.Resize(size)
	r.bg.Move(fyne.NewPos(0, 0))

	cs := r.pc.contentSize()
	x := (size.Width - cs.Width) / 2
	if x < 0 {
		x = 0
	}
	r.raster.Resize(cs)
	r.raster.Move(fyne.NewPos(x, 0))

	r.placeholder.Resize(fyne.NewSize(cs.Width, r.placeholder.MinSize().Height))
	r.placeholder.Move(fyne.NewPos(x, cs.Height/2))
}
