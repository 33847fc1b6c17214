/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package raster

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"math"
	"strings"
	"sync/atomic"
	"unicode/utf8"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/math/f64"
	"golang.org/x/image/math/fixed"
	"golang.org/x/image/vector"

	applog "goportfolio/internal/log"
	"goportfolio/internal/picture"
	"goportfolio/internal/preview"
	tl "goportfolio/internal/textlayout"
)

// Layout constants of the portfolio surface, CSS pixels.
const (
	surfacePadding   = 50
	surfaceRadius    = 16
	pictureSize      = 140
	pictureRadius    = 24
	pictureBorder    = 3
	pictureRotateDeg = -3
	pictureShadow    = 10
	headerGap        = 30
	headerPadBottom  = 30
	skillsMarginTop  = 40
	projectsMargin   = 50
	titleGapSkills   = 15
	titleGapProjects = 20
	skillGap         = 10
	gridGap          = 20
	cardPadding      = 25
	cardRadius       = 16
	techGap          = 8
	normalLineHeight = 1.2
)

// Native paints documents with the bundled Go fonts.
type Native struct {
	resolver  picture.Resolver
	fonts     *tl.FontLibrary
	width     int
	minHeight int
	log       *slog.Logger
	closed    atomic.Bool
}

// NativeOption configures a Native rasterizer.
type NativeOption func(*Native)

// WithResolver sets how picture references are loaded.
func WithResolver(r picture.Resolver) NativeOption { return func(n *Native) { n.resolver = r } }

// WithSurface overrides the surface width and minimum height.
func WithSurface(width, minHeight int) NativeOption {
	return func(n *Native) {
		if width > 0 {
			n.width = width
		}
		if minHeight > 0 {
			n.minHeight = minHeight
		}
	}
}

// WithFonts replaces the bundled Go fonts.
func WithFonts(lib *tl.FontLibrary) NativeOption { return func(n *Native) { n.fonts = lib } }

// NewNative returns a Native rasterizer.
func NewNative(opts ...NativeOption) (*Native, error) {
	n := &Native{width: SurfaceWidth, minHeight: SurfaceMinHeight, log: applog.WithComponent("raster")}
	for _, o := range opts {
		o(n)
	}
	if n.fonts == nil {
		lib, err := tl.GoFonts()
		if err != nil {
			return nil, fmt.Errorf("load fonts: %w", err)
		}
		n.fonts = lib
	}
	return n, nil
}

// Rasterize paints doc at scale. The height follows the content and is at
// least the minimum surface height. A picture that cannot be loaded is
// replaced by the name's initials.
func (n *Native) Rasterize(ctx context.Context, doc preview.Document, scale float64) (image.Image, error) {
	if n.closed.Load() {
		return nil, ErrClosed
	}
	if scale <= 0 {
		scale = 1
	}
	pic, err := n.resolver.Decode(ctx, doc.Header.Picture)
	if err != nil {
		n.log.WarnContext(ctx, "picture unavailable, drawing placeholder", slog.String("err", err.Error()))
		pic = nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p := &painter{s: scale, prov: tl.NewOTProvider(n.fonts, scale), width: float64(n.width)}
	h := math.Max(float64(n.minHeight), p.document(doc, pic))

	w, hh := int(math.Ceil(float64(n.width)*scale)), int(math.Ceil(h*scale))
	p.img = image.NewRGBA(image.Rect(0, 0, w, hh))
	p.fillRoundRect(0, 0, float64(n.width), h, surfaceRadius, tl.Background)
	p.document(doc, pic)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return p.img, nil
}

// Close marks the rasterizer unusable. It is idempotent.
func (n *Native) Close() error {
	n.closed.Store(true)
	return nil
}

// painter draws in CSS pixels onto img at scale s. With img nil it only
// measures, which lets one function compute layout and paint.
type painter struct {
	img   *image.RGBA
	s     float64
	prov  *tl.OTProvider
	width float64
}

// measure runs fn without drawing.
func (p *painter) measure(fn func()) {
	img := p.img
	p.img = nil
	fn()
	p.img = img
}

// document lays out the whole surface and returns its height.
func (p *painter) document(doc preview.Document, pic image.Image) float64 {
	left := float64(surfacePadding)
	right := p.width - surfacePadding
	y := p.header(doc.Header, pic, left, right, surfacePadding)

	y += skillsMarginTop
	y += p.sectionTitle(doc.SkillsTitle, left, y) + titleGapSkills
	st := tl.MustStyle(tl.StyleSkillTag)
	y += p.flow(left, right, y, skillGap, len(doc.Skills), func(i int, x, y float64) (float64, float64) {
		return p.pill(st, doc.Skills[i].Text, x, y, 16, 8, 8, 1, tl.Card, tl.Border)
	})

	y += projectsMargin
	y += p.sectionTitle(doc.ProjectsTitle, left, y) + titleGapProjects
	colW := (right - left - gridGap) / 2
	for i := 0; i < len(doc.Projects); i += 2 {
		row := doc.Projects[i:min(i+2, len(doc.Projects))]
		var rowH float64
		p.measure(func() {
			for _, c := range row {
				rowH = math.Max(rowH, p.card(c, 0, 0, colW, 0))
			}
		})
		for j, c := range row {
			p.card(c, left+float64(j)*(colW+gridGap), y, colW, rowH)
		}
		y += rowH
		if i+2 < len(doc.Projects) {
			y += gridGap
		}
	}
	return y + surfacePadding
}

func (p *painter) header(h preview.Header, pic image.Image, left, right, top float64) float64 {
	textX := left + pictureSize + headerGap
	textW := right - textX

	var textH float64
	p.measure(func() { textH = p.headerText(h, textX, 0, textW) })
	height := math.Max(pictureSize, textH)

	p.picture(pic, h.Name, left, top+(height-pictureSize)/2)
	p.headerText(h, textX, top+(height-textH)/2, textW)

	y := top + height + headerPadBottom
	p.fillRect(left, y, right, y+1, tl.Card)
	return y + 1
}

func (p *painter) headerText(h preview.Header, x, y, w float64) float64 {
	start := y
	y += p.text(tl.MustStyle(tl.StyleName), h.Name, x, y, w)
	y += 5
	y += p.text(tl.MustStyle(tl.StyleRole), h.Role, x, y, w)
	y += 5 + 10
	es := tl.MustStyle(tl.StyleEmail)
	lineH := float64(es.Font.SizePx) * normalLineHeight
	p.icon(mailIcon, x, y+(lineH-14)/2, 14, es.Color)
	y += math.Max(14, p.text(es, h.Email, x+14+5, y, w-19))
	return y - start
}

func (p *painter) sectionTitle(s string, x, y float64) float64 {
	return p.text(tl.MustStyle(tl.StyleSectionTitle), s, x, y, 0)
}

// flow places n items left to right, wrapping at right. place returns the
// item size. The total height is returned.
func (p *painter) flow(left, right, top, gap float64, n int, place func(i int, x, y float64) (float64, float64)) float64 {
	x, y, rowH := left, top, 0.0
	for i := 0; i < n; i++ {
		var w float64
		p.measure(func() { w, _ = place(i, 0, 0) })
		if x > left && x+w > right {
			x = left
			y += rowH + gap
			rowH = 0
		}
		_, h := place(i, x, y)
		rowH = math.Max(rowH, h)
		x += w + gap
	}
	return y + rowH - top
}

// card draws one project card; height 0 means content height.
func (p *painter) card(c preview.Card, x, y, w, height float64) float64 {
	inner := w - 2*(cardPadding+1)
	if p.img != nil {
		p.fillRoundRect(x, y, w, height, cardRadius, tl.Border)
		p.fillRoundRect(x+1, y+1, w-2, height-2, cardRadius-1, tl.Card)
	}
	cx, cy := x+cardPadding+1, y+cardPadding+1
	p.icon(folderIcon, cx, cy, 24, tl.Accent)
	p.icon(externalIcon, cx+inner-16, cy+4, 16, tl.Border)
	cy += 24 + 15
	cy += p.text(tl.MustStyle(tl.StyleCardTitle), c.Title, cx, cy, inner) + 8
	cy += p.text(tl.MustStyle(tl.StyleCardBody), c.Body, cx, cy, inner) + 15
	ts := tl.MustStyle(tl.StyleTechTag)
	cy += p.flow(cx, cx+inner, cy, techGap, len(c.Tags), func(i int, tx, ty float64) (float64, float64) {
		return p.pill(ts, c.Tags[i].Text, tx, ty, 8, 2, 4, 0, tl.AccentWash, nil)
	})
	return cy + cardPadding + 1 - y
}

// pill draws a tag with padding, optional border and radius; returns its size.
func (p *painter) pill(st tl.TextStyle, text string, x, y, padX, padY, radius, border float64, fill color.Color, stroke color.Color) (float64, float64) {
	tw := float64(tl.Measure(p.prov, st.Font, text, st.Tracking*float32(p.s))) / p.s
	th := float64(st.Font.SizePx) * normalLineHeight
	w, h := tw+2*(padX+border), th+2*(padY+border)
	if p.img != nil {
		if stroke != nil && border > 0 {
			p.fillRoundRect(x, y, w, h, radius, stroke)
			p.fillRoundRect(x+border, y+border, w-2*border, h-2*border, radius-border, fill)
		} else {
			p.fillRoundRect(x, y, w, h, radius, fill)
		}
		p.text(st, text, x+padX+border, y+padY+border, 0)
	}
	return w, h
}

// text draws wrapped text with its top-left at (x, y) and returns the height.
func (p *painter) text(st tl.TextStyle, s string, x, y, maxW float64) float64 {
	if st.Upper {
		s = strings.ToUpper(s)
	}
	lineH := float64(st.LineHeight)
	if lineH <= 0 {
		lineH = float64(st.Font.SizePx) * normalLineHeight
	}
	box := tl.Wrap(p.prov, st.Font, s, float32(maxW*p.s), float32(lineH*p.s))
	if p.img == nil {
		return lineH * float64(len(box.Lines))
	}
	face, met := p.prov.Resolve(st.Font)
	src := image.NewUniform(st.Color)
	for i, l := range box.Lines {
		top := (y + float64(i)*lineH) * p.s
		baseline := top + (lineH*p.s-float64(met.Ascent+met.Descent))/2 + float64(met.Ascent)
		p.drawString(face, src, l.Text, x*p.s, baseline, float64(st.Tracking)*p.s)
	}
	return lineH * float64(len(box.Lines))
}

func (p *painter) drawString(face font.Face, src image.Image, s string, x, baseline, tracking float64) {
	d := &font.Drawer{Dst: p.img, Src: src, Face: face, Dot: fixed.Point26_6{X: toFixed(x), Y: toFixed(baseline)}}
	if tracking == 0 {
		d.DrawString(s)
		return
	}
	prev := rune(-1)
	for len(s) > 0 {
		r, size := utf8.DecodeRuneInString(s)
		s = s[size:]
		if prev >= 0 {
			d.Dot.X += face.Kern(prev, r) + toFixed(tracking)
		}
		d.DrawString(string(r))
		prev = r
	}
}

func toFixed(v float64) fixed.Int26_6 { return fixed.Int26_6(math.Round(v * 64)) }

// picture draws the tilted, bordered profile picture with its offset shadow.
func (p *painter) picture(pic image.Image, name string, x, y float64) {
	if p.img == nil {
		return
	}
	s := p.s
	size := int(math.Ceil(pictureSize * s))
	shadow := int(math.Ceil(pictureShadow * s))
	tile := image.NewRGBA(image.Rect(0, 0, size+shadow, size+shadow))

	full := float64(size)
	shadowMask := roundRectMask(tile.Bounds(), float64(shadow), float64(shadow), full+float64(shadow), full+float64(shadow), pictureRadius*s)
	draw.DrawMask(tile, tile.Bounds(), image.NewUniform(tl.Card), image.Point{}, shadowMask, image.Point{}, draw.Over)
	outer := roundRectMask(tile.Bounds(), 0, 0, full, full, pictureRadius*s)
	draw.DrawMask(tile, tile.Bounds(), image.NewUniform(tl.Accent), image.Point{}, outer, image.Point{}, draw.Over)

	b := pictureBorder * s
	innerRect := image.Rect(int(math.Round(b)), int(math.Round(b)), int(math.Round(full-b)), int(math.Round(full-b)))
	content := image.NewRGBA(tile.Bounds())
	if pic != nil {
		coverFit(content, innerRect, pic)
	} else {
		draw.Draw(content, innerRect, image.NewUniform(tl.Card), image.Point{}, draw.Src)
		sub := &painter{img: content, s: s, prov: p.prov}
		st := tl.MustStyle(tl.StyleName)
		st.Color = tl.Accent
		ini := initials(name)
		tw := float64(tl.Measure(p.prov, st.Font, ini, 0)) / s
		lineH := float64(st.Font.SizePx) * normalLineHeight
		sub.text(st, ini, (pictureSize-tw)/2, (pictureSize-lineH)/2, 0)
	}
	inner := roundRectMask(tile.Bounds(), b, b, full-b, full-b, (pictureRadius-pictureBorder)*s)
	draw.DrawMask(tile, tile.Bounds(), content, image.Point{}, inner, image.Point{}, draw.Over)

	// rotate about the element centre, which sits at (size/2, size/2) in the tile
	theta := pictureRotateDeg * math.Pi / 180
	sin, cos := math.Sincos(theta)
	ox, oy := full/2, full/2
	dx, dy := (x+pictureSize/2)*s, (y+pictureSize/2)*s
	m := f64.Aff3{
		cos, -sin, dx - cos*ox + sin*oy,
		sin, cos, dy - sin*ox - cos*oy,
	}
	draw.CatmullRom.Transform(p.img, m, tile, tile.Bounds(), draw.Over, nil)
}

// coverFit scales src to fill r, cropping the overflow around the centre.
func coverFit(dst *image.RGBA, r image.Rectangle, src image.Image) {
	sb := src.Bounds()
	if sb.Empty() || r.Empty() {
		return
	}
	k := math.Max(float64(r.Dx())/float64(sb.Dx()), float64(r.Dy())/float64(sb.Dy()))
	sw, sh := float64(r.Dx())/k, float64(r.Dy())/k
	sx := float64(sb.Min.X) + (float64(sb.Dx())-sw)/2
	sy := float64(sb.Min.Y) + (float64(sb.Dy())-sh)/2
	sr := image.Rect(int(math.Round(sx)), int(math.Round(sy)), int(math.Round(sx+sw)), int(math.Round(sy+sh)))
	draw.CatmullRom.Scale(dst, r, src, sr, draw.Src, nil)
}

func initials(name string) string {
	var b strings.Builder
	for _, f := range strings.Fields(name) {
		r, _ := utf8.DecodeRuneInString(f)
		b.WriteString(strings.ToUpper(string(r)))
		if b.Len() >= 2 {
			break
		}
	}
	if b.Len() == 0 {
		return "?"
	}
	return b.String()
}

func (p *painter) fillRect(x0, y0, x1, y1 float64, c color.Color) {
	if p.img == nil {
		return
	}
	r := image.Rect(int(math.Round(x0*p.s)), int(math.Round(y0*p.s)), int(math.Round(x1*p.s)), int(math.Max(math.Round(y1*p.s), math.Round(y0*p.s)+1)))
	draw.Draw(p.img, r, image.NewUniform(c), image.Point{}, draw.Over)
}

func (p *painter) fillRoundRect(x, y, w, h, radius float64, c color.Color) {
	if p.img == nil || w <= 0 || h <= 0 {
		return
	}
	s := p.s
	x0, y0, x1, y1 := x*s, y*s, (x+w)*s, (y+h)*s
	p.fillPath(x0, y0, x1, y1, c, func(z *vector.Rasterizer, ox, oy float64) {
		roundRect(z, x0-ox, y0-oy, x1-ox, y1-oy, radius*s)
	})
}

// fillPath rasterizes a path built in a box-local coordinate system.
func (p *painter) fillPath(x0, y0, x1, y1 float64, c color.Color, path func(z *vector.Rasterizer, ox, oy float64)) {
	box := image.Rect(int(math.Floor(x0)), int(math.Floor(y0)), int(math.Ceil(x1)), int(math.Ceil(y1))).Intersect(p.img.Bounds())
	if box.Empty() {
		return
	}
	z := vector.NewRasterizer(box.Dx(), box.Dy())
	path(z, float64(box.Min.X), float64(box.Min.Y))
	z.Draw(p.img, box, image.NewUniform(c), image.Point{})
}

func roundRect(z *vector.Rasterizer, x0, y0, x1, y1, r float64) {
	r = math.Max(0, math.Min(r, math.Min(x1-x0, y1-y0)/2))
	k := r * 0.5523
	f := func(v float64) float32 { return float32(v) }
	z.MoveTo(f(x0+r), f(y0))
	z.LineTo(f(x1-r), f(y0))
	z.CubeTo(f(x1-r+k), f(y0), f(x1), f(y0+r-k), f(x1), f(y0+r))
	z.LineTo(f(x1), f(y1-r))
	z.CubeTo(f(x1), f(y1-r+k), f(x1-r+k), f(y1), f(x1-r), f(y1))
	z.LineTo(f(x0+r), f(y1))
	z.CubeTo(f(x0+r-k), f(y1), f(x0), f(y1-r+k), f(x0), f(y1-r))
	z.LineTo(f(x0), f(y0+r))
	z.CubeTo(f(x0), f(y0+r-k), f(x0+r-k), f(y0), f(x0+r), f(y0))
	z.ClosePath()
}

func roundRectMask(bounds image.Rectangle, x0, y0, x1, y1, r float64) *image.Alpha {
	z := vector.NewRasterizer(bounds.Dx(), bounds.Dy())
	roundRect(z, x0, y0, x1, y1, r)
	mask := image.NewAlpha(bounds)
	z.Draw(mask, bounds, image.Opaque, image.Point{})
	return mask
}

type pt struct{ X, Y float64 }

// polyline is a stroked outline in a 24x24 icon grid.
type polyline struct {
	pts    []pt
	closed bool
}

var (
	folderIcon = []polyline{{closed: true, pts: []pt{
		{2, 5}, {2, 18}, {4, 20}, {20, 20}, {22, 18}, {22, 8}, {20, 6},
		{12.1, 6}, {10.4, 5.1}, {9.6, 3.9}, {7.9, 3}, {4, 3},
	}}}
	externalIcon = []polyline{
		{pts: []pt{{15, 3}, {21, 3}, {21, 9}}},
		{pts: []pt{{10, 14}, {21, 3}}},
		{pts: []pt{{18, 13}, {18, 19}, {16, 21}, {5, 21}, {3, 19}, {3, 8}, {5, 6}, {11, 6}}},
	}
	mailIcon = []polyline{
		{closed: true, pts: []pt{{2, 6}, {4, 4}, {20, 4}, {22, 6}, {22, 18}, {20, 20}, {4, 20}, {2, 18}}},
		{pts: []pt{{22, 7}, {12, 13}, {2, 7}}},
	}
)

// icon strokes lines scaled from the 24 unit grid to size CSS pixels.
func (p *painter) icon(lines []polyline, x, y, size float64, c color.Color) {
	if p.img == nil {
		return
	}
	k := size / 24 * p.s
	hw := k // stroke width 2 units
	x0, y0 := x*p.s-hw, y*p.s-hw
	x1, y1 := x0+size*p.s+2*hw, y0+size*p.s+2*hw
	p.fillPath(x0, y0, x1, y1, c, func(z *vector.Rasterizer, ox, oy float64) {
		for _, l := range lines {
			pts := l.pts
			if l.closed {
				pts = append(append([]pt(nil), pts...), pts[0])
			}
			for i := 0; i+1 < len(pts); i++ {
				a := pt{x*p.s + pts[i].X*k - ox, y*p.s + pts[i].Y*k - oy}
				b := pt{x*p.s + pts[i+1].X*k - ox, y*p.s + pts[i+1].Y*k - oy}
				segment(z, a, b, hw)
			}
		}
	})
}

// segment adds a square-capped quad of half width hw. All quads share one
// winding so overlaps never cancel.
func segment(z *vector.Rasterizer, a, b pt, hw float64) {
	dx, dy := b.X-a.X, b.Y-a.Y
	l := math.Hypot(dx, dy)
	if l == 0 {
		return
	}
	ux, uy := dx/l*hw, dy/l*hw
	nx, ny := -uy, ux
	a = pt{a.X - ux, a.Y - uy}
	b = pt{b.X + ux, b.Y + uy}
	f := func(v float64) float32 { return float32(v) }
	z.MoveTo(f(a.X+nx), f(a.Y+ny))
	z.LineTo(f(b.X+nx), f(b.Y+ny))
	z.LineTo(f(b.X-nx), f(b.Y-ny))
	z.LineTo(f(a.X-nx), f(a.Y-ny))
	z.ClosePath()
}
