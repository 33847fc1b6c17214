/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package textlayout

// Text measurement and line breaking for the native rasterizer. All
// measurement goes through Provider so tests can use a fixed bitmap face.

import (
	"strings"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// FontSpec describes a requested font. Sizes are CSS pixels at scale 1.
type FontSpec struct {
	Family string
	SizePx float32
	Weight int // 100..900
	Italic bool
}

// Metrics are in device pixels for the resolved face.
type Metrics struct {
	Ascent, Descent, LineGap float32
}

// Height is the distance between baselines with no extra leading.
func (m Metrics) Height() float32 { return m.Ascent + m.Descent + m.LineGap }

// Line is a single laid out line.
type Line struct {
	Text  string
	Width float32
}

// TextBox is the result of laying out text into a box width.
type TextBox struct {
	Lines   []Line
	Width   float32
	Height  float32
	Metrics Metrics
}

// Provider maps FontSpec to a concrete font.Face.
type Provider interface {
	Resolve(FontSpec) (font.Face, Metrics)
}

// BasicProvider uses basicfont.Face7x13 for deterministic tests.
type BasicProvider struct{}

func (BasicProvider) Resolve(FontSpec) (font.Face, Metrics) {
	f := basicfont.Face7x13
	return f, metricsOf(f)
}

func metricsOf(f font.Face) Metrics {
	m := f.Metrics()
	return Metrics{
		Ascent:  float32(m.Ascent.Round()),
		Descent: float32(m.Descent.Round()),
		LineGap: float32(m.Height.Round() - m.Ascent.Round() - m.Descent.Round()),
	}
}

// Measure returns the advance width of text including tracking between glyphs.
func Measure(p Provider, spec FontSpec, text string, tracking float32) float32 {
	if p == nil {
		p = BasicProvider{}
	}
	face, _ := p.Resolve(spec)
	return measure(face, text, tracking)
}

func measure(face font.Face, text string, tracking float32) float32 {
	if text == "" {
		return 0
	}
	w := fixedToPx(font.MeasureString(face, text))
	if n := len([]rune(text)); n > 1 {
		w += tracking * float32(n-1)
	}
	return w
}

func fixedToPx(v fixed.Int26_6) float32 { return float32(v) / 64 }

// Wrap breaks text on spaces into lines no wider than maxWidth. Explicit
// newlines always break. A single word wider than maxWidth gets its own line.
// lineHeight <= 0 uses the face metrics.
func Wrap(p Provider, spec FontSpec, text string, maxWidth, lineHeight float32) TextBox {
	if p == nil {
		p = BasicProvider{}
	}
	face, met := p.Resolve(spec)
	if lineHeight <= 0 {
		lineHeight = met.Height()
	}
	box := TextBox{Metrics: met}
	space := measure(face, " ", 0)
	for _, para := range strings.Split(text, "\n") {
		var cur strings.Builder
		var curW float32
		flush := func() {
			box.Lines = append(box.Lines, Line{Text: cur.String(), Width: curW})
			if curW > box.Width {
				box.Width = curW
			}
			cur.Reset()
			curW = 0
		}
		for _, word := range strings.Fields(para) {
			w := measure(face, word, 0)
			if cur.Len() > 0 && maxWidth > 0 && curW+space+w > maxWidth {
				flush()
			}
			if cur.Len() > 0 {
				cur.WriteByte(' ')
				curW += space
			}
			cur.WriteString(word)
			curW += w
		}
		flush()
	}
	box.Height = lineHeight * float32(len(box.Lines))
	return box
}
