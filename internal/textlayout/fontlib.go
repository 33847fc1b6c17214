/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package textlayout

import (
	"fmt"
	"os"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/gobolditalic"
	"golang.org/x/image/font/gofont/goitalic"
	"golang.org/x/image/font/gofont/gomedium"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
)

// DefaultFamily is the family name under which the Go fonts are registered.
const DefaultFamily = "Go"

// FontLibrary stores parsed OpenType fonts by family, weight and style.
type FontLibrary struct {
	mu    sync.RWMutex
	fonts map[fontKey]*opentype.Font
}

type fontKey struct {
	family string
	weight int
	italic bool
}

func NewFontLibrary() *FontLibrary { return &FontLibrary{fonts: make(map[fontKey]*opentype.Font)} }

var (
	goFontsOnce sync.Once
	goFonts     *FontLibrary
	goFontsErr  error
)

// GoFonts returns a shared library holding the bundled Go font family.
func GoFonts() (*FontLibrary, error) {
	goFontsOnce.Do(func() {
		lib := NewFontLibrary()
		for _, f := range []struct {
			weight int
			italic bool
			data   []byte
		}{
			{400, false, goregular.TTF},
			{500, false, gomedium.TTF},
			{700, false, gobold.TTF},
			{400, true, goitalic.TTF},
			{700, true, gobolditalic.TTF},
		} {
			if err := lib.Add(DefaultFamily, f.weight, f.italic, f.data); err != nil {
				goFontsErr = err
				return
			}
		}
		goFonts = lib
	})
	return goFonts, goFontsErr
}

// Add parses font data and registers it.
func (fl *FontLibrary) Add(family string, weight int, italic bool, data []byte) error {
	f, err := opentype.Parse(data)
	if err != nil {
		return fmt.Errorf("parse font %s/%d: %w", family, weight, err)
	}
	fl.mu.Lock()
	defer fl.mu.Unlock()
	if fl.fonts == nil {
		fl.fonts = make(map[fontKey]*opentype.Font)
	}
	fl.fonts[fontKey{family: family, weight: weight, italic: italic}] = f
	return nil
}

// LoadTTF loads a font file into the library.
func (fl *FontLibrary) LoadTTF(family string, weight int, italic bool, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read font %s: %w", path, err)
	}
	return fl.Add(family, weight, italic, data)
}

// find returns the closest registered weight in the requested family and
// style, then in the other style. An empty family means DefaultFamily.
func (fl *FontLibrary) find(spec FontSpec) *opentype.Font {
	if fl == nil {
		return nil
	}
	fam := spec.Family
	if fam == "" {
		fam = DefaultFamily
	}
	fl.mu.RLock()
	defer fl.mu.RUnlock()
	for _, italic := range []bool{spec.Italic, !spec.Italic} {
		var best *opentype.Font
		bestDist := -1
		for k, f := range fl.fonts {
			if k.family != fam || k.italic != italic {
				continue
			}
			d := k.weight - spec.Weight
			if d < 0 {
				d = -d
			}
			if bestDist < 0 || d < bestDist {
				best, bestDist = f, d
			}
		}
		if best != nil {
			return best
		}
	}
	return nil
}

// OTProvider resolves FontSpec from a FontLibrary. Scale multiplies the
// requested pixel size; faces are cached per resolved size. Returned faces
// are not safe for concurrent use, so each render owns its provider.
type OTProvider struct {
	Lib      *FontLibrary
	Scale    float64
	Fallback Provider

	mu    sync.Mutex
	faces map[faceKey]cachedFace
}

type faceKey struct {
	font *opentype.Font
	size float64
}

type cachedFace struct {
	face font.Face
	met  Metrics
}

// NewOTProvider returns a provider over lib at the given scale.
func NewOTProvider(lib *FontLibrary, scale float64) *OTProvider {
	return &OTProvider{Lib: lib, Scale: scale}
}

func (p *OTProvider) Resolve(spec FontSpec) (font.Face, Metrics) {
	if spec.SizePx <= 0 {
		spec.SizePx = 16
	}
	if spec.Weight == 0 {
		spec.Weight = 400
	}
	scale := p.Scale
	if scale <= 0 {
		scale = 1
	}
	if f := p.Lib.find(spec); f != nil {
		key := faceKey{font: f, size: float64(spec.SizePx) * scale}
		p.mu.Lock()
		defer p.mu.Unlock()
		if c, ok := p.faces[key]; ok {
			return c.face, c.met
		}
		// 72 DPI makes Size equal to pixels
		face, err := opentype.NewFace(f, &opentype.FaceOptions{Size: key.size, DPI: 72, Hinting: font.HintingFull})
		if err == nil {
			if p.faces == nil {
				p.faces = make(map[faceKey]cachedFace)
			}
			c := cachedFace{face: face, met: metricsOf(face)}
			p.faces[key] = c
			return c.face, c.met
		}
	}
	fb := p.Fallback
	if fb == nil {
		fb = BasicProvider{}
	}
	return fb.Resolve(spec)
}
