/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package textlayout

import "image/color"

// TextStyle is a named text preset of the portfolio surface. Tracking and
// LineHeight are CSS pixels; LineHeight 0 uses the face metrics.
type TextStyle struct {
	Name       string
	Font       FontSpec
	Color      color.RGBA
	Tracking   float32
	LineHeight float32
	Upper      bool
}

// Palette of the portfolio surface.
var (
	Background = color.RGBA{0x0d, 0x1b, 0x2a, 0xff}
	Text       = color.RGBA{0xe0, 0xe1, 0xdd, 0xff}
	White      = color.RGBA{0xff, 0xff, 0xff, 0xff}
	Accent     = color.RGBA{0x00, 0xd4, 0xff, 0xff}
	Card       = color.RGBA{0x1b, 0x26, 0x3b, 0xff}
	Border     = color.RGBA{0x41, 0x5a, 0x77, 0xff}
	Muted      = color.RGBA{0x77, 0x8d, 0xa9, 0xff}
	// AccentWash is the accent at 10% alpha, premultiplied.
	AccentWash = color.RGBA{0x00, 0x15, 0x1a, 0x1a}
)

// Style names.
const (
	StyleName         = "Name"
	StyleRole         = "Role"
	StyleEmail        = "Email"
	StyleSectionTitle = "SectionTitle"
	StyleSkillTag     = "SkillTag"
	StyleCardTitle    = "CardTitle"
	StyleCardBody     = "CardBody"
	StyleTechTag      = "TechTag"
)

var builtinStyles = map[string]TextStyle{
	StyleName:         {Name: StyleName, Font: FontSpec{SizePx: 48, Weight: 700}, Color: White},
	StyleRole:         {Name: StyleRole, Font: FontSpec{SizePx: 22.4, Weight: 400}, Color: Accent},
	StyleEmail:        {Name: StyleEmail, Font: FontSpec{SizePx: 14.4, Weight: 400}, Color: Muted},
	StyleSectionTitle: {Name: StyleSectionTitle, Font: FontSpec{SizePx: 17.6, Weight: 700}, Color: Muted, Tracking: 2, Upper: true},
	StyleSkillTag:     {Name: StyleSkillTag, Font: FontSpec{SizePx: 13.6, Weight: 700}, Color: Accent},
	StyleCardTitle:    {Name: StyleCardTitle, Font: FontSpec{SizePx: 19.2, Weight: 700}, Color: White},
	StyleCardBody:     {Name: StyleCardBody, Font: FontSpec{SizePx: 13.6, Weight: 400}, Color: Muted, LineHeight: 13.6 * 1.5},
	StyleTechTag:      {Name: StyleTechTag, Font: FontSpec{SizePx: 11.2, Weight: 400}, Color: Accent},
}

// GetStyle returns a builtin style by name.
func GetStyle(name string) (TextStyle, bool) {
	s, ok := builtinStyles[name]
	return s, ok
}

// MustStyle returns a builtin style and panics for unknown names.
func MustStyle(name string) TextStyle {
	s, ok := builtinStyles[name]
	if !ok {
		panic("textlayout: unknown style " + name)
	}
	return s
}

// ListStyles lists the builtin style names in document order.
func ListStyles() []string {
	return []string{StyleName, StyleRole, StyleEmail, StyleSectionTitle, StyleSkillTag, StyleCardTitle, StyleCardBody, StyleTechTag}
}
