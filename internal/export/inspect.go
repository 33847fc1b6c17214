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
	"errors"
	"fmt"

	"github.com/ledongthuc/pdf"
)

const mmPerPoint = 25.4 / 72

// Info describes an exported PDF.
type Info struct {
	Pages    int
	WidthMM  float64
	HeightMM float64
	// Images counts the image XObjects on the first page.
	Images int
	Title  string
}

// Inspect parses a PDF and reports its page count, first page size and title.
func Inspect(data []byte) (Info, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return Info{}, fmt.Errorf("read pdf: %w", err)
	}
	info := Info{Pages: r.NumPage()}
	if info.Pages == 0 {
		return info, errors.New("read pdf: no pages")
	}
	if t := r.Trailer().Key("Info").Key("Title"); t.Kind() == pdf.String {
		info.Title = t.Text()
	}
	page := r.Page(1)
	box := mediaBox(page.V)
	if box.Len() == 4 {
		info.WidthMM = (box.Index(2).Float64() - box.Index(0).Float64()) * mmPerPoint
		info.HeightMM = (box.Index(3).Float64() - box.Index(1).Float64()) * mmPerPoint
	}
	xobj := page.Resources().Key("XObject")
	for _, k := range xobj.Keys() {
		if xobj.Key(k).Key("Subtype").Name() == "Image" {
			info.Images++
		}
	}
	return info, nil
}

// mediaBox walks up the page tree because MediaBox is inheritable.
func mediaBox(v pdf.Value) pdf.Value {
	for i := 0; i < 32 && v.Kind() == pdf.Dict; i++ {
		if box := v.Key("MediaBox"); box.Kind() == pdf.Array {
			return box
		}
		v = v.Key("Parent")
	}
	return pdf.Value{}
}
