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
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode"
)

// FileSuffix is appended to the profile name to form the PDF filename.
const FileSuffix = "_Portfolio.pdf"

// Filename returns "<name>_Portfolio.pdf". Path separators and control
// characters in name are replaced so the result is a single path element.
func Filename(name string) string {
	return sanitize(name) + FileSuffix
}

// PNGFilename returns "<name>_Portfolio.png".
func PNGFilename(name string) string {
	return sanitize(name) + strings.TrimSuffix(FileSuffix, ".pdf") + ".png"
}

func sanitize(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r == '/' || r == '\\' || r == ':':
			return '_'
		case unicode.IsControl(r):
			return '_'
		}
		return r
	}, name)
}

// Result holds an exported file in memory.
type Result struct {
	Filename string
	// Pixel size of the embedded raster.
	Width, Height int
	// Page size in millimetres; zero for PNG results.
	PageWidthMM, PageHeightMM float64

	data []byte
}

// Bytes returns the raw file contents.
func (r *Result) Bytes() []byte { return r.data }

// Len returns the file size in bytes.
func (r *Result) Len() int { return len(r.data) }

// Reader returns a reader over the file contents.
func (r *Result) Reader() *bytes.Reader { return bytes.NewReader(r.data) }

// WriteTo writes the file contents to w.
func (r *Result) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(r.data)
	return int64(n), err
}

// WriteToFile writes the file contents to path.
func (r *Result) WriteToFile(path string, perm os.FileMode) error {
	return os.WriteFile(path, r.data, perm)
}

// Save writes the result as dir/Filename, creating dir when needed,
// and returns the written path. The file appears atomically.
func (r *Result) Save(dir string) (string, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", stageErr(StageWrite, fmt.Errorf("ensure out dir: %w", err))
	}
	path := filepath.Join(dir, r.Filename)
	tmp, err := os.CreateTemp(dir, ".export-*")
	if err != nil {
		return "", stageErr(StageWrite, err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }
	if _, err := tmp.Write(r.data); err != nil {
		_ = tmp.Close()
		cleanup()
		return "", stageErr(StageWrite, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return "", stageErr(StageWrite, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		cleanup()
		return "", stageErr(StageWrite, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return "", stageErr(StageWrite, fmt.Errorf("write %s: %w", r.Filename, err))
	}
	return path, nil
}
