/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package export

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"goportfolio/internal/preview"
)

// Format is an output file type.
type Format string

const (
	FormatPDF Format = "pdf"
	FormatPNG Format = "png"
)

// ParseFormats normalizes a list such as "pdf,png". Empty input means pdf.
func ParseFormats(list []string) ([]Format, error) {
	var out []Format
	seen := map[Format]bool{}
	for _, item := range list {
		for _, s := range strings.Split(item, ",") {
			f := Format(strings.ToLower(strings.TrimSpace(s)))
			if f == "" {
				continue
			}
			if f != FormatPDF && f != FormatPNG {
				return nil, fmt.Errorf("unknown export format %q", s)
			}
			if !seen[f] {
				seen[f] = true
				out = append(out, f)
			}
		}
	}
	if len(out) == 0 {
		out = []Format{FormatPDF}
	}
	return out, nil
}

// ExportAll rasterizes doc once and writes every requested format
// concurrently. Results are returned in the order of formats.
func (p *Pipeline) ExportAll(ctx context.Context, doc preview.Document, name string, formats []Format) ([]*Result, error) {
	f, err := p.frame(ctx, doc)
	if err != nil {
		return nil, err
	}
	out := make([]*Result, len(formats))
	g, _ := errgroup.WithContext(ctx)
	for i, format := range formats {
		g.Go(func() error {
			switch format {
			case FormatPDF:
				res, err := p.compose(f, name, doc.Header.Name)
				if err != nil {
					return err
				}
				out[i] = res
			case FormatPNG:
				out[i] = &Result{Filename: PNGFilename(name), Width: f.w, Height: f.h, data: f.png}
			default:
				return stageErr(StageCompose, fmt.Errorf("unknown export format %q", format))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// SaveAll writes results into dir and returns their paths.
func SaveAll(results []*Result, dir string) ([]string, error) {
	paths := make([]string, 0, len(results))
	for _, r := range results {
		path, err := r.Save(dir)
		if err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}
