/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package htmlview renders a preview Document as HTML with the portfolio
// styling. The standalone page is what the Chrome rasterizer screenshots;
// the fragment is embedded by the web editor.
package htmlview

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/flosch/pongo2/v6"

	applog "goportfolio/internal/log"
	"goportfolio/internal/picture"
	"goportfolio/internal/preview"
)

// SurfaceID is the element id of the rendered surface.
const SurfaceID = "portfolio"

// Options control HTML rendering.
type Options struct {
	// InlineAssets replaces path and URL pictures with data URIs so the page
	// has no external references.
	InlineAssets bool
	Resolver     picture.Resolver
	// Width and MinHeight of the surface in CSS pixels.
	Width     int
	MinHeight int
}

// Renderer is safe for concurrent use.
type Renderer struct {
	opts Options
	log  *slog.Logger
}

func New(opts Options) *Renderer {
	if opts.Width <= 0 {
		opts.Width = 794
	}
	if opts.MinHeight <= 0 {
		opts.MinHeight = 842
	}
	return &Renderer{opts: opts, log: applog.WithComponent("htmlview")}
}

var (
	fragmentTpl = pongo2.Must(pongo2.FromString(fragmentSource))
	pageTpl     = pongo2.Must(pongo2.FromString(pageSource))
)

// Fragment renders the surface element only.
func (r *Renderer) Fragment(ctx context.Context, doc preview.Document) (string, error) {
	out, err := fragmentTpl.Execute(r.context(ctx, doc))
	if err != nil {
		return "", fmt.Errorf("render fragment: %w", err)
	}
	return out, nil
}

// Page renders a standalone HTML document holding the surface.
func (r *Renderer) Page(ctx context.Context, doc preview.Document) (string, error) {
	frag, err := r.Fragment(ctx, doc)
	if err != nil {
		return "", err
	}
	out, err := pageTpl.Execute(pongo2.Context{
		"title":    doc.Header.Name,
		"css":      Stylesheet,
		"fragment": frag,
	})
	if err != nil {
		return "", fmt.Errorf("render page: %w", err)
	}
	return out, nil
}

func (r *Renderer) context(ctx context.Context, doc preview.Document) pongo2.Context {
	pic := doc.Header.Picture
	if r.opts.InlineAssets && pic != "" && !picture.IsDataURI(pic) {
		if uri, err := r.opts.Resolver.Inline(ctx, pic); err == nil {
			pic = uri
		} else {
			r.log.WarnContext(ctx, "picture not inlined", slog.String("ref", pic), slog.String("err", err.Error()))
		}
	}
	return pongo2.Context{
		"id":        SurfaceID,
		"doc":       doc,
		"picture":   pic,
		"width":     r.opts.Width,
		"minHeight": r.opts.MinHeight,
	}
}

const fragmentSource = `<div id="{{ id }}" class="pf-surface" style="width: {{ width }}px; min-height: {{ minHeight }}px">
  <header class="pf-header">
    <div class="pf-picture"><img src="{{ picture }}" alt="profile" crossorigin="anonymous"></div>
    <div>
      <h1 class="pf-name">{{ doc.Header.Name }}</h1>
      <h2 class="pf-role">{{ doc.Header.Role }}</h2>
      <div class="pf-contact"><span class="pf-email">` + mailSVG + ` {{ doc.Header.Email }}</span></div>
    </div>
  </header>
  <section class="pf-skills">
    <h3 class="pf-section-title pf-skills-title">{{ doc.SkillsTitle }}</h3>
    <div class="pf-tags">{% for t in doc.Skills %}<span class="pf-skill">{{ t.Text }}</span>{% endfor %}</div>
  </section>
  <section class="pf-projects">
    <h3 class="pf-section-title pf-projects-title">{{ doc.ProjectsTitle }}</h3>
    <div class="pf-grid">{% for c in doc.Projects %}
      <div class="pf-card" data-id="{{ c.ID }}">
        <div class="pf-card-icons">` + folderSVG + externalSVG + `</div>
        <h4 class="pf-card-title{% if c.Placeholder %} pf-placeholder{% endif %}">{{ c.Title }}</h4>
        <p class="pf-card-body">{{ c.Body }}</p>
        <div class="pf-tech">{% for t in c.Tags %}<span class="pf-tech-tag">{{ t.Text }}</span>{% endfor %}</div>
      </div>{% endfor %}
    </div>
  </section>
</div>`

const pageSource = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{ title }} Portfolio</title>
<style>{{ css|safe }}
html, body { margin: 0; padding: 0; background: transparent; }
</style>
</head>
<body>
{{ fragment|safe }}
</body>
</html>`

// Stylesheet styles the surface. It is shared with the web editor page.
const Stylesheet = `
.pf-surface { box-sizing: border-box; background-color: #0d1b2a; color: #e0e1dd; padding: 50px; border-radius: 16px; font-family: Inter, system-ui, sans-serif; }
.pf-header { display: flex; align-items: center; gap: 30px; border-bottom: 1px solid #1b263b; padding-bottom: 30px; }
.pf-picture { flex: none; width: 140px; height: 140px; border-radius: 24px; overflow: hidden; border: 3px solid #00d4ff; transform: rotate(-3deg); box-shadow: 10px 10px 0px #1b263b; }
.pf-picture img { width: 100%; height: 100%; object-fit: cover; }
.pf-name { margin: 0; font-size: 3rem; color: #fff; }
.pf-role { font-weight: 400; color: #00d4ff; margin: 5px 0; font-size: 1.4rem; }
.pf-contact { display: flex; align-items: center; gap: 15px; margin-top: 10px; color: #778da9; }
.pf-email { font-size: 0.9rem; display: flex; align-items: center; gap: 5px; }
.pf-skills { margin-top: 40px; }
.pf-projects { margin-top: 50px; }
.pf-section-title { font-size: 1.1rem; letter-spacing: 2px; color: #778da9; text-transform: uppercase; margin-top: 0; }
.pf-skills-title { margin-bottom: 15px; }
.pf-projects-title { margin-bottom: 20px; }
.pf-tags { display: flex; gap: 10px; flex-wrap: wrap; }
.pf-skill { background: #1b263b; color: #00d4ff; padding: 8px 16px; border-radius: 8px; font-size: 0.85rem; font-weight: bold; border: 1px solid #415a77; min-height: 1em; }
.pf-grid { display: grid; grid-template-columns: repeat(2, 1fr); gap: 20px; }
.pf-card { background: #1b263b; padding: 25px; border-radius: 16px; border: 1px solid #415a77; }
.pf-card-icons { display: flex; justify-content: space-between; }
.pf-card-title { margin: 15px 0 8px 0; font-size: 1.2rem; color: #fff; }
.pf-card-body { font-size: 0.85rem; color: #778da9; line-height: 1.5; margin: 0 0 15px 0; }
.pf-tech { display: flex; gap: 8px; flex-wrap: wrap; }
.pf-tech-tag { font-size: 0.7rem; color: #00d4ff; background: rgba(0, 212, 255, 0.1); padding: 2px 8px; border-radius: 4px; }
`

const (
	svgOpen     = `<svg xmlns="http://www.w3.org/2000/svg" fill="none" stroke-width="2" stroke-linecap="round" stroke-linejoin="round" viewBox="0 0 24 24" `
	mailSVG     = svgOpen + `width="14" height="14" stroke="currentColor"><rect x="2" y="4" width="20" height="16" rx="2"/><path d="m22 7-8.97 5.7a1.94 1.94 0 0 1-2.06 0L2 7"/></svg>`
	folderSVG   = svgOpen + `width="24" height="24" stroke="#00d4ff"><path d="M20 20a2 2 0 0 0 2-2V8a2 2 0 0 0-2-2h-7.9a2 2 0 0 1-1.69-.9L9.6 3.9A2 2 0 0 0 7.93 3H4a2 2 0 0 0-2 2v13a2 2 0 0 0 2 2Z"/></svg>`
	externalSVG = svgOpen + `width="16" height="16" stroke="#415a77"><path d="M15 3h6v6"/><path d="M10 14 21 3"/><path d="M18 13v6a2 2 0 0 1-2 2H5a2 2 0 0 1-2-2V8a2 2 0 0 1 2-2h6"/></svg>`
)
