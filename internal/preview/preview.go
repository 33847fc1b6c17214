/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package preview maps a Profile to the visual document shown next to the
// form and used for export. Render is pure; Live caches one document per
// store version.
package preview

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"goportfolio/internal/domain"
)

const (
	// PlaceholderTitle replaces an empty project title.
	PlaceholderTitle = "Untitled Project"
	// Boilerplate is the card body shown when no description is rendered.
	Boilerplate = "Built using cutting edge technologies to solve real world problems."

	SkillsTitle   = "Core Expertise"
	ProjectsTitle = "Selected Projects"
)

// Options select optional rendering behaviour. The zero value renders skills
// and technologies literally, empty pieces included, and always shows the
// boilerplate body.
type Options struct {
	DropEmptyTags bool
	// RenderDescription shows a non-empty project description instead of the boilerplate.
	RenderDescription bool
}

// Header is the top block of the document.
type Header struct {
	Name    string `json:"name"`
	Role    string `json:"role"`
	Email   string `json:"email"`
	Picture string `json:"picture"`
}

// Tag is one pill in the skills list or on a card.
type Tag struct {
	Text string `json:"text"`
}

// Card is one project in the two-column grid.
type Card struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Placeholder bool   `json:"placeholder,omitempty"`
	Tags        []Tag  `json:"tags"`
	Body        string `json:"body"`
}

// Document is the rendered portfolio in display order: header, skills, projects.
type Document struct {
	Header        Header `json:"header"`
	SkillsTitle   string `json:"skillsTitle"`
	Skills        []Tag  `json:"skills"`
	ProjectsTitle string `json:"projectsTitle"`
	Projects      []Card `json:"projects"`
}

// Render builds the document for p. Any field may be empty.
func Render(p domain.Profile, opts Options) Document {
	doc := Document{
		Header: Header{
			Name:    p.Name,
			Role:    p.Role,
			Email:   p.Email,
			Picture: p.ProfilePicture,
		},
		SkillsTitle:   SkillsTitle,
		Skills:        tags(p.Skills, opts),
		ProjectsTitle: ProjectsTitle,
		Projects:      make([]Card, 0, len(p.Projects)),
	}
	for _, r := range p.Projects {
		c := Card{ID: r.ID, Title: r.Title, Tags: tags(r.Technologies, opts), Body: Boilerplate}
		if c.Title == "" {
			c.Title = PlaceholderTitle
			c.Placeholder = true
		}
		if opts.RenderDescription && r.Description != "" {
			c.Body = r.Description
		}
		doc.Projects = append(doc.Projects, c)
	}
	return doc
}

func tags(l domain.TagList, opts Options) []Tag {
	items := l.Items
	if items == nil {
		// a list that was never parsed still renders like the empty string
		items = domain.ParseTagList(l.Text).Items
	}
	out := make([]Tag, 0, len(items))
	for _, it := range items {
		if it == "" && opts.DropEmptyTags {
			continue
		}
		out = append(out, Tag{Text: it})
	}
	return out
}

// Hash returns a stable content hash, used as the raster cache key.
// Card IDs are not drawn and do not take part.
func (d Document) Hash() string {
	drawn := d
	drawn.Projects = make([]Card, len(d.Projects))
	for i, c := range d.Projects {
		c.ID = ""
		drawn.Projects[i] = c
	}
	b, _ := json.Marshal(drawn)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
