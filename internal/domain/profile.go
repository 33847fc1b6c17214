/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package domain

import (
	"fmt"
	"strings"
)

// DefaultProfile returns the start state of a new session.
func DefaultProfile() Profile {
	return Profile{
		Name:           "Alex Morgan",
		Role:           "Full-stack Developer",
		Skills:         ParseTagList("HTML, CSS, JavaScript, React, Node.js"),
		Email:          "alex.morgan@example.com",
		ProfilePicture: DefaultPicture,
		Projects: []ProjectRecord{
			{
				ID:           NewID(),
				Title:        "Fake News Checker",
				Technologies: ParseTagList("HTML, CSS, JavaScript"),
				Description:  "A real-time detector using ML.",
			},
			{
				ID:           NewID(),
				Title:        "Portfolio Generator",
				Technologies: ParseTagList("React, Vite"),
				Description:  "Dynamic CV builder for devs.",
			},
		},
	}
}

// Clone returns a deep copy.
func (p Profile) Clone() Profile {
	out := p
	out.Skills = p.Skills.clone()
	if p.Projects != nil {
		out.Projects = make([]ProjectRecord, len(p.Projects))
		for i, r := range p.Projects {
			out.Projects[i] = r.Clone()
		}
	}
	return out
}

// Clone returns a deep copy.
func (r ProjectRecord) Clone() ProjectRecord {
	out := r
	out.Technologies = r.Technologies.clone()
	return out
}

// Value reads a profile field as text.
func (p Profile) Value(f Field) (string, error) {
	switch f {
	case FieldName:
		return p.Name, nil
	case FieldRole:
		return p.Role, nil
	case FieldSkills:
		return p.Skills.Text, nil
	case FieldEmail:
		return p.Email, nil
	case FieldProfilePicture:
		return p.ProfilePicture, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownField, string(f))
}

// With returns a copy of p with field f set to v.
func (p Profile) With(f Field, v string) (Profile, error) {
	out := p.Clone()
	switch f {
	case FieldName:
		out.Name = v
	case FieldRole:
		out.Role = v
	case FieldSkills:
		out.Skills = ParseTagList(v)
	case FieldEmail:
		out.Email = v
	case FieldProfilePicture:
		// the picture is never empty; clearing it restores the default
		if strings.TrimSpace(v) == "" {
			v = DefaultPicture
		}
		out.ProfilePicture = v
	default:
		return p, fmt.Errorf("%w: %q", ErrUnknownField, string(f))
	}
	return out, nil
}

// Value reads a project field as text.
func (r ProjectRecord) Value(f ProjectField) (string, error) {
	switch f {
	case ProjectTitle:
		return r.Title, nil
	case ProjectTechnologies:
		return r.Technologies.Text, nil
	case ProjectDescription:
		return r.Description, nil
	}
	return "", fmt.Errorf("%w: project %q", ErrUnknownField, string(f))
}

// With returns a copy of r with field f set to v.
func (r ProjectRecord) With(f ProjectField, v string) (ProjectRecord, error) {
	out := r.Clone()
	switch f {
	case ProjectTitle:
		out.Title = v
	case ProjectTechnologies:
		out.Technologies = ParseTagList(v)
	case ProjectDescription:
		out.Description = v
	default:
		return r, fmt.Errorf("%w: project %q", ErrUnknownField, string(f))
	}
	return out, nil
}

// ProjectIndex returns the position of the record with id, or -1.
func (p Profile) ProjectIndex(id string) int {
	for i, r := range p.Projects {
		if r.ID == id {
			return i
		}
	}
	return -1
}

// EnsureIDs assigns ids to records loaded without one and reports whether any changed.
func (p *Profile) EnsureIDs() bool {
	changed := false
	for i := range p.Projects {
		if p.Projects[i].ID == "" {
			p.Projects[i].ID = NewID()
			changed = true
		}
	}
	return changed
}
