/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package domain defines the portfolio data model: a single Profile owning an
// ordered list of ProjectRecords. Values serialize to the human-readable JSON
// document stored in a workspace.
package domain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// DefaultPicture is the asset path used until the user selects a picture.
const DefaultPicture = "assets/ProfilePic.png"

// Profile is the singleton record holding all portfolio data.
type Profile struct {
	Name           string          `json:"name" yaml:"name"`
	Role           string          `json:"role" yaml:"role"`
	Skills         TagList         `json:"skills" yaml:"skills"`
	Email          string          `json:"email" yaml:"email"`
	ProfilePicture string          `json:"profilePicture" yaml:"profilePicture"`
	Projects       []ProjectRecord `json:"projects" yaml:"projects"`
}

// ProjectRecord is one entry of the ordered project list. ID is stable for
// the lifetime of the record; its position in Profile.Projects is not.
type ProjectRecord struct {
	ID           string  `json:"id" yaml:"id"`
	Title        string  `json:"title" yaml:"title"`
	Technologies TagList `json:"technologies" yaml:"technologies"`
	Description  string  `json:"description" yaml:"description"`
}

// NewProject returns an empty record with a fresh id.
func NewProject() ProjectRecord { return ProjectRecord{ID: NewID()} }

// NewID generates a record identifier.
func NewID() string { return uuid.New().String() }

// TagList is a comma-delimited list as typed by the user. Items are parsed
// once when the text is set; Text is kept verbatim.
type TagList struct {
	Text  string
	Items []string
}

// ParseTagList splits s on commas and trims each piece. Empty pieces, such
// as the one produced by a trailing comma, are kept. An empty string yields
// a single empty item.
func ParseTagList(s string) TagList {
	parts := strings.Split(s, ",")
	items := make([]string, len(parts))
	for i, p := range parts {
		items[i] = strings.TrimSpace(p)
	}
	return TagList{Text: s, Items: items}
}

// NonEmpty returns the items with empty pieces removed.
func (t TagList) NonEmpty() []string {
	out := make([]string, 0, len(t.Items))
	for _, it := range t.Items {
		if it != "" {
			out = append(out, it)
		}
	}
	return out
}

func (t TagList) String() string { return t.Text }

func (t TagList) clone() TagList {
	return TagList{Text: t.Text, Items: append([]string(nil), t.Items...)}
}

// MarshalText encodes the list as the plain comma string, which covers JSON and YAML.
func (t TagList) MarshalText() ([]byte, error) { return []byte(t.Text), nil }

// UnmarshalText parses the plain comma string.
func (t *TagList) UnmarshalText(b []byte) error {
	*t = ParseTagList(string(b))
	return nil
}

// UnmarshalYAML also accepts a YAML sequence, joined with ", ".
func (t *TagList) UnmarshalYAML(n *yaml.Node) error {
	switch n.Kind {
	case yaml.ScalarNode:
		*t = ParseTagList(n.Value)
		return nil
	case yaml.SequenceNode:
		var items []string
		if err := n.Decode(&items); err != nil {
			return err
		}
		*t = ParseTagList(strings.Join(items, ", "))
		return nil
	}
	return fmt.Errorf("tag list: unexpected yaml node kind %d", n.Kind)
}

// Field names a Profile text field.
type Field string

const (
	FieldName           Field = "name"
	FieldRole           Field = "role"
	FieldSkills         Field = "skills"
	FieldEmail          Field = "email"
	FieldProfilePicture Field = "profilePicture"
)

// ProjectField names a ProjectRecord text field.
type ProjectField string

const (
	ProjectTitle        ProjectField = "title"
	ProjectTechnologies ProjectField = "technologies"
	ProjectDescription  ProjectField = "description"
)

// ErrUnknownField is returned for field names outside the data model.
var ErrUnknownField = errors.New("unknown field")

// Fields lists the profile fields in form order.
var Fields = []Field{FieldName, FieldRole, FieldSkills, FieldEmail, FieldProfilePicture}

// ProjectFields lists the project fields in form order.
var ProjectFields = []ProjectField{ProjectTitle, ProjectTechnologies, ProjectDescription}

// ParseField resolves a field name, accepting the short alias "profilePic".
func ParseField(s string) (Field, error) {
	switch strings.TrimSpace(s) {
	case "name":
		return FieldName, nil
	case "role":
		return FieldRole, nil
	case "skills":
		return FieldSkills, nil
	case "email":
		return FieldEmail, nil
	case "profilePicture", "profilePic", "picture":
		return FieldProfilePicture, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownField, s)
}

// ParseProjectField resolves a project field name, accepting "tech" and "desc".
func ParseProjectField(s string) (ProjectField, error) {
	switch strings.TrimSpace(s) {
	case "title":
		return ProjectTitle, nil
	case "technologies", "tech":
		return ProjectTechnologies, nil
	case "description", "desc":
		return ProjectDescription, nil
	}
	return "", fmt.Errorf("%w: project %q", ErrUnknownField, s)
}
