/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package preview

import (
	"context"
	"reflect"
	"sync"
	"testing"
	"time"

	"goportfolio/internal/domain"
	"goportfolio/internal/store"
)

func texts(ts []Tag) []string {
	out := make([]string, len(ts))
	for i, t := range ts {
		out[i] = t.Text
	}
	return out
}

func TestSkillsTrimmedInOrder(t *testing.T) {
	p := domain.DefaultProfile()
	p.Skills = domain.ParseTagList("React, Node ,  Python")
	doc := Render(p, Options{})
	if got := texts(doc.Skills); !reflect.DeepEqual(got, []string{"React", "Node", "Python"}) {
		t.Fatalf("skills = %q", got)
	}
}

func TestTrailingCommaRendersEmptyTag(t *testing.T) {
	p := domain.DefaultProfile()
	p.Skills = domain.ParseTagList("React,")
	if got := texts(Render(p, Options{}).Skills); !reflect.DeepEqual(got, []string{"React", ""}) {
		t.Fatalf("literal rendering = %q", got)
	}
	if got := texts(Render(p, Options{DropEmptyTags: true}).Skills); !reflect.DeepEqual(got, []string{"React"}) {
		t.Fatalf("DropEmptyTags rendering = %q", got)
	}
}

func TestProjectTitlePlaceholder(t *testing.T) {
	p := domain.DefaultProfile()
	p.Projects[0].Title = ""
	doc := Render(p, Options{})
	if c := doc.Projects[0]; c.Title != PlaceholderTitle || !c.Placeholder {
		t.Fatalf("empty title card = %+v", c)
	}
	if c := doc.Projects[1]; c.Title != "Portfolio Generator" || c.Placeholder {
		t.Fatalf("titled card = %+v", c)
	}
}

func TestCardBody(t *testing.T) {
	p := domain.DefaultProfile()
	p.Projects[1].Description = ""
	lit := Render(p, Options{})
	for _, c := range lit.Projects {
		if c.Body != Boilerplate {
			t.Fatalf("literal body = %q", c.Body)
		}
	}
	desc := Render(p, Options{RenderDescription: true})
	if desc.Projects[0].Body != "A real-time detector using ML." {
		t.Fatalf("description not rendered: %q", desc.Projects[0].Body)
	}
	if desc.Projects[1].Body != Boilerplate {
		t.Fatalf("empty description should fall back: %q", desc.Projects[1].Body)
	}
}

func TestLayoutOrderAndTechnologies(t *testing.T) {
	doc := Render(domain.DefaultProfile(), Options{})
	if doc.Header.Name != "Alex Morgan" || doc.Header.Picture != domain.DefaultPicture {
		t.Fatalf("header = %+v", doc.Header)
	}
	if doc.SkillsTitle != "Core Expertise" || doc.ProjectsTitle != "Selected Projects" {
		t.Fatalf("section titles = %q %q", doc.SkillsTitle, doc.ProjectsTitle)
	}
	if got := texts(doc.Projects[1].Tags); !reflect.DeepEqual(got, []string{"React", "Vite"}) {
		t.Fatalf("technologies = %q", got)
	}
}

func TestEmptyProfileRenders(t *testing.T) {
	doc := Render(domain.Profile{Projects: []domain.ProjectRecord{{}}}, Options{})
	if len(doc.Skills) != 1 || doc.Skills[0].Text != "" {
		t.Fatalf("empty skills should render one empty tag: %+v", doc.Skills)
	}
	if len(doc.Projects) != 1 || doc.Projects[0].Title != PlaceholderTitle {
		t.Fatalf("empty project = %+v", doc.Projects)
	}
}

func TestAddProjectEndToEnd(t *testing.T) {
	p := domain.DefaultProfile()
	p.Projects = append(p.Projects, domain.NewProject())
	doc := Render(p, Options{})
	if len(doc.Projects) != 3 || doc.Projects[2].Title != PlaceholderTitle {
		t.Fatalf("third card = %+v", doc.Projects)
	}
}

func TestHashChangesWithContent(t *testing.T) {
	a := Render(domain.DefaultProfile(), Options{})
	b := a
	if a.Hash() != b.Hash() {
		t.Fatalf("hash not deterministic")
	}
	b.Header.Name = "Other"
	if a.Hash() == b.Hash() {
		t.Fatalf("hash ignores content")
	}
}

func TestHashIgnoresProjectIDs(t *testing.T) {
	a := Render(domain.DefaultProfile(), Options{})
	b := Render(domain.DefaultProfile(), Options{})
	if a.Projects[0].ID == b.Projects[0].ID {
		t.Fatalf("expected fresh project ids")
	}
	if a.Hash() != b.Hash() {
		t.Fatalf("identical content hashed differently")
	}
	if a.Projects[0].ID == "" {
		t.Fatalf("Hash cleared the caller's card id")
	}
}

func TestLiveCachesPerVersion(t *testing.T) {
	s := store.New(domain.DefaultProfile())
	l := NewLive(s, Options{})
	defer l.Close()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Current()
		}()
	}
	wg.Wait()
	l.Current()
	if n := l.Renders(); n < 1 || n > 8 {
		t.Fatalf("renders = %d", n)
	}
	before := l.Renders()
	l.Current()
	if l.Renders() != before {
		t.Fatalf("cached version re-rendered")
	}

	p, _ := s.Snapshot()
	p.Name = "Sam"
	s.Replace(p)
	doc, v := l.Current()
	if v != 1 || doc.Header.Name != "Sam" {
		t.Fatalf("stale document after replace: v=%d name=%q", v, doc.Header.Name)
	}
}

func TestLiveNext(t *testing.T) {
	s := store.New(domain.DefaultProfile())
	l := NewLive(s, Options{})
	defer l.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	go func() {
		time.Sleep(10 * time.Millisecond)
		p, _ := s.Snapshot()
		p.Role = "Designer"
		s.Replace(p)
	}()
	doc, v, err := l.Next(ctx, 0)
	if err != nil || v < 1 || doc.Header.Role != "Designer" {
		t.Fatalf("Next = %+v, %d, %v", doc.Header, v, err)
	}
}
