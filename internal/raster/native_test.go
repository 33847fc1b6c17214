/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package raster

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"goportfolio/internal/domain"
	"goportfolio/internal/picture"
	"goportfolio/internal/preview"
)

func solidPNG(t *testing.T, c color.Color, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func near(a, b color.Color, tol int) bool {
	ar, ag, ab, _ := a.RGBA()
	br, bg, bb, _ := b.RGBA()
	d := func(x, y uint32) int {
		v := int(x>>8) - int(y>>8)
		if v < 0 {
			return -v
		}
		return v
	}
	return d(ar, br) <= tol && d(ag, bg) <= tol && d(ab, bb) <= tol
}

func TestNativeDefaultDocument(t *testing.T) {
	n, err := NewNative()
	if err != nil {
		t.Fatalf("NewNative: %v", err)
	}
	doc := preview.Render(domain.DefaultProfile(), preview.Options{})
	img, err := n.Rasterize(context.Background(), doc, 2)
	if err != nil {
		t.Fatalf("Rasterize: %v", err)
	}
	b := img.Bounds()
	if b.Dx() != SurfaceWidth*2 || b.Dy() < SurfaceMinHeight*2 {
		t.Fatalf("bounds = %v", b)
	}
	if _, _, _, a := img.At(0, 0).RGBA(); a != 0 {
		t.Fatalf("rounded corner should stay transparent, alpha=%d", a)
	}
	if c := img.At(b.Dx()/2, 30); !near(c, color.RGBA{0x0d, 0x1b, 0x2a, 0xff}, 2) {
		t.Fatalf("background = %v", c)
	}
}

func TestNativeDrawsPicture(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "me.png")
	if err := os.WriteFile(path, solidPNG(t, color.RGBA{255, 0, 0, 255}, 40, 60), 0o644); err != nil {
		t.Fatal(err)
	}
	n, err := NewNative(WithResolver(picture.Resolver{AssetsDir: dir}))
	if err != nil {
		t.Fatal(err)
	}
	p := domain.DefaultProfile()
	p.ProfilePicture = "me.png"
	img, err := n.Rasterize(context.Background(), preview.Render(p, preview.Options{}), 1)
	if err != nil {
		t.Fatal(err)
	}
	// the picture box is centred at (120, 120) css px at scale 1
	if c := img.At(120, 120); !near(c, color.RGBA{255, 0, 0, 255}, 8) {
		t.Fatalf("picture centre = %v", c)
	}
}

func TestNativeHeightFollowsContent(t *testing.T) {
	n, err := NewNative()
	if err != nil {
		t.Fatal(err)
	}
	p := domain.DefaultProfile()
	for i := 0; i < 12; i++ {
		rec := domain.NewProject()
		rec.Title = "Project"
		rec.Technologies = domain.ParseTagList("Go, SQL, Docker, Kubernetes")
		p.Projects = append(p.Projects, rec)
	}
	img, err := n.Rasterize(context.Background(), preview.Render(p, preview.Options{}), 1)
	if err != nil {
		t.Fatal(err)
	}
	if h := img.Bounds().Dy(); h <= SurfaceMinHeight {
		t.Fatalf("tall document should exceed the minimum height, got %d", h)
	}
}

func TestNativeEmptyProfile(t *testing.T) {
	n, err := NewNative(WithSurface(600, 400))
	if err != nil {
		t.Fatal(err)
	}
	img, err := n.Rasterize(context.Background(), preview.Render(domain.Profile{}, preview.Options{}), 0)
	if err != nil {
		t.Fatalf("empty profile: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 600 || b.Dy() < 400 {
		t.Fatalf("bounds = %v", b)
	}
}

func TestNativeHonoursContextAndClose(t *testing.T) {
	n, err := NewNative()
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	doc := preview.Render(domain.DefaultProfile(), preview.Options{})
	if _, err := n.Rasterize(ctx, doc, 1); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	_ = n.Close()
	_ = n.Close()
	if _, err := n.Rasterize(context.Background(), doc, 1); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestInitials(t *testing.T) {
	for in, want := range map[string]string{"Alex Morgan": "AM", "  ": "?", "élise": "É", "A B C": "AB"} {
		if got := initials(in); got != want {
			t.Errorf("initials(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNewSelectsKind(t *testing.T) {
	r, err := New(Config{Kind: "NATIVE"})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := r.(*Native); !ok {
		t.Fatalf("expected *Native, got %T", r)
	}
	c, err := New(Config{Kind: KindChrome})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := c.(*Chrome); !ok {
		t.Fatalf("expected *Chrome, got %T", c)
	}
	_ = c.Close()
	if _, err := New(Config{Kind: "canvas"}); err == nil {
		t.Fatalf("unknown kind should fail")
	}
}
