/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package picture

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/image/bmp"
)

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestEncodeProducesDataURI(t *testing.T) {
	raw := testPNG(t, 4, 3)
	uri, err := Encode(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !strings.HasPrefix(uri, "data:image/png;base64,") {
		t.Fatalf("unexpected prefix: %.40s", uri)
	}
	mime, data, err := ParseDataURI(uri)
	if err != nil || mime != "image/png" || !bytes.Equal(data, raw) {
		t.Fatalf("ParseDataURI mismatch: %q %v", mime, err)
	}
}

func TestEncodeBMP(t *testing.T) {
	var buf bytes.Buffer
	if err := bmp.Encode(&buf, image.NewGray(image.Rect(0, 0, 2, 2))); err != nil {
		t.Fatalf("bmp encode: %v", err)
	}
	uri, err := Encode(&buf)
	if err != nil || !strings.HasPrefix(uri, "data:image/bmp;base64,") {
		t.Fatalf("Encode bmp = %.30s, %v", uri, err)
	}
}

func TestEncodeRejectsNonImage(t *testing.T) {
	if _, err := Encode(strings.NewReader("not an image")); !errors.Is(err, ErrUnsupportedImage) {
		t.Fatalf("expected ErrUnsupportedImage, got %v", err)
	}
}

func TestEncodeRejectsOversized(t *testing.T) {
	r := io.LimitReader(zeroReader{}, MaxBytes+10)
	if _, err := Encode(r); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
}

type zeroReader struct{}

func (zeroReader) Read(p []byte) (int, error) {
	clear(p)
	return len(p), nil
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("disk gone") }

func TestEncodeReportsReadFailure(t *testing.T) {
	if _, err := Encode(failingReader{}); err == nil || !strings.Contains(err.Error(), "disk gone") {
		t.Fatalf("expected read error, got %v", err)
	}
}

func TestResolverPathAndDecode(t *testing.T) {
	dir := t.TempDir()
	assets := filepath.Join(dir, "assets")
	if err := os.MkdirAll(assets, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(assets, "ProfilePic.png"), testPNG(t, 8, 6), 0o644); err != nil {
		t.Fatal(err)
	}
	for _, base := range []string{dir, assets} {
		r := Resolver{AssetsDir: base}
		img, err := r.Decode(context.Background(), "assets/ProfilePic.png")
		if err != nil {
			t.Fatalf("Decode with AssetsDir=%s: %v", base, err)
		}
		if b := img.Bounds(); b.Dx() != 8 || b.Dy() != 6 {
			t.Fatalf("unexpected bounds %v", b)
		}
	}
	r := Resolver{AssetsDir: dir}
	uri, err := r.Inline(context.Background(), "assets/ProfilePic.png")
	if err != nil || !IsDataURI(uri) {
		t.Fatalf("Inline = %.30s, %v", uri, err)
	}
	if _, err := r.Decode(context.Background(), "assets/missing.png"); err == nil {
		t.Fatalf("expected error for missing file")
	}
	if _, err := r.Decode(context.Background(), " "); !errors.Is(err, ErrEmptyRef) {
		t.Fatalf("expected ErrEmptyRef, got %v", err)
	}
}

func TestResolverFetchesURL(t *testing.T) {
	raw := testPNG(t, 3, 3)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/me.png" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(raw)
	}))
	defer srv.Close()

	r := Resolver{Client: srv.Client()}
	data, mime, err := r.Bytes(context.Background(), srv.URL+"/me.png")
	if err != nil || mime != "image/png" || !bytes.Equal(data, raw) {
		t.Fatalf("Bytes = %d bytes, %q, %v", len(data), mime, err)
	}
	if _, _, err := r.Bytes(context.Background(), srv.URL+"/nope.png"); err == nil {
		t.Fatalf("expected status error")
	}
}

// pngHeader returns a PNG signature and IHDR chunk claiming w x h pixels.
// DecodeConfig needs nothing more.
func pngHeader(w, h uint32) []byte {
	var buf bytes.Buffer
	buf.WriteString("\x89PNG\r\n\x1a\n")
	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:], w)
	binary.BigEndian.PutUint32(ihdr[4:], h)
	ihdr[8] = 8 // bit depth
	ihdr[9] = 2 // truecolor
	chunk := append([]byte("IHDR"), ihdr...)
	_ = binary.Write(&buf, binary.BigEndian, uint32(len(ihdr)))
	buf.Write(chunk)
	_ = binary.Write(&buf, binary.BigEndian, crc32.ChecksumIEEE(chunk))
	return buf.Bytes()
}

func TestEncodeRejectsOversizedDimensions(t *testing.T) {
	if _, err := Sniff(pngHeader(4, 3)); err != nil {
		t.Fatalf("small header rejected: %v", err)
	}
	bomb := pngHeader(12000, 12000)
	if _, err := Encode(bytes.NewReader(bomb)); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
	var r Resolver
	if _, err := r.Decode(context.Background(), DataURI("image/png", bomb)); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("Decode of embedded picture: expected ErrTooLarge, got %v", err)
	}
}
