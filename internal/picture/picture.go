/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package picture converts user-selected image files into embeddable data
// URIs and resolves stored picture references back into images.
package picture

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

const (
	// MaxBytes bounds the size of an accepted picture file.
	MaxBytes = 10 << 20
	// MaxPixels bounds the decoded width*height of an accepted picture.
	MaxPixels = 40_000_000
)

var (
	// ErrUnsupportedImage is returned when the data is not a decodable image.
	ErrUnsupportedImage = errors.New("unsupported image")
	// ErrTooLarge is returned for files above MaxBytes or MaxPixels.
	ErrTooLarge = errors.New("image too large")
	// ErrEmptyRef is returned when no picture reference is set.
	ErrEmptyRef = errors.New("empty picture reference")
)

var mimeTypes = map[string]string{
	"png":  "image/png",
	"jpeg": "image/jpeg",
	"gif":  "image/gif",
	"webp": "image/webp",
	"bmp":  "image/bmp",
}

// Encode reads r completely, checks that it holds a supported image and
// returns it as a base64 data URI. The original bytes are embedded unchanged.
func Encode(r io.Reader) (string, error) {
	data, err := readLimited(r)
	if err != nil {
		return "", err
	}
	mime, err := Sniff(data)
	if err != nil {
		return "", err
	}
	return DataURI(mime, data), nil
}

// Sniff validates data as an image and returns its MIME type. Only the
// header is read; images above MaxPixels are rejected with ErrTooLarge.
func Sniff(data []byte) (string, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnsupportedImage, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return "", fmt.Errorf("%w: empty image", ErrUnsupportedImage)
	}
	if int64(cfg.Width)*int64(cfg.Height) > MaxPixels {
		return "", fmt.Errorf("%w: %dx%d pixels", ErrTooLarge, cfg.Width, cfg.Height)
	}
	mime, ok := mimeTypes[format]
	if !ok {
		return "", fmt.Errorf("%w: format %q", ErrUnsupportedImage, format)
	}
	return mime, nil
}

// DataURI builds "data:<mime>;base64,<payload>".
func DataURI(mime string, data []byte) string {
	var b strings.Builder
	b.Grow(len(mime) + 13 + base64.StdEncoding.EncodedLen(len(data)))
	b.WriteString("data:")
	b.WriteString(mime)
	b.WriteString(";base64,")
	b.WriteString(base64.StdEncoding.EncodeToString(data))
	return b.String()
}

// IsDataURI reports whether ref is an embedded picture.
func IsDataURI(ref string) bool { return strings.HasPrefix(ref, "data:") }

// ParseDataURI returns the MIME type and payload of a data URI.
func ParseDataURI(ref string) (string, []byte, error) {
	if !IsDataURI(ref) {
		return "", nil, fmt.Errorf("%w: not a data uri", ErrUnsupportedImage)
	}
	meta, payload, ok := strings.Cut(strings.TrimPrefix(ref, "data:"), ",")
	if !ok {
		return "", nil, fmt.Errorf("%w: malformed data uri", ErrUnsupportedImage)
	}
	mime, isB64 := strings.CutSuffix(meta, ";base64")
	if !isB64 {
		return mime, []byte(payload), nil
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrUnsupportedImage, err)
	}
	return mime, data, nil
}

// Resolver loads picture references: data URIs, http(s) URLs and file paths.
// Relative paths are resolved against AssetsDir.
type Resolver struct {
	AssetsDir string
	Client    *http.Client
}

// Bytes returns the raw bytes and MIME type of ref.
func (r Resolver) Bytes(ctx context.Context, ref string) ([]byte, string, error) {
	ref = strings.TrimSpace(ref)
	switch {
	case ref == "":
		return nil, "", ErrEmptyRef
	case IsDataURI(ref):
		mime, data, err := ParseDataURI(ref)
		return data, mime, err
	case strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://"):
		data, err := r.fetch(ctx, ref)
		if err != nil {
			return nil, "", err
		}
		mime, err := Sniff(data)
		return data, mime, err
	}
	f, err := os.Open(r.Path(ref))
	if err != nil {
		return nil, "", fmt.Errorf("open picture: %w", err)
	}
	defer f.Close()
	data, err := readLimited(f)
	if err != nil {
		return nil, "", err
	}
	mime, err := Sniff(data)
	return data, mime, err
}

// Path resolves a file reference against AssetsDir.
func (r Resolver) Path(ref string) string {
	p := filepath.FromSlash(ref)
	if filepath.IsAbs(p) || r.AssetsDir == "" {
		return p
	}
	// "assets/x.png" is relative to the directory containing assets/
	if rest, ok := strings.CutPrefix(ref, "assets/"); ok && filepath.Base(r.AssetsDir) == "assets" {
		return filepath.Join(r.AssetsDir, filepath.FromSlash(rest))
	}
	return filepath.Join(r.AssetsDir, p)
}

// Decode loads ref and decodes it into an image.
func (r Resolver) Decode(ctx context.Context, ref string) (image.Image, error) {
	data, _, err := r.Bytes(ctx, ref)
	if err != nil {
		return nil, err
	}
	// embedded pictures are not sniffed by Bytes
	if _, err := Sniff(data); err != nil {
		return nil, err
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedImage, err)
	}
	return img, nil
}

// Inline returns ref as a data URI, loading it when it is a path or URL.
func (r Resolver) Inline(ctx context.Context, ref string) (string, error) {
	if IsDataURI(ref) {
		return ref, nil
	}
	data, mime, err := r.Bytes(ctx, ref)
	if err != nil {
		return "", err
	}
	return DataURI(mime, data), nil
}

func (r Resolver) fetch(ctx context.Context, url string) ([]byte, error) {
	c := r.Client
	if c == nil {
		c = &http.Client{Timeout: 15 * time.Second}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch picture: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch picture: status %d", resp.StatusCode)
	}
	return readLimited(resp.Body)
}

func readLimited(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read picture: %w", err)
	}
	if len(data) > MaxBytes {
		return nil, ErrTooLarge
	}
	return data, nil
}
