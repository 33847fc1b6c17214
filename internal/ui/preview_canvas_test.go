//go:build fyne

/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// These tests need the Fyne toolchain and are gated behind the "fyne" tag:
//
//	go test -tags fyne ./internal/ui
package ui

import (
	"image"
	"testing"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/test"
)

func almostEqual(a, b, eps float32) bool {
	if a > b {
		return a-b <= eps
	}
	return b-a <= eps
}

func TestPreviewCanvas_Defaults(t *testing.T) {
	test.NewTempApp(t)
	pc := NewPreviewCanvas()
	if pc.Zoom() != defaultZoom {
		t.Fatalf("zoom = %v", pc.Zoom())
	}
	sz := pc.MinSize()
	if !almostEqual(sz.Width, surfaceWidth*defaultZoom, 0.1) || !almostEqual(sz.Height, surfaceHeight*defaultZoom, 0.1) {
		t.Fatalf("min size = %v", sz)
	}
}

func TestPreviewCanvas_ImageScaleAndLayout(t *testing.T) {
	test.NewTempApp(t)
	pc := NewPreviewCanvas()
	pc.SetZoom(1)
	pc.SetImage(image.NewRGBA(image.Rect(0, 0, 400, 1000)), 2)

	if sz := pc.MinSize(); !almostEqual(sz.Width, 200, 0.1) || !almostEqual(sz.Height, 500, 0.1) {
		t.Fatalf("min size = %v", sz)
	}

	r, ok := test.WidgetRenderer(pc).(*previewRenderer)
	if !ok {
		t.Fatalf("renderer = %T", test.WidgetRenderer(pc))
	}
	r.Layout(fyne.NewSize(600, 800))
	if pos := r.raster.Position(); !almostEqual(pos.X, 200, 0.1) || pos.Y != 0 {
		t.Fatalf("raster position = %v", pos)
	}
	if !r.placeholder.Hidden {
		t.Fatal("placeholder visible with an image")
	}
}

func TestPreviewCanvas_ZoomClamp(t *testing.T) {
	test.NewTempApp(t)
	pc := NewPreviewCanvas()
	pc.SetZoom(10)
	if pc.Zoom() != maxZoom {
		t.Fatalf("zoom = %v", pc.Zoom())
	}
	pc.SetZoom(0.01)
	if pc.Zoom() != minZoom {
		t.Fatalf("zoom = %v", pc.Zoom())
	}
	pc.Scrolled(&fyne.ScrollEvent{Scrolled: fyne.Delta{DY: 1}})
	if !almostEqual(pc.Zoom(), minZoom*1.1, 0.001) {
		t.Fatalf("zoom after scroll = %v", pc.Zoom())
	}
}
