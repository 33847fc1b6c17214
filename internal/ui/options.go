/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package ui is the desktop editor. The Fyne implementation is compiled with
// -tags fyne; other builds get a stub so headless CI needs no OpenGL.
package ui

import "goportfolio/internal/config"

// Options configure Run.
type Options struct {
	Config config.AppConfig
	// Workspace is opened (and created if empty) when set; otherwise the
	// editor starts on the default profile without persistence.
	Workspace string
}
