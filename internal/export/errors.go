/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package export turns a rendered portfolio into a downloadable document:
// rasterize, encode as PNG, place the image on a page and name the file.
package export

import (
	"errors"
	"fmt"
)

// Stage names a step of the export pipeline.
type Stage string

const (
	StageRasterize Stage = "rasterize"
	StageEncode    Stage = "encode"
	StageCompose   Stage = "compose"
	StageWrite     Stage = "write"
)

// ErrNoRasterizer is returned when a Pipeline has no rasterizer configured.
var ErrNoRasterizer = errors.New("export: no rasterizer configured")

// Error reports the stage at which an export failed.
type Error struct {
	Stage Stage
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("export %s: %v", e.Stage, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func stageErr(s Stage, err error) error {
	if err == nil {
		return nil
	}
	var ee *Error
	if errors.As(err, &ee) {
		return err
	}
	return &Error{Stage: s, Err: err}
}

// StageOf returns the failing stage of err, or "" when err is not an export error.
func StageOf(err error) Stage {
	var ee *Error
	if errors.As(err, &ee) {
		return ee.Stage
	}
	return ""
}
