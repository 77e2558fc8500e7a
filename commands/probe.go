// Copyright 2025 The cmscan Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/cmtoolkit/cmscan/scanner/formats"
	"github.com/spf13/afero"
)

// ProbeCmd classifies individual archive and module files by their headers.
type ProbeCmd struct {
	Fs  afero.Fs
	Out io.Writer
}

// Run probes each path and prints one line per file.
// Returns exit code: 0 if every file is valid, 1 otherwise
func (p *ProbeCmd) Run(paths []string) int {
	code := ExitClean
	for _, path := range paths {
		detail, ok := p.probe(path)
		badge := "✓"
		if !ok {
			badge = "✗"
			code = ExitProblems
		}
		fmt.Fprintf(p.Out, "%s %s: %s\n", badge, path, detail)
	}
	return code
}

func (p *ProbeCmd) probe(path string) (string, bool) {
	switch formats.KindOf(filepath.Base(path)) {
	case formats.ContainerArchive:
		c, err := formats.ClassifyArchiveFile(p.Fs, path)
		if err != nil {
			return fmt.Sprintf("archive %v", err), false
		}
		if !c.Valid() {
			return fmt.Sprintf("archive %s: %s", c.Status, c.Detail()), false
		}
		return "archive " + c.Detail(), true
	case formats.ContainerModule:
		c, err := formats.ClassifyModuleFile(p.Fs, path)
		if err != nil {
			return fmt.Sprintf("module %v", err), false
		}
		if !c.Valid() {
			return fmt.Sprintf("module %s: %s", c.Status, c.Detail()), false
		}
		kind := "full"
		if c.Light() || formats.IsLightModuleName(path) {
			kind = "light"
		}
		return fmt.Sprintf("module %s (%s)", c.Detail(), kind), c.Version != formats.ModuleVersionUnknown
	default:
		return "not an archive or module", false
	}
}
