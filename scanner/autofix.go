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

package scanner

import (
	"fmt"
	"log"
	"strings"

	"github.com/spf13/afero"
)

var addonIndexReplacer = strings.NewReplacer(
	`FindNode OBTS(FindNode "Addon Index"`, `FindNode OBTS(FindNode "Parent Combination Index"`,
	`FindNode OBTS(FindNode 'Addon Index'`, `FindNode OBTS(FindNode 'Parent Combination Index'`,
)

func isComment(line string) bool {
	return strings.HasPrefix(strings.TrimSpace(line), ";")
}

func lineReferencesAddonIndex(line string) bool {
	return !isComment(line) && (strings.Contains(line, `FindNode OBTS(FindNode "Addon Index"`) ||
		strings.Contains(line, `FindNode OBTS(FindNode 'Addon Index'`))
}

func referencesAddonIndex(text string) bool {
	for _, line := range strings.Split(text, "\n") {
		if lineReferencesAddonIndex(line) {
			return true
		}
	}
	return false
}

// FixResult describes what AutoFix changed.
type FixResult struct {
	Path       string
	LinesFixed int
}

// AutoFix repairs the file behind a fixable problem in place. It returns
// ErrNothingToFix for problems without an automatic fix and
// ErrFixNotApplicable when the file no longer needs fixing.
func AutoFix(fsys afero.Fs, p Problem) (FixResult, error) {
	if !p.Fixable() {
		return FixResult{}, ErrNothingToFix
	}
	return fixComplexSorterINI(fsys, p.Path)
}

func fixComplexSorterINI(fsys afero.Fs, path string) (FixResult, error) {
	result := FixResult{Path: path}

	info, err := fsys.Stat(path)
	if err != nil {
		return result, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		return result, fmt.Errorf("failed to read %s: %w", path, err)
	}

	text := string(data)
	eol := "\n"
	if strings.Contains(text, "\r\n") {
		eol = "\r\n"
	}
	lines := strings.Split(text, eol)
	for i, line := range lines {
		if !lineReferencesAddonIndex(line) {
			continue
		}
		lines[i] = addonIndexReplacer.Replace(line)
		result.LinesFixed++
		log.Printf("Auto-Fix: %s: line %d: updated \"Addon Index\" to \"Parent Combination Index\"", path, i+1)
	}
	if result.LinesFixed == 0 {
		return result, ErrFixNotApplicable
	}

	if err := afero.WriteFile(fsys, path, []byte(strings.Join(lines, eol)), info.Mode().Perm()); err != nil {
		return result, fmt.Errorf("failed to write %s: %w", path, err)
	}
	return result, nil
}
