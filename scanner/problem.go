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
	"github.com/cmtoolkit/cmscan/scanner/overlay"
)

// Category is the closed set of problem kinds a scan can report.
type Category string

const (
	CategoryJunkFile           Category = "Junk File"
	CategoryUnexpectedFormat   Category = "Unexpected Format"
	CategoryMisplacedDLL       Category = "Misplaced DLL"
	CategoryLoosePrevis        Category = "Loose Previs"
	CategoryAnimTextDataFolder Category = "AnimTextData Folder"
	CategoryInvalidArchive     Category = "Invalid Archive"
	CategoryInvalidModule      Category = "Invalid Module"
	CategoryInvalidArchiveName Category = "Invalid Archive Name"
	CategoryScriptOverride     Category = "Script Override"
	CategoryFileNotFound       Category = "File Not Found"
	CategoryWrongVersion       Category = "Wrong Version"
	CategoryToolConfigError    Category = "Tool Config Error"
)

// Categories lists every category in display order.
var Categories = []Category{
	CategoryFileNotFound,
	CategoryInvalidArchive,
	CategoryInvalidModule,
	CategoryWrongVersion,
	CategoryInvalidArchiveName,
	CategoryToolConfigError,
	CategoryScriptOverride,
	CategoryAnimTextDataFolder,
	CategoryMisplacedDLL,
	CategoryUnexpectedFormat,
	CategoryLoosePrevis,
	CategoryJunkFile,
}

// Severity classifies a category for summaries and exit codes.
type Severity string

const (
	SeverityWarning Severity = "WARNING"
	SeverityError   Severity = "ERROR"
)

// Severity returns SeverityError for categories that stop content from
// loading and SeverityWarning otherwise.
func (c Category) Severity() Severity {
	switch c {
	case CategoryFileNotFound, CategoryInvalidArchive, CategoryInvalidModule,
		CategoryWrongVersion, CategoryInvalidArchiveName, CategoryToolConfigError:
		return SeverityError
	default:
		return SeverityWarning
	}
}

// UnmanagedName is shown in place of a mod name for files that live directly
// in the data directory.
const UnmanagedName = "Unmanaged Files"

// UnknownSolution is shown for problems without a Solution.
const UnknownSolution = "No known solution. If this file is expected here, please report it."

// Problem is one finding. Solution is nil when no remediation is known and
// the finding should be reported upstream.
type Problem struct {
	Category Category  `json:"category" yaml:"category"`
	Path     string    `json:"path" yaml:"path"`
	RelPath  string    `json:"relative_path" yaml:"relative_path"`
	Mod      string    `json:"mod,omitempty" yaml:"mod,omitempty"`
	Summary  string    `json:"summary" yaml:"summary"`
	Solution *Solution `json:"solution" yaml:"solution"`
	Evidence []string  `json:"evidence,omitempty" yaml:"evidence,omitempty"`
}

// Key identifies a finding for set comparison and deduplication.
func (p Problem) Key() string {
	return string(p.Category) + "|" + overlay.Key(p.RelPath)
}

// ModName returns the owning mod for display.
func (p Problem) ModName() string {
	if p.Mod == "" {
		return UnmanagedName
	}
	return p.Mod
}

// Fixable reports whether AutoFix knows how to repair the problem.
func (p Problem) Fixable() bool {
	return p.Solution != nil && p.Solution.Kind == SolutionRunAutoFix && p.Category == CategoryToolConfigError
}
