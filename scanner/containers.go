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
	"path"
	"path/filepath"
	"strings"

	"github.com/cmtoolkit/cmscan/scanner/formats"
	"github.com/cmtoolkit/cmscan/scanner/overlay"
	"github.com/spf13/afero"
)

func newProblem(c Category, e overlay.Entry, summary string, s *Solution, evidence ...string) Problem {
	return Problem{
		Category: c,
		Path:     e.Path,
		RelPath:  e.RelPath,
		Mod:      e.Mod,
		Summary:  summary,
		Solution: s,
		Evidence: evidence,
	}
}

// CheckArchive reads the archive at e and returns its classification with
// any problems. The error is the read failure, already reported as a
// problem; the classification is meaningless when it is set. When versions
// is set, a next-gen archive on an old-gen install is reported.
func CheckArchive(fsys afero.Fs, e overlay.Entry, install InstallType, versions bool) (formats.ArchiveClassification, []Problem, error) {
	name := path.Base(e.RelPath)
	c, err := formats.ClassifyArchiveFile(fsys, e.Path)
	if err != nil {
		return c, []Problem{newProblem(CategoryInvalidArchive, e, "Unreadable archive",
			newSolution(SolutionVerifyInstallation, tmplUnreadable, map[string]string{"name": name, "reason": err.Error()}))}, err
	}
	if !c.Valid() {
		return c, []Problem{newProblem(CategoryInvalidArchive, e, fmt.Sprintf("Corrupt or wrong format archive: %s", c.Detail()),
			newSolution(SolutionVerifyInstallation, tmplCorrupt, map[string]string{"name": name, "detail": c.Detail()}))}, nil
	}
	if versions && c.Version.IsNextGen() && install.OldGenExecutable() {
		return c, []Problem{newProblem(CategoryWrongVersion, e, fmt.Sprintf("%s archive on %s install", c.Version, install),
			newSolution(SolutionRunAutoFix, tmplWrongVersion, map[string]string{
				"name":    name,
				"version": c.Version.String(),
				"install": string(install),
			}))}, nil
	}
	return c, nil, nil
}

// CheckModule reads the module at e like CheckArchive. Base masters may
// carry any header version; other modules must use a known one.
func CheckModule(fsys afero.Fs, e overlay.Entry) (formats.ModuleClassification, []Problem, error) {
	name := path.Base(e.RelPath)
	c, err := formats.ClassifyModuleFile(fsys, e.Path)
	if err != nil {
		return c, []Problem{newProblem(CategoryInvalidModule, e, "Unreadable module",
			newSolution(SolutionVerifyInstallation, tmplUnreadable, map[string]string{"name": name, "reason": err.Error()}))}, err
	}
	if !c.Valid() || (c.Version == formats.ModuleVersionUnknown && !IsBaseMaster(name)) {
		return c, []Problem{newProblem(CategoryInvalidModule, e, fmt.Sprintf("Corrupt or wrong format module: %s", c.Detail()),
			newSolution(SolutionVerifyInstallation, tmplCorrupt, map[string]string{"name": name, "detail": c.Detail()}))}, nil
	}
	return c, nil, nil
}

// FileNotFound reports a file that listedIn enables but no layer provides.
// dataDir is where the game would look for it.
func FileNotFound(rel, dataDir, listedIn string) Problem {
	name := path.Base(strings.ReplaceAll(rel, "\\", "/"))
	return Problem{
		Category: CategoryFileNotFound,
		Path:     filepath.Join(dataDir, filepath.FromSlash(rel)),
		RelPath:  rel,
		Summary:  fmt.Sprintf("Listed in %s but not found", listedIn),
		Solution: newSolution(SolutionVerifyInstallation, tmplFileNotFound, map[string]string{"name": name}),
		Evidence: []string{listedIn},
	}
}

// UnsupportedPlugin reports a Script Extender plugin built for the other
// executable generation.
func UnsupportedPlugin(e overlay.Entry, install InstallType) Problem {
	name := path.Base(e.RelPath)
	return newProblem(CategoryWrongVersion, e,
		fmt.Sprintf("F4SE plugin does not support %s", install),
		newSolution(SolutionDeleteOrIgnore, tmplWrongPlugin, map[string]string{"name": name, "install": string(install)}))
}
