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
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/cmtoolkit/cmscan/scanner"
)

// ConfirmPrompt asks the user for confirmation before fixes are applied.
// Tests replace it.
var ConfirmPrompt = func(prompt string) (bool, error) {
	fmt.Print(prompt)
	r := bufio.NewReader(os.Stdin)
	s, err := r.ReadString('\n')
	if err != nil {
		return false, err
	}
	s = strings.TrimSpace(strings.ToLower(s))
	return s == "y" || s == "yes", nil
}

// FixCmd applies automatic fixes. With Paths set it fixes those files
// directly, otherwise it scans first and fixes every fixable problem.
type FixCmd struct {
	Scan   *ScanCmd
	Paths  []string
	DryRun bool
	Yes    bool
}

// Run returns exit code: 0 when everything planned was fixed or nothing
// needed fixing, 1 if a fix failed or was declined, 2 if the scan failed
func (f *FixCmd) Run(ctx context.Context) int {
	out := f.Scan.Out

	problems, err := f.plan(ctx)
	if err != nil {
		fmt.Fprintf(out, "ERROR: %v\n", err)
		return ExitFatal
	}
	if len(problems) == 0 {
		fmt.Fprintln(out, "No fixable problems found.")
		return ExitClean
	}

	if f.DryRun {
		for _, p := range problems {
			fmt.Fprintf(out, "Action: fix %s (%s)\n", p.Path, p.Category)
		}
		fmt.Fprintln(out, "dry-run complete")
		return ExitClean
	}

	if !f.Yes {
		fmt.Fprintln(out, "Planned actions:")
		for _, p := range problems {
			fmt.Fprintf(out, "  - fix %s (%s)\n", p.Path, p.Category)
		}
		ok, err := ConfirmPrompt("Apply these changes? [y/N]: ")
		if err != nil {
			fmt.Fprintf(out, "ERROR: %v\n", err)
			return ExitProblems
		}
		if !ok {
			fmt.Fprintln(out, "aborted by user")
			return ExitProblems
		}
	}

	var failed []string
	for _, p := range problems {
		res, err := scanner.AutoFix(f.Scan.Fs, p)
		switch {
		case errors.Is(err, scanner.ErrFixNotApplicable):
			fmt.Fprintf(out, "✓ %s: already fixed\n", p.Path)
		case err != nil:
			failed = append(failed, fmt.Sprintf("%s: %v", p.Path, err))
			fmt.Fprintf(out, "✗ %s: %v\n", p.Path, err)
		default:
			fmt.Fprintf(out, "✓ %s: %d lines fixed\n", res.Path, res.LinesFixed)
		}
	}
	if len(failed) > 0 {
		fmt.Fprintf(out, "\n%d of %d fixes failed\n", len(failed), len(problems))
		return ExitProblems
	}
	return ExitClean
}

// plan returns the problems to fix. Explicit paths become tool config
// problems without scanning.
func (f *FixCmd) plan(ctx context.Context) ([]scanner.Problem, error) {
	if len(f.Paths) > 0 {
		problems := make([]scanner.Problem, 0, len(f.Paths))
		for _, path := range f.Paths {
			problems = append(problems, scanner.Problem{
				Category: scanner.CategoryToolConfigError,
				Path:     path,
				Solution: &scanner.Solution{Kind: scanner.SolutionRunAutoFix},
			})
		}
		return problems, nil
	}

	outcome, err := f.Scan.Scan(ctx)
	if err != nil {
		return nil, err
	}
	var fixable []scanner.Problem
	for _, p := range outcome.Problems {
		if p.Fixable() {
			fixable = append(fixable, p)
		}
	}
	return fixable, nil
}
