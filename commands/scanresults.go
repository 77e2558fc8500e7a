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
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/cmtoolkit/cmscan/scanner"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// write renders the outcome in the selected format, to OutputPath when set.
func (s *ScanCmd) write(out *Outcome) error {
	if s.Format == FormatXLSX {
		if s.OutputPath == "" {
			return fmt.Errorf("xlsx output needs --output")
		}
		return writeWorkbook(s.Fs, s.OutputPath, out)
	}

	w := s.Out
	if s.OutputPath != "" {
		f, err := s.Fs.Create(s.OutputPath)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}

	switch s.Format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(out); err != nil {
			return err
		}
		return enc.Close()
	default:
		printOutcome(w, out)
		return nil
	}
}

func severityBadge(c scanner.Category) string {
	if c.Severity() == scanner.SeverityError {
		return "✗ ERROR"
	}
	return "⚠ WARNING"
}

// printOutcome prints problems grouped by mod, then the summary.
func printOutcome(w io.Writer, out *Outcome) {
	printHeader(w, out)

	mod := ""
	for i, p := range out.Problems {
		if i == 0 || p.ModName() != mod {
			mod = p.ModName()
			fmt.Fprintf(w, "\n%s\n%s\n", mod, strings.Repeat("-", len(mod)))
		}
		printProblem(w, p)
	}
	if len(out.Problems) == 0 {
		fmt.Fprintf(w, "\nNo problems found.\n")
	}

	if len(out.Warnings) > 0 {
		fmt.Fprintf(w, "\nWarnings:\n")
		for _, msg := range out.Warnings {
			fmt.Fprintf(w, "  - %s\n", msg)
		}
	}
	printSummary(w, out.Summary)
}

func printHeader(w io.Writer, out *Outcome) {
	fmt.Fprintf(w, "Scan %s\n", out.ID)
	if out.Profile != "" {
		fmt.Fprintf(w, "Mod Manager:  %s [Profile: %s]\n", out.Manager, out.Profile)
	} else {
		fmt.Fprintf(w, "Mod Manager:  %s\n", out.Manager)
	}
	if r := out.Installation; r != nil {
		fmt.Fprintf(w, "Game Path:    %s\n", r.GamePath)
		if r.GameVersion != "" {
			fmt.Fprintf(w, "Version:      %s (%s)\n", r.InstallType, r.GameVersion)
		} else {
			fmt.Fprintf(w, "Version:      %s\n", r.InstallType)
		}
		fmt.Fprintf(w, "Layers:       %d\n", len(out.Layers))
		c := r.Counts
		fmt.Fprintf(w, "Archives:     %d general, %d texture, %d unreadable (v1: %d, v7/8: %d)\n",
			c.GeneralArchives, c.TextureArchives, c.UnreadableArchives, c.OldGenArchives, c.NextGenArchives)
		fmt.Fprintf(w, "Modules:      %d full, %d light, %d unreadable (HEDR v1.00: %d, v0.95: %d)\n",
			c.FullModules, c.LightModules, c.UnreadableModules, c.CurrentModules, c.LegacyModules)
		if len(r.F4SEPlugins) > 0 || r.AddressLibrary != "" {
			lib := "not found"
			if r.AddressLibrary != "" {
				lib = r.AddressLibrary
			}
			fmt.Fprintf(w, "F4SE:         %d plugins, Address Library %s\n", len(r.F4SEPlugins), lib)
		}
	}
}

func printProblem(w io.Writer, p scanner.Problem) {
	fmt.Fprintf(w, "%-10s %s: %s\n", severityBadge(p.Category), p.Category, p.RelPath)
	fmt.Fprintf(w, "           %s\n", p.Summary)
	for _, e := range p.Evidence {
		fmt.Fprintf(w, "           > %s\n", e)
	}
	msg := scanner.UnknownSolution
	if p.Solution != nil {
		msg = p.Solution.Message
	}
	for _, line := range strings.Split(msg, "\n") {
		fmt.Fprintf(w, "           %s\n", line)
	}
	if p.Solution != nil && len(p.Solution.Command) > 0 {
		fmt.Fprintf(w, "           Fix: %s\n", strings.Join(p.Solution.Command, " "))
	}
}

// printSummary prints the scan summary
func printSummary(w io.Writer, summary scanner.Summary) {
	fmt.Fprintf(w, "\n=== SUMMARY ===\n")
	fmt.Fprintf(w, "Total Problems:  %d\n", summary.Total)
	fmt.Fprintf(w, "Warnings:        %d\n", summary.Warnings)
	fmt.Fprintf(w, "Errors:          %d\n", summary.Errors)
	for _, c := range scanner.Categories {
		if n := summary.ByCategory[c]; n > 0 {
			fmt.Fprintf(w, "  %-22s %d\n", string(c)+":", n)
		}
	}
	fmt.Fprintf(w, "\nExit Code: %d", summary.GetExitCode())
	if summary.GetExitCode() == 0 {
		fmt.Fprintf(w, " (no issues detected)\n")
	} else if summary.Errors > 0 {
		fmt.Fprintf(w, " (errors detected)\n")
	} else {
		fmt.Fprintf(w, " (warnings detected)\n")
	}
}

// writeFile is used by the workbook writer to keep output on the command's
// filesystem.
func writeFile(fsys afero.Fs, path string, write func(io.Writer) error) error {
	f, err := fsys.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
