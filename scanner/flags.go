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
	"strings"
)

// RuleFlags enables or disables each rule group.
type RuleFlags struct {
	// WrongFormat checks extension whitelists, DLL placement and archive names.
	WrongFormat      bool `yaml:"wrong_format" json:"wrong_format"`
	LoosePrevis      bool `yaml:"loose_previs" json:"loose_previs"`
	JunkFiles        bool `yaml:"junk_files" json:"junk_files"`
	ProblemOverrides bool `yaml:"problem_overrides" json:"problem_overrides"`

	// OverviewIssues and Errors re-surface findings computed by the
	// installation inspector rather than by the walk.
	OverviewIssues bool `yaml:"overview_issues" json:"overview_issues"`
	Errors         bool `yaml:"errors" json:"errors"`
}

// DefaultRuleFlags enables every rule.
func DefaultRuleFlags() RuleFlags {
	return RuleFlags{
		WrongFormat:      true,
		LoosePrevis:      true,
		JunkFiles:        true,
		ProblemOverrides: true,
		OverviewIssues:   true,
		Errors:           true,
	}
}

// RuleNames lists the names accepted by Set.
var RuleNames = []string{
	"wrong_format",
	"loose_previs",
	"junk_files",
	"problem_overrides",
	"overview_issues",
	"errors",
}

// Set toggles the rule with the given name. Dashes and underscores are
// interchangeable.
func (f *RuleFlags) Set(name string, enabled bool) error {
	switch strings.ReplaceAll(strings.ToLower(name), "-", "_") {
	case "wrong_format":
		f.WrongFormat = enabled
	case "loose_previs":
		f.LoosePrevis = enabled
	case "junk_files":
		f.JunkFiles = enabled
	case "problem_overrides":
		f.ProblemOverrides = enabled
	case "overview_issues":
		f.OverviewIssues = enabled
	case "errors":
		f.Errors = enabled
	default:
		return fmt.Errorf("unknown rule %q, expected one of %s", name, strings.Join(RuleNames, ", "))
	}
	return nil
}

// Enabled returns the names of enabled rules.
func (f RuleFlags) Enabled() []string {
	values := []bool{f.WrongFormat, f.LoosePrevis, f.JunkFiles, f.ProblemOverrides, f.OverviewIssues, f.Errors}
	var names []string
	for i, on := range values {
		if on {
			names = append(names, RuleNames[i])
		}
	}
	return names
}

// allowsOverview reports whether an inspector finding of the given category
// passes the flags.
func (f RuleFlags) allowsOverview(c Category) bool {
	switch c {
	case CategoryFileNotFound, CategoryInvalidArchive, CategoryInvalidModule:
		return f.Errors
	default:
		return f.OverviewIssues
	}
}
