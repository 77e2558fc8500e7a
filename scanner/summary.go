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
	"strings"

	"golang.org/x/exp/slices"
)

// Summary holds aggregated statistics about a set of problems
type Summary struct {
	Total      int              `json:"total" yaml:"total"`
	Warnings   int              `json:"warnings" yaml:"warnings"`
	Errors     int              `json:"errors" yaml:"errors"`
	ByCategory map[Category]int `json:"by_category" yaml:"by_category"`
}

// HasProblems returns true if there are any errors or warnings
func (s *Summary) HasProblems() bool {
	return s.Errors > 0 || s.Warnings > 0
}

// GetExitCode returns the appropriate exit code (0 for a clean scan, 1 for problems)
func (s *Summary) GetExitCode() int {
	if s.HasProblems() {
		return 1
	}
	return 0
}

// CalculateSummary calculates summary statistics from a list of problems
func CalculateSummary(problems []Problem) Summary {
	summary := Summary{
		Total:      len(problems),
		ByCategory: map[Category]int{},
	}

	for _, p := range problems {
		summary.ByCategory[p.Category]++
		switch p.Category.Severity() {
		case SeverityWarning:
			summary.Warnings++
		case SeverityError:
			summary.Errors++
		}
	}

	return summary
}

// Merge concatenates problem batches, drops repeated findings (same
// category and relative path, first one wins) and sorts the result by mod
// then relative path.
func Merge(batches ...[]Problem) []Problem {
	seen := map[string]struct{}{}
	var merged []Problem
	for _, batch := range batches {
		for _, p := range batch {
			k := p.Key()
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			merged = append(merged, p)
		}
	}

	slices.SortStableFunc(merged, func(a, b Problem) int {
		if c := strings.Compare(strings.ToLower(a.ModName()), strings.ToLower(b.ModName())); c != 0 {
			return c
		}
		if c := strings.Compare(strings.ToLower(a.RelPath), strings.ToLower(b.RelPath)); c != 0 {
			return c
		}
		return strings.Compare(string(a.Category), string(b.Category))
	})
	return merged
}
