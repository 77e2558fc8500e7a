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
	"io"
	"strings"

	"github.com/spf13/afero"
	"github.com/xuri/excelize/v2"
)

const (
	problemsSheet = "Problems"
	warningsSheet = "Warnings"
)

var problemColumns = []any{"Mod", "Category", "Severity", "Relative Path", "Summary", "Solution", "Evidence", "Path"}

// writeWorkbook writes one row per problem and one per warning.
func writeWorkbook(fsys afero.Fs, path string, out *Outcome) error {
	wb := excelize.NewFile()
	defer wb.Close()

	if err := wb.SetSheetName(wb.GetSheetName(0), problemsSheet); err != nil {
		return err
	}
	if err := wb.SetSheetRow(problemsSheet, "A1", &problemColumns); err != nil {
		return err
	}
	for i, p := range out.Problems {
		solution := ""
		if p.Solution != nil {
			solution = p.Solution.Message
		}
		row := []any{
			p.ModName(),
			string(p.Category),
			string(p.Category.Severity()),
			p.RelPath,
			p.Summary,
			solution,
			strings.Join(p.Evidence, "\n"),
			p.Path,
		}
		axis, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := wb.SetSheetRow(problemsSheet, axis, &row); err != nil {
			return err
		}
	}

	if _, err := wb.NewSheet(warningsSheet); err != nil {
		return err
	}
	if err := wb.SetCellValue(warningsSheet, "A1", "Warning"); err != nil {
		return err
	}
	for i, msg := range out.Warnings {
		axis, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := wb.SetCellValue(warningsSheet, axis, msg); err != nil {
			return err
		}
	}

	return writeFile(fsys, path, func(w io.Writer) error {
		return wb.Write(w)
	})
}
