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

	"github.com/kballard/go-shellquote"
)

// SolutionKind is the closed set of remediation classes.
type SolutionKind string

const (
	SolutionDeleteOrIgnore     SolutionKind = "delete-or-ignore"
	SolutionArchiveOrDelete    SolutionKind = "archive-or-delete"
	SolutionRenameArchive      SolutionKind = "rename-archive"
	SolutionConvertOrIgnore    SolutionKind = "convert-or-ignore"
	SolutionVerifyInstallation SolutionKind = "verify-installation"
	SolutionOpenReference      SolutionKind = "open-reference"
	SolutionRunAutoFix         SolutionKind = "run-autofix"
)

// Solution is a remediation attached to a Problem. Command, when set, is an
// argv that performs or assists the fix.
type Solution struct {
	Kind    SolutionKind `json:"kind" yaml:"kind"`
	Message string       `json:"message" yaml:"message"`
	Command []string     `json:"command,omitempty" yaml:"command,omitempty"`
}

// Message templates. %{token} placeholders are expanded by Expand; %% is a
// literal percent sign.
const (
	tmplJunkFile = "%{name} is a junk file not used by the game or mod managers.\n" +
		"It can either be deleted or ignored."
	tmplJunkFolder = "%{name} is a junk folder not used by the game or mod managers.\n" +
		"It can either be deleted or ignored."
	tmplLoosePrevis = "Loose previs files should be packed so they only win conflicts according to their plugin's " +
		"load order, or deleted if unnecessary due to later previs plugins."
	tmplAnimTextData = "The existence of unpacked AnimTextData may cause the game to crash.\n" +
		"The folder should be packed in a BA2 or deleted."
	tmplCounterpartFound = "Expected format found (%{found}).\n" +
		"If %{name} is not referenced by any plugin's %{records}records, it can likely be deleted or ignored."
	tmplCounterpartMissing = "Expected format NOT found (%{expected}).\n" +
		"This file may need to be converted and relevant plugins updated for the new file name.\n" +
		"If %{name} is not referenced by any plugin's %{records}records, it can likely be ignored."
	tmplMisplacedDLL  = "DLL files are only loaded from F4SE/Plugins. %{name} can likely be deleted or moved."
	tmplRenameArchive = "This is not a valid archive name and won't be loaded by the game.\n" +
		"Archives must be named the same as a plugin with an added suffix.\n" +
		"Example: %{stem} - Main.ba2"
	tmplUnreadable = "%{name} could not be read (%{reason}).\n" +
		"Check file permissions, or verify the installation if this is a base game file."
	tmplCorrupt = "%{name} is corrupt or not in the expected format (%{detail}).\n" +
		"Reinstall the mod that provides it, or verify the installation if this is a base game file."
	tmplWrongVersion = "%{name} is a %{version} archive, which the %{install} game cannot load.\n" +
		"Patch the archive version with the archive patcher."
	tmplScriptOverride = "%{name} overrides a Script Extender script (%{detail}).\n" +
		"Mods overriding these scripts may break the Script Extender. Remove the override unless it is intended."
	tmplComplexSorter = "This INI references \"Addon Index\", which crashes current Complex Sorter versions.\n" +
		"Run the automatic fix to replace it with \"Parent Combination Index\"."
	tmplWrongPlugin = "%{name} is an F4SE plugin that does not support the %{install} game and will not load.\n" +
		"Install the version of the mod made for your game version, or remove it."
	tmplFileNotFound = "%{name} is listed as enabled but could not be found.\n" +
		"Disable it in the load order or reinstall the mod that provides it."
	tmplFixCommand = "cmscan fix --yes --path %{path}"
)

// Expand replaces %{token} placeholders in tmpl with values from tokens.
// An unknown token or an unterminated placeholder is an error.
func Expand(tmpl string, tokens map[string]string) (string, error) {
	var b strings.Builder
	tokenIndex := -1
	for i := 0; i < len(tmpl); i++ {
		ch := tmpl[i]
		if ch == '%' && i != len(tmpl)-1 && tmpl[i+1] == '%' {
			b.WriteByte('%')
			i++
		} else if ch == '%' && i != len(tmpl)-1 && tmpl[i+1] == '{' {
			tokenIndex = i
			i++
		} else if ch == '}' && tokenIndex != -1 {
			token := tmpl[tokenIndex+2 : i]
			value, ok := tokens[token]
			if !ok {
				return "", fmt.Errorf("invalid token %%{%s}", token)
			}
			b.WriteString(value)
			tokenIndex = -1
		} else if tokenIndex == -1 {
			b.WriteByte(ch)
		}
	}
	if tokenIndex != -1 {
		return "", fmt.Errorf("unmatched { at position (%d) in template: %s", tokenIndex, tmpl)
	}
	return b.String(), nil
}

// ExpandCommand expands a command template into an argv. Token values are
// shell quoted before splitting so they always stay a single argument.
func ExpandCommand(tmpl string, tokens map[string]string) ([]string, error) {
	quoted := make(map[string]string, len(tokens))
	for k, v := range tokens {
		quoted[k] = shellquote.Join(v)
	}
	cmd, err := Expand(tmpl, quoted)
	if err != nil {
		return nil, err
	}
	argv, err := shellquote.Split(cmd)
	if err != nil {
		return nil, fmt.Errorf("failed to parse command template: %w", err)
	}
	return argv, nil
}

// newSolution builds a Solution from a built-in template. The templates are
// constants, so an expansion failure is a programming error.
func newSolution(kind SolutionKind, tmpl string, tokens map[string]string) *Solution {
	msg, err := Expand(tmpl, tokens)
	if err != nil {
		panic(fmt.Sprintf("solution template for %s: %v", kind, err))
	}
	return &Solution{Kind: kind, Message: msg}
}

// fixSolution is a run-autofix solution carrying the cmscan invocation that
// applies the fix to path.
func fixSolution(tmpl string, tokens map[string]string, path string) *Solution {
	s := newSolution(SolutionRunAutoFix, tmpl, tokens)
	cmd, err := ExpandCommand(tmplFixCommand, map[string]string{"path": path})
	if err != nil {
		panic(fmt.Sprintf("fix command template: %v", err))
	}
	s.Command = cmd
	return s
}
