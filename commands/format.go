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
	"github.com/thediveo/enumflag/v2"
)

// OutputFormat selects how scan results are written.
type OutputFormat enumflag.Flag

const (
	FormatText OutputFormat = iota
	FormatJSON
	FormatYAML
	FormatXLSX
)

// OutputFormatIds maps formats to their --format names.
var OutputFormatIds = map[OutputFormat][]string{
	FormatText: {"text"},
	FormatJSON: {"json"},
	FormatYAML: {"yaml", "yml"},
	FormatXLSX: {"xlsx", "excel"},
}

func (f OutputFormat) String() string {
	if names, ok := OutputFormatIds[f]; ok {
		return names[0]
	}
	return "unknown"
}

// NewFormatFlag wraps f for registration with a cobra flag set.
func NewFormatFlag(f *OutputFormat) *enumflag.EnumFlagValue[OutputFormat] {
	return enumflag.New(f, "format", OutputFormatIds, enumflag.EnumCaseInsensitive)
}
