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

import "errors"

var (
	ErrScanInProgress   = errors.New("a scan is already in progress")
	ErrNoDataDirectory  = errors.New("no data directory found")
	ErrUnsupportedGame  = errors.New("unsupported game")
	ErrNothingToFix     = errors.New("problem has no automatic fix")
	ErrFixNotApplicable = errors.New("no fixes were needed")
)

// InstallType is the game executable generation.
type InstallType string

const (
	InstallOldGen    InstallType = "Old-Gen"
	InstallDownGrade InstallType = "Down-Grade"
	InstallNextGen   InstallType = "Next-Gen"
	InstallUnknown   InstallType = "Unknown"
	InstallNotFound  InstallType = "Not Found"
)

// OldGenExecutable reports whether the game runs the old-gen executable,
// which only loads version 1 archives. Down-graded installs keep their
// next-gen data files but run the old executable.
func (t InstallType) OldGenExecutable() bool {
	return t == InstallOldGen || t == InstallDownGrade
}
