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

package formats

import (
	"encoding/binary"
	"fmt"
	"math"
)

// ModuleHeaderSize is the number of leading bytes of a module (esm/esp/esl)
// needed to classify it.
const ModuleHeaderSize = 34

// FlagLight marks a module as light (ESL-flagged).
const FlagLight uint32 = 0x0200

var (
	ModuleMagic       = [4]byte{'T', 'E', 'S', '4'}
	RecordHeaderMagic = [4]byte{'H', 'E', 'D', 'R'}

	hedrVersionLegacy  = [4]byte{0x33, 0x33, 0x73, 0x3f} // 0.95
	hedrVersionCurrent = [4]byte{0x00, 0x00, 0x80, 0x3f} // 1.0
)

// ModuleVersion is the HEDR format version family of a module.
type ModuleVersion int

const (
	ModuleVersionUnknown ModuleVersion = iota
	ModuleVersionLegacy
	ModuleVersionCurrent
)

func (v ModuleVersion) String() string {
	switch v {
	case ModuleVersionLegacy:
		return "HEDR v0.95"
	case ModuleVersionCurrent:
		return "HEDR v1.00"
	default:
		return "HEDR unknown"
	}
}

// ModuleStatus tags the outcome of ProbeModule.
type ModuleStatus int

const (
	ModuleValid ModuleStatus = iota
	ModuleInvalidMagic
	ModuleInvalidRecordMagic
)

func (s ModuleStatus) String() string {
	switch s {
	case ModuleValid:
		return "valid"
	case ModuleInvalidMagic:
		return "invalid magic"
	case ModuleInvalidRecordMagic:
		return "invalid record header"
	default:
		return "unknown"
	}
}

// ModuleClassification is the result of probing a module header.
type ModuleClassification struct {
	Status     ModuleStatus
	Flags      uint32
	Version    ModuleVersion
	RawMagic   [4]byte
	RawRecord  [4]byte
	RawVersion [4]byte
}

func (c ModuleClassification) Valid() bool {
	return c.Status == ModuleValid
}

// Light reports whether the light flag is set in the header.
func (c ModuleClassification) Light() bool {
	return c.Flags&FlagLight != 0
}

// VersionValue decodes the raw HEDR version as a little-endian float.
func (c ModuleClassification) VersionValue() float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(c.RawVersion[:]))
}

func (c ModuleClassification) Detail() string {
	switch c.Status {
	case ModuleInvalidMagic:
		return fmt.Sprintf("unexpected magic %q, expected %q", c.RawMagic[:], ModuleMagic[:])
	case ModuleInvalidRecordMagic:
		return fmt.Sprintf("unexpected record header %q, expected %q", c.RawRecord[:], RecordHeaderMagic[:])
	}
	if c.Version == ModuleVersionUnknown {
		return fmt.Sprintf("unknown HEDR version %.2f (% X)", c.VersionValue(), c.RawVersion[:])
	}
	return c.Version.String()
}

// ProbeModule classifies a complete module header window. Both the file magic
// and the HEDR record magic must match before any other field is trusted.
func ProbeModule(head [ModuleHeaderSize]byte) ModuleClassification {
	var c ModuleClassification
	copy(c.RawMagic[:], head[0:4])
	copy(c.RawRecord[:], head[24:28])
	copy(c.RawVersion[:], head[30:34])

	if c.RawMagic != ModuleMagic {
		c.Status = ModuleInvalidMagic
		return c
	}
	if c.RawRecord != RecordHeaderMagic {
		c.Status = ModuleInvalidRecordMagic
		return c
	}

	c.Flags = binary.LittleEndian.Uint32(head[8:12])
	switch c.RawVersion {
	case hedrVersionLegacy:
		c.Version = ModuleVersionLegacy
	case hedrVersionCurrent:
		c.Version = ModuleVersionCurrent
	default:
		c.Version = ModuleVersionUnknown
	}
	c.Status = ModuleValid
	return c
}
