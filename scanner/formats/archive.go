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

import "fmt"

// ArchiveHeaderSize is the number of leading bytes of a BA2 archive needed to
// classify it.
const ArchiveHeaderSize = 12

var (
	ArchiveMagic   = [4]byte{'B', 'T', 'D', 'X'}
	KindTagGeneral = [4]byte{'G', 'N', 'R', 'L'}
	KindTagTexture = [4]byte{'D', 'X', '1', '0'}
)

// ArchiveVersion is the version byte stored at offset 4 of an archive.
type ArchiveVersion uint8

const (
	ArchiveVersionOG  ArchiveVersion = 1
	ArchiveVersionNG7 ArchiveVersion = 7
	ArchiveVersionNG  ArchiveVersion = 8
)

// IsNextGen reports whether archives of this version only load on the
// next-gen game executable.
func (v ArchiveVersion) IsNextGen() bool {
	return v == ArchiveVersionNG7 || v == ArchiveVersionNG
}

func (v ArchiveVersion) String() string {
	switch v {
	case ArchiveVersionOG:
		return "v1 (OG)"
	case ArchiveVersionNG7:
		return "v7 (NG)"
	case ArchiveVersionNG:
		return "v8 (NG)"
	default:
		return fmt.Sprintf("v%d (unknown)", uint8(v))
	}
}

// ArchiveKind is the content kind tag stored at offset 8 of an archive.
type ArchiveKind string

const (
	ArchiveKindGeneral ArchiveKind = "General"
	ArchiveKindTexture ArchiveKind = "Texture"
)

// ArchiveStatus tags the outcome of ProbeArchive.
type ArchiveStatus int

const (
	ArchiveValid ArchiveStatus = iota
	ArchiveInvalidMagic
	ArchiveInvalidVersion
	ArchiveInvalidKind
)

func (s ArchiveStatus) String() string {
	switch s {
	case ArchiveValid:
		return "valid"
	case ArchiveInvalidMagic:
		return "invalid magic"
	case ArchiveInvalidVersion:
		return "invalid version"
	case ArchiveInvalidKind:
		return "invalid kind"
	default:
		return "unknown"
	}
}

// ArchiveClassification is the result of probing an archive header. Version
// and Kind are only meaningful when Status is ArchiveValid; the raw fields
// always carry the observed bytes for diagnostics.
type ArchiveClassification struct {
	Status     ArchiveStatus
	Version    ArchiveVersion
	Kind       ArchiveKind
	RawMagic   [4]byte
	RawVersion byte
	RawKind    [4]byte
}

// Valid reports whether the header was recognised.
func (c ArchiveClassification) Valid() bool {
	return c.Status == ArchiveValid
}

// Detail describes why a header was rejected, quoting the offending bytes.
func (c ArchiveClassification) Detail() string {
	switch c.Status {
	case ArchiveInvalidMagic:
		return fmt.Sprintf("unexpected magic %q, expected %q", c.RawMagic[:], ArchiveMagic[:])
	case ArchiveInvalidVersion:
		return fmt.Sprintf("unknown version %d", c.RawVersion)
	case ArchiveInvalidKind:
		return fmt.Sprintf("unknown format %q", c.RawKind[:])
	default:
		return fmt.Sprintf("%s %s", c.Kind, c.Version)
	}
}

// ProbeArchive classifies a complete archive header window. It performs no I/O;
// callers that could not read the full window must treat the file as
// unreadable instead of calling this.
func ProbeArchive(head [ArchiveHeaderSize]byte) ArchiveClassification {
	c := ArchiveClassification{RawVersion: head[4]}
	copy(c.RawMagic[:], head[0:4])
	copy(c.RawKind[:], head[8:12])

	if c.RawMagic != ArchiveMagic {
		c.Status = ArchiveInvalidMagic
		return c
	}

	switch v := ArchiveVersion(c.RawVersion); v {
	case ArchiveVersionOG, ArchiveVersionNG7, ArchiveVersionNG:
		c.Version = v
	default:
		c.Status = ArchiveInvalidVersion
		return c
	}

	switch c.RawKind {
	case KindTagGeneral:
		c.Kind = ArchiveKindGeneral
	case KindTagTexture:
		c.Kind = ArchiveKindTexture
	default:
		c.Status = ArchiveInvalidKind
		return c
	}

	c.Status = ArchiveValid
	return c
}
