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
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"path"
	"strings"

	"github.com/spf13/afero"
)

// ErrUnreadable wraps every failure to obtain a complete header window: the
// file could not be opened, vanished, was denied, or was shorter than the
// window.
var ErrUnreadable = errors.New("unreadable")

// ContainerKind identifies a container format by file extension.
type ContainerKind int

const (
	ContainerNone ContainerKind = iota
	ContainerArchive
	ContainerModule
)

// KindOf returns the container kind implied by the extension of name.
func KindOf(name string) ContainerKind {
	switch strings.ToLower(path.Ext(name)) {
	case ".ba2":
		return ContainerArchive
	case ".esm", ".esp", ".esl":
		return ContainerModule
	default:
		return ContainerNone
	}
}

// IsLightModuleName reports whether the module is light by extension alone.
func IsLightModuleName(name string) bool {
	return strings.EqualFold(path.Ext(name), ".esl")
}

// ReadArchiveHeader reads the fixed archive header window from path.
func ReadArchiveHeader(fsys afero.Fs, path string) ([ArchiveHeaderSize]byte, error) {
	var head [ArchiveHeaderSize]byte
	err := readWindow(fsys, path, head[:])
	return head, err
}

// ReadModuleHeader reads the fixed module header window from path.
func ReadModuleHeader(fsys afero.Fs, path string) ([ModuleHeaderSize]byte, error) {
	var head [ModuleHeaderSize]byte
	err := readWindow(fsys, path, head[:])
	return head, err
}

// ClassifyArchiveFile reads and probes an archive. A non-nil error always
// wraps ErrUnreadable and the classification must be ignored.
func ClassifyArchiveFile(fsys afero.Fs, path string) (ArchiveClassification, error) {
	head, err := ReadArchiveHeader(fsys, path)
	if err != nil {
		return ArchiveClassification{}, err
	}
	return ProbeArchive(head), nil
}

// ClassifyModuleFile reads and probes a module.
func ClassifyModuleFile(fsys afero.Fs, path string) (ModuleClassification, error) {
	head, err := ReadModuleHeader(fsys, path)
	if err != nil {
		return ModuleClassification{}, err
	}
	return ProbeModule(head), nil
}

func readWindow(fsys afero.Fs, path string, buf []byte) error {
	f, err := fsys.Open(path)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnreadable, err)
	}
	defer f.Close()

	if _, err := io.ReadFull(f, buf); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return fmt.Errorf("%w: file is shorter than the %d byte header", ErrUnreadable, len(buf))
		}
		return fmt.Errorf("%w: %w", ErrUnreadable, err)
	}
	return nil
}

// Checksum returns the upper-case hex CRC-32 (IEEE) of a file, ignoring the
// first skip bytes.
func Checksum(fsys afero.Fs, path string, skip int64) (string, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	if skip > 0 {
		if _, err := f.Seek(skip, io.SeekStart); err != nil {
			return "", err
		}
	}
	h := crc32.NewIEEE()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return fmt.Sprintf("%08X", h.Sum32()), nil
}
