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

// Package overlay resolves the merged view of a set of prioritised mod
// staging directories stacked on top of the game's data directory.
package overlay

import (
	"fmt"
	"io/fs"
	"log"
	"path"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"golang.org/x/exp/slices"
)

// DefaultSkipDirs are folder names never indexed regardless of the mod
// manager's own settings. They hold tool output that the game never loads.
var DefaultSkipDirs = []string{"bodyslide", "fo4edit", "robco_patcher", "source"}

// DefaultSkipSuffixes are file name suffixes never indexed.
var DefaultSkipSuffixes = []string{".vortex_backup"}

// Layer is one staged file tree. An empty Name marks the unmanaged data
// directory.
type Layer struct {
	Name string `json:"name" yaml:"name"`
	Path string `json:"path" yaml:"path"`
}

// Unmanaged reports whether the layer is the physical data directory.
func (l Layer) Unmanaged() bool {
	return l.Name == ""
}

// Entry is the winning contributor for one logical relative path.
type Entry struct {
	RelPath string // as spelled by the winning layer, "/" separated
	Path    string // physical location
	Mod     string // "" when unmanaged
	Layer   int    // ordinal into Index.Layers()
	Dir     bool
}

// Options controls which names are excluded from the index. Names are
// compared case-insensitively.
type Options struct {
	SkipDirs     []string
	SkipSuffixes []string
}

// Index maps case-folded relative paths to their single owning layer.
type Index struct {
	fs           afero.Fs
	layers       []Layer
	present      []bool
	entries      map[string]Entry
	skipDirs     map[string]struct{}
	skipSuffixes []string

	// Warnings lists layers that could not be indexed. They are reported once
	// here rather than per file.
	Warnings []string
}

// Key normalises a relative path into its index key. Both separators are
// accepted since mod manager files are written on Windows.
func Key(rel string) string {
	rel = strings.Trim(strings.ReplaceAll(rel, `\`, "/"), "/")
	return strings.ToLower(path.Clean(rel))
}

// Build indexes mods (highest priority first) and then baseDir as the lowest
// priority unmanaged layer. The first layer to contribute a path owns it.
// Missing or unreadable layers are skipped with a warning.
func Build(fsys afero.Fs, mods []Layer, baseDir string, opts Options) *Index {
	idx := &Index{
		fs:       fsys,
		entries:  map[string]Entry{},
		skipDirs: map[string]struct{}{},
	}
	for _, d := range append(slices.Clone(DefaultSkipDirs), opts.SkipDirs...) {
		idx.skipDirs[strings.ToLower(d)] = struct{}{}
	}
	for _, s := range append(slices.Clone(DefaultSkipSuffixes), opts.SkipSuffixes...) {
		if s != "" {
			idx.skipSuffixes = append(idx.skipSuffixes, strings.ToLower(s))
		}
	}

	idx.layers = append(slices.Clone(mods), Layer{Path: baseDir})
	idx.present = make([]bool, len(idx.layers))
	for ordinal := range idx.layers {
		idx.present[ordinal] = idx.indexLayer(ordinal)
	}
	return idx
}

func (idx *Index) indexLayer(ordinal int) bool {
	layer := idx.layers[ordinal]
	info, err := idx.fs.Stat(layer.Path)
	if err != nil || !info.IsDir() {
		if err == nil {
			err = fmt.Errorf("not a directory")
		}
		idx.warn("skipping layer %s at %s: %v", layer.display(), layer.Path, err)
		return false
	}

	err = afero.Walk(idx.fs, layer.Path, func(p string, info fs.FileInfo, err error) error {
		if err != nil {
			if p == layer.Path {
				return err
			}
			log.Printf("WARNING: cannot index %s: %v", p, err)
			return nil
		}
		if p == layer.Path {
			return nil
		}
		if info.IsDir() && idx.SkipDir(info.Name()) {
			return filepath.SkipDir
		}
		if !info.IsDir() && idx.SkipFile(info.Name()) {
			return nil
		}

		rel, err := filepath.Rel(layer.Path, p)
		if err != nil {
			return err
		}
		key := Key(rel)
		if _, taken := idx.entries[key]; taken {
			return nil
		}
		idx.insert(key, Entry{
			RelPath: filepath.ToSlash(rel),
			Path:    p,
			Mod:     layer.Name,
			Layer:   ordinal,
			Dir:     info.IsDir(),
		})
		return nil
	})
	if err != nil {
		idx.warn("layer %s at %s is unreadable: %v", layer.display(), layer.Path, err)
		return false
	}
	return true
}

func (idx *Index) insert(key string, e Entry) {
	if prev, ok := idx.entries[key]; ok {
		panic(fmt.Sprintf("overlay: %q indexed twice (layers %d and %d)", key, prev.Layer, e.Layer))
	}
	idx.entries[key] = e
}

func (idx *Index) warn(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	log.Printf("WARNING: %s", msg)
	idx.Warnings = append(idx.Warnings, msg)
}

func (l Layer) display() string {
	if l.Unmanaged() {
		return "<data>"
	}
	return fmt.Sprintf("%q", l.Name)
}

// Fs returns the filesystem the index was built from.
func (idx *Index) Fs() afero.Fs {
	return idx.fs
}

// Layers returns all layers in priority order, the unmanaged layer last.
func (idx *Index) Layers() []Layer {
	return slices.Clone(idx.layers)
}

// Present reports whether the layer was indexed.
func (idx *Index) Present(ordinal int) bool {
	return ordinal >= 0 && ordinal < len(idx.present) && idx.present[ordinal]
}

// Len is the number of indexed paths.
func (idx *Index) Len() int {
	return len(idx.entries)
}

// Lookup returns the winning entry for rel.
func (idx *Index) Lookup(rel string) (Entry, bool) {
	e, ok := idx.entries[Key(rel)]
	return e, ok
}

// Owner returns the name of the mod that wins rel; "" means unmanaged.
func (idx *Index) Owner(rel string) (string, bool) {
	e, ok := idx.Lookup(rel)
	return e.Mod, ok
}

// OwnedBy reports whether rel is won by the layer with the given ordinal.
func (idx *Index) OwnedBy(rel string, ordinal int) bool {
	e, ok := idx.Lookup(rel)
	return ok && e.Layer == ordinal
}

// Entries returns every entry sorted by key.
func (idx *Index) Entries() []Entry {
	keys := make([]string, 0, len(idx.entries))
	for k := range idx.entries {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	out := make([]Entry, 0, len(keys))
	for _, k := range keys {
		out = append(out, idx.entries[k])
	}
	return out
}

// SkipDir reports whether a folder with this name is excluded.
func (idx *Index) SkipDir(name string) bool {
	_, ok := idx.skipDirs[strings.ToLower(name)]
	return ok
}

// SkipFile reports whether a file with this name is excluded.
func (idx *Index) SkipFile(name string) bool {
	lower := strings.ToLower(name)
	for _, s := range idx.skipSuffixes {
		if strings.HasSuffix(lower, s) {
			return true
		}
	}
	return false
}
