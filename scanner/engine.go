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
	"context"
	"fmt"
	"io/fs"
	"log"
	"path"
	"path/filepath"
	"strings"

	"github.com/cmtoolkit/cmscan/scanner/formats"
	"github.com/cmtoolkit/cmscan/scanner/overlay"
	"github.com/spf13/afero"
)

// Options configures an Engine. Enabled archive and module paths are
// relative to the data directory.
type Options struct {
	EnabledArchives []string
	EnabledModules  []string
	Flags           RuleFlags
	InstallType     InstallType
	Language        string
	// ScriptHashes maps upper-case CRC-32 hex digests of known problematic
	// Script Extender script overrides to a description.
	ScriptHashes map[string]string
}

// Engine applies the rule tables to the layers of an overlay index.
type Engine struct {
	flags           RuleFlags
	install         InstallType
	suffixes        []string
	enabledArchives nameSet
	enabledModules  nameSet
	scriptHashes    map[string]string
}

func NewEngine(opts Options) *Engine {
	e := &Engine{
		flags:           opts.Flags,
		install:         opts.InstallType,
		suffixes:        ArchiveSuffixes(opts.Language),
		enabledArchives: nameSet{},
		enabledModules:  nameSet{},
		scriptHashes:    map[string]string{},
	}
	for _, a := range opts.EnabledArchives {
		e.enabledArchives[overlay.Key(a)] = struct{}{}
	}
	for _, m := range opts.EnabledModules {
		e.enabledModules[overlay.Key(m)] = struct{}{}
	}
	for h, desc := range opts.ScriptHashes {
		e.scriptHashes[strings.ToUpper(h)] = desc
	}
	return e
}

// Scan walks every present layer of idx in priority order and returns the
// problems found. Each path is evaluated only in the layer that owns it, so
// the result holds at most one problem per category and relative path.
// The only error returned is the context's.
func (e *Engine) Scan(ctx context.Context, idx *overlay.Index) ([]Problem, error) {
	var problems []Problem
	for ordinal := range idx.Layers() {
		found, err := e.ScanLayer(ctx, idx, ordinal)
		problems = append(problems, found...)
		if err != nil {
			return problems, err
		}
	}
	return problems, nil
}

// ScanLayer walks a single layer. Paths owned by other layers are skipped,
// but folders are still descended since they can contain files this layer
// owns. Top-level folder rules prune independently in every layer.
func (e *Engine) ScanLayer(ctx context.Context, idx *overlay.Index, ordinal int) ([]Problem, error) {
	if !idx.Present(ordinal) {
		return nil, nil
	}
	w := &layerWalk{
		engine:  e,
		idx:     idx,
		fs:      idx.Fs(),
		ordinal: ordinal,
		root:    idx.Layers()[ordinal].Path,
	}
	err := w.run(ctx)
	return w.problems, err
}

type layerWalk struct {
	engine   *Engine
	idx      *overlay.Index
	fs       afero.Fs
	ordinal  int
	root     string
	problems []Problem
}

func (w *layerWalk) run(ctx context.Context) error {
	for _, info := range w.readDir("") {
		if info.IsDir() {
			// Cancellation is only honoured between top-level folders.
			if err := ctx.Err(); err != nil {
				return err
			}
			w.topFolder(info.Name())
			continue
		}
		w.file("", info.Name(), "", nil)
	}
	return nil
}

func (w *layerWalk) readDir(rel string) []fs.FileInfo {
	dir := filepath.Join(w.root, filepath.FromSlash(rel))
	infos, err := afero.ReadDir(w.fs, dir)
	if err != nil {
		log.Printf("WARNING: skipping unreadable folder %s: %v", dir, err)
		return nil
	}
	return infos
}

// owned returns the entry for rel if this layer owns it.
func (w *layerWalk) owned(rel string) (overlay.Entry, bool) {
	e, ok := w.idx.Lookup(rel)
	if !ok || e.Layer != w.ordinal {
		return overlay.Entry{}, false
	}
	return e, true
}

func (w *layerWalk) topFolder(name string) {
	if w.idx.SkipDir(name) {
		return
	}
	flags := w.engine.flags
	lower := strings.ToLower(name)

	if junkRootFolders.has(lower) {
		if e, ok := w.owned(name); ok && flags.JunkFiles {
			w.emit(CategoryJunkFile, e, "Junk Folder",
				newSolution(SolutionDeleteOrIgnore, tmplJunkFolder, map[string]string{"name": name}))
		}
		return
	}

	allowed, ok := dataWhitelist[lower]
	if !ok {
		return
	}

	if lower == folderVis && flags.LoosePrevis {
		if e, ok := w.owned(name); ok {
			w.emit(CategoryLoosePrevis, e, "Loose previs folder found",
				newSolution(SolutionArchiveOrDelete, tmplLoosePrevis, nil))
		}
		return
	}

	w.descend(name, lower, allowed)
}

func (w *layerWalk) descend(rel, top string, allowed nameSet) {
	flags := w.engine.flags
	for _, info := range w.readDir(rel) {
		name := info.Name()
		if !info.IsDir() {
			w.file(rel, name, top, allowed)
			continue
		}
		if w.idx.SkipDir(name) {
			continue
		}

		child := path.Join(rel, name)
		if top == folderMeshes {
			switch strings.ToLower(name) {
			case folderPrecombined:
				if flags.LoosePrevis {
					if e, ok := w.owned(child); ok {
						w.emit(CategoryLoosePrevis, e, "Loose previs folder found",
							newSolution(SolutionArchiveOrDelete, tmplLoosePrevis, nil))
					}
					continue
				}
			case folderAnimTextData:
				if e, ok := w.owned(child); ok {
					w.emit(CategoryAnimTextDataFolder, e, "Loose AnimTextData folder found",
						newSolution(SolutionArchiveOrDelete, tmplAnimTextData, nil))
				}
				continue
			}
		}
		w.descend(child, top, allowed)
	}
}

// file applies the file rules. top is the lower-case top-level folder, empty
// for files directly in the data root. allowed is that folder's extension
// whitelist, nil when every extension is accepted.
func (w *layerWalk) file(dirRel, name, top string, allowed nameSet) {
	if w.idx.SkipFile(name) {
		return
	}
	e, ok := w.owned(path.Join(dirRel, name))
	if !ok {
		return
	}
	flags := w.engine.flags
	lower := strings.ToLower(name)

	if isJunkFile(lower) {
		if flags.JunkFiles {
			w.emit(CategoryJunkFile, e, "Junk File",
				newSolution(SolutionDeleteOrIgnore, tmplJunkFile, map[string]string{"name": name}))
		}
		return
	}

	ext := strings.TrimPrefix(path.Ext(lower), ".")
	if ext == "" {
		return
	}
	kind := formats.KindOf(lower)

	if flags.WrongFormat {
		switch {
		case allowed != nil && !allowed.has(ext):
			w.unexpectedFormat(e, ext)
		case ext == "dll" && !strings.EqualFold(dirRel, folderDLLs):
			w.emit(CategoryMisplacedDLL, e, "DLL outside F4SE/Plugins",
				newSolution(SolutionDeleteOrIgnore, tmplMisplacedDLL, map[string]string{"name": name}))
		case kind == formats.ContainerArchive:
			w.archiveName(e)
		}
	}

	if top == folderScripts && flags.ProblemOverrides && extenderScripts.has(lower) && strings.EqualFold(dirRel, folderScripts) {
		w.scriptOverride(e)
	}
	if top == folderComplexSorter && ext == "ini" {
		w.complexSorterConfig(e)
	}

	switch kind {
	case formats.ContainerArchive:
		w.validateArchive(e)
	case formats.ContainerModule:
		w.validateModule(e)
	}
}

func (w *layerWalk) emit(c Category, e overlay.Entry, summary string, s *Solution, evidence ...string) {
	w.problems = append(w.problems, newProblem(c, e, summary, s, evidence...))
}

func topName(rel string) string {
	if i := strings.IndexByte(rel, '/'); i > 0 {
		return rel[:i]
	}
	return "Data"
}

func (w *layerWalk) unexpectedFormat(e overlay.Entry, ext string) {
	summary := fmt.Sprintf("Unexpected format in %s", topName(e.RelPath))
	proper, ok := properFormats[ext]
	if !ok {
		w.emit(CategoryUnexpectedFormat, e, summary, nil)
		return
	}

	stem := strings.TrimSuffix(e.RelPath, path.Ext(e.RelPath))
	var found []string
	for _, pe := range proper {
		if c, ok := w.idx.Lookup(stem + "." + pe); ok && !c.Dir {
			found = append(found, path.Base(c.RelPath))
		}
	}
	tokens := map[string]string{
		"name":     path.Base(e.RelPath),
		"records":  recordTypes[ext],
		"found":    strings.Join(found, ", "),
		"expected": strings.Join(proper, ", "),
	}
	if len(found) > 0 {
		w.emit(CategoryUnexpectedFormat, e, summary,
			newSolution(SolutionDeleteOrIgnore, tmplCounterpartFound, tokens), found...)
		return
	}
	w.emit(CategoryUnexpectedFormat, e, summary,
		newSolution(SolutionConvertOrIgnore, tmplCounterpartMissing, tokens))
}

// archiveName checks that an archive is named after a module in the same
// folder plus one of the approved suffixes.
func (w *layerWalk) archiveName(e overlay.Entry) {
	base := path.Base(e.RelPath)
	if baseArchives.has(strings.ToLower(base)) {
		return
	}
	if w.engine.enabledArchives.has(overlay.Key(e.RelPath)) {
		return
	}

	stem := strings.TrimSuffix(base, path.Ext(base))
	dir := path.Dir(e.RelPath)
	for _, suffix := range w.engine.suffixes {
		if len(stem) <= len(suffix) || !strings.EqualFold(stem[len(stem)-len(suffix):], suffix) {
			continue
		}
		plugin := stem[:len(stem)-len(suffix)]
		if w.moduleExists(dir, plugin) {
			return
		}
		w.emit(CategoryInvalidArchiveName, e, "Archive has no matching plugin",
			newSolution(SolutionRenameArchive, tmplRenameArchive, map[string]string{"stem": plugin}),
			plugin+".esm", plugin+".esp", plugin+".esl")
		return
	}

	example := stem
	if i := strings.LastIndex(stem, " - "); i > 0 {
		example = stem[:i]
	}
	w.emit(CategoryInvalidArchiveName, e, "Invalid Archive Name",
		newSolution(SolutionRenameArchive, tmplRenameArchive, map[string]string{"stem": example}),
		w.engine.suffixes...)
}

func (w *layerWalk) moduleExists(dir, plugin string) bool {
	for _, ext := range []string{".esm", ".esp", ".esl"} {
		rel := path.Join(dir, plugin+ext)
		if e, ok := w.idx.Lookup(rel); ok && !e.Dir {
			return true
		}
		if w.engine.enabledModules.has(overlay.Key(rel)) {
			return true
		}
	}
	return false
}

func (w *layerWalk) validateArchive(e overlay.Entry) {
	_, found, _ := CheckArchive(w.fs, e, w.engine.install, w.engine.flags.WrongFormat)
	w.problems = append(w.problems, found...)
}

func (w *layerWalk) validateModule(e overlay.Entry) {
	_, found, _ := CheckModule(w.fs, e)
	w.problems = append(w.problems, found...)
}

func (w *layerWalk) scriptOverride(e overlay.Entry) {
	if len(w.engine.scriptHashes) == 0 {
		return
	}
	sum, err := formats.Checksum(w.fs, e.Path, 0)
	if err != nil {
		log.Printf("WARNING: cannot hash %s: %v", e.Path, err)
		return
	}
	desc, ok := w.engine.scriptHashes[sum]
	if !ok {
		return
	}
	w.emit(CategoryScriptOverride, e, "Script Extender script overridden",
		newSolution(SolutionDeleteOrIgnore, tmplScriptOverride, map[string]string{"name": path.Base(e.RelPath), "detail": desc}),
		"CRC32 "+sum)
}

func (w *layerWalk) complexSorterConfig(e overlay.Entry) {
	data, err := afero.ReadFile(w.fs, e.Path)
	if err != nil {
		log.Printf("WARNING: cannot read %s: %v", e.Path, err)
		return
	}
	if !referencesAddonIndex(string(data)) {
		return
	}
	w.emit(CategoryToolConfigError, e, "Outdated Complex Sorter INI",
		fixSolution(tmplComplexSorter, nil, e.Path))
}
