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

// Package inspector examines a game installation: which executable
// generation is installed, which modules and archives the game will load,
// and whether those files can be loaded at all.
package inspector

import (
	"errors"
	"fmt"
	"log"
	"path"
	"path/filepath"
	"strings"

	"github.com/cmtoolkit/cmscan/scanner"
	"github.com/cmtoolkit/cmscan/scanner/formats"
	"github.com/cmtoolkit/cmscan/scanner/overlay"
	"github.com/spf13/afero"
)

// Game engine limits.
const (
	MaxGeneralArchives = 255
	MaxFullModules     = 254
	MaxLightModules    = 4096
)

const (
	startupArchive    = "Fallout4 - Startup.ba2"
	nvflexArchive     = "Fallout4 - Nvflex.ba2"
	nextGenStartupCRC = "A5808F5F"
	archiveHeaderSkip = 12
	gameExecutable    = "Fallout4.exe"
)

var errPluginsNotConfigured = errors.New("plugins.txt is not configured")

// binaries identify the installed generation by CRC-32.
var binaries = []struct {
	name     string
	versions map[string]scanner.InstallType
}{
	{gameExecutable, map[string]scanner.InstallType{
		"C6053902": scanner.InstallOldGen,
		"C5965A2E": scanner.InstallNextGen,
	}},
	{"Fallout4Launcher.exe", map[string]scanner.InstallType{
		"02445570": scanner.InstallOldGen,
		"F6A06FF5": scanner.InstallNextGen,
	}},
	{"steam_api64.dll", map[string]scanner.InstallType{
		"BBD912FC": scanner.InstallOldGen,
		"E36E7B4D": scanner.InstallNextGen,
	}},
}

// Paths locates the installation and the files that decide what it loads.
// Empty paths are skipped.
type Paths struct {
	Game    string
	Data    string // defaults to Game/Data
	Plugins string // plugins.txt
	CCC     string // defaults to Game/Fallout4.ccc
	// INIs are the game settings files, later files overriding earlier ones.
	INIs  []string
	Prefs string
}

type Options struct {
	Paths
	// InstallType and Language skip detection when set.
	InstallType scanner.InstallType
	Language    string
}

// Binary is a game binary and the generation its checksum identifies.
type Binary struct {
	Name        string              `json:"name" yaml:"name"`
	CRC         string              `json:"crc,omitempty" yaml:"crc,omitempty"`
	InstallType scanner.InstallType `json:"install_type" yaml:"install_type"`
}

type Counts struct {
	GeneralArchives    int `json:"general_archives" yaml:"general_archives"`
	TextureArchives    int `json:"texture_archives" yaml:"texture_archives"`
	OldGenArchives     int `json:"old_gen_archives" yaml:"old_gen_archives"`
	NextGenArchives    int `json:"next_gen_archives" yaml:"next_gen_archives"`
	UnreadableArchives int `json:"unreadable_archives" yaml:"unreadable_archives"`
	FullModules        int `json:"full_modules" yaml:"full_modules"`
	LightModules       int `json:"light_modules" yaml:"light_modules"`
	LegacyModules      int `json:"legacy_modules" yaml:"legacy_modules"`
	CurrentModules     int `json:"current_modules" yaml:"current_modules"`
	UnreadableModules  int `json:"unreadable_modules" yaml:"unreadable_modules"`
}

// Exceeded describes every game limit the counts reach or pass.
func (c Counts) Exceeded() []string {
	var out []string
	check := func(what string, n, limit int) {
		if n >= limit {
			out = append(out, fmt.Sprintf("%s limit reached: %d of %d", what, n, limit))
		}
	}
	check("general archive", c.GeneralArchives, MaxGeneralArchives)
	check("full module", c.FullModules, MaxFullModules)
	check("light module", c.LightModules, MaxLightModules)
	return out
}

// Report is the result of Inspect. Enabled paths are relative to the data
// directory, in load order for modules and sorted for archives.
type Report struct {
	GamePath        string              `json:"game_path" yaml:"game_path"`
	DataPath        string              `json:"data_path" yaml:"data_path"`
	InstallType     scanner.InstallType `json:"install_type" yaml:"install_type"`
	Language        string              `json:"language" yaml:"language"`
	Binaries        []Binary            `json:"binaries" yaml:"binaries"`
	EnabledModules  []string            `json:"enabled_modules" yaml:"enabled_modules"`
	EnabledArchives []string            `json:"enabled_archives" yaml:"enabled_archives"`
	Counts          Counts              `json:"counts" yaml:"counts"`
	GameVersion     string              `json:"game_version,omitempty" yaml:"game_version,omitempty"`
	AddressLibrary  string              `json:"address_library,omitempty" yaml:"address_library,omitempty"`
	F4SEPlugins     []F4SEPlugin        `json:"f4se_plugins,omitempty" yaml:"f4se_plugins,omitempty"`
	Problems        []scanner.Problem   `json:"problems,omitempty" yaml:"problems,omitempty"`
	Warnings        []string            `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// EngineOptions configures a rule engine for this installation.
func (r *Report) EngineOptions(flags scanner.RuleFlags, scriptHashes map[string]string) scanner.Options {
	return scanner.Options{
		EnabledArchives: r.EnabledArchives,
		EnabledModules:  r.EnabledModules,
		Flags:           flags,
		InstallType:     r.InstallType,
		Language:        r.Language,
		ScriptHashes:    scriptHashes,
	}
}

func (r *Report) warn(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	log.Printf("WARNING: %s", msg)
	r.Warnings = append(r.Warnings, msg)
}

type inspection struct {
	fs     afero.Fs
	idx    *overlay.Index
	opts   Options
	report *Report
}

// Inspect examines the installation. Enabled files are resolved through idx,
// so a file provided by any layer counts as present. The only error is a
// missing data directory.
func Inspect(fsys afero.Fs, idx *overlay.Index, opts Options) (*Report, error) {
	dataDir := opts.Data
	if dataDir == "" {
		dataDir = filepath.Join(opts.Game, "Data")
	}
	if ok, err := afero.IsDir(fsys, dataDir); err != nil || !ok {
		return nil, fmt.Errorf("%w: %s", scanner.ErrNoDataDirectory, dataDir)
	}
	if opts.CCC == "" && opts.Game != "" {
		opts.CCC = filepath.Join(opts.Game, "Fallout4.ccc")
	}

	in := &inspection{
		fs:   fsys,
		idx:  idx,
		opts: opts,
		report: &Report{
			GamePath: opts.Game,
			DataPath: dataDir,
		},
	}
	in.binaries()
	in.addressLibrary()

	settings := loadSettings(fsys, opts.INIs...)
	in.report.Language = strings.ToLower(opts.Language)
	if in.report.Language == "" {
		in.report.Language = strings.ToLower(settings.value("General", "sLanguage", "en"))
	}

	in.modules()
	in.archives(settings)
	in.f4se()
	for _, msg := range in.report.Counts.Exceeded() {
		in.report.warn("%s", msg)
	}
	return in.report, nil
}

func (in *inspection) binaries() {
	r := in.report
	for _, b := range binaries {
		bin := Binary{Name: b.name, InstallType: scanner.InstallNotFound}
		if in.opts.Game != "" {
			sum, err := formats.Checksum(in.fs, filepath.Join(in.opts.Game, b.name), 0)
			if err == nil {
				bin.CRC = sum
				bin.InstallType = scanner.InstallUnknown
				if t, ok := b.versions[sum]; ok {
					bin.InstallType = t
				}
			}
		}
		r.Binaries = append(r.Binaries, bin)
		if b.name == gameExecutable {
			r.InstallType = bin.InstallType
		}
	}

	if in.opts.InstallType != "" {
		r.InstallType = in.opts.InstallType
		return
	}
	if r.InstallType == scanner.InstallOldGen {
		// A down-graded install runs the old executable over next-gen data.
		sum, err := formats.Checksum(in.fs, filepath.Join(r.DataPath, startupArchive), archiveHeaderSkip)
		if err == nil && sum == nextGenStartupCRC {
			r.InstallType = scanner.InstallDownGrade
		}
	}
}

// resolve finds a data-relative file through the overlay.
func (in *inspection) resolve(rel string) (overlay.Entry, bool) {
	e, ok := in.idx.Lookup(rel)
	return e, ok && !e.Dir
}

func (in *inspection) modules() {
	r := in.report
	seen := map[string]bool{}
	var enabled []overlay.Entry
	add := func(e overlay.Entry) {
		if k := overlay.Key(e.RelPath); !seen[k] {
			seen[k] = true
			enabled = append(enabled, e)
		}
	}

	for _, master := range scanner.BaseMasters {
		if e, ok := in.resolve(master); ok {
			add(e)
		}
	}

	if in.opts.CCC != "" {
		if lines, err := readLines(in.fs, in.opts.CCC); err != nil {
			r.warn("cannot read %s, Creation Club content may not be detected: %v", filepath.Base(in.opts.CCC), err)
		} else {
			for _, name := range lines {
				if e, ok := in.resolve(name); ok {
					add(e)
				}
			}
		}
	}

	var lines []string
	err := errPluginsNotConfigured
	if in.opts.Plugins != "" {
		lines, err = readLines(in.fs, in.opts.Plugins)
	}
	if err != nil {
		r.warn("cannot read plugins.txt, counting every plugin in the data directory: %v", err)
		for _, e := range in.idx.Entries() {
			if !e.Dir && !strings.Contains(e.RelPath, "/") && formats.KindOf(e.RelPath) == formats.ContainerModule {
				add(e)
			}
		}
	} else {
		for _, line := range lines {
			if !strings.HasPrefix(line, "*") {
				continue
			}
			name := line[1:]
			e, ok := in.resolve(name)
			if !ok {
				r.Problems = append(r.Problems, scanner.FileNotFound(name, r.DataPath, "plugins.txt"))
				continue
			}
			add(e)
		}
	}

	for _, e := range enabled {
		r.EnabledModules = append(r.EnabledModules, e.RelPath)
		c, found, err := scanner.CheckModule(in.fs, e)
		r.Problems = append(r.Problems, found...)
		if err != nil || !c.Valid() {
			r.Counts.UnreadableModules++
			continue
		}
		if !scanner.IsBaseMaster(path.Base(e.RelPath)) {
			switch c.Version {
			case formats.ModuleVersionLegacy:
				r.Counts.LegacyModules++
			case formats.ModuleVersionCurrent:
				r.Counts.CurrentModules++
			}
		}
		if c.Light() || formats.IsLightModuleName(e.RelPath) {
			r.Counts.LightModules++
		} else {
			r.Counts.FullModules++
		}
	}
}

func (in *inspection) archives(settings *settings) {
	r := in.report
	enabled := map[string]overlay.Entry{}

	for _, key := range archiveListKeys {
		for _, name := range settings.list("Archive", key) {
			e, ok := in.resolve(name)
			if !ok {
				r.Problems = append(r.Problems, scanner.FileNotFound(name, r.DataPath, "the "+key+" INI setting"))
				continue
			}
			enabled[overlay.Key(e.RelPath)] = e
		}
	}

	suffixes := scanner.ArchiveSuffixes(r.Language)
	for _, module := range r.EnabledModules {
		stem := strings.TrimSuffix(module, path.Ext(module))
		for _, suffix := range suffixes {
			if e, ok := in.resolve(stem + suffix + ".ba2"); ok {
				enabled[overlay.Key(e.RelPath)] = e
			}
		}
	}

	if in.opts.Prefs != "" && loadSettings(in.fs, in.opts.Prefs).value("NVFlex", "bNVFlexEnable", "0") == "1" {
		if e, ok := in.resolve(nvflexArchive); ok {
			enabled[overlay.Key(e.RelPath)] = e
		}
	}

	for _, k := range sortedKeys(enabled) {
		e := enabled[k]
		r.EnabledArchives = append(r.EnabledArchives, e.RelPath)
		c, found, err := scanner.CheckArchive(in.fs, e, r.InstallType, true)
		r.Problems = append(r.Problems, found...)
		if err != nil || !c.Valid() {
			r.Counts.UnreadableArchives++
			continue
		}
		switch c.Kind {
		case formats.ArchiveKindGeneral:
			r.Counts.GeneralArchives++
		case formats.ArchiveKindTexture:
			r.Counts.TextureArchives++
		}
		if c.Version.IsNextGen() {
			r.Counts.NextGenArchives++
		} else {
			r.Counts.OldGenArchives++
		}
	}
}
