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

// Package modmanager reads mod manager settings into ordered overlay layers.
package modmanager

import (
	"bufio"
	"bytes"
	"fmt"
	"log"
	"path/filepath"
	"strings"

	"github.com/cmtoolkit/cmscan/scanner"
	"github.com/cmtoolkit/cmscan/scanner/overlay"
	"github.com/spf13/afero"
	"gopkg.in/ini.v1"
)

const (
	ManagerModOrganizer = "Mod Organizer"
	ManagerStatic       = "Static"

	// OverwriteLayer names the Mod Organizer overwrite folder, which beats
	// every mod.
	OverwriteLayer = "Overwrite"

	supportedGame = "Fallout 4"
	baseDirToken  = "%BASE_DIR%"
)

// Staging is a mod manager's view of an installation: the layers stacked
// over the data directory, highest priority first, and the names it hides.
type Staging struct {
	Manager      string
	Profile      string
	ProfileDir   string
	GamePath     string
	Layers       []overlay.Layer
	SkipDirs     []string
	SkipSuffixes []string

	// Warnings describe settings that could not be used. Affected layers are
	// left out rather than failing the scan.
	Warnings []string
}

// OverlayOptions returns the skip lists for overlay.Build.
func (s Staging) OverlayOptions() overlay.Options {
	return overlay.Options{SkipDirs: s.SkipDirs, SkipSuffixes: s.SkipSuffixes}
}

func (s *Staging) warn(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	log.Printf("WARNING: %s", msg)
	s.Warnings = append(s.Warnings, msg)
}

// Static wraps an explicit layer list.
func Static(layers []overlay.Layer, skipDirs, skipSuffixes []string) Staging {
	return Staging{
		Manager:      ManagerStatic,
		Layers:       layers,
		SkipDirs:     skipDirs,
		SkipSuffixes: skipSuffixes,
	}
}

// ReadModOrganizer reads a ModOrganizer.ini and the selected profile's
// modlist.txt. Only an instance for a different game is an error; missing or
// malformed settings produce a Staging without layers and a warning.
func ReadModOrganizer(fsys afero.Fs, iniPath string) (Staging, error) {
	s := Staging{Manager: ManagerModOrganizer}

	data, err := afero.ReadFile(fsys, iniPath)
	if err != nil {
		s.warn("cannot read Mod Organizer settings %s: %v", iniPath, err)
		return s, nil
	}
	cfg, err := ini.LoadSources(ini.LoadOptions{
		IgnoreInlineComment:     true,
		SkipUnrecognizableLines: true,
	}, data)
	if err != nil {
		s.warn("malformed Mod Organizer settings %s: %v", iniPath, err)
		return s, nil
	}

	general := cfg.Section("General")
	if game := unwrap(general.Key("gameName").String()); game != "" && game != supportedGame {
		return s, fmt.Errorf("%w: Mod Organizer instance manages %q, only %s is supported", scanner.ErrUnsupportedGame, game, supportedGame)
	}
	s.GamePath = toPath(unwrap(general.Key("gamePath").String()))
	s.Profile = unwrap(general.Key("selected_profile").String())

	settings := cfg.Section("Settings")
	base := toPath(unwrap(settings.Key("base_directory").String()))
	if base == "" {
		base = filepath.Dir(iniPath)
	}
	dir := func(key, def string) string {
		v := unwrap(settings.Key(key).String())
		if v == "" {
			v = def
		}
		v = strings.ReplaceAll(v, baseDirToken, base)
		return toPath(v)
	}
	modsDir := dir("mod_directory", filepath.Join(base, "mods"))
	profilesDir := dir("profiles_directory", filepath.Join(base, "profiles"))
	overwriteDir := dir("overwrite_directory", filepath.Join(base, "overwrite"))

	s.SkipSuffixes = splitList(settings.Key("skip_file_suffixes").String())
	s.SkipDirs = splitList(settings.Key("skip_directories").String())

	if s.Profile == "" {
		s.warn("no profile is selected in %s", iniPath)
		return s, nil
	}
	s.ProfileDir = filepath.Join(profilesDir, s.Profile)

	mods, err := readModList(fsys, filepath.Join(s.ProfileDir, "modlist.txt"), modsDir)
	if err != nil {
		s.warn("cannot read mod list for profile %q: %v", s.Profile, err)
		return s, nil
	}
	if isDir(fsys, overwriteDir) {
		s.Layers = append(s.Layers, overlay.Layer{Name: OverwriteLayer, Path: overwriteDir})
	}
	s.Layers = append(s.Layers, mods...)
	return s, nil
}

// readModList returns the enabled mods, top line first. The top line of
// modlist.txt has the highest priority.
func readModList(fsys afero.Fs, path, modsDir string) ([]overlay.Layer, error) {
	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		return nil, err
	}

	var layers []overlay.Layer
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if len(line) < 2 || (line[0] != '+' && line[0] != '*') {
			continue
		}
		name := line[1:]
		if strings.HasSuffix(name, "_separator") {
			continue
		}
		modDir := filepath.Join(modsDir, name)
		if !isDir(fsys, modDir) {
			// Unmanaged entries (DLC, Creation Club) have no staging folder.
			if line[0] == '+' {
				log.Printf("DEBUG: enabled mod %q has no folder at %s", name, modDir)
			}
			continue
		}
		layers = append(layers, overlay.Layer{Name: name, Path: modDir})
	}
	return layers, sc.Err()
}

// unwrap strips Qt's @ByteArray(...) wrapper and its backslash escaping.
func unwrap(v string) string {
	v = strings.TrimSpace(v)
	if strings.HasPrefix(v, "@ByteArray(") && strings.HasSuffix(v, ")") {
		v = v[len("@ByteArray(") : len(v)-1]
	}
	if strings.HasPrefix(v, "@") {
		// @Invalid() and other Qt variants carry no usable value.
		return ""
	}
	return strings.ReplaceAll(v, `\\`, `\`)
}

func toPath(v string) string {
	if v == "" {
		return ""
	}
	return filepath.Clean(filepath.FromSlash(strings.ReplaceAll(v, `\`, "/")))
}

func splitList(v string) []string {
	v = unwrap(v)
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func isDir(fsys afero.Fs, path string) bool {
	ok, err := afero.IsDir(fsys, path)
	return err == nil && ok
}
