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

package inspector

import (
	"errors"
	"log"
	"path"
	"path/filepath"
	"strings"

	"github.com/cmtoolkit/cmscan/scanner"
	"github.com/saferwall/pe"
	"github.com/spf13/afero"
)

const f4sePluginsDir = "f4se/plugins"

// Script Extender plugin entry points. Old-gen F4SE calls Query, next-gen
// F4SE reads the exported Version data.
const (
	exportLoad    = "F4SEPlugin_Load"
	exportQuery   = "F4SEPlugin_Query"
	exportVersion = "F4SEPlugin_Version"
)

var errNoFileVersion = errors.New("no file version resource")

// F4SEPlugin is a Script Extender plugin DLL and the game generations it
// declares support for.
type F4SEPlugin struct {
	Name       string `json:"name" yaml:"name"`
	Mod        string `json:"mod,omitempty" yaml:"mod,omitempty"`
	SupportsOG bool   `json:"supports_og" yaml:"supports_og"`
	SupportsNG bool   `json:"supports_ng" yaml:"supports_ng"`
}

// Supports reports whether the plugin loads with the given executable. An
// unknown install type supports everything.
func (p F4SEPlugin) Supports(t scanner.InstallType) bool {
	switch {
	case t.OldGenExecutable():
		return p.SupportsOG
	case t == scanner.InstallNextGen:
		return p.SupportsNG
	default:
		return true
	}
}

func classifyPlugin(name string, exports []string) (F4SEPlugin, bool) {
	p := F4SEPlugin{Name: name}
	var load bool
	for _, e := range exports {
		switch e {
		case exportLoad:
			load = true
		case exportQuery:
			p.SupportsOG = true
		case exportVersion:
			p.SupportsNG = true
		}
	}
	return p, load
}

// dllExports returns the exported symbol names of a PE image. Tests replace
// it.
var dllExports = func(data []byte) ([]string, error) {
	f, err := pe.NewBytes(data, &pe.Options{})
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if err := f.Parse(); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(f.Export.Functions))
	for _, fn := range f.Export.Functions {
		if fn.Name != "" {
			names = append(names, fn.Name)
		}
	}
	return names, nil
}

// exeVersion returns the dotted file version of a PE image. Tests replace it.
var exeVersion = func(data []byte) (string, error) {
	f, err := pe.NewBytes(data, &pe.Options{})
	if err != nil {
		return "", err
	}
	defer f.Close()
	if err := f.Parse(); err != nil {
		return "", err
	}
	info, err := f.ParseVersionResources()
	if err != nil {
		return "", err
	}
	v := info["FileVersion"]
	if v == "" {
		return "", errNoFileVersion
	}
	return strings.Join(strings.FieldsFunc(v, func(r rune) bool { return r == ',' || r == ' ' }), "."), nil
}

// addressLibrary records the game version and looks for the Address Library
// file matching it.
func (in *inspection) addressLibrary() {
	if in.opts.Game == "" {
		return
	}
	r := in.report
	data, err := afero.ReadFile(in.fs, filepath.Join(in.opts.Game, gameExecutable))
	if err != nil {
		return
	}
	v, err := exeVersion(data)
	if err != nil {
		log.Printf("DEBUG: cannot read %s version: %v", gameExecutable, err)
		return
	}
	r.GameVersion = v
	if e, ok := in.resolve(f4sePluginsDir + "/version-" + strings.ReplaceAll(v, ".", "-") + ".bin"); ok {
		r.AddressLibrary = e.RelPath
	}
}

// f4se classifies every plugin DLL under F4SE/Plugins and reports those that
// do not support the installed executable.
func (in *inspection) f4se() {
	r := in.report
	for _, e := range in.idx.Entries() {
		dir, name := path.Split(e.RelPath)
		if e.Dir || !strings.EqualFold(strings.TrimSuffix(dir, "/"), f4sePluginsDir) {
			continue
		}
		lower := strings.ToLower(name)
		if path.Ext(lower) != ".dll" || strings.HasPrefix(lower, "msdia") {
			continue
		}

		data, err := afero.ReadFile(in.fs, e.Path)
		if err != nil {
			r.warn("cannot read F4SE plugin %s: %v", e.RelPath, err)
			continue
		}
		exports, err := dllExports(data)
		if err != nil {
			r.warn("cannot parse F4SE plugin %s: %v", e.RelPath, err)
			continue
		}
		p, ok := classifyPlugin(name, exports)
		if !ok {
			continue
		}
		p.Mod = e.Mod
		r.F4SEPlugins = append(r.F4SEPlugins, p)
		if !p.Supports(r.InstallType) {
			r.Problems = append(r.Problems, scanner.UnsupportedPlugin(e, r.InstallType))
		}
	}
}
