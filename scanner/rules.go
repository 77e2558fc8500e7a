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

import "strings"

// All table keys and values are lower case without a leading dot.

type nameSet map[string]struct{}

func newNameSet(names ...string) nameSet {
	s := make(nameSet, len(names))
	for _, n := range names {
		s[n] = struct{}{}
	}
	return s
}

func (s nameSet) has(name string) bool {
	_, ok := s[name]
	return ok
}

const (
	folderComplexSorter = "complex sorter"
	folderMeshes        = "meshes"
	folderScripts       = "scripts"
	folderVis           = "vis"
	folderPrecombined   = "precombined"
	folderAnimTextData  = "animtextdata"
	folderDLLs          = "f4se/plugins"
)

// dataWhitelist maps each top-level data folder the game reads to the
// extensions it loads from it. A nil set accepts every extension. Top-level
// folders missing from the table are not scanned.
var dataWhitelist = map[string]nameSet{
	folderComplexSorter: nil,
	"f4se":              nil,
	"materials":         newNameSet("bgem", "bgsm", "txt"),
	folderMeshes: newNameSet(
		"bto", "btr", "hko", "hkx", "hkx_back", "hkx_backup", "lst", "max",
		"nif", "obj", "sclp", "ssf", "tri", "txt", "xml",
	),
	"music":       newNameSet("wav", "xwm"),
	"textures":    newNameSet("dds"),
	folderScripts: newNameSet("pex", "psc", "txt", "zip"),
	"sound":       newNameSet("cdf", "fuz", "lip", "wav", "xwm"),
	folderVis:     newNameSet("uvd"),
}

var junkFiles = newNameSet("thumbs.db", "desktop.ini", ".ds_store")

var junkFileSuffixes = []string{".tmp", ".bak"}

var junkRootFolders = newNameSet("fomod")

// properFormats maps a format the game cannot load to the formats that
// replace it.
var properFormats = map[string][]string{
	"bmp":  {"dds"},
	"jpeg": {"dds"},
	"jpg":  {"dds"},
	"png":  {"dds"},
	"psd":  {"dds"},
	"tga":  {"dds"},
	"mp3":  {"wav", "xwm"},
}

// recordTypes names the records that reference files of an extension.
var recordTypes = map[string]string{
	"mp3": "Sound Descriptor (SNDR) or Music Track (MUST) ",
}

// BaseMasters are the masters shipped with the game and its DLC.
var BaseMasters = []string{
	"Fallout4.esm",
	"DLCRobot.esm",
	"DLCworkshop01.esm",
	"DLCCoast.esm",
	"DLCworkshop02.esm",
	"DLCworkshop03.esm",
	"DLCNukaWorld.esm",
	"DLCUltraHighResolution.esm",
}

var baseMasters = func() nameSet {
	s := nameSet{}
	for _, m := range BaseMasters {
		s[strings.ToLower(m)] = struct{}{}
	}
	return s
}()

// IsBaseMaster reports whether name is one of BaseMasters.
func IsBaseMaster(name string) bool {
	return baseMasters.has(strings.ToLower(name))
}

// baseArchives are shipped archive names that do not follow the plugin name
// plus suffix convention.
var baseArchives = newNameSet(
	"fallout4 - animations.ba2",
	"fallout4 - interface.ba2",
	"fallout4 - materials.ba2",
	"fallout4 - meshes.ba2",
	"fallout4 - meshesextra.ba2",
	"fallout4 - misc.ba2",
	"fallout4 - misc - beta.ba2",
	"fallout4 - misc - debug.ba2",
	"fallout4 - nvflex.ba2",
	"fallout4 - shaders.ba2",
	"fallout4 - sounds.ba2",
	"fallout4 - startup.ba2",
	"fallout4 - textures1.ba2",
	"fallout4 - textures2.ba2",
	"fallout4 - textures3.ba2",
	"fallout4 - textures4.ba2",
	"fallout4 - textures5.ba2",
	"fallout4 - textures6.ba2",
	"fallout4 - textures7.ba2",
	"fallout4 - textures8.ba2",
	"fallout4 - textures9.ba2",
	"fallout4 - voices.ba2",
)

// extenderScripts are the vanilla scripts replaced by the Script Extender.
// Only these are hashed when looking for overrides.
var extenderScripts = newNameSet(
	"actor.pex", "actorbase.pex", "armor.pex", "armoraddon.pex", "cell.pex",
	"component.pex", "constructibleobject.pex", "defaultobject.pex",
	"encounterzone.pex", "equipslot.pex", "f4se.pex", "favoritesmanager.pex",
	"form.pex", "game.pex", "headpart.pex", "input.pex", "instancedata.pex",
	"location.pex", "math.pex", "matswap.pex", "miscobject.pex", "objectmod.pex",
	"objectreference.pex", "perk.pex", "scriptobject.pex", "ui.pex",
	"utility.pex", "watertype.pex", "weapon.pex",
)

// ArchiveSuffixes returns the archive name suffixes the game loads for a
// plugin, given the configured voice language.
func ArchiveSuffixes(language string) []string {
	suffixes := []string{" - Main", " - Textures", " - Voices_en"}
	language = strings.ToLower(strings.TrimSpace(language))
	if language != "" && language != "en" {
		suffixes = append(suffixes, " - Voices_"+language)
	}
	return suffixes
}

func isJunkFile(lowerName string) bool {
	if junkFiles.has(lowerName) {
		return true
	}
	for _, s := range junkFileSuffixes {
		if strings.HasSuffix(lowerName, s) {
			return true
		}
	}
	return false
}
