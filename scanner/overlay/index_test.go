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

package overlay

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

func writeFiles(t *testing.T, fsys afero.Fs, files ...string) {
	t.Helper()
	for _, f := range files {
		require.NoError(t, afero.WriteFile(fsys, f, []byte(f), 0o644))
	}
}

func TestBuildShadowing(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()
	writeFiles(t, fsys,
		"/mods/A/textures/foo.dds",
		"/mods/B/Textures/FOO.dds",
		"/mods/B/textures/bar.dds",
		"/data/textures/bar.dds",
		"/data/textures/base.dds",
	)

	idx := Build(fsys, []Layer{{Name: "A", Path: "/mods/A"}, {Name: "B", Path: "/mods/B"}}, "/data", Options{})
	require.Empty(t, idx.Warnings)

	e, ok := idx.Lookup("textures/foo.dds")
	require.True(t, ok)
	require.Equal(t, "A", e.Mod)
	require.Equal(t, 0, e.Layer)
	require.Equal(t, "/mods/A/textures/foo.dds", e.Path)

	owner, ok := idx.Owner(`Textures\Bar.DDS`)
	require.True(t, ok)
	require.Equal(t, "B", owner)

	e, ok = idx.Lookup("textures/base.dds")
	require.True(t, ok)
	require.Equal(t, "", e.Mod)
	require.True(t, idx.OwnedBy("textures/base.dds", 2))

	// The folder itself is attributed to the first layer that has it.
	e, ok = idx.Lookup("textures")
	require.True(t, ok)
	require.True(t, e.Dir)
	require.Equal(t, "A", e.Mod)

	keys := map[string]bool{}
	for _, e := range idx.Entries() {
		k := Key(e.RelPath)
		require.False(t, keys[k], "duplicate %s", k)
		keys[k] = true
	}
	require.Equal(t, len(keys), idx.Len())
}

func TestBuildSkips(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()
	writeFiles(t, fsys,
		"/mods/A/BodySlide/out.nif",
		"/mods/A/meshes/a.nif",
		"/mods/A/meshes/a.nif.Vortex_Backup",
		"/mods/A/meshes/b.nif.mohidden",
		"/mods/A/Tools/x.txt",
	)

	idx := Build(fsys, []Layer{{Name: "A", Path: "/mods/A"}}, "/data", Options{
		SkipDirs:     []string{"tools"},
		SkipSuffixes: []string{".MOHIDDEN"},
	})

	_, ok := idx.Lookup("meshes/a.nif")
	require.True(t, ok)
	for _, rel := range []string{"bodyslide", "bodyslide/out.nif", "meshes/a.nif.vortex_backup", "meshes/b.nif.mohidden", "tools/x.txt"} {
		_, ok := idx.Lookup(rel)
		require.False(t, ok, rel)
	}
	require.True(t, idx.SkipDir("FO4Edit"))
	require.True(t, idx.SkipFile("x.esp.mohidden"))
}

func TestBuildMissingLayer(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()
	writeFiles(t, fsys, "/mods/B/scripts/x.pex", "/data/Fallout4.esm")

	idx := Build(fsys, []Layer{{Name: "Gone", Path: "/mods/Gone"}, {Name: "B", Path: "/mods/B"}}, "/data", Options{})
	require.Len(t, idx.Warnings, 1)
	require.Contains(t, idx.Warnings[0], "Gone")
	require.False(t, idx.Present(0))
	require.True(t, idx.Present(1))
	require.True(t, idx.Present(2))

	layers := idx.Layers()
	require.Len(t, layers, 3)
	require.True(t, layers[2].Unmanaged())

	owner, ok := idx.Owner("Fallout4.esm")
	require.True(t, ok)
	require.Empty(t, owner)
}

func TestInsertTwicePanics(t *testing.T) {
	idx := &Index{entries: map[string]Entry{}}
	idx.insert("a", Entry{RelPath: "a"})
	require.Panics(t, func() { idx.insert("a", Entry{RelPath: "A", Layer: 1}) })
}

func TestKey(t *testing.T) {
	require.Equal(t, "meshes/precombined/x.nif", Key(`Meshes\PreCombined\x.NIF`))
	require.Equal(t, "textures", Key("/Textures/"))
}
