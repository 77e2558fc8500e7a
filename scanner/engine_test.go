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
	"hash/crc32"
	"strings"
	"testing"

	"github.com/cmtoolkit/cmscan/scanner/overlay"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScanShadowing(t *testing.T) {
	t.Parallel()

	fsys := tree(t, map[string][]byte{
		"/mods/A/textures/foo.png": nil,
		"/mods/B/Textures/foo.png": nil,
		"/mods/B/textures/bar.png": nil,
		"/data/textures/foo.png":   nil,
		"/data/textures/base.png":  nil,
	})
	layers := []overlay.Layer{{Name: "A", Path: "/mods/A"}, {Name: "B", Path: "/mods/B"}}
	problems := scanAll(t, fsys, layers, allRules())

	foo := byPath(problems, "textures/foo.png")
	require.Len(t, foo, 1)
	require.Equal(t, "A", foo[0].Mod)
	require.Equal(t, "/mods/A/textures/foo.png", foo[0].Path)

	bar := byPath(problems, "textures/bar.png")
	require.Len(t, bar, 1)
	require.Equal(t, "B", bar[0].Mod)

	base := byPath(problems, "textures/base.png")
	require.Len(t, base, 1)
	require.Empty(t, base[0].Mod)
	require.Equal(t, UnmanagedName, base[0].ModName())

	seen := map[string]bool{}
	for _, k := range keys(problems) {
		require.False(t, seen[k], "duplicate finding %s", k)
		seen[k] = true
	}
}

func TestScanPrunesUnknownTopLevelFolders(t *testing.T) {
	t.Parallel()

	mem := tree(t, map[string][]byte{
		"/data/Random/thumbs.db":       nil,
		"/data/Random/song.mp3":        nil,
		"/data/Random/Deep/broken.ba2": []byte("nope"),
		"/data/Textures/ok.dds":        nil,
	})
	rec := &recordFs{Fs: mem}
	idx := overlay.Build(rec, nil, "/data", overlay.Options{})
	rec.reset()

	problems, err := NewEngine(allRules()).Scan(context.Background(), idx)
	require.NoError(t, err)
	require.Empty(t, problems)

	for _, p := range rec.opened {
		require.False(t, strings.HasPrefix(p, "/data/Random"), "walk opened %s", p)
	}
}

func TestScanFolderPruningIsPerLayer(t *testing.T) {
	t.Parallel()

	fsys := tree(t, map[string][]byte{
		"/mods/A/fomod/info.xml":       nil,
		"/data/fomod/ModuleConfig.xml": nil,
		"/data/FOMod/other.xml":        nil,
		"/data/Vis/loose.uvd":          nil,
	})
	problems := scanAll(t, fsys, []overlay.Layer{{Name: "A", Path: "/mods/A"}}, allRules())

	junk := byPath(problems, "fomod")
	require.Len(t, junk, 1)
	require.Equal(t, CategoryJunkFile, junk[0].Category)
	require.Equal(t, "A", junk[0].Mod)
	require.Equal(t, SolutionDeleteOrIgnore, junk[0].Solution.Kind)

	// The unmanaged FOMod folder is a different spelling of the same key and
	// is owned by A, so it is pruned without a second report.
	require.Empty(t, byPath(problems, "FOMod/other.xml"))

	vis := byPath(problems, "Vis")
	require.Len(t, vis, 1)
	require.Equal(t, CategoryLoosePrevis, vis[0].Category)
	require.Empty(t, vis[0].Mod)
}

func TestScanIdempotent(t *testing.T) {
	t.Parallel()

	fsys := tree(t, map[string][]byte{
		"/mods/A/Sound/fx/hit.mp3":    nil,
		"/mods/A/Sound/fx/hit.wav":    nil,
		"/mods/A/Meshes/PreCombined/": nil,
		"/mods/A/Thing - Bogus.ba2":   validBA2,
		"/data/Thing.esp":             validModule,
		"/data/Textures/desktop.ini":  nil,
		"/data/Broken.esm":            []byte("short"),
	})
	layers := []overlay.Layer{{Name: "A", Path: "/mods/A"}}

	first := scanAll(t, fsys, layers, allRules())
	second := scanAll(t, fsys, layers, allRules())
	require.NotEmpty(t, first)
	require.ElementsMatch(t, first, second)
}

func TestScanUnexpectedFormatCounterpart(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		files        map[string][]byte
		wantKind     SolutionKind
		wantEvidence []string
		wantMessage  string
	}{
		{
			name: "counterpart found",
			files: map[string][]byte{
				"/data/Sound/Voice/line.mp3": nil,
				"/data/Sound/Voice/line.wav": nil,
			},
			wantKind:     SolutionDeleteOrIgnore,
			wantEvidence: []string{"line.wav"},
			wantMessage:  "Expected format found (line.wav)",
		},
		{
			name: "counterpart in another layer",
			files: map[string][]byte{
				"/data/Sound/Voice/line.mp3":   nil,
				"/mods/A/Sound/Voice/line.xwm": nil,
			},
			wantKind:     SolutionDeleteOrIgnore,
			wantEvidence: []string{"line.xwm"},
			wantMessage:  "Expected format found (line.xwm)",
		},
		{
			name: "counterpart missing",
			files: map[string][]byte{
				"/data/Sound/Voice/line.mp3": nil,
			},
			wantKind:    SolutionConvertOrIgnore,
			wantMessage: "Expected format NOT found (wav, xwm)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fsys := tree(t, tt.files)
			problems := scanAll(t, fsys, []overlay.Layer{{Name: "A", Path: "/mods/A"}}, allRules())

			found := byPath(problems, "Sound/Voice/line.mp3")
			require.Len(t, found, 1)
			p := found[0]
			require.Equal(t, CategoryUnexpectedFormat, p.Category)
			require.Equal(t, "Unexpected format in Sound", p.Summary)
			require.NotNil(t, p.Solution)
			require.Equal(t, tt.wantKind, p.Solution.Kind)
			require.Contains(t, p.Solution.Message, tt.wantMessage)
			require.Contains(t, p.Solution.Message, "Sound Descriptor (SNDR)")
			require.Equal(t, tt.wantEvidence, p.Evidence)
		})
	}
}

func TestScanUnknownFormatHasNoSolution(t *testing.T) {
	fsys := tree(t, map[string][]byte{"/data/Textures/setup.exe": nil})
	problems := scanAll(t, fsys, nil, allRules())
	require.Len(t, problems, 1)
	require.Equal(t, CategoryUnexpectedFormat, problems[0].Category)
	require.Nil(t, problems[0].Solution)
}

func TestScanArchiveNames(t *testing.T) {
	t.Parallel()

	fsys := tree(t, map[string][]byte{
		"/data/Foo.esp":                  validModule,
		"/data/Foo - Main.ba2":           validBA2,
		"/data/Foo - Textures.ba2":       ba2Bytes(1, "DX10"),
		"/data/Foo - Bogus.ba2":          validBA2,
		"/data/Foo.ba2":                  validBA2,
		"/data/Bar - Main.ba2":           validBA2,
		"/data/Fallout4 - Textures3.ba2": validBA2,
		"/data/Listed.ba2":               validBA2,
		"/data/CC - Voices_de.ba2":       validBA2,
		"/data/CC.esl":                   validModule,
	})
	opts := allRules()
	opts.EnabledArchives = []string{"listed.BA2"}
	problems := scanAll(t, fsys, nil, opts)

	var names []string
	for _, p := range problems {
		require.Equal(t, CategoryInvalidArchiveName, p.Category, p.RelPath)
		names = append(names, p.RelPath)
	}
	require.ElementsMatch(t, []string{"Foo - Bogus.ba2", "Foo.ba2", "Bar - Main.ba2", "CC - Voices_de.ba2"}, names)

	bogus := byPath(problems, "Foo - Bogus.ba2")[0]
	require.Equal(t, ArchiveSuffixes("en"), bogus.Evidence)
	require.Equal(t, SolutionRenameArchive, bogus.Solution.Kind)
	require.Contains(t, bogus.Solution.Message, "Example: Foo - Main.ba2")

	bar := byPath(problems, "Bar - Main.ba2")[0]
	require.Equal(t, []string{"Bar.esm", "Bar.esp", "Bar.esl"}, bar.Evidence)

	// German voices are only accepted when the game language is German.
	opts.Language = "DE"
	problems = scanAll(t, fsys, nil, opts)
	require.Empty(t, byPath(problems, "CC - Voices_de.ba2"))
}

func TestScanUnreadableVersusInvalid(t *testing.T) {
	t.Parallel()

	mem := tree(t, map[string][]byte{
		"/data/Locked.esp":      validModule,
		"/data/Broken.esp":      append([]byte("TES3"), validModule[4:34]...),
		"/data/Short.esm":       validModule[:10],
		"/data/Odd.esp":         moduleBytes([]byte{0x9a, 0x99, 0x59, 0x3f}),
		"/data/Fallout4.esm":    moduleBytes([]byte{0x9a, 0x99, 0x59, 0x3f}),
		"/data/Fine.esl":        validModule,
		"/data/Gone - Main.ba2": validBA2,
		"/data/Gone.esp":        validModule,
		"/data/Bad - Main.ba2":  ba2Bytes(3, "GNRL"),
		"/data/Bad.esp":         validModule,
	})
	fsys := denyFs{Fs: mem, denied: map[string]bool{"/data/Locked.esp": true, "/data/Gone - Main.ba2": true}}
	problems := scanAll(t, fsys, nil, allRules())

	locked := byPath(problems, "Locked.esp")
	require.Len(t, locked, 1)
	require.Equal(t, CategoryInvalidModule, locked[0].Category)
	require.Equal(t, "Unreadable module", locked[0].Summary)
	require.Contains(t, locked[0].Solution.Message, "permission denied")

	broken := byPath(problems, "Broken.esp")
	require.Len(t, broken, 1)
	require.Equal(t, CategoryInvalidModule, broken[0].Category)
	require.Contains(t, broken[0].Summary, "Corrupt or wrong format module")
	require.Contains(t, broken[0].Summary, `"TES3"`)

	short := byPath(problems, "Short.esm")
	require.Len(t, short, 1)
	require.Equal(t, "Unreadable module", short[0].Summary)

	odd := byPath(problems, "Odd.esp")
	require.Len(t, odd, 1)
	require.Contains(t, odd[0].Summary, "0.85")

	require.Empty(t, byPath(problems, "Fallout4.esm"))
	require.Empty(t, byPath(problems, "Fine.esl"))

	gone := byPath(problems, "Gone - Main.ba2")
	require.Len(t, gone, 1)
	require.Equal(t, CategoryInvalidArchive, gone[0].Category)
	require.Equal(t, "Unreadable archive", gone[0].Summary)

	bad := byPath(problems, "Bad - Main.ba2")
	require.Len(t, bad, 1)
	require.Equal(t, CategoryInvalidArchive, bad[0].Category)
	require.Contains(t, bad[0].Summary, "unknown version 3")
}

func TestScanFolderRules(t *testing.T) {
	t.Parallel()

	files := map[string][]byte{
		"/data/Vis/a.uvd":                        nil,
		"/data/Meshes/PreCombined/x.nif":         nil,
		"/data/Meshes/Actors/AnimTextData/y.txt": nil,
		"/data/Meshes/ok.nif":                    nil,
		"/data/Meshes/BodySlide/shape.osp":       nil,
		"/data/Textures/Thumbs.db":               nil,
		"/data/Textures/x.dds.bak":               nil,
		"/data/Textures/README":                  nil,
		"/data/F4SE/Plugins/ok.dll":              nil,
		"/data/F4SE/bad.dll":                     nil,
		"/data/stray.dll":                        nil,
		"/data/Textures/a.dds.vortex_backup":     nil,
	}

	tests := []struct {
		name  string
		flags func(*RuleFlags)
		want  map[string]Category
	}{
		{
			name:  "all rules",
			flags: func(*RuleFlags) {},
			want: map[string]Category{
				"Vis":                        CategoryLoosePrevis,
				"Meshes/PreCombined":         CategoryLoosePrevis,
				"Meshes/Actors/AnimTextData": CategoryAnimTextDataFolder,
				"Textures/Thumbs.db":         CategoryJunkFile,
				"Textures/x.dds.bak":         CategoryJunkFile,
				"F4SE/bad.dll":               CategoryMisplacedDLL,
				"stray.dll":                  CategoryMisplacedDLL,
			},
		},
		{
			name: "previs and junk disabled",
			flags: func(f *RuleFlags) {
				f.LoosePrevis = false
				f.JunkFiles = false
			},
			want: map[string]Category{
				"Meshes/Actors/AnimTextData": CategoryAnimTextDataFolder,
				"F4SE/bad.dll":               CategoryMisplacedDLL,
				"stray.dll":                  CategoryMisplacedDLL,
			},
		},
		{
			name: "formats disabled",
			flags: func(f *RuleFlags) {
				f.WrongFormat = false
			},
			want: map[string]Category{
				"Vis":                        CategoryLoosePrevis,
				"Meshes/PreCombined":         CategoryLoosePrevis,
				"Meshes/Actors/AnimTextData": CategoryAnimTextDataFolder,
				"Textures/Thumbs.db":         CategoryJunkFile,
				"Textures/x.dds.bak":         CategoryJunkFile,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := allRules()
			tt.flags(&opts.Flags)
			problems := scanAll(t, tree(t, files), nil, opts)

			got := map[string]Category{}
			for _, p := range problems {
				got[p.RelPath] = p.Category
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestScanWrongVersion(t *testing.T) {
	t.Parallel()

	files := map[string][]byte{
		"/data/New.esp":        validModule,
		"/data/New - Main.ba2": ba2Bytes(8, "GNRL"),
		"/data/Old - Main.ba2": validBA2,
		"/data/Old.esp":        validModule,
	}

	for install, want := range map[InstallType]int{
		InstallOldGen:    1,
		InstallDownGrade: 1,
		InstallNextGen:   0,
		InstallUnknown:   0,
	} {
		opts := allRules()
		opts.InstallType = install
		problems := scanAll(t, tree(t, files), nil, opts)
		require.Len(t, problems, want, install)
		if want == 1 {
			require.Equal(t, CategoryWrongVersion, problems[0].Category)
			require.Equal(t, "New - Main.ba2", problems[0].RelPath)
			require.Equal(t, SolutionRunAutoFix, problems[0].Solution.Kind)
			require.False(t, problems[0].Fixable())
		}
	}
}

func TestScanComplexSorterConfig(t *testing.T) {
	t.Parallel()

	fsys := tree(t, map[string][]byte{
		"/data/Complex Sorter/INI/Old.ini":     []byte("[x]\nfilterByType=ARMO:FindNode OBTS(FindNode \"Addon Index\" ...)\n"),
		"/data/Complex Sorter/INI/Comment.ini": []byte(";FindNode OBTS(FindNode \"Addon Index\"\n"),
		"/data/Complex Sorter/INI/New.ini":     []byte("FindNode OBTS(FindNode \"Parent Combination Index\"\n"),
	})
	problems := scanAll(t, fsys, nil, allRules())
	require.Len(t, problems, 1)

	p := problems[0]
	require.Equal(t, CategoryToolConfigError, p.Category)
	require.Equal(t, "Complex Sorter/INI/Old.ini", p.RelPath)
	require.True(t, p.Fixable())
	require.Equal(t, []string{"cmscan", "fix", "--yes", "--path", "/data/Complex Sorter/INI/Old.ini"}, p.Solution.Command)
}

func TestScanScriptOverride(t *testing.T) {
	t.Parallel()

	override := []byte("outdated extender script")
	fsys := tree(t, map[string][]byte{
		"/mods/Old/Scripts/Actor.pex":     override,
		"/mods/Old/Scripts/Sub/Actor.pex": override,
		"/data/Scripts/Game.pex":          []byte("vanilla"),
		"/data/Scripts/MyMod.pex":         override,
	})
	opts := allRules()
	opts.ScriptHashes = map[string]string{
		fmt.Sprintf("%08x", crc32.ChecksumIEEE(override)): "F4SE 0.6.21 Actor.pex",
	}
	problems := scanAll(t, fsys, []overlay.Layer{{Name: "Old", Path: "/mods/Old"}}, opts)
	require.Len(t, problems, 1)

	p := problems[0]
	require.Equal(t, CategoryScriptOverride, p.Category)
	require.Equal(t, "Old", p.Mod)
	require.Equal(t, []string{fmt.Sprintf("CRC32 %08X", crc32.ChecksumIEEE(override))}, p.Evidence)
	require.Contains(t, p.Solution.Message, "F4SE 0.6.21 Actor.pex")

	opts.Flags.ProblemOverrides = false
	require.Empty(t, scanAll(t, fsys, []overlay.Layer{{Name: "Old", Path: "/mods/Old"}}, opts))

	// The rule stays silent while no hashes are configured.
	opts.Flags.ProblemOverrides = true
	opts.ScriptHashes = nil
	require.Empty(t, scanAll(t, fsys, []overlay.Layer{{Name: "Old", Path: "/mods/Old"}}, opts))
}

func TestScanCancelled(t *testing.T) {
	fsys := tree(t, map[string][]byte{"/data/Textures/a.png": nil})
	idx := overlay.Build(fsys, nil, "/data", overlay.Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewEngine(allRules()).Scan(ctx, idx)
	require.ErrorIs(t, err, context.Canceled)
}
