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
	"testing"

	"github.com/cmtoolkit/cmscan/scanner/overlay"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func coordinatorFixture(t *testing.T) Request {
	t.Helper()
	return Request{
		Layers: []overlay.Layer{
			{Name: "A", Path: "/mods/A"},
			{Name: "Missing", Path: "/mods/Missing"},
			{Name: "B", Path: "/mods/B"},
		},
		DataDir: "/data",
		Engine:  allRules(),
	}
}

func coordinatorFiles() map[string][]byte {
	return map[string][]byte{
		"/mods/A/Textures/a.png": nil,
		"/mods/B/Textures/a.png": nil,
		"/mods/B/Textures/b.tga": nil,
		"/data/Textures/c.bmp":   nil,
		"/data/Fallout4.esm":     validModule,
	}
}

func TestCoordinatorProgressAndMerge(t *testing.T) {
	t.Parallel()

	c := NewCoordinator(tree(t, coordinatorFiles()))
	req := coordinatorFixture(t)
	req.Warnings = []string{"profile has no modlist"}
	req.Overview = []Problem{
		{Category: CategoryFileNotFound, RelPath: "Missing.esp", Summary: "Missing plugin"},
		{Category: CategoryWrongVersion, RelPath: "x.ba2", Summary: "NG archive"},
		// Same finding as the walk produces; the walk's copy wins.
		{Category: CategoryUnexpectedFormat, RelPath: "textures/A.PNG", Mod: "overview"},
	}
	req.Engine.Flags.Errors = false

	run, err := c.Start(context.Background(), req)
	require.NoError(t, err)
	_, err = uuid.Parse(run.ID)
	require.NoError(t, err)

	var events []Progress
	result, err := run.Collect(func(p Progress) { events = append(events, p) })
	require.NoError(t, err)

	require.NotEmpty(t, events)
	last := events[len(events)-1]
	require.True(t, last.Done)
	require.Equal(t, 4, last.Total)
	require.Equal(t, 4, last.Scanned)
	for i := 1; i < len(events); i++ {
		require.GreaterOrEqual(t, events[i].Scanned, events[i-1].Scanned)
	}
	require.Equal(t, []string{"A", "A", "Missing", "Missing", "B", "B", UnmanagedName, UnmanagedName},
		layerNames(events[:len(events)-1]))

	require.Equal(t, run.ID, result.ID)
	require.Len(t, result.Warnings, 2)
	require.Equal(t, "profile has no modlist", result.Warnings[0])
	require.Contains(t, result.Warnings[1], "Missing")

	got := map[string]string{}
	for _, p := range result.Problems {
		got[p.Key()] = p.Mod
	}
	require.Equal(t, map[string]string{
		string(CategoryUnexpectedFormat) + "|textures/a.png": "A",
		string(CategoryUnexpectedFormat) + "|textures/b.tga": "B",
		string(CategoryUnexpectedFormat) + "|textures/c.bmp": "",
		string(CategoryWrongVersion) + "|x.ba2":              "",
	}, got)

	// Sorted by mod name with unmanaged files under their display name.
	require.Equal(t, "A", result.Problems[0].Mod)
	require.Equal(t, "B", result.Problems[1].Mod)
}

func TestCoordinatorCancelAfterLastLayer(t *testing.T) {
	t.Parallel()

	c := NewCoordinator(tree(t, coordinatorFiles()))
	for i := 0; i < 20; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		run, err := c.Start(ctx, coordinatorFixture(t))
		require.NoError(t, err)

		var last Progress
		result, err := run.Collect(func(p Progress) {
			if p.Scanned == p.Total && !p.Done {
				cancel()
			}
			last = p
		})
		cancel()
		require.NoError(t, err)
		require.True(t, last.Done)
		require.NotEmpty(t, result.Problems)
	}
}

func layerNames(events []Progress) []string {
	var names []string
	for _, e := range events {
		names = append(names, e.Layer)
	}
	return names
}

func TestCoordinatorRejectsConcurrentStart(t *testing.T) {
	t.Parallel()

	gate := make(chan struct{})
	fsys := gateFs{Fs: tree(t, coordinatorFiles()), path: "/mods/A", gate: gate}
	c := NewCoordinator(fsys)

	run, err := c.Start(context.Background(), coordinatorFixture(t))
	require.NoError(t, err)

	_, err = c.Start(context.Background(), coordinatorFixture(t))
	require.ErrorIs(t, err, ErrScanInProgress)

	close(gate)
	first, err := run.Collect(nil)
	require.NoError(t, err)

	run, err = c.Start(context.Background(), coordinatorFixture(t))
	require.NoError(t, err)
	second, err := run.Collect(nil)
	require.NoError(t, err)
	require.NotEqual(t, first.ID, second.ID)
	require.ElementsMatch(t, first.Problems, second.Problems)
}

func TestCoordinatorPrebuiltIndex(t *testing.T) {
	t.Parallel()

	fsys := tree(t, coordinatorFiles())
	idx := overlay.Build(fsys, []overlay.Layer{{Name: "B", Path: "/mods/B"}}, "/data", overlay.Options{})
	c := NewCoordinator(fsys)

	run, err := c.Start(context.Background(), Request{Index: idx, Engine: allRules()})
	require.NoError(t, err)
	result, err := run.Collect(nil)
	require.NoError(t, err)
	require.Len(t, result.Problems, 3)
	for _, p := range result.Problems {
		require.NotEqual(t, "A", p.Mod)
	}
}

func TestCoordinatorNoDataDirectory(t *testing.T) {
	t.Parallel()

	c := NewCoordinator(tree(t, map[string][]byte{"/mods/A/x.esp": validModule}))
	_, err := c.Start(context.Background(), coordinatorFixture(t))
	require.ErrorIs(t, err, ErrNoDataDirectory)

	// A failed precondition must not leave the coordinator busy.
	_, err = c.Start(context.Background(), coordinatorFixture(t))
	require.ErrorIs(t, err, ErrNoDataDirectory)
}

func TestCoordinatorCancelled(t *testing.T) {
	t.Parallel()

	c := NewCoordinator(tree(t, coordinatorFiles()))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	run, err := c.Start(ctx, coordinatorFixture(t))
	require.NoError(t, err)
	_, err = run.Collect(nil)
	require.ErrorIs(t, err, context.Canceled)
}
