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

package commands

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/afero"
)

// watch rescans whenever something under the data directory, a mod layer
// or the mod manager profile changes, until ctx is done.
func (s *ScanCmd) watch(ctx context.Context, rescan func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch init failed: %w", err)
	}
	defer watcher.Close()

	s.watchAll(watcher)
	fmt.Fprintf(s.Out, "\nWatching %d folders for changes, press Ctrl+C to stop.\n", len(watcher.WatchList()))
	return watchLoop(ctx, watcher.Events, watcher.Errors, s.Debounce, s.rewatch(watcher, rescan))
}

// watchAdder is the part of fsnotify.Watcher that registers folders.
type watchAdder interface {
	Add(name string) error
}

// watchAll registers every folder under the current watch roots. Folders
// already watched are registered again without effect.
func (s *ScanCmd) watchAll(w watchAdder) {
	for _, root := range s.watchRoots {
		if err := addWatchRecursive(s.Fs, w, root); err != nil {
			log.Printf("WARNING: cannot watch %s: %v", root, err)
		}
	}
}

// rewatch wraps rescan so that mods and folders that appeared since the last
// scan are watched too.
func (s *ScanCmd) rewatch(w watchAdder, rescan func()) func() {
	return func() {
		rescan()
		s.watchAll(w)
	}
}

// watchLoop calls rescan once events have been quiet for debounce. Scans run
// on the calling goroutine, so they never overlap.
func watchLoop(ctx context.Context, events <-chan fsnotify.Event, errs <-chan error, debounce time.Duration, rescan func()) error {
	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if ev.Op == fsnotify.Chmod {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(debounce)
			fire = timer.C
		case err, ok := <-errs:
			if !ok {
				return nil
			}
			log.Printf("WARNING: watch error: %v", err)
		case <-fire:
			timer, fire = nil, nil
			rescan()
		}
	}
}

func addWatchRecursive(fsys afero.Fs, w watchAdder, root string) error {
	return afero.Walk(fsys, root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}
		if !info.IsDir() {
			return nil
		}
		return w.Add(filepath.Clean(path))
	})
}
