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
	"log"
	"sync"
	"time"

	"github.com/cmtoolkit/cmscan/scanner/overlay"
	"github.com/google/uuid"
	"github.com/spf13/afero"
)

// progressBuffer bounds the number of undelivered progress events.
const progressBuffer = 16

// Request describes one scan.
type Request struct {
	// Index is used as is when set. Otherwise it is rebuilt from Layers and
	// DataDir, since mod lists can change between scans.
	Index   *overlay.Index
	Layers  []overlay.Layer
	DataDir string
	Overlay overlay.Options

	Engine Options

	// Overview holds findings computed by the installation inspector. They
	// are merged into the result according to Engine.Flags.
	Overview []Problem
	// Warnings are configuration warnings gathered before the scan.
	Warnings []string
}

// Progress is one event on a run's update channel. Problems found in a
// layer travel with the event that reports the layer finished.
type Progress struct {
	Scanned  int
	Total    int
	Layer    string
	Problems []Problem
	Done     bool
}

// Result is the merged outcome of a run.
type Result struct {
	ID       string    `json:"id" yaml:"id"`
	Started  time.Time `json:"started" yaml:"started"`
	Finished time.Time `json:"finished" yaml:"finished"`
	Problems []Problem `json:"problems" yaml:"problems"`
	Warnings []string  `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// Coordinator runs at most one scan at a time on a background goroutine.
type Coordinator struct {
	Fs afero.Fs

	mu      sync.Mutex
	running bool
}

func NewCoordinator(fsys afero.Fs) *Coordinator {
	return &Coordinator{Fs: fsys}
}

// Run is a scan in flight.
type Run struct {
	ID      string
	Started time.Time

	updates  chan Progress
	overview []Problem

	// Written by the worker before updates is closed.
	partial  []Problem
	warnings []string
	err      error
}

// Updates delivers progress events in order. The channel is closed after
// the final event, which has Done set.
func (r *Run) Updates() <-chan Progress {
	return r.updates
}

// Start launches a scan. It fails with ErrScanInProgress while another scan
// started by this coordinator has not finished, and with ErrNoDataDirectory
// when the data directory is missing.
func (c *Coordinator) Start(ctx context.Context, req Request) (*Run, error) {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return nil, ErrScanInProgress
	}
	c.running = true
	c.mu.Unlock()

	dataDir := req.DataDir
	if req.Index != nil {
		layers := req.Index.Layers()
		dataDir = layers[len(layers)-1].Path
	}
	if info, err := c.Fs.Stat(dataDir); err != nil || !info.IsDir() {
		c.release()
		return nil, fmt.Errorf("%w: %s", ErrNoDataDirectory, dataDir)
	}

	run := &Run{
		ID:      uuid.NewString(),
		Started: time.Now(),
		updates: make(chan Progress, progressBuffer),
	}
	for _, p := range req.Overview {
		if req.Engine.Flags.allowsOverview(p.Category) {
			run.overview = append(run.overview, p)
		}
	}

	go func() {
		defer close(run.updates)
		defer c.release()
		c.work(ctx, req, run)
	}()
	return run, nil
}

func (c *Coordinator) release() {
	c.mu.Lock()
	c.running = false
	c.mu.Unlock()
}

func (c *Coordinator) work(ctx context.Context, req Request, run *Run) {
	idx := req.Index
	if idx == nil {
		idx = overlay.Build(c.Fs, req.Layers, req.DataDir, req.Overlay)
	}
	run.warnings = append(append([]string{}, req.Warnings...), idx.Warnings...)

	engine := NewEngine(req.Engine)
	layers := idx.Layers()
	total := len(layers)

	send := func(p Progress) bool {
		select {
		case run.updates <- p:
			return true
		case <-ctx.Done():
			run.err = ctx.Err()
			return false
		}
	}

	for ordinal, layer := range layers {
		name := layer.Name
		if layer.Unmanaged() {
			name = UnmanagedName
		}
		if !send(Progress{Scanned: ordinal, Total: total, Layer: name}) {
			return
		}

		found, err := engine.ScanLayer(ctx, idx, ordinal)
		if err != nil {
			log.Printf("WARNING: scan %s stopped in layer %s: %v", run.ID, name, err)
			run.partial = found
			run.err = err
			return
		}
		if !send(Progress{Scanned: ordinal + 1, Total: total, Layer: name, Problems: found}) {
			run.partial = found
			return
		}
	}
	// Every layer finished, so completion is reported even if ctx ends now.
	run.updates <- Progress{Scanned: total, Total: total, Done: true}
}

// Collect drains the run's updates, calling onProgress for every event, and
// returns the merged result. The walk's findings are merged ahead of the
// inspector's so that ownership from the walk wins on duplicates.
func (r *Run) Collect(onProgress func(Progress)) (Result, error) {
	var found []Problem
	for p := range r.updates {
		if onProgress != nil {
			onProgress(p)
		}
		found = append(found, p.Problems...)
	}
	found = append(found, r.partial...)

	return Result{
		ID:       r.ID,
		Started:  r.Started,
		Finished: time.Now(),
		Problems: Merge(found, r.overview),
		Warnings: r.warnings,
	}, r.err
}
