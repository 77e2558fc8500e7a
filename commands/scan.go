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
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cmtoolkit/cmscan/commands/config"
	"github.com/cmtoolkit/cmscan/scanner"
	"github.com/cmtoolkit/cmscan/scanner/inspector"
	"github.com/cmtoolkit/cmscan/scanner/modmanager"
	"github.com/cmtoolkit/cmscan/scanner/overlay"
	"github.com/spf13/afero"
	"golang.org/x/term"
)

// Exit codes shared by the commands.
const (
	ExitClean    = 0
	ExitProblems = 1
	ExitFatal    = 2
)

// ScanCmd scans a game installation and its mod layers for problems.
type ScanCmd struct {
	Fs     afero.Fs
	Out    io.Writer
	Config *config.Config

	Format     OutputFormat
	OutputPath string // Required for xlsx, stdout otherwise

	// ProgressOut receives a single updating progress line. Nil disables it.
	ProgressOut io.Writer
	Watch       bool
	Debounce    time.Duration
	Verbosity   int // Default verbosity is 0, 1 is verbose, 2 is debug

	coordinator *scanner.Coordinator
	watchRoots  []string
}

// NewScanCmd creates a ScanCmd on the OS filesystem. Progress is shown when
// stderr is a terminal.
func NewScanCmd(out io.Writer, cfg *config.Config) *ScanCmd {
	s := &ScanCmd{
		Fs:       afero.NewOsFs(),
		Out:      out,
		Config:   cfg,
		Debounce: 2 * time.Second,
	}
	if term.IsTerminal(int(os.Stderr.Fd())) {
		s.ProgressOut = os.Stderr
	}
	return s
}

// Outcome is everything a single scan produced.
type Outcome struct {
	ID           string            `json:"id" yaml:"id"`
	Started      time.Time         `json:"started" yaml:"started"`
	Finished     time.Time         `json:"finished" yaml:"finished"`
	Partial      bool              `json:"partial,omitempty" yaml:"partial,omitempty"`
	Manager      string            `json:"mod_manager" yaml:"mod_manager"`
	Profile      string            `json:"profile,omitempty" yaml:"profile,omitempty"`
	Layers       []overlay.Layer   `json:"layers" yaml:"layers"`
	Installation *inspector.Report `json:"installation" yaml:"installation"`
	Summary      scanner.Summary   `json:"summary" yaml:"summary"`
	Problems     []scanner.Problem `json:"problems" yaml:"problems"`
	Warnings     []string          `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// Run scans once, or keeps rescanning on changes in watch mode.
// Returns exit code: 0 for a clean scan, 1 for problems, 2 for fatal errors
func (s *ScanCmd) Run(ctx context.Context) int {
	code := s.runOnce(ctx)
	if !s.Watch || code == ExitFatal {
		return code
	}
	if err := s.watch(ctx, func() { code = s.runOnce(ctx) }); err != nil {
		fmt.Fprintf(s.Out, "ERROR: %v\n", err)
		return ExitFatal
	}
	return code
}

func (s *ScanCmd) runOnce(ctx context.Context) int {
	out, err := s.Scan(ctx)
	if out == nil {
		fmt.Fprintf(s.Out, "ERROR: %v\n", err)
		if errors.Is(err, scanner.ErrNoDataDirectory) {
			fmt.Fprintf(s.Out, "Set game_path or data_path in the config file, or %s.\n", config.EnvGamePath)
		}
		return ExitFatal
	}
	if werr := s.write(out); werr != nil {
		fmt.Fprintf(s.Out, "ERROR: failed to write results: %v\n", werr)
		return ExitFatal
	}
	if err != nil {
		fmt.Fprintf(s.Out, "WARNING: scan stopped early, results are partial: %v\n", err)
		return ExitFatal
	}
	return out.Summary.GetExitCode()
}

// Scan runs the inspector and a full scan. A cancelled scan returns the
// partial outcome along with the error.
func (s *ScanCmd) Scan(ctx context.Context) (*Outcome, error) {
	staging, err := s.Config.Staging(s.Fs)
	if err != nil {
		return nil, err
	}
	opts, err := s.Config.InspectorOptions()
	if err != nil {
		return nil, err
	}
	dataDir := dataPath(s.Config)
	if s.Verbosity >= 2 {
		log.Printf("DEBUG: scanning %s with %d layers from %s", dataDir, len(staging.Layers), staging.Manager)
	}

	idx := overlay.Build(s.Fs, staging.Layers, dataDir, staging.OverlayOptions())
	s.watchRoots = s.watchRoots[:0]
	for _, l := range idx.Layers() {
		s.watchRoots = append(s.watchRoots, l.Path)
	}
	if staging.ProfileDir != "" {
		s.watchRoots = append(s.watchRoots, staging.ProfileDir)
	}
	report, err := inspector.Inspect(s.Fs, idx, opts)
	if err != nil {
		return nil, err
	}

	if s.coordinator == nil {
		s.coordinator = scanner.NewCoordinator(s.Fs)
	}
	run, err := s.coordinator.Start(ctx, scanner.Request{
		Index:    idx,
		Engine:   report.EngineOptions(s.Config.Rules, s.Config.ScriptHashes),
		Overview: report.Problems,
		Warnings: append(append([]string{}, staging.Warnings...), report.Warnings...),
	})
	if err != nil {
		return nil, err
	}
	result, err := run.Collect(s.progress)
	return newOutcome(result, staging, idx, report, err != nil), err
}

func newOutcome(result scanner.Result, staging modmanager.Staging, idx *overlay.Index, report *inspector.Report, partial bool) *Outcome {
	return &Outcome{
		ID:           result.ID,
		Started:      result.Started,
		Finished:     result.Finished,
		Partial:      partial,
		Manager:      staging.Manager,
		Profile:      staging.Profile,
		Layers:       idx.Layers(),
		Installation: report,
		Summary:      scanner.CalculateSummary(result.Problems),
		Problems:     result.Problems,
		Warnings:     result.Warnings,
	}
}

func dataPath(cfg *config.Config) string {
	if cfg.DataPath != "" {
		return cfg.DataPath
	}
	return filepath.Join(cfg.GamePath, "Data")
}

func (s *ScanCmd) progress(p scanner.Progress) {
	if s.ProgressOut == nil {
		return
	}
	if p.Done {
		fmt.Fprintf(s.ProgressOut, "\r%s\r", strings.Repeat(" ", progressWidth()))
		return
	}
	line := fmt.Sprintf("[%d/%d] Scanning %s", p.Scanned, p.Total, p.Layer)
	if w := progressWidth(); len(line) > w {
		line = line[:w]
	}
	fmt.Fprintf(s.ProgressOut, "\r%-*s", progressWidth(), line)
}

func progressWidth() int {
	if w, _, err := term.GetSize(int(os.Stderr.Fd())); err == nil && w > 1 {
		return w - 1
	}
	return 79
}
