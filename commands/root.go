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
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/cmtoolkit/cmscan/commands/config"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

// DefaultFs can be set by tests to use an in-memory filesystem. If nil,
// the commands use the real OS filesystem.
var DefaultFs afero.Fs

func defaultFs() afero.Fs {
	if DefaultFs != nil {
		return DefaultFs
	}
	return afero.NewOsFs()
}

type rootFlags struct {
	configPath string
	envFile    string
	logDir     string
	verbosity  int
}

// Execute runs the cmscan command line and returns the process exit code.
func Execute(ctx context.Context, args []string, out io.Writer) int {
	code := ExitClean
	root := NewRootCmd(ctx, out, &code)
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		return ExitFatal
	}
	return code
}

// NewRootCmd returns the cmscan command with its subcommands. Subcommands
// store their exit code in code.
func NewRootCmd(ctx context.Context, out io.Writer, code *int) *cobra.Command {
	flags := &rootFlags{}
	var closeLog func()

	root := &cobra.Command{
		Use:          "cmscan",
		Short:        "Scan a modded Fallout 4 installation for data integrity problems",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			c, err := setupLogging(defaultFs(), flags.logDir)
			if err != nil {
				return err
			}
			closeLog = c
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if closeLog != nil {
				closeLog()
			}
		},
	}
	root.SetOut(out)
	root.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "Path to the configuration file (env "+config.EnvConfig+")")
	root.PersistentFlags().StringVar(&flags.envFile, "env-file", ".env", "Dotenv file with CMSCAN_* overrides")
	root.PersistentFlags().StringVar(&flags.logDir, "log-dir", "", "Also write logs to cmscan.log in this directory")
	root.PersistentFlags().IntVarP(&flags.verbosity, "verbosity", "v", 0, "0 normal, 1 verbose, 2 debug")

	root.AddCommand(newScanCommand(ctx, out, flags, code))
	root.AddCommand(newProbeCommand(out, code))
	root.AddCommand(newFixCommand(ctx, out, flags, code))
	return root
}

func newScanCommand(ctx context.Context, out io.Writer, flags *rootFlags, code *int) *cobra.Command {
	var (
		format     OutputFormat
		outputPath string
		watch      bool
		debounce   time.Duration
		noProgress bool
		enable     []string
		disable    []string
	)
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan the data directory and mod layers for problems",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newScanCmdFromFlags(out, flags)
			if err != nil {
				return err
			}
			for _, rules := range []struct {
				names []string
				on    bool
			}{{enable, true}, {disable, false}} {
				for _, name := range rules.names {
					if err := s.Config.Rules.Set(name, rules.on); err != nil {
						return err
					}
				}
			}
			s.Format = format
			s.OutputPath = outputPath
			s.Watch = watch
			s.Debounce = debounce
			if noProgress {
				s.ProgressOut = nil
			}
			*code = s.Run(ctx)
			return nil
		},
	}
	cmd.Flags().VarP(NewFormatFlag(&format), "format", "f", "Output format: text, json, yaml or xlsx")
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Write results to this file (required for xlsx)")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Rescan whenever the data directory or a mod changes")
	cmd.Flags().DurationVar(&debounce, "debounce", 2*time.Second, "Quiet period before a watch rescan")
	cmd.Flags().BoolVar(&noProgress, "no-progress", false, "Do not show the progress line")
	cmd.Flags().StringSliceVar(&enable, "enable", nil, "Enable rule groups (comma separated)")
	cmd.Flags().StringSliceVar(&disable, "disable", nil, "Disable rule groups (comma separated)")
	return cmd
}

func newProbeCommand(out io.Writer, code *int) *cobra.Command {
	return &cobra.Command{
		Use:   "probe FILE...",
		Short: "Classify archive and module files by their headers",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := &ProbeCmd{Fs: defaultFs(), Out: out}
			*code = p.Run(args)
			return nil
		},
	}
}

func newFixCommand(ctx context.Context, out io.Writer, flags *rootFlags, code *int) *cobra.Command {
	var (
		dryRun bool
		yes    bool
		paths  []string
	)
	cmd := &cobra.Command{
		Use:   "fix",
		Short: "Apply automatic fixes for tool configuration problems",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := &FixCmd{DryRun: dryRun, Yes: yes, Paths: paths}
			if len(paths) == 0 {
				s, err := newScanCmdFromFlags(out, flags)
				if err != nil {
					return err
				}
				s.ProgressOut = nil
				f.Scan = s
			} else {
				f.Scan = &ScanCmd{Fs: defaultFs(), Out: out, Verbosity: flags.verbosity}
			}
			*code = f.Run(ctx)
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Don't modify anything; show planned changes")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Apply changes without confirmation")
	cmd.Flags().StringSliceVar(&paths, "path", nil, "Fix these files instead of scanning")
	return cmd
}

func newScanCmdFromFlags(out io.Writer, flags *rootFlags) (*ScanCmd, error) {
	cfg, err := loadConfig(defaultFs(), flags, os.LookupEnv)
	if err != nil {
		return nil, err
	}
	s := NewScanCmd(out, cfg)
	s.Fs = defaultFs()
	s.Verbosity = flags.verbosity
	return s, nil
}

// loadConfig reads the config file and applies CMSCAN_* overrides. Process
// environment variables win over the env file.
func loadConfig(fsys afero.Fs, flags *rootFlags, lookupEnv func(string) (string, bool)) (*config.Config, error) {
	fileEnv := map[string]string{}
	if flags.envFile != "" {
		var err error
		if fileEnv, err = config.ReadEnvFile(fsys, flags.envFile); err != nil {
			return nil, err
		}
	}
	lookup := func(name string) (string, bool) {
		if v, ok := lookupEnv(name); ok {
			return v, true
		}
		v, ok := fileEnv[name]
		return v, ok
	}

	path := flags.configPath
	if path == "" {
		path, _ = lookup(config.EnvConfig)
	}
	cfg, err := config.Load(fsys, path)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(lookup); err != nil {
		return nil, fmt.Errorf("invalid environment override: %w", err)
	}
	if flags.verbosity >= 2 {
		log.Printf("DEBUG: rules enabled: %v", cfg.Rules.Enabled())
	}
	return cfg, nil
}

// setupLogging sends logs to stderr, and also to cmscan.log when logDir is
// set. The returned func closes the log file.
func setupLogging(fsys afero.Fs, logDir string) (func(), error) {
	if logDir == "" {
		log.SetOutput(os.Stderr)
		return func() {}, nil
	}
	logFilePath := filepath.Join(logDir, "cmscan.log")
	logFile, err := fsys.OpenFile(logFilePath, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0o660)
	if err != nil {
		return nil, fmt.Errorf("failed to open log for writing: %w", err)
	}
	log.SetOutput(io.MultiWriter(os.Stderr, logFile))
	return func() {
		log.SetOutput(os.Stderr)
		logFile.Close()
	}, nil
}
