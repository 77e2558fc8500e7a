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

package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/cmtoolkit/cmscan/scanner"
	"github.com/cmtoolkit/cmscan/scanner/inspector"
	"github.com/cmtoolkit/cmscan/scanner/modmanager"
	"github.com/cmtoolkit/cmscan/scanner/overlay"
	"github.com/joho/godotenv"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

//go:embed default-config.yml
var defaultConfig []byte

// Environment variables that override the configuration file.
const (
	EnvConfig      = "CMSCAN_CONFIG"
	EnvGamePath    = "CMSCAN_GAME_PATH"
	EnvDataPath    = "CMSCAN_DATA_PATH"
	EnvMO2INI      = "CMSCAN_MO2_INI"
	EnvLanguage    = "CMSCAN_LANGUAGE"
	EnvInstallType = "CMSCAN_INSTALL_TYPE"
)

type Config struct {
	GamePath     string             `yaml:"game_path"`
	DataPath     string             `yaml:"data_path"`
	InstallType  string             `yaml:"install_type"`
	Language     string             `yaml:"language"`
	PluginsFile  string             `yaml:"plugins_file"`
	CCCFile      string             `yaml:"ccc_file"`
	GameINIs     []string           `yaml:"game_inis"`
	PrefsINI     string             `yaml:"prefs_ini"`
	ModOrganizer ModOrganizerConfig `yaml:"mod_organizer"`
	Layers       []LayerConfig      `yaml:"layers"`
	SkipDirs     []string           `yaml:"skip_directories"`
	SkipSuffixes []string           `yaml:"skip_suffixes"`
	Rules        scanner.RuleFlags  `yaml:"rules"`
	ScriptHashes map[string]string  `yaml:"script_hashes"`
}

type ModOrganizerConfig struct {
	INI string `yaml:"ini"`
}

type LayerConfig struct {
	Name string `yaml:"name"`
	Path string `yaml:"path"`
}

// NewConfig decodes c over the embedded defaults. Unknown keys, including
// unknown rule names, are an error.
func NewConfig(c []byte) (*Config, error) {
	config, err := DefaultConfig()
	if err != nil {
		return nil, err
	}
	if err := decodeStrict(c, config); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func DefaultConfig() (*Config, error) {
	var config Config
	if err := decodeStrict(defaultConfig, &config); err != nil {
		return nil, fmt.Errorf("failed to parse default config: %w", err)
	}
	return &config, nil
}

// Load reads the configuration file at path. An empty path returns the
// defaults.
func Load(fsys afero.Fs, path string) (*Config, error) {
	if path == "" {
		return DefaultConfig()
	}
	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	config, err := NewConfig(data)
	if err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}
	return config, nil
}

func decodeStrict(data []byte, out *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// ReadEnvFile parses a dotenv file. A missing file is not an error.
func ReadEnvFile(fsys afero.Fs, path string) (map[string]string, error) {
	f, err := fsys.Open(path)
	if err != nil {
		if errors.Is(err, afero.ErrFileNotFound) {
			return map[string]string{}, nil
		}
		return nil, err
	}
	defer f.Close()

	env, err := godotenv.Parse(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return env, nil
}

// ApplyEnv overrides settings from CMSCAN_* variables. lookup is usually
// os.LookupEnv.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	for name, field := range map[string]*string{
		EnvGamePath:    &c.GamePath,
		EnvDataPath:    &c.DataPath,
		EnvMO2INI:      &c.ModOrganizer.INI,
		EnvLanguage:    &c.Language,
		EnvInstallType: &c.InstallType,
	} {
		if v, ok := lookup(name); ok {
			*field = v
		}
	}
	return c.Validate()
}

// Validate checks settings that YAML decoding cannot.
func (c *Config) Validate() error {
	if _, err := ParseInstallType(c.InstallType); err != nil {
		return err
	}
	if c.ModOrganizer.INI != "" && len(c.Layers) > 0 {
		return fmt.Errorf("mod_organizer and layers are mutually exclusive")
	}
	seen := map[string]bool{}
	for i, l := range c.Layers {
		if l.Name == "" || l.Path == "" {
			return fmt.Errorf("layer %d needs both a name and a path", i+1)
		}
		if seen[l.Name] {
			return fmt.Errorf("duplicate layer name %q", l.Name)
		}
		seen[l.Name] = true
	}
	return nil
}

// ParseInstallType maps a configured install type to the scanner's. Empty
// and "auto" mean detect.
func ParseInstallType(s string) (scanner.InstallType, error) {
	switch strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "_", "-") {
	case "", "auto":
		return "", nil
	case "old-gen", "og":
		return scanner.InstallOldGen, nil
	case "down-grade", "downgrade", "dg":
		return scanner.InstallDownGrade, nil
	case "next-gen", "ng":
		return scanner.InstallNextGen, nil
	default:
		return "", fmt.Errorf("unknown install type %q, expected auto, old-gen, down-grade or next-gen", s)
	}
}

// Staging returns the mod layers the configuration selects. A Mod
// Organizer instance also fills GamePath when it is unset.
func (c *Config) Staging(fsys afero.Fs) (modmanager.Staging, error) {
	if c.ModOrganizer.INI != "" {
		s, err := modmanager.ReadModOrganizer(fsys, c.ModOrganizer.INI)
		if err != nil {
			return s, err
		}
		s.SkipDirs = append(s.SkipDirs, c.SkipDirs...)
		s.SkipSuffixes = append(s.SkipSuffixes, c.SkipSuffixes...)
		if c.GamePath == "" {
			c.GamePath = s.GamePath
		}
		return s, nil
	}
	layers := make([]overlay.Layer, 0, len(c.Layers))
	for _, l := range c.Layers {
		layers = append(layers, overlay.Layer{Name: l.Name, Path: l.Path})
	}
	return modmanager.Static(layers, c.SkipDirs, c.SkipSuffixes), nil
}

// InspectorOptions locates the installation files for the inspector.
func (c *Config) InspectorOptions() (inspector.Options, error) {
	install, err := ParseInstallType(c.InstallType)
	if err != nil {
		return inspector.Options{}, err
	}
	return inspector.Options{
		Paths: inspector.Paths{
			Game:    c.GamePath,
			Data:    c.DataPath,
			Plugins: c.PluginsFile,
			CCC:     c.CCCFile,
			INIs:    c.GameINIs,
			Prefs:   c.PrefsINI,
		},
		InstallType: install,
		Language:    c.Language,
	}, nil
}
