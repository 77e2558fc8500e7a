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
	"bufio"
	"bytes"
	"log"
	"strings"

	"github.com/spf13/afero"
	"golang.org/x/exp/slices"
	"gopkg.in/ini.v1"
)

// archiveListKeys are the [Archive] settings naming archives the game loads
// regardless of plugins.
var archiveListKeys = []string{
	"sResourceIndexFileList",
	"sResourceStartUpArchiveList",
	"SResourceArchiveList",
	"SResourceArchiveList2",
}

// settings are merged game INI files. Section and key names are case
// insensitive like the game's own parser.
type settings struct {
	file *ini.File
}

func loadSettings(fsys afero.Fs, paths ...string) *settings {
	s := &settings{file: ini.Empty(ini.LoadOptions{
		Insensitive:             true,
		SkipUnrecognizableLines: true,
	})}
	for _, p := range paths {
		if p == "" {
			continue
		}
		data, err := afero.ReadFile(fsys, p)
		if err != nil {
			log.Printf("DEBUG: skipping settings file %s: %v", p, err)
			continue
		}
		if err := s.file.Append(data); err != nil {
			log.Printf("WARNING: malformed settings file %s: %v", p, err)
		}
	}
	return s
}

func (s *settings) value(section, key, def string) string {
	v := strings.TrimSpace(s.file.Section(section).Key(key).String())
	if v == "" {
		return def
	}
	return v
}

// list splits a comma separated setting.
func (s *settings) list(section, key string) []string {
	var out []string
	for _, item := range strings.Split(s.value(section, key, ""), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func readLines(fsys afero.Fs, path string) ([]string, error) {
	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		return nil, err
	}
	var lines []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" && !strings.HasPrefix(line, "#") {
			lines = append(lines, line)
		}
	}
	return lines, sc.Err()
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
