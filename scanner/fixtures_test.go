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
	"io/fs"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/cmtoolkit/cmscan/scanner/overlay"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

func ba2Bytes(version byte, kind string) []byte {
	b := make([]byte, 24)
	copy(b, "BTDX")
	b[4] = version
	copy(b[8:], kind)
	return b
}

func moduleBytes(version []byte) []byte {
	b := make([]byte, 64)
	copy(b, "TES4")
	copy(b[24:], "HEDR")
	copy(b[30:], version)
	return b
}

var (
	validBA2    = ba2Bytes(1, "GNRL")
	validModule = moduleBytes([]byte{0x00, 0x00, 0x80, 0x3f})
)

// tree writes files into a fresh MemMapFs. Keys ending in "/" create empty
// folders.
func tree(t *testing.T, files map[string][]byte) afero.Fs {
	t.Helper()
	fsys := afero.NewMemMapFs()
	for name, data := range files {
		if strings.HasSuffix(name, "/") {
			require.NoError(t, fsys.MkdirAll(name, 0o755))
			continue
		}
		if data == nil {
			data = []byte("x")
		}
		require.NoError(t, afero.WriteFile(fsys, name, data, 0o644))
	}
	return fsys
}

func allRules() Options {
	return Options{Flags: DefaultRuleFlags(), InstallType: InstallNextGen, Language: "en"}
}

func scanAll(t *testing.T, fsys afero.Fs, layers []overlay.Layer, opts Options) []Problem {
	t.Helper()
	idx := overlay.Build(fsys, layers, "/data", overlay.Options{})
	problems, err := NewEngine(opts).Scan(context.Background(), idx)
	require.NoError(t, err)
	return problems
}

func byPath(problems []Problem, rel string) []Problem {
	var out []Problem
	for _, p := range problems {
		if strings.EqualFold(p.RelPath, rel) {
			out = append(out, p)
		}
	}
	return out
}

func keys(problems []Problem) []string {
	out := make([]string, 0, len(problems))
	for _, p := range problems {
		out = append(out, p.Key())
	}
	return out
}

// denyFs fails opens of the listed paths with a permission error.
type denyFs struct {
	afero.Fs
	denied map[string]bool
}

func (d denyFs) Open(name string) (afero.File, error) {
	if d.denied[name] {
		return nil, &os.PathError{Op: "open", Path: name, Err: fs.ErrPermission}
	}
	return d.Fs.Open(name)
}

// recordFs remembers every path opened through it.
type recordFs struct {
	afero.Fs
	mu     sync.Mutex
	opened []string
}

func (r *recordFs) Open(name string) (afero.File, error) {
	r.mu.Lock()
	r.opened = append(r.opened, name)
	r.mu.Unlock()
	return r.Fs.Open(name)
}

func (r *recordFs) reset() {
	r.mu.Lock()
	r.opened = nil
	r.mu.Unlock()
}

// gateFs blocks opens of one path until the gate is closed.
type gateFs struct {
	afero.Fs
	path string
	gate chan struct{}
}

func (g gateFs) Open(name string) (afero.File, error) {
	if name == g.path {
		<-g.gate
	}
	return g.Fs.Open(name)
}
