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
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

const sorterINI = "; FindNode OBTS(FindNode \"Addon Index\" stays commented\r\n" +
	"filterByArmors=Fallout4.esm|1EED7:FindNode OBTS(FindNode \"Addon Index\" (1))\r\n" +
	"filterByWeapons=Fallout4.esm|4822:FindNode OBTS(FindNode 'Addon Index' (2))\r\n" +
	"filterByOther=unrelated\r\n"

func TestAutoFixComplexSorter(t *testing.T) {
	t.Parallel()

	fsys := tree(t, map[string][]byte{"/data/Complex Sorter/INI/Armor.ini": []byte(sorterINI)})
	problems := scanAll(t, fsys, nil, allRules())
	require.Len(t, problems, 1)

	res, err := AutoFix(fsys, problems[0])
	require.NoError(t, err)
	require.Equal(t, 2, res.LinesFixed)

	data, err := afero.ReadFile(fsys, "/data/Complex Sorter/INI/Armor.ini")
	require.NoError(t, err)
	require.Equal(t, "; FindNode OBTS(FindNode \"Addon Index\" stays commented\r\n"+
		"filterByArmors=Fallout4.esm|1EED7:FindNode OBTS(FindNode \"Parent Combination Index\" (1))\r\n"+
		"filterByWeapons=Fallout4.esm|4822:FindNode OBTS(FindNode 'Parent Combination Index' (2))\r\n"+
		"filterByOther=unrelated\r\n", string(data))

	// Fixed files no longer trigger the rule and a second fix is a no-op.
	require.Empty(t, scanAll(t, fsys, nil, allRules()))
	_, err = AutoFix(fsys, problems[0])
	require.ErrorIs(t, err, ErrFixNotApplicable)
}

func TestAutoFixUnsupported(t *testing.T) {
	_, err := AutoFix(afero.NewMemMapFs(), Problem{Category: CategoryJunkFile})
	require.ErrorIs(t, err, ErrNothingToFix)

	p := Problem{
		Category: CategoryToolConfigError,
		Path:     "/missing.ini",
		Solution: &Solution{Kind: SolutionRunAutoFix},
	}
	_, err = AutoFix(afero.NewMemMapFs(), p)
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrFixNotApplicable)
}
