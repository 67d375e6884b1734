// Copyright (c) 2026 Tom Gelhausen and/or affiliates.
//
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at:
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package hostsfile

import (
	"net/netip"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const sample = `
# static entries
127.0.0.1   localhost
::1         localhost ip6-localhost
192.168.1.7 printer.lan printer   # office printer
fd00::7     printer.lan
not-an-ip   broken.lan
10.0.0.1
`

func TestParseAndLookup(t *testing.T) {
	f, err := Parse(strings.NewReader(sample))
	require.NoError(t, err)
	require.Equal(t, 4, f.Len())

	addrs := f.Lookup("printer.lan")
	require.Equal(t, []netip.Addr{
		netip.MustParseAddr("fd00::7"),
		netip.MustParseAddr("192.168.1.7"),
	}, addrs, "IPv6 entries sort first")

	require.Equal(t, []netip.Addr{netip.MustParseAddr("192.168.1.7")},
		f.Lookup("printer"))
	require.Nil(t, f.Lookup("broken.lan"), "unparseable lines are skipped")
	require.Nil(t, f.Lookup("absent.lan"))
}

func TestLookupNormalizesNames(t *testing.T) {
	f, err := Parse(strings.NewReader("10.1.2.3 Mixed.Case.Example\n"))
	require.NoError(t, err)
	require.NotNil(t, f.Lookup("mixed.case.example"))
	require.NotNil(t, f.Lookup("MIXED.CASE.EXAMPLE."))
}

func TestNilFileLookup(t *testing.T) {
	var f *File
	require.Nil(t, f.Lookup("anything"))
	require.Zero(t, f.Len())
}
