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

// Package hostsfile parses HOSTS-style static address files and serves
// name lookups from them.
package hostsfile

import (
	"bufio"
	"io"
	"net/netip"
	"os"
	"strings"

	"github.com/pkg/errors"
)

// File is an immutable parsed hosts database. Lookups are safe for
// concurrent use.
type File struct {
	byName map[string][]netip.Addr
}

// Load reads and parses the file at path.
func Load(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening hosts file %q", path)
	}
	defer f.Close()
	parsed, err := Parse(f)
	return parsed, errors.Wrapf(err, "parsing hosts file %q", path)
}

// Parse reads hosts syntax: one address followed by one or more names
// per line, '#' starting a comment. Unparseable lines are skipped, as
// system resolvers do.
func Parse(r io.Reader) (*File, error) {
	file := &File{byName: make(map[string][]netip.Addr)}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		addr, err := netip.ParseAddr(fields[0])
		if err != nil {
			continue
		}
		addr = addr.Unmap()
		for _, name := range fields[1:] {
			name = strings.ToLower(strings.TrimSuffix(name, "."))
			file.byName[name] = append(file.byName[name], addr)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "reading hosts data")
	}
	return file, nil
}

// Lookup returns the addresses mapped to hostname, IPv6 before IPv4,
// or nil when the name is absent. Matching is case-insensitive.
func (f *File) Lookup(hostname string) []netip.Addr {
	if f == nil {
		return nil
	}
	addrs := f.byName[strings.ToLower(strings.TrimSuffix(hostname, "."))]
	if len(addrs) == 0 {
		return nil
	}
	out := make([]netip.Addr, 0, len(addrs))
	for _, a := range addrs {
		if a.Is6() && !a.Is4In6() {
			out = append(out, a)
		}
	}
	for _, a := range addrs {
		if a.Is4() || a.Is4In6() {
			out = append(out, a)
		}
	}
	return out
}

// Len returns the number of distinct names.
func (f *File) Len() int {
	if f == nil {
		return 0
	}
	return len(f.byName)
}
