// Copyright (C) The SPRA Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package spra

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// GroupRef addresses one member of a gene group, either by feature
// name or by 1-based column position. Exactly one of the two forms is
// set; the form is decided once at parse time.
type GroupRef struct {
	Name  string
	Index int // 1-based; 0 means the reference is by name
}

// ByIndex reports whether the reference is positional.
func (r GroupRef) ByIndex() bool { return r.Index > 0 }

func (r GroupRef) String() string {
	if r.ByIndex() {
		return strconv.Itoa(r.Index)
	}
	return r.Name
}

// Group is a named collection of feature references.
type Group struct {
	Name    string
	Members []GroupRef
}

// GroupDefinition is an ordered collection of named groups. Order is
// significant: it fixes the group ids and the latent column layout
// produced by expansion.
type GroupDefinition []Group

// ParseGMT reads gene groups in GMT format: one group per line,
// tab-separated, first field the group name, second a description
// (ignored), remaining fields the members. A member consisting only of
// digits is taken as a 1-based column index; anything else is a
// feature name.
func ParseGMT(rdr io.Reader) (GroupDefinition, error) {
	var def GroupDefinition
	seen := map[string]bool{}
	scanner := bufio.NewScanner(rdr)
	scanner.Buffer(make([]byte, 1<<20), 1<<24)
	lineno := 0
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r\n")
		lineno++
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) < 3 {
			return nil, fmt.Errorf("gmt line %d: %d fields, expected at least name, description, and one member", lineno, len(fields))
		}
		name := fields[0]
		if name == "" {
			return nil, fmt.Errorf("gmt line %d: empty group name", lineno)
		}
		if seen[name] {
			return nil, fmt.Errorf("gmt line %d: duplicate group name %q", lineno, name)
		}
		seen[name] = true
		grp := Group{Name: name}
		for _, f := range fields[2:] {
			if f == "" {
				continue
			}
			if idx, err := strconv.Atoi(f); err == nil && idx > 0 {
				grp.Members = append(grp.Members, GroupRef{Index: idx})
			} else {
				grp.Members = append(grp.Members, GroupRef{Name: f})
			}
		}
		if len(grp.Members) == 0 {
			return nil, fmt.Errorf("gmt line %d: group %q has no members", lineno, name)
		}
		def = append(def, grp)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(def) == 0 {
		return nil, fmt.Errorf("no groups found")
	}
	return def, nil
}

func loadGroups(path string) (GroupDefinition, error) {
	f, err := open(path, nil)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	def, err := ParseGMT(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return def, nil
}
