// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package verification

import "sort"

// KnownVersions is an immutable set of regulatory document versions that
// have already been seen. Callers own it: it is passed into DetectNewVersions
// and the updated set is returned.
type KnownVersions struct {
	versions []string
}

// NewKnownVersions builds a set from the given labels. Empty labels are ignored.
func NewKnownVersions(versions ...string) KnownVersions {
	return KnownVersions{}.with(versions)
}

// Contains reports whether v has been seen.
func (k KnownVersions) Contains(v string) bool {
	i := sort.SearchStrings(k.versions, v)
	return i < len(k.versions) && k.versions[i] == v
}

// List returns the versions in sorted order.
func (k KnownVersions) List() []string {
	return append([]string(nil), k.versions...)
}

// Len returns the number of known versions.
func (k KnownVersions) Len() int { return len(k.versions) }

func (k KnownVersions) with(add []string) KnownVersions {
	merged := append([]string(nil), k.versions...)
	for _, v := range add {
		if v == "" {
			continue
		}
		i := sort.SearchStrings(merged, v)
		if i < len(merged) && merged[i] == v {
			continue
		}
		merged = append(merged, "")
		copy(merged[i+1:], merged[i:])
		merged[i] = v
	}
	return KnownVersions{versions: merged}
}

// DetectNewVersions returns the versions carried by passages that are not
// in known (sorted, de-duplicated) and the set extended with them.
func DetectNewVersions(known KnownVersions, passages []Passage) (KnownVersions, []string) {
	var fresh []string
	seen := make(map[string]bool)
	for _, p := range passages {
		if p.Version == "" || seen[p.Version] || known.Contains(p.Version) {
			continue
		}
		seen[p.Version] = true
		fresh = append(fresh, p.Version)
	}
	if len(fresh) == 0 {
		return known, nil
	}
	sort.Strings(fresh)
	return known.with(fresh), fresh
}
