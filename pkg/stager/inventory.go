// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package stager

import (
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"
)

// Inventory lists the immediate, non-hidden entries of p on fsys.
//
// It returns the entry count and up to limit names in sorted order. When p is
// a regular file the inventory is that single file.
func Inventory(fsys afero.Fs, p string, limit int) (int, []string, error) {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	fi, err := fsys.Stat(p)
	if err != nil {
		return 0, nil, err
	}
	if !fi.IsDir() {
		return 1, []string{fi.Name()}, nil
	}

	entries, err := afero.ReadDir(fsys, p)
	if err != nil {
		return 0, nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	count := len(names)
	if limit > 0 && len(names) > limit {
		names = names[:limit]
	}
	return count, names, nil
}

// inventoryPath returns where the inventory of t is taken.
func inventoryPath(t Target) string {
	if t.Layout == "" {
		return t.Dest
	}
	return filepath.Join(t.Dest, filepath.FromSlash(t.Layout))
}
