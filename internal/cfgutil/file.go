// Copyright (c) 2026 The hexstody developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package cfgutil

import "os"

// FileExists reports whether the named file or directory exists.
func FileExists(filePath string) (bool, error) {
	_, err := os.Stat(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// EnsureDir creates dir and its parents with owner only permissions unless it
// already exists.  It fails when dir names something that is not a directory.
func EnsureDir(dir string) error {
	exists, err := FileExists(dir)
	if err != nil {
		return err
	}
	if !exists {
		return os.MkdirAll(dir, 0700)
	}

	fi, err := os.Stat(dir)
	if err != nil {
		return err
	}
	if !fi.IsDir() {
		return &os.PathError{
			Op:   "mkdir",
			Path: dir,
			Err:  os.ErrExist,
		}
	}
	return nil
}
