// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

//go:build !unix

package ledger

import "os"

// lockFile is a no-op where flock is unavailable; only the in-process
// mutex applies.
func lockFile(_ *os.File) (func() error, error) {
	return func() error { return nil }, nil
}
