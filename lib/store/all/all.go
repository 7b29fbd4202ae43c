// Package all registers every store backend so that a backend named in the
// policy file can always be resolved.
package all

import (
	_ "github.com/uvensys/abacus/lib/store/bbolt"
	_ "github.com/uvensys/abacus/lib/store/memory"
	_ "github.com/uvensys/abacus/lib/store/valkey"
)
