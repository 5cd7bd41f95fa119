//go:build !maestro_ecc_fault

package transport

// eccMaybeCorrupt is the no-op build: the default, matching the
// original source's actual runtime behavior with the ECC test hook
// compiled out (see SPEC_FULL.md §4.1 and Design Notes open question 2).
func eccMaybeCorrupt(frame []byte) []byte { return frame }
