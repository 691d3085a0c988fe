// Copyright 2024 The tagheap Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Runtime configuration (spec §9 "Paranoia mode"). Generalizes the
// teacher's $GOGC/$GODEBUG environment-variable configuration
// (extern.go, mgc.go's readgogc) into a Config struct with the same
// env-var-driven defaults convention.

package gc

import "os"

// Config holds the collector's tunable knobs.
type Config struct {
	Heap HeapConfig

	// Paranoid, when true, poisons freelist interiors with -1 words after
	// a pinned-region sweep to trap use-after-free (spec §4.6 step 5, §9
	// "Paranoia mode": "load-bearing for debugging allocator bugs").
	Paranoid bool

	// GCTrace is set from TAGHEAP_GCTRACE, named after the teacher's
	// debug.gctrace knob in mgc.go's gc(mode). The collector does not read
	// it: no per-cycle summary line is emitted whatever its value.
	GCTrace bool

	// FreelistHeadroomBlocks is the headroom the driver subtracts, as a
	// word count, when recomputing memory-expansion-remaining (spec §4.8
	// step 12: "always keeping >= 256 blocks of headroom").
	FreelistHeadroomBlocks uint64

	// TrimAlignmentWords rounds the newspace trim boundary (spec §4.8 step
	// 11: "round bump to a 2 MiB boundary"), expressed in words so it
	// scales with the word-addressed simulated heap rather than hard-coding
	// a byte count meaningless at this heap's scale.
	TrimAlignmentWords uint64
}

// DefaultConfig reads TAGHEAP_PARANOID and TAGHEAP_GCTRACE from the
// environment, the way the teacher's readgogc reads $GOGC.
func DefaultConfig() Config {
	return Config{
		Heap:                    DefaultHeapConfig(),
		Paranoid:                envBool("TAGHEAP_PARANOID"),
		GCTrace:                 envBool("TAGHEAP_GCTRACE"),
		FreelistHeadroomBlocks:  256,
		TrimAlignmentWords:      1 << 12,
	}
}

func envBool(name string) bool {
	v := os.Getenv(name)
	return v == "1" || v == "true" || v == "on"
}
