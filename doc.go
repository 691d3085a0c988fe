// Copyright 2024 The tagheap Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

/*
Package gc implements the garbage collector of a tag-bit-based managed
runtime for a dynamically typed language on a 64-bit flat-address machine.

The collector manages a copying semispace for ordinary mutable heap (general
objects and cons cells) and pinned mark-sweep regions (wired and pinned) for
objects whose address must not change. It discovers roots by walking machine
stacks with per-PC layout metadata, supports weak references with finalizers
via the Haible/Peyton-Jones fixpoint algorithm, and runs under a cooperative
stop-the-world supervisor.

The package is not concurrent with mutators, not generational, and does not
compact pinned regions or defragment across region boundaries — see Config
and the Supervisor interface for the knobs a host runtime must provide.

Environment variables

TAGHEAP_PARANOID enables poisoning of freelist interiors with a sentinel
value after a pinned-region sweep, to trap use-after-free during
development; see Config.Paranoid and the design note on paranoia mode.

TAGHEAP_GCTRACE sets Config.GCTrace. The collector does not act on it; no
per-cycle summary line is logged.
*/
package gc
