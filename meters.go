// Copyright 2024 The tagheap Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Meters (spec §6 "Read-only meters": dynamic-space-size, words-consed,
// gc-epoch, memory-expansion-remaining, and friends). The teacher keeps
// the equivalent numbers as package-level counters read by
// runtime.ReadMemStats (mgc.go's memstats); this repo exports them as
// Prometheus collectors instead, per SPEC_FULL.md's domain-stack wiring
// for github.com/prometheus/client_golang.

package gc

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Meters holds the collector's externally observable counters and gauges.
// All of them are read-only from a caller's perspective; only the
// collector itself ever mutates them, mirroring spec §6's "these are
// read-only; there is no set_gc_epoch" note.
type Meters struct {
	reg *prometheus.Registry

	objectsCopied prometheus.Counter
	wordsCopied   prometheus.Counter

	cyclesCompleted prometheus.Counter
	gcEpoch         prometheus.Gauge

	dynamicSpaceSizeWords prometheus.Gauge
	wordsConsed           prometheus.Counter

	memoryExpansionRemaining prometheus.Gauge

	pinnedBytesUsed prometheus.Gauge
	wiredBytesUsed  prometheus.Gauge

	weakPointersBroken prometheus.Counter
	finalizersRun      prometheus.Counter
}

func newMeters() *Meters {
	reg := prometheus.NewRegistry()
	m := &Meters{
		reg: reg,
		objectsCopied: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tagheap",
			Name:      "objects_copied_total",
			Help:      "Objects relocated from oldspace to newspace by Transport.",
		}),
		wordsCopied: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tagheap",
			Name:      "words_copied_total",
			Help:      "Words relocated from oldspace to newspace by Transport.",
		}),
		cyclesCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tagheap",
			Name:      "cycles_completed_total",
			Help:      "Number of collection cycles that ran to completion.",
		}),
		gcEpoch: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "tagheap",
			Name:      "gc_epoch",
			Help:      "The collector's gc-epoch (spec §6).",
		}),
		dynamicSpaceSizeWords: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "tagheap",
			Name:      "dynamic_space_size_words",
			Help:      "Live words occupying newspace immediately after the last cycle.",
		}),
		wordsConsed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tagheap",
			Name:      "words_consed_total",
			Help:      "Words allocated by bump allocation since startup.",
		}),
		memoryExpansionRemaining: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "tagheap",
			Name:      "memory_expansion_remaining_words",
			Help:      "Headroom before the heap must grow (spec §4.8 step 12).",
		}),
		pinnedBytesUsed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "tagheap",
			Name:      "pinned_words_used",
			Help:      "Words in use in the pinned region.",
		}),
		wiredBytesUsed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "tagheap",
			Name:      "wired_words_used",
			Help:      "Words in use in the wired region.",
		}),
		weakPointersBroken: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tagheap",
			Name:      "weak_pointers_broken_total",
			Help:      "Weak pointers whose value was cleared by the weak fixpoint.",
		}),
		finalizersRun: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tagheap",
			Name:      "finalizers_run_total",
			Help:      "Finalizers executed after a cycle (spec §4.7 step, post-cycle).",
		}),
	}
	reg.MustRegister(
		m.objectsCopied, m.wordsCopied, m.cyclesCompleted, m.gcEpoch,
		m.dynamicSpaceSizeWords, m.wordsConsed, m.memoryExpansionRemaining,
		m.pinnedBytesUsed, m.wiredBytesUsed, m.weakPointersBroken, m.finalizersRun,
	)
	return m
}

// Registry exposes the Prometheus registry backing the meters, so a caller
// can serve them over /metrics the usual way.
func (m *Meters) Registry() *prometheus.Registry { return m.reg }
