// Package harness replays sync scenarios against real replicas and an
// in-memory authority.
//
// A scenario names one or more replicas, each backed by its own in-memory
// SQLite store, and a sequence of steps: local edits, direct writes to the
// authority, fault injection, clock advances and sync sessions. After the
// steps run, assertions check local and remote records and the calls the
// authority received.
//
// # Scenario Format
//
//	name: offline_create_sync
//	description: "A task created offline is pushed on the next sync"
//	replicas: [phone]
//	steps:
//	  - create: { replica: phone, title: "Buy milk" }
//	  - advance: 1s
//	  - sync: { replica: phone }
//	    expect: { success: true, pushed: 1, pulled: 0 }
//	assertions:
//	  - type: local_task
//	    replica: phone
//	    id: phone-1
//	    expect: { dirty: false, synced: true }
//	  - type: call_order
//	    ops: [push, pull]
//
// # Determinism
//
// All replicas and the authority share one testutil.FixedClock that only
// moves on "advance" steps. Task ids come from a per-replica
// testutil.SequenceGenerator prefixed with the replica name ("phone-1"),
// and retries never sleep. The recorded authority calls are therefore
// byte-identical across runs and are compared against golden files with
// RunWithGolden.
package harness
