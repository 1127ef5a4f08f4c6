// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package goparallel runs synchronous Go functions in a pool of auxiliary
// worker processes, for offloading CPU-bound or blocking work from a
// single-threaded cooperative host built on [github.com/joeycumines/go-eventloop].
//
// # Architecture
//
// [RunSync] is the public entry point: it acquires a concurrency [Limiter],
// pulls an idle [*WorkerHandle] from the active [Scope]'s cache (or starts a
// new one), and executes the call under a context that [WithAbortSignal]
// can additionally tie to an
// [github.com/joeycumines/go-eventloop.AbortController], so the same
// cancellation vocabulary used elsewhere on a cooperative event loop
// reaches across the process boundary. Workers are long-lived child
// processes speaking a length-framed wire protocol (package internal/wire)
// over a pair of OS pipes, woken by a dedicated single-byte rendezvous pipe
// that stands in for the two-party process barrier the original design
// uses.
//
// Every program that imports this package must call [Init] at the very top
// of main, before flag parsing or any other setup: if the process was
// re-executed as a worker, Init runs the worker loop and never returns.
//
// # Usage
//
//	func main() {
//	    if goparallel.Init() {
//	        return // unreachable: Init exits the process for workers
//	    }
//
//	    result, err := goparallel.RunSync(context.Background(), square, []any{7})
//	    ...
//	}
//
//	var square = goparallel.Register("square", func(_ context.Context, args []any) (any, error) {
//	    n := args[0].(int)
//	    return n * n, nil
//	})
//
// # Non-goals
//
// Sharing memory with workers, streaming partial results, scheduling
// fairness beyond LIFO, and graceful in-process cancellation of the user
// function (cancellation is always OS-level process termination).
package goparallel
