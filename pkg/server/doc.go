// Package server owns the listening socket and dispatches accepted
// connections to worker slots.
//
// Each accepted connection becomes a handler.Session. With fewer than two
// workers configured there is no pool and every connection is served on the
// accepting goroutine. Otherwise the first Idle slot takes the connection;
// when all slots are Busy the accepting goroutine serves it itself, so
// accepting pauses until that connection is done. Nothing is queued and
// nothing is rejected.
//
// Shutdown drains the pool, joins the workers and closes the listener, in
// that order. It waits for in-flight connections however long they take.
package server
