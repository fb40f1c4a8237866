// Package server runs the HTTP event loop: a single goroutine multiplexing the
// listener, the control channel and every client socket through epoll, a
// bounded worker pool doing parsing and (under the reactor model) socket I/O,
// and an idle timer list that evicts connections nobody has talked to.
//
// Client sockets are registered one-shot. Whoever handles an event re-arms
// the socket as its last action, so at most one goroutine works on a
// connection at a time. Closing is owned by the event loop; workers that hit
// an I/O error post a reap command instead. Each client slot carries a
// generation so stale timer or reap callbacks cannot close a newer
// connection reusing the same fd, and a reference count that postpones the
// final close(2) until the last worker holding the connection returns.
package server
