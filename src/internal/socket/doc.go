// Package socket implements the two halves of a tunnel: the client-facing
// proxy socket that parses the initial request, and the upstream adapter
// that connects to the destination.
//
// Both halves sit on a RawSocket, which performs the actual I/O and reports
// completions back through a RawDelegate. Every method in this package must
// be called from the owning tunnel server's executor, and every callback is
// delivered there as well.
//
// A socket moves through invalid, connecting, established, disconnecting
// and closed, in that order. Only one read and one write may be outstanding
// on a socket at a time: the next call must wait for the completion of the
// previous one.
package socket
