// Package log provides leveled logging for keen-relay.
//
// The package exposes global Printf-style functions backed by logrus. Every
// line is prefixed with a colored level tag:
//
//   - [DBG]: detailed diagnostics, only shown in verbose mode
//   - [INF]: general informational messages
//   - [WRN]: potentially problematic situations
//   - [ERR]: failures, always written to stderr
//
// # Example Usage
//
//	log.Infof("Starting DNS server on %s:%d", addr, port)
//	log.Warnf("[%04x] No pending session for response", id)
//
// Enabling verbose mode for debug output:
//
//	log.SetVerbose(true)
//	log.Debugf("Packet dropped: %v", err)
//
// Fatal errors that exit the application:
//
//	if err != nil {
//	    log.Fatalf("Critical error: %v", err) // Exits with code 1
//	}
//
// All functions are safe for concurrent use.
package log
