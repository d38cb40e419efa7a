// Package api provides the read-only REST API of a running keen-relay
// service.
//
// It exposes:
//   - service status and traffic counters
//   - open tunnels (and closing them)
//   - the fake-IP mapping table
//   - a live event stream over WebSocket
//
// # Response Format
//
// All successful responses wrap data in a "data" field:
//
//	{
//	  "data": { /* response payload */ }
//	}
//
// Error responses use the following format:
//
//	{
//	  "error": {
//	    "code": "ERROR_CODE",
//	    "message": "Human-readable error message",
//	    "details": { /* optional context */ }
//	  }
//	}
//
// Access is restricted to private networks.
package api
