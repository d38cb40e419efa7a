// Package stats counts traffic and DNS activity and fans events out to
// live subscribers such as the API event stream.
package stats
