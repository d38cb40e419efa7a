// Package utils provides small helpers shared across keen-relay.
//
//   - BitSet: fixed-size bit set with wrap-around free-bit search, backing
//     the fake-IP pool
//   - IPv4 helpers: numeric conversion and prefix bounds
//   - Domain helpers: normalization and suffix matching for rules
//   - Paths and closers used by configuration loading and listeners
package utils
