// Package rules evaluates the ordered policy rule list. The same rules
// decide whether a DNS query is answered with a fake address and which
// adapter a proxied connection leaves through.
package rules
