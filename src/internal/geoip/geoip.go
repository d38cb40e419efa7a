// Package geoip resolves IPv4 addresses to ISO country codes using a
// MaxMind country database.
package geoip

import (
	"net"
	"net/netip"
	"strings"

	"github.com/oschwald/maxminddb-golang"

	"github.com/maksimkurb/keen-relay/src/internal/errors"
	"github.com/maksimkurb/keen-relay/src/internal/log"
)

// Lookup maps an address to an upper-case ISO 3166 country code, or "" when
// the country is unknown.
type Lookup interface {
	Country(addr netip.Addr) string
}

// Reader is a Lookup backed by a MaxMind database file. A nil *Reader is a
// valid Lookup that knows no countries.
type Reader struct {
	db *maxminddb.Reader
}

// Open loads the database at path.
func Open(path string) (*Reader, error) {
	db, err := maxminddb.Open(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeConfig, "failed to open GeoIP database "+path, err)
	}
	log.Infof("GeoIP database loaded: %s", path)
	return &Reader{db: db}, nil
}

// Country implements Lookup.
func (r *Reader) Country(addr netip.Addr) string {
	if r == nil || r.db == nil || !addr.IsValid() {
		return ""
	}

	var fields struct {
		Country struct {
			ISOCode string `maxminddb:"iso_code"`
		} `maxminddb:"country"`
	}

	if err := r.db.Lookup(net.IP(addr.AsSlice()), &fields); err != nil {
		log.Debugf("GeoIP lookup for %s failed: %v", addr, err)
		return ""
	}
	return strings.ToUpper(fields.Country.ISOCode)
}

// Close releases the database.
func (r *Reader) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}
