package utils

import (
	"io"

	"github.com/maksimkurb/keen-relay/src/internal/log"
)

// CloseOrWarn closes c and logs a warning naming what was closed on failure.
func CloseOrWarn(c io.Closer, what string) {
	if err := c.Close(); err != nil {
		log.Warnf("Failed to close %s: %v", what, err)
	}
}
