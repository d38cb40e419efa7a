package commands

import (
	"context"
	"slices"
	"time"

	"github.com/maksimkurb/keen-relay/src/internal/errors"
	"github.com/maksimkurb/keen-relay/src/internal/log"
)

const defaultMonitorInterval = 10 * time.Second

// RedirectRules installs and removes the iptables redirect rules.
type RedirectRules interface {
	Enable() error
	Disable() error
}

// RedirectMonitor keeps the redirect rules in place while the service runs.
// Rules bound to an interface are only installed while the interface
// exists, so the rules are re-applied whenever the set of present redirect
// interfaces changes.
type RedirectMonitor struct {
	rules      RedirectRules
	interfaces []string
	interval   time.Duration
	linkExists func(name string) bool

	present []string
}

// NewRedirectMonitor creates a monitor polling interfaces every interval.
func NewRedirectMonitor(rules RedirectRules, interfaces []string, interval time.Duration, linkExists func(string) bool) *RedirectMonitor {
	if interval <= 0 {
		interval = defaultMonitorInterval
	}
	return &RedirectMonitor{
		rules:      rules,
		interfaces: interfaces,
		interval:   interval,
		linkExists: linkExists,
	}
}

// Run applies the rules, watches the interfaces until ctx is cancelled and
// removes the rules on exit.
func (m *RedirectMonitor) Run(ctx context.Context) error {
	m.present = m.presentInterfaces()
	log.Infof("Applying redirect rules...")
	if err := m.rules.Enable(); err != nil {
		if undoErr := m.rules.Disable(); undoErr != nil {
			log.Errorf("Failed to remove partially applied redirect rules: %v", undoErr)
		}
		return errors.NewNetworkError("failed to apply redirect rules", err)
	}

	if len(m.interfaces) > 0 {
		log.Infof("Monitoring redirect interfaces every %v...", m.interval)
	}

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Infof("Removing redirect rules...")
			if err := m.rules.Disable(); err != nil {
				return errors.NewNetworkError("failed to remove redirect rules", err)
			}
			return nil

		case <-ticker.C:
			if _, err := m.refresh(); err != nil {
				log.Errorf("Failed to refresh redirect rules: %v", err)
			}
		}
	}
}

// refresh re-applies the rules if the present interfaces changed since the
// last check. It reports whether the rules were re-applied.
func (m *RedirectMonitor) refresh() (bool, error) {
	if len(m.interfaces) == 0 {
		return false, nil
	}

	present := m.presentInterfaces()
	if slices.Equal(present, m.present) {
		log.Debugf("Redirect interfaces unchanged: %v", present)
		return false, nil
	}

	log.Infof("Redirect interfaces changed: %v -> %v, re-applying rules", m.present, present)
	m.present = present
	if err := m.rules.Disable(); err != nil {
		return true, err
	}
	return true, m.rules.Enable()
}

func (m *RedirectMonitor) presentInterfaces() []string {
	var present []string
	for _, name := range m.interfaces {
		if m.linkExists(name) {
			present = append(present, name)
		}
	}
	return present
}
