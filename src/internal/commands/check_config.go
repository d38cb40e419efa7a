package commands

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/maksimkurb/keen-relay/src/internal/config"
	"github.com/maksimkurb/keen-relay/src/internal/errors"
	"github.com/maksimkurb/keen-relay/src/internal/log"
	"github.com/maksimkurb/keen-relay/src/internal/networking"
	"github.com/maksimkurb/keen-relay/src/internal/rules"
	"github.com/maksimkurb/keen-relay/src/internal/socket"
)

func CreateCheckConfigCommand() *CheckConfigCommand {
	return &CheckConfigCommand{
		fs:  flag.NewFlagSet("check-config", flag.ExitOnError),
		out: os.Stdout,
	}
}

// CheckConfigCommand validates the configuration, compiles the rules and
// prints what the service would run with.
type CheckConfigCommand struct {
	fs  *flag.FlagSet
	ctx *AppContext
	cfg *config.Config
	out io.Writer
}

func (g *CheckConfigCommand) Name() string {
	return g.fs.Name()
}

func (g *CheckConfigCommand) Init(args []string, ctx *AppContext) error {
	g.ctx = ctx

	if err := g.fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadAndValidateConfigOrFail(ctx.ConfigPath)
	if err != nil {
		return err
	}
	g.cfg = cfg

	if err := networking.ValidateInterfacesArePresent(g.cfg, ctx.Interfaces); err != nil {
		log.Errorf("Configuration validation failed: %v", err)
		networking.PrintMissingInterfacesHelp()
	}

	return nil
}

func (g *CheckConfigCommand) Run() error {
	log.Infof("Checking configuration %s...", g.ctx.ConfigPath)

	factories, err := socket.NewAdapterFactories(g.cfg.GetAdapters(), nil, nil, nil)
	if err != nil {
		return errors.NewConfigError("failed to create adapters", err)
	}
	compiled, err := rules.NewManager(g.cfg.Rules, factories, nil)
	if err != nil {
		return errors.NewConfigError("failed to compile rules", err)
	}

	var redirectRules []*networking.RedirectRule
	if g.cfg.IsRedirectEnabled() {
		if redirectRules, err = networking.RulesFromConfig(g.cfg); err != nil {
			return errors.NewConfigError("failed to render redirect rules", err)
		}
	}

	g.printSummary(compiled, redirectRules)
	log.Infof("Configuration is valid")
	return nil
}

func (g *CheckConfigCommand) printSummary(compiled *rules.Manager, redirectRules []*networking.RedirectRule) {
	cfg := g.cfg
	w := g.out

	fmt.Fprintf(w, "TUN:         %s %s (mtu %d)\n", cfg.GetTunName(), cfg.GetTunPrefix(), cfg.GetTunMTU())
	fmt.Fprintf(w, "DNS server:  %s:%d\n", cfg.GetDNSServerAddress(), cfg.GetDNSServerPort())
	fmt.Fprintf(w, "Fake range:  %s (ttl %v, pending lifetime %v)\n", cfg.GetFakeIPRange(), cfg.GetFakeIPTTL(), cfg.GetPendingLifetime())

	fmt.Fprintf(w, "Upstreams:\n")
	for _, u := range cfg.GetUpstreams() {
		fmt.Fprintf(w, "  - %s\n", u)
	}

	fmt.Fprintf(w, "Listeners:\n")
	for _, l := range cfg.GetListeners() {
		fmt.Fprintf(w, "  - %-8s %s\n", l.Type, l.Address)
	}

	fmt.Fprintf(w, "Adapters:\n")
	for _, a := range cfg.GetAdapters() {
		fmt.Fprintf(w, "  - %-12s %s\n", a.Name, a.Type)
	}

	fmt.Fprintf(w, "Rules:\n")
	for _, r := range compiled.Rules() {
		dns := "real"
		if r.Fake {
			dns = "fake"
		}
		fmt.Fprintf(w, "  %s -> %s (dns: %s)\n", r, r.Adapter, dns)
	}

	if cfg.IsRedirectEnabled() {
		interfaces := "all"
		if len(cfg.Redirect.Interfaces) > 0 {
			interfaces = strings.Join(cfg.Redirect.Interfaces, ", ")
		}
		fmt.Fprintf(w, "Redirect:    enabled, chain %s, interfaces: %s\n", cfg.GetRedirectChain(), interfaces)
		for _, r := range redirectRules {
			fmt.Fprintf(w, "  iptables -t nat -A %s %s\n", r.Chain, r)
		}
	} else {
		fmt.Fprintf(w, "Redirect:    disabled\n")
	}

	if addr := cfg.GetAPIBindAddress(); addr != "" {
		fmt.Fprintf(w, "API:         http://%s/api/v1\n", addr)
	} else {
		fmt.Fprintf(w, "API:         disabled\n")
	}
}
