package commands

import (
	"flag"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/maksimkurb/keen-relay/src/internal/config"
	"github.com/maksimkurb/keen-relay/src/internal/networking"
)

func CreateInterfacesCommand() *InterfacesCommand {
	return &InterfacesCommand{
		fs:  flag.NewFlagSet("interfaces", flag.ExitOnError),
		out: os.Stdout,
	}
}

// InterfacesCommand lists the system interfaces and marks the ones the
// redirect rules are bound to.
type InterfacesCommand struct {
	fs  *flag.FlagSet
	ctx *AppContext
	cfg *config.Config
	out io.Writer
}

func (g *InterfacesCommand) Name() string {
	return g.fs.Name()
}

func (g *InterfacesCommand) Init(args []string, ctx *AppContext) error {
	g.ctx = ctx

	if err := g.fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfigOrFail(ctx.ConfigPath)
	if err != nil {
		return err
	}
	g.cfg = cfg

	return nil
}

func (g *InterfacesCommand) Run() error {
	var redirect []string
	if g.cfg.Redirect != nil {
		redirect = g.cfg.Redirect.Interfaces
	}
	tunName := g.cfg.GetTunName()

	for _, iface := range g.ctx.Interfaces {
		attrs := iface.Attrs()

		state := "down"
		if iface.IsUp() {
			state = "up"
		}

		var marks string
		if slices.Contains(redirect, attrs.Name) {
			marks += " [redirect]"
		}
		if attrs.Name == tunName {
			marks += " [tun]"
		}

		fmt.Fprintf(g.out, "%d. %s (%s, mtu %d)%s\n", attrs.Index, attrs.Name, state, attrs.MTU, marks)
	}

	for _, name := range redirect {
		if !slices.ContainsFunc(g.ctx.Interfaces, func(iface networking.Interface) bool { return iface.Attrs().Name == name }) {
			fmt.Fprintf(g.out, "Redirect interface %s is not present\n", name)
		}
	}
	return nil
}
