package commands

import (
	"flag"

	"github.com/maksimkurb/keen-relay/src/internal/config"
	"github.com/maksimkurb/keen-relay/src/internal/errors"
	"github.com/maksimkurb/keen-relay/src/internal/log"
	"github.com/maksimkurb/keen-relay/src/internal/networking"
)

func CreateUndoCommand() *UndoCommand {
	return &UndoCommand{
		fs: flag.NewFlagSet("undo-redirect", flag.ExitOnError),
	}
}

// UndoCommand removes the redirect chain and its PREROUTING jump. It works
// even when redirection is disabled in the config, so rules left by an
// earlier run can always be cleaned up.
type UndoCommand struct {
	fs  *flag.FlagSet
	ctx *AppContext
	cfg *config.Config

	newRules func(chain string) (RedirectRules, error)
}

func (g *UndoCommand) Name() string {
	return g.fs.Name()
}

func (g *UndoCommand) Init(args []string, ctx *AppContext) error {
	g.ctx = ctx

	if err := g.fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfigOrFail(ctx.ConfigPath)
	if err != nil {
		return err
	}
	g.cfg = cfg

	if g.newRules == nil {
		g.newRules = func(chain string) (RedirectRules, error) {
			return networking.NewChainManager(chain)
		}
	}
	return nil
}

func (g *UndoCommand) Run() error {
	log.Infof("Removing iptables redirect rules (chain %s)...", g.cfg.GetRedirectChain())

	rules, err := g.newRules(g.cfg.GetRedirectChain())
	if err != nil {
		return errors.NewNetworkError("failed to prepare redirect rules", err)
	}
	if err := rules.Disable(); err != nil {
		return errors.NewNetworkError("failed to remove redirect rules", err)
	}

	log.Infof("Redirect rules removed")
	return nil
}
