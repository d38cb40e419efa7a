package commands

import (
	"context"
	"flag"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/maksimkurb/keen-relay/src/internal/config"
	"github.com/maksimkurb/keen-relay/src/internal/log"
	"github.com/maksimkurb/keen-relay/src/internal/networking"
)

func CreateServiceCommand() *ServiceCommand {
	sc := &ServiceCommand{
		fs: flag.NewFlagSet("service", flag.ExitOnError),
	}

	sc.fs.IntVar(&sc.MonitorInterval, "monitor-interval", 10, "Interval in seconds to check redirect interfaces")
	sc.fs.IntVar(&sc.StatsInterval, "stats-interval", 60, "Interval in seconds to log traffic statistics, 0 disables")

	return sc
}

type ServiceCommand struct {
	fs  *flag.FlagSet
	cfg *config.Config
	ctx *AppContext

	MonitorInterval int
	StatsInterval   int
}

func (s *ServiceCommand) Name() string {
	return s.fs.Name()
}

func (s *ServiceCommand) Init(args []string, ctx *AppContext) error {
	s.ctx = ctx

	if err := s.fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadAndValidateConfigOrFail(ctx.ConfigPath)
	if err != nil {
		return err
	}
	s.cfg = cfg

	if err := networking.ValidateInterfacesArePresent(s.cfg, ctx.Interfaces); err != nil {
		networking.PrintMissingInterfacesHelp()
		return fmt.Errorf("failed to validate interfaces: %v", err)
	}

	return nil
}

func (s *ServiceCommand) Run() error {
	log.Infof("Starting keen-relay service...")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(s.cfg, appOptions{
		MonitorInterval: time.Duration(s.MonitorInterval) * time.Second,
		StatsInterval:   time.Duration(s.StatsInterval) * time.Second,
	})
	if err != nil {
		return err
	}

	go func() {
		<-ctx.Done()
		log.Infof("Received shutdown signal, stopping...")
	}()

	return a.run(ctx)
}
