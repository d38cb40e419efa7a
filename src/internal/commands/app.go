package commands

import (
	"context"
	"fmt"
	"net"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/maksimkurb/keen-relay/src/internal/api"
	"github.com/maksimkurb/keen-relay/src/internal/config"
	"github.com/maksimkurb/keen-relay/src/internal/dnsproxy"
	"github.com/maksimkurb/keen-relay/src/internal/dnsproxy/upstreams"
	"github.com/maksimkurb/keen-relay/src/internal/errors"
	"github.com/maksimkurb/keen-relay/src/internal/fakeip"
	"github.com/maksimkurb/keen-relay/src/internal/geoip"
	"github.com/maksimkurb/keen-relay/src/internal/log"
	"github.com/maksimkurb/keen-relay/src/internal/networking"
	"github.com/maksimkurb/keen-relay/src/internal/packet"
	"github.com/maksimkurb/keen-relay/src/internal/queue"
	"github.com/maksimkurb/keen-relay/src/internal/rules"
	"github.com/maksimkurb/keen-relay/src/internal/socket"
	"github.com/maksimkurb/keen-relay/src/internal/stats"
	"github.com/maksimkurb/keen-relay/src/internal/tun"
	"github.com/maksimkurb/keen-relay/src/internal/tunnel"
	"github.com/maksimkurb/keen-relay/src/internal/utils"
)

// appOptions tunes the service loop.
type appOptions struct {
	MonitorInterval time.Duration
	StatsInterval   time.Duration
}

// app is the assembled service: every component built from one config.
type app struct {
	cfg  *config.Config
	opts appOptions

	dnsQueue    *queue.Queue
	tunnelQueue *queue.Queue

	hub       *stats.Hub
	collector *stats.Collector
	hasher    *config.ConfigHasher

	pool    *fakeip.Pool
	geo     *geoip.Reader
	rules   *rules.Manager
	dns     *dnsproxy.Server
	device  *tun.Device
	pump    *tun.Pump
	tunnels *tunnel.Server

	redirect  *RedirectMonitor
	apiRunner *RestartableRunner
}

// newApp builds every component. On error everything created so far is
// released.
func newApp(cfg *config.Config, opts appOptions) (*app, error) {
	a := &app{
		cfg:         cfg,
		opts:        opts,
		dnsQueue:    queue.New("dns"),
		tunnelQueue: queue.New("tunnel"),
		hub:         stats.NewHub(),
	}
	a.collector = stats.NewCollector(a.hub)

	built := false
	defer func() {
		if !built {
			a.close()
		}
	}()

	a.hasher = config.NewConfigHasher(cfg.GetConfigFilePath())
	if hash, hashErr := config.CalculateHash(cfg); hashErr != nil {
		log.Warnf("Failed to hash configuration: %v", hashErr)
	} else {
		a.hasher.SetActiveConfigHash(hash)
	}

	var err error
	if a.pool, err = fakeip.NewPool(cfg.GetFakeIPRange()); err != nil {
		return nil, errors.NewConfigError("invalid fake IP range", err)
	}

	var geo geoip.Lookup
	if path := cfg.GetAbsGeoIPDatabase(); path != "" {
		if a.geo, err = geoip.Open(path); err != nil {
			return nil, err
		}
		geo = a.geo
	}

	factories, err := socket.NewAdapterFactories(cfg.GetAdapters(), a.tunnelQueue, &net.Dialer{}, a.collector)
	if err != nil {
		return nil, errors.NewConfigError("failed to create adapters", err)
	}
	if a.rules, err = rules.NewManager(cfg.Rules, factories, geo); err != nil {
		return nil, errors.NewConfigError("failed to compile rules", err)
	}

	if err = a.buildDNS(); err != nil {
		return nil, err
	}
	if err = a.buildTun(); err != nil {
		return nil, err
	}

	a.tunnels = tunnel.NewServer(tunnel.Options{
		Executor:        a.tunnelQueue,
		Selector:        a.rules,
		Resolver:        tunnel.NewCachingResolver(net.DefaultResolver.LookupNetIP, cfg.GetResolveTimeout(), cfg.GetResolveCacheTTL()),
		FakeIP:          a.dns,
		ForwardInterval: cfg.GetForwardReadInterval(),
		ScanMaxLength:   cfg.GetScanMaxLength(),
		Observer:        a.collector,
		SocketObserver:  a.collector,
	})

	var redirect *networking.RedirectManager
	if cfg.IsRedirectEnabled() {
		if redirect, err = networking.NewRedirectManager(cfg); err != nil {
			return nil, errors.NewNetworkError("failed to prepare redirect rules", err)
		}
		a.redirect = NewRedirectMonitor(redirect, cfg.Redirect.Interfaces, opts.MonitorInterval, networking.LinkExists)
	} else {
		log.Infof("Traffic redirection is disabled")
	}

	if bindAddr := cfg.GetAPIBindAddress(); bindAddr != "" {
		deps := api.Dependencies{
			Tunnels:   a.tunnels,
			DNS:       a.dns,
			Pool:      a.pool,
			Stats:     a.collector,
			Events:    a.hub,
			Config:    a.hasher,
			StartedAt: time.Now(),
		}
		if redirect != nil {
			deps.Redirect = redirect
		}
		server := api.NewServer(bindAddr, deps)
		a.apiRunner = NewRestartableRunner(RunnerConfig{
			Name:           "API server",
			RestartBackoff: 2 * time.Second,
			MaxBackoff:     30 * time.Second,
		}, server.Run)
	} else {
		log.Infof("REST API is disabled")
	}

	built = true
	return a, nil
}

func (a *app) buildDNS() error {
	address, ok := packet.AddressFromNetip(a.cfg.GetDNSServerAddress())
	if !ok {
		return errors.NewConfigError(fmt.Sprintf("DNS server address %s is not IPv4", a.cfg.GetDNSServerAddress()), nil)
	}

	a.dns = dnsproxy.NewServer(dnsproxy.Options{
		Address:         address,
		Port:            packet.Port(a.cfg.GetDNSServerPort()),
		FakeTTL:         a.cfg.GetFakeIPTTL(),
		PendingLifetime: a.cfg.GetPendingLifetime(),
		Pool:            a.pool,
		Matcher:         a.rules,
		Executor:        a.dnsQueue,
		Output:          a.output,
		Observer:        a.collector,
	})

	resolverOpts := upstreams.Options{UDPIdleTimeout: a.cfg.GetUDPIdleTimeout()}
	for _, upstream := range a.cfg.GetUpstreams() {
		resolver, err := upstreams.ParseResolver(upstream, resolverOpts)
		if err != nil {
			return errors.NewDNSError("failed to create upstream resolver", err)
		}
		a.dns.RegisterResolver(resolver)
		log.Infof("DNS upstream registered: %s", resolver)
	}
	return nil
}

func (a *app) buildTun() error {
	device, err := tun.Open(a.cfg.GetTunName())
	if err != nil {
		return errors.NewInterfaceError("failed to open TUN device", err)
	}
	a.device = device

	if err := tun.Configure(device.Name(), a.cfg.GetTunPrefix(), a.cfg.GetTunMTU()); err != nil {
		return errors.NewInterfaceError("failed to configure TUN device", err)
	}
	a.pump = tun.NewPump(device, a.dns, dnsproxy.FamilyIPv4, a.cfg.GetTunMTU(), a.collector)
	log.Infof("TUN device %s is up (%s, mtu %d)", device.Name(), a.cfg.GetTunPrefix(), a.cfg.GetTunMTU())
	return nil
}

// output hands DNS engine packets to the TUN pump.
func (a *app) output(packets [][]byte, families []int) {
	a.pump.Output(packets, families)
}

// run serves until ctx is cancelled or a component fails, then shuts
// everything down.
func (a *app) run(ctx context.Context) error {
	defer a.close()

	for _, l := range a.cfg.GetListeners() {
		if err := a.tunnels.Listen(l); err != nil {
			return errors.NewTunnelError("failed to start listener", err)
		}
	}
	log.Infof("Proxy listeners: %v", a.tunnels.ListenAddrs())

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.pump.Run(gctx)
	})
	if a.redirect != nil {
		g.Go(func() error {
			return a.redirect.Run(gctx)
		})
	}
	if a.apiRunner != nil {
		if err := a.apiRunner.Start(gctx); err != nil {
			log.Errorf("Failed to start API server: %v", err)
		}
	}
	if a.opts.StatsInterval > 0 {
		stats.StartReporter(gctx, a.collector, a.opts.StatsInterval)
	}

	log.Infof("Service started successfully")
	err := g.Wait()
	if err != nil {
		log.Errorf("Service component failed: %v", err)
	}
	return err
}

// close stops components in dependency order: the API first, then the
// tunnels and the DNS engine, and finally the executors they run on.
func (a *app) close() {
	log.Infof("Shutting down keen-relay service...")

	if a.apiRunner != nil {
		if err := a.apiRunner.Stop(); err != nil {
			log.Errorf("Failed to stop API server: %v", err)
		}
	}
	if a.tunnels != nil {
		a.tunnels.Stop()
	}
	if a.dns != nil {
		a.dns.Stop()
	}
	if a.device != nil {
		// Already closed if the pump ran.
		_ = a.device.Close()
	}

	a.tunnelQueue.Stop()
	a.dnsQueue.Stop()

	if a.geo != nil {
		utils.CloseOrWarn(a.geo, "GeoIP database")
	}

	snapshot := a.collector.Snapshot()
	log.Infof("Service stopped (tunnels: %d, up: %d bytes, down: %d bytes, dns queries: %d)",
		snapshot.TunnelsOpened, snapshot.BytesUp, snapshot.BytesDown, snapshot.DNSQueries)
}
