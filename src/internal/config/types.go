package config

import (
	"fmt"
	"net/netip"
	"path/filepath"
	"time"

	"github.com/maksimkurb/keen-relay/src/internal/utils"
)

type Config struct {
	// General holds general configuration.
	General *GeneralConfig `toml:"general"`
	// Tun configures the virtual interface DNS traffic is captured from.
	Tun *TunConfig `toml:"tun"`
	// DNS configures the fake-IP DNS engine.
	DNS *DNSConfig `toml:"dns"`
	// Proxy configures the tunnel relay and its listeners.
	Proxy *ProxyConfig `toml:"proxy"`
	// Adapters are the upstream connection methods rules can select. Adapters "direct" and "reject" always exist.
	Adapters []*AdapterConfig `toml:"adapter,omitempty"`
	// Rules are evaluated in order; the first match wins.
	Rules []*RuleConfig `toml:"rule,omitempty"`
	// Redirect configures iptables rules that steer traffic into keen-relay.
	Redirect *RedirectConfig `toml:"redirect"`

	_absConfigFilePath string
}

type GeneralConfig struct {
	// APIBindAddress is the REST API listen address, empty disables the API (default: empty).
	APIBindAddress string `toml:"api_bind_address" json:"api_bind_address" validate:"hostport_or_empty"`
	// GeoIPDatabase is a MaxMind country database path, relative to the config file directory.
	GeoIPDatabase string `toml:"geoip_database" json:"geoip_database"`
}

type TunConfig struct {
	// Name is the TUN interface name (default: "keen-relay0").
	Name string `toml:"name" json:"name" validate:"omitempty,max=15"`
	// Address is the interface address in CIDR form (default: 10.77.0.1/24).
	Address string `toml:"address" json:"address" validate:"omitempty,cidr4"`
	// MTU of the interface (default: 1500).
	MTU int `toml:"mtu" json:"mtu" validate:"omitempty,min=576,max=65535"`
}

type DNSConfig struct {
	// ServerAddress is the address DNS queries must be sent to (default: the TUN address).
	ServerAddress string `toml:"server_address" json:"server_address" validate:"omitempty,ipv4"`
	// ServerPort is the DNS port (default: 53).
	ServerPort uint16 `toml:"server_port" json:"server_port"`
	// FakeIPRange is the pool fake addresses are drawn from (default: 198.18.0.0/15).
	FakeIPRange string `toml:"fake_ip_range" json:"fake_ip_range" validate:"omitempty,cidr4"`
	// FakeIPTTLSec is the TTL of synthesized answers. Mappings live twice as long (default: 300).
	FakeIPTTLSec int `toml:"fake_ip_ttl_sec" json:"fake_ip_ttl_sec" validate:"min=0,max=86400"`
	// PendingLifetimeSec is how long a forwarded query waits for an upstream answer (default: 10).
	PendingLifetimeSec int `toml:"pending_lifetime_sec" json:"pending_lifetime_sec" validate:"min=0,max=300"`
	// Upstreams lists upstream DNS servers. Supported: udp://ip:port, doh://host/path.
	Upstreams []string `toml:"upstreams" json:"upstreams" validate:"required,min=1,dive,upstream_url"`
	// UDPIdleTimeoutSec closes idle UDP upstream sockets, 0 keeps them open (default: 60).
	UDPIdleTimeoutSec int `toml:"udp_idle_timeout_sec" json:"udp_idle_timeout_sec" validate:"min=0"`
}

type ProxyConfig struct {
	// ForwardReadIntervalUs delays the next upstream read after data was written to the client (default: 50).
	ForwardReadIntervalUs int `toml:"forward_read_interval_us" json:"forward_read_interval_us" validate:"min=0,max=1000000"`
	// ScanMaxLength bounds request header scanning in bytes (default: 8192).
	ScanMaxLength int `toml:"scan_max_length" json:"scan_max_length" validate:"min=0"`
	// ResolveTimeoutSec bounds hostname resolution for tunnels (default: 5).
	ResolveTimeoutSec int `toml:"resolve_timeout_sec" json:"resolve_timeout_sec" validate:"min=0"`
	// ResolveCacheTTLSec is how long tunnel hostname lookups are cached (default: 60).
	ResolveCacheTTLSec int `toml:"resolve_cache_ttl_sec" json:"resolve_cache_ttl_sec" validate:"min=0"`
	// Listeners accept client connections.
	Listeners []*ListenerConfig `toml:"listener" json:"listener"`
}

type ListenerConfig struct {
	// Type is one of socks5, http, redirect.
	Type string `toml:"type" json:"type" validate:"required,oneof=socks5 http redirect"`
	// Address is the listen address in host:port form.
	Address string `toml:"address" json:"address" validate:"required,hostport"`
}

type AdapterConfig struct {
	// Name is referenced by rules.
	Name string `toml:"name" json:"name" validate:"required"`
	// Type is direct or reject.
	Type string `toml:"type" json:"type" validate:"required,oneof=direct reject"`
	// ConnectTimeoutSec bounds direct connects (default: 10).
	ConnectTimeoutSec int `toml:"connect_timeout_sec" json:"connect_timeout_sec" validate:"min=0"`
	// RejectDelayMs delays the disconnect of rejected connections (default: 0).
	RejectDelayMs int `toml:"reject_delay_ms" json:"reject_delay_ms" validate:"min=0"`
}

type RuleConfig struct {
	// Type is one of domain, domain_suffix, domain_keyword, domain_glob, ip_cidr, geoip, final.
	Type string `toml:"type" json:"type" validate:"required,rule_type"`
	// Values are the rule patterns. Not used by final.
	Values []string `toml:"values" json:"values"`
	// Adapter is the adapter name used for matching connections.
	Adapter string `toml:"adapter" json:"adapter" validate:"required"`
	// DNS is "fake" to answer matching queries with a fake IP, or "real" (default).
	DNS string `toml:"dns" json:"dns" validate:"omitempty,oneof=fake real"`
}

type RedirectConfig struct {
	// Enable installs the iptables rules on start (default: false).
	Enable bool `toml:"enable" json:"enable"`
	// Chain is the nat chain the rules are placed in (default: KEEN_RELAY).
	Chain string `toml:"chain" json:"chain" validate:"omitempty,max=28"`
	// Interfaces restricts redirection to traffic arriving on these interfaces (default: all).
	Interfaces []string `toml:"interfaces" json:"interfaces"`
	// IPTablesRules replace the default rules. Available variables: {{dns_address}}, {{dns_port}}, {{fake_range}}, {{redirect_port}}, {{interface}}.
	IPTablesRules []*IPTablesRule `toml:"iptables_rule,omitempty" json:"iptables_rule,omitempty" validate:"dive"`
}

type IPTablesRule struct {
	Rule []string `toml:"rule" json:"rule" validate:"required,min=1"`
}

const (
	DefaultTunName         = "keen-relay0"
	DefaultTunAddress      = "10.77.0.1/24"
	DefaultTunMTU          = 1500
	DefaultDNSPort         = 53
	DefaultFakeIPRange     = "198.18.0.0/15"
	DefaultFakeIPTTL       = 300 * time.Second
	DefaultPendingLifetime = 10 * time.Second
	DefaultUDPIdleTimeout  = 60 * time.Second
	DefaultForwardInterval = 50 * time.Microsecond
	DefaultScanMaxLength   = 8192
	DefaultResolveTimeout  = 5 * time.Second
	DefaultResolveCacheTTL = 60 * time.Second
	DefaultConnectTimeout  = 10 * time.Second
	DefaultRedirectChain   = "KEEN_RELAY"
	DefaultAdapterName     = "direct"
	RejectAdapterName      = "reject"
)

func (c *Config) GetConfigDir() string {
	return filepath.Dir(c._absConfigFilePath)
}

func (c *Config) GetConfigFilePath() string {
	return c._absConfigFilePath
}

func (c *Config) GetAbsGeoIPDatabase() string {
	if c.General == nil {
		return ""
	}
	return utils.ResolvePath(c.General.GeoIPDatabase, c.GetConfigDir())
}

func (c *Config) GetAPIBindAddress() string {
	if c.General == nil {
		return ""
	}
	return c.General.APIBindAddress
}

func (c *Config) GetTunName() string {
	if c.Tun == nil || c.Tun.Name == "" {
		return DefaultTunName
	}
	return c.Tun.Name
}

// GetTunPrefix returns the interface address with its prefix length.
func (c *Config) GetTunPrefix() netip.Prefix {
	if c.Tun != nil && c.Tun.Address != "" {
		if p, err := netip.ParsePrefix(c.Tun.Address); err == nil {
			return p
		}
	}
	return netip.MustParsePrefix(DefaultTunAddress)
}

func (c *Config) GetTunMTU() int {
	if c.Tun == nil || c.Tun.MTU == 0 {
		return DefaultTunMTU
	}
	return c.Tun.MTU
}

func (c *Config) GetDNSServerAddress() netip.Addr {
	if c.DNS != nil && c.DNS.ServerAddress != "" {
		if a, err := netip.ParseAddr(c.DNS.ServerAddress); err == nil {
			return a
		}
	}
	// The engine answers from a peer address on the tun subnet so that
	// DNATed queries are routed out through the device.
	return c.GetTunPrefix().Addr().Next()
}

func (c *Config) GetDNSServerPort() uint16 {
	if c.DNS == nil || c.DNS.ServerPort == 0 {
		return DefaultDNSPort
	}
	return c.DNS.ServerPort
}

func (c *Config) GetFakeIPRange() netip.Prefix {
	if c.DNS != nil && c.DNS.FakeIPRange != "" {
		if p, err := netip.ParsePrefix(c.DNS.FakeIPRange); err == nil {
			return p.Masked()
		}
	}
	return netip.MustParsePrefix(DefaultFakeIPRange)
}

func (c *Config) GetFakeIPTTL() time.Duration {
	if c.DNS == nil || c.DNS.FakeIPTTLSec == 0 {
		return DefaultFakeIPTTL
	}
	return time.Duration(c.DNS.FakeIPTTLSec) * time.Second
}

func (c *Config) GetPendingLifetime() time.Duration {
	if c.DNS == nil || c.DNS.PendingLifetimeSec == 0 {
		return DefaultPendingLifetime
	}
	return time.Duration(c.DNS.PendingLifetimeSec) * time.Second
}

func (c *Config) GetUpstreams() []string {
	if c.DNS == nil {
		return nil
	}
	return c.DNS.Upstreams
}

func (c *Config) GetUDPIdleTimeout() time.Duration {
	if c.DNS == nil || c.DNS.UDPIdleTimeoutSec == 0 {
		return DefaultUDPIdleTimeout
	}
	return time.Duration(c.DNS.UDPIdleTimeoutSec) * time.Second
}

func (c *Config) GetForwardReadInterval() time.Duration {
	if c.Proxy == nil || c.Proxy.ForwardReadIntervalUs == 0 {
		return DefaultForwardInterval
	}
	return time.Duration(c.Proxy.ForwardReadIntervalUs) * time.Microsecond
}

func (c *Config) GetScanMaxLength() int {
	if c.Proxy == nil || c.Proxy.ScanMaxLength == 0 {
		return DefaultScanMaxLength
	}
	return c.Proxy.ScanMaxLength
}

func (c *Config) GetResolveTimeout() time.Duration {
	if c.Proxy == nil || c.Proxy.ResolveTimeoutSec == 0 {
		return DefaultResolveTimeout
	}
	return time.Duration(c.Proxy.ResolveTimeoutSec) * time.Second
}

func (c *Config) GetResolveCacheTTL() time.Duration {
	if c.Proxy == nil || c.Proxy.ResolveCacheTTLSec == 0 {
		return DefaultResolveCacheTTL
	}
	return time.Duration(c.Proxy.ResolveCacheTTLSec) * time.Second
}

func (c *Config) GetListeners() []*ListenerConfig {
	if c.Proxy == nil {
		return nil
	}
	return c.Proxy.Listeners
}

// GetRedirectListener returns the first listener of type redirect, if any.
func (c *Config) GetRedirectListener() *ListenerConfig {
	for _, l := range c.GetListeners() {
		if l.Type == ListenerRedirect {
			return l
		}
	}
	return nil
}

// GetAdapters returns configured adapters plus the built-in direct and
// reject adapters unless they were overridden by name.
func (c *Config) GetAdapters() []*AdapterConfig {
	adapters := make([]*AdapterConfig, 0, len(c.Adapters)+2)
	seen := make(map[string]bool)
	for _, a := range c.Adapters {
		adapters = append(adapters, a)
		seen[a.Name] = true
	}
	if !seen[DefaultAdapterName] {
		adapters = append(adapters, &AdapterConfig{Name: DefaultAdapterName, Type: AdapterDirect})
	}
	if !seen[RejectAdapterName] {
		adapters = append(adapters, &AdapterConfig{Name: RejectAdapterName, Type: AdapterReject})
	}
	return adapters
}

func (c *Config) GetRedirectChain() string {
	if c.Redirect == nil || c.Redirect.Chain == "" {
		return DefaultRedirectChain
	}
	return c.Redirect.Chain
}

func (c *Config) IsRedirectEnabled() bool {
	return c.Redirect != nil && c.Redirect.Enable
}

func (a *AdapterConfig) GetConnectTimeout() time.Duration {
	if a.ConnectTimeoutSec == 0 {
		return DefaultConnectTimeout
	}
	return time.Duration(a.ConnectTimeoutSec) * time.Second
}

func (a *AdapterConfig) GetRejectDelay() time.Duration {
	return time.Duration(a.RejectDelayMs) * time.Millisecond
}

// IsFakeDNS reports whether matching queries are answered with fake IPs.
func (r *RuleConfig) IsFakeDNS() bool {
	return r.DNS == DNSModeFake
}

func (r *RuleConfig) String() string {
	if r.Type == RuleFinal {
		return fmt.Sprintf("%s -> %s", r.Type, r.Adapter)
	}
	return fmt.Sprintf("%s%v -> %s", r.Type, r.Values, r.Adapter)
}
