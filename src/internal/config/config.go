package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"

	"github.com/maksimkurb/keen-relay/src/internal/log"
)

const (
	ListenerSOCKS5   = "socks5"
	ListenerHTTP     = "http"
	ListenerRedirect = "redirect"

	AdapterDirect = "direct"
	AdapterReject = "reject"

	RuleDomain        = "domain"
	RuleDomainSuffix  = "domain_suffix"
	RuleDomainKeyword = "domain_keyword"
	RuleDomainGlob    = "domain_glob"
	RuleIPCIDR        = "ip_cidr"
	RuleGeoIP         = "geoip"
	RuleFinal         = "final"

	DNSModeFake = "fake"
	DNSModeReal = "real"
)

const (
	IPTABLES_TMPL_DNS_ADDRESS   = "dns_address"
	IPTABLES_TMPL_DNS_PORT      = "dns_port"
	IPTABLES_TMPL_FAKE_RANGE    = "fake_range"
	IPTABLES_TMPL_REDIRECT_PORT = "redirect_port"
	IPTABLES_TMPL_INTERFACE     = "interface"
)

func LoadConfig(configPath string) (*Config, error) {
	configFile := filepath.Clean(configPath)

	if !filepath.IsAbs(configFile) {
		if path, err := filepath.Abs(configFile); err != nil {
			return nil, fmt.Errorf("failed to get absolute path: %v", err)
		} else {
			configFile = path
		}
	}

	content, err := os.ReadFile(configFile)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.Errorf("Configuration file not found: %s", configFile)
			return nil, fmt.Errorf("configuration file not found: %s", configFile)
		}
		return nil, fmt.Errorf("failed to read config file: %v", err)
	}

	config, err := ParseConfig(content)
	if err != nil {
		return nil, err
	}
	config._absConfigFilePath = configFile

	log.Debugf("Configuration file path: %s", configFile)
	return config, nil
}

// ParseConfig decodes TOML content. Relative paths resolve against the
// working directory.
func ParseConfig(content []byte) (*Config, error) {
	var config Config
	if err := toml.Unmarshal(content, &config); err != nil {
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			log.Errorf("%s", derr.String())
			row, col := derr.Position()
			log.Errorf("Error at line %d, column %d", row, col)
			return nil, fmt.Errorf("failed to parse config file at line %d, column %d", row, col)
		}
		return nil, fmt.Errorf("failed to parse config file: %v", err)
	}
	return &config, nil
}
