package config

import (
	"fmt"
	"net"
	"net/netip"
	"net/url"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// getValidationMessage returns a human-readable message for a validation error
func getValidationMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "field is required"
	case "min":
		return fmt.Sprintf("must be >= %s", e.Param())
	case "max":
		return fmt.Sprintf("must be <= %s", e.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", e.Param())
	case "ipv4":
		return "must be a valid IPv4 address"
	case "cidr4":
		return "must be an IPv4 network in CIDR notation (e.g., 198.18.0.0/15)"
	case "hostport":
		return "must be in format 'host:port'"
	case "hostport_or_empty":
		return "must be in format 'host:port' or empty"
	case "upstream_url":
		return "must be a valid upstream URL (udp://ip:port or doh://host/path)"
	case "rule_type":
		return fmt.Sprintf("must be one of: %s", strings.Join(ruleTypes, " "))
	default:
		return fmt.Sprintf("validation failed: %s", e.Tag())
	}
}

// ValidationError represents a single validation error with context
type ValidationError struct {
	ItemName  string // Name of the adapter/listener/rule the error belongs to, if any
	FieldPath string // Dot-notation field path (e.g., "dns.fake_ip_range", "rule.2.adapter")
	Message   string // Human-readable error message
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface
func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return "no validation errors"
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("validation failed with %d error(s):\n", len(ve)))
	for i, err := range ve {
		if err.ItemName != "" {
			sb.WriteString(fmt.Sprintf("  %d. [%s] %s: %s\n", i+1, err.ItemName, err.FieldPath, err.Message))
		} else {
			sb.WriteString(fmt.Sprintf("  %d. %s: %s\n", i+1, err.FieldPath, err.Message))
		}
	}
	return sb.String()
}

var ruleTypes = []string{
	RuleDomain, RuleDomainSuffix, RuleDomainKeyword, RuleDomainGlob, RuleIPCIDR, RuleGeoIP, RuleFinal,
}

var validate *validator.Validate

func init() {
	validate = validator.New()

	// Register custom validators
	for tag, fn := range map[string]validator.Func{
		"cidr4":             validateCIDR4,
		"hostport":          validateHostPort,
		"hostport_or_empty": validateHostPortOrEmpty,
		"upstream_url":      validateUpstreamURLTag,
		"rule_type":         validateRuleType,
	} {
		if err := validate.RegisterValidation(tag, fn); err != nil {
			panic(err)
		}
	}

	// Register function to get field name from "toml" tag
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("toml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

// Custom validator: IPv4 network in CIDR notation
func validateCIDR4(fl validator.FieldLevel) bool {
	prefix, err := netip.ParsePrefix(fl.Field().String())
	return err == nil && prefix.Addr().Is4()
}

// Custom validator: host:port with a numeric port
func validateHostPort(fl validator.FieldLevel) bool {
	return isHostPort(fl.Field().String())
}

// Custom validator: host:port format or empty
func validateHostPortOrEmpty(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	return value == "" || isHostPort(value)
}

func isHostPort(value string) bool {
	_, port, err := net.SplitHostPort(value)
	if err != nil {
		return false
	}
	n, err := strconv.Atoi(port)
	return err == nil && n >= 0 && n <= 65535
}

// Custom validator: upstream URL format
func validateUpstreamURLTag(fl validator.FieldLevel) bool {
	return validateUpstreamURL(fl.Field().String()) == nil
}

// Custom validator: supported rule type
func validateRuleType(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	for _, t := range ruleTypes {
		if value == t {
			return true
		}
	}
	return false
}

// validateUpstreamURL validates DNS upstream URL format. An optional
// "domain" query parameter restricts the upstream to one domain.
func validateUpstreamURL(upstream string) error {
	if upstream == "" {
		return fmt.Errorf("upstream URL cannot be empty")
	}

	u, err := url.Parse(upstream)
	if err != nil {
		return fmt.Errorf("invalid upstream URL: %w", err)
	}
	if domain := u.Query().Get("domain"); u.RawQuery != "" && domain == "" {
		return fmt.Errorf("only the domain query parameter is supported")
	}

	switch u.Scheme {
	case "udp":
		host := u.Host
		if h, _, err := net.SplitHostPort(host); err == nil {
			host = h
		}
		if addr, err := netip.ParseAddr(host); err != nil || !addr.Is4() {
			return fmt.Errorf("UDP upstream must be an IPv4 address (expected udp://ip:port)")
		}
		return nil
	case "doh":
		if u.Host == "" || u.Path == "" {
			return fmt.Errorf("invalid DoH upstream format (expected doh://host/path)")
		}
		return nil
	default:
		return fmt.Errorf("unsupported upstream scheme (supported: udp://, doh://)")
	}
}
