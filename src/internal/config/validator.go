package config

import (
	"errors"
	"fmt"
	"net/netip"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/gobwas/glob"
)

// ValidateConfig validates the entire configuration and returns all validation errors
func (c *Config) ValidateConfig() error {
	var validationErrors ValidationErrors

	if c.DNS == nil {
		validationErrors = append(validationErrors, ValidationError{
			FieldPath: "dns",
			Message:   "configuration must contain 'dns' section",
		})
	}
	if c.Proxy == nil {
		validationErrors = append(validationErrors, ValidationError{
			FieldPath: "proxy",
			Message:   "configuration must contain 'proxy' section",
		})
	}
	if len(validationErrors) > 0 {
		return validationErrors
	}

	validationErrors = append(validationErrors, c.validateSections()...)
	validationErrors = append(validationErrors, c.validateListeners()...)
	validationErrors = append(validationErrors, c.validateAdapters()...)
	validationErrors = append(validationErrors, c.validateRules()...)

	if len(validationErrors) > 0 {
		return validationErrors
	}

	return nil
}

func (c *Config) validateSections() ValidationErrors {
	var validationErrors ValidationErrors

	sections := []struct {
		name  string
		value interface{}
		isNil bool
	}{
		{"general", c.General, c.General == nil},
		{"tun", c.Tun, c.Tun == nil},
		{"dns", c.DNS, false},
		{"redirect", c.Redirect, c.Redirect == nil},
	}
	for _, s := range sections {
		if s.isNil {
			continue
		}
		if err := validate.Struct(s.value); err != nil {
			validationErrors = append(validationErrors, convertValidatorErrors(err, s.name, "")...)
		}
	}

	// Listeners carry no struct tags on the parent, see validateListeners.
	if err := validate.Struct(c.Proxy); err != nil {
		validationErrors = append(validationErrors, convertValidatorErrors(err, "proxy", "")...)
	}

	if fakeRange := c.GetFakeIPRange(); fakeRange.Bits() > 30 {
		validationErrors = append(validationErrors, ValidationError{
			FieldPath: "dns.fake_ip_range",
			Message:   fmt.Sprintf("range %s is too small, use /30 or larger", fakeRange),
		})
	} else if fakeRange.Contains(c.GetDNSServerAddress()) {
		validationErrors = append(validationErrors, ValidationError{
			FieldPath: "dns.server_address",
			Message:   fmt.Sprintf("server address must not be inside fake_ip_range %s", fakeRange),
		})
	}

	if c.GetDNSServerAddress() == c.GetTunPrefix().Addr() {
		validationErrors = append(validationErrors, ValidationError{
			FieldPath: "dns.server_address",
			Message:   "server address must not be the tun interface address",
		})
	}

	if path := c.GetAbsGeoIPDatabase(); path != "" {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			validationErrors = append(validationErrors, ValidationError{
				FieldPath: "general.geoip_database",
				Message:   fmt.Sprintf("file does not exist: %s", path),
			})
		}
	}

	return validationErrors
}

func (c *Config) validateListeners() ValidationErrors {
	var validationErrors ValidationErrors

	if len(c.Proxy.Listeners) == 0 {
		return append(validationErrors, ValidationError{
			FieldPath: "proxy.listener",
			Message:   "configuration must contain at least one listener",
		})
	}

	seenAddresses := make(map[string]bool)
	redirectListeners := 0
	for i, listener := range c.Proxy.Listeners {
		itemName := fmt.Sprintf("%s listener", listener.Type)
		fieldPrefix := fmt.Sprintf("proxy.listener.%d", i)

		if err := validate.Struct(listener); err != nil {
			validationErrors = append(validationErrors, convertValidatorErrors(err, fieldPrefix, itemName)...)
		}

		if seenAddresses[listener.Address] {
			validationErrors = append(validationErrors, ValidationError{
				ItemName:  itemName,
				FieldPath: fieldPrefix + ".address",
				Message:   fmt.Sprintf("duplicate listener address: %s", listener.Address),
			})
		}
		seenAddresses[listener.Address] = true

		if listener.Type == ListenerRedirect {
			redirectListeners++
		}
	}

	if redirectListeners > 1 {
		validationErrors = append(validationErrors, ValidationError{
			FieldPath: "proxy.listener",
			Message:   "only one redirect listener is allowed",
		})
	}
	if c.IsRedirectEnabled() && redirectListeners == 0 {
		validationErrors = append(validationErrors, ValidationError{
			FieldPath: "redirect.enable",
			Message:   "redirect requires a listener of type 'redirect'",
		})
	}

	return validationErrors
}

func (c *Config) validateAdapters() ValidationErrors {
	var validationErrors ValidationErrors
	seenNames := make(map[string]bool)

	for i, adapter := range c.Adapters {
		itemName := adapter.Name
		if itemName == "" {
			itemName = fmt.Sprintf("adapter[%d]", i)
		}

		if err := validate.Struct(adapter); err != nil {
			validationErrors = append(validationErrors, convertValidatorErrors(err, fmt.Sprintf("adapter.%d", i), itemName)...)
		}

		if seenNames[adapter.Name] {
			validationErrors = append(validationErrors, ValidationError{
				ItemName:  itemName,
				FieldPath: "name",
				Message:   fmt.Sprintf("duplicate adapter name: %s", adapter.Name),
			})
		}
		seenNames[adapter.Name] = true
	}

	return validationErrors
}

func (c *Config) validateRules() ValidationErrors {
	var validationErrors ValidationErrors

	adapters := make(map[string]bool)
	for _, a := range c.GetAdapters() {
		adapters[a.Name] = true
	}

	finalSeen := false
	for i, rule := range c.Rules {
		itemName := fmt.Sprintf("rule[%d]", i)
		fieldPrefix := fmt.Sprintf("rule.%d", i)

		if err := validate.Struct(rule); err != nil {
			validationErrors = append(validationErrors, convertValidatorErrors(err, fieldPrefix, itemName)...)
			continue
		}

		if finalSeen {
			validationErrors = append(validationErrors, ValidationError{
				ItemName:  itemName,
				FieldPath: fieldPrefix + ".type",
				Message:   "rule is unreachable after a 'final' rule",
			})
		}

		if rule.Adapter != "" && !adapters[rule.Adapter] {
			validationErrors = append(validationErrors, ValidationError{
				ItemName:  itemName,
				FieldPath: fieldPrefix + ".adapter",
				Message:   fmt.Sprintf("unknown adapter: %s", rule.Adapter),
			})
		}

		if rule.Type == RuleFinal {
			finalSeen = true
			continue
		}

		if len(rule.Values) == 0 {
			validationErrors = append(validationErrors, ValidationError{
				ItemName:  itemName,
				FieldPath: fieldPrefix + ".values",
				Message:   "values cannot be empty",
			})
		}

		for j, value := range rule.Values {
			if msg := validateRuleValue(rule.Type, value); msg != "" {
				validationErrors = append(validationErrors, ValidationError{
					ItemName:  itemName,
					FieldPath: fmt.Sprintf("%s.values.%d", fieldPrefix, j),
					Message:   msg,
				})
			}
		}

		if rule.Type == RuleGeoIP && c.GetAbsGeoIPDatabase() == "" {
			validationErrors = append(validationErrors, ValidationError{
				ItemName:  itemName,
				FieldPath: fieldPrefix + ".type",
				Message:   "geoip rules require general.geoip_database",
			})
		}
	}

	return validationErrors
}

func validateRuleValue(ruleType, value string) string {
	if value == "" {
		return "value cannot be empty"
	}

	switch ruleType {
	case RuleIPCIDR:
		if prefix, err := netip.ParsePrefix(value); err != nil || !prefix.Addr().Is4() {
			return fmt.Sprintf("invalid IPv4 CIDR: %s", value)
		}
	case RuleDomainGlob:
		if _, err := glob.Compile(value, '.'); err != nil {
			return fmt.Sprintf("invalid glob pattern %s: %v", value, err)
		}
	case RuleGeoIP:
		if len(value) != 2 {
			return fmt.Sprintf("invalid ISO country code: %s", value)
		}
	}
	return ""
}

// convertValidatorErrors converts go-playground/validator errors to our ValidationError format
func convertValidatorErrors(err error, fieldPrefix string, itemName string) ValidationErrors {
	var validationErrors ValidationErrors

	var validatorErrs validator.ValidationErrors
	if errors.As(err, &validatorErrs) {
		for _, e := range validatorErrs {
			fieldPath := fieldPrefix
			if e.Field() != "" {
				// e.Field() returns the TOML tag name because we registered TagNameFunc
				if fieldPrefix != "" {
					fieldPath = fieldPrefix + "." + e.Field()
				} else {
					fieldPath = e.Field()
				}
			}

			validationErrors = append(validationErrors, ValidationError{
				ItemName:  itemName,
				FieldPath: fieldPath,
				Message:   getValidationMessage(e),
			})
		}
	}

	return validationErrors
}
