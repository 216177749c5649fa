// Package validator checks the cross-field invariants of a
// schema.Configuration: a list of plain-English errors accumulated from
// independent checks, returned together rather than failing on the first
// problem found.
package validator

import (
	"fmt"
	"strings"

	"github.com/asaskevich/govalidator"

	"github.com/worldposta/authproxy/internal/configuration/schema"
)

// Error message constants, grouped by the configuration area they describe.
const (
	errFmtCloudOptionRequired = "cloud: option '%s' is required"

	errFmtDirectoryOptionRequired    = "directories: '%s': option '%s' is required"
	errFmtDirectoryFilterPlaceholder = "directories: '%s': option 'search_filter' must contain the placeholder '{username}'"
	errFmtDirectoryInvalidMechanism  = "directories: '%s': option 'auth_mechanism' must be 'simple' or 'ntlm' but it is configured as '%s'"

	errFmtRADIUSNoClients        = "radius: '%s': must have at least one client configured"
	errFmtRADIUSInvalidClientIP  = "radius: '%s': client '%s' is not a valid IP address"
	errFmtRADIUSMissingSecret    = "radius: '%s': client '%s' has no shared secret"
	errFmtRADIUSUnsupportedMode  = "radius: '%s': mode 'challenge' is not supported; use 'auto' or 'concat'"
	errFmtRADIUSUnknownDirectory = "radius: '%s': references a directory that was not configured"

	errFmtLDAPUnknownDirectory = "ldap: '%s': references a directory that was not configured"

	errFmtDuplicatePort = "two bindings are both configured to listen on port %d"
)

// Error aggregates every validation failure found in a Configuration.
type Error struct {
	Messages []string
}

func (e *Error) Error() string {
	s := "configuration is invalid:"
	for _, m := range e.Messages {
		s += "\n  - " + m
	}

	return s
}

// Validate checks the cross-field invariants of a Configuration that the
// loader itself does not enforce, returning every problem it finds.
func Validate(cfg *schema.Configuration) error {
	var messages []string

	messages = append(messages, validateCloud(cfg)...)
	messages = append(messages, validateDirectories(cfg)...)
	messages = append(messages, validateRADIUS(cfg)...)
	messages = append(messages, validateLDAP(cfg)...)
	messages = append(messages, validatePortUniqueness(cfg)...)

	if len(messages) == 0 {
		return nil
	}

	return &Error{Messages: messages}
}

func validateCloud(cfg *schema.Configuration) (messages []string) {
	if cfg.Cloud.Endpoint == "" {
		messages = append(messages, fmt.Sprintf(errFmtCloudOptionRequired, "endpoint"))
	} else if !govalidator.IsURL(cfg.Cloud.Endpoint) {
		messages = append(messages, fmt.Sprintf("cloud: option 'endpoint' is not a valid URL: %s", cfg.Cloud.Endpoint))
	}

	if cfg.Cloud.IntegrationKey == "" {
		messages = append(messages, fmt.Sprintf(errFmtCloudOptionRequired, "integration_key"))
	}

	if cfg.Cloud.SecretKey == "" {
		messages = append(messages, fmt.Sprintf(errFmtCloudOptionRequired, "secret_key"))
	}

	if cfg.Cloud.PushTimeout <= 0 {
		messages = append(messages, fmt.Sprintf(errFmtCloudOptionRequired, "push_timeout"))
	}

	return messages
}

func validateDirectories(cfg *schema.Configuration) (messages []string) {
	for name, d := range cfg.DirectoryByName {
		if d.Host == "" {
			messages = append(messages, fmt.Sprintf(errFmtDirectoryOptionRequired, name, "host"))
		}

		if d.BaseDN == "" {
			messages = append(messages, fmt.Sprintf(errFmtDirectoryOptionRequired, name, "base_dn"))
		}

		if d.SearchFilter != "" && !strings.Contains(d.SearchFilter, "{username}") {
			messages = append(messages, fmt.Sprintf(errFmtDirectoryFilterPlaceholder, name))
		}

		switch d.AuthMechanism {
		case schema.AuthMechanismSimple, schema.AuthMechanismNTLM, "":
		default:
			messages = append(messages, fmt.Sprintf(errFmtDirectoryInvalidMechanism, name, d.AuthMechanism))
		}
	}

	return messages
}

func validateRADIUS(cfg *schema.Configuration) (messages []string) {
	for _, r := range cfg.RADIUS {
		if r.Mode == schema.RADIUSModeChallenge {
			messages = append(messages, fmt.Sprintf(errFmtRADIUSUnsupportedMode, r.Name))
		}

		if len(r.Clients) == 0 {
			messages = append(messages, fmt.Sprintf(errFmtRADIUSNoClients, r.Name))
		}

		for _, c := range r.Clients {
			if !govalidator.IsIPv4(c.IP) && !govalidator.IsIPv6(c.IP) {
				messages = append(messages, fmt.Sprintf(errFmtRADIUSInvalidClientIP, r.Name, c.IP))
			}

			if c.Secret == "" {
				messages = append(messages, fmt.Sprintf(errFmtRADIUSMissingSecret, r.Name, c.IP))
			}
		}

		if r.DirectoryRef != "" && r.Directory == nil {
			messages = append(messages, fmt.Sprintf(errFmtRADIUSUnknownDirectory, r.Name))
		}
	}

	return messages
}

func validateLDAP(cfg *schema.Configuration) (messages []string) {
	for _, l := range cfg.LDAP {
		if l.DirectoryRef != "" && l.Directory == nil {
			messages = append(messages, fmt.Sprintf(errFmtLDAPUnknownDirectory, l.Name))
		}
	}

	return messages
}

func validatePortUniqueness(cfg *schema.Configuration) (messages []string) {
	seen := make(map[int]string)

	for _, r := range cfg.RADIUS {
		if other, ok := seen[r.Port]; ok && other != r.Name {
			messages = append(messages, fmt.Sprintf(errFmtDuplicatePort, r.Port))
		}

		seen[r.Port] = r.Name
	}

	ldapSeen := make(map[int]string)
	for _, l := range cfg.LDAP {
		if other, ok := ldapSeen[l.Port]; ok && other != l.Name {
			messages = append(messages, fmt.Sprintf(errFmtDuplicatePort, l.Port))
		}

		ldapSeen[l.Port] = l.Name
	}

	return messages
}
