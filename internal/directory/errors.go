package directory

import "strings"

// BindError classifies why a bind against the directory failed, following
// the same substring matching the proxy has always used against raw LDAP
// diagnostic messages (Active Directory in particular embeds a data code
// inside the bind response's diagnostic message rather than a clean enum).
type BindError string

const (
	BindErrorNone            BindError = ""
	BindErrorBadCredentials  BindError = "bad_credentials"
	BindErrorAccountDisabled BindError = "disabled"
	BindErrorAccountExpired  BindError = "expired"
	BindErrorAccountLocked   BindError = "locked"
	BindErrorOther           BindError = "error"
)

// classifyBindError maps a bind failure's diagnostic text to a BindError.
// Order matters: the most specific substrings are checked before falling
// back to the generic case.
func classifyBindError(diagnosticMessage string) BindError {
	lower := strings.ToLower(diagnosticMessage)

	switch {
	case strings.Contains(lower, "invalidcredentials"):
		return BindErrorBadCredentials
	case strings.Contains(lower, "user name is invalid"):
		return BindErrorBadCredentials
	case strings.Contains(lower, "account disabled"):
		return BindErrorAccountDisabled
	case strings.Contains(lower, "account expired"):
		return BindErrorAccountExpired
	case strings.Contains(lower, "account locked"):
		return BindErrorAccountLocked
	default:
		return BindErrorOther
	}
}
