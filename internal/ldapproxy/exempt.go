package ldapproxy

import (
	"strings"

	mapset "github.com/deckarep/golang-set"

	"github.com/worldposta/authproxy/internal/configuration/schema"
)

// exemptionChecker decides whether a bind DN skips 2FA entirely and falls
// back to a plain directory bind: the service account, any DN in the
// configured exempt-OU list, or (once per connection) the very first bind
// when the binding is configured with exempt_primary_bind.
type exemptionChecker struct {
	binding   schema.LDAPBinding
	serviceDN string
	exemptOUs mapset.Set
}

func newExemptionChecker(binding schema.LDAPBinding) *exemptionChecker {
	ous := mapset.NewSet()
	for _, ou := range binding.ExemptOUs {
		ous.Add(strings.ToLower(ou))
	}

	serviceDN := ""
	if binding.Directory != nil {
		serviceDN = strings.ToLower(binding.Directory.ServiceDN)
	}

	return &exemptionChecker{binding: binding, serviceDN: serviceDN, exemptOUs: ous}
}

// isExempt checks the exemption rules in precedence order: exempt_primary_bind first,
// then the service account (exact DN or matching UPN local-part), then the
// exempt_ou list (exact DN, matching UPN local-part, or DN-suffix match).
func (e *exemptionChecker) isExempt(dn string, firstBindDone bool) (bool, string) {
	dnLower := strings.ToLower(dn)

	if e.binding.ExemptPrimaryBind && !firstBindDone {
		return true, "exempt_primary_bind"
	}

	if e.serviceDN != "" {
		if dnLower == e.serviceDN {
			return true, "service account"
		}

		if sameUPNLocalPart(dnLower, e.serviceDN) {
			return true, "service account (matching username)"
		}
	}

	exempt := false
	e.exemptOUs.Each(func(item interface{}) bool {
		ou := item.(string)

		if dnLower == ou || sameUPNLocalPart(dnLower, ou) || strings.HasSuffix(dnLower, ","+ou) {
			exempt = true
			return true
		}

		return false
	})

	if exempt {
		return true, "exempt_ou match"
	}

	return false, ""
}

func sameUPNLocalPart(a, b string) bool {
	ai := strings.IndexByte(a, '@')
	bi := strings.IndexByte(b, '@')

	return ai >= 0 && bi >= 0 && a[:ai] == b[:bi]
}

// extractUsername pulls a bare username out of a bind DN, trying each
// known shape in order: CN=, uid=, a bare UPN (user@domain with no `=`),
// DOMAIN\user, and finally the DN verbatim if nothing else matched.
func extractUsername(dn string) string {
	lower := strings.ToLower(dn)

	switch {
	case strings.HasPrefix(lower, "cn="):
		return firstRDNValue(dn, 3)
	case strings.HasPrefix(lower, "uid="):
		return firstRDNValue(dn, 4)
	case strings.Contains(dn, "@") && !strings.Contains(dn, "="):
		return dn[:strings.IndexByte(dn, '@')]
	case strings.Contains(dn, `\`):
		return dn[strings.LastIndexByte(dn, '\\')+1:]
	default:
		return dn
	}
}

func firstRDNValue(dn string, prefixLen int) string {
	if i := strings.IndexByte(dn, ','); i >= 0 {
		return dn[prefixLen:i]
	}

	return dn[prefixLen:]
}
