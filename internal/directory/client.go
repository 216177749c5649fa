// Package directory implements the synchronous LDAP client the auth engine
// uses against the primary directory: DN resolution, bind-as-user, and the
// pass-through search the LDAP front end relays vCenter-style queries
// through.
package directory

import (
	"fmt"
	"strings"

	"github.com/go-ldap/ldap/v3"
	"github.com/sirupsen/logrus"

	"github.com/worldposta/authproxy/internal/configuration/schema"
)

//go:generate mockgen -source=client.go -destination=directorymock/client_mock.go -package=directorymock

// Client is the directory surface the auth engine and the LDAP front end
// depend on.
type Client interface {
	ResolveDN(username string) (dn string, found bool, err error)
	BindAsUser(dn, password string) BindError
	PassthroughSearch(base string, scope int, filter string, attrs []string) ([]*ldap.Entry, error)
}

// LDAPClient binds against profile for every call; it holds no long-lived
// connection. Each operation is a full dial/bind/search/unbind cycle.
type LDAPClient struct {
	profile *schema.DirectoryProfile
	log     *logrus.Entry
}

// New builds a Client for profile. profile must be non-nil; pass-through
// directory profiles (nil) are handled one layer up, by the auth engine.
func New(profile *schema.DirectoryProfile, log *logrus.Entry) *LDAPClient {
	return &LDAPClient{profile: profile, log: log}
}

func (c *LDAPClient) dial() (*ldap.Conn, error) {
	addr := fmt.Sprintf("%s:%d", c.profile.Host, c.profile.Port)

	if c.profile.UseTLS {
		return ldap.DialURL(fmt.Sprintf("ldaps://%s", addr))
	}

	return ldap.DialURL(fmt.Sprintf("ldap://%s", addr))
}

func (c *LDAPClient) serviceBind(conn *ldap.Conn) error {
	if c.profile.AuthMechanism == schema.AuthMechanismNTLM {
		domain, user := splitDomainUser(c.profile.ServiceDN)
		return conn.NTLMBind(domain, user, c.profile.ServicePass)
	}

	return conn.Bind(c.profile.ServiceDN, c.profile.ServicePass)
}

// splitDomainUser splits a DOMAIN\user account name for NTLM binds. A name
// with no backslash is treated as having an empty domain, letting the
// directory server fall back to its default domain.
func splitDomainUser(account string) (domain, user string) {
	if i := strings.IndexByte(account, '\\'); i >= 0 {
		return account[:i], account[i+1:]
	}

	return "", account
}

// ResolveDN performs the service-bound search step: substitute username
// into the configured filter template, search base_dn with subtree scope,
// and require exactly one match.
func (c *LDAPClient) ResolveDN(username string) (string, bool, error) {
	conn, err := c.dial()
	if err != nil {
		return "", false, fmt.Errorf("dialing directory: %w", err)
	}
	defer conn.Close()

	if err := c.serviceBind(conn); err != nil {
		return "", false, fmt.Errorf("service bind: %w", err)
	}

	filter := strings.ReplaceAll(c.profile.SearchFilter, "{username}", ldap.EscapeFilter(username))

	req := ldap.NewSearchRequest(
		c.profile.BaseDN,
		ldap.ScopeWholeSubtree, ldap.NeverDerefAliases, 0, 0, false,
		filter,
		[]string{"distinguishedName", "dn"},
		nil,
	)

	result, err := conn.Search(req)
	if err != nil {
		return "", false, fmt.Errorf("searching for %q: %w", username, err)
	}

	switch len(result.Entries) {
	case 0:
		c.log.WithField("user", username).Debug("user not found in directory")
		return "", false, nil
	case 1:
		return result.Entries[0].DN, true, nil
	default:
		c.log.WithField("user", username).Warn("multiple directory entries matched username")
		return "", false, fmt.Errorf("multiple entries found for %q", username)
	}
}

// BindAsUser performs the re-bind step with the user's own DN and
// password, classifying any failure per the substring rules in errors.go.
func (c *LDAPClient) BindAsUser(dn, password string) BindError {
	if password == "" {
		return BindErrorBadCredentials
	}

	conn, err := c.dial()
	if err != nil {
		c.log.WithError(err).Warn("dialing directory for user bind failed")
		return BindErrorOther
	}
	defer conn.Close()

	var bindErr error
	if c.profile.AuthMechanism == schema.AuthMechanismNTLM {
		domain, user := splitDomainUser(dn)
		bindErr = conn.NTLMBind(domain, user, password)
	} else {
		bindErr = conn.Bind(dn, password)
	}

	if bindErr != nil {
		classified := classifyBindError(bindErr.Error())
		c.log.WithFields(logrus.Fields{"dn": dn, "class": classified}).Warn("user bind failed")
		return classified
	}

	return BindErrorNone
}

// PassthroughSearch performs a service-bound search and returns every
// entry found, with every requested attribute, for the LDAP front end's
// non-BIND operations.
func (c *LDAPClient) PassthroughSearch(base string, scope int, filter string, attrs []string) ([]*ldap.Entry, error) {
	conn, err := c.dial()
	if err != nil {
		return nil, fmt.Errorf("dialing directory: %w", err)
	}
	defer conn.Close()

	if err := c.serviceBind(conn); err != nil {
		return nil, fmt.Errorf("service bind: %w", err)
	}

	req := ldap.NewSearchRequest(
		base,
		scope, ldap.NeverDerefAliases, 0, 0, false,
		filter,
		attrs,
		nil,
	)

	result, err := conn.Search(req)
	if err != nil {
		return nil, fmt.Errorf("passthrough search: %w", err)
	}

	return result.Entries, nil
}
