package ldapproxy

import "errors"

var errMalformedMessage = errors.New("ldapproxy: malformed LDAPMessage")
