package ldapproxy

import (
	"errors"

	ber "github.com/go-asn1-ber/asn1-ber"
	"github.com/go-ldap/ldap/v3"
)

// filterToString converts a search request's Filter CHOICE, still in its
// raw BER form, into the RFC 4515 string representation go-ldap's client
// API expects. The Filter CHOICE's context-specific tags are exactly the
// tree go-ldap's own DecompileFilter walks, so the packet is handed to it
// as-is once its outermost node is known to carry one of those tags; an
// outermost node outside the CHOICE is an error. Nested nodes are not
// checked here.
func filterToString(filterPacket *ber.Packet) (string, error) {
	if filterPacket == nil || filterPacket.ClassType != ber.ClassContext || filterPacket.Tag > ldap.FilterExtensibleMatch {
		return "", errors.New("ldapproxy: unrecognized search filter node")
	}

	return ldap.DecompileFilter(filterPacket)
}
