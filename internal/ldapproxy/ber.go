// Package ldapproxy implements the LDAP (RFC 4511) front end: a TCP
// acceptor that intercepts BindRequest PDUs for 2FA, relays SEARCH and
// COMPARE to the primary directory, answers extended operations itself and
// rejects write operations.
package ldapproxy

import (
	ber "github.com/go-asn1-ber/asn1-ber"
)

// Protocol operation application tags (RFC 4511 §4.2).
const (
	appBindRequest       = 0
	appBindResponse      = 1
	appUnbindRequest     = 2
	appSearchRequest     = 3
	appSearchResultEntry = 4
	appSearchResultDone  = 5
	appModifyRequest     = 6
	appModifyResponse    = 7
	appAddRequest        = 8
	appAddResponse       = 9
	appDelRequest        = 10
	appDelResponse       = 11
	appModifyDNRequest   = 12
	appModifyDNResponse  = 13
	appCompareRequest    = 14
	appCompareResponse   = 15
	appAbandonRequest    = 16
	appExtendedRequest   = 23
	appExtendedResponse  = 24
)

// LDAP result codes this proxy produces (RFC 4511 §4.1.9).
const (
	resultSuccess            = 0
	resultOperationsError    = 1
	resultCompareFalse       = 5
	resultCompareTrue        = 6
	resultInvalidCredentials = 49
	resultUnwillingToPerform = 53
)

// message is one decoded LDAPMessage: its message ID and the protocolOp
// child packet, still in raw BER form for the caller to interpret.
type message struct {
	id       int64
	opTag    ber.Tag
	op       *ber.Packet
	controls *ber.Packet
}

func decodeMessage(pkt *ber.Packet) (*message, error) {
	if len(pkt.Children) < 2 {
		return nil, errMalformedMessage
	}

	id, ok := pkt.Children[0].Value.(int64)
	if !ok {
		return nil, errMalformedMessage
	}

	op := pkt.Children[1]

	m := &message{id: id, opTag: op.Tag, op: op}
	if len(pkt.Children) > 2 {
		m.controls = pkt.Children[2]
	}

	return m, nil
}

// newMessage wraps a protocolOp packet in an LDAPMessage envelope with the
// given message ID, ready to be written to the wire.
func newMessage(id int64, op *ber.Packet) *ber.Packet {
	envelope := ber.Encode(ber.ClassUniversal, ber.TypeConstructed, ber.TagSequence, nil, "LDAPMessage")
	envelope.AppendChild(ber.NewInteger(ber.ClassUniversal, ber.TypePrimitive, ber.TagInteger, id, "MessageID"))
	envelope.AppendChild(op)

	return envelope
}

// ldapResult builds the common LDAPResult sequence (resultCode, matchedDN,
// diagnosticMessage) shared by every */Response PDU.
func ldapResult(appTag ber.Tag, resultCode int64, matchedDN, message string) *ber.Packet {
	p := ber.Encode(ber.ClassApplication, ber.TypeConstructed, appTag, nil, "LDAPResult")
	p.AppendChild(ber.NewInteger(ber.ClassUniversal, ber.TypePrimitive, ber.TagEnumerated, resultCode, "resultCode"))
	p.AppendChild(ber.NewString(ber.ClassUniversal, ber.TypePrimitive, ber.TagOctetString, matchedDN, "matchedDN"))
	p.AppendChild(ber.NewString(ber.ClassUniversal, ber.TypePrimitive, ber.TagOctetString, message, "diagnosticMessage"))

	return p
}

func bindResponse(resultCode int64, message string) *ber.Packet {
	return ldapResult(appBindResponse, resultCode, "", message)
}

func searchResultDone(resultCode int64, message string) *ber.Packet {
	return ldapResult(appSearchResultDone, resultCode, "", message)
}

func compareResponse(resultCode int64) *ber.Packet {
	return ldapResult(appCompareResponse, resultCode, "", "")
}

func genericResponse(appTag ber.Tag, resultCode int64, message string) *ber.Packet {
	return ldapResult(appTag, resultCode, "", message)
}

func extendedResponse(resultCode int64, message, responseName string) *ber.Packet {
	p := ldapResult(appExtendedResponse, resultCode, "", message)
	if responseName != "" {
		p.AppendChild(ber.NewString(ber.ClassContext, ber.TypePrimitive, 10, responseName, "responseName"))
	}

	return p
}
