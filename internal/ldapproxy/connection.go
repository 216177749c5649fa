package ldapproxy

import (
	"context"
	"io"
	"net"

	ber "github.com/go-asn1-ber/asn1-ber"
	"github.com/go-ldap/ldap/v3"
	"github.com/sirupsen/logrus"

	"github.com/worldposta/authproxy/internal/authengine"
	"github.com/worldposta/authproxy/internal/configuration/schema"
	"github.com/worldposta/authproxy/internal/directory"
)

// binaryAttributes lists the attributes Active Directory returns as
// unprintable binary data; these must be forwarded as raw bytes rather
// than re-encoded as UTF-8 strings, or clients like vCenter fail to parse
// SIDs and GUIDs.
var binaryAttributes = map[string]struct{}{
	"objectsid":                       {},
	"objectguid":                      {},
	"msexchmailboxguid":               {},
	"msexchmailboxsecuritydescriptor": {},
	"securityidentifier":              {},
	"sid":                             {},
	"sidhistory":                      {},
	"usercertificate":                 {},
	"cacertificate":                   {},
	"logonhours":                      {},
	"jpegphoto":                       {},
	"thumbnailphoto":                  {},
	"usersmimecertificate":            {},
	"msds-generationid":               {},
	"msds-cloudextensionattribute1":   {},
}

// conn is the per-connection state machine: one TCP connection may bind
// multiple times (re-bind), so first_bind_done and the exemption checker
// both live here, not on the listener.
type conn struct {
	netConn       net.Conn
	binding       schema.LDAPBinding
	engine        *authengine.Engine
	dir           directory.Client // service-bound directory client, nil for pass-through.
	exempt        *exemptionChecker
	firstBindDone bool
	log           *logrus.Entry
}

func newConn(netConn net.Conn, binding schema.LDAPBinding, engine *authengine.Engine, dir directory.Client, log *logrus.Entry) *conn {
	return &conn{
		netConn: netConn,
		binding: binding,
		engine:  engine,
		dir:     dir,
		exempt:  newExemptionChecker(binding),
		log:     log.WithField("peer", netConn.RemoteAddr().String()),
	}
}

func (c *conn) serve(ctx context.Context) {
	defer c.netConn.Close()

	for {
		pkt, err := ber.ReadPacket(c.netConn)
		if err != nil {
			if err != io.EOF {
				c.log.WithError(err).Debug("ldap connection closed")
			}

			return
		}

		msg, err := decodeMessage(pkt)
		if err != nil {
			c.log.WithError(err).Warn("malformed ldap message, closing connection")
			return
		}

		if !c.dispatchSafe(ctx, msg) {
			return
		}
	}
}

// dispatchSafe contains a handler panic to the one operation that caused
// it: the client gets operationsError and the connection keeps serving.
func (c *conn) dispatchSafe(ctx context.Context, msg *message) (keepServing bool) {
	defer func() {
		if r := recover(); r != nil {
			c.log.WithField("panic", r).Error("ldap handler panicked")

			if respTag, ok := responseTagFor(msg.opTag); ok {
				keepServing = c.send(msg.id, genericResponse(respTag, resultOperationsError, "internal error"))
			} else {
				keepServing = true
			}
		}
	}()

	return c.dispatch(ctx, msg)
}

// responseTagFor maps a request's protocolOp tag to its response tag, for
// operations that get a response at all.
func responseTagFor(opTag ber.Tag) (ber.Tag, bool) {
	switch opTag {
	case appBindRequest:
		return appBindResponse, true
	case appSearchRequest:
		return appSearchResultDone, true
	case appCompareRequest:
		return appCompareResponse, true
	case appExtendedRequest:
		return appExtendedResponse, true
	case appModifyRequest:
		return appModifyResponse, true
	case appAddRequest:
		return appAddResponse, true
	case appDelRequest:
		return appDelResponse, true
	case appModifyDNRequest:
		return appModifyDNResponse, true
	default:
		return 0, false
	}
}

// dispatch handles one message and returns false when the connection
// should close (UNBIND, or a write failure).
func (c *conn) dispatch(ctx context.Context, msg *message) bool {
	switch msg.opTag {
	case appBindRequest:
		return c.handleBind(ctx, msg)
	case appSearchRequest:
		return c.handleSearch(msg)
	case appCompareRequest:
		return c.handleCompare(msg)
	case appExtendedRequest:
		return c.handleExtended(msg)
	case appUnbindRequest:
		return false
	case appAbandonRequest:
		return true // no response per RFC 4511 §4.11.
	case appModifyRequest:
		return c.reject(msg.id, appModifyResponse, "Modify operations not supported by proxy")
	case appAddRequest:
		return c.reject(msg.id, appAddResponse, "Add operations not supported by proxy")
	case appDelRequest:
		return c.reject(msg.id, appDelResponse, "Delete operations not supported by proxy")
	case appModifyDNRequest:
		return c.reject(msg.id, appModifyDNResponse, "Modify DN operations not supported by proxy")
	default:
		c.log.WithField("op_tag", msg.opTag).Warn("unhandled ldap operation")
		return true
	}
}

func (c *conn) reject(id int64, appTag ber.Tag, text string) bool {
	return c.send(id, genericResponse(appTag, resultUnwillingToPerform, text))
}

func (c *conn) send(id int64, op *ber.Packet) bool {
	_, err := c.netConn.Write(newMessage(id, op).Bytes())
	if err != nil {
		c.log.WithError(err).Warn("failed to write ldap response")
		return false
	}

	return true
}

func (c *conn) handleBind(ctx context.Context, msg *message) bool {
	if len(msg.op.Children) < 3 {
		return c.send(msg.id, bindResponse(resultOperationsError, "malformed bind request"))
	}

	dn, _ := msg.op.Children[1].Value.(string)
	authChoice := msg.op.Children[2]
	password := ""
	if s, ok := authChoice.Value.(string); ok {
		password = s
	} else if authChoice.Data != nil {
		password = authChoice.Data.String()
	}

	if dn == "" || password == "" {
		c.log.Debug("anonymous bind")
		return c.send(msg.id, bindResponse(resultSuccess, ""))
	}

	username := extractUsername(dn)
	peerIP := c.peerIP()

	exempt, reason := c.exempt.isExempt(dn, c.firstBindDone)
	c.firstBindDone = true

	if exempt {
		c.log.WithFields(logrus.Fields{"user": username, "reason": reason}).Info("2fa exempt bind")
		return c.send(msg.id, bindResponse(c.plainBind(dn, password), ""))
	}

	result, message := c.engine.Authenticate(ctx, authengine.Request{
		Username:   username,
		Password:   password,
		DeviceInfo: "LDAP client",
		IPAddress:  peerIP,
		Mode:       schema.RADIUSModeAuto,
	})

	if result == authengine.ResultSuccess {
		c.log.WithField("user", username).Info("ldap bind successful")
		return c.send(msg.id, bindResponse(resultSuccess, ""))
	}

	c.log.WithFields(logrus.Fields{"user": username, "result": result}).Warn("ldap bind failed")

	return c.send(msg.id, bindResponse(resultInvalidCredentials, message))
}

// plainBind is used for exempt DNs: verify the directory password only,
// no second factor. A pass-through directory (nil) always succeeds.
func (c *conn) plainBind(dn, password string) int64 {
	if c.dir == nil {
		return resultSuccess
	}

	switch c.dir.BindAsUser(dn, password) {
	case directory.BindErrorNone:
		return resultSuccess
	default:
		return resultInvalidCredentials
	}
}

func (c *conn) peerIP() string {
	if addr, ok := c.netConn.RemoteAddr().(*net.TCPAddr); ok {
		return addr.IP.String()
	}

	return c.netConn.RemoteAddr().String()
}

func (c *conn) handleSearch(msg *message) bool {
	if c.dir == nil || len(msg.op.Children) < 8 {
		return c.send(msg.id, searchResultDone(resultSuccess, ""))
	}

	base, _ := msg.op.Children[0].Value.(string)
	scopeVal, _ := msg.op.Children[1].Value.(int64)
	filterPkt := msg.op.Children[6]

	filter, err := filterToString(filterPkt)
	if err != nil {
		filter = "(objectClass=*)"
	}

	var attrs []string
	for _, child := range msg.op.Children[7].Children {
		if s, ok := child.Value.(string); ok {
			attrs = append(attrs, s)
		}
	}
	if len(attrs) == 0 {
		attrs = []string{"*", "+"}
	}

	entries, err := c.dir.PassthroughSearch(base, int(scopeVal), filter, attrs)
	if err != nil {
		// Back-end failure is logged but not surfaced: clients like vCenter
		// treat anything other than a clean done(0) as fatal for the whole
		// session, so an empty successful result is the lesser harm.
		c.log.WithError(err).Warn("passthrough search failed")
		return c.send(msg.id, searchResultDone(resultSuccess, ""))
	}

	for _, entry := range entries {
		if !c.send(msg.id, searchResultEntry(entry)) {
			return false
		}
	}

	return c.send(msg.id, searchResultDone(resultSuccess, ""))
}

func searchResultEntry(entry *ldap.Entry) *ber.Packet {
	p := ber.Encode(ber.ClassApplication, ber.TypeConstructed, appSearchResultEntry, nil, "SearchResultEntry")
	p.AppendChild(ber.NewString(ber.ClassUniversal, ber.TypePrimitive, ber.TagOctetString, entry.DN, "objectName"))

	attrsSeq := ber.Encode(ber.ClassUniversal, ber.TypeConstructed, ber.TagSequence, nil, "attributes")
	for _, attr := range entry.Attributes {
		attrsSeq.AppendChild(partialAttribute(attr))
	}

	p.AppendChild(attrsSeq)

	return p
}

// partialAttribute encodes one PartialAttribute. Attributes in
// binaryAttributes are forwarded using their raw byte values straight from
// the directory rather than the UTF-8-decoded Values, matching what AD
// clients expect for SIDs, GUIDs and certificates.
func partialAttribute(attr *ldap.EntryAttribute) *ber.Packet {
	p := ber.Encode(ber.ClassUniversal, ber.TypeConstructed, ber.TagSequence, nil, "PartialAttribute")
	p.AppendChild(ber.NewString(ber.ClassUniversal, ber.TypePrimitive, ber.TagOctetString, attr.Name, "type"))

	valsSet := ber.Encode(ber.ClassUniversal, ber.TypeConstructed, ber.TagSet, nil, "vals")

	if _, binary := binaryAttributes[lowerASCII(attr.Name)]; binary && len(attr.ByteValues) > 0 {
		for _, v := range attr.ByteValues {
			valsSet.AppendChild(ber.NewString(ber.ClassUniversal, ber.TypePrimitive, ber.TagOctetString, string(v), "value"))
		}
	} else {
		for _, v := range attr.Values {
			valsSet.AppendChild(ber.NewString(ber.ClassUniversal, ber.TypePrimitive, ber.TagOctetString, v, "value"))
		}
	}

	p.AppendChild(valsSet)

	return p
}

func lowerASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}

	return string(b)
}

func (c *conn) handleCompare(msg *message) bool {
	if c.dir == nil || len(msg.op.Children) < 2 {
		return c.send(msg.id, compareResponse(resultCompareFalse))
	}

	dn, _ := msg.op.Children[0].Value.(string)
	ava := msg.op.Children[1]
	if len(ava.Children) < 2 {
		return c.send(msg.id, compareResponse(resultCompareFalse))
	}

	attr, _ := ava.Children[0].Value.(string)
	value, _ := ava.Children[1].Value.(string)

	entries, err := c.dir.PassthroughSearch(dn, ldap.ScopeBaseObject, "("+attr+"="+ldap.EscapeFilter(value)+")", []string{attr})
	if err != nil || len(entries) == 0 {
		return c.send(msg.id, compareResponse(resultCompareFalse))
	}

	return c.send(msg.id, compareResponse(resultCompareTrue))
}

const (
	oidWhoAmI   = "1.3.6.1.4.1.4203.1.11.3"
	oidStartTLS = "1.3.6.1.4.1.1466.20037"
)

func (c *conn) handleExtended(msg *message) bool {
	oid := ""
	if len(msg.op.Children) > 0 {
		oid, _ = msg.op.Children[0].Value.(string)
	}

	switch oid {
	case oidWhoAmI:
		return c.send(msg.id, extendedResponse(resultSuccess, "", oidWhoAmI))
	case oidStartTLS:
		return c.send(msg.id, extendedResponse(resultUnwillingToPerform, "StartTLS not supported", ""))
	default:
		return c.send(msg.id, extendedResponse(resultSuccess, "", ""))
	}
}
