package radiusproxy

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"layeh.com/radius"
	"layeh.com/radius/rfc2865"

	"github.com/worldposta/authproxy/internal/authengine"
	"github.com/worldposta/authproxy/internal/cloud2fa"
	"github.com/worldposta/authproxy/internal/configuration/schema"
	"github.com/worldposta/authproxy/internal/directory"
)

type fakeDirectory struct {
	dn         string
	found      bool
	bindResult directory.BindError
}

func (f *fakeDirectory) ResolveDN(string) (string, bool, error) { return f.dn, f.found, nil }
func (f *fakeDirectory) BindAsUser(string, string) directory.BindError { return f.bindResult }
func (f *fakeDirectory) PassthroughSearch(string, int, string, []string) ([]*ldap.Entry, error) {
	return nil, nil
}

type fakeCloud struct {
	awaitResult cloud2fa.PushStatus
}

func (f *fakeCloud) VerifyTOTP(context.Context, string, string) (bool, error) { return true, nil }
func (f *fakeCloud) SendPush(context.Context, string, cloud2fa.PushMetadata) (string, error) {
	return "req-1", nil
}
func (f *fakeCloud) PollStatus(context.Context, string) (cloud2fa.PushStatus, error) {
	return f.awaitResult, nil
}
func (f *fakeCloud) AwaitPush(context.Context, string, time.Time) cloud2fa.PushStatus {
	return f.awaitResult
}

func noopLog() *logrus.Entry {
	return logrus.NewEntry(logrus.New())
}

const testSecret = "sharedsecret"

func newTestListener(t *testing.T, engine *authengine.Engine) *Listener {
	t.Helper()

	binding := schema.RADIUSBinding{
		Name: "test",
		Clients: []schema.RADIUSClient{
			{IP: "127.0.0.1", Secret: testSecret},
		},
	}

	return New(binding, engine, noopLog())
}

func buildAccessRequest(t *testing.T, username, password string, identifier byte) *radius.Packet {
	t.Helper()

	pkt := radius.New(radius.CodeAccessRequest, []byte(testSecret))
	pkt.Identifier = identifier

	require.NoError(t, rfc2865.UserName_SetString(pkt, username))
	require.NoError(t, rfc2865.UserPassword_SetString(pkt, password))

	return pkt
}

// capturingCloud wraps fakeCloud to record the IP address the engine
// passed through to SendPush, the only place authenticate()'s resolved
// ipAddress actually reaches.
type capturingCloud struct {
	*fakeCloud
	gotIP string
}

func (c *capturingCloud) SendPush(ctx context.Context, username string, meta cloud2fa.PushMetadata) (string, error) {
	c.gotIP = meta.IPAddress
	return c.fakeCloud.SendPush(ctx, username, meta)
}

func TestAuthenticateFallsBackToUDPSourceIPNotNASIPAddress(t *testing.T) {
	dir := &fakeDirectory{dn: "cn=alice,dc=example,dc=com", found: true, bindResult: directory.BindErrorNone}
	cloud := &capturingCloud{fakeCloud: &fakeCloud{awaitResult: cloud2fa.PushApproved}}
	engine := authengine.New(dir, cloud, time.Second, false, noopLog())
	l := newTestListener(t, engine)

	pkt := buildAccessRequest(t, "alice", "hunter2,push", 1)
	// NAS-IP-Address is deliberately a different address from the UDP
	// packet's real source; Calling-Station-Id is left unset so the
	// fallback path is exercised.
	require.NoError(t, rfc2865.NASIPAddress_Set(pkt, net.ParseIP("10.0.0.9")))

	source := &net.UDPAddr{IP: net.ParseIP("192.168.1.42"), Port: 1024}

	reply := l.authenticate(context.Background(), pkt, source)

	assert.Equal(t, radius.CodeAccessAccept, reply.Code)
	assert.Equal(t, "192.168.1.42", cloud.gotIP)
}

func TestAuthenticateUsesCallingStationIDWhenPresent(t *testing.T) {
	dir := &fakeDirectory{dn: "cn=alice,dc=example,dc=com", found: true, bindResult: directory.BindErrorNone}
	cloud := &capturingCloud{fakeCloud: &fakeCloud{awaitResult: cloud2fa.PushApproved}}
	engine := authengine.New(dir, cloud, time.Second, false, noopLog())
	l := newTestListener(t, engine)

	pkt := buildAccessRequest(t, "alice", "hunter2,push", 1)
	require.NoError(t, rfc2865.CallingStationID_SetString(pkt, "198.51.100.7"))

	source := &net.UDPAddr{IP: net.ParseIP("192.168.1.42"), Port: 1024}

	reply := l.authenticate(context.Background(), pkt, source)

	assert.Equal(t, radius.CodeAccessAccept, reply.Code)
	assert.Equal(t, "198.51.100.7", cloud.gotIP)
}

func TestHandleDatagramHappyPathPush(t *testing.T) {
	dir := &fakeDirectory{dn: "cn=alice,dc=example,dc=com", found: true, bindResult: directory.BindErrorNone}
	engine := authengine.New(dir, &fakeCloud{awaitResult: cloud2fa.PushApproved}, time.Second, false, noopLog())
	l := newTestListener(t, engine)

	serverConn, clientConn := udpPipe(t)
	l.conn = serverConn

	pkt := buildAccessRequest(t, "alice", "hunter2,push", 42)
	data, err := pkt.Encode()
	require.NoError(t, err)

	source := clientConn.LocalAddr().(*net.UDPAddr)
	l.handleDatagram(context.Background(), data, source)

	reply := readRADIUSReply(t, clientConn)
	assert.Equal(t, radius.CodeAccessAccept, reply.Code)
}

func TestHandleDatagramRejectsBadCredentials(t *testing.T) {
	dir := &fakeDirectory{dn: "cn=alice,dc=example,dc=com", found: true, bindResult: directory.BindErrorBadCredentials}
	engine := authengine.New(dir, &fakeCloud{}, time.Second, false, noopLog())
	l := newTestListener(t, engine)

	serverConn, clientConn := udpPipe(t)
	l.conn = serverConn

	pkt := buildAccessRequest(t, "alice", "wrongpass", 1)
	data, err := pkt.Encode()
	require.NoError(t, err)

	source := clientConn.LocalAddr().(*net.UDPAddr)
	l.handleDatagram(context.Background(), data, source)

	reply := readRADIUSReply(t, clientConn)
	assert.Equal(t, radius.CodeAccessReject, reply.Code)
}

func TestHandleDatagramDropsUnknownClient(t *testing.T) {
	dir := &fakeDirectory{dn: "cn=alice,dc=example,dc=com", found: true, bindResult: directory.BindErrorNone}
	engine := authengine.New(dir, &fakeCloud{awaitResult: cloud2fa.PushApproved}, time.Second, false, noopLog())
	l := newTestListener(t, engine)

	serverConn, clientConn := udpPipe(t)
	l.conn = serverConn

	pkt := buildAccessRequest(t, "alice", "hunter2,push", 1)
	data, err := pkt.Encode()
	require.NoError(t, err)

	unknown := &net.UDPAddr{IP: net.ParseIP("203.0.113.5"), Port: 999}
	l.handleDatagram(context.Background(), data, unknown)

	clientConn.SetReadDeadline(time.Now().Add(150 * time.Millisecond))
	buf := make([]byte, 4096)
	_, _, err = clientConn.ReadFromUDP(buf)
	assert.Error(t, err, "expected no reply for an unknown client")
}

func TestHandleDatagramDropsDuplicateInFlightRequest(t *testing.T) {
	dir := &fakeDirectory{dn: "cn=alice,dc=example,dc=com", found: true, bindResult: directory.BindErrorNone}
	engine := authengine.New(dir, &fakeCloud{awaitResult: cloud2fa.PushApproved}, time.Second, false, noopLog())
	l := newTestListener(t, engine)

	serverConn, clientConn := udpPipe(t)
	l.conn = serverConn

	pkt := buildAccessRequest(t, "alice", "hunter2,push", 7)
	data, err := pkt.Encode()
	require.NoError(t, err)

	source := clientConn.LocalAddr().(*net.UDPAddr)

	key := pendingKey(source.IP.String(), source.Port, pkt.Identifier)
	require.True(t, l.pending.markIfAbsent(key), "pre-marking key as already in flight")

	l.handleDatagram(context.Background(), data, source)

	clientConn.SetReadDeadline(time.Now().Add(150 * time.Millisecond))
	buf := make([]byte, 4096)
	_, _, err = clientConn.ReadFromUDP(buf)
	assert.Error(t, err, "a retransmit of an in-flight request must not get a second reply")
}

// udpPipe returns two loopback UDP sockets bound to the kernel-assigned
// ports, connected to each other, standing in for the listener's own
// socket and a RADIUS client sending to it.
func udpPipe(t *testing.T) (*net.UDPConn, *net.UDPConn) {
	t.Helper()

	server, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	require.NoError(t, err)
	t.Cleanup(func() { server.Close() })

	client, err := net.DialUDP("udp", nil, server.LocalAddr().(*net.UDPAddr))
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	return server, client
}

func readRADIUSReply(t *testing.T, conn *net.UDPConn) *radius.Packet {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 4096)
	n, err := conn.Read(buf)
	require.NoError(t, err)

	reply, err := radius.Parse(buf[:n], []byte(testSecret))
	require.NoError(t, err)

	return reply
}
