// Package radiusproxy implements the RADIUS (RFC 2865) front end: a UDP
// listener that decodes Access-Request packets, drives one authengine.Engine
// per binding, and encodes Access-Accept/Access-Reject replies.
package radiusproxy

import (
	"context"
	"net"
	"time"

	"github.com/sirupsen/logrus"
	"layeh.com/radius"
	"layeh.com/radius/rfc2865"

	"github.com/worldposta/authproxy/internal/authengine"
	"github.com/worldposta/authproxy/internal/configuration/schema"
)

const sweepInterval = 30 * time.Second

// Listener is one RADIUS UDP binding.
type Listener struct {
	binding schema.RADIUSBinding
	engine  *authengine.Engine
	secrets map[string]string
	pending *pendingSet
	log     *logrus.Entry

	conn *net.UDPConn
}

// New builds a Listener for binding, dispatching authentications through
// engine.
func New(binding schema.RADIUSBinding, engine *authengine.Engine, log *logrus.Entry) *Listener {
	secrets := make(map[string]string, len(binding.Clients))
	for _, c := range binding.Clients {
		secrets[c.IP] = c.Secret
	}

	return &Listener{
		binding: binding,
		engine:  engine,
		secrets: secrets,
		pending: newPendingSet(),
		log:     log.WithField("radius_binding", binding.Name),
	}
}

// Run opens the UDP socket and serves until ctx is canceled.
func (l *Listener) Run(ctx context.Context) error {
	addr := &net.UDPAddr{IP: net.IPv4zero, Port: l.binding.Port}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return err
	}
	l.conn = conn

	l.log.WithField("port", l.binding.Port).Info("radius listener started")

	go l.sweepLoop(ctx)

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	buf := make([]byte, 4096)

	for {
		n, source, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			l.log.WithError(err).Warn("radius read error")
			continue
		}

		packetData := make([]byte, n)
		copy(packetData, buf[:n])

		go l.handleDatagram(ctx, packetData, source)
	}
}

func (l *Listener) handleDatagram(ctx context.Context, data []byte, source *net.UDPAddr) {
	// A handler panic suppresses the reply for this packet only; the client
	// retransmits and the listener keeps serving.
	defer func() {
		if r := recover(); r != nil {
			l.log.WithField("panic", r).Error("radius handler panicked, dropping packet")
		}
	}()

	secret, known := l.secrets[source.IP.String()]
	if !known {
		l.log.WithField("client", source.IP.String()).Warn("unknown radius client, dropping")
		return
	}

	pkt, err := radius.Parse(data, []byte(secret))
	if err != nil {
		l.log.WithError(err).Warn("failed to decode radius packet, dropping")
		return
	}

	if pkt.Code != radius.CodeAccessRequest {
		l.log.WithField("code", pkt.Code).Warn("unsupported radius packet code, dropping")
		return
	}

	key := pendingKey(source.IP.String(), source.Port, pkt.Identifier)
	if !l.pending.markIfAbsent(key) {
		l.log.WithField("source", source.String()).Debug("dropping duplicate radius request")
		return
	}
	defer l.pending.clear(key)

	reply := l.authenticate(ctx, pkt, source)

	encoded, err := reply.Encode()
	if err != nil {
		l.log.WithError(err).Warn("failed to encode radius reply")
		return
	}

	if _, err := l.conn.WriteToUDP(encoded, source); err != nil {
		l.log.WithError(err).Warn("failed to send radius reply")
	}
}

func (l *Listener) authenticate(ctx context.Context, pkt *radius.Packet, source *net.UDPAddr) *radius.Packet {
	username := rfc2865.UserName_GetString(pkt)
	password := rfc2865.UserPassword_GetString(pkt)
	nasIP := rfc2865.NASIPAddress_Get(pkt)
	callingStation := rfc2865.CallingStationID_GetString(pkt)

	ipAddress := callingStation
	if ipAddress == "" {
		ipAddress = source.IP.String()
	}

	l.log.WithFields(logrus.Fields{"user": username, "nas": nasIP}).Info("access-request received")

	result, message := l.engine.Authenticate(ctx, authengine.Request{
		Username:   username,
		Password:   password,
		DeviceInfo: "NAS: " + nasIPString(nasIP),
		IPAddress:  ipAddress,
		Mode:       l.binding.Mode,
	})

	if result == authengine.ResultSuccess {
		l.log.WithField("user", username).Info("access-accept")
		reply := pkt.Response(radius.CodeAccessAccept)
		_ = rfc2865.ReplyMessage_SetString(reply, "Authentication successful")

		return reply
	}

	l.log.WithFields(logrus.Fields{"user": username, "result": result}).Warn("access-reject")
	reply := pkt.Response(radius.CodeAccessReject)
	_ = rfc2865.ReplyMessage_SetString(reply, message)

	return reply
}

func nasIPString(ip net.IP) string {
	if ip == nil {
		return ""
	}

	return ip.String()
}

func (l *Listener) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.pending.sweep()
		}
	}
}
