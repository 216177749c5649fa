package ldapproxy

import (
	"context"
	"fmt"
	"net"

	"github.com/sirupsen/logrus"

	"github.com/worldposta/authproxy/internal/authengine"
	"github.com/worldposta/authproxy/internal/configuration/schema"
	"github.com/worldposta/authproxy/internal/directory"
)

// Listener is one LDAP TCP binding: it accepts connections and spawns a
// conn state machine for each.
type Listener struct {
	binding schema.LDAPBinding
	engine  *authengine.Engine
	dir     directory.Client
	log     *logrus.Entry

	ln net.Listener
}

// New builds a Listener for binding. dir is nil for pass-through bindings
// (no Directory configured); it is used for the plain directory bind of
// 2FA-exempt DNs and for relaying SEARCH/COMPARE to the directory. The
// auth engine performs its primary-bind step through its own client.
func New(binding schema.LDAPBinding, engine *authengine.Engine, dir directory.Client, log *logrus.Entry) *Listener {
	return &Listener{
		binding: binding,
		engine:  engine,
		dir:     dir,
		log:     log.WithField("ldap_binding", binding.Name),
	}
}

// Run opens the TCP socket and accepts connections until ctx is canceled.
func (l *Listener) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", l.binding.Port))
	if err != nil {
		return err
	}
	l.ln = ln

	l.log.WithField("port", l.binding.Port).Info("ldap listener started")

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		netConn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}

			l.log.WithError(err).Warn("ldap accept error")
			continue
		}

		c := newConn(netConn, l.binding, l.engine, l.dir, l.log)
		go c.serve(ctx)
	}
}
