// Package supervisor builds and runs every front end a configuration
// describes: one authengine.Engine and one cloud2fa.Client per RADIUS or
// LDAP binding, plus the shared health server, all torn down together when
// the supervising context is canceled.
package supervisor

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/worldposta/authproxy/internal/authengine"
	"github.com/worldposta/authproxy/internal/cloud2fa"
	"github.com/worldposta/authproxy/internal/configuration/schema"
	"github.com/worldposta/authproxy/internal/directory"
	"github.com/worldposta/authproxy/internal/healthserver"
	"github.com/worldposta/authproxy/internal/ldapproxy"
	"github.com/worldposta/authproxy/internal/radiusproxy"
)

// frontEnd is the common surface radiusproxy.Listener and ldapproxy.Listener
// both satisfy.
type frontEnd interface {
	Run(ctx context.Context) error
}

// Supervisor owns every front end built from one schema.Configuration and
// runs them to completion or until its context is canceled.
type Supervisor struct {
	config schema.Configuration
	log    *logrus.Entry

	mu       sync.Mutex
	statuses map[string]string

	fronts []namedFrontEnd
	health *healthserver.Server
}

type namedFrontEnd struct {
	name string
	run  frontEnd
}

// New builds every RADIUS binding, LDAP binding, and the health server
// described by config. Each binding gets its own cloud2fa.Client and
// authengine.Engine; a binding with no DirectoryRef gets a nil
// directory.Client, which the auth engine treats as pass-through.
func New(config schema.Configuration, log *logrus.Entry) *Supervisor {
	s := &Supervisor{
		config:   config,
		log:      log,
		statuses: make(map[string]string),
	}

	for _, binding := range config.RADIUS {
		name := fmt.Sprintf("radius:%s", binding.Name)
		engine := s.buildEngine(binding.Directory, config.Cloud, binding.FailOpen)
		s.fronts = append(s.fronts, namedFrontEnd{
			name: name,
			run:  radiusproxy.New(binding, engine, log),
		})
		s.statuses[name] = "stopped"
	}

	for _, binding := range config.LDAP {
		name := fmt.Sprintf("ldap:%s", binding.Name)
		// LDAP never fails open: a bind is either an authoritative
		// verdict or an exempt pass-through, never best-effort.
		engine := s.buildEngine(binding.Directory, config.Cloud, false)

		var dirClient directory.Client
		if binding.Directory != nil {
			dirClient = directory.New(binding.Directory, log)
		}

		s.fronts = append(s.fronts, namedFrontEnd{
			name: name,
			run:  ldapproxy.New(binding, engine, dirClient, log),
		})
		s.statuses[name] = "stopped"
	}

	s.health = healthserver.New(config, s.Status)

	return s
}

func (s *Supervisor) buildEngine(profile *schema.DirectoryProfile, cloudCfg schema.CloudCredentials, failOpen bool) *authengine.Engine {
	var dirClient directory.Client
	if profile != nil {
		dirClient = directory.New(profile, s.log)
	}

	cloudClient := cloud2fa.New(cloudCfg.Endpoint, cloudCfg.IntegrationKey, cloudCfg.SecretKey, cloudCfg.PushTimeout, s.log)

	return authengine.New(dirClient, cloudClient, cloudCfg.PushTimeout, failOpen, s.log)
}

// Status reports each front end's last known state, for the health server's
// /health response.
func (s *Supervisor) Status() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]string, len(s.statuses))
	for k, v := range s.statuses {
		out[k] = v
	}

	return out
}

func (s *Supervisor) setStatus(name, state string) {
	s.mu.Lock()
	s.statuses[name] = state
	s.mu.Unlock()
}

// Run starts every front end and the health server, and blocks until ctx
// is canceled or any one of them returns an error, at which point it tears
// down the rest and returns the first error encountered.
func (s *Supervisor) Run(ctx context.Context) error {
	group, groupCtx := errgroup.WithContext(ctx)

	for _, f := range s.fronts {
		f := f
		group.Go(func() error {
			s.setStatus(f.name, "running")
			err := f.run.Run(groupCtx)
			s.setStatus(f.name, "stopped")

			return err
		})
	}

	group.Go(func() error {
		return s.health.Run(groupCtx)
	})

	return group.Wait()
}
