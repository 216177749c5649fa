// Package healthserver runs the proxy's small operational HTTP surface:
// a liveness endpoint plus optional pprof/expvar debug endpoints.
package healthserver

import (
	"context"
	"encoding/json"
	"net"

	"github.com/fasthttp/router"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/expvarhandler"
	"github.com/valyala/fasthttp/pprofhandler"

	"github.com/worldposta/authproxy/internal/configuration/schema"
)

// StatusFunc reports the supervisor's current view of each front end, keyed
// by binding name, so /health can report more than "the process is up".
type StatusFunc func() map[string]string

// Server is the health/debug HTTP listener.
type Server struct {
	config schema.Configuration
	status StatusFunc
	srv    *fasthttp.Server
}

// New builds a Server. status may be nil, in which case /health reports
// only the process-level "ok".
func New(config schema.Configuration, status StatusFunc) *Server {
	return &Server{config: config, status: status}
}

func (s *Server) handler() fasthttp.RequestHandler {
	r := router.New()

	r.GET("/health", s.handleHealth)

	if s.config.EnablePprof {
		r.GET("/debug/pprof/{name?}", pprofhandler.PprofHandler)
	}

	if s.config.EnableExpvar {
		r.GET("/debug/vars", expvarhandler.ExpvarHandler)
	}

	r.HandleMethodNotAllowed = true
	r.MethodNotAllowed = func(ctx *fasthttp.RequestCtx) {
		ctx.SetStatusCode(fasthttp.StatusMethodNotAllowed)
	}

	return r.Handler
}

func (s *Server) handleHealth(ctx *fasthttp.RequestCtx) {
	body := map[string]interface{}{"status": "ok"}
	if s.status != nil {
		body["front_ends"] = s.status()
	}

	ctx.SetContentType("application/json")

	if err := json.NewEncoder(ctx).Encode(body); err != nil {
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
	}
}

// Run starts listening on config.HealthAddress and serves until ctx is
// canceled, at which point it stops accepting connections and waits,
// with no time limit, for open connections to go idle before returning.
func (s *Server) Run(ctx context.Context) error {
	if s.config.HealthAddress == "" {
		<-ctx.Done()
		return nil
	}

	s.srv = &fasthttp.Server{
		Handler:               s.handler(),
		NoDefaultServerHeader: true,
	}

	ln, err := net.Listen("tcp", s.config.HealthAddress)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() { errCh <- s.srv.Serve(ln) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return s.srv.Shutdown()
	}
}
