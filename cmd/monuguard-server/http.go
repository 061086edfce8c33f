package main

import (
	"context"
	"net/http"
	"os"
	"sync"
	"time"

	goahttp "goa.design/goa/v3/http"
	httpmdlwr "goa.design/goa/v3/http/middleware"
	"goa.design/goa/v3/middleware"

	"monuguard/internal/auth"
	"monuguard/internal/logger"
	mgmiddleware "monuguard/internal/middleware"
	"monuguard/internal/server"
)

// handleHTTPServer configures and starts a HTTP server on the given address.
// It shuts down the server when ctx is canceled.
func handleHTTPServer(ctx context.Context, addr string, svcs server.Services, authenticator *auth.Authenticator, maxUploadBytes int64, wg *sync.WaitGroup, errc chan error, debug bool) {
	stdlog := logger.Default().StdLogger("HTTP")

	// Setup goa log adapter.
	var (
		adapter middleware.Logger
	)
	{
		adapter = middleware.NewLogger(stdlog)
	}

	// Provide the transport specific request decoder and response encoder.
	var (
		dec = goahttp.RequestDecoder
		enc = goahttp.ResponseEncoder
	)

	// Build the service HTTP request multiplexer.
	var mux goahttp.Muxer
	{
		mux = goahttp.NewMuxer()
	}

	// Wrap the services in the HTTP transport layer.
	var srv *server.Server
	{
		eh := errorHandler(stdlog)
		srv = server.New(svcs, mux, dec, enc, eh, maxUploadBytes)
		if debug {
			servers := goahttp.Servers{srv}
			servers.Use(httpmdlwr.Debug(mux, os.Stdout))
		}
	}
	// Configure the mux.
	server.Mount(mux, srv)

	// Wrap the multiplexer with additional middlewares. Middlewares mounted
	// here apply to all the service endpoints.
	var handler http.Handler = mux
	{
		handler = mgmiddleware.AuthMiddleware(authenticator)(handler)
		handler = httpmdlwr.Log(adapter)(handler)
		handler = httpmdlwr.RequestID()(handler)
	}

	// Analysis runs synchronously inside the request, so there is no write timeout.
	httpSrv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: time.Second * 60}
	for _, m := range srv.Mounts {
		logger.Info("Server", "HTTP %q mounted on %s %s", m.Method, m.Verb, m.Pattern)
	}

	(*wg).Add(1)
	go func() {
		defer (*wg).Done()

		// Start HTTP server in a separate goroutine.
		go func() {
			logger.Info("Server", "HTTP server listening on %q", addr)
			errc <- httpSrv.ListenAndServe()
		}()

		<-ctx.Done()
		logger.Info("Server", "shutting down HTTP server at %q", addr)

		// Shutdown gracefully with a 30s timeout.
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := httpSrv.Shutdown(ctx); err != nil {
			logger.Warn("Server", "failed to shutdown: %v", err)
		}
	}()
}

// errorHandler returns a function that logs encoding errors together with the
// request ID so that it's possible to correlate them.
func errorHandler(stdlog interface{ Printf(string, ...any) }) func(context.Context, http.ResponseWriter, error) {
	return func(ctx context.Context, w http.ResponseWriter, err error) {
		id, _ := ctx.Value(middleware.RequestIDKey).(string)
		stdlog.Printf("[%s] ERROR: %s", id, err.Error())
	}
}
