package api

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/stephnangue/doorman/helper"
	"github.com/stephnangue/doorman/logger"
)

type ApiListener struct {
	logger      logger.Logger
	server      *http.Server
	tlsEnabled  bool
	tlsCertFile string
	tlsKeyFile  string
	stopped     atomic.Bool
}

type ApiListenerConfig struct {
	Logger      logger.Logger
	Address     string
	TLSCertFile string
	TLSKeyFile  string
	TLSEnabled  bool
}

func NewApiListener(cfg ApiListenerConfig, httpHandler http.Handler) (*ApiListener, error) {
	if cfg.TLSEnabled && (cfg.TLSCertFile == "" || cfg.TLSKeyFile == "") {
		return nil, errors.New("tls_cert_file and tls_key_file are required when TLS is enabled")
	}

	var handler http.Handler = httpHandler
	handler = middleware.RealIP(handler)
	handler = requestID(handler)
	handler = middleware.Recoverer(handler)

	server := &http.Server{
		Addr:         cfg.Address,
		Handler:      handler,
		IdleTimeout:  time.Minute,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	return &ApiListener{
		logger:      cfg.Logger,
		server:      server,
		tlsEnabled:  cfg.TLSEnabled,
		tlsCertFile: cfg.TLSCertFile,
		tlsKeyFile:  cfg.TLSKeyFile,
	}, nil
}

// requestID tags each request with a sortable ulid, stored under the chi
// request ID key so downstream logging reads it with middleware.GetReqID.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get(middleware.RequestIDHeader)
		if reqID == "" {
			reqID = helper.GenerateRequestID()
		}
		ctx := context.WithValue(r.Context(), middleware.RequestIDKey, reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (l *ApiListener) Addr() string {
	return l.server.Addr
}

func (l *ApiListener) Type() string {
	return "api"
}

// Start begins the HTTP server and blocks until shutdown or failure
func (l *ApiListener) Start(ctx context.Context) error {
	l.logger.Info("starting HTTP server", logger.String("address", l.server.Addr))

	errChan := make(chan error, 1)
	go func() {
		var err error
		if l.tlsEnabled {
			err = l.server.ListenAndServeTLS(l.tlsCertFile, l.tlsKeyFile)
		} else {
			err = l.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		l.logger.Info("shutdown signal received")
		return l.Stop()
	case err := <-errChan:
		l.logger.Error("HTTP server error", logger.Err(err))
		return err
	}
}

func (l *ApiListener) Stop() error {
	// Stop exactly once, even if called via defer and explicitly
	if !l.stopped.CompareAndSwap(false, true) {
		return nil
	}

	l.logger.Info("shutting down HTTP server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := l.server.Shutdown(ctx); err != nil {
		l.logger.Error("error shutting down HTTP server", logger.Err(err))
		return err
	}

	l.logger.Info("HTTP server stopped gracefully")
	return nil
}
