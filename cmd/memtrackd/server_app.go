package main

import (
	"crypto/tls"
	"net"
	"net/http"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"

	apiv1 "github.com/zksecurity/zkvm-benchmarks/api/v1"
	"github.com/zksecurity/zkvm-benchmarks/pkg/lib/metrics"
	"github.com/zksecurity/zkvm-benchmarks/pkg/lib/status"
)

// GRPCServer bundles the mTLS gRPC server and its listener.
type GRPCServer struct {
	lis net.Listener
	s   *grpc.Server
}

// NewGRPCServer serves svc on lis. Clients must present a certificate signed
// by the configured CA that carries a SPIFFE id.
func NewGRPCServer(lis net.Listener, tlsConfig *tls.Config, svc apiv1.TrackerServiceServer) *GRPCServer {
	s := grpc.NewServer(
		grpc.Creds(credentials.NewTLS(tlsConfig)),
		grpc.UnaryInterceptor(injectSpiffeIdUnary),
		grpc.StreamInterceptor(injectSpiffeIdStream),
	)
	apiv1.RegisterTrackerServiceServer(s, svc)
	return &GRPCServer{lis: lis, s: s}
}

// Listen opens addr and builds the server on it.
func Listen(addr string, tlsConfig *tls.Config, svc apiv1.TrackerServiceServer) (*GRPCServer, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, status.ResourceUnavailableErrorf("failed to listen on %s: %s", addr, err)
	}
	return NewGRPCServer(lis, tlsConfig, svc), nil
}

func (g *GRPCServer) Serve() error {
	return g.s.Serve(g.lis)
}

func (g *GRPCServer) Addr() net.Addr { return g.lis.Addr() }

const shutdownGrace = 5 * time.Second

// Stop gracefully stops the gRPC server, cutting open Watch streams after a
// grace period.
func (g *GRPCServer) Stop() {
	done := make(chan struct{})
	go func() {
		g.s.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(shutdownGrace):
		g.s.Stop()
	}
}

// startMonitoring serves /metrics on addr until the returned server is closed.
func startMonitoring(addr string) *http.Server {
	mux := http.NewServeMux()
	metrics.RegisterMonitoringHandlers(mux)
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		logger.Info().Msgf("serving metrics on http://%s/metrics", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("monitoring server failed")
		}
	}()
	return srv
}
