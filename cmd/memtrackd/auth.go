package main

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

type spiffeIdContextKey struct{}

func extractSpiffeIdFromContext(ctx context.Context) *string {
	if v := ctx.Value(spiffeIdContextKey{}); v != nil {
		if spiffeId, ok := v.(string); ok {
			return &spiffeId
		}
	}
	return nil
}

func extractSpiffeIdFromTls(ctx context.Context) *string {
	if v := extractSpiffeIdFromContext(ctx); v != nil {
		return v
	}

	p, ok := peer.FromContext(ctx)
	if !ok || p == nil {
		return nil
	}
	ti, ok := p.AuthInfo.(credentials.TLSInfo)
	if !ok {
		return nil
	}
	state := ti.State
	if len(state.PeerCertificates) == 0 || state.PeerCertificates[0] == nil {
		return nil
	}

	// The trust domain of the first SPIFFE URI SAN identifies the client,
	// e.g. spiffe://bench-runner-1 -> "bench-runner-1".
	for _, uri := range state.PeerCertificates[0].URIs {
		if uri != nil && uri.Scheme == "spiffe" && uri.Host != "" {
			return &uri.Host
		}
	}
	return nil
}

func injectSpiffeId(ctx context.Context, spiffeId string) context.Context {
	return context.WithValue(ctx, spiffeIdContextKey{}, spiffeId)
}

func injectSpiffeIdUnary(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	spiffeId := extractSpiffeIdFromTls(ctx)
	if spiffeId == nil {
		return nil, status.Error(codes.Unauthenticated, "client must have SPIFFE ID")
	}
	return handler(injectSpiffeId(ctx, *spiffeId), req)
}

type streamWithCtx struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *streamWithCtx) Context() context.Context { return s.ctx }

func injectSpiffeIdStream(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
	spiffeId := extractSpiffeIdFromTls(ss.Context())
	if spiffeId == nil {
		return status.Error(codes.Unauthenticated, "client must have SPIFFE ID")
	}
	return handler(srv, &streamWithCtx{ServerStream: ss, ctx: injectSpiffeId(ss.Context(), *spiffeId)})
}

// checkOwnership allows access to a run only to the client that started it.
func (s *TrackerServiceServer) checkOwnership(ctx context.Context, runID string) error {
	spiffeId := extractSpiffeIdFromContext(ctx)
	if spiffeId == nil {
		return status.Error(codes.Unauthenticated, "client must have SPIFFE ID")
	}

	s.mu.RLock()
	owner, ok := s.owners[runID]
	s.mu.RUnlock()

	if !ok {
		return status.Errorf(codes.NotFound, "run not found: %s", runID)
	}
	if owner != *spiffeId {
		return status.Error(codes.PermissionDenied, "only the client that started the run can access it")
	}
	return nil
}
