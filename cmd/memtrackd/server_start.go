package main

import (
	"context"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	apiv1 "github.com/zksecurity/zkvm-benchmarks/api/v1"
	"github.com/zksecurity/zkvm-benchmarks/pkg/lib"
)

func (s *TrackerServiceServer) Start(ctx context.Context, request *apiv1.StartRequest) (*apiv1.StartResponse, error) {
	spiffeId := extractSpiffeIdFromContext(ctx)
	if spiffeId == nil {
		return nil, status.Error(codes.Unauthenticated, "client must have SPIFFE ID")
	}
	if request.Request == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}

	req := lib.TrackingRequest{Path: request.Request.Path, Args: request.Request.Args}
	st, err := s.runner.Start(req, request.MemoryMaxBytes)
	if err != nil {
		return nil, err
	}
	logger.Info().Str("run", st.ID).Str("owner", *spiffeId).Str("path", req.Path).Msg("run submitted")

	s.mu.Lock()
	s.owners[st.ID] = *spiffeId
	s.mu.Unlock()

	return &apiv1.StartResponse{RunID: st.ID, Status: toAPIRunStatus(st)}, nil
}
