package main

import (
	"context"

	apiv1 "github.com/zksecurity/zkvm-benchmarks/api/v1"
)

func (s *TrackerServiceServer) Status(ctx context.Context, request *apiv1.StatusRequest) (*apiv1.StatusResponse, error) {
	if err := s.checkOwnership(ctx, request.RunID); err != nil {
		return nil, err
	}
	st, err := s.runner.Status(request.RunID)
	if err != nil {
		return nil, err
	}
	return &apiv1.StatusResponse{Request: toAPIRequest(st.Request), Status: toAPIRunStatus(st)}, nil
}
