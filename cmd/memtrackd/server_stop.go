package main

import (
	"context"

	apiv1 "github.com/zksecurity/zkvm-benchmarks/api/v1"
)

func (s *TrackerServiceServer) Stop(ctx context.Context, request *apiv1.StopRequest) (*apiv1.StopResponse, error) {
	if err := s.checkOwnership(ctx, request.RunID); err != nil {
		return nil, err
	}
	st, err := s.runner.Stop(request.RunID)
	if err != nil {
		return nil, err
	}
	return &apiv1.StopResponse{Request: toAPIRequest(st.Request), Status: toAPIRunStatus(st)}, nil
}
