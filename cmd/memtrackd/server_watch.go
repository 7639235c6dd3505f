package main

import (
	"google.golang.org/grpc"

	apiv1 "github.com/zksecurity/zkvm-benchmarks/api/v1"
)

func (s *TrackerServiceServer) Watch(request *apiv1.WatchRequest, stream grpc.ServerStreamingServer[apiv1.RunEvent]) error {
	ctx := stream.Context()
	if err := s.checkOwnership(ctx, request.RunID); err != nil {
		return err
	}
	events, err := s.runner.Watch(ctx, request.RunID)
	if err != nil {
		return err
	}
	for ev := range events {
		if err := stream.Send(toAPIRunEvent(ev)); err != nil {
			return err
		}
	}
	return nil
}
