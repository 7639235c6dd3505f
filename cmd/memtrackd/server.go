package main

import (
	"sync"

	apiv1 "github.com/zksecurity/zkvm-benchmarks/api/v1"
	"github.com/zksecurity/zkvm-benchmarks/pkg/lib/log"
	"github.com/zksecurity/zkvm-benchmarks/pkg/lib/runner"
)

var logger = log.Named("server")

type TrackerServiceServer struct {
	apiv1.UnimplementedTrackerServiceServer
	runner *runner.Runner

	mu     sync.RWMutex
	owners map[string]string
}

func NewTrackerServiceServer(r *runner.Runner) *TrackerServiceServer {
	return &TrackerServiceServer{
		runner: r,
		owners: make(map[string]string),
	}
}
