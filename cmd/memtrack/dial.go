package main

import (
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/status"

	apiv1 "github.com/zksecurity/zkvm-benchmarks/api/v1"
	"github.com/zksecurity/zkvm-benchmarks/pkg/lib/config"
)

func dial(cfg *config.Config) (*grpc.ClientConn, apiv1.TrackerServiceClient, error) {
	tlsConfig, err := cfg.TLS.ClientTLS()
	if err != nil {
		return nil, nil, err
	}
	conn, err := grpc.NewClient(cfg.Server.Address, grpc.WithTransportCredentials(credentials.NewTLS(tlsConfig)))
	if err != nil {
		return nil, nil, err
	}
	return conn, apiv1.NewTrackerServiceClient(conn), nil
}

func grpcCode(err error) codes.Code {
	st, ok := status.FromError(err)
	if !ok {
		return codes.Unknown
	}
	return st.Code()
}
