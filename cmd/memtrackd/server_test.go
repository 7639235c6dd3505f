package main

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"io"
	"math/big"
	"net"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	apiv1 "github.com/zksecurity/zkvm-benchmarks/api/v1"
	"github.com/zksecurity/zkvm-benchmarks/pkg/lib"
	"github.com/zksecurity/zkvm-benchmarks/pkg/lib/config"
	"github.com/zksecurity/zkvm-benchmarks/pkg/lib/runner"
	"github.com/zksecurity/zkvm-benchmarks/pkg/lib/tracker"
)

// instantTracker reports a fixed measurement without running anything.
type instantTracker struct{}

func (instantTracker) Run(ctx context.Context, req lib.TrackingRequest, opts ...tracker.RunOption) (*lib.MemoryUsage, error) {
	cfg := tracker.ApplyRunOptions(opts...)
	for _, s := range []lib.RunState{
		lib.RunStateGroupCreated,
		lib.RunStateChildLaunched,
		lib.RunStateChildTerminated,
		lib.RunStateMemoryRead,
		lib.RunStateGroupDestroyed,
		lib.RunStateIdle,
	} {
		cfg.OnState(lib.RunEvent{RunID: cfg.RunID, State: s, Time: time.Now()})
	}
	if req.Path == "/missing" {
		return &lib.MemoryUsage{Result: lib.LaunchFailed("no such file or directory")}, nil
	}
	return &lib.MemoryUsage{Peak: 128 << 20, Result: lib.Exited(0), Duration: 1500 * time.Millisecond}, nil
}

type testPKI struct {
	ca    *x509.Certificate
	caKey *ecdsa.PrivateKey
	caPEM string
}

func newTestPKI(t *testing.T) *testPKI {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "memtrack test CA"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	ca, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	return &testPKI{
		ca:    ca,
		caKey: key,
		caPEM: string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})),
	}
}

// issue returns a TLSConfig for a leaf certificate. An empty spiffeID leaves
// the certificate without a SPIFFE URI.
func (p *testPKI) issue(t *testing.T, serial int64, spiffeID string, server bool) config.TLSConfig {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(serial),
		Subject:      pkix.Name{CommonName: "leaf"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}
	if server {
		tmpl.DNSNames = []string{"bufnet"}
		tmpl.ExtKeyUsage = []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth}
	} else {
		tmpl.ExtKeyUsage = []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth}
	}
	if spiffeID != "" {
		tmpl.URIs = []*url.URL{{Scheme: "spiffe", Host: spiffeID}}
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, p.ca, &key.PublicKey, p.caKey)
	require.NoError(t, err)
	keyDER, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)
	return config.TLSConfig{
		Cert: string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})),
		Key:  string(pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})),
		CA:   p.caPEM,
	}
}

type testEnv struct {
	pki *testPKI
	lis *bufconn.Listener
}

func startTestServer(t *testing.T) *testEnv {
	t.Helper()
	pki := newTestPKI(t)
	serverTLS, err := pki.issue(t, 2, "", true).ServerTLS()
	require.NoError(t, err)

	lis := bufconn.Listen(1 << 20)
	srv := NewGRPCServer(lis, serverTLS, NewTrackerServiceServer(runner.NewRunner(instantTracker{})))
	go func() { _ = srv.Serve() }()
	t.Cleanup(srv.Stop)
	return &testEnv{pki: pki, lis: lis}
}

func (e *testEnv) client(t *testing.T, serial int64, spiffeID string) apiv1.TrackerServiceClient {
	t.Helper()
	clientTLS, err := e.pki.issue(t, serial, spiffeID, false).ClientTLS()
	require.NoError(t, err)
	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return e.lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(credentials.NewTLS(clientTLS)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return apiv1.NewTrackerServiceClient(conn)
}

func waitFinished(t *testing.T, c apiv1.TrackerServiceClient, id string) *apiv1.StatusResponse {
	t.Helper()
	var resp *apiv1.StatusResponse
	require.Eventually(t, func() bool {
		var err error
		resp, err = c.Status(context.Background(), &apiv1.StatusRequest{RunID: id})
		require.NoError(t, err)
		return resp.Status.State == lib.JobStateFinished.String()
	}, 3*time.Second, 10*time.Millisecond)
	return resp
}

func TestStartWatchStatus(t *testing.T) {
	env := startTestServer(t)
	c := env.client(t, 10, "client1")
	ctx := context.Background()

	started, err := c.Start(ctx, &apiv1.StartRequest{Request: &apiv1.TrackingRequest{Path: "/bin/prover", Args: []string{"fib"}}})
	require.NoError(t, err)
	require.NotEmpty(t, started.RunID)

	stream, err := c.Watch(ctx, &apiv1.WatchRequest{RunID: started.RunID})
	require.NoError(t, err)
	var states []string
	for {
		ev, err := stream.Recv()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		require.Equal(t, started.RunID, ev.RunID)
		states = append(states, ev.State)
	}
	require.Equal(t, []string{"group_created", "child_launched", "child_terminated", "memory_read", "group_destroyed", "idle"}, states)

	resp := waitFinished(t, c, started.RunID)
	require.Equal(t, "/bin/prover", resp.Request.Path)
	require.NotNil(t, resp.Status.Usage)
	require.Equal(t, uint64(128<<20), resp.Status.Usage.PeakBytes)
	require.Equal(t, int64(1500), resp.Status.Usage.DurationMs)
	require.Equal(t, "exited", resp.Status.Usage.Outcome.Kind)

	stopped, err := c.Stop(ctx, &apiv1.StopRequest{RunID: started.RunID})
	require.NoError(t, err)
	require.Equal(t, "finished", stopped.Status.State)
}

func TestLaunchFailureReported(t *testing.T) {
	env := startTestServer(t)
	c := env.client(t, 10, "client1")

	started, err := c.Start(context.Background(), &apiv1.StartRequest{Request: &apiv1.TrackingRequest{Path: "/missing"}})
	require.NoError(t, err)
	resp := waitFinished(t, c, started.RunID)
	require.Equal(t, "launch_failed", resp.Status.Usage.Outcome.Kind)
	require.Equal(t, "no such file or directory", resp.Status.Usage.Outcome.Reason)
}

func TestOnlyOwnerCanAccessRun(t *testing.T) {
	env := startTestServer(t)
	owner := env.client(t, 10, "client1")
	other := env.client(t, 11, "client2")
	ctx := context.Background()

	started, err := owner.Start(ctx, &apiv1.StartRequest{Request: &apiv1.TrackingRequest{Path: "/bin/true"}})
	require.NoError(t, err)

	_, err = other.Status(ctx, &apiv1.StatusRequest{RunID: started.RunID})
	require.Equal(t, codes.PermissionDenied, status.Code(err))
	_, err = other.Stop(ctx, &apiv1.StopRequest{RunID: started.RunID})
	require.Equal(t, codes.PermissionDenied, status.Code(err))

	stream, err := other.Watch(ctx, &apiv1.WatchRequest{RunID: started.RunID})
	require.NoError(t, err)
	_, err = stream.Recv()
	require.Equal(t, codes.PermissionDenied, status.Code(err))
}

func TestUnknownRunAndInvalidRequest(t *testing.T) {
	env := startTestServer(t)
	c := env.client(t, 10, "client1")
	ctx := context.Background()

	_, err := c.Status(ctx, &apiv1.StatusRequest{RunID: "nope"})
	require.Equal(t, codes.NotFound, status.Code(err))

	_, err = c.Start(ctx, &apiv1.StartRequest{})
	require.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = c.Start(ctx, &apiv1.StartRequest{Request: &apiv1.TrackingRequest{}})
	require.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestClientWithoutSpiffeIdRejected(t *testing.T) {
	env := startTestServer(t)
	c := env.client(t, 12, "")

	_, err := c.Start(context.Background(), &apiv1.StartRequest{Request: &apiv1.TrackingRequest{Path: "/bin/true"}})
	require.Equal(t, codes.Unauthenticated, status.Code(err))
}

func TestToAPIOutcome(t *testing.T) {
	require.Equal(t, &apiv1.Outcome{Kind: "signaled", Signal: 9}, toAPIOutcome(lib.Signaled(9)))
	require.Equal(t, &apiv1.Outcome{Kind: "exited", ExitCode: 3}, toAPIOutcome(lib.Exited(3)))
}
