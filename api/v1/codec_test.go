package v1

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/encoding"
)

func TestCodecRegistered(t *testing.T) {
	c := encoding.GetCodec(CodecName)
	require.NotNil(t, c)
	require.Equal(t, CodecName, c.Name())
}

func TestCodecStatusResponse(t *testing.T) {
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	in := &StatusResponse{
		Request: &TrackingRequest{Path: "/bin/prover", Args: []string{"fib", "1000"}},
		Status: &RunStatus{
			State:     "finished",
			Pid:       4242,
			QueueTime: start,
			StartTime: &start,
			Usage: &MemoryUsage{
				PeakBytes: 64 << 20,
				Group:     "memtrack_1_abc",
				Outcome:   &Outcome{Kind: "signaled", Signal: 9},
			},
		},
	}
	c := jsonCodec{}
	b, err := c.Marshal(in)
	require.NoError(t, err)
	require.Contains(t, string(b), `"peak_bytes":67108864`)

	out := new(StatusResponse)
	require.NoError(t, c.Unmarshal(b, out))
	if diff := cmp.Diff(in, out); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
}
