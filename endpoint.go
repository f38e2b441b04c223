package harness

import (
	"context"
	"time"

	"github.com/nats-io/nats.go"
)

// CheckEndpoint verifies that a replication server accepts clients on
// endpoint by connecting to it and completing one round trip.
func CheckEndpoint(ctx context.Context, node, endpoint string, timeout time.Duration) error {
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < timeout {
			timeout = left
		}
	}
	nc, err := nats.Connect(natsURL(endpoint),
		nats.Name("ha-harness"),
		nats.Timeout(timeout),
		nats.NoReconnect(),
	)
	if err != nil {
		return nodeError(ConnectionError, node, "endpoint check", err)
	}
	defer nc.Close()
	if err := nc.FlushTimeout(timeout); err != nil {
		return nodeError(ConnectionError, node, "endpoint check", err)
	}
	return nil
}
