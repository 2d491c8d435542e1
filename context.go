package authsession

import (
	"context"

	"github.com/rvpalivoda/authsession/internal/transport"
)

// WithRequestID sets the X-Request-ID sent with every request made under
// ctx. Without it each request gets a fresh UUID.
func WithRequestID(ctx context.Context, id string) context.Context {
	return transport.WithRequestID(ctx, id)
}
