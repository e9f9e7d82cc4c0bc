// Package router provides router gateway integration for network access control.
package router

import (
	"context"
	"fmt"
)

// Router defines the allow-list primitives for network access control.
// The tag disambiguates entries of different sessions on the same device:
// Deny only removes the entry carrying its own tag.
type Router interface {
	// Allow admits a device identifier (MAC or IP) onto the network.
	Allow(ctx context.Context, deviceIdentifier, tag string) error

	// Deny removes the allow-list entry carrying the given tag.
	Deny(ctx context.Context, deviceIdentifier, tag string) error

	// TestConnection tests the connection to the gateway.
	TestConnection(ctx context.Context) error
}

// ErrorKind classifies gateway failures.
type ErrorKind string

const (
	// KindUnreachable means the device could not be reached.
	KindUnreachable ErrorKind = "unreachable"
	// KindAuth means the gateway rejected our credentials.
	KindAuth ErrorKind = "auth"
	// KindRejected means the device refused or mangled the command.
	KindRejected ErrorKind = "rejected"
)

// GatewayError reports a failed gateway operation. The caller owns retry policy.
type GatewayError struct {
	Kind   ErrorKind
	Detail string
	Err    error
}

func (e *GatewayError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("gateway %s: %s: %v", e.Kind, e.Detail, e.Err)
	}
	return fmt.Sprintf("gateway %s: %s", e.Kind, e.Detail)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// NoopRouter is a no-op router for testing or when no gateway is configured.
type NoopRouter struct{}

// Allow does nothing.
func (r *NoopRouter) Allow(ctx context.Context, deviceIdentifier, tag string) error {
	return nil
}

// Deny does nothing.
func (r *NoopRouter) Deny(ctx context.Context, deviceIdentifier, tag string) error {
	return nil
}

// TestConnection always succeeds.
func (r *NoopRouter) TestConnection(ctx context.Context) error {
	return nil
}
