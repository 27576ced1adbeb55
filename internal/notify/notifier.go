// Package notify delivers dispatch instructions to field units. Delivery is
// fire-and-forget from the coordination core's perspective; failures are
// logged by the caller, never propagated into the pipeline.
package notify

import "context"

// Notifier pushes one instruction message toward a unit.
type Notifier interface {
	Notify(ctx context.Context, unitID, callSign, message string) error
}
