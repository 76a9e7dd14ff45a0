// Package validation defines and validates the request payloads for the
// monitor's RPC surface, using the teacher's go-playground/validator
// driver (contrib/validator/playground) rather than hand-rolled field
// checks.
package validation

import (
	"fmt"

	"github.com/flux-framework/flux-core/contrib/validator/playground"
	"github.com/flux-framework/flux-core/core/pkg/contracts"
)

// WaitupRequest is resource.monitor-waitup's request body.
type WaitupRequest struct {
	// Count is the target online-rank cardinality to wait for.
	Count uint `json:"count" validate:"gte=0"`
}

// ForceDownRequest is resource.monitor-force-down's request body.
type ForceDownRequest struct {
	// Ranks is an IdSet string naming the ranks to force down.
	Ranks string `json:"ranks" validate:"required"`
}

// Validator validates RPC request structs before they reach the Monitor.
type Validator struct {
	driver contracts.Validator
}

// New constructs a Validator using JSON field names in error messages,
// matching how the HTTP layer's request bodies are shaped.
func New() *Validator {
	return &Validator{driver: playground.NewDriverWithConfig(&playground.Config{UseJSONNames: true})}
}

// Validate runs validation tags against req, wrapping the driver's
// ValidationErrors so callers can use errors.As to recover field detail.
func (v *Validator) Validate(req any) error {
	if err := v.driver.Validate(req); err != nil {
		return fmt.Errorf("validation: %w", err)
	}
	return nil
}
