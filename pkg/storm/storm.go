// Package storm is the computation collaborator: synthetic storm models
// that turn one work item into a simulation result. The dispatch and worker
// machinery only depends on the Registry entry point and the error
// classification helpers; the models themselves are replaceable.
package storm

import (
	"context"
	"errors"
	"fmt"

	"github.com/sola-insurance/storm-sims/pkg/models"
)

// ErrUnsupportedStormType is returned when no model is registered for the
// requested storm type.
var ErrUnsupportedStormType = errors.New("unsupported storm type")

// Simulation defines the interface that all storm models must implement
type Simulation interface {
	// Name returns the storm type handled by this model
	Name() string

	// Description returns a brief description of what the model simulates
	Description() string

	// Run executes one simulation for the given work item
	Run(ctx context.Context, item models.WorkItem) (models.SimulationResult, error)
}

// TerminalError marks a computation failure that retrying cannot fix. The
// worker marks the ledger Failed and acks the delivery so a poison work
// item does not loop forever. Anything not wrapped in TerminalError is
// treated as transient.
type TerminalError struct {
	Err error
}

func (e *TerminalError) Error() string {
	return "terminal: " + e.Err.Error()
}

func (e *TerminalError) Unwrap() error {
	return e.Err
}

// Terminal wraps an error as unrecoverable.
func Terminal(err error) error {
	if err == nil {
		return nil
	}
	return &TerminalError{Err: err}
}

// IsTerminal reports whether the error chain contains a TerminalError.
func IsTerminal(err error) bool {
	var t *TerminalError
	return errors.As(err, &t)
}

// Supported reports whether a model is registered for the storm type.
func Supported(stormType string) bool {
	_, err := DefaultRegistry.Get(stormType)
	return err == nil
}

// wrapUnsupported builds the terminal error for an unknown storm type.
func wrapUnsupported(stormType string) error {
	return Terminal(fmt.Errorf("%w: %s", ErrUnsupportedStormType, stormType))
}
