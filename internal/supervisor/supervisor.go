// Package supervisor owns a started transport engine until it terminates.
package supervisor

import (
	"context"
	"errors"
	"log/slog"

	"openob.io/openob/internal/core"
	"openob.io/openob/internal/engine"
)

var errEngineExited = errors.New("engine exited")

// Supervise blocks in eng.Run and always closes eng before returning.
//
// Any return from Run while ctx is live is an engine failure, including a nil error. When ctx
// is cancelled, Supervise returns ctx.Err().
func Supervise(ctx context.Context, eng engine.Engine) error {
	runErr := eng.Run(ctx)
	closeErr := eng.Close()
	if closeErr != nil {
		slog.Debug("closing engine", "error", closeErr)
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	if runErr == nil {
		runErr = errEngineExited
	}
	return core.EngineFailure("run engine", runErr)
}
