// Package supervisor launches cataloged actions through a Runner and keeps the
// daemon alive when they fail.
//
// Every failure, from any action, enters one funnel (Supervisor.Report) and is
// handled on the single goroutine that owns the registry:
//   - the Attributor maps the failure to the action that caused it
//   - the Backoff controller counts crashes inside a sliding window
//   - the action is restarted, or disabled for good once it crashed
//     MaxCrashes times within CrashWindow
//
// Launch results, window expiries, snapshots and payload updates travel
// through the same inbox, so registry state never needs a lock.
//
// Example usage:
//
//	sup, err := supervisor.New(&supervisor.Options{
//	    Catalog: result.Catalog,
//	    Runner:  sandbox.NewProcessRunner(sandbox.ProcessOptions{Interpreter: "node"}),
//	    Payload: payload,
//	})
//	if err != nil {
//	    return err
//	}
//	return sup.Run(ctx)
package supervisor
