// Package process runs one action subprocess and owns its lifecycle.
//
// Process wraps os/exec for a single child:
//   - The child gets its own process group, so signals reach its children too
//   - Graceful stop with SIGINT and a configurable timeout
//   - Force kill with SIGKILL if the graceful stop times out
//   - Output streaming with pluggable log parsing and line handlers
//   - The last lines of stderr are kept for the exit report
//   - Overlong lines are truncated and output left open by background
//     children is closed shortly after the child exits, so the exit is
//     always reported
//
// Example usage:
//
//	args, _ := process.ParseCommand("node --enable-source-maps")
//	p := process.NewProcess("weather", append(args, "/actions/weather/index.js"), logger)
//	p.SetDir("/actions/weather")
//	if err := p.Start(); err != nil {
//	    return err
//	}
//	exit := p.Wait()
package process
