// Package lifecycle runs a dispatcher on a transport until the process is
// asked to stop, then drains in-flight work for a bounded grace period before
// closing the transport.
//
// A typical main looks like:
//
//	t := stdio.NewTransport()
//	d := engine.New(t, srv)
//	err := lifecycle.New(t, d, lifecycle.WithGracePeriod(5*time.Second)).Run(ctx)
//
// SIGINT and SIGTERM stay routed to the coordinator for the whole run, so a
// second signal during shutdown is logged instead of killing the process.
package lifecycle
