/*
Package log provides structured logging for Warden using zerolog.

The package wraps a single global zerolog.Logger that is configured once by
Init and then specialised per component:

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true})

	logger := log.WithComponent("ha-manager")
	logger.Info().Str("resource_id", "host-1").Msg("resource fenced")

Until Init is called the global logger discards everything, which keeps unit
tests quiet.

# Levels

  - debug: rejected state transitions, skipped dispatches, sweep detail
  - info:  state changes, recovery and fence operations, lifecycle
  - warn:  failed probes, failed recovery attempts, persistence retries
  - error: store failures on synchronous paths, panics recovered in the sweep

# Context loggers

WithComponent tags a logger with the owning subsystem, WithNodeID with the
management node id and WithResource with the (type, id) of a managed
resource. Components build their loggers in their constructors so that the
configured output and level are picked up.

The raft library logs through hclog; HCLogLevel carries the configured level
over so both loggers agree on verbosity.
*/
package log
