/*
Package health provides the probes HA providers use to reach managed hosts.

Three checkers implement the Checker interface:

  - TCPChecker dials an address, used for host agent liveness
  - HTTPChecker issues an HTTP request and checks the status range; with a
    method, JSON body and basic auth it also drives out-of-band management
    endpoints such as Redfish
  - ExecChecker runs a local command such as ipmitool and succeeds on exit
    code 0

Run wraps a check and returns an error for an unhealthy result, or the
context error when the probe was cut off by its deadline:

	err := health.Run(ctx, health.NewTCPChecker("10.0.0.5:8250"))

Checkers hold no state between calls and are safe to build per probe.
*/
package health
