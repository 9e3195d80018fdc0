/*
Package api serves the HTTP API of a Warden management node.

The router is built with go-chi and carries three groups of routes:

	GET  /health /ready /live /metrics        probes and Prometheus metrics

	GET  /v1/cluster                          leader and registered managers
	POST /v1/cluster/join                     add a manager as raft voter (leader only)
	POST /v1/cluster/tokens                   issue a join token (leader only)
	POST /v1/raft/apply                       apply a forwarded raft command (leader only)

	PUT  /v1/resources/{type}/{id}            register or update a resource
	GET  /v1/resources/{type}/{id}/status     HA view of a resource

	GET  /v1/ha/configs                       ?resourceId=&resourceType=
	GET  /v1/ha/providers                     ?resourceType=
	POST /v1/ha/resources/{type}/{id}/provider
	POST /v1/ha/resources/{type}/{id}/enable
	POST /v1/ha/resources/{type}/{id}/disable
	POST /v1/ha/resources/{type}/{id}/health
	POST /v1/ha/zones/{id}/enable|disable
	POST /v1/ha/clusters/{id}/enable|disable

# Errors

Failures are returned as client.ErrorBody with a stable code, and the HTTP
status follows the error:

	invalid_parameter  400
	unauthorized       401
	not_owner          403
	not_found          404
	conflict           409
	already_exists     409
	not_leader         421, or 503 while no leader is elected
	internal           500

client.APIError unwraps the code back to the sentinel error, so errors.Is
works the same on both sides of the wire.

# Usage

	srv := api.NewServer(mgr, haMgr)
	go func() {
		if err := srv.Start(":8080"); err != nil {
			log.Logger.Fatal().Err(err).Msg("API server failed")
		}
	}()
	defer srv.Shutdown(ctx)
*/
package api
