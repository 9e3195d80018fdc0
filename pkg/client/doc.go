/*
Package client is the Go client for the Warden HTTP API.

The CLI and follower management nodes use it: followers forward raft
commands to the leader with ApplyCommand, and new managers join with
JoinCluster.

	c, err := client.NewClient("10.0.0.1:8080")
	if err != nil {
		return err
	}

	cfg, err := c.ConfigureProvider(ctx, types.ResourceTypeHost, "host-1", "kvmhaprovider")
	if err != nil {
		return err
	}
	if _, err := c.EnableHA(ctx, types.ResourceTypeHost, "host-1"); err != nil {
		return err
	}

Non-2xx responses come back as *APIError. Its code maps to the sentinel
errors of the server packages:

	_, err := c.EnableHA(ctx, types.ResourceTypeHost, "host-9")
	if errors.Is(err, ha.ErrInvalidParameter) {
		// no provider configured for host-9
	}
*/
package client
