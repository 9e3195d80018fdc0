/*
Package events provides an in-process publish/subscribe broker for Warden's
audit events.

The HA state machine publishes an event whenever a resource actually enters
Recovering, Fencing or Fenced, and on every other state change. The API
server and tests subscribe to observe them:

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	for event := range sub {
		fmt.Println(event.Type, event.Metadata["resource_id"])
	}

Publish is fire-and-forget: it never blocks the caller. Events are dropped
when the broker's buffer is full or the broker is stopped, and slow
subscribers miss events rather than stall distribution. Events are not
persisted.
*/
package events
