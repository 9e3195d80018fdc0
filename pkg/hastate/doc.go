/*
Package hastate implements the HA state machine of a managed resource.

The transition table is plain data: a map from (state, event) to the next
state. NextState looks an edge up and returns ErrInvalidTransition for any
pair the table does not define; InitialState gives the first state of a new
config.

Machine.Transition is the single entry point that changes a stored
HAConfig.State. Under a per-resource lock it reloads the row, computes the
target, runs the listener's pre-hook and writes the row with a version check.
After releasing the lock it runs the post-hook, which is where the HA
manager dispatches work for the new state. Self-loops such as
Recovering + RetryRecovery leave the row untouched but still run both hooks.

A real change of state publishes an audit event; entering Recovering,
Fencing or Fenced uses a dedicated event type.
*/
package hastate
