package hastate

import (
	"errors"
	"fmt"

	"github.com/cuemby/warden/pkg/types"
)

// ErrInvalidTransition is returned for a (state, event) pair the table does not define
var ErrInvalidTransition = errors.New("invalid HA state transition")

type edge struct {
	from  types.HAState
	event types.HAEvent
}

// initialStates maps the event used to create a config to its first state
var initialStates = map[types.HAEvent]types.HAState{
	types.HAEventEnabled:    types.HAStateAvailable,
	types.HAEventDisabled:   types.HAStateDisabled,
	types.HAEventIneligible: types.HAStateIneligible,
}

var transitions = buildTransitions()

func buildTransitions() map[edge]types.HAState {
	t := map[edge]types.HAState{
		{types.HAStateDisabled, types.HAEventEnabled}:    types.HAStateAvailable,
		{types.HAStateIneligible, types.HAEventEligible}: types.HAStateAvailable,

		{types.HAStateAvailable, types.HAEventHealthCheckPassed}: types.HAStateAvailable,
		{types.HAStateAvailable, types.HAEventHealthCheckFailed}: types.HAStateSuspect,

		{types.HAStateSuspect, types.HAEventHealthCheckFailed}:    types.HAStateSuspect,
		{types.HAStateSuspect, types.HAEventHealthCheckPassed}:    types.HAStateAvailable,
		{types.HAStateSuspect, types.HAEventPerformActivityCheck}: types.HAStateChecking,

		{types.HAStateChecking, types.HAEventTooFewActivityCheckSamples}:              types.HAStateSuspect,
		{types.HAStateChecking, types.HAEventActivityCheckFailureUnderThresholdRatio}: types.HAStateDegraded,
		{types.HAStateChecking, types.HAEventActivityCheckFailureOverThresholdRatio}:  types.HAStateRecovering,

		{types.HAStateDegraded, types.HAEventHealthCheckFailed}:               types.HAStateDegraded,
		{types.HAStateDegraded, types.HAEventHealthCheckPassed}:               types.HAStateAvailable,
		{types.HAStateDegraded, types.HAEventPeriodicRecheckResourceActivity}: types.HAStateSuspect,

		{types.HAStateRecovering, types.HAEventRetryRecovery}:                      types.HAStateRecovering,
		{types.HAStateRecovering, types.HAEventRecovered}:                          types.HAStateRecovered,
		{types.HAStateRecovering, types.HAEventRecoveryOperationThresholdExceeded}: types.HAStateFencing,

		{types.HAStateRecovered, types.HAEventRecoveryWaitPeriodTimeout}: types.HAStateAvailable,

		{types.HAStateFencing, types.HAEventRetryFencing}: types.HAStateFencing,
		{types.HAStateFencing, types.HAEventFenced}:       types.HAStateFenced,

		{types.HAStateFenced, types.HAEventHealthCheckFailed}: types.HAStateFenced,
		{types.HAStateFenced, types.HAEventHealthCheckPassed}: types.HAStateIneligible,
	}

	for _, state := range types.AllHAStates {
		if state != types.HAStateDisabled {
			t[edge{state, types.HAEventDisabled}] = types.HAStateDisabled
		}
		if state != types.HAStateDisabled && state != types.HAStateFenced {
			t[edge{state, types.HAEventIneligible}] = types.HAStateIneligible
		}
	}
	return t
}

// InitialState returns the state a new config starts in for the given event
func InitialState(event types.HAEvent) (types.HAState, error) {
	state, ok := initialStates[event]
	if !ok {
		return "", fmt.Errorf("no initial state for event %s: %w", event, ErrInvalidTransition)
	}
	return state, nil
}

// NextState looks up the target of (from, event) in the transition table
func NextState(from types.HAState, event types.HAEvent) (types.HAState, error) {
	to, ok := transitions[edge{from, event}]
	if !ok {
		return from, fmt.Errorf("%s + %s: %w", from, event, ErrInvalidTransition)
	}
	return to, nil
}

// Events returns the events accepted in the given state
func Events(from types.HAState) []types.HAEvent {
	var events []types.HAEvent
	for _, event := range types.AllHAEvents {
		if _, ok := transitions[edge{from, event}]; ok {
			events = append(events, event)
		}
	}
	return events
}
