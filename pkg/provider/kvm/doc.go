/*
Package kvm implements the HA provider for KVM hypervisor hosts.

Liveness is a TCP probe of the host agent port. Activity is an HTTP probe of
the host's activity endpoint, asked whether anything ran since the host
became suspect. Recovery and fencing are power actions sent to the host's
out-of-band controller, either as a Redfish ComputerSystem.Reset
(ForceRestart to recover, ForceOff to fence) or through ipmitool.

A host is eligible when it is a live KVM host with an out-of-band address.
*/
package kvm
