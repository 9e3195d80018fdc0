// Package provider defines the HAProvider contract, its tuning parameters
// and the name-keyed registry the HA manager resolves providers from.
// Concrete providers live in subpackages, e.g. provider/kvm.
package provider
