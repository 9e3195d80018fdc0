// Package config loads the management node configuration from YAML with
// WARDEN_* environment overrides.
//
//	node:
//	  id: 1
//	  raft_addr: 10.0.0.1:7946
//	  api_addr: 10.0.0.1:8080
//	  data_dir: /var/lib/warden
//	sweep:
//	  interval: 10s
//	logging:
//	  level: info
//	  json: true
//	dispatch:
//	  health_check: {workers: 10, queue_size: 100}
//	kvm:
//	  driver: redfish
//	  oob_username: admin
//	  params:
//	    max_recovery_attempts: 3
//	    fence_timeout: 2m
package config
