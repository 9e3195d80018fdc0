// Package counter keeps the per-resource, in-memory bookkeeping the HA
// manager uses for rate limiting and mutual exclusion: activity samples,
// failure and degraded timestamps, recovery attempts and the handles of
// running recovery and fence tasks. Counters are lost on restart.
package counter
