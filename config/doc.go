// Package config loads gatekeep settings from GATEKEEP_* environment
// variables and converts them into the configuration structs of the
// resilience, observe, auth and identity packages.
//
// Durations are given in milliseconds, e.g. GATEKEEP_DURATION_MS=60000.
//
// Per-operation overrides live in a YAML file named by
// GATEKEEP_OPERATIONS_FILE; see ParseOperations.
package config
