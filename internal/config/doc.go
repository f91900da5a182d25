// Package config defines the settings of the ai-agent service and provides
// helpers to load and validate them from a YAML file, an optional .env file
// and AI_AGENT_* environment variables.
//
// Values are applied in that order: defaults, file, environment. Command line
// flags are applied on top by the caller.
package config
