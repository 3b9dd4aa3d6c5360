// Package config provides configuration loading for ConsultEase Core.
//
// Configuration is loaded from a YAML file with three layers of precedence:
//
//  1. Hardcoded defaults (lowest)
//  2. YAML file values
//  3. CONSULTEASE_* environment variables (highest)
//
// Both binaries read the same file; each ignores the sections that do not
// apply to it. See configs/config.example.yaml for the full surface.
package config
