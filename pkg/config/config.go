// Package config resolves a component's recognized-options set from
// the process environment, the same contract the original Python
// implementation calls EXPECTED_CONFIG / from_environment: a map from
// environment variable name to either a default value or nil, meaning
// "required, no default". A missing required value fails with a
// ConfigError.
package config

import (
	"os"
	"sort"

	"github.com/blinkdog/lta/pkg/ltaerrors"
)

// Spec is a recognized-options declaration: nil means the variable is
// required and has no default.
type Spec map[string]*string

// Default builds a *string default value for use in a Spec.
func Default(v string) *string {
	return &v
}

// Required marks a Spec entry as mandatory with no default.
func Required() *string {
	return nil
}

// Merge layers extra on top of base, returning a new Spec. Used the
// way the Python components do COMMON_CONFIG.copy(); EXPECTED_CONFIG.update(extra).
func Merge(base Spec, extra Spec) Spec {
	out := make(Spec, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

// CommonSpec is the recognized-options set every Worker Runtime shares,
// per spec.md section 4.1.
func CommonSpec() Spec {
	return Spec{
		"COMPONENT_NAME":                     Required(),
		"HEARTBEAT_PATCH_RETRIES":            Default("3"),
		"HEARTBEAT_PATCH_TIMEOUT_SECONDS":    Default("30"),
		"HEARTBEAT_SLEEP_DURATION_SECONDS":   Default("60"),
		"LOG_LEVEL":                          Default("info"),
		"LTA_REST_TOKEN":                     Required(),
		"LTA_REST_URL":                       Required(),
		"RUN_ONCE_AND_DIE":                   Default("FALSE"),
		"SOURCE_SITE":                        Required(),
		"WORK_RETRIES":                       Default("3"),
		"WORK_SLEEP_DURATION_SECONDS":        Default("60"),
		"WORK_TIMEOUT_SECONDS":               Default("30"),
	}
}

// FromEnvironment resolves spec against the process environment. Every
// key in spec appears in the result: the environment value if set, the
// configured default otherwise. A key with a nil default that is unset
// (or set to the sentinel "None", matching the Python sentinel-null
// convention) fails construction with a ConfigError.
func FromEnvironment(spec Spec) (map[string]string, error) {
	resolved := make(map[string]string, len(spec))
	for key, def := range spec {
		val, ok := os.LookupEnv(key)
		if !ok || val == "None" {
			if def == nil {
				return nil, ltaerrors.NewConfigError(key, "required configuration value is missing")
			}
			resolved[key] = *def
			continue
		}
		resolved[key] = val
	}
	return resolved, nil
}

// SortedKeys returns the configuration keys in sorted order, for the
// one-key-per-line startup log spec.md section 4.1 requires.
func SortedKeys(resolved map[string]string) []string {
	keys := make([]string, 0, len(resolved))
	for k := range resolved {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
