package utils

import "os"

// SafeEnv reads key from the environment, substituting fallback when the
// variable is unset or empty. Empty and unset are treated the same so that
// `PROBE_X=` in a unit file cannot smuggle in an empty config value.
func SafeEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
