package config

import "strings"

// FlagPrefix marks feature-flag environment variables.
const FlagPrefix = "CRYPTO_FLAG_"

// Known flags.
const (
	FlagLiquidateAtEnd = "liquidate_at_end"
	FlagStrictGaps     = "strict_gaps"
)

// Flags holds boolean feature toggles keyed by lower-case name.
type Flags map[string]bool

// LoadFlags collects every CRYPTO_FLAG_<NAME>=<value> entry from environ.
// Truthy values are 1, true, yes and on, in any case.
func LoadFlags(environ []string) Flags {
	flags := Flags{}
	for _, kv := range environ {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, FlagPrefix) {
			continue
		}
		name := strings.ToLower(strings.TrimPrefix(key, FlagPrefix))
		if name == "" {
			continue
		}
		flags[name] = truthy(value)
	}
	return flags
}

// Enabled reports whether the named flag is on. Unknown flags are off.
func (f Flags) Enabled(name string) bool {
	return f[strings.ToLower(name)]
}

func truthy(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}
