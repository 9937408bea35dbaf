package flags

import (
	"fmt"
	"os"
	"strings"
)

// DefaultOverridePrefix prefixes every override environment variable.
const DefaultOverridePrefix = "FLAGS_"

// EnvLookup reads one environment variable.
type EnvLookup func(key string) (string, bool)

// OverrideResolver reads flag overrides from the process environment. It keeps
// no state: every call performs a fresh lookup.
type OverrideResolver struct {
	prefix string
	lookup EnvLookup
	logger Logger
}

// NewOverrideResolver creates a resolver. Empty prefix and nil lookup fall
// back to DefaultOverridePrefix and os.LookupEnv.
func NewOverrideResolver(prefix string, lookup EnvLookup, logger Logger) *OverrideResolver {
	if prefix == "" {
		prefix = DefaultOverridePrefix
	}
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if logger == nil {
		logger = NewNopLogger()
	}
	return &OverrideResolver{prefix: prefix, lookup: lookup, logger: logger}
}

// Resolve returns the override for name, if any. A value that is not a
// recognised boolean token is reported as absent together with an
// OverrideParseError.
func (r *OverrideResolver) Resolve(name string) (FlagState, bool, error) {
	for _, key := range r.EnvNames(name) {
		raw, ok := r.lookup(key)
		if !ok {
			continue
		}

		enabled, ok := parseToggle(raw)
		if !ok {
			err := newFlagError(ErrorTypeOverrideParse, fmt.Sprintf("unrecognised override value %q in %s", raw, key), nil)
			err.Flag = name
			r.logger.Warn("Ignoring invalid flag override", "flag", name, "env", key, "value", raw)
			return FlagState{}, false, err
		}
		return FlagState{Enabled: enabled}, true, nil
	}
	return FlagState{}, false, nil
}

// EnvNames lists the variables consulted for name, in priority order: the
// prefix plus the upper-cased identifier with non-alphanumerics stripped,
// then the same with non-alphanumerics replaced by underscores.
func (r *OverrideResolver) EnvNames(name string) []string {
	stripped, underscored := normalizeIdentifier(name)
	if stripped == "" {
		return nil
	}
	names := []string{r.prefix + stripped}
	if underscored != stripped {
		names = append(names, r.prefix+underscored)
	}
	return names
}

func normalizeIdentifier(name string) (stripped, underscored string) {
	var s, u strings.Builder
	s.Grow(len(name))
	u.Grow(len(name))
	for _, ch := range strings.ToUpper(name) {
		if (ch >= 'A' && ch <= 'Z') || (ch >= '0' && ch <= '9') {
			s.WriteRune(ch)
			u.WriteRune(ch)
			continue
		}
		u.WriteByte('_')
	}
	return s.String(), u.String()
}

func parseToggle(raw string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "true", "1", "yes":
		return true, true
	case "false", "0", "no":
		return false, true
	default:
		return false, false
	}
}
