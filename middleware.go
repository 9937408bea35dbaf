package flags

import (
	"context"
	"net/http"
	"sort"
	"strings"
)

const (
	// FeatureFlagsHeader lists, comma separated, the flags a request asks about.
	FeatureFlagsHeader = "X-Feature-Flags"
	// EnabledFlagsHeader lists the requested flags that resolved to enabled.
	EnabledFlagsHeader = "X-Enabled-Flags"
)

type contextKey string

const (
	clientContextKey       contextKey = "flags.client"
	enabledFlagsContextKey contextKey = "flags.enabled"
)

// Middleware resolves the flags named in the X-Feature-Flags request header
// (default off) and reports the enabled ones in X-Enabled-Flags. The client
// and the enabled set are stored in the request context for downstream
// handlers. It works with net/http and any router taking
// func(http.Handler) http.Handler.
func Middleware(client *Client) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := context.WithValue(r.Context(), clientContextKey, client)

			enabled := make(map[string]bool)
			for _, name := range requestedFlags(r.Header.Values(FeatureFlagsHeader)) {
				if client.Resolve(ctx, name, false).Enabled() {
					enabled[name] = true
				}
			}
			if len(enabled) > 0 {
				names := make([]string, 0, len(enabled))
				for name := range enabled {
					names = append(names, name)
				}
				sort.Strings(names)
				w.Header().Set(EnabledFlagsHeader, strings.Join(names, ","))
			}

			ctx = context.WithValue(ctx, enabledFlagsContextKey, enabled)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func requestedFlags(values []string) []string {
	var names []string
	seen := make(map[string]struct{})
	for _, value := range values {
		for _, name := range strings.Split(value, ",") {
			name = strings.TrimSpace(name)
			if name == "" {
				continue
			}
			if _, dup := seen[name]; dup {
				continue
			}
			seen[name] = struct{}{}
			names = append(names, name)
		}
	}
	return names
}

// ClientFromContext returns the Client stored by Middleware.
func ClientFromContext(ctx context.Context) (*Client, bool) {
	client, ok := ctx.Value(clientContextKey).(*Client)
	return client, ok && client != nil
}

// EnabledFlagsFromContext returns the requested flags that resolved to
// enabled in Middleware.
func EnabledFlagsFromContext(ctx context.Context) map[string]bool {
	enabled, _ := ctx.Value(enabledFlagsContextKey).(map[string]bool)
	return enabled
}
