package flags

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Snapshot is the complete flag set returned by one remote fetch.
type Snapshot struct {
	Flags []Flag
	// RefreshInterval is the server's suggested freshness window. Zero
	// means the client's configured TTL applies.
	RefreshInterval time.Duration
}

// Lookup finds a flag in the snapshot by exact name.
func (s *Snapshot) Lookup(name string) (FlagState, bool) {
	if s == nil {
		return FlagState{}, false
	}
	for _, f := range s.Flags {
		if f.Name == name {
			return f.State, true
		}
	}
	return FlagState{}, false
}

// Fetcher retrieves the full flag set from the remote service. Errors
// should be *FlagError values of type RemoteUnavailable, RemoteAuthFailure
// or RemoteMalformedResponse; anything else is treated as unavailable.
type Fetcher interface {
	FetchAll(ctx context.Context) (*Snapshot, error)
}

// FetcherFunc adapts a plain function to Fetcher.
type FetcherFunc func(ctx context.Context) (*Snapshot, error)

// FetchAll calls f.
func (f FetcherFunc) FetchAll(ctx context.Context) (*Snapshot, error) {
	return f(ctx)
}

// Auth identifies the caller to the flags service.
type Auth struct {
	ProjectID     string
	AgentID       string
	EnvironmentID string
}

// Complete reports whether every identifier is set.
func (a Auth) Complete() bool {
	return a.ProjectID != "" && a.AgentID != "" && a.EnvironmentID != ""
}

const (
	supportedPayloadVersion = 1
	maxPayloadSize          = 10 * 1024 * 1024
	userAgent               = "Flags-Go"
)

type flagsPayload struct {
	Version         *int          `json:"version,omitempty"`
	IntervalAllowed int           `json:"intervalAllowed"`
	Flags           []payloadFlag `json:"flags"`
}

type payloadFlag struct {
	Enabled bool            `json:"enabled"`
	Details payloadDetails  `json:"details"`
	Variant json.RawMessage `json:"variant,omitempty"`
}

type payloadDetails struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

// HTTPFetcher fetches flags from the flags.gg HTTP API.
type HTTPFetcher struct {
	baseURL    string
	auth       Auth
	httpClient *http.Client
}

// NewHTTPFetcher creates a fetcher for baseURL. A nil httpClient uses a
// client with a 10 second timeout.
func NewHTTPFetcher(baseURL string, auth Auth, httpClient *http.Client) *HTTPFetcher {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPFetcher{
		baseURL:    strings.TrimRight(baseURL, "/"),
		auth:       auth,
		httpClient: httpClient,
	}
}

// FetchAll implements Fetcher.
func (f *HTTPFetcher) FetchAll(ctx context.Context) (*Snapshot, error) {
	if !f.auth.Complete() {
		return nil, newFlagError(ErrorTypeRemoteAuth, "project, agent and environment ids are required", nil)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+"/flags", nil)
	if err != nil {
		return nil, newFlagError(ErrorTypeRemoteUnavailable, "build request", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Project-ID", f.auth.ProjectID)
	req.Header.Set("X-Agent-ID", f.auth.AgentID)
	req.Header.Set("X-Environment-ID", f.auth.EnvironmentID)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, newFlagError(ErrorTypeRemoteUnavailable, "request failed", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, newFlagError(ErrorTypeRemoteAuth, fmt.Sprintf("unexpected status code: %d", resp.StatusCode), nil)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, newFlagError(ErrorTypeRemoteUnavailable, fmt.Sprintf("unexpected status code: %d", resp.StatusCode), nil)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPayloadSize))
	if err != nil {
		return nil, newFlagError(ErrorTypeRemoteUnavailable, "read response body", err)
	}

	return decodeSnapshot(body)
}

func decodeSnapshot(body []byte) (*Snapshot, error) {
	var payload flagsPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		var syntaxErr *json.SyntaxError
		msg := "decode response"
		if errors.As(err, &syntaxErr) {
			msg = fmt.Sprintf("invalid json at offset %d", syntaxErr.Offset)
		}
		return nil, newFlagError(ErrorTypeMalformedResponse, msg, err)
	}

	if payload.Version != nil && *payload.Version != supportedPayloadVersion {
		return nil, newFlagError(ErrorTypeMalformedResponse, fmt.Sprintf("unsupported payload version %d", *payload.Version), nil)
	}

	snapshot := &Snapshot{Flags: make([]Flag, 0, len(payload.Flags))}
	if payload.IntervalAllowed > 0 {
		snapshot.RefreshInterval = time.Duration(payload.IntervalAllowed) * time.Second
	}

	for i, pf := range payload.Flags {
		if pf.Details.Name == "" {
			return nil, newFlagError(ErrorTypeMalformedResponse, fmt.Sprintf("flag %d has no name", i), nil)
		}
		snapshot.Flags = append(snapshot.Flags, Flag{
			Name: pf.Details.Name,
			State: FlagState{
				ID:      pf.Details.ID,
				Enabled: pf.Enabled,
				Variant: pf.Variant,
			},
		})
	}

	return snapshot, nil
}
