package flags

import (
	"encoding/json"
	"testing"
	"time"
)

func TestFlagStateClone(t *testing.T) {
	state := FlagState{ID: "1", Enabled: true, Variant: json.RawMessage(`{"a":1}`)}
	clone := state.Clone()

	if !clone.Equal(state) {
		t.Fatal("Expected clone to equal original")
	}

	clone.Variant[0] = '['
	if string(state.Variant) != `{"a":1}` {
		t.Errorf("Clone shares variant storage: %s", state.Variant)
	}
}

func TestFlagStateCloneNilVariant(t *testing.T) {
	clone := FlagState{Enabled: true}.Clone()
	if clone.Variant != nil {
		t.Error("Expected nil variant to stay nil")
	}
}

func TestFlagStateEqual(t *testing.T) {
	a := FlagState{ID: "1", Enabled: true}

	if !a.Equal(FlagState{ID: "1", Enabled: true}) {
		t.Error("Expected equal states")
	}
	if a.Equal(FlagState{ID: "1", Enabled: false}) {
		t.Error("Expected enabled to matter")
	}
	if a.Equal(FlagState{ID: "2", Enabled: true}) {
		t.Error("Expected id to matter")
	}
	if a.Equal(FlagState{ID: "1", Enabled: true, Variant: json.RawMessage(`1`)}) {
		t.Error("Expected variant to matter")
	}
}

func TestCacheEntryJSON(t *testing.T) {
	entry := CacheEntry{
		State:      FlagState{ID: "9", Enabled: true, Variant: json.RawMessage(`{"n":2}`)},
		CapturedAt: time.Date(2024, 5, 1, 8, 30, 0, 123, time.UTC),
		TTL:        90 * time.Second,
	}

	data, err := json.Marshal(entry)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	var decoded CacheEntry
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	if !decoded.State.Equal(entry.State) || !decoded.CapturedAt.Equal(entry.CapturedAt) || decoded.TTL != entry.TTL {
		t.Errorf("Round trip mismatch: %+v vs %+v", decoded, entry)
	}
}

func TestProvenanceString(t *testing.T) {
	testCases := map[Provenance]string{
		ProvenanceDefault:     "Default",
		ProvenanceOverride:    "Override",
		ProvenanceFreshCache:  "FreshCache",
		ProvenanceStaleCache:  "StaleCache",
		ProvenanceRemoteFresh: "RemoteFresh",
		Provenance(99):        "Unknown",
	}

	for p, want := range testCases {
		if p.String() != want {
			t.Errorf("Expected %s, got %s", want, p.String())
		}
	}
}

func TestResultEnabled(t *testing.T) {
	r := Result{State: FlagState{Enabled: true}}
	if !r.Enabled() {
		t.Error("Expected Enabled() to mirror state")
	}
}

func TestCircuitStateConstants(t *testing.T) {
	if StateClosed != 0 {
		t.Errorf("Expected StateClosed to be 0, got %d", StateClosed)
	}
	if StateOpen != 1 {
		t.Errorf("Expected StateOpen to be 1, got %d", StateOpen)
	}
	if StateHalfOpen != 2 {
		t.Errorf("Expected StateHalfOpen to be 2, got %d", StateHalfOpen)
	}
}
