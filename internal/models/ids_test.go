package models

import (
	"encoding/json"
	"testing"
)

func TestParseEntityID(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		pending bool
		str     string
	}{
		{"confirmed", "abc-123", false, "abc-123"},
		{"pending", "temp-tok-1", true, "temp-tok-1"},
		{"empty", "", false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := ParseEntityID(tt.input)
			if id.IsPending() != tt.pending {
				t.Errorf("IsPending() = %v, want %v", id.IsPending(), tt.pending)
			}
			if id.String() != tt.str {
				t.Errorf("String() = %q, want %q", id.String(), tt.str)
			}
		})
	}
}

func TestEntityIDServerID(t *testing.T) {
	if _, ok := PendingID("tok").ServerID(); ok {
		t.Error("pending id should not expose a server id")
	}
	if _, ok := ConfirmedID("").ServerID(); ok {
		t.Error("zero id should not expose a server id")
	}

	sid, ok := ConfirmedID("srv-1").ServerID()
	if !ok || sid != "srv-1" {
		t.Errorf("ServerID() = %q, %v, want srv-1, true", sid, ok)
	}
}

func TestEntityIDToken(t *testing.T) {
	if _, ok := ConfirmedID("srv-1").Token(); ok {
		t.Error("confirmed id should not expose a token")
	}

	tok, ok := PendingID("tok-9").Token()
	if !ok || tok != "tok-9" {
		t.Errorf("Token() = %q, %v, want tok-9, true", tok, ok)
	}
}

func TestEntityIDIsZero(t *testing.T) {
	if !ConfirmedID("").IsZero() {
		t.Error("empty id should be zero")
	}
	if ConfirmedID("x").IsZero() {
		t.Error("confirmed id should not be zero")
	}
	if PendingID("tok").IsZero() {
		t.Error("pending id should not be zero")
	}
}

func TestEntityIDJSONRoundTrip(t *testing.T) {
	for _, id := range []EntityID{ConfirmedID("srv-1"), PendingID("tok-1"), {}} {
		data, err := json.Marshal(id)
		if err != nil {
			t.Fatalf("Marshal failed: %v", err)
		}
		var got EntityID
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("Unmarshal failed: %v", err)
		}
		if got != id {
			t.Errorf("round trip: got %+v, want %+v", got, id)
		}
	}
}

func TestEntityIDScan(t *testing.T) {
	var id EntityID
	if err := id.Scan("temp-tok"); err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if !id.IsPending() {
		t.Error("scanned temp- value should be pending")
	}

	if err := id.Scan([]byte("srv-2")); err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if id.IsPending() || id.String() != "srv-2" {
		t.Errorf("scanned bytes: got %s pending=%v", id, id.IsPending())
	}

	if err := id.Scan(nil); err != nil {
		t.Fatalf("Scan(nil) failed: %v", err)
	}
	if !id.IsZero() {
		t.Error("scanned nil should be zero")
	}

	if err := id.Scan(42); err == nil {
		t.Error("scanning an int should fail")
	}
}

func TestEntityIDValue(t *testing.T) {
	v, err := PendingID("tok").Value()
	if err != nil {
		t.Fatalf("Value failed: %v", err)
	}
	if v != "temp-tok" {
		t.Errorf("Value() = %v, want temp-tok", v)
	}
}
