package status

import (
	"errors"
	"testing"
	"time"
)

func TestDecodePresence(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    Presence
		wantErr bool
	}{
		{name: "present", payload: `"Present"`, want: PresencePresent},
		{name: "absent", payload: `"Absent"`, want: PresenceAbsent},
		{name: "unknown", payload: `"Unknown"`, want: PresenceUnknown},
		{name: "unrecognised value", payload: `"Sometimes"`, wantErr: true},
		{name: "wrong type", payload: `{"presence":"Present"}`, wantErr: true},
		{name: "not json", payload: `Present`, wantErr: true},
		{name: "empty", payload: ``, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodePresence([]byte(tt.payload))
			if tt.wantErr {
				if !errors.Is(err, ErrMalformedPayload) {
					t.Fatalf("DecodePresence(%q) error = %v, want ErrMalformedPayload", tt.payload, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodePresence(%q) error = %v", tt.payload, err)
			}
			if got != tt.want {
				t.Errorf("DecodePresence(%q) = %v, want %v", tt.payload, got, tt.want)
			}
		})
	}
}

func TestDecodeManualStatus(t *testing.T) {
	got, at, err := DecodeManualStatus([]byte(`{"status":"busy","updated_at":1774958400000}`))
	if err != nil {
		t.Fatalf("DecodeManualStatus() error = %v", err)
	}
	if got != StatusBusy {
		t.Errorf("status = %v, want busy", got)
	}
	if want := time.UnixMilli(1774958400000).UTC(); !at.Equal(want) {
		t.Errorf("updated_at = %v, want %v", at, want)
	}
}

func TestDecodeManualStatusRejectsMalformed(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{name: "unrecognised status", payload: `{"status":"sleeping","updated_at":1}`},
		{name: "missing updated_at", payload: `{"status":"busy"}`},
		{name: "negative updated_at", payload: `{"status":"busy","updated_at":-5}`},
		{name: "not json", payload: `busy`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := DecodeManualStatus([]byte(tt.payload)); !errors.Is(err, ErrMalformedPayload) {
				t.Errorf("DecodeManualStatus(%q) error = %v, want ErrMalformedPayload", tt.payload, err)
			}
		})
	}
}
