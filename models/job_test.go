package models

import (
	"errors"
	"strings"
	"testing"
)

func TestMergeSettings(t *testing.T) {
	tests := []struct {
		name     string
		defaults *Settings
		job      *Settings
		want     EffectiveSettings
	}{
		{"hardcoded", nil, nil, EffectiveSettings{Quality: 10, Transparent: "0x000000"}},
		{"converter defaults", &Settings{Quality: IntPtr(40)}, nil, EffectiveSettings{Quality: 40, Transparent: "0x000000"}},
		{"job overrides", &Settings{Quality: IntPtr(40), Transparent: StringPtr("0xffffff")}, &Settings{Quality: IntPtr(80)}, EffectiveSettings{Quality: 80, Transparent: "0xffffff"}},
		{"job only transparent", nil, &Settings{Transparent: StringPtr("0x00ff00")}, EffectiveSettings{Quality: 10, Transparent: "0x00ff00"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MergeSettings(tt.defaults, tt.job)
			if got != tt.want {
				t.Errorf("MergeSettings() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestMergeSettingsDoesNotShareState(t *testing.T) {
	defaults := &Settings{Quality: IntPtr(30)}
	eff := MergeSettings(defaults, nil)
	*defaults.Quality = 99
	if eff.Quality != 30 {
		t.Errorf("effective settings changed with defaults: got %d", eff.Quality)
	}
}

func TestParseSettingsRejectsUnknownKeys(t *testing.T) {
	_, err := ParseSettings(map[string]any{"quality": 5, "speed": 2, "lossless": true})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if !strings.Contains(verr.Reason, "lossless, speed") {
		t.Errorf("reason should list unknown keys sorted, got %q", verr.Reason)
	}
}

func TestParseSettings(t *testing.T) {
	s, err := ParseSettings(map[string]any{"quality": float64(80), "transparent": "0xff00ff"})
	if err != nil {
		t.Fatalf("ParseSettings: %v", err)
	}
	if s.Quality == nil || *s.Quality != 80 {
		t.Errorf("quality = %v, want 80", s.Quality)
	}
	if s.Transparent == nil || *s.Transparent != "0xff00ff" {
		t.Errorf("transparent = %v, want 0xff00ff", s.Transparent)
	}

	if _, err := ParseSettings(map[string]any{"quality": 2.5}); err == nil {
		t.Error("expected error for fractional quality")
	}
	if _, err := ParseSettings(map[string]any{"transparent": 12}); err == nil {
		t.Error("expected error for non-string transparent")
	}
}

func TestValidationErrorMessage(t *testing.T) {
	err := &ValidationError{Index: 1, Input: "a.jpg", Reason: "input must have extension .webp"}
	want := "validation failed for job 1 (a.jpg): input must have extension .webp"
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}
}
