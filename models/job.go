package models

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Hardcoded fallbacks used when neither the converter nor the job sets a value.
const (
	DefaultQuality        = 10
	DefaultTransparent    = "0x000000"
	DefaultAlphaThreshold = 128
)

// PublishJob describes where a finished output is pushed after conversion.
type PublishJob struct {
	Type        string            // "local", "s3", "minio", "gcs" or "sftp"
	Credentials map[string]string // backend specific keys, see writerBackends
}

// ConversionJob is one WebP input to convert. Output is optional and inferred
// from the container when empty.
type ConversionJob struct {
	ID       string    `json:"-"`
	Input    string    `json:"input"`
	Output   string    `json:"output,omitempty"`
	Settings *Settings `json:"settings,omitempty"`
}

// Settings holds the only two recognized tuning keys. Nil fields inherit from
// the next layer down.
type Settings struct {
	Quality     *int    `json:"quality,omitempty"`
	Transparent *string `json:"transparent,omitempty"`
}

// EffectiveSettings is the merged, fully populated settings a job runs with.
type EffectiveSettings struct {
	Quality     int    `json:"quality"`
	Transparent string `json:"transparent"`
}

var settingKeys = map[string]struct{}{
	"quality":     {},
	"transparent": {},
}

// IntPtr and StringPtr are small helpers for building Settings literals.
func IntPtr(v int) *int          { return &v }
func StringPtr(v string) *string { return &v }

// MergeSettings layers job settings over converter defaults over the
// hardcoded defaults. Inputs are never mutated; the result is a copy.
func MergeSettings(defaults, job *Settings) EffectiveSettings {
	eff := EffectiveSettings{Quality: DefaultQuality, Transparent: DefaultTransparent}
	for _, layer := range []*Settings{defaults, job} {
		if layer == nil {
			continue
		}
		if layer.Quality != nil {
			eff.Quality = *layer.Quality
		}
		if layer.Transparent != nil {
			eff.Transparent = *layer.Transparent
		}
	}
	return eff
}

// ParseSettings builds Settings from a loosely typed map, e.g. values coming
// from flags or a decoded document. Unknown keys are a validation error.
func ParseSettings(raw map[string]any) (*Settings, error) {
	if raw == nil {
		return nil, nil
	}
	var unknown []string
	for k := range raw {
		if _, ok := settingKeys[k]; !ok {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, &ValidationError{Index: -1, Reason: fmt.Sprintf("unrecognized setting(s): %s", strings.Join(unknown, ", "))}
	}

	s := &Settings{}
	if v, ok := raw["quality"]; ok {
		q, err := toInt(v)
		if err != nil {
			return nil, &ValidationError{Index: -1, Reason: fmt.Sprintf("quality: %v", err)}
		}
		s.Quality = &q
	}
	if v, ok := raw["transparent"]; ok {
		str, ok := v.(string)
		if !ok {
			return nil, &ValidationError{Index: -1, Reason: fmt.Sprintf("transparent: expected string, got %T", v)}
		}
		s.Transparent = &str
	}
	return s, nil
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n != float64(int(n)) {
			return 0, fmt.Errorf("expected integer, got %v", n)
		}
		return int(n), nil
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, fmt.Errorf("expected integer, got %q", n.String())
		}
		return int(i), nil
	default:
		return 0, fmt.Errorf("expected integer, got %T", v)
	}
}
