package job

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"webpconv/models"
)

// manifestDoc mirrors models.Manifest with settings kept loose so that
// unknown keys can be reported per job.
type manifestDoc struct {
	Issuer    string            `json:"iss"`
	Subject   string            `json:"sub"`
	IssuedAt  int64             `json:"iat"`
	ExpiresAt int64             `json:"exp"`
	Defaults  map[string]any    `json:"defaults"`
	Jobs      []json.RawMessage `json:"jobs"`
}

type jobDoc struct {
	Input    string         `json:"input"`
	Output   string         `json:"output"`
	Settings map[string]any `json:"settings"`
}

// ReadManifest reads a batch manifest from a JSON file.
func ReadManifest(path string) (*models.Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	return ParseManifest(data)
}

// ParseManifest decodes a batch document strictly. It accepts either
// {"defaults": {...}, "jobs": [...]} or a bare array of jobs. Unknown keys at
// any level are a *models.ValidationError carrying the job's index.
func ParseManifest(data []byte) (*models.Manifest, error) {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		data = append(append([]byte(`{"jobs":`), data...), '}')
	}

	var doc manifestDoc
	if err := strictDecode(data, &doc); err != nil {
		return nil, &models.ValidationError{Index: -1, Reason: fmt.Sprintf("malformed manifest: %v", err)}
	}
	if len(doc.Jobs) == 0 {
		return nil, &models.ValidationError{Index: -1, Reason: "manifest has no jobs"}
	}

	defaults, err := models.ParseSettings(doc.Defaults)
	if err != nil {
		return nil, fmt.Errorf("manifest defaults: %w", err)
	}
	m := &models.Manifest{
		Issuer:    doc.Issuer,
		Subject:   doc.Subject,
		IssuedAt:  doc.IssuedAt,
		ExpiresAt: doc.ExpiresAt,
		Defaults:  defaults,
		Jobs:      make([]models.ConversionJob, 0, len(doc.Jobs)),
	}
	for i, raw := range doc.Jobs {
		var jd jobDoc
		if err := strictDecode(raw, &jd); err != nil {
			return nil, &models.ValidationError{Index: i, Reason: fmt.Sprintf("job must be an object with input, output and settings: %v", err)}
		}
		settings, err := models.ParseSettings(jd.Settings)
		if err != nil {
			if ve, ok := err.(*models.ValidationError); ok {
				ve.Index, ve.Input = i, jd.Input
			}
			return nil, err
		}
		m.Jobs = append(m.Jobs, models.ConversionJob{Input: jd.Input, Output: jd.Output, Settings: settings})
	}
	return m, nil
}

func strictDecode(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if _, err := dec.Token(); err != io.EOF {
		return fmt.Errorf("trailing data after document")
	}
	return nil
}
