package models

// Manifest is a batch document: converter defaults plus an ordered job list.
// When delivered as a signed token the registered claims ride along.
type Manifest struct {
	Issuer    string          `json:"iss,omitempty"`
	Subject   string          `json:"sub,omitempty"`
	IssuedAt  int64           `json:"iat,omitempty"`
	ExpiresAt int64           `json:"exp,omitempty"`
	Defaults  *Settings       `json:"defaults,omitempty"`
	Jobs      []ConversionJob `json:"jobs"`
}
