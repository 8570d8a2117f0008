package probe

import (
	"bytes"
	"encoding/json"
	"sort"
	"strings"
)

// CheckStatus is a single sub-check reported by the readiness endpoint.
type CheckStatus struct {
	Status  string            `json:"status"`
	Message string            `json:"message,omitempty"`
	Labels  map[string]string `json:"labels,omitempty"`
}

// Readiness is the decoded payload of GET /-/readiness.
//
// GitLab reports an overall status plus one list of results per sub-check,
// keyed by names ending in "_check" (master_check, db_check, redis_check...).
type Readiness struct {
	// Status is the overall status as sent by the instance.
	Status string

	// Checks maps each "*_check" key to its reported results.
	Checks map[string][]CheckStatus

	// Raw is the compacted JSON body.
	Raw string
}

// OK reports whether the overall status is "ok", ignoring case.
func (r Readiness) OK() bool {
	return strings.ToLower(r.Status) == "ok"
}

// CheckNames returns the sub-check names in sorted order.
func (r Readiness) CheckNames() []string {
	names := make([]string, 0, len(r.Checks))
	for name := range r.Checks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// UnmarshalJSON implements json.Unmarshaler for Readiness.
//
// Any valid JSON is accepted. A non-string status is kept as its JSON text
// and sub-checks that do not match [CheckStatus] are skipped.
func (r *Readiness) UnmarshalJSON(data []byte) error {
	*r = Readiness{Checks: make(map[string][]CheckStatus)}

	fields, ok := objectFields(data)
	if !ok {
		return nil
	}
	for key, raw := range fields {
		switch {
		case key == "status":
			r.Status = lenientString(raw)
		case strings.HasSuffix(key, "_check"):
			if checks, ok := decodeChecks(raw); ok {
				r.Checks[key] = checks
			}
		}
	}
	return nil
}

// decodeChecks accepts either a list of results or a single result object.
func decodeChecks(raw json.RawMessage) ([]CheckStatus, bool) {
	var checks []CheckStatus
	if err := json.Unmarshal(raw, &checks); err == nil {
		return checks, true
	}
	var single CheckStatus
	if err := json.Unmarshal(raw, &single); err == nil {
		return []CheckStatus{single}, true
	}
	return nil, false
}

// KAS describes the GitLab agent server section of the metadata payload.
type KAS struct {
	Enabled     bool    `json:"enabled"`
	ExternalURL *string `json:"externalUrl"`
	Version     *string `json:"version"`
}

// Metadata is the decoded payload of GET /api/v4/metadata.
//
// See https://docs.gitlab.com/ee/api/metadata.html. Only Version is relied
// upon; the other fields are filled when their JSON types match.
type Metadata struct {
	Version    string
	Revision   string
	Enterprise bool
	KAS        KAS

	// HasVersion reports whether the payload carried a "version" key at all,
	// so an empty version can be told apart from a missing one.
	HasVersion bool

	// Raw is the compacted JSON body.
	Raw string
}

// UnmarshalJSON implements json.Unmarshaler for Metadata.
//
// Any valid JSON is accepted; fields with unexpected types are left zero.
func (m *Metadata) UnmarshalJSON(data []byte) error {
	*m = Metadata{}

	fields, ok := objectFields(data)
	if !ok {
		return nil
	}
	if raw, ok := fields["version"]; ok {
		m.Version, m.HasVersion = lenientString(raw), true
	}
	if raw, ok := fields["revision"]; ok {
		m.Revision = lenientString(raw)
	}
	if raw, ok := fields["enterprise"]; ok {
		var enterprise bool
		if err := json.Unmarshal(raw, &enterprise); err == nil {
			m.Enterprise = enterprise
		}
	}
	if raw, ok := fields["kas"]; ok {
		// mismatched members are skipped, the rest still decode
		_ = json.Unmarshal(raw, &m.KAS)
	}
	return nil
}

// objectFields splits a JSON object into its members. It reports false for
// any other JSON value, including null.
func objectFields(data []byte) (map[string]json.RawMessage, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil || fields == nil {
		return nil, false
	}
	return fields, true
}

// lenientString returns a JSON string's value, "" for null, and the compacted
// JSON text for anything else.
func lenientString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	text, err := compactJSON(raw)
	if err != nil || text == "null" {
		return ""
	}
	return text
}

// compactJSON re-serialises a JSON document without insignificant whitespace,
// preserving key order and values exactly as sent.
func compactJSON(body []byte) (string, error) {
	var buf bytes.Buffer
	if err := json.Compact(&buf, body); err != nil {
		return "", err
	}
	return buf.String(), nil
}
