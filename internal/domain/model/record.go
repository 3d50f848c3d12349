package model

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// RawRecord is a status-log entry as the collaborator serves it. Only
// Status and Time feed the engine; the rest is carried through.
type RawRecord struct {
	ID            Ident    `json:"id,omitempty" yaml:"id,omitempty"`
	Status        string   `json:"status" yaml:"status"`
	StatusDisplay string   `json:"status_display,omitempty" yaml:"status_display,omitempty"`
	Time          RawTime  `json:"time" yaml:"time"`
	EndTime       RawTime  `json:"end_time,omitempty" yaml:"end_time,omitempty"`
	DurationHours *float64 `json:"duration_hours,omitempty" yaml:"duration_hours,omitempty"`
	Trip          Ident    `json:"trip,omitempty" yaml:"trip,omitempty"`
}

// UnmarshalJSON decodes a record field by field. A status that is not a
// string or number is read as empty and falls back later; an element that is
// not an object becomes a record whose time never parses.
func (r *RawRecord) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || b[0] != '{' {
		*r = RawRecord{Time: malformedTime(b)}
		return nil
	}
	var fields struct {
		ID            Ident           `json:"id"`
		Status        json.RawMessage `json:"status"`
		StatusDisplay json.RawMessage `json:"status_display"`
		Time          RawTime         `json:"time"`
		EndTime       RawTime         `json:"end_time"`
		DurationHours json.RawMessage `json:"duration_hours"`
		Trip          Ident           `json:"trip"`
	}
	if err := json.Unmarshal(b, &fields); err != nil {
		*r = RawRecord{Time: malformedTime(b)}
		return nil
	}
	*r = RawRecord{
		ID:            fields.ID,
		Status:        scalarText(fields.Status),
		StatusDisplay: scalarText(fields.StatusDisplay),
		Time:          fields.Time,
		EndTime:       fields.EndTime,
		Trip:          fields.Trip,
	}
	var hours float64
	if len(fields.DurationHours) > 0 && !bytes.Equal(fields.DurationHours, []byte("null")) &&
		json.Unmarshal(fields.DurationHours, &hours) == nil {
		r.DurationHours = &hours
	}
	return nil
}

// UnmarshalYAML is the YAML counterpart of UnmarshalJSON.
func (r *RawRecord) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		*r = RawRecord{Time: RawTime{Text: yamlText(node), Malformed: true}}
		return nil
	}
	var fields struct {
		ID            Ident     `yaml:"id"`
		Status        yaml.Node `yaml:"status"`
		StatusDisplay yaml.Node `yaml:"status_display"`
		Time          RawTime   `yaml:"time"`
		EndTime       RawTime   `yaml:"end_time"`
		DurationHours yaml.Node `yaml:"duration_hours"`
		Trip          Ident     `yaml:"trip"`
	}
	if err := node.Decode(&fields); err != nil {
		*r = RawRecord{Time: RawTime{Text: yamlText(node), Malformed: true}}
		return nil
	}
	*r = RawRecord{
		ID:            fields.ID,
		Status:        yamlScalar(&fields.Status),
		StatusDisplay: yamlScalar(&fields.StatusDisplay),
		Time:          fields.Time,
		EndTime:       fields.EndTime,
		Trip:          fields.Trip,
	}
	var hours float64
	if fields.DurationHours.Kind == yaml.ScalarNode && fields.DurationHours.Tag != "!!null" &&
		fields.DurationHours.Decode(&hours) == nil {
		r.DurationHours = &hours
	}
	return nil
}

func yamlScalar(node *yaml.Node) string {
	if node.Kind != yaml.ScalarNode || node.Tag == "!!null" || node.Tag == "!!bool" {
		return ""
	}
	return strings.TrimSpace(node.Value)
}

// RawTime is a timestamp exactly as received: a string in any layout or a
// number. Numeric values are epoch milliseconds. Any other value is kept as
// Malformed with its source text and never parses.
type RawTime struct {
	Text      string
	Numeric   bool
	Malformed bool
}

// TextTime wraps a string timestamp.
func TextTime(s string) RawTime { return RawTime{Text: s} }

// MillisTime wraps an epoch-milliseconds timestamp.
func MillisTime(ms int64) RawTime {
	return RawTime{Text: strconv.FormatInt(ms, 10), Numeric: true}
}

// IsZero reports whether nothing was received.
func (t RawTime) IsZero() bool { return t.Text == "" }

// UnmarshalJSON accepts any JSON value so one bad timestamp cannot fail the
// whole list; only strings and numbers can later parse.
func (t *RawTime) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case len(b) == 0 || bytes.Equal(b, []byte("null")):
		*t = RawTime{}
	case b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			*t = malformedTime(b)
			return nil
		}
		*t = RawTime{Text: s}
	case b[0] == '-' || (b[0] >= '0' && b[0] <= '9'):
		var n json.Number
		if err := json.Unmarshal(b, &n); err != nil {
			*t = malformedTime(b)
			return nil
		}
		*t = RawTime{Text: n.String(), Numeric: true}
	default:
		*t = malformedTime(b)
	}
	return nil
}

func malformedTime(b []byte) RawTime {
	var buf bytes.Buffer
	if err := json.Compact(&buf, b); err != nil {
		return RawTime{Text: string(b), Malformed: true}
	}
	return RawTime{Text: buf.String(), Malformed: true}
}

// MarshalJSON writes numbers back as numbers. Malformed values are written
// as their source text in a string.
func (t RawTime) MarshalJSON() ([]byte, error) {
	if t.Numeric && !t.Malformed {
		return []byte(t.Text), nil
	}
	if t.Text == "" {
		return []byte("null"), nil
	}
	return json.Marshal(t.Text)
}

// UnmarshalYAML keeps the scalar's source text; YAML timestamps are not
// converted so the normalizer sees the same layouts as over JSON.
func (t *RawTime) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		*t = RawTime{Text: yamlText(node), Malformed: true}
		return nil
	}
	switch node.Tag {
	case "!!null":
		*t = RawTime{}
	case "!!bool":
		*t = RawTime{Text: node.Value, Malformed: true}
	case "!!int", "!!float":
		*t = RawTime{Text: node.Value, Numeric: true}
	default:
		*t = RawTime{Text: node.Value}
	}
	return nil
}

// MarshalYAML mirrors MarshalJSON.
func (t RawTime) MarshalYAML() (any, error) {
	if t.Text == "" {
		return nil, nil
	}
	if t.Numeric && !t.Malformed {
		tag := "!!int"
		if _, err := strconv.ParseInt(t.Text, 10, 64); err != nil {
			tag = "!!float"
		}
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: tag, Value: t.Text}, nil
	}
	return t.Text, nil
}

// yamlText renders a node back to compact source text for diagnostics.
func yamlText(node *yaml.Node) string {
	out, err := yaml.Marshal(node)
	if err != nil {
		return node.Value
	}
	return strings.TrimSpace(string(out))
}

// Ident is a record or trip identifier that producers send as either a
// number or a string.
type Ident string

// UnmarshalJSON accepts numbers and strings. Any other value, null
// included, leaves the identifier empty.
func (id *Ident) UnmarshalJSON(b []byte) error {
	*id = Ident(scalarText(b))
	return nil
}

// UnmarshalYAML accepts any scalar; collections leave the identifier empty.
func (id *Ident) UnmarshalYAML(node *yaml.Node) error {
	*id = ""
	if node.Kind == yaml.ScalarNode && node.Tag != "!!null" {
		*id = Ident(strings.TrimSpace(node.Value))
	}
	return nil
}

// scalarText returns the text of a JSON string or number, or "" for any
// other value.
func scalarText(b []byte) string {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return ""
	}
	switch {
	case b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return ""
		}
		return strings.TrimSpace(s)
	case b[0] == '-' || (b[0] >= '0' && b[0] <= '9'):
		var n json.Number
		if err := json.Unmarshal(b, &n); err != nil {
			return ""
		}
		return n.String()
	default:
		return ""
	}
}

// String returns the identifier text.
func (id Ident) String() string { return string(id) }
