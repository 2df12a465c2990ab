package predict

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// StatusHealthy is the status string the service reports for an eye without
// signs of disease. Any other value is treated as diseased.
const StatusHealthy = "Healthy"

// Result is the classification record returned by the prediction service.
type Result struct {
	Status           string        `json:"status"`
	Class            string        `json:"class"`
	Confidence       float64       `json:"confidence"`
	ModelType        string        `json:"model_type,omitempty"`
	AllProbabilities Probabilities `json:"all_probabilities"`
}

func (r *Result) Healthy() bool {
	return r.Status == StatusHealthy
}

type Probability struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
}

// Probabilities is a JSON object of label -> probability that keeps the key
// order of the wire payload. nil means the field was absent or null; a
// non-nil empty value means an empty object was sent.
type Probabilities []Probability

func (p Probabilities) MarshalJSON() ([]byte, error) {
	if p == nil {
		return []byte("null"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, item := range p {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(item.Label)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(item.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (p *Probabilities) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("decode all_probabilities failed: %w", err)
	}
	if tok == nil {
		*p = nil
		return nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("decode all_probabilities failed: expected object, got %v", tok)
	}

	out := Probabilities{}
	index := make(map[string]int)
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("decode all_probabilities key failed: %w", err)
		}
		label, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("decode all_probabilities failed: non-string key %v", keyTok)
		}
		var value float64
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("decode all_probabilities[%q] failed: %w", label, err)
		}
		// a repeated key keeps its first position and takes the last value
		if i, seen := index[label]; seen {
			out[i].Value = value
			continue
		}
		index[label] = len(out)
		out = append(out, Probability{Label: label, Value: value})
	}
	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("decode all_probabilities failed: %w", err)
	}

	*p = out
	return nil
}
