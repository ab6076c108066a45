package application

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

const (
	variableTypeInput  = "input"
	variableTypeOutput = "output"
)

type provisioningResponse struct {
	Username  *string               `json:"username"`
	Password  *string               `json:"password"`
	Topic     *string               `json:"topic"`
	Variables []provisionedVariable `json:"variables"`
}

type provisionedVariable struct {
	Variable         string        `json:"variable"`
	VariableFullName string        `json:"variableFullName"`
	VariableType     string        `json:"variableType"`
	VariableSendFreq sendFrequency `json:"variableSendFreq"`
}

// sendFrequency accepts both 5 and "5", some provisioning servers quote it.
type sendFrequency int

func (f *sendFrequency) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		*f = 0
		return nil
	}

	s = strings.Trim(s, `"`)
	if s == "" {
		*f = 0
		return nil
	}

	n, err := strconv.Atoi(s)
	if err != nil {
		fl, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil {
			return fmt.Errorf("invalid variableSendFreq %q", s)
		}
		n = int(fl)
	}

	*f = sendFrequency(n)
	return nil
}

// ParseOutcome describes everything the parser had to tolerate while building
// a configuration. None of it is fatal to parsing; callers decide.
type ParseOutcome struct {
	// MissingFields lists absent or empty identity fields (username, password, topic).
	MissingFields []string

	// Truncated is set when the source held more variables than capacity.
	Truncated       bool
	SourceVariables int

	// UnknownKinds lists variable names whose type token was neither input
	// nor output. Those variables are treated as actuators.
	UnknownKinds []string

	// Skipped lists entries dropped for an empty, oversized or duplicate name.
	Skipped []string
}

// HasIdentity reports whether username, password and topic were all present.
func (o ParseOutcome) HasIdentity() bool {
	return len(o.MissingFields) == 0
}

// Err returns ErrConfigTruncated when variables were dropped by the capacity limit.
func (o ParseOutcome) Err() error {
	if o.Truncated {
		return fmt.Errorf("%w: %d variables in response, capacity kept the first ones", ErrConfigTruncated, o.SourceVariables)
	}
	return nil
}

// ParseConfiguration decodes a provisioning response body into a device
// configuration holding at most capacity variables. The returned configuration
// is never marked valid, that is up to the bootstrapper.
func ParseConfiguration(raw []byte, capacity int) (*DeviceConfiguration, ParseOutcome, error) {
	var outcome ParseOutcome

	if capacity <= 0 {
		capacity = DefaultMaxVariables
	}

	var resp provisioningResponse
	dec := json.NewDecoder(bytes.NewReader(raw))
	if err := dec.Decode(&resp); err != nil {
		return nil, outcome, fmt.Errorf("%w: malformed provisioning response: %w", ErrBootstrap, err)
	}

	cfg := &DeviceConfiguration{}

	identity := []struct {
		name string
		src  *string
		dst  *string
	}{
		{"username", resp.Username, &cfg.Username},
		{"password", resp.Password, &cfg.Password},
		{"topic", resp.Topic, &cfg.TopicPrefix},
	}
	for _, field := range identity {
		if field.src == nil || *field.src == "" {
			outcome.MissingFields = append(outcome.MissingFields, field.name)
			continue
		}
		if len(*field.src) > MaxStringLength {
			return nil, outcome, fmt.Errorf("%w: %s is %d bytes, limit %d", ErrFieldTooLong, field.name, len(*field.src), MaxStringLength)
		}
		*field.dst = *field.src
	}

	outcome.SourceVariables = len(resp.Variables)
	seen := make(map[string]struct{}, len(resp.Variables))
	for _, pv := range resp.Variables {
		if pv.Variable == "" || len(pv.Variable) > MaxStringLength {
			outcome.Skipped = append(outcome.Skipped, truncateString(pv.VariableFullName, MaxStringLength))
			continue
		}
		if _, dup := seen[pv.Variable]; dup {
			outcome.Skipped = append(outcome.Skipped, pv.Variable)
			continue
		}

		// only entries that would have been kept count against capacity
		if len(cfg.Variables) == capacity {
			outcome.Truncated = true
			break
		}
		seen[pv.Variable] = struct{}{}

		v := &Variable{
			Name:                 pv.Variable,
			DisplayName:          truncateString(pv.VariableFullName, MaxStringLength),
			Kind:                 VariableKindActuator,
			SendFrequencySeconds: int(pv.VariableSendFreq),
		}
		switch pv.VariableType {
		case variableTypeInput:
			v.Kind = VariableKindSensor
		case variableTypeOutput:
		default:
			outcome.UnknownKinds = append(outcome.UnknownKinds, pv.Variable)
		}

		cfg.Variables = append(cfg.Variables, v)
	}

	return cfg, outcome, nil
}

// truncateString cuts s to at most limit bytes without splitting a rune.
func truncateString(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	for limit > 0 && !utf8.RuneStart(s[limit]) {
		limit--
	}
	return s[:limit]
}
