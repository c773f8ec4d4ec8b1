package workflow

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"vmjobs/internal/apperrors"
)

// Params are the launch parameters of a request. Query parameters and JSON
// body fields are merged; the body wins.
type Params map[string]string

// NewParams merges query with a JSON object body. An empty body is allowed.
func NewParams(query url.Values, body []byte) (Params, error) {
	p := make(Params, len(query))
	for k, v := range query {
		if len(v) > 0 {
			p[k] = strings.TrimSpace(v[0])
		}
	}

	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return p, nil
	}
	var fields map[string]any
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&fields); err != nil {
		return nil, apperrors.Validation("body", "Invalid JSON body")
	}
	for k, v := range fields {
		switch val := v.(type) {
		case nil:
		case string:
			p[k] = strings.TrimSpace(val)
		case json.Number:
			p[k] = val.String()
		case bool:
			p[k] = strconv.FormatBool(val)
		default:
			return nil, apperrors.Validation(k, fmt.Sprintf("parameter %s must be a scalar", k))
		}
	}
	return p, nil
}

// Require returns a validation error naming every absent parameter.
func (p Params) Require(names ...string) error {
	var missing []string
	for _, n := range names {
		if p[n] == "" {
			missing = append(missing, n)
		}
	}
	if len(missing) > 0 {
		return apperrors.Missing(missing...)
	}
	return nil
}

// Get returns the named parameter or def when it is absent.
func (p Params) Get(name, def string) string {
	if v := p[name]; v != "" {
		return v
	}
	return def
}
