package validation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
)

// ErrBodyNotObject is returned when a request body is present but is not a JSON object
var ErrBodyNotObject = errors.New("request body must be a JSON object")

// Payload is the merged view of a request's path variables, query parameters
// and JSON body. Path variables win over body fields, which win over query
// parameters.
type Payload struct {
	values map[string]interface{}
}

// NewPayload wraps an already decoded value map
func NewPayload(values map[string]interface{}) *Payload {
	if values == nil {
		values = map[string]interface{}{}
	}
	return &Payload{values: values}
}

// FromRequest builds a payload from r. The body is restored afterwards so the
// handler behind the gate can read it again.
func FromRequest(r *http.Request) (*Payload, error) {
	values := make(map[string]interface{})

	for key, vals := range r.URL.Query() {
		if len(vals) > 0 {
			values[key] = vals[0]
		}
	}

	body, err := readBody(r)
	if err != nil {
		return nil, err
	}
	for key, v := range body {
		values[key] = v
	}

	for key, v := range mux.Vars(r) {
		values[key] = v
	}

	return &Payload{values: values}, nil
}

func readBody(r *http.Request) (map[string]interface{}, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return nil, nil
	}

	raw, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read request body: %w", err)
	}
	r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(raw))

	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var decoded interface{}
	if err := dec.Decode(&decoded); err != nil {
		return nil, ErrBodyNotObject
	}
	obj, ok := decoded.(map[string]interface{})
	if !ok {
		return nil, ErrBodyNotObject
	}
	return obj, nil
}

// Get resolves a dotted path such as "address.city"
func (p *Payload) Get(path string) (interface{}, bool) {
	if v, ok := p.values[path]; ok {
		return v, true
	}

	var cur interface{} = p.values
	for _, part := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]interface{})
		if !ok {
			return nil, false
		}
		cur, ok = obj[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// String returns the scalar at path rendered as a string
func (p *Payload) String(path string) (string, bool) {
	v, ok := p.Get(path)
	if !ok {
		return "", false
	}
	return scalarString(v)
}

func scalarString(v interface{}) (string, bool) {
	switch val := v.(type) {
	case string:
		return val, true
	case json.Number:
		return val.String(), true
	case bool:
		return strconv.FormatBool(val), true
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), true
	case int:
		return strconv.Itoa(val), true
	case int64:
		return strconv.FormatInt(val, 10), true
	default:
		return "", false
	}
}
