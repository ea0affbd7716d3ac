// Package jsonutil wraps github.com/go-json-experiment/json behind an
// encoding/json-shaped API, plus the two decoding modes scanner output
// needs: tolerant single documents and newline-delimited streams.
//
// Usage:
//
//	var out bandit.Report
//	err := jsonutil.UnmarshalLenient(stdout, &out)
//
//	rows, bad := jsonutil.DecodeLines[nucleiResult](stdout)
package jsonutil

import (
	"bufio"
	"bytes"
	"fmt"
	"io"

	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"
)

// RawMessage is a raw encoded JSON value, decoded later on demand.
type RawMessage = jsontext.Value

// maxLine caps a single NDJSON record (16MB); nuclei can embed full responses.
const maxLine = 16 * 1024 * 1024

// Unmarshal parses the JSON-encoded data and stores the result in v.
func Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

// UnmarshalLenient parses scanner output. Member names match
// case-insensitively and unknown members are ignored, since scanner
// versions drift in both.
func UnmarshalLenient(data []byte, v any) error {
	return json.Unmarshal(data, v, json.MatchCaseInsensitiveNames(true))
}

// Marshal returns the JSON encoding of v.
func Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

// MarshalIndent returns the indented JSON encoding of v.
func MarshalIndent(v any, indent string) ([]byte, error) {
	return json.Marshal(v, jsontext.WithIndent(indent))
}

// Encode writes the JSON encoding of v to w followed by a newline.
func Encode(w io.Writer, v any, indent string) error {
	var err error
	if indent != "" {
		err = json.MarshalWrite(w, v, jsontext.WithIndent(indent))
	} else {
		err = json.MarshalWrite(w, v)
	}
	if err != nil {
		return err
	}
	_, err = w.Write([]byte{'\n'})
	return err
}

// Decode reads a single JSON value from r into v.
func Decode(r io.Reader, v any) error {
	return json.UnmarshalRead(r, v)
}

// Valid reports whether data is a valid JSON encoding.
func Valid(data []byte) bool {
	return jsontext.Value(data).IsValid()
}

// LineError records one undecodable line of an NDJSON stream.
type LineError struct {
	Line int
	Err  error
}

func (e LineError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

// DecodeLines decodes newline-delimited JSON leniently. Blank lines are
// skipped; lines that fail to decode are reported and do not stop the scan.
func DecodeLines[T any](data []byte) ([]T, []LineError) {
	var (
		out  []T
		bad  []LineError
		line int
	)
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), maxLine)
	for sc.Scan() {
		line++
		raw := bytes.TrimSpace(sc.Bytes())
		if len(raw) == 0 {
			continue
		}
		var v T
		if err := UnmarshalLenient(raw, &v); err != nil {
			bad = append(bad, LineError{Line: line, Err: err})
			continue
		}
		out = append(out, v)
	}
	if err := sc.Err(); err != nil {
		bad = append(bad, LineError{Line: line + 1, Err: err})
	}
	return out, bad
}
