package ai

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// ErrNoJSONPayload is returned when a reply carries no recoverable JSON.
var ErrNoJSONPayload = errors.New("no JSON payload in LLM reply")

// ExtractJSON pulls the JSON payload out of a free-form LLM reply.
//
// It looks inside a ```json fenced block first, then falls back to the span
// between the first opening bracket and the last matching closing bracket.
// A span that does not parse is passed through jsonrepair once.
func ExtractJSON(reply string) ([]byte, error) {
	candidate := fenced(reply)
	if candidate == "" {
		candidate = bracketSpan(reply)
	}
	if candidate == "" {
		return nil, ErrNoJSONPayload
	}

	if json.Valid([]byte(candidate)) {
		return []byte(candidate), nil
	}

	repaired, err := jsonrepair.JSONRepair(candidate)
	if err != nil || !json.Valid([]byte(repaired)) {
		return nil, ErrNoJSONPayload
	}
	return []byte(repaired), nil
}

// fenced returns the body of the first ``` block, without a language tag.
func fenced(s string) string {
	start := strings.Index(s, "```")
	if start < 0 {
		return ""
	}
	body := s[start+3:]
	end := strings.Index(body, "```")
	if end < 0 {
		return ""
	}
	body = body[:end]
	// Drop the info string (e.g. "json") on the opening line.
	if nl := strings.IndexByte(body, '\n'); nl >= 0 && !strings.ContainsAny(body[:nl], "[{") {
		body = body[nl+1:]
	}
	return strings.TrimSpace(body)
}

// bracketSpan returns the text from the first '[' or '{' to the last
// matching closer.
func bracketSpan(s string) string {
	start := strings.IndexAny(s, "[{")
	if start < 0 {
		return ""
	}
	closer := byte(']')
	if s[start] == '{' {
		closer = '}'
	}
	end := strings.LastIndexByte(s, closer)
	if end <= start {
		// Unterminated: hand the tail to the repairer.
		return strings.TrimSpace(s[start:])
	}
	return s[start : end+1]
}
