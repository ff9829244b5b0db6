package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// methodAndParams reads "<method> [params-json]" positional arguments.
func methodAndParams(args []string) (string, json.RawMessage, error) {
	if len(args) == 0 || args[0] == "" {
		return "", nil, errMissingMethod
	}
	if len(args) == 1 {
		return args[0], nil, nil
	}
	callParams, err := parseParams(args[1])
	return args[0], callParams, err
}

// splitCall reads a "method=params-json" batch argument.
func splitCall(arg string) (string, json.RawMessage, error) {
	method, raw, found := strings.Cut(arg, "=")
	if method == "" {
		return "", nil, errMissingMethod
	}
	if !found {
		return method, nil, nil
	}
	callParams, err := parseParams(raw)
	return method, callParams, err
}

func parseParams(raw string) (json.RawMessage, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if !json.Valid([]byte(raw)) {
		return nil, fmt.Errorf("params are not valid json: %s", raw)
	}
	return json.RawMessage(raw), nil
}

func printJSON(v interface{}) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
