package mcp

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

// decode unmarshals MCP request arguments into a typed struct.
// Unknown argument names are rejected so typos surface as errors.
func decode[T any](req mcp.CallToolRequest) (T, error) {
	return decodeArgs[T](req, true)
}

// decodeLoose is decode without the unknown-name check, for handlers that
// validate argument names themselves.
func decodeLoose[T any](req mcp.CallToolRequest) (T, error) {
	return decodeArgs[T](req, false)
}

func decodeArgs[T any](req mcp.CallToolRequest, strict bool) (T, error) {
	var result T
	b, err := json.Marshal(req.GetArguments())
	if err != nil {
		return result, fmt.Errorf("marshal args: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	if strict {
		dec.DisallowUnknownFields()
	}
	if err := dec.Decode(&result); err != nil {
		return result, fmt.Errorf("invalid arguments: %w", err)
	}
	return result, nil
}
