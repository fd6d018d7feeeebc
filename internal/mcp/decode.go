package mcp

import (
	"encoding/json"
	stderrors "errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/wpswap/internal/errors"
)

// decode converts tool arguments into T by round-tripping them through JSON.
// Failures come back as INVALID_REQUEST naming the offending field when known.
func decode[T any](req mcp.CallToolRequest) (T, error) {
	var out T
	args := req.GetArguments()
	if args == nil {
		return out, nil
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return out, errors.NewInvalidRequest(fmt.Sprintf("arguments are not JSON: %v", err))
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		var typeErr *json.UnmarshalTypeError
		if stderrors.As(err, &typeErr) && typeErr.Field != "" {
			return out, errors.NewInvalidRequest(fmt.Sprintf("%s: expected %s, got %s", typeErr.Field, typeErr.Type, typeErr.Value))
		}
		return out, errors.NewInvalidRequest(err.Error())
	}
	return out, nil
}
