package bridge

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
)

const (
	codeInvalidParams  = -32602
	codeMethodNotFound = -32601
	codeServerError    = -32000
)

func idKey(id jsonrpc.ID) (string, error) {
	if !id.IsValid() {
		return "", errors.New("missing request id")
	}
	switch typed := id.Raw().(type) {
	case string:
		return "s:" + typed, nil
	case float64:
		return fmt.Sprintf("n:%v", typed), nil
	case int64:
		return fmt.Sprintf("n:%v", typed), nil
	case json.Number:
		return "n:" + typed.String(), nil
	default:
		return "", fmt.Errorf("unsupported id type %T", typed)
	}
}

// errorResponse builds a response carrying a wire error with code. Going
// through the decoder keeps the code intact when the response is encoded.
func errorResponse(id jsonrpc.ID, code int, message string) *jsonrpc.Response {
	fallback := &jsonrpc.Response{ID: id, Error: errors.New(message)}
	raw, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      id.Raw(),
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
	})
	if err != nil {
		return fallback
	}
	msg, err := jsonrpc.DecodeMessage(raw)
	if err != nil {
		return fallback
	}
	resp, ok := msg.(*jsonrpc.Response)
	if !ok {
		return fallback
	}
	return resp
}
