package jsonrpc

import (
	"encoding/json"
	"fmt"
)

// ErrorPayload is the error object of a JSON-RPC response. It satisfies
// the go-ethereum rpc.Error and rpc.DataError interfaces.
type ErrorPayload struct {
	Code    int64           `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *ErrorPayload) Error() string {
	return fmt.Sprintf("json-rpc error %d: %s", e.Code, e.Message)
}

func (e *ErrorPayload) ErrorCode() int {
	return int(e.Code)
}

func (e *ErrorPayload) ErrorData() interface{} {
	if len(e.Data) == 0 {
		return nil
	}
	return e.Data
}

// DecodeData unmarshals the optional data member into v.
func (e *ErrorPayload) DecodeData(v interface{}) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("error payload %d has no data", e.Code)
	}
	return json.Unmarshal(e.Data, v)
}
