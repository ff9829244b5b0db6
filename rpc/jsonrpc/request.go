package jsonrpc

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

const Version = "2.0"

// RequestMeta is what the client needs to correlate a request once it has
// been serialized.
type RequestMeta struct {
	Method         string
	ID             ID
	IsSubscription bool
}

// Request is a JSON-RPC call before serialization.
type Request struct {
	Method         string
	ID             ID
	Params         interface{}
	IsSubscription bool
}

func NewRequest(method string, id ID, params interface{}) Request {
	return Request{Method: method, ID: id, Params: params}
}

type wireRequest struct {
	Version string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      ID              `json:"id"`
}

func (r Request) Meta() RequestMeta {
	return RequestMeta{Method: r.Method, ID: r.ID, IsSubscription: r.IsSubscription}
}

// Serialize encodes the request once. Params of a zero-sized type are
// omitted from the wire form.
func (r Request) Serialize() (SerializedRequest, error) {
	var params json.RawMessage
	if !omitParams(r.Params) {
		raw, err := json.Marshal(r.Params)
		if err != nil {
			return SerializedRequest{}, fmt.Errorf("encode params of %s: %w", r.Method, err)
		}
		params = raw
	}

	raw, err := json.Marshal(wireRequest{
		Version: Version,
		Method:  r.Method,
		Params:  params,
		ID:      r.ID,
	})
	if err != nil {
		return SerializedRequest{}, fmt.Errorf("encode request %s: %w", r.Method, err)
	}

	return SerializedRequest{meta: r.Meta(), params: params, raw: raw}, nil
}

func omitParams(params interface{}) bool {
	if params == nil {
		return true
	}
	if raw, ok := params.(json.RawMessage); ok && raw == nil {
		return true
	}
	v := reflect.ValueOf(params)
	if (v.Kind() == reflect.Ptr || v.Kind() == reflect.Interface) && v.IsNil() {
		return true
	}
	return v.Type().Size() == 0
}

// SerializedRequest holds the bytes of a request together with its
// correlation metadata. The bytes are sent as-is, including on replay.
type SerializedRequest struct {
	meta   RequestMeta
	params json.RawMessage
	raw    json.RawMessage
}

func (r SerializedRequest) Meta() RequestMeta {
	return r.meta
}

func (r SerializedRequest) ID() ID {
	return r.meta.ID
}

func (r SerializedRequest) Method() string {
	return r.meta.Method
}

func (r SerializedRequest) IsSubscription() bool {
	return r.meta.IsSubscription
}

// Params returns the encoded params, nil when they were omitted.
func (r SerializedRequest) Params() json.RawMessage {
	return r.params
}

// ParamsHash identifies a request by method and params, ignoring its id.
func (r SerializedRequest) ParamsHash() common.Hash {
	return crypto.Keccak256Hash([]byte(r.meta.Method), r.params)
}

func (r SerializedRequest) Bytes() []byte {
	return r.raw
}

func (r SerializedRequest) MarshalJSON() ([]byte, error) {
	return r.raw, nil
}
