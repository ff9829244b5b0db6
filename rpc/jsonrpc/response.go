package jsonrpc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrResultAndError  = errors.New("response contains both result and error")
	ErrNoResultOrError = errors.New("response contains neither result nor error")
	ErrMissingID       = errors.New("response has no id")
	ErrUnknownItem     = errors.New("item is neither a response nor a notification")
	ErrEmptyPacket     = errors.New("empty packet")
)

// Response is a JSON-RPC reply. Exactly one of Result and Error is set.
type Response struct {
	ID     ID
	Result json.RawMessage
	Error  *ErrorPayload
}

func (r Response) IsError() bool {
	return r.Error != nil
}

type wireResponse struct {
	Version string          `json:"jsonrpc"`
	ID      ID              `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *ErrorPayload   `json:"error,omitempty"`
}

func (r Response) MarshalJSON() ([]byte, error) {
	w := wireResponse{Version: Version, ID: r.ID, Error: r.Error}
	if r.Error == nil {
		w.Result = r.Result
		if len(w.Result) == 0 {
			w.Result = json.RawMessage("null")
		}
	}
	return json.Marshal(w)
}

func (r *Response) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	rawID, ok := fields["id"]
	if !ok {
		return ErrMissingID
	}
	var id ID
	if err := id.UnmarshalJSON(rawID); err != nil {
		return err
	}

	result, hasResult := fields["result"]
	rawErr, hasError := fields["error"]
	if hasError && bytes.Equal(bytes.TrimSpace(rawErr), []byte("null")) {
		hasError = false
	}

	switch {
	case hasResult && hasError:
		return ErrResultAndError
	case hasError:
		payload := new(ErrorPayload)
		if err := json.Unmarshal(rawErr, payload); err != nil {
			return fmt.Errorf("decode error payload: %w", err)
		}
		*r = Response{ID: id, Error: payload}
	case hasResult:
		*r = Response{ID: id, Result: result}
	default:
		return ErrNoResultOrError
	}
	return nil
}

// Notification is a server-initiated subscription message.
type Notification struct {
	Subscription json.RawMessage
	Result       json.RawMessage
}

// SubscriptionKey is the server subscription id in a form usable as a map key.
func (n Notification) SubscriptionKey() string {
	return string(bytes.TrimSpace(n.Subscription))
}

// PubSubItem is anything that can arrive on a duplex connection.
type PubSubItem struct {
	Response     *Response
	Notification *Notification
}

func (p *PubSubItem) UnmarshalJSON(data []byte) error {
	var probe struct {
		ID     json.RawMessage `json:"id"`
		Method string          `json:"method"`
		Params *struct {
			Subscription json.RawMessage `json:"subscription"`
			Result       json.RawMessage `json:"result"`
		} `json:"params"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}

	noID := len(probe.ID) == 0 || bytes.Equal(bytes.TrimSpace(probe.ID), []byte("null"))
	if noID && probe.Params != nil && len(probe.Params.Subscription) > 0 {
		*p = PubSubItem{Notification: &Notification{
			Subscription: probe.Params.Subscription,
			Result:       probe.Params.Result,
		}}
		return nil
	}

	if len(probe.ID) == 0 {
		return ErrUnknownItem
	}

	resp := new(Response)
	if err := resp.UnmarshalJSON(data); err != nil {
		return err
	}
	*p = PubSubItem{Response: resp}
	return nil
}

// RequestPacket is either a single serialized request or a batch.
type RequestPacket struct {
	Single *SerializedRequest
	Batch  []SerializedRequest
}

func SinglePacket(req SerializedRequest) RequestPacket {
	return RequestPacket{Single: &req}
}

func BatchPacket(reqs []SerializedRequest) RequestPacket {
	return RequestPacket{Batch: reqs}
}

func (p RequestPacket) IsBatch() bool {
	return p.Single == nil
}

func (p RequestPacket) IsEmpty() bool {
	return p.Single == nil && len(p.Batch) == 0
}

// Requests returns the packet content as a slice, in order.
func (p RequestPacket) Requests() []SerializedRequest {
	if p.Single != nil {
		return []SerializedRequest{*p.Single}
	}
	return p.Batch
}

// Methods lists the methods carried by the packet.
func (p RequestPacket) Methods() []string {
	reqs := p.Requests()
	methods := make([]string, 0, len(reqs))
	for _, r := range reqs {
		methods = append(methods, r.Method())
	}
	return methods
}

func (p RequestPacket) MarshalJSON() ([]byte, error) {
	if p.Single != nil {
		return p.Single.raw, nil
	}
	if len(p.Batch) == 0 {
		return nil, ErrEmptyPacket
	}
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, r := range p.Batch {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.Write(r.raw)
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

// ResponsePacket is either a single response or a batch of responses.
type ResponsePacket struct {
	Single *Response
	Batch  []Response
}

func (p ResponsePacket) IsBatch() bool {
	return p.Single == nil
}

func (p ResponsePacket) Responses() []Response {
	if p.Single != nil {
		return []Response{*p.Single}
	}
	return p.Batch
}

// FirstError returns the first error payload in the packet, if any.
func (p ResponsePacket) FirstError() *ErrorPayload {
	for _, r := range p.Responses() {
		if r.Error != nil {
			return r.Error
		}
	}
	return nil
}

func (p ResponsePacket) MarshalJSON() ([]byte, error) {
	if p.Single != nil {
		return json.Marshal(p.Single)
	}
	return json.Marshal(p.Batch)
}

func (p *ResponsePacket) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return ErrEmptyPacket
	}
	if data[0] == '[' {
		var batch []Response
		if err := json.Unmarshal(data, &batch); err != nil {
			return err
		}
		*p = ResponsePacket{Batch: batch}
		return nil
	}
	single := new(Response)
	if err := json.Unmarshal(data, single); err != nil {
		return err
	}
	*p = ResponsePacket{Single: single}
	return nil
}
