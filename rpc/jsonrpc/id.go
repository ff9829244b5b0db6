package jsonrpc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// IDKind tells which of the three JSON-RPC id forms an ID holds.
type IDKind uint8

const (
	IDKindNone IDKind = iota
	IDKindNumber
	IDKindString
)

var ErrInvalidID = errors.New("invalid json-rpc id")

// ID is a JSON-RPC request identifier. It is comparable and can be used
// as a map key.
type ID struct {
	kind IDKind
	num  uint64
	str  string
}

func NumberID(n uint64) ID {
	return ID{kind: IDKindNumber, num: n}
}

func StringID(s string) ID {
	return ID{kind: IDKindString, str: s}
}

func NoneID() ID {
	return ID{}
}

func (id ID) Kind() IDKind {
	return id.kind
}

func (id ID) IsNone() bool {
	return id.kind == IDKindNone
}

// Number returns the numeric value and whether the id is a number.
func (id ID) Number() (uint64, bool) {
	return id.num, id.kind == IDKindNumber
}

func (id ID) String() string {
	switch id.kind {
	case IDKindNumber:
		return strconv.FormatUint(id.num, 10)
	case IDKindString:
		return strconv.Quote(id.str)
	default:
		return "null"
	}
}

func (id ID) MarshalJSON() ([]byte, error) {
	switch id.kind {
	case IDKindNumber:
		return []byte(strconv.FormatUint(id.num, 10)), nil
	case IDKindString:
		return json.Marshal(id.str)
	default:
		return []byte("null"), nil
	}
}

func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0:
		return ErrInvalidID
	case bytes.Equal(data, []byte("null")):
		*id = NoneID()
	case data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidID, err)
		}
		*id = StringID(s)
	default:
		n, err := strconv.ParseUint(string(data), 10, 64)
		if err != nil {
			return fmt.Errorf("%w: %s", ErrInvalidID, data)
		}
		*id = NumberID(n)
	}
	return nil
}
