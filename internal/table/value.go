package table

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
)

// Kind is the scalar type held by a cell.
type Kind uint8

const (
	KindEmpty Kind = iota
	KindText
	KindNumber
	KindBool
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	default:
		return "empty"
	}
}

// Value is one cell: text, number, boolean, or empty.
type Value struct {
	Kind Kind
	Text string
	Num  float64
	Bool bool
}

func Text(s string) Value    { return Value{Kind: KindText, Text: s} }
func Number(f float64) Value { return Value{Kind: KindNumber, Num: f} }
func Bool(b bool) Value      { return Value{Kind: KindBool, Bool: b} }

// IsEmpty reports whether the cell holds nothing.
func (v Value) IsEmpty() bool { return v.Kind == KindEmpty }

// String renders the cell the way it would appear in a CSV export.
func (v Value) String() string {
	switch v.Kind {
	case KindText:
		return v.Text
	case KindNumber:
		return strconv.FormatFloat(v.Num, 'f', -1, 64)
	case KindBool:
		if v.Bool {
			return "TRUE"
		}
		return "FALSE"
	default:
		return ""
	}
}

// Float returns the numeric value for number and bool cells.
func (v Value) Float() (float64, bool) {
	switch v.Kind {
	case KindNumber:
		return v.Num, true
	case KindBool:
		if v.Bool {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindText:
		return json.Marshal(v.Text)
	case KindNumber:
		return json.Marshal(v.Num)
	case KindBool:
		return json.Marshal(v.Bool)
	default:
		return []byte("null"), nil
	}
}

func (v *Value) UnmarshalJSON(b []byte) error {
	var raw any
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	switch x := raw.(type) {
	case nil:
		*v = Value{}
	case string:
		*v = Text(x)
	case float64:
		*v = Number(x)
	case bool:
		*v = Bool(x)
	default:
		*v = Text(string(b))
	}
	return nil
}

var _ msgpack.CustomEncoder = Value{}

func (v Value) EncodeMsgpack(enc *msgpack.Encoder) error {
	switch v.Kind {
	case KindText:
		return enc.EncodeString(v.Text)
	case KindNumber:
		return enc.EncodeFloat64(v.Num)
	case KindBool:
		return enc.EncodeBool(v.Bool)
	default:
		return enc.EncodeNil()
	}
}

// ParseCell infers a typed value from raw cell text: numbers, TRUE/FALSE,
// otherwise text. Surrounding whitespace is ignored for inference only.
func ParseCell(s string) Value {
	t := strings.TrimSpace(s)
	if t == "" {
		return Value{}
	}
	switch strings.ToUpper(t) {
	case "TRUE":
		return Bool(true)
	case "FALSE":
		return Bool(false)
	}
	if f, ok := parseStrictFloat(t); ok {
		return Number(f)
	}
	return Text(s)
}

// parseStrictFloat accepts plain decimal and scientific notation only;
// hex floats, Inf and NaN stay text.
func parseStrictFloat(s string) (float64, bool) {
	digits := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9':
			digits = true
		case c == '.' || c == '+' || c == '-' || c == 'e' || c == 'E':
		default:
			return 0, false
		}
	}
	if !digits {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
