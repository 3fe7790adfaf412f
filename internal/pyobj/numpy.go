package pyobj

import (
	"encoding/binary"
	"math"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// DType describes the element layout of a numpy array or scalar.
type DType struct {
	Kind      byte // f i u b U S O, or M m c V kept as raw bytes
	ItemSize  int
	ByteOrder binary.ByteOrder
}

var dtypeAliases = map[string]string{
	"float64": "f8", "float32": "f4", "float16": "f2", "double": "f8",
	"int64": "i8", "int32": "i4", "int16": "i2", "int8": "i1",
	"uint64": "u8", "uint32": "u4", "uint16": "u2", "uint8": "u1",
	"bool": "b1", "object": "O8",
}

// ParseDType parses a numpy type string such as "f8", "<i4" or "float64".
func ParseDType(spec string) (*DType, error) {
	s := spec
	if a, ok := dtypeAliases[s]; ok {
		s = a
	}
	d := &DType{ByteOrder: binary.LittleEndian}
	if s != "" {
		switch s[0] {
		case '<', '=', '|':
			s = s[1:]
		case '>':
			d.ByteOrder = binary.BigEndian
			s = s[1:]
		}
	}
	if s == "" {
		return nil, eris.Errorf("pyobj: empty dtype %q", spec)
	}
	d.Kind = s[0]
	switch d.Kind {
	case 'f', 'i', 'u', 'b', 'U', 'S', 'O', 'M', 'm', 'c', 'V':
	case '?':
		d.Kind = 'b'
	default:
		return nil, eris.Errorf("pyobj: unsupported dtype %q", spec)
	}
	if rest := s[1:]; rest != "" {
		if i := strings.IndexByte(rest, '['); i >= 0 {
			rest = rest[:i]
		}
		n, err := strconv.Atoi(rest)
		if err != nil {
			return nil, eris.Wrapf(err, "pyobj: dtype %q", spec)
		}
		d.ItemSize = n
		if d.Kind == 'U' {
			d.ItemSize = n * 4
		}
	} else if d.Kind == 'b' {
		d.ItemSize = 1
	}
	return d, nil
}

// PySetState applies the dtype BUILD state (version, byteorder, ..., elsize, ...).
func (d *DType) PySetState(state interface{}) error {
	items, ok := AsSequence(state)
	if !ok || len(items) < 2 {
		return nil
	}
	if bo, ok := items[1].(string); ok && bo == ">" {
		d.ByteOrder = binary.BigEndian
	}
	if len(items) > 5 {
		if n, ok := asInt(items[5]); ok && n > 0 {
			d.ItemSize = int(n)
		}
	}
	return nil
}

type dtypeClass struct{}

func (dtypeClass) Call(args ...interface{}) (interface{}, error) {
	if len(args) == 0 {
		return nil, eris.New("pyobj: numpy.dtype: missing type string")
	}
	spec, ok := args[0].(string)
	if !ok {
		return nil, eris.Errorf("pyobj: numpy.dtype: expected str, got %s", TypeName(args[0]))
	}
	return ParseDType(spec)
}

// decode converts the raw bytes of one element.
func (d *DType) decode(b []byte) (any, error) {
	if len(b) < d.ItemSize {
		return nil, eris.Errorf("pyobj: short element: need %d bytes, have %d", d.ItemSize, len(b))
	}
	bo := d.ByteOrder
	switch d.Kind {
	case 'f':
		switch d.ItemSize {
		case 8:
			return math.Float64frombits(bo.Uint64(b)), nil
		case 4:
			return float64(math.Float32frombits(bo.Uint32(b))), nil
		case 2:
			return float16(bo.Uint16(b)), nil
		}
	case 'i':
		switch d.ItemSize {
		case 8:
			return int64(bo.Uint64(b)), nil
		case 4:
			return int64(int32(bo.Uint32(b))), nil
		case 2:
			return int64(int16(bo.Uint16(b))), nil
		case 1:
			return int64(int8(b[0])), nil
		}
	case 'u':
		switch d.ItemSize {
		case 8:
			return bo.Uint64(b), nil
		case 4:
			return uint64(bo.Uint32(b)), nil
		case 2:
			return uint64(bo.Uint16(b)), nil
		case 1:
			return uint64(b[0]), nil
		}
	case 'b':
		return b[0] != 0, nil
	case 'S':
		return strings.TrimRight(string(b[:d.ItemSize]), "\x00"), nil
	case 'U':
		var sb strings.Builder
		for i := 0; i+4 <= d.ItemSize; i += 4 {
			r := rune(bo.Uint32(b[i:]))
			if r == 0 {
				break
			}
			sb.WriteRune(r)
		}
		return sb.String(), nil
	}
	return nil, eris.Errorf("pyobj: unsupported dtype %c%d", d.Kind, d.ItemSize)
}

func float16(h uint16) float64 {
	sign := 1.0
	if h&0x8000 != 0 {
		sign = -1
	}
	exp := int(h>>10) & 0x1f
	frac := float64(h & 0x3ff)
	switch exp {
	case 0:
		return sign * frac * math.Pow(2, -24)
	case 0x1f:
		if frac == 0 {
			return math.Inf(int(sign))
		}
		return math.NaN()
	}
	return sign * (1 + frac/1024) * math.Pow(2, float64(exp-15))
}

func (d *DType) decodable() bool {
	return strings.IndexByte("fiubUSO", d.Kind) >= 0
}

// NDArray is a decoded numpy array, flattened in storage order. Arrays whose
// dtype has no Go counterpart keep their buffer in Raw and leave Values nil.
type NDArray struct {
	Shape   []int
	DType   *DType
	Fortran bool
	Values  []any
	Raw     []byte
}

// Len returns the number of elements.
func (a *NDArray) Len() int { return len(a.Values) }

// Float64s returns the elements as float64, failing on non-numeric entries.
func (a *NDArray) Float64s() ([]float64, error) {
	if a.Values == nil && a.Raw != nil {
		return nil, eris.Errorf("pyobj: dtype %c is not numeric", a.DType.Kind)
	}
	out := make([]float64, len(a.Values))
	for i, v := range a.Values {
		f, ok := AsFloat(v)
		if !ok {
			return nil, eris.Errorf("pyobj: element %d is %s, not numeric", i, TypeName(v))
		}
		out[i] = f
	}
	return out, nil
}

// PySetState applies the ndarray BUILD state (version, shape, dtype, fortran, data).
func (a *NDArray) PySetState(state interface{}) error {
	items, ok := AsSequence(state)
	if !ok || len(items) < 5 {
		return eris.New("pyobj: ndarray: malformed state")
	}
	shapeSeq, ok := AsSequence(items[1])
	if !ok {
		return eris.New("pyobj: ndarray: malformed shape")
	}
	a.Shape = a.Shape[:0]
	for _, s := range shapeSeq {
		n, ok := asInt(s)
		if !ok {
			return eris.New("pyobj: ndarray: non-integer dimension")
		}
		a.Shape = append(a.Shape, int(n))
	}
	dt, ok := items[2].(*DType)
	if !ok {
		return eris.Errorf("pyobj: ndarray: unexpected dtype %s", TypeName(items[2]))
	}
	a.DType = dt
	a.Fortran, _ = items[3].(bool)
	return a.fill(items[4])
}

func (a *NDArray) fill(data any) error {
	if seq, ok := AsSequence(data); ok && a.DType.Kind == 'O' {
		a.Values = append([]any(nil), seq...)
		return nil
	}
	raw, ok := asBytes(data)
	if !ok {
		return eris.Errorf("pyobj: ndarray: unexpected buffer %s", TypeName(data))
	}
	if !a.DType.decodable() {
		a.Raw = raw
		return nil
	}
	size := a.DType.ItemSize
	if size <= 0 {
		return eris.New("pyobj: ndarray: zero item size")
	}
	if len(raw)%size != 0 {
		return eris.Errorf("pyobj: ndarray: buffer of %d bytes is not a multiple of %d", len(raw), size)
	}
	a.Values = make([]any, 0, len(raw)/size)
	for off := 0; off < len(raw); off += size {
		v, err := a.DType.decode(raw[off : off+size])
		if err != nil {
			return err
		}
		a.Values = append(a.Values, v)
	}
	return nil
}

// reconstructFunc implements numpy.core.multiarray._reconstruct. The array
// body arrives afterwards through BUILD.
type reconstructFunc struct{}

func (reconstructFunc) Call(args ...interface{}) (interface{}, error) {
	return &NDArray{}, nil
}

// frombufferFunc implements numpy.core.numeric._frombuffer(buf, dtype, shape, order)
// emitted by protocol 5 pickles.
type frombufferFunc struct{}

func (frombufferFunc) Call(args ...interface{}) (interface{}, error) {
	if len(args) < 3 {
		return nil, eris.New("pyobj: _frombuffer: expected (buffer, dtype, shape, order)")
	}
	dt, ok := args[1].(*DType)
	if !ok {
		return nil, eris.Errorf("pyobj: _frombuffer: unexpected dtype %s", TypeName(args[1]))
	}
	a := &NDArray{DType: dt}
	if shape, ok := AsSequence(args[2]); ok {
		for _, s := range shape {
			n, _ := asInt(s)
			a.Shape = append(a.Shape, int(n))
		}
	}
	if len(args) > 3 {
		a.Fortran = args[3] == "F"
	}
	if err := a.fill(args[0]); err != nil {
		return nil, err
	}
	return a, nil
}

// scalarFunc implements numpy.core.multiarray.scalar(dtype, bytes).
type scalarFunc struct{}

func (scalarFunc) Call(args ...interface{}) (interface{}, error) {
	if len(args) < 2 {
		return nil, eris.New("pyobj: numpy scalar: expected (dtype, data)")
	}
	dt, ok := args[0].(*DType)
	if !ok {
		return nil, eris.Errorf("pyobj: numpy scalar: unexpected dtype %s", TypeName(args[0]))
	}
	if dt.Kind == 'O' {
		return args[1], nil
	}
	raw, ok := asBytes(args[1])
	if !ok {
		return nil, eris.Errorf("pyobj: numpy scalar: unexpected data %s", TypeName(args[1]))
	}
	if dt.ItemSize == 0 {
		dt.ItemSize = len(raw)
	}
	return dt.decode(raw)
}
