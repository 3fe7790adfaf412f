// Package pyobj decodes pickled Python containers into plain Go values.
//
// Builtin containers come back as gopickle values (dicts, lists, tuples) and are
// reached through AsMapping and AsSequence. datetime, numpy and pandas objects
// that appear in shapelet files are rebuilt into time.Time, native scalars and
// *NDArray. Any other class decodes to an opaque *Object.
package pyobj

import (
	"io"

	"github.com/nlpodyssey/gopickle/pickle"
	"github.com/rotisserie/eris"
)

// Decode reads a single pickled object from r.
func Decode(r io.Reader) (any, error) {
	u := pickle.NewUnpickler(r)
	u.FindClass = findClass
	v, err := u.Load()
	if err != nil {
		return nil, eris.Wrap(err, "pyobj: unpickle")
	}
	return v, nil
}

func findClass(module, name string) (interface{}, error) {
	switch module {
	case "datetime":
		switch name {
		case "date":
			return dateClass{}, nil
		case "datetime":
			return datetimeClass{}, nil
		}
	case "numpy.core.multiarray", "numpy._core.multiarray":
		switch name {
		case "_reconstruct":
			return reconstructFunc{}, nil
		case "scalar":
			return scalarFunc{}, nil
		}
	case "numpy.core.numeric", "numpy._core.numeric":
		if name == "_frombuffer" {
			return frombufferFunc{}, nil
		}
	case "numpy":
		switch name {
		case "dtype":
			return dtypeClass{}, nil
		case "ndarray":
			return &Class{Module: module, Name: name}, nil
		}
	case "_codecs":
		if name == "encode" {
			return codecsEncode{}, nil
		}
	case "pandas._libs.tslibs.timestamps":
		if name == "_unpickle_timestamp" {
			return timestampFunc{}, nil
		}
	}
	return &Class{Module: module, Name: name}, nil
}

// Class stands in for a Python class the decoder does not model.
type Class struct {
	Module string
	Name   string
}

// Call records the constructor arguments on a new opaque object.
func (c *Class) Call(args ...interface{}) (interface{}, error) {
	return &Object{Class: c, Args: args}, nil
}

// PyNew handles NEWOBJ the same way as a plain call.
func (c *Class) PyNew(args ...interface{}) (interface{}, error) {
	return c.Call(args...)
}

// Object is an instance of a Class the decoder does not model.
type Object struct {
	Class *Class
	Args  []any
	State any
}

// PySetState keeps the BUILD state verbatim.
func (o *Object) PySetState(state interface{}) error {
	o.State = state
	return nil
}

// TypeName returns the dotted Python type name.
func (o *Object) TypeName() string {
	return o.Class.Module + "." + o.Class.Name
}

// codecsEncode implements _codecs.encode, which protocol 2 pickles use to carry bytes.
type codecsEncode struct{}

func (codecsEncode) Call(args ...interface{}) (interface{}, error) {
	if len(args) == 0 {
		return nil, eris.New("pyobj: _codecs.encode: missing argument")
	}
	s, ok := args[0].(string)
	if !ok {
		return nil, eris.Errorf("pyobj: _codecs.encode: expected str, got %s", TypeName(args[0]))
	}
	out := make([]byte, 0, len(s))
	for _, r := range s {
		if r > 0xff {
			return nil, eris.Errorf("pyobj: _codecs.encode: rune %U outside latin-1", r)
		}
		out = append(out, byte(r))
	}
	return out, nil
}
