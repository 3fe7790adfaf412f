package pyobj

import (
	"time"

	"github.com/rotisserie/eris"
)

// dateClass rebuilds datetime.date from its 4-byte pickle state or from
// explicit (year, month, day) arguments.
type dateClass struct{}

func (dateClass) Call(args ...interface{}) (interface{}, error) {
	if len(args) == 0 {
		return nil, eris.New("pyobj: datetime.date: missing state")
	}
	if raw, ok := asBytes(args[0]); ok {
		if len(raw) != 4 {
			return nil, eris.Errorf("pyobj: datetime.date: state has %d bytes, want 4", len(raw))
		}
		return time.Date(int(raw[0])<<8|int(raw[1]), time.Month(raw[2]), int(raw[3]), 0, 0, 0, 0, time.UTC), nil
	}
	return timeFromInts("datetime.date", args)
}

// datetimeClass rebuilds datetime.datetime. Timezone arguments are ignored
// and the wall clock is read as UTC.
type datetimeClass struct{}

func (datetimeClass) Call(args ...interface{}) (interface{}, error) {
	if len(args) == 0 {
		return nil, eris.New("pyobj: datetime.datetime: missing state")
	}
	if raw, ok := asBytes(args[0]); ok {
		if len(raw) != 10 {
			return nil, eris.Errorf("pyobj: datetime.datetime: state has %d bytes, want 10", len(raw))
		}
		us := int(raw[7])<<16 | int(raw[8])<<8 | int(raw[9])
		return time.Date(
			int(raw[0])<<8|int(raw[1]), time.Month(raw[2]&0x7f), int(raw[3]),
			int(raw[4]), int(raw[5]), int(raw[6]), us*int(time.Microsecond), time.UTC,
		), nil
	}
	return timeFromInts("datetime.datetime", args)
}

func timeFromInts(what string, args []any) (time.Time, error) {
	var parts [7]int
	parts[1], parts[2] = 1, 1
	for i, a := range args {
		if i >= len(parts) {
			break
		}
		n, ok := asInt(a)
		if !ok {
			if i >= 3 {
				break // trailing tzinfo
			}
			return time.Time{}, eris.Errorf("pyobj: %s: argument %d is %s", what, i, TypeName(a))
		}
		parts[i] = int(n)
	}
	if len(args) < 3 {
		return time.Time{}, eris.Errorf("pyobj: %s: expected at least 3 arguments, got %d", what, len(args))
	}
	return time.Date(parts[0], time.Month(parts[1]), parts[2], parts[3], parts[4], parts[5],
		parts[6]*int(time.Microsecond), time.UTC), nil
}

// numpy datetime unit codes used by pandas to tag the timestamp resolution.
const (
	unitSeconds = 7
	unitMillis  = 8
	unitMicros  = 9
	unitNanos   = 10
)

// timestampFunc implements pandas _unpickle_timestamp(value, freq, tz[, reso]).
type timestampFunc struct{}

func (timestampFunc) Call(args ...interface{}) (interface{}, error) {
	if len(args) == 0 {
		return nil, eris.New("pyobj: pandas timestamp: missing value")
	}
	v, ok := asInt(args[0])
	if !ok {
		return nil, eris.Errorf("pyobj: pandas timestamp: value is %s", TypeName(args[0]))
	}
	unit := int64(unitNanos)
	if len(args) > 3 {
		if u, ok := asInt(args[3]); ok {
			unit = u
		}
	}
	switch unit {
	case unitSeconds:
		return time.Unix(v, 0).UTC(), nil
	case unitMillis:
		return time.UnixMilli(v).UTC(), nil
	case unitMicros:
		return time.UnixMicro(v).UTC(), nil
	default:
		return time.Unix(0, v).UTC(), nil
	}
}
