// wire.go defines the flat JSON record format posted to the ingestion
// endpoint.
//
// Numbers survive a round trip with their Go type: integers are written
// without a decimal point and floats always carry one (or an exponent),
// so DecodeBatch restores int64 and float64 exactly.

package beacon

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"
)

// commonFields are the record keys owned by Record itself. Payload
// fields with these names are ignored.
var commonFields = map[string]struct{}{
	"event_id":         {},
	"event_type":       {},
	"event_name":       {},
	"timestamp":        {},
	"session_id":       {},
	"app_id":           {},
	"fingerprint":      {},
	"tier":             {},
	"sampling_rate":    {},
	"sampling_sampled": {},
	"dedup_count":      {},
	"replay_id":        {},
}

// Record is one flattened event on the wire.
type Record struct {
	EventID         string
	EventType       Category
	EventName       string
	Timestamp       int64 // unix milliseconds
	SessionID       string
	AppID           string
	Fingerprint     string
	Tier            Tier
	SamplingRate    float64
	SamplingSampled bool
	DedupCount      int
	ReplayID        string

	// Fields holds the category-namespaced payload fields. Values are
	// nil, bool, string, int64, float64, []any or map[string]any after
	// decoding; encoding also accepts other integer and float kinds and
	// string maps and slices.
	Fields map[string]any
}

// NewRecord flattens an event. The dedup count is read as it is at call
// time; callers seal the event first when the record is for delivery.
func NewRecord(ev *Event, appID string) Record {
	return Record{
		EventID:         ev.ID,
		EventType:       ev.Category,
		EventName:       ev.Name,
		Timestamp:       ev.Timestamp.UnixMilli(),
		SessionID:       ev.SessionID,
		AppID:           appID,
		Fingerprint:     ev.Fingerprint,
		Tier:            ev.Tier,
		SamplingRate:    ev.SamplingRate,
		SamplingSampled: ev.Sampled,
		DedupCount:      ev.DedupCount(),
		ReplayID:        ev.ReplayID,
		Fields:          ev.Payload,
	}
}

// Time returns the record timestamp.
func (r Record) Time() time.Time {
	return time.UnixMilli(r.Timestamp)
}

// MarshalJSON writes the record as one flat object with sorted payload
// keys. It fails with ErrSerialization for NaN, infinities and
// unsupported value types.
func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	w := &objectWriter{buf: &buf}

	w.str("event_id", r.EventID)
	w.str("event_type", string(r.EventType))
	w.optStr("event_name", r.EventName)
	w.raw("timestamp", strconv.AppendInt(nil, r.Timestamp, 10))
	w.optStr("session_id", r.SessionID)
	w.optStr("app_id", r.AppID)
	w.str("fingerprint", r.Fingerprint)
	w.str("tier", string(r.Tier))
	rate, err := appendFloat(nil, r.SamplingRate)
	if err != nil {
		return nil, fmt.Errorf("sampling_rate: %w", err)
	}
	w.raw("sampling_rate", rate)
	w.raw("sampling_sampled", strconv.AppendBool(nil, r.SamplingSampled))
	w.raw("dedup_count", strconv.AppendInt(nil, int64(r.DedupCount), 10))
	w.optStr("replay_id", r.ReplayID)

	for _, k := range sortedKeys(r.Fields) {
		if _, reserved := commonFields[k]; reserved {
			continue
		}
		v, err := appendValue(nil, r.Fields[k])
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
		w.raw(k, v)
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a flat record, restoring integers as int64 and
// decimals as float64.
func (r *Record) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return err
	}
	fields := restoreNumbers(obj).(map[string]any)

	*r = Record{}
	r.EventID, _ = take[string](fields, "event_id")
	eventType, _ := take[string](fields, "event_type")
	r.EventType = Category(eventType)
	r.EventName, _ = take[string](fields, "event_name")
	r.Timestamp, _ = take[int64](fields, "timestamp")
	r.SessionID, _ = take[string](fields, "session_id")
	r.AppID, _ = take[string](fields, "app_id")
	r.Fingerprint, _ = take[string](fields, "fingerprint")
	tier, _ := take[string](fields, "tier")
	r.Tier = Tier(tier)
	r.SamplingRate, _ = take[float64](fields, "sampling_rate")
	r.SamplingSampled, _ = take[bool](fields, "sampling_sampled")
	dedup, _ := take[int64](fields, "dedup_count")
	r.DedupCount = int(dedup)
	r.ReplayID, _ = take[string](fields, "replay_id")
	if len(fields) > 0 {
		r.Fields = fields
	}
	return nil
}

// take removes key from m and returns it when it has type T.
func take[T any](m map[string]any, key string) (T, bool) {
	v, ok := m[key].(T)
	delete(m, key)
	return v, ok
}

// EncodeBatch writes records as a JSON array.
func EncodeBatch(records []Record) ([]byte, error) {
	encoded := make([][]byte, len(records))
	for i, r := range records {
		b, err := r.MarshalJSON()
		if err != nil {
			return nil, fmt.Errorf("%w: record %s: %w", ErrSerialization, r.EventID, err)
		}
		encoded[i] = b
	}
	return joinArray(encoded), nil
}

// DecodeBatch parses a JSON array of records.
func DecodeBatch(data []byte) ([]Record, error) {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, fmt.Errorf("decode batch: %w", err)
	}
	out := make([]Record, len(raws))
	for i, raw := range raws {
		if err := out[i].UnmarshalJSON(raw); err != nil {
			return nil, fmt.Errorf("decode record %d: %w", i, err)
		}
	}
	return out, nil
}

func joinArray(encoded [][]byte) []byte {
	size := 2
	for _, b := range encoded {
		size += len(b) + 1
	}
	out := make([]byte, 0, size)
	out = append(out, '[')
	for i, b := range encoded {
		if i > 0 {
			out = append(out, ',')
		}
		out = append(out, b...)
	}
	return append(out, ']')
}

type objectWriter struct {
	buf   *bytes.Buffer
	count int
}

func (w *objectWriter) raw(key string, value []byte) {
	if w.count > 0 {
		w.buf.WriteByte(',')
	}
	w.count++
	w.buf.Write(appendString(nil, key))
	w.buf.WriteByte(':')
	w.buf.Write(value)
}

func (w *objectWriter) str(key, value string) {
	w.raw(key, appendString(nil, value))
}

func (w *objectWriter) optStr(key, value string) {
	if value != "" {
		w.str(key, value)
	}
}

func appendString(dst []byte, s string) []byte {
	// Marshalling a string cannot fail.
	b, _ := json.Marshal(s)
	return append(dst, b...)
}

// appendFloat writes f so that it always decodes back as a float.
func appendFloat(dst []byte, f float64) ([]byte, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("%w: unsupported float value %v", ErrSerialization, f)
	}
	format := byte('f')
	if abs := math.Abs(f); abs != 0 && (abs < 1e-6 || abs >= 1e21) {
		format = 'e'
	}
	start := len(dst)
	dst = strconv.AppendFloat(dst, f, format, -1, 64)
	if !bytes.ContainsAny(dst[start:], ".e") {
		dst = append(dst, '.', '0')
	}
	return dst, nil
}

func appendValue(dst []byte, v any) ([]byte, error) {
	switch x := v.(type) {
	case nil:
		return append(dst, "null"...), nil
	case bool:
		return strconv.AppendBool(dst, x), nil
	case string:
		return appendString(dst, x), nil
	case int:
		return strconv.AppendInt(dst, int64(x), 10), nil
	case int8:
		return strconv.AppendInt(dst, int64(x), 10), nil
	case int16:
		return strconv.AppendInt(dst, int64(x), 10), nil
	case int32:
		return strconv.AppendInt(dst, int64(x), 10), nil
	case int64:
		return strconv.AppendInt(dst, x, 10), nil
	case uint8:
		return strconv.AppendUint(dst, uint64(x), 10), nil
	case uint16:
		return strconv.AppendUint(dst, uint64(x), 10), nil
	case uint32:
		return strconv.AppendUint(dst, uint64(x), 10), nil
	case uint:
		if uint64(x) > math.MaxInt64 {
			return nil, fmt.Errorf("%w: integer %d overflows int64", ErrSerialization, x)
		}
		return strconv.AppendUint(dst, uint64(x), 10), nil
	case uint64:
		if x > math.MaxInt64 {
			return nil, fmt.Errorf("%w: integer %d overflows int64", ErrSerialization, x)
		}
		return strconv.AppendUint(dst, x, 10), nil
	case float32:
		return appendFloat(dst, float64(x))
	case float64:
		return appendFloat(dst, x)
	case []any:
		return appendSlice(dst, x)
	case []string:
		return appendSlice(dst, x)
	case []int64:
		return appendSlice(dst, x)
	case []float64:
		return appendSlice(dst, x)
	case map[string]any:
		return appendMap(dst, x)
	case map[string]string:
		return appendMap(dst, x)
	default:
		return nil, fmt.Errorf("%w: unsupported type %T", ErrSerialization, v)
	}
}

func appendSlice[T any](dst []byte, items []T) ([]byte, error) {
	dst = append(dst, '[')
	for i, item := range items {
		if i > 0 {
			dst = append(dst, ',')
		}
		var err error
		if dst, err = appendValue(dst, item); err != nil {
			return nil, err
		}
	}
	return append(dst, ']'), nil
}

func appendMap[T any](dst []byte, m map[string]T) ([]byte, error) {
	dst = append(dst, '{')
	for i, k := range sortedKeys(m) {
		if i > 0 {
			dst = append(dst, ',')
		}
		dst = appendString(dst, k)
		dst = append(dst, ':')
		var err error
		if dst, err = appendValue(dst, m[k]); err != nil {
			return nil, err
		}
	}
	return append(dst, '}'), nil
}

func sortedKeys[T any](m map[string]T) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// restoreNumbers replaces json.Number values: integers become int64 and
// anything with a fraction or exponent becomes float64.
func restoreNumbers(v any) any {
	switch x := v.(type) {
	case json.Number:
		s := x.String()
		if !strings.ContainsAny(s, ".eE") {
			if n, err := x.Int64(); err == nil {
				return n
			}
		}
		f, _ := x.Float64()
		return f
	case map[string]any:
		for k, item := range x {
			x[k] = restoreNumbers(item)
		}
		return x
	case []any:
		for i, item := range x {
			x[i] = restoreNumbers(item)
		}
		return x
	default:
		return v
	}
}
