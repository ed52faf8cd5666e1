/*
Copyright 2026 The ReQL Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package reqltypes

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"reql.io/reql/go/log"
)

// reqlTypeKey is the reserved object key marking a compound datum.
const reqlTypeKey = "$reql_type$"

// DecodeDatum parses one JSON datum into a Value, rewriting reserved
// $reql_type$ compounds. Numbers are kept lossless: a JSON number written
// as a plain integer that fits in an int64 decodes as Int; one with a
// fraction or exponent, or out of int64 range, decodes as Float.
func DecodeDatum(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return NULL, fmt.Errorf("reqltypes: invalid datum: %w", err)
	}
	// Reject trailing garbage after the first JSON value.
	if dec.More() {
		return NULL, fmt.Errorf("reqltypes: trailing data after datum")
	}
	return fromJSON(raw)
}

// DecodeArray parses a JSON array of datums. The result array of a
// response envelope goes through here.
func DecodeArray(data []byte) ([]Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw []any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("reqltypes: invalid datum array: %w", err)
	}
	values := make([]Value, len(raw))
	for i, e := range raw {
		v, err := fromJSON(e)
		if err != nil {
			return nil, err
		}
		values[i] = v
	}
	return values, nil
}

func fromJSON(raw any) (Value, error) {
	switch val := raw.(type) {
	case nil:
		return NULL, nil
	case bool:
		return NewBool(val), nil
	case json.Number:
		return numberValue(val)
	case string:
		return NewString(val), nil
	case []any:
		arr := make([]Value, len(val))
		for i, e := range val {
			v, err := fromJSON(e)
			if err != nil {
				return NULL, err
			}
			arr[i] = v
		}
		return NewArray(arr), nil
	case map[string]any:
		return objectValue(val)
	}
	return NULL, fmt.Errorf("reqltypes: unexpected JSON value %T", raw)
}

func numberValue(n json.Number) (Value, error) {
	// Integers stay integers. strconv fails on "1.0" or out-of-range
	// values, which then fall through to the float path.
	if i, err := strconv.ParseInt(n.String(), 10, 64); err == nil {
		return NewInt(i), nil
	}
	f, err := n.Float64()
	if err != nil {
		return NULL, fmt.Errorf("reqltypes: invalid number %q", n.String())
	}
	return NewFloat(f), nil
}

func objectValue(fields map[string]any) (Value, error) {
	tag, _ := fields[reqlTypeKey].(string)
	switch tag {
	case "TIME":
		return timeValue(fields)
	case "BINARY":
		return binaryValue(fields)
	case "":
		// Either no $reql_type$ at all, or one that is not a string.
		// A non-string tag is nonsense; pass it through like any
		// other object.
	default:
		// Unrecognized compound (GEOMETRY, GROUPED_DATA, ...): keep
		// the raw object so callers lose nothing.
		log.Warningf("passing through unhandled $reql_type$ %q", tag)
	}
	obj := make(map[string]Value, len(fields))
	for k, e := range fields {
		v, err := fromJSON(e)
		if err != nil {
			return NULL, err
		}
		obj[k] = v
	}
	return NewObject(obj), nil
}

// timeValue decodes {"$reql_type$":"TIME","epoch_time":…,"timezone":…}.
// The timezone is an ISO-8601 offset; the resulting time.Time carries a
// fixed zone with that offset, localizing the epoch instant.
func timeValue(fields map[string]any) (Value, error) {
	epoch, ok := fields["epoch_time"].(json.Number)
	if !ok {
		return NULL, fmt.Errorf("reqltypes: TIME datum is missing epoch_time")
	}
	seconds, err := epoch.Float64()
	if err != nil {
		return NULL, fmt.Errorf("reqltypes: TIME epoch_time %q is not a number", epoch.String())
	}

	offset := 0
	if tz, ok := fields["timezone"]; ok {
		tzStr, ok := tz.(string)
		if !ok {
			return NULL, fmt.Errorf("reqltypes: TIME timezone is not a string")
		}
		offset, err = parseOffset(tzStr)
		if err != nil {
			return NULL, err
		}
	}

	// The fraction is rounded to whole microseconds: at present-day epoch
	// magnitudes a float64 holds no finer precision, and rounding at the
	// nanosecond would turn 0.681 into 0.680999994.
	sec, frac := math.Modf(seconds)
	t := time.Unix(int64(sec), int64(math.Round(frac*1e6))*1e3)
	if offset == 0 {
		return NewTime(t.UTC()), nil
	}
	return NewTime(t.In(time.FixedZone(formatOffset(offset), offset))), nil
}

// parseOffset accepts the ISO-8601 offset forms the server may emit: "Z",
// "±HH:MM", "±HHMM" and "±HH". Returns seconds east of UTC.
func parseOffset(tz string) (int, error) {
	if tz == "" || tz == "Z" || tz == "z" {
		return 0, nil
	}
	sign := 1
	switch tz[0] {
	case '+':
	case '-':
		sign = -1
	default:
		return 0, fmt.Errorf("reqltypes: invalid timezone offset %q", tz)
	}
	body := tz[1:]
	var hhStr, mmStr string
	switch {
	case len(body) == 5 && body[2] == ':':
		hhStr, mmStr = body[:2], body[3:]
	case len(body) == 4:
		hhStr, mmStr = body[:2], body[2:]
	case len(body) == 2:
		hhStr, mmStr = body, "00"
	default:
		return 0, fmt.Errorf("reqltypes: invalid timezone offset %q", tz)
	}
	hh, err := parseOffsetDigits(hhStr)
	if err != nil || hh > 23 {
		return 0, fmt.Errorf("reqltypes: invalid timezone offset %q", tz)
	}
	mm, err := parseOffsetDigits(mmStr)
	if err != nil || mm > 59 {
		return 0, fmt.Errorf("reqltypes: invalid timezone offset %q", tz)
	}
	return sign * (hh*3600 + mm*60), nil
}

// parseOffsetDigits parses a two-digit field, rejecting signs and spaces
// that strconv would otherwise let through.
func parseOffsetDigits(s string) (int, error) {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, fmt.Errorf("reqltypes: not a digit pair: %q", s)
		}
	}
	return strconv.Atoi(s)
}

func formatOffset(offset int) string {
	sign := "+"
	if offset < 0 {
		sign = "-"
		offset = -offset
	}
	return fmt.Sprintf("%s%02d:%02d", sign, offset/3600, (offset%3600)/60)
}

// binaryValue decodes {"$reql_type$":"BINARY","data":"<base64>"}.
func binaryValue(fields map[string]any) (Value, error) {
	data, ok := fields["data"].(string)
	if !ok {
		return NULL, fmt.Errorf("reqltypes: BINARY datum is missing data")
	}
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return NULL, fmt.Errorf("reqltypes: BINARY datum has invalid base64: %w", err)
	}
	return NewBinary(raw), nil
}
