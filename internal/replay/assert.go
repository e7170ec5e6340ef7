package replay

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmespath/go-jmespath"
)

// AssertionError marks a check that evaluated cleanly but did not hold.
// The engine maps it to the failed status; every other error class maps
// to error.
type AssertionError struct {
	Type     string
	Field    string
	Expected any
	Actual   any
}

func (e *AssertionError) Error() string {
	switch e.Type {
	case "http_code":
		return fmt.Sprintf("expected http code %v, got %v", e.Expected, e.Actual)
	case "not_null":
		return fmt.Sprintf("expected %q to be non-null", e.Field)
	default:
		return fmt.Sprintf("expected %q = %v, got %v", e.Field, e.Expected, e.Actual)
	}
}

// IsAssertionError reports whether err is (or wraps) a failed check.
func IsAssertionError(err error) bool {
	var ae *AssertionError
	return errors.As(err, &ae)
}

// EvaluateAssertions runs the declared checks in order and stops at the
// first one that does not hold. Unknown assertion types are logged and
// skipped.
func EvaluateAssertions(a Assertions, resp *Response, sink logSink) error {
	sink = sinkOr(sink)
	for _, spec := range a.Response {
		if err := evaluateOne(spec, resp, sink); err != nil {
			return err
		}
		sink.Infof("assertion passed: %s %s", spec.Type, spec.Field)
	}
	return nil
}

func evaluateOne(spec AssertionSpec, resp *Response, sink logSink) error {
	switch spec.Type {
	case "http_code":
		expected, ok := toInt(spec.Expected)
		if !ok {
			return fmt.Errorf("http_code assertion: expected value %v is not an integer", spec.Expected)
		}
		if resp.StatusCode != expected {
			return &AssertionError{Type: "http_code", Expected: expected, Actual: resp.StatusCode}
		}
		return nil

	case "equal":
		actual, err := searchPath(spec.Field, resp.JSON)
		if err != nil {
			return err
		}
		if !jsonEqual(actual, spec.Expected) {
			return &AssertionError{Type: "equal", Field: spec.Field, Expected: spec.Expected, Actual: actual}
		}
		return nil

	case "not_null":
		actual, err := searchPath(spec.Field, resp.JSON)
		if err != nil {
			return err
		}
		if actual == nil {
			return &AssertionError{Type: "not_null", Field: spec.Field}
		}
		return nil

	default:
		sink.Warnf("unknown assertion type %q, skipping", spec.Type)
		return nil
	}
}

func searchPath(path string, doc any) (any, error) {
	val, err := jmespath.Search(path, doc)
	if err != nil {
		return nil, fmt.Errorf("path expression %q: %w", path, err)
	}
	return val, nil
}

// jsonEqual compares two values structurally after forcing both
// through JSON encoding, so 1 and 1.0 and int vs float64 agree.
func jsonEqual(a, b any) bool {
	da, errA := json.Marshal(a)
	db, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	var na, nb any
	if err := json.Unmarshal(da, &na); err != nil {
		return false
	}
	if err := json.Unmarshal(db, &nb); err != nil {
		return false
	}
	return deepEqualJSON(na, nb)
}

func deepEqualJSON(a, b any) bool {
	switch av := a.(type) {
	case map[string]any:
		bv, ok := b.(map[string]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, v := range av {
			bval, ok := bv[k]
			if !ok || !deepEqualJSON(v, bval) {
				return false
			}
		}
		return true
	case []any:
		bv, ok := b.([]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !deepEqualJSON(av[i], bv[i]) {
				return false
			}
		}
		return true
	default:
		return a == b
	}
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return int(i), true
	case string:
		var i int
		if _, err := fmt.Sscanf(n, "%d", &i); err != nil {
			return 0, false
		}
		return i, true
	default:
		return 0, false
	}
}
