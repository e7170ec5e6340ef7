package replay

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func jsonResponse(status int, body any) *Response {
	return &Response{StatusCode: status, JSON: body}
}

func TestEvaluateAssertionsHTTPCode(t *testing.T) {
	resp := jsonResponse(200, nil)

	err := EvaluateAssertions(Assertions{Response: []AssertionSpec{
		{Type: "http_code", Expected: float64(200)},
	}}, resp, nil)
	require.NoError(t, err)

	err = EvaluateAssertions(Assertions{Response: []AssertionSpec{
		{Type: "http_code", Expected: float64(404)},
	}}, resp, nil)
	require.Error(t, err)
	assert.True(t, IsAssertionError(err))
	assert.Contains(t, err.Error(), "expected http code 404, got 200")
}

func TestEvaluateAssertionsEqual(t *testing.T) {
	resp := jsonResponse(200, map[string]any{
		"code": float64(0),
		"data": map[string]any{"name": "alice", "tags": []any{"a", "b"}},
	})

	err := EvaluateAssertions(Assertions{Response: []AssertionSpec{
		{Type: "equal", Field: "code", Expected: 0},
		{Type: "equal", Field: "data.name", Expected: "alice"},
		{Type: "equal", Field: "data.tags", Expected: []any{"a", "b"}},
	}}, resp, nil)
	require.NoError(t, err)

	err = EvaluateAssertions(Assertions{Response: []AssertionSpec{
		{Type: "equal", Field: "data.name", Expected: "bob"},
	}}, resp, nil)
	require.Error(t, err)
	assert.True(t, IsAssertionError(err))
}

func TestEvaluateAssertionsNotNull(t *testing.T) {
	resp := jsonResponse(200, map[string]any{"data": map[string]any{"id": "u-1"}})

	require.NoError(t, EvaluateAssertions(Assertions{Response: []AssertionSpec{
		{Type: "not_null", Field: "data.id"},
	}}, resp, nil))

	err := EvaluateAssertions(Assertions{Response: []AssertionSpec{
		{Type: "not_null", Field: "data.missing"},
	}}, resp, nil)
	require.Error(t, err)
	assert.True(t, IsAssertionError(err))
	assert.Contains(t, err.Error(), "non-null")
}

func TestEvaluateAssertionsStopsAtFirstFailure(t *testing.T) {
	resp := jsonResponse(200, map[string]any{"a": float64(1)})

	err := EvaluateAssertions(Assertions{Response: []AssertionSpec{
		{Type: "http_code", Expected: 500},
		{Type: "equal", Field: "nope", Expected: "x"},
	}}, resp, nil)
	require.Error(t, err)

	var ae *AssertionError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "http_code", ae.Type)
}

func TestEvaluateAssertionsUnknownTypeSkipped(t *testing.T) {
	resp := jsonResponse(200, nil)
	result := NewCaseResult("", "skip-check")

	err := EvaluateAssertions(Assertions{Response: []AssertionSpec{
		{Type: "regex_match", Field: "data", Expected: ".*"},
		{Type: "http_code", Expected: 200},
	}}, resp, result)
	require.NoError(t, err)

	found := false
	for _, entry := range result.Logs {
		if entry.Level == "warn" {
			found = true
		}
	}
	assert.True(t, found, "unknown assertion type should be logged")
}

func TestEvaluateAssertionsEqualOnNonJSONBody(t *testing.T) {
	resp := &Response{StatusCode: 200, RawText: "<html></html>"}

	err := EvaluateAssertions(Assertions{Response: []AssertionSpec{
		{Type: "equal", Field: "code", Expected: 0},
	}}, resp, nil)
	require.Error(t, err)
	assert.True(t, IsAssertionError(err), "missing path on non-JSON body is a failed check, not a crash")
}

func TestEvaluateAssertionsBadPathExpression(t *testing.T) {
	resp := jsonResponse(200, map[string]any{})

	err := EvaluateAssertions(Assertions{Response: []AssertionSpec{
		{Type: "equal", Field: "data[", Expected: 1},
	}}, resp, nil)
	require.Error(t, err)
	assert.False(t, IsAssertionError(err), "a malformed path is an execution error")
}

func TestJSONEqualCrossTypeNumbers(t *testing.T) {
	assert.True(t, jsonEqual(1, float64(1)))
	assert.True(t, jsonEqual(int64(5), 5))
	assert.False(t, jsonEqual(1, "1"))
	assert.True(t, jsonEqual(map[string]any{"a": 1}, map[string]any{"a": float64(1)}))
}

func TestToInt(t *testing.T) {
	for _, tc := range []struct {
		in   any
		want int
		ok   bool
	}{
		{200, 200, true},
		{int64(201), 201, true},
		{float64(404), 404, true},
		{"500", 500, true},
		{"abc", 0, false},
		{nil, 0, false},
	} {
		got, ok := toInt(tc.in)
		assert.Equal(t, tc.ok, ok, fmt.Sprintf("input %v", tc.in))
		if tc.ok {
			assert.Equal(t, tc.want, got)
		}
	}
}
