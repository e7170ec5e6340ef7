package replay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInterpolateWholeReferenceKeepsType(t *testing.T) {
	env := map[string]any{
		"count":  float64(7),
		"flag":   true,
		"ids":    []any{float64(1), float64(2)},
		"object": map[string]any{"a": "b"},
		"name":   "alice",
	}

	assert.Equal(t, float64(7), Interpolate("${{count}}", env, nil))
	assert.Equal(t, true, Interpolate("${{flag}}", env, nil))
	assert.Equal(t, []any{float64(1), float64(2)}, Interpolate("${{ids}}", env, nil))
	assert.Equal(t, map[string]any{"a": "b"}, Interpolate("${{object}}", env, nil))
	assert.Equal(t, "alice", Interpolate("${{name}}", env, nil))
}

func TestInterpolateEmbeddedReferencesStringify(t *testing.T) {
	env := map[string]any{
		"id":    float64(42),
		"token": "abc",
	}

	out := Interpolate("user ${{id}} token ${{token}}", env, nil)
	assert.Equal(t, "user 42 token abc", out)
}

func TestInterpolateMissingNameBecomesEmptyString(t *testing.T) {
	env := map[string]any{}

	assert.Equal(t, "", Interpolate("${{missing}}", env, nil))
	assert.Equal(t, "prefix--suffix", Interpolate("prefix-${{missing}}-suffix", env, nil))
}

func TestInterpolateSinglePassNoRecursion(t *testing.T) {
	env := map[string]any{
		"outer": "${{inner}}",
		"inner": "should not appear",
	}

	// The value pulled from env is not rescanned.
	assert.Equal(t, "${{inner}}", Interpolate("${{outer}}", env, nil))
	assert.Equal(t, "x ${{inner}} y", Interpolate("x ${{outer}} y", env, nil))
}

func TestInterpolateWalksNestedStructures(t *testing.T) {
	env := map[string]any{"id": float64(5), "name": "bob"}
	in := map[string]any{
		"user": map[string]any{
			"id":   "${{id}}",
			"name": "${{name}}",
		},
		"tags":  []any{"${{name}}", "static"},
		"count": float64(3),
	}

	out := Interpolate(in, env, nil).(map[string]any)
	user := out["user"].(map[string]any)
	assert.Equal(t, float64(5), user["id"])
	assert.Equal(t, "bob", user["name"])
	assert.Equal(t, []any{"bob", "static"}, out["tags"])
	assert.Equal(t, float64(3), out["count"])
}

func TestInterpolateNoReferencesUnchanged(t *testing.T) {
	env := map[string]any{"a": "b"}
	assert.Equal(t, "plain text", Interpolate("plain text", env, nil))
	assert.Equal(t, nil, Interpolate(nil, env, nil))
}

func TestInterpolateRequestCoversAllParts(t *testing.T) {
	env := map[string]any{
		"base": "https://api.test",
		"id":   float64(9),
		"tok":  "secret",
	}
	req := RequestBlock{
		Method:  "GET",
		URL:     "/users/${{id}}",
		BaseURL: "${{base}}",
		Headers: map[string]any{"Authorization": "Bearer ${{tok}}"},
		Params:  map[string]any{"page": "${{id}}"},
		Body:    map[string]any{"ref": "${{id}}"},
	}

	req.InterpolateRequest(env, nil)

	assert.Equal(t, "/users/9", req.URL)
	assert.Equal(t, "https://api.test", req.BaseURL)
	assert.Equal(t, "Bearer secret", req.Headers["Authorization"])
	assert.Equal(t, float64(9), req.Params["page"])
	require.IsType(t, map[string]any{}, req.Body)
	assert.Equal(t, float64(9), req.Body.(map[string]any)["ref"])
}

func TestInterpolateLogsMissingVariable(t *testing.T) {
	result := NewCaseResult("", "log-check")
	Interpolate("${{absent}}", map[string]any{}, result)

	require.NotEmpty(t, result.Logs)
	assert.Contains(t, result.Logs[0].Message, "absent")
}
