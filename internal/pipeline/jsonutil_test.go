package pipeline

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSONFromCodeFence(t *testing.T) {
	content := "Here is the verdict:\n```json\n{\"covered\": true, \"missing\": []}\n```\nDone."

	raw := ExtractJSON(content)
	require.NotEmpty(t, raw)

	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(raw), &out))
	assert.Equal(t, true, out["covered"])
}

func TestExtractJSONBareObject(t *testing.T) {
	raw := ExtractJSON(`The result is {"a": 1} as requested.`)
	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(raw), &out))
	assert.Equal(t, float64(1), out["a"])
}

func TestExtractJSONStripsCommentsAndTrailingCommas(t *testing.T) {
	content := "```json\n" + `{
  "name": "case", // the case name
  "url": "http://host//path",
  "items": [1, 2, 3,],
}` + "\n```"

	raw := ExtractJSON(content)
	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(raw), &out), "raw: %s", raw)
	assert.Equal(t, "case", out["name"])
	assert.Equal(t, "http://host//path", out["url"], "slashes inside strings survive")
	assert.Equal(t, []any{float64(1), float64(2), float64(3)}, out["items"])
}

func TestExtractJSONNothingThere(t *testing.T) {
	assert.Empty(t, ExtractJSON("no structured output at all"))
}

func TestExtractJSONArrayFromCodeFence(t *testing.T) {
	content := "```json\n[{\"name\": \"one\"}, {\"name\": \"two\"},]\n```"

	raw := ExtractJSONArray(content)
	var out []map[string]any
	require.NoError(t, json.Unmarshal([]byte(raw), &out))
	require.Len(t, out, 2)
	assert.Equal(t, "two", out[1]["name"])
}

func TestExtractJSONArrayBare(t *testing.T) {
	raw := ExtractJSONArray(`cases: [1, 2]`)
	var out []int
	require.NoError(t, json.Unmarshal([]byte(raw), &out))
	assert.Equal(t, []int{1, 2}, out)

	assert.Empty(t, ExtractJSONArray("none here"))
}
