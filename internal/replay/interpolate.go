package replay

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var refPattern = regexp.MustCompile(`\$\{\{\s*([^}]+?)\s*\}\}`)

// Interpolate resolves ${{name}} references in v against env and
// returns the substituted value. Substitution runs a single pass:
// values pulled from env are not rescanned for further references.
//
// A string that consists of exactly one reference is replaced by the
// environment value itself, so numbers, lists and maps keep their
// types. References embedded in a longer string are stringified in
// place. Missing names resolve to the empty string.
func Interpolate(v any, env map[string]any, sink logSink) any {
	sink = sinkOr(sink)
	switch val := v.(type) {
	case string:
		return interpolateString(val, env, sink)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = Interpolate(item, env, sink)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = Interpolate(item, env, sink)
		}
		return out
	default:
		return v
	}
}

func interpolateString(s string, env map[string]any, sink logSink) any {
	match := refPattern.FindStringSubmatchIndex(s)
	if match == nil {
		return s
	}

	// Whole-string reference keeps the environment value's type.
	if match[0] == 0 && match[1] == len(s) {
		name := strings.TrimSpace(s[match[2]:match[3]])
		val, ok := env[name]
		if !ok {
			sink.Infof("variable %q not found, substituting empty string", name)
			return ""
		}
		return val
	}

	return refPattern.ReplaceAllStringFunc(s, func(ref string) string {
		name := strings.TrimSpace(refPattern.FindStringSubmatch(ref)[1])
		val, ok := env[name]
		if !ok {
			sink.Infof("variable %q not found, substituting empty string", name)
			return ""
		}
		return stringify(val)
	})
}

func stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	default:
		data, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(data)
	}
}

// InterpolateRequest resolves references across every addressable part
// of a request block in place.
func (req *RequestBlock) InterpolateRequest(env map[string]any, sink logSink) {
	req.URL = stringify(Interpolate(req.URL, env, sink))
	req.BaseURL = stringify(Interpolate(req.BaseURL, env, sink))
	if req.Headers != nil {
		req.Headers = Interpolate(req.Headers, env, sink).(map[string]any)
	}
	if req.Params != nil {
		req.Params = Interpolate(req.Params, env, sink).(map[string]any)
	}
	if req.Body != nil {
		req.Body = Interpolate(req.Body, env, sink)
	}
	if req.Files != nil {
		req.Files = Interpolate(req.Files, env, sink).(map[string]any)
	}
}
