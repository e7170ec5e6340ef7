package replay

import "github.com/jmespath/go-jmespath"

// ApplyExtractions evaluates each [variable, path] pair against the
// response JSON and stores the result in env. A path that matches
// nothing, or a non-JSON response, stores nil so downstream steps see
// an explicit empty value rather than a stale one.
func ApplyExtractions(rules [][2]string, resp *Response, env map[string]any, sink logSink) {
	sink = sinkOr(sink)
	var doc any
	if resp != nil {
		doc = resp.JSON
	}
	for _, rule := range rules {
		name, path := rule[0], rule[1]
		val, err := jmespath.Search(path, doc)
		if err != nil {
			sink.Warnf("extraction %q: bad path %q: %v", name, path, err)
			val = nil
		}
		env[name] = val
		if val == nil {
			sink.Infof("extracted %q = null (path %q)", name, path)
		} else {
			sink.Infof("extracted %q from path %q", name, path)
		}
	}
}
