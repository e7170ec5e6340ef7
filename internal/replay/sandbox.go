package replay

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/d5/tengo/v2"
	"github.com/d5/tengo/v2/stdlib"
)

// safeModules are the only script stdlib modules available to case
// scripts. No file I/O, no network, no OS access.
var safeModules = stdlib.GetModuleMap("text", "fmt", "math", "times", "json", "rand")

// Pair states of a setup/teardown script pair.
const (
	pairStateNone      = iota // nothing ran yet
	pairStateSuspended        // setup finished, teardown pending
	pairStateDone             // teardown finished
)

var hostGlobals = map[string]bool{
	"test":            true,
	"db":              true,
	"global_function": true,
	"response":        true,
}

// ScriptHost supplies the objects a case script can reach: the shared
// environment, database handles and the custom function library.
// Library is optional script source the environment profile carries;
// its top-level definitions are in scope for setup and teardown.
type ScriptHost struct {
	Env       map[string]any
	DB        *DBClient
	Functions FunctionLibrary
	Library   string
	Sink      logSink
}

// FunctionLibrary exposes named helper functions to scripts.
type FunctionLibrary interface {
	Call(name string, args ...any) (any, error)
	Names() []string
}

// ScriptPair runs a setup script, suspends across the surrounding HTTP
// call, then runs the teardown script with the setup's local variables
// still in scope plus a response object.
type ScriptPair struct {
	setup        string
	teardown     string
	host         *ScriptHost
	state        int
	carried      []*tengo.Variable
	preludeNames map[string]bool
}

// NewScriptPair binds a setup/teardown source pair to a host.
func NewScriptPair(setup, teardown string, host *ScriptHost) *ScriptPair {
	return &ScriptPair{setup: setup, teardown: teardown, host: host}
}

// RunSetup executes the setup half. An empty source is a no-op that
// still advances the pair, so a lone teardown stays legal.
func (p *ScriptPair) RunSetup(ctx context.Context) error {
	if p.state != pairStateNone {
		return fmt.Errorf("setup script already ran")
	}
	p.state = pairStateSuspended
	if p.setup == "" {
		return nil
	}

	script := p.newScript(p.setup)
	compiled, err := script.RunContext(ctx)
	if err != nil {
		return fmt.Errorf("setup script: %w", err)
	}
	p.carried = compiled.GetAll()
	return nil
}

// RunTeardown executes the teardown half with the setup's variables
// restored and resp exposed as the response object.
func (p *ScriptPair) RunTeardown(ctx context.Context, resp *Response) error {
	switch p.state {
	case pairStateNone:
		return fmt.Errorf("teardown script before setup")
	case pairStateDone:
		return fmt.Errorf("teardown script already ran")
	}
	p.state = pairStateDone
	if p.teardown == "" {
		return nil
	}

	script := p.newScript(p.teardown)
	prelude := p.libraryNames(ctx)
	for _, v := range p.carried {
		// The teardown source starts with the same library prelude, so
		// restoring a prelude name would collide with its definition.
		if hostGlobals[v.Name()] || prelude[v.Name()] {
			continue
		}
		if err := script.Add(v.Name(), v.Value()); err != nil {
			return fmt.Errorf("teardown script: restore %q: %w", v.Name(), err)
		}
	}
	if err := script.Add("response", responseObject(resp)); err != nil {
		return fmt.Errorf("teardown script: %w", err)
	}
	if _, err := script.RunContext(ctx); err != nil {
		return fmt.Errorf("teardown script: %w", err)
	}
	return nil
}

func (p *ScriptPair) newScript(src string) *tengo.Script {
	if p.host.Library != "" {
		src = p.host.Library + "\n" + src
	}
	script := tengo.NewScript([]byte(src))
	script.SetImports(safeModules)
	script.SetMaxAllocs(10_000_000)
	_ = script.Add("test", p.testObject())
	_ = script.Add("db", p.dbObject())
	_ = script.Add("global_function", p.functionObject())
	return script
}

// libraryNames runs the library prelude on its own and collects the
// top-level names it defines. A broken library yields an empty set;
// the script using it reports the real compile error itself.
func (p *ScriptPair) libraryNames(ctx context.Context) map[string]bool {
	if p.preludeNames != nil {
		return p.preludeNames
	}
	p.preludeNames = map[string]bool{}
	if p.host.Library == "" {
		return p.preludeNames
	}
	compiled, err := p.newScript("").RunContext(ctx)
	if err != nil {
		return p.preludeNames
	}
	for _, v := range compiled.GetAll() {
		p.preludeNames[v.Name()] = true
	}
	return p.preludeNames
}

// testObject exposes environment access to scripts: values written here
// are visible to every later interpolation and extraction in the run.
func (p *ScriptPair) testObject() tengo.Object {
	env := p.host.Env
	sink := sinkOr(p.host.Sink)
	return &tengo.Map{Value: map[string]tengo.Object{
		"save_test_env_variables": &tengo.UserFunction{
			Name: "save_test_env_variables",
			Value: func(args ...tengo.Object) (tengo.Object, error) {
				if len(args) != 2 {
					return nil, tengo.ErrWrongNumArguments
				}
				name, ok := tengo.ToString(args[0])
				if !ok {
					return nil, tengo.ErrInvalidArgumentType{Name: "name", Expected: "string"}
				}
				env[name] = tengo.ToInterface(args[1])
				sink.Infof("script saved variable %q", name)
				return tengo.UndefinedValue, nil
			},
		},
		"get_test_env_variables": &tengo.UserFunction{
			Name: "get_test_env_variables",
			Value: func(args ...tengo.Object) (tengo.Object, error) {
				if len(args) != 1 {
					return nil, tengo.ErrWrongNumArguments
				}
				name, ok := tengo.ToString(args[0])
				if !ok {
					return nil, tengo.ErrInvalidArgumentType{Name: "name", Expected: "string"}
				}
				val, ok := env[name]
				if !ok {
					return tengo.UndefinedValue, nil
				}
				obj, err := tengo.FromInterface(val)
				if err != nil {
					return nil, err
				}
				return obj, nil
			},
		},
	}}
}

// dbObject exposes db.query(connection, sql) returning rows as an
// array of maps. Query failures abort the script.
func (p *ScriptPair) dbObject() tengo.Object {
	db := p.host.DB
	return &tengo.Map{Value: map[string]tengo.Object{
		"query": &tengo.UserFunction{
			Name: "query",
			Value: func(args ...tengo.Object) (tengo.Object, error) {
				if len(args) != 2 {
					return nil, tengo.ErrWrongNumArguments
				}
				name, ok := tengo.ToString(args[0])
				if !ok {
					return nil, tengo.ErrInvalidArgumentType{Name: "connection", Expected: "string"}
				}
				query, ok := tengo.ToString(args[1])
				if !ok {
					return nil, tengo.ErrInvalidArgumentType{Name: "sql", Expected: "string"}
				}
				if db == nil {
					return nil, fmt.Errorf("no database configured in this environment")
				}
				rows, err := db.Query(name, query)
				if err != nil {
					return nil, err
				}
				out := make([]any, len(rows))
				for i, row := range rows {
					out[i] = row
				}
				return tengo.FromInterface(out)
			},
		},
	}}
}

func (p *ScriptPair) functionObject() tengo.Object {
	lib := p.host.Functions
	funcs := map[string]tengo.Object{}
	if lib != nil {
		for _, name := range lib.Names() {
			name := name
			funcs[name] = &tengo.UserFunction{
				Name: name,
				Value: func(args ...tengo.Object) (tengo.Object, error) {
					goArgs := make([]any, len(args))
					for i, a := range args {
						goArgs[i] = tengo.ToInterface(a)
					}
					out, err := lib.Call(name, goArgs...)
					if err != nil {
						return nil, err
					}
					return tengo.FromInterface(out)
				},
			}
		}
	}
	return &tengo.Map{Value: funcs}
}

// responseObject converts a response into the script-facing view:
// status_code, headers, text and the decoded json (undefined when the
// body was not JSON).
func responseObject(resp *Response) tengo.Object {
	if resp == nil {
		return tengo.UndefinedValue
	}
	headers := map[string]any{}
	for k := range resp.Headers {
		headers[k] = resp.Headers.Get(k)
	}
	view := map[string]any{
		"status_code": resp.StatusCode,
		"headers":     headers,
		"text":        resp.RawText,
	}
	if resp.JSON != nil {
		view["json"] = normalizeJSON(resp.JSON)
	}
	obj, err := tengo.FromInterface(view)
	if err != nil {
		return tengo.UndefinedValue
	}
	return obj
}

// normalizeJSON forces a value through JSON encoding so scripts only
// ever see plain maps, slices and scalars.
func normalizeJSON(v any) any {
	data, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return v
	}
	return out
}
