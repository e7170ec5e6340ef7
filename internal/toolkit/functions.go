// Package toolkit provides the built-in helper functions generated
// cases can call from scripts, plus the upload file catalog.
package toolkit

import (
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Function is one callable helper with the metadata the generator
// needs to advertise it in prompts.
type Function struct {
	Name   string
	Params []string
	Desc   string
	Call   func(args ...any) (any, error)
}

// Library is a named set of helper functions.
type Library struct {
	funcs map[string]Function
	names []string
}

// NewLibrary builds a library from the given functions.
func NewLibrary(funcs ...Function) *Library {
	lib := &Library{funcs: map[string]Function{}}
	for _, f := range funcs {
		lib.funcs[f.Name] = f
		lib.names = append(lib.names, f.Name)
	}
	sort.Strings(lib.names)
	return lib
}

// Names lists the function names in stable order.
func (l *Library) Names() []string {
	out := make([]string, len(l.names))
	copy(out, l.names)
	return out
}

// Call invokes a function by name.
func (l *Library) Call(name string, args ...any) (any, error) {
	f, ok := l.funcs[name]
	if !ok {
		return nil, fmt.Errorf("unknown function %q", name)
	}
	return f.Call(args...)
}

// Descriptors returns the prompt-facing view of the library: one
// {name, params, desc} record per function.
func (l *Library) Descriptors() []map[string]any {
	out := make([]map[string]any, 0, len(l.names))
	for _, name := range l.names {
		f := l.funcs[name]
		params := f.Params
		if params == nil {
			params = []string{}
		}
		out = append(out, map[string]any{
			"name":   f.Name,
			"params": params,
			"desc":   f.Desc,
		})
	}
	return out
}

const accountChars = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789_"

func randomDigits(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte('0' + rand.Intn(10))
	}
	return string(b)
}

// DefaultLibrary returns the built-in helper set.
func DefaultLibrary() *Library {
	return NewLibrary(
		Function{
			Name: "random_mobile",
			Desc: "Generate a random 11-digit mobile phone number",
			Call: func(args ...any) (any, error) {
				prefixes := []string{"130", "135", "137", "138", "139", "150", "151", "152", "157", "158", "159", "182", "187", "188"}
				return prefixes[rand.Intn(len(prefixes))] + randomDigits(8), nil
			},
		},
		Function{
			Name: "random_account",
			Desc: "Generate a random account name of 6 to 18 characters",
			Call: func(args ...any) (any, error) {
				n := 6 + rand.Intn(13)
				b := make([]byte, n)
				for i := range b {
					b[i] = accountChars[rand.Intn(len(accountChars))]
				}
				return string(b), nil
			},
		},
		Function{
			Name: "random_email",
			Desc: "Generate a random email address",
			Call: func(args ...any) (any, error) {
				domains := []string{"example.com", "test.io", "mail.net"}
				n := 6 + rand.Intn(8)
				b := make([]byte, n)
				for i := range b {
					b[i] = byte('a' + rand.Intn(26))
				}
				return string(b) + "@" + domains[rand.Intn(len(domains))], nil
			},
		},
		Function{
			Name:   "random_string",
			Params: []string{"length"},
			Desc:   "Generate a random alphanumeric string of the given length",
			Call: func(args ...any) (any, error) {
				n := 8
				if len(args) > 0 {
					if v, ok := toInt(args[0]); ok && v > 0 {
						n = v
					}
				}
				b := make([]byte, n)
				for i := range b {
					b[i] = accountChars[rand.Intn(62)]
				}
				return string(b), nil
			},
		},
		Function{
			Name: "get_timestamp",
			Desc: "Current Unix timestamp in seconds",
			Call: func(args ...any) (any, error) {
				return time.Now().Unix(), nil
			},
		},
		Function{
			Name: "get_datetime",
			Desc: "Current datetime formatted as 2006-01-02 15:04:05",
			Call: func(args ...any) (any, error) {
				return time.Now().Format("2006-01-02 15:04:05"), nil
			},
		},
		Function{
			Name: "uuid4",
			Desc: "Generate a random UUID string",
			Call: func(args ...any) (any, error) {
				return uuid.NewString(), nil
			},
		},
		Function{
			Name:   "md5_encrypt",
			Params: []string{"text"},
			Desc:   "Hex MD5 digest of the given text",
			Call: func(args ...any) (any, error) {
				if len(args) != 1 {
					return nil, fmt.Errorf("md5_encrypt wants 1 argument")
				}
				sum := md5.Sum([]byte(fmt.Sprintf("%v", args[0])))
				return hex.EncodeToString(sum[:]), nil
			},
		},
		Function{
			Name:   "base64_encode",
			Params: []string{"text"},
			Desc:   "Base64-encode the given text",
			Call: func(args ...any) (any, error) {
				if len(args) != 1 {
					return nil, fmt.Errorf("base64_encode wants 1 argument")
				}
				return base64.StdEncoding.EncodeToString([]byte(fmt.Sprintf("%v", args[0]))), nil
			},
		},
	)
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}
