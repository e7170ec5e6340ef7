package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/caseforge/caseforge/internal/toolkit"
)

// runnableCaseOutputFormat is the JSON shape the runnable case
// generator must produce.
const runnableCaseOutputFormat = `{
  "name": "case name",
  "description": "what this case verifies",
  "interface": "METHOD /path",
  "preconditions": [
    {
      "name": "dependency step name",
      "request": {
        "interface_id": "",
        "method": "POST",
        "url": "/path",
        "base_url": "",
        "headers": {},
        "params": {},
        "body": {},
        "files": {},
        "setup_script": "",
        "teardown_script": ""
      },
      "extract": [["variable_name", "json.path.expression"]]
    }
  ],
  "request": {
    "interface_id": "",
    "method": "POST",
    "url": "/path",
    "base_url": "",
    "headers": {},
    "params": {},
    "body": {},
    "files": {},
    "setup_script": "",
    "teardown_script": ""
  },
  "assertions": {
    "response": [
      {"type": "http_code", "expected": 200},
      {"type": "equal", "field": "code", "expected": 0},
      {"type": "not_null", "field": "data.id"}
    ]
  }
}`

const baseCaseOutputFormat = `[
  {
    "name": "case name",
    "steps": ["step 1 description", "step 2 description"],
    "expected": ["expected outcome 1"],
    "dependencies": ["upstream interface this case needs, if any"]
  }
]`

const scriptUsageNotes = `Script rules (setup_script / teardown_script):
- Scripts run in a sandbox. Available objects:
  - test.save_test_env_variables(name, value) stores a shared variable
  - test.get_test_env_variables(name) reads a shared variable
  - db.query(connection_name, sql) queries a configured database
  - global_function.<name>(...) calls a helper from the function list
  - response (teardown only): {status_code, headers, text, json}
- Local variables defined in setup_script stay visible in teardown_script.
- Reference shared variables in requests and assertions as ${{name}}.`

// BuildBaseCasePrompts returns the system and user messages for base
// case generation over one interface.
func BuildBaseCasePrompts(apiDoc string, dependencyDocs []string, knowledge string) (system, user string) {
	var b strings.Builder
	b.WriteString("You are a senior API test engineer. Design functional test cases for the target interface.\n")
	b.WriteString("Cover the success path, parameter boundaries, invalid inputs, missing required fields and permission errors.\n")
	b.WriteString("Every case must be concrete enough to automate. Output ONLY a JSON array in this format:\n")
	b.WriteString(baseCaseOutputFormat)
	system = b.String()

	var u strings.Builder
	u.WriteString("Target interface:\n")
	u.WriteString(apiDoc)
	if len(dependencyDocs) > 0 {
		u.WriteString("\n\nUpstream dependencies (call these first when a case needs their data):\n")
		u.WriteString(strings.Join(dependencyDocs, "\n---\n"))
	}
	if knowledge != "" {
		u.WriteString("\n\nBusiness knowledge:\n")
		u.WriteString(knowledge)
	}
	return system, u.String()
}

// BuildCoveragePrompts returns the messages for reviewing whether a
// case set covers an interface.
func BuildCoveragePrompts(apiDoc string, cases any) (system, user string) {
	system = `You are reviewing test coverage for an API interface.
Judge whether the case set covers the interface: success path, boundaries, invalid inputs, missing required fields, permissions.
Output ONLY a JSON object: {"covered": true|false, "missing": ["description of each missing scenario"]}.
When coverage is complete, "missing" must be empty.`

	casesJSON, _ := json.MarshalIndent(cases, "", "  ")
	user = fmt.Sprintf("Target interface:\n%s\n\nCurrent test cases:\n%s", apiDoc, casesJSON)
	return system, user
}

// BuildSupplementPrompts returns the messages for generating the cases
// a coverage review found missing.
func BuildSupplementPrompts(apiDoc string, cases any, missing []string, dependencyDocs []string) (system, user string) {
	var b strings.Builder
	b.WriteString("You are a senior API test engineer. Generate ONLY the missing test cases listed below; do not repeat existing cases.\n")
	b.WriteString("Output ONLY a JSON array in this format:\n")
	b.WriteString(baseCaseOutputFormat)
	system = b.String()

	casesJSON, _ := json.MarshalIndent(cases, "", "  ")
	var u strings.Builder
	u.WriteString("Target interface:\n")
	u.WriteString(apiDoc)
	u.WriteString("\n\nExisting cases:\n")
	u.Write(casesJSON)
	u.WriteString("\n\nMissing scenarios:\n")
	for _, m := range missing {
		u.WriteString("- " + m + "\n")
	}
	if len(dependencyDocs) > 0 {
		u.WriteString("\nUpstream dependencies:\n")
		u.WriteString(strings.Join(dependencyDocs, "\n---\n"))
	}
	return system, u.String()
}

// RunnableInputDocs carries everything the runnable case prompt needs
// beyond the base case itself.
type RunnableInputDocs struct {
	APIDoc         string
	DependencyDocs []string
	TestData       map[string]any
	Files          []toolkit.FileInfo
	Functions      []map[string]any
	LibrarySource  string
	AdditionalInfo string
}

// BuildRunnableCasePrompts returns the messages for compiling one base
// case into a runnable case.
func BuildRunnableCasePrompts(baseCase any, docs RunnableInputDocs) (system, user string) {
	var b strings.Builder
	b.WriteString("You are a senior API test engineer. Compile the given test design into one executable test case.\n")
	b.WriteString("Rules:\n")
	b.WriteString("- Every dependency call goes into preconditions, in call order, with extract rules for the values later steps need.\n")
	b.WriteString("- Use ${{variable}} references for extracted or environment values.\n")
	b.WriteString("- File uploads use the files map: {\"field\": [\"filename\", \"path\", \"mime\"]}, choosing from the available files list.\n")
	b.WriteString("- Assertions must verify the expected outcomes of the design.\n")
	b.WriteString(scriptUsageNotes)
	b.WriteString("\nOutput ONLY a JSON object in this format:\n")
	b.WriteString(runnableCaseOutputFormat)
	system = b.String()

	baseCaseJSON, _ := json.MarshalIndent(baseCase, "", "  ")
	var u strings.Builder
	u.WriteString("Test design to compile:\n")
	u.Write(baseCaseJSON)
	u.WriteString("\n\nTarget interface:\n")
	u.WriteString(docs.APIDoc)
	if len(docs.DependencyDocs) > 0 {
		u.WriteString("\n\nUpstream dependencies:\n")
		u.WriteString(strings.Join(docs.DependencyDocs, "\n---\n"))
	}
	if len(docs.TestData) > 0 {
		data, _ := json.MarshalIndent(docs.TestData, "", "  ")
		u.WriteString("\n\nAvailable test data:\n")
		u.Write(data)
	}
	if len(docs.Files) > 0 {
		files, _ := json.MarshalIndent(docs.Files, "", "  ")
		u.WriteString("\n\nAvailable upload files:\n")
		u.Write(files)
	}
	if len(docs.Functions) > 0 {
		funcs, _ := json.MarshalIndent(docs.Functions, "", "  ")
		u.WriteString("\n\nAvailable helper functions:\n")
		u.Write(funcs)
	}
	if docs.LibrarySource != "" {
		u.WriteString("\n\nEnvironment script library, callable through global_function:\n")
		u.WriteString(docs.LibrarySource)
	}
	if docs.AdditionalInfo != "" {
		u.WriteString("\n\nAdditional notes:\n")
		u.WriteString(docs.AdditionalInfo)
	}
	return system, u.String()
}
