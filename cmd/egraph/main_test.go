package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohankatakam/elemgraph/internal/engine"
)

const testSchema = `
types:
  vertex.string:
    class: string
  directed.boolean:
    class: boolean
  count.long:
    class: long
    aggregateFunction:
      class: Sum
edges:
  road:
    source: vertex.string
    destination: vertex.string
    directed: directed.boolean
    properties:
      count: count.long
`

const testConfig = `
graph:
  id: cli
  schema:
    - schema.yaml
store:
  type: bolt
  bolt_path: elements.db
caches:
  jobs:
    type: sqlite
    path: jobs.db
logging:
  level: error
`

// setup writes a bolt-backed config and schema into a temp dir and returns
// the config path.
func setup(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "schema.yaml"), []byte(testSchema), 0o644))
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testConfig), 0o644))
	return path
}

func writeChain(t *testing.T, doc string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chain.json")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))
	return path
}

// run executes the root command with args and returns stdout.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	asJob, jobsJSON, verbose = false, false, false
	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestExecute(t *testing.T) {
	cfgPath := setup(t)
	add := writeChain(t, `{"class":"AddElements","input":[
		{"class":"Edge","group":"road","source":"a","destination":"b","directed":true,"properties":{"count":2}},
		{"class":"Edge","group":"road","source":"a","destination":"b","directed":true,"properties":{"count":3}}
	]}`)
	_, err := run(t, "execute", "--config", cfgPath, "--user", "alice", "--chain", add)
	require.NoError(t, err)

	get := writeChain(t, `{"class":"OperationChain","operations":[{"class":"GetAllElements"}]}`)
	out, err := run(t, "execute", "--config", cfgPath, "--user", "alice", "--chain", get)
	require.NoError(t, err)

	var elements []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &elements))
	require.Len(t, elements, 1)
	assert.Equal(t, "road", elements[0]["group"])
	assert.EqualValues(t, 5, elements[0]["properties"].(map[string]any)["count"])
}

func TestExecute_Job(t *testing.T) {
	cfgPath := setup(t)
	chain := writeChain(t, `{"class":"OperationChain","operations":[{"class":"GetAllElements"},{"class":"Count"}]}`)

	out, err := run(t, "execute", "--config", cfgPath, "--user", "alice", "--chain", chain, "--job")
	require.NoError(t, err)

	var detail map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &detail))
	assert.Equal(t, "FINISHED", detail["status"])

	out, err = run(t, "jobs", "list", "--config", cfgPath, "--user", "alice", "--json")
	require.NoError(t, err)
	var details []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &details))
	require.Len(t, details, 1)
	assert.Equal(t, detail["jobId"], details[0]["jobId"])

	out, err = run(t, "jobs", "list", "--config", cfgPath, "--user", "alice")
	require.NoError(t, err)
	assert.Contains(t, out, "JOB ID")
	assert.Contains(t, out, "FINISHED")
}

func TestExecute_Errors(t *testing.T) {
	cfgPath := setup(t)
	tests := []struct {
		name  string
		chain string
	}{
		{name: "unknown class", chain: `{"class":"DropTable"}`},
		{name: "malformed json", chain: `{"class":`},
		{name: "invalid operation", chain: `{"class":"Limit","resultLimit":-1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, "execute", "--config", cfgPath, "--chain", writeChain(t, tt.chain))
			assert.Error(t, err)
		})
	}
}

func TestSchemaValidate(t *testing.T) {
	cfgPath := setup(t)
	out, err := run(t, "schema", "validate", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "0 entity groups, 1 edge groups, 3 types")

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("edges:\n  road:\n    source: missing.type\n"), 0o644))
	_, err = run(t, "schema", "validate", "--config", cfgPath, bad)
	assert.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	out, err := run(t, "config", "validate", "--config", setup(t))
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration valid (graph cli, store bolt)")
}

func TestRender(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, render(&buf, []string(nil)))
	assert.Equal(t, "[]\n", buf.String(), "empty sequences render as arrays")

	buf.Reset()
	require.NoError(t, render(&buf, map[string]int{"a": 1}))
	assert.Equal(t, "{\"a\":1}\n", buf.String(), "non-terminal output is compact")
}

func TestCurrentUser(t *testing.T) {
	userID, dataAuths = "bob", " public, ,private"
	defer func() { userID, dataAuths = "", "" }()
	assert.Equal(t, engine.User{ID: "bob", DataAuths: []string{"public", "private"}}, currentUser())
}
