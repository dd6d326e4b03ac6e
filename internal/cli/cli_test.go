package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Pipewright/internal/engine"
)

const typingConfig = `
name: typing
pipeline: mentalist
recipe: ""
recipes:
  fork3: "integrity_coverage (mentalist | mentalist | mentalist)"
sources:
  fastq_pair: { shape: pair, path: "/data/reads/*_{1,2}.fq.gz" }
params:
  kmer_db:
    "1": /data/db1
    "2": /data/db1
    "3": /data/db1
    "4": /data/db1
`

type harness struct {
	dir    string
	config string
	stdout bytes.Buffer
	stderr bytes.Buffer
	exists func(string) bool
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{dir: t.TempDir(), exists: func(string) bool { return true }}
	h.config = filepath.Join(h.dir, "pipewright.yaml")
	require.NoError(t, os.WriteFile(h.config, []byte(typingConfig), 0o644))
	return h
}

func (h *harness) run(args ...string) int {
	h.stdout.Reset()
	h.stderr.Reset()
	env := Env{
		Stdout:    &h.stdout,
		Stderr:    &h.stderr,
		LookupEnv: func(string) (string, bool) { return "", false },
		Resources: engine.ResourceFunc(func(p string) (bool, error) { return h.exists(p), nil }),
	}
	return Run(context.Background(), "test", append([]string{"-c", h.config}, args...), env)
}

func TestBuild_MissingExternalResource(t *testing.T) {
	h := newHarness(t)
	h.exists = func(p string) bool { return p != "/data/db1" }

	code := h.run("build")
	assert.Equal(t, 1, code)
	assert.Equal(t, "config key 'kmer_db1': external resource not found: '/data/db1'\n", h.stderr.String())
	assert.Empty(t, h.stdout.String())
}

func TestBuild_SingleNodeToFile(t *testing.T) {
	h := newHarness(t)
	out := filepath.Join(h.dir, "typing")

	require.Equal(t, 0, h.run("build", "-o", out), h.stderr.String())

	script, err := os.ReadFile(out + ".nf")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(script), "#!/usr/bin/env nextflow"))
	assert.Contains(t, string(script), "process mentalist_1")
	assert.NotContains(t, string(script), "fork_")
	assert.Contains(t, h.stderr.String(), out+".nf")
}

func TestBuild_Stdout(t *testing.T) {
	h := newHarness(t)

	require.Equal(t, 0, h.run("build", "--recipe", "fork3"), h.stderr.String())
	script := h.stdout.String()
	for _, p := range []string{"mentalist_2", "mentalist_3", "mentalist_4"} {
		assert.Contains(t, script, "process "+p)
	}
	assert.Contains(t, script, "// fork_1 from")
}

func TestCheck_JSON(t *testing.T) {
	h := newHarness(t)

	require.Equal(t, 0, h.run("check", "--json", "-r", "fork3"), h.stderr.String())

	var report checkReportJSON
	require.NoError(t, json.Unmarshal(h.stdout.Bytes(), &report))
	assert.True(t, report.Valid)
	assert.Equal(t, 4, report.Nodes)
	assert.Equal(t, 1, report.Forks)
	assert.Equal(t, "integrity_coverage (mentalist | mentalist | mentalist)", report.Topology)
}

func TestCheck_ReportsAllErrors(t *testing.T) {
	h := newHarness(t)

	code := h.run("check", "-t", "nope mentalist also_nope")
	assert.Equal(t, 1, code)

	stderr := h.stderr.String()
	assert.Contains(t, stderr, "TemplateNotFound")
	assert.Contains(t, stderr, "nope")
	assert.Contains(t, stderr, "also_nope")
	assert.Contains(t, stderr, "pipeline has")
}

func TestCheck_TopologySyntax(t *testing.T) {
	h := newHarness(t)

	assert.Equal(t, 1, h.run("check", "-t", "a (b | c) d"))
	assert.Equal(t, 1, strings.Count(h.stderr.String(), "\n"))
}

func TestBuild_Dependencies(t *testing.T) {
	h := newHarness(t)

	require.Equal(t, 0, h.run("build", "-t", "fastqc"), h.stderr.String())
	assert.Contains(t, h.stdout.String(), "process integrity_coverage_1")
	assert.Contains(t, h.stdout.String(), "process fastqc_2")

	require.Equal(t, 0, h.run("build", "-t", "fastqc", "--no-dependency"), h.stderr.String())
	assert.NotContains(t, h.stdout.String(), "integrity_coverage")
	assert.Contains(t, h.stdout.String(), "process fastqc_1")

	require.Equal(t, 0, h.run("check", "--json", "-t", "fastqc"), h.stderr.String())
	var report checkReportJSON
	require.NoError(t, json.Unmarshal(h.stdout.Bytes(), &report))
	assert.Equal(t, 2, report.Nodes)
}

func TestBuild_UnknownRecipe(t *testing.T) {
	h := newHarness(t)

	assert.Equal(t, 1, h.run("build", "-r", "nope"))
	assert.Contains(t, h.stderr.String(), "unknown recipe")
	assert.Contains(t, h.stderr.String(), "fork3")
}

func TestListShowRecipes(t *testing.T) {
	h := newHarness(t)

	require.Equal(t, 0, h.run("list"))
	assert.Contains(t, h.stdout.String(), "mentalist")

	require.Equal(t, 0, h.run("list", "-d"))
	assert.Contains(t, h.stdout.String(), "kmer_db:file(external)")

	require.Equal(t, 0, h.run("show", "mentalist", "--body"))
	assert.Contains(t, h.stdout.String(), "process mentalist_")

	require.Equal(t, 0, h.run("show", "fastqc"))
	assert.Contains(t, h.stdout.String(), "integrity_coverage")

	assert.Equal(t, 1, h.run("show", "nope"))

	require.Equal(t, 0, h.run("recipes"))
	assert.Contains(t, h.stdout.String(), "fork3")
}

func TestListTemplatesOverride(t *testing.T) {
	h := newHarness(t)
	tplDir := filepath.Join(h.dir, "templates")
	require.NoError(t, os.Mkdir(tplDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(tplDir, "custom.hcl"), []byte(`
template "fastqc" {
  description = "local fastqc"
  body        = "fastqc"
}
`), 0o644))

	require.Equal(t, 0, h.run("--templates", tplDir, "list"))
	assert.Contains(t, h.stdout.String(), "local fastqc")
}

func TestScriptPath(t *testing.T) {
	assert.Equal(t, "out.nf", scriptPath("out"))
	assert.Equal(t, "out.nf", scriptPath("out.nf"))
	assert.Equal(t, "dir/out.groovy", scriptPath("dir/out.groovy"))
}

func TestRemoteSubmit(t *testing.T) {
	var got BuildRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v1/builds" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"data":{"id":"b-1","name":"typing","status":"QUEUED","created_at":"now"}}`))
	}))
	defer srv.Close()

	h := newHarness(t)
	require.Equal(t, 0, h.run("remote", "--api-url", srv.URL, "submit", "-r", "fork3"), h.stderr.String())

	assert.Equal(t, "typing", got.Name)
	assert.Equal(t, "integrity_coverage (mentalist | mentalist | mentalist)", got.Pipeline)
	assert.Equal(t, "/data/db1", got.Params["kmer_db"]["2"])
	assert.False(t, got.NoDependency)
	assert.Contains(t, h.stderr.String(), "Build queued: b-1")
	assert.Contains(t, h.stdout.String(), "QUEUED")
}

func TestRemote_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"code":"NOT_FOUND","message":"build not found"}}`))
	}))
	defer srv.Close()

	h := newHarness(t)
	assert.Equal(t, 1, h.run("remote", "--api-url", srv.URL, "status", "x"))
	assert.Equal(t, "NOT_FOUND: build not found\n", h.stderr.String())
}
