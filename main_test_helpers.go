package main

import (
	"bytes"
	"os"
	"testing"
)

// useBufferWriters swaps stdOut/stdErr with in-memory buffers for the
// duration of a test, allowing assertions on CLI output without polluting
// test logs.
func useBufferWriters(t *testing.T) {
	t.Helper()

	outBuf := &bytes.Buffer{}
	errBuf := &bytes.Buffer{}

	prevOut := stdOut
	prevErr := stdErr

	stdOut = outBuf
	stdErr = errBuf

	t.Cleanup(func() {
		stdOut = prevOut
		stdErr = prevErr
	})
}

// configFixture writes body to a temp file under t.TempDir and returns its
// path, letting CLI tests exercise config loading without fixture files.
func configFixture(t *testing.T, body string) string {
	t.Helper()
	path := t.TempDir() + "/config.toml"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config fixture: %v", err)
	}
	return path
}
