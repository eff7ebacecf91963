package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pscheid92/electionwatch/internal/domain"
)

const (
	oldPayload = `{"P":{
		"0":[["Nevada",1000,2000,50],[["Joe","Biden","dem",0,520],["Donald","Trump","gop",0,480]]],
		"1":[["Georgia",5000,6000,83],[["Joe","Biden","dem",0,2500],["Donald","Trump","gop",0,2500]]]
	}}`
	newPayload = `{"P":{
		"0":[["Nevada",1050,2000,52],[["Joe","Biden","dem",0,545],["Donald","Trump","gop",0,505]]],
		"1":[["Georgia",5005,6000,83],[["Joe","Biden","dem",0,2503],["Donald","Trump","gop",0,2502]]]
	}}`
)

func writePayloads(t *testing.T, old, latest string) (string, string) {
	t.Helper()
	dir := t.TempDir()
	oldPath := filepath.Join(dir, "old.json")
	newPath := filepath.Join(dir, "new.json")
	require.NoError(t, os.WriteFile(oldPath, []byte(old), 0o600))
	require.NoError(t, os.WriteFile(newPath, []byte(latest), 0o600))
	return oldPath, newPath
}

func TestRun_PrintsChangedRegions(t *testing.T) {
	oldPath, newPath := writePayloads(t, oldPayload, newPayload)
	var out bytes.Buffer

	err := run([]string{"-old", oldPath, "-new", newPath, "-regions", "nv,Georgia"}, &out)

	require.NoError(t, err)
	assert.Contains(t, out.String(), "More votes are in for Nevada.")
	assert.Contains(t, out.String(), "Joe Biden gained 25 votes.")
	// Georgia moved by 5, below the default threshold.
	assert.NotContains(t, out.String(), "Georgia")
}

func TestRun_LowerThreshold(t *testing.T) {
	oldPath, newPath := writePayloads(t, oldPayload, newPayload)
	var out bytes.Buffer

	err := run([]string{"-old", oldPath, "-new", newPath, "-regions", "Nevada,Georgia", "-threshold", "4"}, &out)

	require.NoError(t, err)
	assert.Contains(t, out.String(), "More votes are in for Georgia.")
	assert.Contains(t, out.String(), "More votes are in for Nevada.")
}

func TestRun_NoChanges(t *testing.T) {
	oldPath, newPath := writePayloads(t, oldPayload, oldPayload)
	var out bytes.Buffer

	require.NoError(t, run([]string{"-old", oldPath, "-new", newPath}, &out))
	assert.Equal(t, "No changes.\n", out.String())
}

func TestRun_UnknownRegion(t *testing.T) {
	oldPath, newPath := writePayloads(t, oldPayload, newPayload)

	err := run([]string{"-old", oldPath, "-new", newPath, "-regions", "Atlantis"}, &bytes.Buffer{})

	assert.ErrorIs(t, err, domain.ErrUnknownRegion)
}

func TestRun_MalformedPayload(t *testing.T) {
	oldPath, newPath := writePayloads(t, oldPayload, `{"P": 7}`)

	err := run([]string{"-old", oldPath, "-new", newPath}, &bytes.Buffer{})

	assert.ErrorIs(t, err, domain.ErrMalformedPayload)
}

func TestRun_MissingFile(t *testing.T) {
	err := run([]string{"-old", filepath.Join(t.TempDir(), "nope.json")}, &bytes.Buffer{})

	assert.ErrorContains(t, err, "read ")
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a", "b c"}, splitList(" a, ,b c,"))
	assert.Nil(t, splitList(""))
}
