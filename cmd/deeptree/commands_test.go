package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/the-deep/deeptree/internal/codec"
)

const sampleYAML = `key: r
label: Sectors
children:
  - key: h
    label: Health
    selected: true
    children:
      - key: n
        label: Nutrition
        selected: true
      - key: w
        label: WASH
  - key: e
    label: ""
`

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func sampleFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sectors.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o644))
	return path
}

func TestShow(t *testing.T) {
	out, err := run(t, "show", sampleFile(t))
	require.NoError(t, err)
	require.Contains(t, out, "[-] Sectors")
	require.Contains(t, out, "[-] Health")
	require.Contains(t, out, "[x] Nutrition")
	require.Contains(t, out, "[ ] WASH")
	require.Contains(t, out, "[ ] Unnamed")
}

func TestFlatten(t *testing.T) {
	out, err := run(t, "flatten", sampleFile(t))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Equal(t, []string{
		"r\tSectors",
		"h\tSectors/Health",
		"n\tSectors/Health/Nutrition",
		"w\tSectors/Health/WASH",
		"e\tSectors/",
	}, lines)

	out, err = run(t, "flatten", "--search", "wash", sampleFile(t))
	require.NoError(t, err)
	require.Equal(t, "w\tSectors/Health/WASH\n", out)
}

func TestValidate(t *testing.T) {
	out, err := run(t, "validate", sampleFile(t))
	require.NoError(t, err)
	require.Equal(t, "ok: 1 roots, 5 nodes, depth 3\n", out)

	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`[{"key":"a"},{"key":"a"}]`), 0o644))
	_, err = run(t, "validate", bad)
	require.Error(t, err)
}

func TestConvert(t *testing.T) {
	out, err := run(t, "convert", "--format", "json", sampleFile(t))
	require.NoError(t, err)
	root, err := codec.DecodeNode(strings.NewReader(out), codec.JSON)
	require.NoError(t, err)
	require.Equal(t, "Sectors", root.Label)
	require.Len(t, root.Children, 2)

	_, err = run(t, "convert", "--format", "xml", sampleFile(t))
	require.Error(t, err)
}

func TestConvertDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "outline.txt")
	require.NoError(t, os.WriteFile(path, []byte("Health\n  Nutrition\nShelter\n"), 0o644))

	out, err := run(t, "convert", "--format", "yaml", path)
	require.NoError(t, err)
	root, err := codec.DecodeNode(strings.NewReader(out), codec.YAML)
	require.NoError(t, err)
	require.Equal(t, "outline", root.Label)
	require.Len(t, root.Children, 2)
	require.Len(t, root.Children[0].Children, 1)
}

func TestSelected(t *testing.T) {
	out, err := run(t, "selected", sampleFile(t))
	require.NoError(t, err)
	require.Equal(t, "h\nn\n", out)
}

func TestNullChildRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "holes.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"key":"r","children":[null,{"key":"a"}]}`), 0o644))

	for _, name := range []string{"show", "flatten", "selected", "validate"} {
		t.Run(name, func(t *testing.T) {
			require.NotPanics(t, func() {
				_, err := run(t, name, path)
				require.ErrorContains(t, err, "nil node")
			})
		})
	}
}

func TestConvertFillKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keyless.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"label":"Sectors","children":[{"label":"Health"}]}`), 0o644))

	_, err := run(t, "convert", path)
	require.ErrorContains(t, err, "empty key")

	out, err := run(t, "convert", "--fill-keys", path)
	require.NoError(t, err)
	root, err := codec.DecodeNode(strings.NewReader(out), codec.JSON)
	require.NoError(t, err)
	require.NotEmpty(t, root.Key)
	require.NotEmpty(t, root.Children[0].Key)
}

func TestUnsupportedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.bin")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	_, err := run(t, "show", path)
	require.Error(t, err)
}
