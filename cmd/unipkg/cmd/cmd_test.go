package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func run(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("unipkg %s: %v\n%s", strings.Join(args, " "), err, out.String())
	}
	return out.String()
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "unipkg.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestClassify(t *testing.T) {
	dir := t.TempDir()
	obj := filepath.Join(dir, "main.o")
	if err := os.WriteFile(obj, []byte{0xcf, 0xfa, 0xed, 0xfe, 0x07}, 0644); err != nil {
		t.Fatal(err)
	}
	header := filepath.Join(dir, "zlib.h")

	got := run(t, "classify", obj, header)
	want := "binary\t" + obj + "\nnon-binary\t" + header + "\n"
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("classify output mismatch (-want +got):\n%s", diff)
	}
}

func TestCheck(t *testing.T) {
	cfg := writeConfig(t, `
package:
  name: zlib
  settings: {os: Macos, arch: x86_64}
preset: universal
`)
	got := run(t, "--config", cfg, "check")
	want := "binary\ttrue\nnative\tfalse\napplicable\ttrue\nmergeable\ttrue\nvariants\tx86_64,armv8\n"
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("check output mismatch (-want +got):\n%s", diff)
	}
}

func TestMergeRoots(t *testing.T) {
	cfg := writeConfig(t, "package: {name: zlib}\n")
	base := t.TempDir()
	for variant, content := range map[string]string{"a": "from a", "b": "from b"} {
		dir := filepath.Join(base, variant, "share")
		if err := os.MkdirAll(dir, 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(dir, "README.md"), []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(dir, variant+".txt"), nil, 0644); err != nil {
			t.Fatal(err)
		}
	}

	root := filepath.Join(base, "pkg")
	run(t, "--config", cfg, "merge", root, filepath.Join(base, "a"), filepath.Join(base, "b"))

	data, err := os.ReadFile(filepath.Join(root, "share", "README.md"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "from a" {
		t.Errorf("README = %q, want first tree's copy", data)
	}
	for _, name := range []string{"a.txt", "b.txt"} {
		if _, err := os.Stat(filepath.Join(root, "share", name)); err != nil {
			t.Errorf("%s missing: %v", name, err)
		}
	}
}

func TestMergeRootsFusesBinaries(t *testing.T) {
	base := t.TempDir()
	tool := filepath.Join(base, "fake-lipo")
	script := "#!/bin/sh\nout=$3\nshift 3\n{ printf 'fat:'; cat \"$@\"; } > \"$out\"\n"
	if err := os.WriteFile(tool, []byte(script), 0755); err != nil {
		t.Fatal(err)
	}
	cfg := writeConfig(t, "package: {name: zlib}\nmerge: {fuse_tool: "+tool+"}\n")

	objects := map[string]string{}
	for _, variant := range []string{"a", "b"} {
		dir := filepath.Join(base, variant, "lib")
		if err := os.MkdirAll(dir, 0755); err != nil {
			t.Fatal(err)
		}
		objects[variant] = "\xcf\xfa\xed\xfe" + strings.Repeat(variant, 16)
		if err := os.WriteFile(filepath.Join(dir, "libz.a"), []byte(objects[variant]), 0644); err != nil {
			t.Fatal(err)
		}
	}

	root := filepath.Join(base, "pkg")
	run(t, "--config", cfg, "merge", root, filepath.Join(base, "a"), filepath.Join(base, "b"))

	data, err := os.ReadFile(filepath.Join(root, "lib", "libz.a"))
	if err != nil {
		t.Fatal(err)
	}
	if want := "fat:" + objects["a"] + objects["b"]; string(data) != want {
		t.Errorf("libz.a = %q, want %q", data, want)
	}
}

func TestBuildCaches(t *testing.T) {
	cache := t.TempDir()
	counter := filepath.Join(t.TempDir(), "runs")
	cfg := writeConfig(t, `
package:
  name: demo
  version: "2.0"
  settings: {os: Linux, arch: x86_64}
build:
  command: echo run >> `+counter+`; echo "$UNIPKG_NAME" > "$UNIPKG_OUTPUT/name.txt"
`)

	first := filepath.Join(t.TempDir(), "pkg")
	id := strings.TrimSpace(run(t, "--config", cfg, "--cache-dir", cache, "build", first))
	if len(id) != 64 {
		t.Fatalf("identity = %q", id)
	}

	second := filepath.Join(t.TempDir(), "pkg")
	if again := strings.TrimSpace(run(t, "--config", cfg, "--cache-dir", cache, "build", second)); again != id {
		t.Errorf("second build identity = %q, want %q", again, id)
	}

	data, err := os.ReadFile(filepath.Join(second, "name.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "demo\n" {
		t.Errorf("restored name.txt = %q", data)
	}
	runs, err := os.ReadFile(counter)
	if err != nil {
		t.Fatal(err)
	}
	if n := strings.Count(string(runs), "run"); n != 1 {
		t.Errorf("build command ran %d times, want 1", n)
	}

	listed := run(t, "--config", cfg, "--cache-dir", cache, "list")
	if strings.TrimSpace(listed) != id {
		t.Errorf("list = %q, want %q", listed, id)
	}
}
