package unipkg_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/aweris/unipkg"
)

var machO = []byte{0xcf, 0xfa, 0xed, 0xfe}

func binary(marker byte) string {
	data := append([]byte{}, machO...)
	data = append(data, bytes.Repeat([]byte{marker}, 1020)...)
	return string(data)
}

type fakeHost struct {
	mu        sync.Mutex
	outputs   map[string]map[string]string // variant name -> files
	single    map[string]string
	generator string
	buildErr  error

	builds     []string
	packages   int
	lastFilter unipkg.CopyFilter
	idCalls    [][]string
}

func (h *fakeHost) BuildVariant(_ context.Context, _ *unipkg.Package, v unipkg.Variant, root string) error {
	h.mu.Lock()
	h.builds = append(h.builds, v.Name())
	h.mu.Unlock()
	if h.buildErr != nil {
		return h.buildErr
	}
	return writeFiles(root, h.outputs[v.Name()])
}

func (h *fakeHost) Package(_ context.Context, _ *unipkg.Package, dst string, filter unipkg.CopyFilter) error {
	h.packages++
	h.lastFilter = filter
	kept := map[string]string{}
	for name, content := range h.single {
		if filter != nil && filter(name) {
			continue
		}
		kept[name] = content
	}
	return writeFiles(dst, kept)
}

func (h *fakeHost) VariantIdentity(_ context.Context, pkg *unipkg.Package, variants []unipkg.Variant) (unipkg.Identity, error) {
	names := make([]string, len(variants))
	for i, v := range variants {
		names[i] = v.Name()
	}
	h.idCalls = append(h.idCalls, names)
	return unipkg.Identity("variants:" + strings.Join(names, ",")), nil
}

func (h *fakeHost) Generator(*unipkg.Package) unipkg.Optional[string] {
	if h.generator == "" {
		return unipkg.None[string]()
	}
	return unipkg.Some(h.generator)
}

// fakeLipo writes "fat:" followed by its inputs to the output path.
type fakeLipo struct {
	calls [][]string
	err   error
}

func (r *fakeLipo) Run(_ context.Context, argv []string) error {
	r.calls = append(r.calls, argv)
	if r.err != nil {
		return r.err
	}
	var b strings.Builder
	b.WriteString("fat:")
	for _, src := range argv[4:] {
		data, err := os.ReadFile(src)
		if err != nil {
			return err
		}
		b.Write(data)
	}
	return os.WriteFile(argv[3], []byte(b.String()), 0644)
}

func writeFiles(root string, files map[string]string) error {
	if err := os.MkdirAll(root, 0755); err != nil {
		return err
	}
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return err
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			return err
		}
	}
	return nil
}

func readFiles(t *testing.T, root string) map[string]string {
	t.Helper()
	files := map[string]string{}
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(root, path)
		files[filepath.ToSlash(rel)] = string(data)
		return nil
	})
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}
	return files
}

func macPackage(variants ...string) *unipkg.Package {
	pkg := &unipkg.Package{
		Name:    "libx",
		Version: "1.0",
		Settings: unipkg.NewSettings(map[string]string{
			unipkg.FieldOS:   "Macos",
			unipkg.FieldArch: "x86_64",
		}),
		Generators: []string{"cmake"},
	}
	for _, name := range variants {
		pkg.Variants = append(pkg.Variants, unipkg.NewVariant(name, map[string]string{unipkg.ConstraintArch: name}))
	}
	return pkg
}

func abHost() *fakeHost {
	return &fakeHost{
		outputs: map[string]map[string]string{
			"A": {
				"lib/libx.a":       binary('A'),
				"lib/README.md":    "readme A",
				"include/x.h":      "header A",
				"share/a-only.txt": "only A",
			},
			"B": {
				"lib/libx.a":       binary('B'),
				"include/x.h":      "header B",
				"share/b-only.txt": "only B",
			},
		},
	}
}

func TestPackageMergesVariants(t *testing.T) {
	host := abHost()
	runner := &fakeLipo{}
	stage := unipkg.New(host, unipkg.WithRunner(runner))
	root := filepath.Join(t.TempDir(), "p")

	pkg := macPackage("A", "B")
	if !stage.IsMergeable(pkg) {
		t.Fatal("IsMergeable = false, want true")
	}

	res, err := stage.Package(context.Background(), pkg, root)
	if err != nil {
		t.Fatalf("Package: %v", err)
	}
	if res.Mode != unipkg.ModeMerged {
		t.Errorf("Mode = %s, want merged", res.Mode)
	}
	if host.packages != 0 {
		t.Errorf("single package step ran %d times, want 0", host.packages)
	}

	want := map[string]string{
		"lib/libx.a":       "fat:" + binary('A') + binary('B'),
		"lib/README.md":    "readme A",
		"include/x.h":      "header A",
		"share/a-only.txt": "only A",
	}
	if diff := cmp.Diff(want, readFiles(t, root)); diff != "" {
		t.Errorf("package root (-want +got):\n%s", diff)
	}
	if len(runner.calls) != 1 {
		t.Errorf("fusion ran %d times, want 1", len(runner.calls))
	}
	if _, err := os.Stat(filepath.Join(root, unipkg.DefaultStagingDir)); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("staging folder still present: %v", err)
	}
}

func TestMergeGraftOrder(t *testing.T) {
	host := abHost()
	stage := unipkg.New(host, unipkg.WithRunner(&fakeLipo{}), unipkg.WithGraftOrder("B"))
	root := filepath.Join(t.TempDir(), "p")

	if _, err := stage.Package(context.Background(), macPackage("A", "B"), root); err != nil {
		t.Fatalf("Package: %v", err)
	}

	got := readFiles(t, root)
	if got["include/x.h"] != "header B" {
		t.Errorf("include/x.h = %q, want the copy of the first grafted variant", got["include/x.h"])
	}
	if got["lib/libx.a"] != "fat:"+binary('B')+binary('A') {
		t.Errorf("fused inputs should follow graft order")
	}
}

func TestMergeUnknownGraftOrder(t *testing.T) {
	stage := unipkg.New(abHost(), unipkg.WithRunner(&fakeLipo{}), unipkg.WithGraftOrder("C"))
	_, err := stage.Package(context.Background(), macPackage("A", "B"), t.TempDir())
	if !errors.Is(err, unipkg.ErrUnknownVariant) {
		t.Fatalf("Package: got %v, want ErrUnknownVariant", err)
	}
}

func TestMergeFusionFailure(t *testing.T) {
	host := abHost()
	stage := unipkg.New(host, unipkg.WithRunner(&fakeLipo{err: errors.New("exit status 1")}))
	root := filepath.Join(t.TempDir(), "p")

	_, err := stage.Package(context.Background(), macPackage("A", "B"), root)
	if !errors.Is(err, unipkg.ErrFusion) {
		t.Fatalf("Package: got %v, want ErrFusion", err)
	}
	if _, err := os.Stat(filepath.Join(root, unipkg.DefaultStagingDir, "A")); err != nil {
		t.Errorf("staging should be kept after a failed merge: %v", err)
	}
}

func TestMergeRootsSingleCandidateCopies(t *testing.T) {
	root := t.TempDir()
	a := filepath.Join(root, "variants", "A")
	b := filepath.Join(root, "variants", "B")
	if err := writeFiles(a, map[string]string{"lib/libx.a": binary('A')}); err != nil {
		t.Fatal(err)
	}
	if err := writeFiles(b, map[string]string{"lib/liby.a": binary('B')}); err != nil {
		t.Fatal(err)
	}

	runner := &fakeLipo{}
	stage := unipkg.New(&fakeHost{}, unipkg.WithRunner(runner))
	if err := stage.MergeRoots(context.Background(), root, []string{a, b}); err != nil {
		t.Fatalf("MergeRoots: %v", err)
	}

	if len(runner.calls) != 0 {
		t.Errorf("fusion should never run with single candidates: %v", runner.calls)
	}
	want := map[string]string{
		"lib/libx.a": binary('A'),
		"lib/liby.a": binary('B'),
	}
	if diff := cmp.Diff(want, readFiles(t, root)); diff != "" {
		t.Errorf("package root (-want +got):\n%s", diff)
	}
}

func TestMergeRootsFusesExternalRoots(t *testing.T) {
	trees := t.TempDir()
	a := filepath.Join(trees, "A")
	b := filepath.Join(trees, "B")
	if err := writeFiles(a, map[string]string{"lib/libx.a": binary('A'), "README.md": "from A"}); err != nil {
		t.Fatal(err)
	}
	if err := writeFiles(b, map[string]string{"lib/libx.a": binary('B'), "README.md": "from B"}); err != nil {
		t.Fatal(err)
	}

	root := filepath.Join(t.TempDir(), "P")
	runner := &fakeLipo{}
	stage := unipkg.New(&fakeHost{}, unipkg.WithRunner(runner))
	if err := stage.MergeRoots(context.Background(), root, []string{a, b}); err != nil {
		t.Fatalf("MergeRoots: %v", err)
	}

	if len(runner.calls) != 1 {
		t.Fatalf("fusion ran %d times, want 1: %v", len(runner.calls), runner.calls)
	}
	want := map[string]string{
		"lib/libx.a": "fat:" + binary('A') + binary('B'),
		"README.md":  "from A",
	}
	if diff := cmp.Diff(want, readFiles(t, root)); diff != "" {
		t.Errorf("package root (-want +got):\n%s", diff)
	}
	if _, err := os.Stat(filepath.Join(a, "lib", "libx.a")); err != nil {
		t.Errorf("roots outside the package root must be kept: %v", err)
	}
}

func TestMergeStagingConflict(t *testing.T) {
	host := abHost()
	host.outputs["B"]["variants/notes.txt"] = "lost"
	root := t.TempDir()
	for _, name := range []string{"A", "B"} {
		if err := writeFiles(filepath.Join(root, "variants", name), host.outputs[name]); err != nil {
			t.Fatal(err)
		}
	}

	runner := &fakeLipo{}
	stage := unipkg.New(host, unipkg.WithRunner(runner))
	err := stage.Merge(context.Background(), root, macPackage("A", "B").Variants)
	if !errors.Is(err, unipkg.ErrStagingConflict) {
		t.Fatalf("Merge: got %v, want ErrStagingConflict", err)
	}
	if len(runner.calls) != 0 {
		t.Errorf("nothing should be merged on conflict: %v", runner.calls)
	}
	if _, err := os.Stat(filepath.Join(root, "variants", "B", "variants", "notes.txt")); err != nil {
		t.Errorf("staged output must be kept: %v", err)
	}
}

func TestPackageBuildFailure(t *testing.T) {
	host := abHost()
	host.buildErr = errors.New("compiler exploded")
	stage := unipkg.New(host, unipkg.WithRunner(&fakeLipo{}))

	_, err := stage.Package(context.Background(), macPackage("A", "B"), t.TempDir())
	if !errors.Is(err, host.buildErr) {
		t.Fatalf("Package: got %v, want build error", err)
	}
}

func TestNativeMultiArchBuildsOnce(t *testing.T) {
	host := abHost()
	host.generator = "Xcode"
	host.single = map[string]string{
		"lib/libx.a": binary('U'),
		"build/x.build/Release/x.build/Objects-normal/arm64/x.o": "object",
	}
	stage := unipkg.New(host, unipkg.WithRunner(&fakeLipo{}))
	root := t.TempDir()

	pkg := macPackage("A", "B")
	if stage.IsMergeable(pkg) {
		t.Fatal("IsMergeable = true for a native multi-arch toolchain")
	}
	if !stage.Gate().NativeMultiArch(pkg) {
		t.Fatal("NativeMultiArch = false, want true")
	}

	res, err := stage.Package(context.Background(), pkg, root)
	if err != nil {
		t.Fatalf("Package: %v", err)
	}
	if res.Mode != unipkg.ModeNative {
		t.Errorf("Mode = %s, want native", res.Mode)
	}
	if host.packages != 1 || len(host.builds) != 0 {
		t.Errorf("packages=%d builds=%v, want exactly one package step", host.packages, host.builds)
	}
	want := map[string]string{"lib/libx.a": binary('U')}
	if diff := cmp.Diff(want, readFiles(t, root)); diff != "" {
		t.Errorf("package root (-want +got):\n%s", diff)
	}
}

func TestNotMergeable(t *testing.T) {
	headerOnly := macPackage("A", "B")
	headerOnly.Options = unipkg.NewPackageOptions(map[string]string{"header_only": "True"})

	linux := macPackage("A", "B")
	linux.Settings = unipkg.NewSettings(map[string]string{unipkg.FieldOS: "Linux", unipkg.FieldArch: "x86_64"})

	noArch := macPackage("A", "B")
	noArch.Settings = unipkg.NewSettings(map[string]string{unipkg.FieldOS: "Macos"})

	cases := []struct {
		note string
		pkg  *unipkg.Package
	}{
		{"header only", headerOnly},
		{"not apple", linux},
		{"no arch", noArch},
		{"one variant", macPackage("A")},
		{"no variants", macPackage()},
	}

	for _, tc := range cases {
		t.Run(tc.note, func(t *testing.T) {
			host := abHost()
			host.single = map[string]string{"include/x.h": "x"}
			stage := unipkg.New(host, unipkg.WithRunner(&fakeLipo{}))

			if stage.IsMergeable(tc.pkg) {
				t.Fatal("IsMergeable = true, want false")
			}
			res, err := stage.Package(context.Background(), tc.pkg, t.TempDir())
			if err != nil {
				t.Fatalf("Package: %v", err)
			}
			if res.Mode != unipkg.ModeSingle {
				t.Errorf("Mode = %s, want single", res.Mode)
			}
			if host.packages != 1 || host.lastFilter != nil {
				t.Errorf("want one unfiltered package step, got %d", host.packages)
			}
		})
	}
}

func TestAdjustedIdentity(t *testing.T) {
	headerOnly := macPackage("A", "B")
	headerOnly.Options = unipkg.NewPackageOptions(map[string]string{"header_only": "true"})

	multiarch := macPackage("A", "B")
	multiarch.Settings = unipkg.NewSettings(map[string]string{
		unipkg.FieldOS:        "Macos",
		unipkg.FieldArch:      "x86_64",
		unipkg.FieldMultiarch: "x86_64 armv8",
	})

	cases := []struct {
		note string
		pkg  *unipkg.Package
		exp  unipkg.Identity
	}{
		{"merged", macPackage("A", "B"), "variants:A,B"},
		{"native", multiarch, "variants:A,B"},
		{"header only", headerOnly, "default"},
		{"single variant", macPackage("A"), "default"},
	}

	for _, tc := range cases {
		t.Run(tc.note, func(t *testing.T) {
			stage := unipkg.New(&fakeHost{})
			got, err := stage.AdjustedIdentity(context.Background(), tc.pkg, "default")
			if err != nil {
				t.Fatalf("AdjustedIdentity: %v", err)
			}
			if got != tc.exp {
				t.Errorf("AdjustedIdentity = %q, want %q", got, tc.exp)
			}
		})
	}
}
