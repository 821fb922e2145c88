package binfmt

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestClassifyKnownExtensionsSkipRead(t *testing.T) {
	dir := t.TempDir()

	// None of these files exist, so any attempt to read them would fail.
	cases := []struct {
		name string
		want Class
	}{
		{"libfoo.a", Binary},
		{"libfoo.dylib", Binary},
		{"foo.h", NonBinary},
		{"foo.hpp", NonBinary},
		{"foo.cpp", NonBinary},
		{"foo.mm", NonBinary},
		{"README.md", NonBinary},
		{"logo.png", NonBinary},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Classify(filepath.Join(dir, tc.name))
			if err != nil {
				t.Fatalf("Classify: %v", err)
			}
			if got != tc.want {
				t.Errorf("Classify(%s) = %v, want %v", tc.name, got, tc.want)
			}
		})
	}
}

func TestClassifyNameUnknown(t *testing.T) {
	for _, name := range []string{"foo", "foo.so", "bin/tool", "foo.A"} {
		if got := ClassifyName(name); got != Unknown {
			t.Errorf("ClassifyName(%s) = %v, want unknown", name, got)
		}
	}
}

func TestSniff(t *testing.T) {
	cases := []struct {
		note  string
		input []byte
		want  Class
	}{
		{"fat big endian", []byte{0xca, 0xfe, 0xba, 0xbe, 0, 0, 0, 2}, Binary},
		{"fat little endian", []byte{0xbe, 0xba, 0xfe, 0xca}, Binary},
		{"object 64", []byte{0xcf, 0xfa, 0xed, 0xfe, 7, 0, 0, 1}, Binary},
		{"object 64 big endian", []byte{0xfe, 0xed, 0xfa, 0xcf}, Binary},
		{"object 32", []byte{0xce, 0xfa, 0xed, 0xfe}, Binary},
		{"archive", []byte("!<arch>\nfoo.o/"), Binary},
		{"elf", []byte{0x7f, 'E', 'L', 'F'}, NonBinary},
		{"text", []byte("#!/bin/sh\necho hi\n"), NonBinary},
		{"empty", nil, NonBinary},
		{"three bytes of magic", []byte{0xca, 0xfe, 0xba}, NonBinary},
		{"one byte", []byte{0xcf}, NonBinary},
	}

	for _, tc := range cases {
		t.Run(tc.note, func(t *testing.T) {
			got, err := Sniff(bytes.NewReader(tc.input))
			if err != nil {
				t.Fatalf("Sniff: %v", err)
			}
			if got != tc.want {
				t.Errorf("Sniff = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestIsBinaryReadsUnknownExtensions(t *testing.T) {
	dir := t.TempDir()

	write := func(name string, data []byte) string {
		t.Helper()
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, data, 0755); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
		return path
	}

	binPath := write("tool", []byte{0xcf, 0xfa, 0xed, 0xfe, 0x07, 0x00, 0x00, 0x01})
	fatPath := write("libfat.so", []byte{0xca, 0xfe, 0xba, 0xbe, 0x00, 0x00, 0x00, 0x02})
	scriptPath := write("configure", []byte("#!/bin/sh\n"))
	emptyPath := write("empty", nil)
	tinyPath := write("tiny", []byte("ab"))

	for path, want := range map[string]bool{
		binPath:    true,
		fatPath:    true,
		scriptPath: false,
		emptyPath:  false,
		tinyPath:   false,
	} {
		got, err := IsBinary(path)
		if err != nil {
			t.Fatalf("IsBinary(%s): %v", path, err)
		}
		if got != want {
			t.Errorf("IsBinary(%s) = %v, want %v", filepath.Base(path), got, want)
		}
	}
}

func TestIsBinaryMissingUnknownFile(t *testing.T) {
	_, err := IsBinary(filepath.Join(t.TempDir(), "missing"))
	if err == nil {
		t.Fatal("IsBinary should fail for a missing file with an unknown extension")
	}
}
