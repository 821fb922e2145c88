// Package binfmt classifies files as platform-native binaries.
//
// Classification first looks at the file extension and only falls back
// to reading the 4-byte magic prefix when the extension is not known.
package binfmt

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Class is the result of classifying a file.
type Class int

const (
	// Unknown means the extension alone is not enough and the content must be sniffed.
	Unknown Class = iota
	Binary
	NonBinary
)

func (c Class) String() string {
	switch c {
	case Binary:
		return "binary"
	case NonBinary:
		return "non-binary"
	default:
		return "unknown"
	}
}

// These only exist to avoid reading files whose kind is obvious from the name.
var (
	binaryExts = map[string]struct{}{
		".a":     {},
		".dylib": {},
	}
	regularExts = map[string]struct{}{
		".h":    {},
		".hpp":  {},
		".hxx":  {},
		".c":    {},
		".cc":   {},
		".cxx":  {},
		".cpp":  {},
		".m":    {},
		".mm":   {},
		".txt":  {},
		".md":   {},
		".html": {},
		".jpg":  {},
		".png":  {},
	}
)

const magicLen = 4

var magics = [][magicLen]byte{
	{0xca, 0xfe, 0xba, 0xbe}, // fat, big endian
	{0xbe, 0xba, 0xfe, 0xca}, // fat, little endian
	{0xcf, 0xfa, 0xed, 0xfe}, // 64-bit object, little endian
	{0xfe, 0xed, 0xfa, 0xcf}, // 64-bit object, big endian
	{0xce, 0xfa, 0xed, 0xfe}, // 32-bit object, little endian
	{0xfe, 0xed, 0xfa, 0xce}, // 32-bit object, big endian
	{'!', '<', 'a', 'r'},     // ar archive ("!<arch>\n")
}

// ClassifyName classifies by extension only. It never touches the file system.
func ClassifyName(name string) Class {
	ext := filepath.Ext(name)
	if _, ok := binaryExts[ext]; ok {
		return Binary
	}
	if _, ok := regularExts[ext]; ok {
		return NonBinary
	}
	return Unknown
}

// Sniff reads at most four bytes from r and matches them against the
// known magic numbers. Inputs shorter than four bytes are NonBinary.
func Sniff(r io.Reader) (Class, error) {
	var header [magicLen]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return NonBinary, nil
		}
		return Unknown, err
	}
	for _, m := range magics {
		if bytes.Equal(header[:], m[:]) {
			return Binary, nil
		}
	}
	return NonBinary, nil
}

// Classify returns Binary or NonBinary for the file at path.
func Classify(path string) (Class, error) {
	if c := ClassifyName(path); c != Unknown {
		return c, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return Unknown, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	c, err := Sniff(f)
	if err != nil {
		return Unknown, fmt.Errorf("read header of %s: %w", path, err)
	}
	return c, nil
}

// IsBinary reports whether path holds a native binary object.
func IsBinary(path string) (bool, error) {
	c, err := Classify(path)
	if err != nil {
		return false, err
	}
	return c == Binary, nil
}
