// Package identity computes package fingerprints.
//
// A fingerprint is a BLAKE3 keyed hash over a canonical encoding of the
// package reference, its settings and options. Single-variant packages and
// universal packages hash in different domains, so the same inputs never
// collide across the two.
package identity

import (
	"encoding/binary"
	"encoding/hex"
	"hash"
	"slices"
	"strings"

	"github.com/zeebo/blake3"
)

type domainKey [32]byte

var (
	packageDomainKey = domainKey{
		'u', 'n', 'i', 'p', 'k', 'g', '.', 'i', 'd', 'e', 'n', 't', 'i', 't', 'y', '.',
		'p', 'a', 'c', 'k', 'a', 'g', 'e', 0, 0, 0, 0, 0, 0, 0, 0, 0,
	}

	universalDomainKey = domainKey{
		'u', 'n', 'i', 'p', 'k', 'g', '.', 'i', 'd', 'e', 'n', 't', 'i', 't', 'y', '.',
		'u', 'n', 'i', 'v', 'e', 'r', 's', 'a', 'l', 0, 0, 0, 0, 0, 0, 0,
	}
)

// Input is what a package identity is computed from.
type Input struct {
	Name     string
	Version  string
	Settings map[string]string
	Options  map[string]string
}

// Variant is one member of a universal package.
type Variant struct {
	Name        string
	Constraints map[string]string
}

// Package returns the identity of a package built once.
func Package(in Input) string {
	h := newHasher(packageDomainKey)
	writeInput(h, in, nil)
	return hex.EncodeToString(h.Sum(nil))
}

// Universal returns the identity of a package spanning variants. Settings a
// variant constrains are taken from the variants, not from in. Variant order
// matters: it decides which copy of a conflicting file ends up in the
// package.
func Universal(in Input, variants []Variant) string {
	overridden := map[string]struct{}{}
	for _, v := range variants {
		for k := range v.Constraints {
			overridden[k] = struct{}{}
		}
	}

	h := newHasher(universalDomainKey)
	writeInput(h, in, overridden)

	writeUint(h, uint64(len(variants)))
	for _, v := range variants {
		writeString(h, v.Name)
		writeMap(h, v.Constraints, nil)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func newHasher(key domainKey) hash.Hash {
	h, err := blake3.NewKeyed(key[:])
	if err != nil {
		// Only fails for keys that are not 32 bytes long.
		panic(err)
	}
	return h
}

func writeInput(h hash.Hash, in Input, skip map[string]struct{}) {
	writeString(h, in.Name)
	writeString(h, in.Version)
	writeMap(h, in.Settings, skip)
	writeMap(h, in.Options, nil)
}

// writeMap writes entries sorted by key, each length-prefixed.
func writeMap(h hash.Hash, m map[string]string, skip map[string]struct{}) {
	keys := make([]string, 0, len(m))
	for k := range m {
		if _, ok := skip[k]; ok {
			continue
		}
		keys = append(keys, k)
	}
	slices.SortFunc(keys, strings.Compare)

	writeUint(h, uint64(len(keys)))
	for _, k := range keys {
		writeString(h, k)
		writeString(h, m[k])
	}
}

func writeString(h hash.Hash, s string) {
	writeUint(h, uint64(len(s)))
	h.Write([]byte(s))
}

func writeUint(h hash.Hash, n uint64) {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], n)
	h.Write(buf[:])
}
