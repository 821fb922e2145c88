package store

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/aweris/unipkg/internal/archive"
	"github.com/aweris/unipkg/internal/compression"
)

const digestPrefix = "sha256:"

// LocalStore implements Store using the local filesystem.
//
// Storage layout (one directory per package reference):
//
//	basePath/zlib/1.3/
//	  objects/
//	    ab/cd123...  (zstd-compressed tar archives)
//	  refs/
//	    <identity>  (plain text: "sha256:abc123...")
type LocalStore struct {
	basePath   string
	compressor *compression.Compressor
}

func NewLocalStore(basePath string, level compression.Level) (*LocalStore, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("create directory %s: %w", basePath, err)
	}

	compressor, err := compression.NewCompressor(level)
	if err != nil {
		return nil, fmt.Errorf("create compressor: %w", err)
	}

	return &LocalStore{basePath: basePath, compressor: compressor}, nil
}

// Compressor is the codec objects are stored with.
func (s *LocalStore) Compressor() *compression.Compressor {
	return s.compressor
}

func (s *LocalStore) Close() error {
	return s.compressor.Close()
}

// Has checks if a ref exists and points at an object on disk.
func (s *LocalStore) Has(ctx context.Context, pkg, id string) (bool, error) {
	digest, err := s.getRef(pkg, id)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	_, err = os.Stat(s.objectPath(pkg, digest))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

func (s *LocalStore) Put(ctx context.Context, pkg, id, root string) (string, error) {
	var buf bytes.Buffer
	if err := archive.Pack(&buf, root); err != nil {
		return "", err
	}
	return s.WriteObject(ctx, pkg, id, s.compressor.Compress(buf.Bytes()))
}

func (s *LocalStore) Get(ctx context.Context, pkg, id, dst string) error {
	compressed, err := s.ReadObject(ctx, pkg, id)
	if err != nil {
		return err
	}

	data, err := s.compressor.Decompress(compressed)
	if err != nil {
		return fmt.Errorf("read %s@%s: %w", pkg, id, err)
	}
	return archive.Unpack(bytes.NewReader(data), dst)
}

func (s *LocalStore) List(ctx context.Context, pkg string) ([]string, error) {
	dir, err := s.refsDir(pkg)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list refs: %w", err)
	}

	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() && !strings.HasPrefix(e.Name(), ".") {
			ids = append(ids, e.Name())
		}
	}
	slices.Sort(ids)
	return ids, nil
}

func (s *LocalStore) ReadObject(ctx context.Context, pkg, id string) ([]byte, error) {
	digest, err := s.getRef(pkg, id)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.objectPath(pkg, digest))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("object %s: %w", digest, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read object: %w", err)
	}
	if got := Digest(data); got != digest {
		return nil, fmt.Errorf("object %s: %w (got %s)", digest, ErrDigestDiffer, got)
	}
	return data, nil
}

func (s *LocalStore) WriteObject(ctx context.Context, pkg, id string, data []byte) (string, error) {
	if _, err := s.refPath(pkg, id); err != nil {
		return "", err
	}

	digest := Digest(data)
	path := s.objectPath(pkg, digest)
	if _, err := os.Stat(path); err != nil {
		if err := writeAtomic(path, data); err != nil {
			return "", fmt.Errorf("write object: %w", err)
		}
	}

	if err := s.putRef(pkg, id, digest); err != nil {
		return "", err
	}
	return digest, nil
}

// Digest returns the object address of data.
func Digest(data []byte) string {
	h := sha256.Sum256(data)
	return digestPrefix + hex.EncodeToString(h[:])
}

func (s *LocalStore) getRef(pkg, id string) (string, error) {
	path, err := s.refPath(pkg, id)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("ref %s@%s: %w", pkg, id, ErrNotFound)
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func (s *LocalStore) putRef(pkg, id, digest string) error {
	path, err := s.refPath(pkg, id)
	if err != nil {
		return err
	}
	if err := writeAtomic(path, []byte(digest)); err != nil {
		return fmt.Errorf("write ref: %w", err)
	}
	return nil
}

func (s *LocalStore) pkgDir(pkg string) (string, error) {
	rel := filepath.FromSlash(pkg)
	if pkg == "" || !filepath.IsLocal(rel) {
		return "", fmt.Errorf("package %q: %w", pkg, ErrInvalidRef)
	}
	return filepath.Join(s.basePath, rel), nil
}

func (s *LocalStore) refsDir(pkg string) (string, error) {
	dir, err := s.pkgDir(pkg)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "refs"), nil
}

func (s *LocalStore) refPath(pkg, id string) (string, error) {
	if id == "" || strings.ContainsAny(id, `/\`) || strings.HasPrefix(id, ".") {
		return "", fmt.Errorf("identity %q: %w", id, ErrInvalidRef)
	}
	dir, err := s.refsDir(pkg)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, id), nil
}

// objectPath returns the filesystem path for an object digest.
// Git-style sharding: objects/ab/cd123...
func (s *LocalStore) objectPath(pkg, digest string) string {
	dir, _ := s.pkgDir(pkg)
	hash := strings.TrimPrefix(digest, digestPrefix)
	if len(hash) < 2 {
		return filepath.Join(dir, "objects", hash)
	}
	return filepath.Join(dir, "objects", hash[:2], hash[2:])
}

// writeAtomic writes data next to path and renames it into place.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
