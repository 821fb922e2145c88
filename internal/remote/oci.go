package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/google/go-containerregistry/pkg/name"
	v1 "github.com/google/go-containerregistry/pkg/v1"
	"github.com/google/go-containerregistry/pkg/v1/empty"
	"github.com/google/go-containerregistry/pkg/v1/mutate"
	"github.com/google/go-containerregistry/pkg/v1/remote"
	"github.com/google/go-containerregistry/pkg/v1/remote/transport"
	"github.com/google/go-containerregistry/pkg/v1/types"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"github.com/aweris/unipkg/internal/compression"
)

const DefaultConcurrency = 4

var (
	ErrNoImage = errors.New("remote: image not found")

	// ErrPackageMismatch is returned when an image holds another package.
	ErrPackageMismatch = errors.New("remote: image holds a different package")
)

type OCIRemote struct {
	ref         name.Reference
	auth        Authenticator
	concurrency int
	compressor  *compression.Compressor
	log         *zap.Logger
}

// NewOCIRemote creates a remote from a standard Docker ref (e.g., "ttl.sh/unipkg/zlib:1.3")
func NewOCIRemote(imageRef string, auth Authenticator, compressor *compression.Compressor) (*OCIRemote, error) {
	ref, err := name.ParseReference(imageRef, name.WithDefaultTag("latest"))
	if err != nil {
		return nil, fmt.Errorf("invalid image ref %q: %w", imageRef, err)
	}
	return &OCIRemote{
		ref:         ref,
		auth:        auth,
		concurrency: DefaultConcurrency,
		compressor:  compressor,
		log:         zap.NewNop(),
	}, nil
}

// SetConcurrency sets the number of parallel operations for push/pull
func (r *OCIRemote) SetConcurrency(n int) {
	if n > 0 {
		r.concurrency = n
	}
}

func (r *OCIRemote) SetLogger(log *zap.Logger) {
	if log != nil {
		r.log = log
	}
}

func (r *OCIRemote) String() string   { return r.ref.String() }
func (r *OCIRemote) Registry() string { return r.ref.Context().RegistryStr() }
func (r *OCIRemote) Tag() string      { return r.ref.Identifier() }

// archiveLayer implements v1.Layer over a stored, already compressed
// package archive.
type archiveLayer struct {
	compressed []byte
	compressor *compression.Compressor

	once         sync.Once
	uncompressed []byte
	err          error
}

func (l *archiveLayer) decompress() ([]byte, error) {
	l.once.Do(func() {
		l.uncompressed, l.err = l.compressor.Decompress(l.compressed)
	})
	return l.uncompressed, l.err
}

func (l *archiveLayer) Digest() (v1.Hash, error) {
	h, _, err := v1.SHA256(bytes.NewReader(l.compressed))
	return h, err
}

func (l *archiveLayer) DiffID() (v1.Hash, error) {
	data, err := l.decompress()
	if err != nil {
		return v1.Hash{}, err
	}
	h, _, err := v1.SHA256(bytes.NewReader(data))
	return h, err
}

func (l *archiveLayer) Compressed() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(l.compressed)), nil
}

func (l *archiveLayer) Uncompressed() (io.ReadCloser, error) {
	data, err := l.decompress()
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (l *archiveLayer) Size() (int64, error)                { return int64(len(l.compressed)), nil }
func (l *archiveLayer) MediaType() (types.MediaType, error) { return types.OCILayerZStd, nil }

// Push uploads objects as layers of the image. Identities already in the
// image and not in objects keep their layers.
func (r *OCIRemote) Push(ctx context.Context, pkg string, objects map[string][]byte) error {
	layers := make(map[string]v1.Layer, len(objects))
	digests := make(map[string]string, len(objects))

	existing, labels, err := r.fetch(ctx)
	switch {
	case errors.Is(err, ErrNoImage):
	case err != nil:
		return err
	case labels[LabelPackage] != "" && labels[LabelPackage] != pkg:
		return fmt.Errorf("push %s to %s: %w (%s)", pkg, r, ErrPackageMismatch, labels[LabelPackage])
	default:
		remoteDigests, err := parsePackages(labels)
		if err != nil {
			return err
		}
		for id, digest := range remoteDigests {
			if _, ok := objects[id]; ok {
				continue
			}
			h, err := v1.NewHash(digest)
			if err != nil {
				return fmt.Errorf("parse digest of %s: %w", id, err)
			}
			layer, err := existing.LayerByDigest(h)
			if err != nil {
				return fmt.Errorf("layer of %s: %w", id, err)
			}
			layers[id] = layer
			digests[id] = digest
		}
		r.log.Debug("kept remote layers", zap.Int("count", len(layers)))
	}

	var total int64
	for id, data := range objects {
		layer := &archiveLayer{compressed: data, compressor: r.compressor}
		digest, err := layer.Digest()
		if err != nil {
			return fmt.Errorf("digest %s: %w", id, err)
		}
		layers[id] = layer
		digests[id] = digest.String()
		total += int64(len(data))
	}

	r.log.Info("pushing",
		zap.String("image", r.String()),
		zap.Int("packages", len(objects)),
		zap.Int("layers", len(layers)),
		zap.Float64("mb", float64(total)/(1024*1024)))

	img, err := r.buildImage(pkg, layers, digests)
	if err != nil {
		return fmt.Errorf("build image: %w", err)
	}
	if err := r.pushImage(ctx, img); err != nil {
		return fmt.Errorf("push image: %w", err)
	}
	return nil
}

func (r *OCIRemote) buildImage(pkg string, layers map[string]v1.Layer, digests map[string]string) (v1.Image, error) {
	img := mutate.MediaType(empty.Image, types.OCIManifestSchema1)
	img = mutate.ConfigMediaType(img, types.OCIConfigJSON)

	// Sorted by identity so the same content yields the same manifest.
	ids := slices.Sorted(maps.Keys(layers))
	ordered := make([]v1.Layer, 0, len(ids))
	for _, id := range ids {
		ordered = append(ordered, layers[id])
	}
	if len(ordered) > 0 {
		var err error
		img, err = mutate.AppendLayers(img, ordered...)
		if err != nil {
			return nil, err
		}
	}

	cfg, err := img.ConfigFile()
	if err != nil {
		return nil, err
	}

	packagesJSON, err := json.Marshal(digests)
	if err != nil {
		return nil, err
	}

	cfg.Config.Labels = map[string]string{
		LabelPackage:  pkg,
		LabelPackages: string(packagesJSON),
	}

	return mutate.ConfigFile(img, cfg)
}

func (r *OCIRemote) pushImage(ctx context.Context, img v1.Image) error {
	options := r.remoteOptions(ctx)
	options = append(options, remote.WithJobs(r.concurrency))
	_, err := retry(ctx, 3, func() (struct{}, error) {
		return struct{}{}, remote.Write(r.ref, img, options...)
	})
	return err
}

// Pull downloads the layers of identities have reports missing, in
// parallel. The returned archives are still compressed.
func (r *OCIRemote) Pull(ctx context.Context, pkg string, have func(id string) bool) (map[string][]byte, error) {
	img, labels, err := r.fetch(ctx)
	if errors.Is(err, ErrNoImage) {
		return nil, fmt.Errorf("pull %s: %w", r, err)
	}
	if err != nil {
		return nil, err
	}
	if labels[LabelPackage] != pkg {
		return nil, fmt.Errorf("pull %s from %s: %w (%s)", pkg, r, ErrPackageMismatch, labels[LabelPackage])
	}

	remoteDigests, err := parsePackages(labels)
	if err != nil {
		return nil, err
	}

	needed := make(map[string]v1.Hash)
	for id, digest := range remoteDigests {
		if have != nil && have(id) {
			continue
		}
		h, err := v1.NewHash(digest)
		if err != nil {
			return nil, fmt.Errorf("parse digest of %s: %w", id, err)
		}
		needed[id] = h
	}

	r.log.Info("pulling", zap.String("image", r.String()), zap.Int("layers", len(needed)))

	var mu sync.Mutex
	objects := make(map[string][]byte, len(needed))

	p := pool.New().WithMaxGoroutines(r.concurrency).WithContext(ctx).WithCancelOnError()

	for id, h := range needed {
		p.Go(func(ctx context.Context) error {
			layer, err := img.LayerByDigest(h)
			if err != nil {
				return fmt.Errorf("layer of %s: %w", id, err)
			}
			data, err := retry(ctx, 3, func() ([]byte, error) {
				return readCompressed(layer)
			})
			if err != nil {
				return fmt.Errorf("read layer of %s: %w", id, err)
			}

			mu.Lock()
			objects[id] = data
			mu.Unlock()
			return nil
		})
	}

	if err := p.Wait(); err != nil {
		return nil, err
	}
	return objects, nil
}

func (r *OCIRemote) List(ctx context.Context) (map[string]string, error) {
	_, labels, err := r.fetch(ctx)
	if errors.Is(err, ErrNoImage) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, err
	}
	return parsePackages(labels)
}

func (r *OCIRemote) fetch(ctx context.Context) (v1.Image, map[string]string, error) {
	img, err := retry(ctx, 3, func() (v1.Image, error) {
		img, err := remote.Image(r.ref, r.remoteOptions(ctx)...)
		if isNotFound(err) {
			return nil, ErrNoImage
		}
		return img, err
	})
	if err != nil {
		return nil, nil, fmt.Errorf("fetch image: %w", err)
	}

	cfg, err := img.ConfigFile()
	if err != nil {
		return nil, nil, fmt.Errorf("get config: %w", err)
	}
	return img, cfg.Config.Labels, nil
}

func readCompressed(layer v1.Layer) ([]byte, error) {
	rc, err := layer.Compressed()
	if err != nil {
		return nil, err
	}
	data, err := io.ReadAll(rc)
	if cerr := rc.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return data, err
}

func parsePackages(labels map[string]string) (map[string]string, error) {
	digests := map[string]string{}
	raw := labels[LabelPackages]
	if raw == "" {
		return digests, nil
	}
	if err := json.Unmarshal([]byte(raw), &digests); err != nil {
		return nil, fmt.Errorf("parse %s label: %w", LabelPackages, err)
	}
	return digests, nil
}

func isNotFound(err error) bool {
	var terr *transport.Error
	return errors.As(err, &terr) && terr.StatusCode == http.StatusNotFound
}

func (r *OCIRemote) remoteOptions(ctx context.Context) []remote.Option {
	options := []remote.Option{remote.WithContext(ctx)}
	if r.auth != nil {
		username, password, err := r.auth.Authenticate(r.Registry())
		if err == nil && username != "" {
			return append(options, remote.WithAuth(&authn.Basic{
				Username: username,
				Password: password,
			}))
		}
	}
	return append(options, remote.WithAuthFromKeychain(authn.DefaultKeychain))
}

func retry[T any](ctx context.Context, maxAttempts int, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error
	for i := range maxAttempts {
		result, err := fn()
		if err == nil {
			return result, nil
		}
		if errors.Is(err, ErrNoImage) {
			return zero, err
		}
		lastErr = err
		if i < maxAttempts-1 {
			delay := time.Duration(1<<i) * 500 * time.Millisecond // 500ms, 1s, 2s, 4s...
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(delay):
			}
		}
	}
	return zero, lastErr
}
