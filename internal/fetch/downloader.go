package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/mattn/go-isatty"
	"github.com/opencontainers/go-digest"
	"github.com/schollz/progressbar/v3"
	"go.trai.ch/zerr"
	"golang.org/x/sync/errgroup"

	"github.com/oshokin/formulary/internal/checksum"
	"github.com/oshokin/formulary/internal/config"
	"github.com/oshokin/formulary/internal/domain/formula"
	"github.com/oshokin/formulary/internal/logger"
	"github.com/oshokin/formulary/internal/version"
)

// ErrBadStatus is returned when the server answers with anything but 200 OK.
var ErrBadStatus = errors.New("unexpected http status")

const partSuffix = ".part"

// Result describes a verified artifact in the cache.
type Result struct {
	// Artifact is what was requested.
	Artifact formula.Artifact
	// Path is the verified file in the cache directory.
	Path string
	// Digest is the SHA-256 of the file.
	Digest digest.Digest
	// Cached is true when no network request was needed.
	Cached bool
}

// Downloader fetches artifacts over HTTP(S) into a cache directory.
type Downloader struct {
	client      *http.Client
	cacheDir    string
	parallelism int
	progress    io.Writer
}

// Option configures a Downloader.
type Option func(*Downloader)

// WithHTTPClient replaces the default TLS-restricted client.
func WithHTTPClient(client *http.Client) Option {
	return func(d *Downloader) {
		if client != nil {
			d.client = client
		}
	}
}

// WithParallelism caps the number of concurrent downloads in FetchAll.
func WithParallelism(n int) Option {
	return func(d *Downloader) {
		if n > 0 {
			d.parallelism = n
		}
	}
}

// WithProgress renders a byte progress bar to w; nil disables it.
func WithProgress(w io.Writer) Option {
	return func(d *Downloader) {
		d.progress = w
	}
}

// New creates a Downloader caching into cacheDir.
// A progress bar is drawn on stderr when it is a terminal.
func New(cacheDir string, timeout time.Duration, opts ...Option) *Downloader {
	d := &Downloader{
		client:      NewSecureHTTPClient(timeout),
		cacheDir:    cacheDir,
		parallelism: config.DefaultParallelism,
	}

	if isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd()) {
		d.progress = os.Stderr
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// NewFromConfig creates a Downloader from the shared settings.
func NewFromConfig(cfg *config.Config, opts ...Option) *Downloader {
	opts = append([]Option{WithParallelism(cfg.Parallelism)}, opts...)

	return New(cfg.CacheDir, cfg.Timeout, opts...)
}

// CachePath returns where an artifact URL is cached.
func CachePath(cacheDir, rawURL string) string {
	key := fmt.Sprintf("%016x", xxhash.Sum64String(rawURL))

	return filepath.Join(cacheDir, key+"--"+formula.ArtifactFilename(rawURL))
}

// Fetch returns a verified local copy of the artifact, downloading it if needed.
// On checksum mismatch the downloaded bytes are discarded and the error wraps checksum.ErrMismatch.
func (d *Downloader) Fetch(ctx context.Context, artifact formula.Artifact) (*Result, error) {
	if _, err := checksum.Parse(artifact.SHA256); err != nil {
		return nil, zerr.With(err, "artifact", artifact.Name)
	}

	target := CachePath(d.cacheDir, artifact.URL)

	if result, ok := d.fromCache(ctx, artifact, target); ok {
		return result, nil
	}

	if err := os.MkdirAll(d.cacheDir, config.DefaultDirPermissions); err != nil {
		return nil, zerr.Wrap(err, "failed to create cache directory")
	}

	logger.InfoKV(ctx, "Downloading artifact", "artifact", artifact.Name, "url", artifact.URL)

	partPath := target + partSuffix

	actual, err := d.Download(ctx, artifact.URL, partPath)
	if err != nil {
		_ = os.Remove(partPath)

		return nil, err
	}

	if err = checksum.Compare(actual, artifact.SHA256); err != nil {
		_ = os.Remove(partPath)

		return nil, zerr.With(zerr.Wrap(err, "artifact failed verification"), "url", artifact.URL)
	}

	if err = os.Rename(partPath, target); err != nil {
		_ = os.Remove(partPath)

		return nil, zerr.Wrap(err, "failed to move artifact into cache")
	}

	logger.InfoKV(ctx, "Artifact verified", "artifact", artifact.Name, "sha256", actual.Encoded())

	return &Result{Artifact: artifact, Path: target, Digest: actual}, nil
}

// FetchAll fetches artifacts concurrently and returns results in input order.
// The first failure cancels the remaining downloads.
func (d *Downloader) FetchAll(ctx context.Context, artifacts []formula.Artifact) ([]*Result, error) {
	results := make([]*Result, len(artifacts))

	// Concurrent bars would overwrite each other on one terminal line.
	worker := d
	if len(artifacts) > 1 && d.parallelism > 1 && d.progress != nil {
		quiet := *d
		quiet.progress = nil
		worker = &quiet

		logger.InfoKV(ctx, "Downloading artifacts concurrently", "count", len(artifacts))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.parallelism)

	for i, artifact := range artifacts {
		g.Go(func() error {
			result, err := worker.Fetch(gctx, artifact)
			if err != nil {
				return err
			}

			results[i] = result

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return results, nil
}

// Download streams rawURL into dest and returns the SHA-256 of what was written.
// It performs no verification; callers compare the digest.
func (d *Downloader) Download(ctx context.Context, rawURL, dest string) (digest.Digest, error) {
	body, size, err := d.open(ctx, rawURL)
	if err != nil {
		return "", err
	}

	defer func() {
		_ = body.Close()
	}()

	out, err := os.Create(filepath.Clean(dest))
	if err != nil {
		return "", zerr.With(zerr.Wrap(err, "failed to create download file"), "path", dest)
	}

	defer func() {
		_ = out.Close()
	}()

	digester := digest.SHA256.Digester()
	writers := []io.Writer{out, digester.Hash()}

	var bar *progressbar.ProgressBar
	if d.progress != nil {
		bar = progressbar.NewOptions64(size,
			progressbar.OptionSetWriter(d.progress),
			progressbar.OptionSetDescription(formula.ArtifactFilename(rawURL)),
			progressbar.OptionShowBytes(true),
			progressbar.OptionSetWidth(40),
			progressbar.OptionThrottle(100*time.Millisecond),
		)
		writers = append(writers, bar)
	}

	if _, err = io.Copy(io.MultiWriter(writers...), body); err != nil {
		return "", zerr.With(zerr.Wrap(err, "failed to download artifact"), "url", rawURL)
	}

	if bar != nil {
		_ = bar.Finish()
	}

	if err = out.Sync(); err != nil {
		return "", zerr.Wrap(err, "failed to flush download")
	}

	return digester.Digest(), nil
}

// Get returns the body of a small auxiliary document such as a signature.
func (d *Downloader) Get(ctx context.Context, rawURL string) ([]byte, error) {
	body, _, err := d.open(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	defer func() {
		_ = body.Close()
	}()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, zerr.With(zerr.Wrap(err, "failed to read response"), "url", rawURL)
	}

	return data, nil
}

func (d *Downloader) open(ctx context.Context, rawURL string) (io.ReadCloser, int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return nil, 0, zerr.With(zerr.Wrap(err, "failed to build request"), "url", rawURL)
	}

	req.Header.Set("User-Agent", version.UserAgent())

	response, err := d.client.Do(req)
	if err != nil {
		return nil, 0, zerr.With(zerr.Wrap(err, "request failed"), "url", rawURL)
	}

	if response.StatusCode != http.StatusOK {
		_ = response.Body.Close()

		return nil, 0, zerr.With(fmt.Errorf("%s, %s: %w", rawURL, response.Status, ErrBadStatus), "status", response.StatusCode)
	}

	return response.Body, response.ContentLength, nil
}

// fromCache returns a cached artifact when its checksum still matches.
// A stale or corrupted entry is removed.
func (d *Downloader) fromCache(ctx context.Context, artifact formula.Artifact, path string) (*Result, bool) {
	err := checksum.VerifyFile(path, artifact.SHA256)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false
	}

	if err != nil {
		logger.WarnKV(ctx, "Discarding cached artifact", "path", path, "error", err)

		_ = os.Remove(path)

		return nil, false
	}

	actual, err := checksum.Parse(artifact.SHA256)
	if err != nil {
		return nil, false
	}

	logger.DebugKV(ctx, "Using cached artifact", "path", path)

	return &Result{Artifact: artifact, Path: path, Digest: actual, Cached: true}, true
}
