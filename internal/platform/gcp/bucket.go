package gcp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/yungbote/brandpulse-backend/internal/platform/logger"
)

// ErrObjectNotFound is returned by Download for a missing key.
var ErrObjectNotFound = errors.New("object not found")

// ReportBucket stores archived batch reports as objects under one bucket prefix.
type ReportBucket interface {
	Upload(ctx context.Context, key, contentType string, data []byte) error
	Download(ctx context.Context, key string) ([]byte, error)
	ListKeys(ctx context.Context, prefix string) ([]string, error)
	URL(key string) string
}

type BucketConfig struct {
	Name    string
	Prefix  string
	Storage ObjectStorageConfig
}

// BucketConfigFromEnv returns ok=false when REPORTS_GCS_BUCKET is unset.
func BucketConfigFromEnv() (BucketConfig, bool, error) {
	name := strings.TrimSpace(os.Getenv("REPORTS_GCS_BUCKET"))
	if name == "" {
		return BucketConfig{}, false, nil
	}
	storageCfg, err := ResolveObjectStorageConfigFromEnv()
	if err != nil {
		return BucketConfig{}, false, err
	}
	prefix := strings.Trim(strings.TrimSpace(os.Getenv("REPORTS_GCS_PREFIX")), "/")
	if prefix == "" {
		prefix = "reports"
	}
	return BucketConfig{Name: name, Prefix: prefix, Storage: storageCfg}, true, nil
}

type reportBucket struct {
	log    *logger.Logger
	client *storage.Client
	cfg    BucketConfig
}

func NewReportBucket(ctx context.Context, log *logger.Logger, cfg BucketConfig) (ReportBucket, error) {
	if strings.TrimSpace(cfg.Name) == "" {
		return nil, fmt.Errorf("report bucket: name required")
	}
	if err := ValidateObjectStorageConfig(cfg.Storage); err != nil {
		return nil, err
	}
	client, err := newStorageClient(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	b := &reportBucket{log: log.With("service", "ReportBucket"), client: client, cfg: cfg}
	b.log.Info("report bucket initialized", "bucket", cfg.Name, "prefix", cfg.Prefix, "mode", cfg.Storage.Mode)
	return b, nil
}

func newStorageClient(ctx context.Context, cfg ObjectStorageConfig) (*storage.Client, error) {
	if cfg.IsEmulatorMode() {
		// The SDK reads the emulator endpoint from the environment.
		_ = os.Setenv("STORAGE_EMULATOR_HOST", cfg.EmulatorHost)
		return storage.NewClient(ctx, option.WithoutAuthentication())
	}
	opts := append(ClientOptionsFromEnv(), option.WithScopes(storage.ScopeReadWrite))
	return storage.NewClient(ctx, opts...)
}

func (b *reportBucket) objectName(key string) string {
	key = strings.TrimLeft(strings.TrimSpace(key), "/")
	if b.cfg.Prefix == "" {
		return key
	}
	return path.Join(b.cfg.Prefix, key)
}

func (b *reportBucket) Upload(ctx context.Context, key, contentType string, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()
	w := b.client.Bucket(b.cfg.Name).Object(b.objectName(key)).NewWriter(ctx)
	if contentType != "" {
		w.ContentType = contentType
	}
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		_ = w.Close()
		return fmt.Errorf("write %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close writer for %s: %w", key, err)
	}
	return nil
}

func (b *reportBucket) Download(ctx context.Context, key string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()
	r, err := b.client.Bucket(b.cfg.Name).Object(b.objectName(key)).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, ErrObjectNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", key, err)
	}
	defer r.Close()
	return io.ReadAll(r)
}

// ListKeys returns keys relative to the bucket prefix.
func (b *reportBucket) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	full := b.objectName(prefix)
	it := b.client.Bucket(b.cfg.Name).Objects(ctx, &storage.Query{Prefix: full})
	out := []string{}
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, err
		}
		name := attrs.Name
		if b.cfg.Prefix != "" {
			name = strings.TrimPrefix(name, b.cfg.Prefix+"/")
		}
		out = append(out, name)
	}
	return out, nil
}

func (b *reportBucket) URL(key string) string {
	name := b.objectName(key)
	if b.cfg.Storage.IsEmulatorMode() {
		return fmt.Sprintf("%s/storage/v1/b/%s/o/%s?alt=media",
			b.cfg.Storage.EmulatorHost, url.PathEscape(b.cfg.Name), url.PathEscape(name))
	}
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", b.cfg.Name, name)
}
