package gcp

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/yungbote/brandpulse-backend/internal/platform/logger"
)

func TestReportBucketEmulatorRoundTrip(t *testing.T) {
	host := strings.TrimRight(strings.TrimSpace(os.Getenv("BP_GCS_EMULATOR_HOST")), "/")
	if host == "" {
		t.Skip("set BP_GCS_EMULATOR_HOST to run against a fake-gcs-server")
	}
	bucket := fmt.Sprintf("bp-it-reports-%d", time.Now().UnixNano())
	body := bytes.NewBufferString(`{"name":"` + bucket + `"}`)
	resp, err := http.Post(host+"/storage/v1/b?project=test", "application/json", body)
	if err != nil {
		t.Skipf("emulator not reachable: %v", err)
	}
	_ = resp.Body.Close()

	ctx := context.Background()
	b, err := NewReportBucket(ctx, logger.Nop(), BucketConfig{
		Name:    bucket,
		Prefix:  "reports",
		Storage: ObjectStorageConfig{Mode: ObjectStorageModeGCSEmulator, EmulatorHost: host},
	})
	if err != nil {
		t.Fatalf("NewReportBucket: %v", err)
	}
	if err := b.Upload(ctx, "p1/e1.json", "application/json", []byte(`{"ok":true}`)); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	got, err := b.Download(ctx, "p1/e1.json")
	if err != nil || string(got) != `{"ok":true}` {
		t.Fatalf("Download: %q %v", got, err)
	}
	keys, err := b.ListKeys(ctx, "p1/")
	if err != nil || len(keys) != 1 || keys[0] != "p1/e1.json" {
		t.Fatalf("ListKeys: %v %v", keys, err)
	}
	if _, err := b.Download(ctx, "missing.json"); err != ErrObjectNotFound {
		t.Fatalf("expected ErrObjectNotFound, got %v", err)
	}
}
