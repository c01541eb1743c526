package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

func newTestResolver(t *testing.T, bucket string) *Resolver {
	t.Helper()
	r, err := NewResolver(context.Background(), Config{
		AccessKeyID:     "test-key",
		SecretAccessKey: "test-secret",
		Region:          "us-east-1",
		Bucket:          bucket,
		CacheDir:        t.TempDir(),
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}
	return r
}

func TestIsRemoteDetectsS3Scheme(t *testing.T) {
	if !IsRemote("s3://themes/forest/wind.flac") {
		t.Fatal("expected s3:// path to be remote")
	}
	if IsRemote("/var/themes/forest/wind.flac") {
		t.Fatal("expected local path to not be remote")
	}
	if IsRemote("themes/forest/wind.flac") {
		t.Fatal("expected bare relative path to not be remote")
	}
}

func TestSplitPathParsesBucketAndKeyFromFullURL(t *testing.T) {
	r := newTestResolver(t, "default-bucket")
	bucket, key := r.splitPath("s3://forest-bucket/themes/forest/wind.flac")
	if bucket != "forest-bucket" {
		t.Fatalf("bucket = %q, want forest-bucket", bucket)
	}
	if key != "themes/forest/wind.flac" {
		t.Fatalf("key = %q, want themes/forest/wind.flac", key)
	}
}

func TestSplitPathFallsBackToDefaultBucketForBarePath(t *testing.T) {
	r := newTestResolver(t, "default-bucket")
	bucket, key := r.splitPath("themes/forest/wind.flac")
	if bucket != "default-bucket" {
		t.Fatalf("bucket = %q, want default-bucket", bucket)
	}
	if key != "themes/forest/wind.flac" {
		t.Fatalf("key = %q, want themes/forest/wind.flac", key)
	}
}

func TestCachePathIsStableAndPreservesExtension(t *testing.T) {
	r := newTestResolver(t, "default-bucket")
	a := r.cachePath("forest-bucket", "themes/forest/wind.flac")
	b := r.cachePath("forest-bucket", "themes/forest/wind.flac")
	if a != b {
		t.Fatalf("cachePath not stable: %q != %q", a, b)
	}
	if filepath.Ext(a) != ".flac" {
		t.Fatalf("cachePath = %q, want .flac extension preserved", a)
	}

	other := r.cachePath("forest-bucket", "themes/forest/birds.flac")
	if other == a {
		t.Fatal("expected different keys to hash to different cache paths")
	}
}

func TestResolveReturnsCachedFileWithoutDownloadingAgain(t *testing.T) {
	r := newTestResolver(t, "default-bucket")
	dest := r.cachePath("default-bucket", "themes/forest/wind.flac")

	if err := os.WriteFile(dest, []byte("cached audio bytes"), 0o644); err != nil {
		t.Fatalf("seed cache file: %v", err)
	}

	got, err := r.Resolve(context.Background(), "s3://default-bucket/themes/forest/wind.flac")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != dest {
		t.Fatalf("Resolve returned %q, want cached path %q", got, dest)
	}
}
