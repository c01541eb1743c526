/*
Copyright (C) 2026 Sonorium Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package storage resolves theme file references that live in S3-compatible
// object storage to a locally cached path a Decoder can open, per spec.md
// §4.1's decode step: the engine decodes from a filesystem path, so a theme
// whose audio lives remotely must be fetched once before its first Open.
package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
)

const remoteScheme = "s3://"

// Config configures the S3-compatible client a Resolver downloads through.
type Config struct {
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	Bucket          string
	Endpoint        string // non-empty for S3-compatible services (MinIO, etc.)
	UsePathStyle    bool
	CacheDir        string // defaults to os.TempDir()/sonorium-theme-cache
}

// Resolver fetches "s3://bucket/key"-style theme file paths to a local
// cache directory, keyed by content hash of the path so repeat resolves of
// the same object are a stat, not a download.
type Resolver struct {
	client   *s3.Client
	bucket   string
	cacheDir string
	logger   zerolog.Logger

	mu       sync.Mutex
	inflight map[string]chan struct{}
}

// IsRemote reports whether path names an object in remote storage rather
// than a local filesystem path.
func IsRemote(path string) bool {
	return strings.HasPrefix(path, remoteScheme)
}

// NewResolver constructs a Resolver against the configured S3-compatible
// bucket. It does not verify bucket access up front: a theme supplier may
// list entirely local paths, in which case no S3 call is ever made.
func NewResolver(ctx context.Context, cfg Config, logger zerolog.Logger) (*Resolver, error) {
	var awsCfg aws.Config
	var err error

	if cfg.Endpoint != "" {
		resolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
			if service == s3.ServiceID {
				return aws.Endpoint{URL: cfg.Endpoint, HostnameImmutable: true, SigningRegion: cfg.Region}, nil
			}
			return aws.Endpoint{}, fmt.Errorf("storage: unknown endpoint requested for service %s", service)
		})
		awsCfg, err = config.LoadDefaultConfig(ctx,
			config.WithRegion(cfg.Region),
			config.WithEndpointResolverWithOptions(resolver),
			config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")),
		)
	} else {
		awsCfg, err = config.LoadDefaultConfig(ctx,
			config.WithRegion(cfg.Region),
			config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")),
		)
	}
	if err != nil {
		return nil, fmt.Errorf("storage: load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.UsePathStyle {
			o.UsePathStyle = true
		}
	})

	cacheDir := cfg.CacheDir
	if cacheDir == "" {
		cacheDir = filepath.Join(os.TempDir(), "sonorium-theme-cache")
	}
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create cache dir: %w", err)
	}

	return &Resolver{
		client:   client,
		bucket:   cfg.Bucket,
		cacheDir: cacheDir,
		logger:   logger.With().Str("component", "storage-resolver").Logger(),
		inflight: make(map[string]chan struct{}),
	}, nil
}

// Resolve downloads path (an "s3://bucket/key" reference, or just "key"
// against the Resolver's configured bucket) to the local cache, returning
// the cached file's path. Concurrent resolves of the same key wait on the
// first download rather than racing duplicate GetObject calls.
func (r *Resolver) Resolve(ctx context.Context, path string) (string, error) {
	bucket, key := r.splitPath(path)
	dest := r.cachePath(bucket, key)

	if _, err := os.Stat(dest); err == nil {
		return dest, nil
	}

	r.mu.Lock()
	if wait, ok := r.inflight[dest]; ok {
		r.mu.Unlock()
		select {
		case <-wait:
		case <-ctx.Done():
			return "", ctx.Err()
		}
		if _, err := os.Stat(dest); err == nil {
			return dest, nil
		}
		return "", fmt.Errorf("storage: concurrent resolve of %s did not produce a cached file", path)
	}
	done := make(chan struct{})
	r.inflight[dest] = done
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		delete(r.inflight, dest)
		r.mu.Unlock()
		close(done)
	}()

	if err := r.download(ctx, bucket, key, dest); err != nil {
		return "", err
	}
	return dest, nil
}

func (r *Resolver) download(ctx context.Context, bucket, key, dest string) error {
	r.logger.Debug().Str("bucket", bucket).Str("key", key).Msg("downloading theme file from object storage")

	out, err := r.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("storage: get object s3://%s/%s: %w", bucket, key, err)
	}
	defer out.Body.Close()

	tmp := dest + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("storage: create cache file: %w", err)
	}
	if _, err := io.Copy(f, out.Body); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("storage: write cache file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("storage: close cache file: %w", err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("storage: finalize cache file: %w", err)
	}

	r.logger.Info().Str("bucket", bucket).Str("key", key).Str("cached_at", dest).Msg("theme file cached")
	return nil
}

// splitPath parses "s3://bucket/key" into (bucket, key), falling back to
// the Resolver's default bucket for a bare "key" reference.
func (r *Resolver) splitPath(path string) (bucket, key string) {
	if !IsRemote(path) {
		return r.bucket, path
	}
	rest := strings.TrimPrefix(path, remoteScheme)
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) == 2 {
		return parts[0], parts[1]
	}
	return r.bucket, parts[0]
}

func (r *Resolver) cachePath(bucket, key string) string {
	sum := sha256.Sum256([]byte(bucket + "/" + key))
	name := hex.EncodeToString(sum[:]) + filepath.Ext(key)
	return filepath.Join(r.cacheDir, name)
}
