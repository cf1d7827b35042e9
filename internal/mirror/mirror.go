// Package mirror copies objects from an S3 bucket prefix into a document
// root. Keys that would not survive the document root's path rules (hidden
// segments, traversal, control bytes) are skipped rather than written.
package mirror

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	docerrors "github.com/vango-dev/docroot/internal/errors"
)

// DefaultRegion is used when Config.Region is empty.
const DefaultRegion = "us-east-1"

var (
	// ErrDirectoryMarker is returned for keys that name a folder, not an object.
	ErrDirectoryMarker = errors.New("mirror: directory marker")

	// ErrUnsafeKey is returned for keys that map outside the root or to a
	// path the document root would refuse to serve.
	ErrUnsafeKey = errors.New("mirror: unsafe key")
)

// ObjectAPI is the part of *s3.Client the mirror needs.
type ObjectAPI interface {
	s3.ListObjectsV2APIClient
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Config locates the source bucket.
type Config struct {
	Bucket    string
	Prefix    string
	Region    string
	Endpoint  string
	PathStyle bool
}

// NewClient builds an S3 client for cfg. Credentials come from
// AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY when set; otherwise requests
// are anonymous, which works for public buckets.
func NewClient(cfg Config) *s3.Client {
	region := cfg.Region
	if region == "" {
		region = DefaultRegion
	}

	opts := s3.Options{
		Region:       region,
		Credentials:  credentialsFromEnv(),
		UsePathStyle: cfg.PathStyle,
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	return s3.New(opts)
}

func credentialsFromEnv() aws.CredentialsProvider {
	id, secret := os.Getenv("AWS_ACCESS_KEY_ID"), os.Getenv("AWS_SECRET_ACCESS_KEY")
	if id == "" || secret == "" {
		return aws.AnonymousCredentials{}
	}
	creds := aws.Credentials{
		AccessKeyID:     id,
		SecretAccessKey: secret,
		SessionToken:    os.Getenv("AWS_SESSION_TOKEN"),
		Source:          "Environment",
	}
	return aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
		return creds, nil
	})
}

// Result summarizes a Sync.
type Result struct {
	// Written lists the relative paths written, in listing order.
	Written []string

	// Skipped lists keys that were not mapped to a file.
	Skipped []string

	// Bytes is the total size written.
	Bytes int64
}

// Mirror syncs one bucket prefix into one root directory.
type Mirror struct {
	client ObjectAPI
	bucket string
	prefix string
	root   string
	dryRun bool
	logger *slog.Logger
}

// Option configures a Mirror.
type Option func(*Mirror)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Mirror) {
		m.logger = logger
	}
}

// WithDryRun lists and maps keys without downloading anything.
func WithDryRun(dryRun bool) Option {
	return func(m *Mirror) {
		m.dryRun = dryRun
	}
}

// New creates a Mirror writing into root.
func New(client ObjectAPI, cfg Config, root string, opts ...Option) *Mirror {
	m := &Mirror{
		client: client,
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
		root:   root,
		logger: slog.Default().With("component", "mirror"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Sync downloads every object under the prefix. Existing files are
// overwritten; files not in the bucket are left alone.
func (m *Mirror) Sync(ctx context.Context) (*Result, error) {
	if m.bucket == "" {
		return nil, docerrors.New("E180")
	}

	res := &Result{}
	paginator := s3.NewListObjectsV2Paginator(m.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(m.bucket),
		Prefix: aws.String(m.prefix),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return res, docerrors.New("E160").
				WithDetail(fmt.Sprintf("bucket %q, prefix %q", m.bucket, m.prefix)).
				Wrap(err)
		}

		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			rel, err := RelativePath(m.prefix, key)
			if err != nil {
				if !errors.Is(err, ErrDirectoryMarker) {
					m.logger.Warn("skipping object", "key", key, "error", err)
				}
				res.Skipped = append(res.Skipped, key)
				continue
			}

			if m.dryRun {
				res.Written = append(res.Written, rel)
				res.Bytes += aws.ToInt64(obj.Size)
				continue
			}

			n, err := m.fetch(ctx, key, rel)
			if err != nil {
				return res, docerrors.New("E161").
					WithDetail(fmt.Sprintf("key %q", key)).
					Wrap(err)
			}
			m.logger.Debug("object written", "key", key, "path", rel, "bytes", n)
			res.Written = append(res.Written, rel)
			res.Bytes += n
		}
	}
	return res, nil
}

// fetch streams one object into root/rel through a temporary file.
func (m *Mirror) fetch(ctx context.Context, key, rel string) (int64, error) {
	out, err := m.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(m.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return 0, err
	}
	defer out.Body.Close()

	dest := filepath.Join(m.root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return 0, err
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".mirror-*")
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(tmp, out.Body)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err == nil {
		err = os.Chmod(tmp.Name(), 0644)
	}
	if err == nil {
		err = os.Rename(tmp.Name(), dest)
	}
	if err != nil {
		os.Remove(tmp.Name())
		return 0, err
	}
	return n, nil
}

// RelativePath maps an object key under prefix to a slash-separated path
// relative to the document root.
func RelativePath(prefix, key string) (string, error) {
	if !strings.HasPrefix(key, prefix) {
		return "", fmt.Errorf("%w: %q is outside prefix %q", ErrUnsafeKey, key, prefix)
	}
	rel := strings.TrimLeft(strings.TrimPrefix(key, prefix), "/")
	if rel == "" || strings.HasSuffix(rel, "/") {
		return "", ErrDirectoryMarker
	}

	for _, seg := range strings.Split(rel, "/") {
		if seg == "" || seg[0] == '.' {
			return "", fmt.Errorf("%w: %q", ErrUnsafeKey, key)
		}
	}
	for i := 0; i < len(rel); i++ {
		if c := rel[i]; c < 0x20 || c == 0x7f || c == ' ' || c == '\\' {
			return "", fmt.Errorf("%w: %q", ErrUnsafeKey, key)
		}
	}
	return rel, nil
}
