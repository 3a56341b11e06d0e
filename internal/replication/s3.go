package replication

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"

	"streamkeep/internal/config"
)

// S3Target puts each artifact as a single object under the configured prefix.
// Any S3-compatible endpoint works when Endpoint is set.
type S3Target struct {
	cfg config.S3
}

// NewS3Target builds a target from configuration.
func NewS3Target(cfg config.S3) *S3Target {
	return &S3Target{cfg: cfg}
}

func (t *S3Target) Kind() string { return "s3" }

func (t *S3Target) Host() string {
	if t.cfg.Endpoint != "" {
		return t.cfg.Endpoint
	}
	return "s3." + t.cfg.Region + ".amazonaws.com"
}

// ObjectKey returns the key an artifact named base is stored under.
func (t *S3Target) ObjectKey(base string) string {
	if t.cfg.Prefix == "" {
		return base
	}
	return path.Join(t.cfg.Prefix, base)
}

// httpClient bounds connecting and waiting for the response headers. The
// body upload itself has no deadline; recordings run to several gigabytes.
func (t *S3Target) httpClient() *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if timeout := time.Duration(t.cfg.Timeout) * time.Second; timeout > 0 {
		transport.DialContext = (&net.Dialer{Timeout: timeout, KeepAlive: 30 * time.Second}).DialContext
		transport.TLSHandshakeTimeout = timeout
		transport.ResponseHeaderTimeout = timeout
	}
	return &http.Client{Transport: transport}
}

func (t *S3Target) awsConfig() *aws.Config {
	awsCfg := &aws.Config{
		Region:           aws.String(t.cfg.Region),
		S3ForcePathStyle: aws.Bool(t.cfg.ForcePathStyle),
		HTTPClient:       t.httpClient(),
	}
	if t.cfg.Endpoint != "" {
		awsCfg.Endpoint = aws.String(t.cfg.Endpoint)
	}
	if t.cfg.AccessKeyID != "" {
		awsCfg.Credentials = credentials.NewStaticCredentials(t.cfg.AccessKeyID, t.cfg.SecretKey, "")
	}
	return awsCfg
}

// Upload opens a session per call so credential changes apply on the next artifact.
func (t *S3Target) Upload(ctx context.Context, localPath string) (string, error) {
	sess, err := session.NewSession(t.awsConfig())
	if err != nil {
		return "", fmt.Errorf("s3 session: %w", err)
	}

	file, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("open artifact: %w", err)
	}
	defer file.Close()

	key := t.ObjectKey(filepath.Base(localPath))
	_, err = s3.New(sess).PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket: aws.String(t.cfg.Bucket),
		Key:    aws.String(key),
		Body:   file,
	})
	if err != nil {
		return "", fmt.Errorf("put s3://%s/%s: %w", t.cfg.Bucket, key, err)
	}
	return "s3://" + t.cfg.Bucket + "/" + key, nil
}
