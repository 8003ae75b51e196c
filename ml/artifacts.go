package ml

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
)

// ArtifactReader fetches startup artifacts (scalers, models, label tables)
// from the local filesystem or from S3. It is meant for startup only and is
// not safe for concurrent use.
type ArtifactReader struct {
	region string
	s3     s3iface.S3API
}

func NewArtifactReader(region string) *ArtifactReader {
	return &ArtifactReader{region: region}
}

// WithS3 sets the S3 client used for s3:// URIs.
func (r *ArtifactReader) WithS3(client s3iface.S3API) *ArtifactReader {
	r.s3 = client
	return r
}

func (r *ArtifactReader) Read(ctx context.Context, uri string) ([]byte, error) {
	if uri == "" {
		return nil, fmt.Errorf("empty artifact path")
	}
	bucket, key, ok := parseS3URI(uri)
	if !ok {
		return os.ReadFile(uri)
	}

	client, err := r.client()
	if err != nil {
		return nil, err
	}
	result, err := client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", uri, err)
	}
	defer result.Body.Close()

	content, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", uri, err)
	}
	return content, nil
}

func (r *ArtifactReader) client() (s3iface.S3API, error) {
	if r.s3 != nil {
		return r.s3, nil
	}
	cfg := &aws.Config{}
	if r.region != "" {
		cfg.Region = aws.String(r.region)
	}
	sess, err := session.NewSession(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create aws session: %w", err)
	}
	r.s3 = s3.New(sess)
	return r.s3, nil
}

func parseS3URI(uri string) (bucket, key string, ok bool) {
	rest, found := strings.CutPrefix(uri, "s3://")
	if !found {
		return "", "", false
	}
	bucket, key, found = strings.Cut(rest, "/")
	if !found || bucket == "" || key == "" {
		return "", "", false
	}
	return bucket, key, true
}
