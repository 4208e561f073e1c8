// Package s3fetch reads FASTQ objects from Amazon S3, either as a single
// streaming GET or through the parallel download manager.
package s3fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Scheme is the URI prefix that selects an S3 source.
const Scheme = "s3://"

// Location addresses one S3 object.
type Location struct {
	Bucket string
	Key    string
}

func (l Location) String() string {
	return Scheme + l.Bucket + "/" + l.Key
}

// IsS3URI reports whether uri uses the s3:// scheme.
func IsS3URI(uri string) bool {
	return strings.HasPrefix(uri, Scheme)
}

// ParseS3URI parses s3://bucket/key. Both bucket and key are required since
// a FASTQ source is always a single object.
func ParseS3URI(uri string) (Location, error) {
	if !IsS3URI(uri) {
		return Location{}, fmt.Errorf("invalid S3 URI %q: must start with %s", uri, Scheme)
	}

	bucket, key, _ := strings.Cut(strings.TrimPrefix(uri, Scheme), "/")
	if bucket == "" {
		return Location{}, fmt.Errorf("invalid S3 URI %q: missing bucket name", uri)
	}
	if key == "" || strings.HasSuffix(key, "/") {
		return Location{}, fmt.Errorf("invalid S3 URI %q: missing object key", uri)
	}
	return Location{Bucket: bucket, Key: key}, nil
}

// Object is an open S3 object body.
type Object struct {
	io.ReadCloser

	// Size is the object length in bytes, or -1 when S3 did not report it.
	Size int64
}

// Client fetches objects through any GetObject implementation; production
// code uses *s3.Client.
type Client struct {
	api manager.DownloadAPIClient
}

// NewClient creates a client from the default AWS configuration chain.
func NewClient(ctx context.Context, optFns ...func(*config.LoadOptions) error) (*Client, error) {
	cfg, err := config.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return NewClientWithConfig(cfg), nil
}

// NewClientWithConfig creates a client from an explicit AWS config.
func NewClientWithConfig(cfg aws.Config) *Client {
	return &Client{api: s3.NewFromConfig(cfg)}
}

// NewClientWithAPI wraps an existing GetObject implementation.
func NewClientWithAPI(api manager.DownloadAPIClient) *Client {
	return &Client{api: api}
}

// StreamObject starts a single GET and returns the body as it arrives.
func (c *Client) StreamObject(ctx context.Context, loc Location) (*Object, error) {
	resp, err := c.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(loc.Bucket),
		Key:    aws.String(loc.Key),
	})
	if err != nil {
		return nil, fmt.Errorf("get object %s: %w", loc, err)
	}
	if resp.Body == nil {
		return nil, fmt.Errorf("get object %s: %w", loc, errors.New("empty response body"))
	}

	size := int64(-1)
	if resp.ContentLength != nil {
		size = *resp.ContentLength
	}
	return &Object{ReadCloser: resp.Body, Size: size}, nil
}

// Downloader returns a parallel downloader sharing this client's API.
func (c *Client) Downloader(cfg DownloaderConfig) *Downloader {
	return NewDownloader(c.api, cfg)
}
