package s3client

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	backupPrefix = "infractions"
	exportPrefix = "infraction_exports"
)

var ErrNotFound = errors.New("object not found")

func isNotFound(err error) bool {
	var nsk *s3types.NoSuchKey
	return errors.As(err, &nsk) || strings.Contains(err.Error(), "NoSuchKey")
}

type Client struct {
	s3       *s3.Client
	bucket   string
	endpoint string
	// uploaded maps an object key to the hash of the last body written to it.
	uploaded *lru.Cache[string, [sha256.Size]byte]
	log      *slog.Logger
}

// New builds a client from the S3_KEY, S3_SECRET, S3_ENDPOINT and S3_BUCKET
// environment variables.
func New() (*Client, error) {
	key := os.Getenv("S3_KEY")
	if key == "" {
		return nil, fmt.Errorf("S3_KEY env var is undefined")
	}
	secret := os.Getenv("S3_SECRET")
	if secret == "" {
		return nil, fmt.Errorf("S3_SECRET env var is undefined")
	}
	endpoint := os.Getenv("S3_ENDPOINT")
	if endpoint == "" {
		return nil, fmt.Errorf("S3_ENDPOINT env var is undefined")
	}
	bucket := os.Getenv("S3_BUCKET")
	if bucket == "" {
		return nil, fmt.Errorf("S3_BUCKET env var is undefined")
	}

	uploaded, err := lru.New[string, [sha256.Size]byte](500)
	if err != nil {
		return nil, fmt.Errorf("creating LRU cache: %w", err)
	}

	client := s3.New(s3.Options{
		Region:           "us-southeast-1",
		BaseEndpoint:     &endpoint,
		Credentials:      credentials.NewStaticCredentialsProvider(key, secret, ""),
		UsePathStyle:     true,
		RetryMaxAttempts: 5,
	})

	return &Client{
		s3:       client,
		bucket:   bucket,
		endpoint: endpoint,
		uploaded: uploaded,
		log:      slog.Default(),
	}, nil
}

// NewDirect creates a Client with explicitly provided dependencies.
func NewDirect(s3Client *s3.Client, bucket, endpoint string, uploaded *lru.Cache[string, [sha256.Size]byte], log *slog.Logger) *Client {
	return &Client{
		s3:       s3Client,
		bucket:   bucket,
		endpoint: endpoint,
		uploaded: uploaded,
		log:      log,
	}
}

// Bucket returns the configured S3 bucket name.
func (c *Client) Bucket() string {
	return c.bucket
}

func (c *Client) buildS3URL(s3Path string) string {
	base := strings.TrimRight(c.endpoint, "/")
	return base + "/" + c.bucket + "/" + url.PathEscape(s3Path)
}

const maxGuildJSONSize = 100 * 1024 * 1024 // 100 MB

func guildJSONPath(prefix, guildID string) string {
	return fmt.Sprintf("%s/%s.json", prefix, guildID)
}

func (c *Client) fetch(ctx context.Context, s3Path string) ([]byte, error) {
	out, err := c.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &c.bucket,
		Key:    &s3Path,
	})
	if err != nil {
		if isNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("fetching %s from s3: %w", s3Path, err)
	}
	defer out.Body.Close()
	return io.ReadAll(io.LimitReader(out.Body, maxGuildJSONSize))
}

func (c *Client) put(ctx context.Context, s3Path string, data []byte) error {
	start := time.Now()
	_, err := c.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &c.bucket,
		Key:         &s3Path,
		Body:        bytes.NewReader(data),
		ContentType: strPtr("application/json"),
	})
	if err != nil {
		return fmt.Errorf("saving %s to s3: %w", s3Path, err)
	}
	c.log.Info(fmt.Sprintf("s3 write time: %dms", time.Since(start).Milliseconds()), "key", s3Path, "bytes", len(data))
	return nil
}

func strPtr(s string) *string { return &s }

// SaveInfractionBackup writes a guild's infraction snapshot to
// infractions/{guildID}.json. It reports false without uploading when the
// snapshot matches the last one written by this client.
func (c *Client) SaveInfractionBackup(ctx context.Context, guildID string, data []byte) (bool, error) {
	s3Path := guildJSONPath(backupPrefix, guildID)
	sum := sha256.Sum256(data)
	if prev, ok := c.uploaded.Get(s3Path); ok && prev == sum {
		return false, nil
	}
	if err := c.put(ctx, s3Path, data); err != nil {
		return false, err
	}
	c.uploaded.Add(s3Path, sum)
	return true, nil
}

// FetchInfractionBackup returns the last snapshot saved for a guild, or
// ErrNotFound if there is none.
func (c *Client) FetchInfractionBackup(ctx context.Context, guildID string) ([]byte, error) {
	return c.fetch(ctx, guildJSONPath(backupPrefix, guildID))
}

// SeedInfractionBackup records the hash of the snapshot currently stored for
// a guild, so SaveInfractionBackup skips an identical upload.
func (c *Client) SeedInfractionBackup(ctx context.Context, guildID string) error {
	data, err := c.FetchInfractionBackup(ctx, guildID)
	if err != nil {
		return err
	}
	c.uploaded.Add(guildJSONPath(backupPrefix, guildID), sha256.Sum256(data))
	return nil
}

// SaveInfractionExport stores a point-in-time export of a guild's infractions
// and returns the object key.
func (c *Client) SaveInfractionExport(ctx context.Context, guildID string, data []byte, at time.Time) (string, error) {
	s3Path := fmt.Sprintf("%s/%s/%s.json", exportPrefix, guildID, at.UTC().Format("20060102T150405Z"))
	if err := c.put(ctx, s3Path, data); err != nil {
		return "", err
	}
	c.log.Info("Saved infraction export", "url", c.buildS3URL(s3Path))
	return s3Path, nil
}
