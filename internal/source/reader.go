// Package source reads raw Snowplow events for one (site, date) unit from
// the partner's enriched-events S3 bucket. Reads are side-effect free, so a
// re-run of the same unit sees the same records.
package source

import (
	"bufio"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/LocalAtBrown/ata-core/internal/config"
	"github.com/LocalAtBrown/ata-core/internal/event"
)

// Client is the slice of the S3 API the reader uses. *s3.Client satisfies it.
type Client interface {
	s3.ListObjectsV2APIClient
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Reader fetches raw Snowplow events from S3.
type Reader struct {
	client Client
	cfg    config.SourceConfig
}

// NewReader builds a reader from the ambient AWS credential chain.
func NewReader(ctx context.Context, cfg config.SourceConfig) (*Reader, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AWSProfile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(cfg.AWSProfile))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return &Reader{client: s3.NewFromConfig(awsCfg), cfg: cfg}, nil
}

// NewReaderWithClient builds a reader around an existing client. Used by
// tests.
func NewReaderWithClient(client Client, cfg config.SourceConfig) *Reader {
	return &Reader{client: client, cfg: cfg}
}

// Prefix returns the object prefix holding the unit's events. The Snowplow
// loader partitions the enriched stream by hour under year/month/day, so a
// day prefix covers all 24 hourly partitions.
func (r *Reader) Prefix(unit event.BatchUnit) string {
	return path.Join(r.cfg.Prefix, unit.Date.Format("2006/01/02")) + "/"
}

// ForEach streams every raw event for the unit through fn, in listing order.
// A line that is not valid JSON is passed through with nil Fields so the
// transformer can reject (and count) it instead of it vanishing here.
//
// Returns event.ErrEmptyBatch when the unit has no events at all, and a
// wrapped event.ErrSourceUnavailable when S3 cannot be reached.
func (r *Reader) ForEach(ctx context.Context, unit event.BatchUnit, fn func(event.Raw) error) error {
	bucket, err := r.cfg.BucketFor(unit.Site)
	if err != nil {
		return err
	}
	prefix := r.Prefix(unit)

	var keys []string
	paginator := s3.NewListObjectsV2Paginator(r.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("list s3://%s/%s: %v: %w", bucket, prefix, err, event.ErrSourceUnavailable)
		}
		for _, obj := range page.Contents {
			if obj.Size == nil || *obj.Size == 0 {
				continue
			}
			keys = append(keys, aws.ToString(obj.Key))
		}
	}

	if len(keys) == 0 {
		return fmt.Errorf("%w: s3://%s/%s", event.ErrEmptyBatch, bucket, prefix)
	}
	log.Printf("[source] %s: %d objects under s3://%s/%s", unit, len(keys), bucket, prefix)

	read := 0
	for _, key := range keys {
		n, err := r.readObject(ctx, unit, bucket, key, fn)
		if err != nil {
			return err
		}
		read += n
	}
	if read == 0 {
		return fmt.Errorf("%w: s3://%s/%s (objects present but no records)", event.ErrEmptyBatch, bucket, prefix)
	}
	return nil
}

// readObject decompresses one gzip NDJSON object and decodes it line by line.
func (r *Reader) readObject(ctx context.Context, unit event.BatchUnit, bucket, key string, fn func(event.Raw) error) (int, error) {
	out, err := r.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return 0, fmt.Errorf("get s3://%s/%s: %v: %w", bucket, key, err, event.ErrSourceUnavailable)
	}
	defer out.Body.Close()

	gz, err := gzip.NewReader(out.Body)
	if err != nil {
		return 0, fmt.Errorf("decompress s3://%s/%s: %v: %w", bucket, key, err, event.ErrSourceUnavailable)
	}
	defer gz.Close()

	read := 0
	scanner := bufio.NewScanner(gz)
	// Form payloads and useragents make for long lines.
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		read++

		fields, decodeErr := decodeLine(line)
		if decodeErr != nil {
			// Surfaced downstream as a rejection, never dropped.
			fields = nil
		}
		if err := fn(event.Raw{Unit: unit, Fields: fields}); err != nil {
			return read, err
		}
	}
	if err := scanner.Err(); err != nil {
		return read, fmt.Errorf("read s3://%s/%s: %v: %w", bucket, key, err, event.ErrSourceUnavailable)
	}
	return read, nil
}

func decodeLine(line string) (map[string]any, error) {
	dec := json.NewDecoder(strings.NewReader(line))
	dec.UseNumber()
	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return nil, err
	}
	return fields, nil
}
