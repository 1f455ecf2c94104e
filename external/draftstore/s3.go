package draftstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/foxseedlab/voicenote/internal/draft"
)

// Object metadata keys. The SDK lower-cases user metadata on read.
const (
	metaFilename  = "filename"
	metaChannelID = "channel-id"
	metaRootID    = "root-id"
	metaDuration  = "duration-ms"
	metaStartedAt = "started-at-ms"
	metaCreatedAt = "created-at-ms"

	metaLeaseToken   = "token"
	metaLeaseExpires = "expires-at-ms"
	metaLeaseClaims  = "claims"

	leaseDir = ".leases"
)

type S3Config struct {
	Region          string
	Bucket          string
	Prefix          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

// S3Store keeps each draft as one object: the payload is the body and the
// remaining fields are user metadata. Writes are conditional on the key
// being absent. Leases live under .leases/ and are swapped with ETag
// preconditions.
type S3Store struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
	prefix   string
}

// OpenS3 builds a client from the default credential chain unless static
// keys are configured. A custom endpoint switches to path-style addressing
// for S3-compatible servers.
func OpenS3(ctx context.Context, cfg S3Config) (*S3Store, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return NewS3Store(client, cfg.Bucket, cfg.Prefix), nil
}

func NewS3Store(client *s3.Client, bucket, prefix string) *S3Store {
	return &S3Store{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   bucket,
		prefix:   prefix,
	}
}

func (s *S3Store) Save(ctx context.Context, d draft.Draft) error {
	meta := map[string]string{
		metaFilename:  d.Filename,
		metaChannelID: d.ChannelID,
		metaDuration:  strconv.FormatInt(d.DurationMillis, 10),
		metaStartedAt: strconv.FormatInt(d.StartedAt.UnixMilli(), 10),
		metaCreatedAt: strconv.FormatInt(d.CreatedAt.UnixMilli(), 10),
	}
	if d.RootID != "" {
		meta[metaRootID] = d.RootID
	}
	input := &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.objectKey(d.Key)),
		Body:          bytes.NewReader(d.Payload),
		ContentLength: aws.Int64(int64(len(d.Payload))),
		ContentType:   aws.String(d.ContentType),
		Metadata:      meta,
		IfNoneMatch:   aws.String("*"),
	}
	if _, err := s.uploader.Upload(ctx, input); err != nil {
		if isConditionFailed(err) {
			return nil
		}
		return fmt.Errorf("put draft %s: %w", d.Key, err)
	}
	return nil
}

func (s *S3Store) Read(ctx context.Context, key string) (draft.Draft, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		if isNotFound(err) {
			return draft.Draft{}, draft.ErrNotFound
		}
		return draft.Draft{}, fmt.Errorf("get draft %s: %w", key, err)
	}
	defer func() {
		_ = out.Body.Close()
	}()
	payload, err := io.ReadAll(out.Body)
	if err != nil {
		return draft.Draft{}, fmt.Errorf("read draft %s: %w", key, err)
	}

	d := draft.Draft{
		Key:            key,
		Filename:       out.Metadata[metaFilename],
		ChannelID:      out.Metadata[metaChannelID],
		RootID:         out.Metadata[metaRootID],
		DurationMillis: parseMetaInt(out.Metadata[metaDuration]),
		StartedAt:      time.UnixMilli(parseMetaInt(out.Metadata[metaStartedAt])),
		CreatedAt:      time.UnixMilli(parseMetaInt(out.Metadata[metaCreatedAt])),
		ContentType:    aws.ToString(out.ContentType),
		Payload:        payload,
	}
	return d, nil
}

func (s *S3Store) Remove(ctx context.Context, key string) error {
	for _, objKey := range []string{s.objectKey(key), s.leaseKey(key)} {
		_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(objKey),
		})
		if err != nil {
			return fmt.Errorf("delete %s: %w", objKey, err)
		}
	}
	return nil
}

func (s *S3Store) Claim(ctx context.Context, key, token string, now, until time.Time) (draft.Lease, bool, error) {
	current, etag, found, err := s.readLease(ctx, key)
	if err != nil {
		return draft.Lease{}, false, err
	}
	input := &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.leaseKey(key)),
		Body:          bytes.NewReader(nil),
		ContentLength: aws.Int64(0),
	}
	claims := 1
	if found {
		if current.Token != token && current.ExpiresAt.After(now) {
			return draft.Lease{Key: key}, false, nil
		}
		claims = current.Claims + 1
		input.IfMatch = aws.String(etag)
	} else {
		input.IfNoneMatch = aws.String("*")
	}
	lease := draft.Lease{Key: key, Token: token, ExpiresAt: until, Claims: claims}
	input.Metadata = leaseMetadata(lease)
	if _, err := s.client.PutObject(ctx, input); err != nil {
		if isConditionFailed(err) {
			return draft.Lease{Key: key}, false, nil
		}
		return draft.Lease{}, false, fmt.Errorf("put lease %s: %w", key, err)
	}
	return lease, true, nil
}

func (s *S3Store) Release(ctx context.Context, key, token string, until time.Time) error {
	current, etag, found, err := s.readLease(ctx, key)
	if err != nil {
		return err
	}
	if !found || current.Token != token {
		return nil
	}
	current.ExpiresAt = until
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.leaseKey(key)),
		Body:          bytes.NewReader(nil),
		ContentLength: aws.Int64(0),
		Metadata:      leaseMetadata(current),
		IfMatch:       aws.String(etag),
	})
	if err != nil && !isConditionFailed(err) {
		return fmt.Errorf("put lease %s: %w", key, err)
	}
	return nil
}

func (s *S3Store) readLease(ctx context.Context, key string) (draft.Lease, string, bool, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.leaseKey(key)),
	})
	if err != nil {
		if isNotFound(err) {
			return draft.Lease{}, "", false, nil
		}
		return draft.Lease{}, "", false, fmt.Errorf("get lease %s: %w", key, err)
	}
	_ = out.Body.Close()
	lease := draft.Lease{
		Key:       key,
		Token:     out.Metadata[metaLeaseToken],
		ExpiresAt: time.UnixMilli(parseMetaInt(out.Metadata[metaLeaseExpires])),
		Claims:    int(parseMetaInt(out.Metadata[metaLeaseClaims])),
	}
	return lease, aws.ToString(out.ETag), true, nil
}

func leaseMetadata(l draft.Lease) map[string]string {
	return map[string]string{
		metaLeaseToken:   l.Token,
		metaLeaseExpires: strconv.FormatInt(l.ExpiresAt.UnixMilli(), 10),
		metaLeaseClaims:  strconv.Itoa(l.Claims),
	}
}

func (s *S3Store) List(ctx context.Context) ([]draft.Draft, error) {
	prefix := s.prefix
	if prefix != "" {
		prefix += "/"
	}
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	var list []draft.Draft
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list drafts: %w", err)
		}
		for _, obj := range page.Contents {
			key := strings.TrimPrefix(aws.ToString(obj.Key), prefix)
			if key == "" || strings.Contains(key, "/") {
				continue
			}
			d, err := s.Read(ctx, key)
			if errors.Is(err, draft.ErrNotFound) {
				continue
			}
			if err != nil {
				return nil, err
			}
			list = append(list, d)
		}
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].Key < list[j].Key
		}
		return list[i].CreatedAt.Before(list[j].CreatedAt)
	})
	return list, nil
}

func (s *S3Store) objectKey(key string) string {
	if s.prefix == "" {
		return key
	}
	return path.Join(s.prefix, key)
}

func (s *S3Store) leaseKey(key string) string {
	return path.Join(s.prefix, leaseDir, key)
}

func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	return errors.As(err, &nsk) || isAPIErrorCode(err, "NotFound")
}

// isConditionFailed covers a lost If-Match/If-None-Match race.
func isConditionFailed(err error) bool {
	return isAPIErrorCode(err, "PreconditionFailed") || isAPIErrorCode(err, "ConditionalRequestConflict")
}

func isAPIErrorCode(err error, code string) bool {
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == code
}

func parseMetaInt(v string) int64 {
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
