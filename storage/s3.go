package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/jacsproject/jacs-go/interfaces"
)

// S3Backend stores document versions in an S3 or S3-compatible bucket under
// <prefix>/<docID>/<versionID>.json. Without credentials the backend is
// read-only against publicly readable buckets.
type S3Backend struct {
	client         *s3.S3
	writeClient    *s3.S3
	bucketName     string
	prefix         string
	log            *slog.Logger
	locationURI    string
	hasWriteAccess bool
}

// NewS3Backend creates an S3 storage backend. accessKey/secretKey grant
// write access; endpoint overrides the AWS endpoint for compatible services.
func NewS3Backend(bucketName, prefix, region, endpoint, accessKey, secretKey string, log *slog.Logger) (*S3Backend, error) {
	uri := fmt.Sprintf("s3://%s/%s?region=%s", bucketName, prefix, region)
	if endpoint != "" {
		uri += fmt.Sprintf("&endpoint=%s", endpoint)
	}

	baseCfg := aws.Config{
		Region: aws.String(region),
	}
	if endpoint != "" {
		baseCfg.Endpoint = aws.String(endpoint)
		baseCfg.S3ForcePathStyle = aws.Bool(true)
	}

	baseSess, err := session.NewSession(&baseCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}
	readClient := s3.New(baseSess)

	hasWriteAccess := accessKey != "" && secretKey != ""
	writeClient := readClient
	if hasWriteAccess {
		writeCfg := baseCfg.Copy()
		writeCfg.Credentials = credentials.NewStaticCredentials(accessKey, secretKey, "")
		writeSess, err := session.NewSession(writeCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create AWS write session: %w", err)
		}
		writeClient = s3.New(writeSess)
	} else {
		log.Warn("No S3 credentials provided, bucket writes will fail unless the bucket is public writable")
	}

	return &S3Backend{
		client:         readClient,
		writeClient:    writeClient,
		bucketName:     bucketName,
		prefix:         prefix,
		log:            log,
		locationURI:    uri,
		hasWriteAccess: hasWriteAccess,
	}, nil
}

func (b *S3Backend) objectKey(id interfaces.DocumentID, version interfaces.VersionID) string {
	return path.Join(b.prefix, id.String(), version.String()+".json")
}

// Put stores one version.
func (b *S3Backend) Put(ctx context.Context, ref interfaces.VersionRef, data []byte) error {
	start := time.Now()
	key := b.objectKey(ref.ID, ref.Version)

	_, err := b.writeClient.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(b.bucketName),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("%w: s3 put %s: %v", interfaces.ErrBackendUnavailable, key, err)
	}

	b.log.Debug("Stored document version in S3",
		slog.String("ref", ref.String()),
		slog.String("key", key),
		slog.Duration("duration", time.Since(start)))
	return nil
}

// Get retrieves one stored version.
func (b *S3Backend) Get(ctx context.Context, id interfaces.DocumentID, version interfaces.VersionID) ([]byte, error) {
	key := b.objectKey(id, version)

	out, err := b.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucketName),
		Key:    aws.String(key),
	})
	if err != nil {
		if aerr, ok := err.(awserr.Error); ok && (aerr.Code() == s3.ErrCodeNoSuchKey || aerr.Code() == "NotFound") {
			return nil, fmt.Errorf("%w: %s/%s", interfaces.ErrDocumentNotFound, id, version)
		}
		return nil, fmt.Errorf("%w: s3 get %s: %v", interfaces.ErrBackendUnavailable, key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read s3 object body: %w", err)
	}
	return data, nil
}

// Versions lists all stored version ids of a document.
func (b *S3Backend) Versions(ctx context.Context, id interfaces.DocumentID) ([]interfaces.VersionID, error) {
	docPrefix := path.Join(b.prefix, id.String()) + "/"

	var versions []interfaces.VersionID
	err := b.client.ListObjectsV2PagesWithContext(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(b.bucketName),
		Prefix: aws.String(docPrefix),
	}, func(page *s3.ListObjectsV2Output, lastPage bool) bool {
		for _, obj := range page.Contents {
			name := strings.TrimPrefix(aws.StringValue(obj.Key), docPrefix)
			if strings.HasSuffix(name, ".json") {
				versions = append(versions, interfaces.VersionID(strings.TrimSuffix(name, ".json")))
			}
		}
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("%w: s3 list %s: %v", interfaces.ErrBackendUnavailable, docPrefix, err)
	}
	return versions, nil
}

// Available checks the bucket is reachable.
func (b *S3Backend) Available(ctx context.Context) bool {
	_, err := b.client.HeadBucketWithContext(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(b.bucketName),
	})
	return err == nil
}

// Name returns the backend identifier.
func (b *S3Backend) Name() string { return "s3" }

// LocationURI returns the backend URI.
func (b *S3Backend) LocationURI() string { return b.locationURI }
