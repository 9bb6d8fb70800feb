package blobstore

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"golang.org/x/sync/errgroup"
)

// maxParts is the S3 limit on parts per multipart upload.
const maxParts = 10000

// S3API is the subset of the S3 client used for uploads.
type S3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	CreateMultipartUpload(ctx context.Context, in *s3.CreateMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error)
	UploadPart(ctx context.Context, in *s3.UploadPartInput, optFns ...func(*s3.Options)) (*s3.UploadPartOutput, error)
	CompleteMultipartUpload(ctx context.Context, in *s3.CompleteMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error)
	AbortMultipartUpload(ctx context.Context, in *s3.AbortMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error)
}

// S3Transferer uploads with single PUTs below the part size and
// concurrent multipart uploads above it.
type S3Transferer struct {
	client S3API
	opts   Options
}

// NewS3 creates an S3Transferer from temporary credentials.
func NewS3(ctx context.Context, creds Credentials, opts Options) (*S3Transferer, error) {
	opts = opts.WithDefaults()

	region := creds.Region
	if region == "" {
		region = DefaultRegion
	}

	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			creds.AccessKey,
			creds.SecretKey,
			creds.SessionToken,
		)),
		config.WithRetryMaxAttempts(opts.MaxAttempts),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})

	return NewS3FromClient(client, opts), nil
}

// NewS3FromClient wraps an existing client.
func NewS3FromClient(client S3API, opts Options) *S3Transferer {
	return &S3Transferer{client: client, opts: opts.WithDefaults()}
}

// Upload sends req.LocalPath to req.Bucket under req.Key.
func (t *S3Transferer) Upload(ctx context.Context, req Request) error {
	f, err := os.Open(req.LocalPath)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil {
			slog.Warn("failed to close file", "path", req.LocalPath, "err", closeErr)
		}
	}()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	size := info.Size()

	if size < t.opts.PartSize {
		return t.put(ctx, f, size, req)
	}
	return t.multipart(ctx, f, size, req)
}

func (t *S3Transferer) put(ctx context.Context, f *os.File, size int64, req Request) error {
	_, err := t.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(req.Bucket),
		Key:           aws.String(req.Key),
		Body:          newProgressReader(io.NewSectionReader(f, 0, size), req.Progress),
		ContentLength: aws.Int64(size),
	})
	if err != nil {
		return fmt.Errorf("put object %s: %w", req.Key, err)
	}
	return nil
}

func (t *S3Transferer) multipart(ctx context.Context, f *os.File, size int64, req Request) error {
	partSize := max(t.opts.PartSize, (size+maxParts-1)/maxParts)
	parts := int((size + partSize - 1) / partSize)

	created, err := t.client.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
		Bucket: aws.String(req.Bucket),
		Key:    aws.String(req.Key),
	})
	if err != nil {
		return fmt.Errorf("create multipart upload %s: %w", req.Key, err)
	}
	uploadID := created.UploadId

	slog.Debug("multipart upload", "key", req.Key, "parts", parts, "part_size", partSize)

	completed := make([]types.CompletedPart, parts)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.opts.MaxConcurrency)

	for i := range parts {
		g.Go(func() error {
			number := int32(i + 1) //nolint:gosec // bounded by maxParts
			offset := int64(i) * partSize
			length := min(partSize, size-offset)

			out, err := t.client.UploadPart(gctx, &s3.UploadPartInput{
				Bucket:        aws.String(req.Bucket),
				Key:           aws.String(req.Key),
				UploadId:      uploadID,
				PartNumber:    aws.Int32(number),
				Body:          newProgressReader(io.NewSectionReader(f, offset, length), req.Progress),
				ContentLength: aws.Int64(length),
			})
			if err != nil {
				return fmt.Errorf("upload part %d: %w", number, err)
			}

			completed[i] = types.CompletedPart{ETag: out.ETag, PartNumber: aws.Int32(number)}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		t.abort(context.WithoutCancel(ctx), req, uploadID)
		return fmt.Errorf("multipart upload %s: %w", req.Key, err)
	}

	_, err = t.client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:          aws.String(req.Bucket),
		Key:             aws.String(req.Key),
		UploadId:        uploadID,
		MultipartUpload: &types.CompletedMultipartUpload{Parts: completed},
	})
	if err != nil {
		t.abort(context.WithoutCancel(ctx), req, uploadID)
		return fmt.Errorf("complete multipart upload %s: %w", req.Key, err)
	}

	return nil
}

func (t *S3Transferer) abort(ctx context.Context, req Request, uploadID *string) {
	_, err := t.client.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(req.Bucket),
		Key:      aws.String(req.Key),
		UploadId: uploadID,
	})
	if err != nil {
		slog.Warn("failed to abort multipart upload", "key", req.Key, "err", err)
	}
}
