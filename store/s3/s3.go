package s3

import (
	"bytes"
	"context"
	"errors"

	"github.com/anantham/tarotgallery/store"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

// S3ClientAPI narrows the S3 client to the single operation the relay
// uses, so tests can substitute a double.
type S3ClientAPI interface {
	PutObject(ctx context.Context, params *awss3.PutObjectInput, optFns ...func(*awss3.Options)) (*awss3.PutObjectOutput, error)
}

// S3BlobStore implements store.BlobStore against S3 or any
// S3-compatible backend (custom endpoint + static credentials).
type S3BlobStore struct {
	Client S3ClientAPI
	Bucket string
}

func NewS3BlobStore(ctx context.Context, endpoint, accessKey, secretKey, bucket string) (*S3BlobStore, error) {
	var loadOpts []func(*config.LoadOptions) error
	if accessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKey, secretKey, ""),
		))
	}

	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, err
	}

	client := awss3.NewFromConfig(cfg, func(o *awss3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3BlobStore{Client: client, Bucket: bucket}, nil
}

// Put writes conditionally (If-None-Match: *) so a concurrent or
// repeated write to the same key can never silently clobber an object.
func (s *S3BlobStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := s.Client.PutObject(ctx, &awss3.PutObjectInput{
		Bucket:      aws.String(s.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
		IfNoneMatch: aws.String("*"),
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && apiErr.ErrorCode() == "PreconditionFailed" {
			return store.ErrObjectExists
		}
		return err
	}
	return nil
}
