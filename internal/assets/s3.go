package assets

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"
)

const usersPrefix = "users"

// S3Client is the subset of the S3 API the asset store uses.
type S3Client interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3Store keeps enrollment images in an S3 bucket under
// users/<identity>/<uuid>.<ext>.
type S3Store struct {
	client S3Client
	bucket string
}

// NewS3Store creates an S3-backed asset store.
func NewS3Store(client S3Client, bucket string) *S3Store {
	return &S3Store{client: client, bucket: bucket}
}

// Put implements Store.
func (s *S3Store) Put(ctx context.Context, identity string, data []byte, ext string) (string, error) {
	key := fmt.Sprintf("%s/%s/%s.%s", usersPrefix, identity, uuid.NewString(), ext)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:       aws.String(s.bucket),
		Key:          aws.String(key),
		Body:         bytes.NewReader(data),
		ContentType:  aws.String("image/" + ext),
		CacheControl: aws.String("no-store"),
	})
	if err != nil {
		return "", fmt.Errorf("upload user image: %w", err)
	}
	return key, nil
}

// Get implements Store.
func (s *S3Store) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noKey *s3types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("download user image: %w", err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read user image: %w", err)
	}
	return data, nil
}

// Delete implements Store.
func (s *S3Store) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("delete user image: %w", err)
	}
	return nil
}

// List pages through the users/ prefix. The identity is the parent
// directory of each object key.
func (s *S3Store) List(ctx context.Context) ([]ObjectInfo, error) {
	var out []ObjectInfo

	var token *string
	for {
		resp, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(s.bucket),
			Prefix:            aws.String(usersPrefix + "/"),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, fmt.Errorf("list user images: %w", err)
		}

		for _, obj := range resp.Contents {
			key := aws.ToString(obj.Key)
			if strings.HasSuffix(key, "/") {
				continue
			}
			out = append(out, ObjectInfo{
				Identity: path.Base(path.Dir(key)),
				Key:      key,
			})
		}

		if resp.NextContinuationToken == nil {
			break
		}
		token = resp.NextContinuationToken
	}

	return out, nil
}
