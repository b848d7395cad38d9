package storage

import (
	"bytes"
	"chat-core/domain"
	"chat-core/domain/mimetypes"
	"chat-core/errors"
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
)

type S3Config struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	Folder    string
	PublicURL string
}

// S3Storage stores attachments in an S3 compatible bucket.
type S3Storage struct {
	client    s3iface.S3API
	bucket    string
	folder    string
	publicURL string
	log       *slog.Logger
}

func NewS3Client(cfg S3Config) (s3iface.S3API, error) {
	sess, err := session.NewSession(&aws.Config{
		Region:           aws.String(cfg.Region),
		Endpoint:         aws.String(cfg.Endpoint),
		Credentials:      credentials.NewStaticCredentials(cfg.AccessKey, cfg.SecretKey, ""),
		S3ForcePathStyle: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("open s3 session: %w", err)
	}
	return s3.New(sess), nil
}

func NewS3Storage(client s3iface.S3API, cfg S3Config, log *slog.Logger) *S3Storage {
	return &S3Storage{
		client:    client,
		bucket:    cfg.Bucket,
		folder:    cfg.Folder,
		publicURL: strings.TrimSuffix(cfg.PublicURL, "/"),
		log:       log,
	}
}

func (s *S3Storage) Save(ctx context.Context, upload domain.Upload) (domain.Attachment, error) {
	contentType, ext, ok := mimetypes.Detect(upload.Data)
	if !ok {
		return domain.Attachment{}, fmt.Errorf("%s: %w", upload.Name, errors.ErrUnsupportedAttachment)
	}
	key := path.Join(s.folder, newObjectName(ext))
	_, err := s.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(upload.Data),
		ContentLength: aws.Int64(int64(len(upload.Data))),
		ContentType:   aws.String(string(contentType)),
		ACL:           aws.String(s3.ObjectCannedACLPublicRead),
	})
	if err != nil {
		return domain.Attachment{}, fmt.Errorf("upload %s to s3: %w", upload.Name, err)
	}
	s.log.Debug("Attachment uploaded", "name", upload.Name, "key", key)
	return domain.Attachment{
		URL:         s.publicURL + "/" + key,
		Path:        key,
		ContentType: string(contentType),
	}, nil
}

func (s *S3Storage) Remove(ctx context.Context, attachment domain.Attachment) error {
	_, err := s.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(attachment.Path),
	})
	if err != nil {
		return fmt.Errorf("delete %s from s3: %w", attachment.Path, err)
	}
	return nil
}
