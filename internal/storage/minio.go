package storage

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"CloudKeep/config"
	"CloudKeep/internal/service"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type MinIOStorage struct {
	Client *minio.Client
	Bucket string
}

var Minio *MinIOStorage

// InitMinio initializes MinIO client and bucket.
func InitMinio() {
	client, err := minio.New(fmt.Sprintf("%s:%s", config.AppConfig.MinioHost, config.AppConfig.MinioPort), &minio.Options{
		Creds:  credentials.NewStaticV4(config.AppConfig.MinioUsername, config.AppConfig.MinioPassword, ""),
		Secure: false,
	})
	if err != nil {
		log.Fatalln("minio error:", err)
	}
	ctx := context.Background()
	exists, err := client.BucketExists(ctx, config.AppConfig.BucketName)
	if err != nil {
		log.Fatalln("check bucket fail:", err)
	}
	if !exists { // 不需要人工去 minio 建立 bucket 直接后端进行操作
		if err := client.MakeBucket(ctx, config.AppConfig.BucketName, minio.MakeBucketOptions{}); err != nil {
			log.Fatalln("create bucket fail:", err)
		}
	}
	Minio = &MinIOStorage{
		Client: client,
		Bucket: config.AppConfig.BucketName,
	}
}

// PutBlob streams uploaded bytes into object storage under the blob ID.
func (s *MinIOStorage) PutBlob(ctx context.Context, blobID string, reader io.Reader, size int64, contentType string) error {
	_, err := s.Client.PutObject(ctx, s.Bucket, blobID, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	return err
}

// RemoveBlob deletes blob bytes. Used by the cleanup worker after a purge.
func (s *MinIOStorage) RemoveBlob(ctx context.Context, blobID string) error {
	return s.Client.RemoveObject(ctx, s.Bucket, blobID, minio.RemoveObjectOptions{})
}

// BlobMeta implements service.BlobMetaProvider: object size, content type
// and, for images, a presigned thumbnail URL.
func (s *MinIOStorage) BlobMeta(ctx context.Context, blobID string) (service.BlobMeta, error) {
	stat, err := s.Client.StatObject(ctx, s.Bucket, blobID, minio.StatObjectOptions{})
	if err != nil {
		return service.BlobMeta{}, err
	}
	meta := service.BlobMeta{
		Size:        stat.Size,
		ContentType: stat.ContentType,
	}
	if strings.HasPrefix(stat.ContentType, "image/") {
		url, err := s.Client.PresignedGetObject(ctx, s.Bucket, blobID, time.Hour, nil)
		if err != nil {
			return meta, nil
		}
		meta.ThumbURL = url.String()
	}
	return meta, nil
}

var _ service.BlobMetaProvider = (*MinIOStorage)(nil)
