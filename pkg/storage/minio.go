// Package storage提供了与对象存储服务（如 MinIO）交互的功能。
package storage

import (
	"context"
	"fmt"
	"time"

	"docweave-go/internal/config"
	"docweave-go/pkg/log"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioClient 是一个全局的 MinIO 客户端实例。
var MinioClient *minio.Client

// InitMinIO 初始化 MinIO 客户端并确保指定的存储桶存在。
func InitMinIO(cfg config.MinIOConfig) {
	var err error

	MinioClient, err = minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		log.Fatal("初始化 MinIO 客户端失败", err)
	}
	log.Info("MinIO 客户端初始化成功")

	ctx := context.Background()
	bucketName := cfg.BucketName
	exists, err := MinioClient.BucketExists(ctx, bucketName)
	if err != nil {
		log.Fatal("检查 MinIO 存储桶失败", err)
	}
	if !exists {
		log.Infof("存储桶 '%s' 不存在，正在创建...", bucketName)
		if err = MinioClient.MakeBucket(ctx, bucketName, minio.MakeBucketOptions{}); err != nil {
			log.Fatal("创建 MinIO 存储桶失败", err)
		}
		log.Infof("存储桶 '%s' 创建成功", bucketName)
	} else {
		log.Infof("存储桶 '%s' 已存在", bucketName)
	}
}

// Archive 保存上传文档的原件，供下载与房间删除时清理。
type Archive interface {
	PutFile(ctx context.Context, objectName, path, contentType string) error
	Remove(ctx context.Context, objectName string) error
	PresignedURL(ctx context.Context, objectName string, expiry time.Duration) (string, error)
}

type minioArchive struct {
	client *minio.Client
	bucket string
}

// NewArchive 基于 MinIO 客户端创建文档归档。
func NewArchive(client *minio.Client, bucket string) Archive {
	return &minioArchive{client: client, bucket: bucket}
}

func (a *minioArchive) PutFile(ctx context.Context, objectName, path, contentType string) error {
	info, err := a.client.FPutObject(ctx, a.bucket, objectName, path, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("上传文件到 MinIO 失败: %w", err)
	}
	log.Infof("[Storage] 文件已归档, object: %s, size: %d", objectName, info.Size)
	return nil
}

func (a *minioArchive) Remove(ctx context.Context, objectName string) error {
	return a.client.RemoveObject(ctx, a.bucket, objectName, minio.RemoveObjectOptions{})
}

// PresignedURL generates a presigned download URL for an archived object.
func (a *minioArchive) PresignedURL(ctx context.Context, objectName string, expiry time.Duration) (string, error) {
	u, err := a.client.PresignedGetObject(ctx, a.bucket, objectName, expiry, nil)
	if err != nil {
		log.Errorf("Error generating presigned URL: %s", err)
		return "", err
	}
	return u.String(), nil
}

type noopArchive struct{}

// NoopArchive 在未启用 MinIO 时使用，所有操作直接成功。
func NoopArchive() Archive { return noopArchive{} }

func (noopArchive) PutFile(context.Context, string, string, string) error { return nil }
func (noopArchive) Remove(context.Context, string) error                  { return nil }
func (noopArchive) PresignedURL(context.Context, string, time.Duration) (string, error) {
	return "", fmt.Errorf("文档归档未启用")
}
