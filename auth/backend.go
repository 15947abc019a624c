package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// FileBackend 把用户表存为本地 JSON 文件
type FileBackend struct {
	Path string
}

func (b *FileBackend) Load(ctx context.Context) (map[string]Credential, error) {
	data, err := os.ReadFile(b.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]Credential{}, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeUsers(data)
}

// Save 先写临时文件再 rename，避免写一半的文件
func (b *FileBackend) Save(ctx context.Context, users map[string]Credential) error {
	data, err := json.MarshalIndent(users, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(b.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".users-*.json")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), b.Path)
}

func decodeUsers(data []byte) (map[string]Credential, error) {
	users := map[string]Credential{}
	if len(bytes.TrimSpace(data)) == 0 {
		return users, nil
	}
	if err := json.Unmarshal(data, &users); err != nil {
		return nil, fmt.Errorf("decode users: %w", err)
	}
	return users, nil
}

// s3API 是 S3Backend 用到的 s3.Client 子集
type s3API interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Backend 把用户表存为一个 S3 对象
type S3Backend struct {
	client s3API
	bucket string
	key    string
}

type S3Config struct {
	Bucket    string
	Key       string
	Region    string
	Endpoint  string // 兼容 S3 的自建服务，如 MinIO
	AccessKey string
	SecretKey string
}

func NewS3Backend(cfg S3Config) *S3Backend {
	opts := s3.Options{
		Region:       cfg.Region,
		UsePathStyle: cfg.Endpoint != "",
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	if cfg.AccessKey != "" {
		access, secret := cfg.AccessKey, cfg.SecretKey
		opts.Credentials = aws.NewCredentialsCache(aws.CredentialsProviderFunc(
			func(ctx context.Context) (aws.Credentials, error) {
				return aws.Credentials{AccessKeyID: access, SecretAccessKey: secret, Source: "mazearena"}, nil
			}))
	}
	key := cfg.Key
	if key == "" {
		key = "users.json"
	}
	return &S3Backend{client: s3.New(opts), bucket: cfg.Bucket, key: key}
}

func (b *S3Backend) Load(ctx context.Context) (map[string]Credential, error) {
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.key),
	})
	if err != nil {
		var missing *types.NoSuchKey
		if errors.As(err, &missing) {
			return map[string]Credential{}, nil
		}
		return nil, fmt.Errorf("s3 get %s/%s: %w", b.bucket, b.key, err)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, err
	}
	return decodeUsers(data)
}

func (b *S3Backend) Save(ctx context.Context, users map[string]Credential) error {
	data, err := json.Marshal(users)
	if err != nil {
		return err
	}
	_, err = b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(b.bucket),
		Key:         aws.String(b.key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("s3 put %s/%s: %w", b.bucket, b.key, err)
	}
	return nil
}
