package chainstore

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/ilkoid/poncho-relay/pkg/chain"
	"github.com/ilkoid/poncho-relay/pkg/config"
)

// ObjectAPI — операции с объектом в бакете.
// Используется для мокания в тестах.
type ObjectAPI interface {
	Download(ctx context.Context, key string) ([]byte, error)
	Upload(ctx context.Context, key string, data []byte) error
}

// minioObjects реализует ObjectAPI через minio-go.
type minioObjects struct {
	api    *minio.Client
	bucket string
}

// Download скачивает объект целиком в память.
func (m *minioObjects) Download(ctx context.Context, key string) ([]byte, error) {
	obj, err := m.api.GetObject(ctx, m.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, translateS3Error(key, err)
	}
	defer obj.Close()

	buf := new(bytes.Buffer)
	if _, err := io.Copy(buf, obj); err != nil {
		return nil, translateS3Error(key, err)
	}
	return buf.Bytes(), nil
}

// Upload перезаписывает объект.
func (m *minioObjects) Upload(ctx context.Context, key string, data []byte) error {
	_, err := m.api.PutObject(ctx, m.bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/yaml"})
	if err != nil {
		return fmt.Errorf("failed to put object %s: %w", key, err)
	}
	return nil
}

func translateS3Error(key string, err error) error {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket":
		return fmt.Errorf("%w: s3 object %s", ErrNotFound, key)
	}
	return fmt.Errorf("failed to get object %s: %w", key, err)
}

// S3Store — цепочки одним YAML объектом в бакете.
type S3Store struct {
	objects ObjectAPI
	key     string
}

var _ Store = (*S3Store)(nil)

// NewS3Store создаёт S3Store по настройкам s3.
func NewS3Store(cfg config.S3Config, key string) (*S3Store, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create s3 client: %w", err)
	}
	return NewS3StoreWithAPI(&minioObjects{api: client, bucket: cfg.Bucket}, key), nil
}

// NewS3StoreWithAPI создаёт S3Store поверх произвольного ObjectAPI.
func NewS3StoreWithAPI(objects ObjectAPI, key string) *S3Store {
	return &S3Store{objects: objects, key: key}
}

// Load скачивает и разбирает объект.
func (s *S3Store) Load(ctx context.Context) ([]*chain.Config, error) {
	data, err := s.objects.Download(ctx, s.key)
	if err != nil {
		return nil, err
	}
	return chain.ParseChainsYAML(data)
}

// Save перезаписывает объект.
func (s *S3Store) Save(ctx context.Context, chains []*chain.Config) error {
	data, err := chain.MarshalChainsYAML(chains)
	if err != nil {
		return fmt.Errorf("failed to encode chains: %w", err)
	}
	return s.objects.Upload(ctx, s.key, data)
}
