package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

// Config holds the object-storage settings. An empty Endpoint disables the
// archive entirely.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// Archive stores finalized audio artifacts in object storage. Uploads are
// best-effort; a failed upload never fails a finalize.
type Archive struct {
	client *minio.Client
	bucket string
	logger *zap.Logger
}

// New returns nil when cfg.Endpoint is empty; a nil *Archive is safe to use
// and does nothing.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Archive, error) {
	if cfg.Endpoint == "" {
		return nil, nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check archive bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create archive bucket: %w", err)
		}
	}

	return &Archive{client: client, bucket: cfg.Bucket, logger: logger}, nil
}

// StoreAudio uploads the finalized WAV under recordings/<session_id>.wav.
func (a *Archive) StoreAudio(ctx context.Context, sessionID, wavPath string) error {
	if a == nil {
		return nil
	}
	f, err := os.Open(wavPath)
	if err != nil {
		return fmt.Errorf("open audio for archive: %w", err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat audio for archive: %w", err)
	}

	objectName := "recordings/" + filepath.Base(wavPath)
	_, err = a.client.PutObject(ctx, a.bucket, objectName, f, info.Size(), minio.PutObjectOptions{
		ContentType: "audio/wav",
	})
	if err != nil {
		return fmt.Errorf("archive audio upload: %w", err)
	}
	a.logger.Info("audio archived",
		zap.String("session_id", sessionID),
		zap.String("object", objectName),
		zap.Int64("bytes", info.Size()))
	return nil
}
