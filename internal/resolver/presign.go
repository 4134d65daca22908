package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"reelstream/internal/config"
)

// Presign resolves identifiers to presigned GET URLs on an S3-compatible
// bucket. It needs no subprocess and ignores the cookie jar.
type Presign struct {
	client      *minio.Client
	bucket      string
	keyTemplate string
	expiry      time.Duration
	logger      *slog.Logger
}

// NewPresign creates a presigning Resolver. Signing is local; with Region set
// the client never contacts the bucket.
func NewPresign(cfg *config.Config, logger *slog.Logger) (*Presign, error) {
	p := cfg.Resolver.Presign
	client, err := minio.New(p.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(p.AccessKeyID, p.SecretAccessKey, ""),
		Secure: !p.Insecure,
		Region: p.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("presign: create client: %w", err)
	}
	return &Presign{
		client:      client,
		bucket:      p.Bucket,
		keyTemplate: p.KeyTemplate,
		expiry:      time.Duration(p.ExpirySeconds) * time.Second,
		logger:      logger.With("component", "presign_resolver"),
	}, nil
}

// ObjectKey maps an identifier onto the bucket key.
func (r *Presign) ObjectKey(externalID string) string {
	return strings.ReplaceAll(r.keyTemplate, "{id}", externalID)
}

// Resolve signs a GET for the identifier's object.
func (r *Presign) Resolve(ctx context.Context, externalID, _ string) (string, error) {
	key := r.ObjectKey(externalID)
	u, err := r.client.PresignedGetObject(ctx, r.bucket, key, r.expiry, url.Values{})
	if err != nil {
		r.logger.Warn("presign failed", "video_id", externalID, "key", key, "err", err)
		return "", &ResolutionError{
			ExternalID: externalID,
			ExitCode:   -1,
			Err:        fmt.Errorf("%w: %w", ErrPresign, err),
		}
	}
	return u.String(), nil
}
