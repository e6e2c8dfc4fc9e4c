package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ahmetcoskunkizilkaya/vouch-backend/internal/clock"
	"github.com/ahmetcoskunkizilkaya/vouch-backend/internal/config"
	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

const avatarURLExpiry = 15 * time.Minute

var avatarExtensions = map[string]string{
	"image/jpeg": "jpg",
	"image/png":  "png",
	"image/webp": "webp",
}

// ObjectPresigner is the slice of s3.PresignClient the avatar flow uses.
type ObjectPresigner interface {
	PresignPutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

type AvatarUpload struct {
	UploadURL string
	Method    string
	Headers   map[string]string
	AvatarURI string
	ExpiresAt time.Time
}

// AvatarService hands out presigned PUT URLs so clients upload avatars
// straight to object storage. The resulting public URI is then saved with
// a regular profile update.
type AvatarService struct {
	presigner ObjectPresigner
	bucket    string
	publicURL string
	maxBytes  int64
	clock     clock.Clock
}

func NewAvatarService(presigner ObjectPresigner, bucket, publicURL string, maxBytes int64, clk clock.Clock) *AvatarService {
	return &AvatarService{
		presigner: presigner,
		bucket:    bucket,
		publicURL: strings.TrimRight(publicURL, "/"),
		maxBytes:  maxBytes,
		clock:     clk,
	}
}

// NewS3Presigner builds a presigner for an S3-compatible store. It returns
// nil when no bucket is configured, which disables uploads.
func NewS3Presigner(cfg *config.Config) ObjectPresigner {
	if cfg.AvatarBucket == "" {
		return nil
	}
	opts := s3.Options{
		Region: cfg.AvatarRegion,
		Credentials: credentials.NewStaticCredentialsProvider(
			cfg.AvatarAccessKeyID,
			cfg.AvatarSecretAccessKey,
			"",
		),
	}
	if cfg.AvatarEndpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.AvatarEndpoint)
		opts.UsePathStyle = true
	}
	return s3.NewPresignClient(s3.New(opts))
}

func (s *AvatarService) Enabled() bool {
	return s.presigner != nil && s.bucket != ""
}

func (s *AvatarService) PresignUpload(ctx context.Context, userID uuid.UUID, contentType string, size int64) (*AvatarUpload, error) {
	if !s.Enabled() {
		return nil, ErrAvatarUnavailable
	}
	ext, ok := avatarExtensions[strings.ToLower(contentType)]
	if !ok {
		return nil, ErrInvalidContentType
	}
	if size <= 0 || size > s.maxBytes {
		return nil, ErrAvatarTooLarge
	}

	key := fmt.Sprintf("avatars/%s/%s.%s", userID, uuid.NewString(), ext)
	req, err := s.presigner.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		ContentType: aws.String(strings.ToLower(contentType)),
	}, s3.WithPresignExpires(avatarURLExpiry))
	if err != nil {
		return nil, fmt.Errorf("%w: presign avatar upload: %w", ErrAvatarUnavailable, err)
	}

	headers := make(map[string]string, len(req.SignedHeader))
	for name, values := range req.SignedHeader {
		if len(values) > 0 && !strings.EqualFold(name, "host") {
			headers[name] = values[0]
		}
	}

	return &AvatarUpload{
		UploadURL: req.URL,
		Method:    req.Method,
		Headers:   headers,
		AvatarURI: s.publicURL + "/" + key,
		ExpiresAt: s.clock.Now().Add(avatarURLExpiry),
	}, nil
}
