// Package replay archives finished battles to S3-compatible object storage.
package replay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"

	"monbattle/internal/battle"
)

// Document is the archived form of a battle.
type Document struct {
	Version    int            `json:"version"`
	Battle     *battle.Battle `json:"battle"`
	Turns      []battle.Turn  `json:"turns"`
	ArchivedAt time.Time      `json:"archivedAt"`
}

// Putter is the part of the S3 client the archiver needs.
type Putter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Archiver writes one JSON document per battle.
type Archiver struct {
	client Putter
	bucket string
	prefix string
	now    func() time.Time
}

// NewArchiver returns an archiver writing under prefix in bucket.
func NewArchiver(client Putter, bucket, prefix string) *Archiver {
	return &Archiver{client: client, bucket: bucket, prefix: prefix, now: time.Now}
}

// Key returns the object key of a battle's document. Documents are grouped by
// the day the battle ended.
func (a *Archiver) Key(b *battle.Battle) string {
	day := "undated"
	if b.EndedAt != nil {
		day = b.EndedAt.UTC().Format("2006/01/02")
	}
	return path.Join(a.prefix, day, b.ID.String()+".json")
}

// Archive uploads the battle and its turns. Uploading the same battle twice
// overwrites the same object.
func (a *Archiver) Archive(ctx context.Context, b *battle.Battle, turns []battle.Turn) error {
	body, err := json.Marshal(Document{Version: 1, Battle: b, Turns: turns, ArchivedAt: a.now().UTC()})
	if err != nil {
		return fmt.Errorf("encode replay: %w", err)
	}
	key := a.Key(b)
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("upload replay %s: %w", key, err)
	}
	log.Debug().Str("battle_id", b.ID.String()).Str("key", key).Int("bytes", len(body)).Msg("Replay archived")
	return nil
}

// ClientConfig describes how to reach the bucket.
type ClientConfig struct {
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

// NewS3Client builds an S3 client. Static credentials are used when given,
// otherwise the default AWS chain applies. A custom endpoint switches to path
// style addressing for R2 or MinIO.
func NewS3Client(ctx context.Context, cfg ClientConfig) (*s3.Client, error) {
	region := cfg.Region
	if region == "" {
		region = "auto"
	}
	opts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load S3 config: %w", err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}
