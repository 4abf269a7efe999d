package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"path"
	"time"

	"learnit-events/internal/domain/outbox"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type S3Config struct {
	Region    string
	Bucket    string
	Prefix    string
	AccessKey string
	SecretKey string
	Endpoint  string
}

type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Archive writes purged outbox rows to S3 as one JSON-lines object per sweep.
type Archive struct {
	cfg S3Config
	s3  objectPutter
}

func NewArchive(ctx context.Context, cfg S3Config) (*Archive, error) {
	if cfg.Region == "" || cfg.Bucket == "" {
		return nil, errors.New("s3 region and bucket are required")
	}

	var opts []func(*config.LoadOptions) error
	opts = append(opts, config.WithRegion(cfg.Region))

	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}

	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			endpoint := cfg.Endpoint
			if parsed, err := url.Parse(endpoint); err == nil {
				endpoint = parsed.String()
			}
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})

	return &Archive{cfg: cfg, s3: s3Client}, nil
}

// Store uploads rows under {prefix}/{yyyy}/{mm}/{dd}/outbox-{cutoff}.jsonl.
func (a *Archive) Store(ctx context.Context, cutoff time.Time, rows []outbox.OutboxEvent) error {
	if a == nil || a.s3 == nil {
		return errors.New("s3 archive not initialized")
	}
	if len(rows) == 0 {
		return nil
	}
	body, err := EncodeJSONLines(rows)
	if err != nil {
		return err
	}
	key := ObjectKey(a.cfg.Prefix, cutoff)
	_, err = a.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.cfg.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

func ObjectKey(prefix string, cutoff time.Time) string {
	cutoff = cutoff.UTC()
	return path.Join(prefix, cutoff.Format("2006/01/02"), fmt.Sprintf("outbox-%s.jsonl", cutoff.Format("20060102T150405Z")))
}

type archivedRow struct {
	ID            int64           `json:"id"`
	AggregateType string          `json:"aggregateType"`
	AggregateID   string          `json:"aggregateId"`
	EventType     string          `json:"eventType"`
	EventID       string          `json:"eventId"`
	Payload       json.RawMessage `json:"payload"`
	CreatedAt     time.Time       `json:"createdAt"`
	ProcessedAt   *time.Time      `json:"processedAt,omitempty"`
	AttemptCount  int             `json:"attemptCount"`
}

// EncodeJSONLines renders one JSON object per row. Payloads that are not
// valid JSON are embedded as strings.
func EncodeJSONLines(rows []outbox.OutboxEvent) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, r := range rows {
		payload := json.RawMessage(r.Payload)
		if !json.Valid(payload) {
			quoted, err := json.Marshal(string(r.Payload))
			if err != nil {
				return nil, err
			}
			payload = quoted
		}
		if err := enc.Encode(archivedRow{
			ID:            r.ID,
			AggregateType: r.AggregateType,
			AggregateID:   r.AggregateID,
			EventType:     r.EventType,
			EventID:       r.EventID,
			Payload:       payload,
			CreatedAt:     r.CreatedAt,
			ProcessedAt:   r.ProcessedAt,
			AttemptCount:  r.AttemptCount,
		}); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}
