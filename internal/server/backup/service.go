// Package backup writes snapshots of the records table to S3-compatible
// storage. Rows leave the database already encrypted, so a snapshot never
// contains plaintext credentials or thread references.
package backup

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/threadcraft/threadcraft/internal/logging"
	"github.com/threadcraft/threadcraft/internal/server/models"
)

// Settings carries the object-storage connection parameters.
type Settings struct {
	Region       string
	BaseEndpoint string
	AccessKey    string
	SecretKey    string
	Bucket       string
}

// ObjectPutter is the slice of the S3 client the service needs.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// RowSource provides the rows to snapshot. The production source reads them
// in one read-only transaction.
type RowSource interface {
	All(ctx context.Context) ([]*models.Record, error)
}

type Service struct {
	source   RowSource
	settings Settings
	logger   logging.Logger

	// newClient is swappable in tests.
	newClient func(ctx context.Context) (ObjectPutter, error)
}

func NewService(source RowSource, settings Settings, logger logging.Logger) *Service {
	s := &Service{
		source:   source,
		settings: settings,
		logger:   logger.With("module", "backup"),
	}
	s.newClient = s.s3Client
	return s
}

func (s *Service) s3Client(ctx context.Context) (ObjectPutter, error) {
	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(s.settings.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			s.settings.AccessKey,
			s.settings.SecretKey,
			"",
		)))
	if err != nil {
		return nil, err
	}

	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if s.settings.BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(s.settings.BaseEndpoint)
		}
	}), nil
}

// snapshotRow is the serialized form of one record. Blob columns stay as the
// stored ciphertext.
type snapshotRow struct {
	IdentifierHash       string     `json:"identifier_hash"`
	EncryptedCredentials []byte     `json:"encrypted_credentials"`
	EncryptedThreadRef   []byte     `json:"encrypted_thread_ref,omitempty"`
	CurrentDay           int64      `json:"current_day"`
	CreatedAt            time.Time  `json:"created_at"`
	ExpiresAt            *time.Time `json:"expires_at,omitempty"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

type snapshot struct {
	TakenAt time.Time     `json:"taken_at"`
	Rows    []snapshotRow `json:"rows"`
}

// StorageKey returns a date-bucketed object key for a snapshot taken now.
func StorageKey() string {
	d := time.Now()
	return fmt.Sprintf("backups/%d/%d/%d/%v.json", d.Year(), int(d.Month()), d.Day(), uuid.New())
}

// Snapshot serializes every record and uploads it as one JSON object.
// It returns the object key.
func (s *Service) Snapshot(ctx context.Context) (string, error) {
	recs, err := s.source.All(ctx)
	if err != nil {
		return "", fmt.Errorf("loading records: %w", err)
	}

	snap := snapshot{TakenAt: time.Now().UTC(), Rows: make([]snapshotRow, 0, len(recs))}
	for _, r := range recs {
		snap.Rows = append(snap.Rows, snapshotRow{
			IdentifierHash:       r.IdentifierHash,
			EncryptedCredentials: r.EncryptedCredentials,
			EncryptedThreadRef:   r.EncryptedThreadRef,
			CurrentDay:           r.CurrentDay,
			CreatedAt:            r.CreatedAt,
			ExpiresAt:            r.ExpiresAt,
			UpdatedAt:            r.UpdatedAt,
		})
	}

	body, err := json.Marshal(snap)
	if err != nil {
		return "", fmt.Errorf("serializing snapshot: %w", err)
	}

	client, err := s.newClient(ctx)
	if err != nil {
		return "", fmt.Errorf("building storage client: %w", err)
	}

	bucket := s.settings.Bucket
	key := StorageKey()
	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &bucket,
		Key:         &key,
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("uploading snapshot: %w", err)
	}

	s.logger.Info(ctx, "snapshot uploaded", "key", key, "rows", len(snap.Rows))
	return key, nil
}
