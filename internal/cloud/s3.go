package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/ANIKETSHETTY47/grid-risk-engine/internal/domain"
)

// S3API is the part of *s3.Client the archive uses.
type S3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// ResultArchive keeps the full results of every terminal job as one JSON
// object. Notifications only carry the s3:// pointer it returns.
type ResultArchive struct {
	svc    S3API
	bucket string
	prefix string
}

func NewResultArchive(ctx context.Context, region, bucket string) (*ResultArchive, error) {
	cfg, err := LoadConfig(ctx, region)
	if err != nil {
		return nil, err
	}
	return NewResultArchiveWithClient(s3.NewFromConfig(cfg), bucket), nil
}

func NewResultArchiveWithClient(svc S3API, bucket string) *ResultArchive {
	return &ResultArchive{svc: svc, bucket: bucket, prefix: "jobs/"}
}

func (a *ResultArchive) key(jobID string) string {
	return a.prefix + jobID + ".json"
}

// Store uploads the job and returns its s3:// URI.
func (a *ResultArchive) Store(ctx context.Context, job domain.CalculationJob) (string, error) {
	data, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("failed to marshal job %s: %w", job.ID, err)
	}
	key := a.key(job.ID)
	_, err = a.svc.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
		Metadata: map[string]string{
			"job-state":    string(job.State),
			"archived-at":  time.Now().UTC().Format(time.RFC3339),
			"algorithm-id": job.AlgorithmVersion,
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload job %s to S3: %w", job.ID, err)
	}
	return fmt.Sprintf("s3://%s/%s", a.bucket, key), nil
}

// Load reads an archived job back, for lookups after the in-memory record
// is gone.
func (a *ResultArchive) Load(ctx context.Context, jobID string) (domain.CalculationJob, error) {
	result, err := a.svc.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(a.key(jobID)),
	})
	if err != nil {
		var missing *s3types.NoSuchKey
		if errors.As(err, &missing) {
			return domain.CalculationJob{}, fmt.Errorf("%w: job %s", domain.ErrNotFound, jobID)
		}
		return domain.CalculationJob{}, fmt.Errorf("failed to download job %s from S3: %w", jobID, err)
	}
	defer result.Body.Close()

	buf := new(bytes.Buffer)
	if _, err := buf.ReadFrom(result.Body); err != nil {
		return domain.CalculationJob{}, fmt.Errorf("failed to read S3 object body: %w", err)
	}
	var job domain.CalculationJob
	if err := json.Unmarshal(buf.Bytes(), &job); err != nil {
		return domain.CalculationJob{}, fmt.Errorf("failed to decode job %s: %w", jobID, err)
	}
	return job, nil
}
