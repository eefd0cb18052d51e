// Package archive uploads rollout runs to S3 compatible object storage as
// msgpack bundles.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/aristath/disentangle/internal/modules/rollout"
)

// BundleVersion is written into every bundle.
const BundleVersion = 1

// Uploader stores one object.
type Uploader interface {
	Upload(ctx context.Context, key string, body io.Reader, size int64) error
}

// Config configures the S3 uploader. An empty Endpoint uses AWS; a custom
// endpoint (MinIO, R2) switches to path-style addressing.
type Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	Prefix          string
}

// Enabled reports whether a bucket is configured.
func (c Config) Enabled() bool { return c.Bucket != "" }

// S3Uploader uploads through the S3 transfer manager.
type S3Uploader struct {
	bucket   string
	uploader *manager.Uploader
}

// NewS3Uploader builds an uploader from cfg. Static credentials are used
// when both keys are set, otherwise the default AWS credential chain.
func NewS3Uploader(ctx context.Context, cfg Config) (*S3Uploader, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("archive bucket not configured")
	}
	region := cfg.Region
	if region == "" {
		region = "auto"
	}
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return &S3Uploader{
		bucket:   cfg.Bucket,
		uploader: manager.NewUploader(client),
	}, nil
}

// Upload implements Uploader.
func (u *S3Uploader) Upload(ctx context.Context, key string, body io.Reader, size int64) error {
	_, err := u.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(u.bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String("application/msgpack"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", key, err)
	}
	return nil
}

// Bundle is the archived form of a run.
type Bundle struct {
	Version      int                 `msgpack:"version"`
	RunID        string              `msgpack:"run_id"`
	Kind         string              `msgpack:"kind"`
	Qubits       int                 `msgpack:"qubits"`
	Policy       string              `msgpack:"policy"`
	Trials       int                 `msgpack:"trials"`
	Failed       int                 `msgpack:"failed"`
	PassRate     float64             `msgpack:"pass_rate"`
	MinFidelity  float64             `msgpack:"min_fidelity"`
	CreatedAt    time.Time           `msgpack:"created_at"`
	Trajectories []msgpack.RawMessage `msgpack:"trajectories"`
}

// NewBundle encodes every simulator trajectory of the report.
func NewBundle(rep rollout.Report) (Bundle, error) {
	b := Bundle{
		Version:     BundleVersion,
		RunID:       rep.ID,
		Kind:        rep.Kind,
		Qubits:      rep.Qubits,
		Policy:      rep.Policy,
		Trials:      rep.Trials,
		Failed:      rep.Failed,
		PassRate:    rep.PassRate,
		MinFidelity: rep.MinFidelity,
		CreatedAt:   rep.CreatedAt,
	}
	for _, res := range rep.Results {
		data, err := rollout.MarshalTrajectory(res.Simulator)
		if err != nil {
			return Bundle{}, err
		}
		b.Trajectories = append(b.Trajectories, data)
	}
	return b, nil
}

// DecodeBundle reads a bundle written by Archiver.
func DecodeBundle(data []byte) (Bundle, []rollout.Trajectory, error) {
	var b Bundle
	if err := msgpack.Unmarshal(data, &b); err != nil {
		return Bundle{}, nil, fmt.Errorf("failed to decode bundle: %w", err)
	}
	out := make([]rollout.Trajectory, 0, len(b.Trajectories))
	for _, raw := range b.Trajectories {
		t, err := rollout.UnmarshalTrajectory(raw)
		if err != nil {
			return Bundle{}, nil, err
		}
		out = append(out, t)
	}
	return b, out, nil
}

// Archiver writes run bundles under a key prefix.
type Archiver struct {
	uploader Uploader
	prefix   string
	log      zerolog.Logger
}

// NewArchiver creates an archiver.
func NewArchiver(uploader Uploader, prefix string, log zerolog.Logger) *Archiver {
	return &Archiver{
		uploader: uploader,
		prefix:   strings.Trim(prefix, "/"),
		log:      log.With().Str("service", "archive").Logger(),
	}
}

// Key returns <prefix>/<qubits>q/<yyyy-mm-dd>/<run id>.msgpack.
func (a *Archiver) Key(rep rollout.Report) string {
	key := fmt.Sprintf("%dq/%s/%s.msgpack", rep.Qubits, rep.CreatedAt.UTC().Format("2006-01-02"), rep.ID)
	if a.prefix == "" {
		return key
	}
	return a.prefix + "/" + key
}

// ArchiveRun uploads the report's bundle and returns its key.
func (a *Archiver) ArchiveRun(ctx context.Context, rep rollout.Report) (string, error) {
	bundle, err := NewBundle(rep)
	if err != nil {
		return "", fmt.Errorf("failed to build bundle for run %s: %w", rep.ID, err)
	}
	data, err := msgpack.Marshal(&bundle)
	if err != nil {
		return "", fmt.Errorf("failed to encode bundle for run %s: %w", rep.ID, err)
	}

	key := a.Key(rep)
	start := time.Now()
	if err := a.uploader.Upload(ctx, key, bytes.NewReader(data), int64(len(data))); err != nil {
		return "", err
	}
	a.log.Info().
		Str("run_id", rep.ID).
		Str("key", key).
		Int("size_bytes", len(data)).
		Dur("duration", time.Since(start)).
		Msg("Run archived")
	return key, nil
}
