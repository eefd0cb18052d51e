// Package reliability keeps the run store healthy: off-site backups and
// periodic maintenance.
package reliability

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/disentangle/internal/archive"
	"github.com/aristath/disentangle/internal/database"
)

const metadataFile = "backup-metadata.json"

// BackupMetadata describes the contents of a backup archive
type BackupMetadata struct {
	Timestamp time.Time        `json:"timestamp"`
	Version   string           `json:"version"`
	Database  DatabaseMetadata `json:"database"`
}

// DatabaseMetadata describes the database snapshot in a backup
type DatabaseMetadata struct {
	Name      string `json:"name"`
	Filename  string `json:"filename"`
	SizeBytes int64  `json:"size_bytes"`
	Checksum  string `json:"checksum"`
}

// BackupService snapshots the run store and uploads it as a tar.gz archive
type BackupService struct {
	db       *database.DB
	uploader archive.Uploader
	prefix   string
	tmpDir   string
	log      zerolog.Logger
}

// NewBackupService creates a new backup service. Staging files live under
// tmpDir, which defaults to the system temp directory.
func NewBackupService(db *database.DB, uploader archive.Uploader, prefix, tmpDir string, log zerolog.Logger) *BackupService {
	return &BackupService{
		db:       db,
		uploader: uploader,
		prefix:   strings.Trim(prefix, "/"),
		tmpDir:   tmpDir,
		log:      log.With().Str("service", "backup").Logger(),
	}
}

// Key returns the object key of a backup taken at t.
func (s *BackupService) Key(t time.Time) string {
	name := fmt.Sprintf("%s-backup-%s.tar.gz", s.db.Name(), t.UTC().Format("2006-01-02-150405"))
	return path.Join(s.prefix, "backups", name)
}

// CreateAndUploadBackup snapshots the database, packs it with its metadata
// and uploads the archive. It returns the object key.
func (s *BackupService) CreateAndUploadBackup(ctx context.Context) (string, error) {
	s.log.Info().Msg("Starting backup")
	startTime := time.Now()

	stagingDir, err := os.MkdirTemp(s.tmpDir, "backup-staging-*")
	if err != nil {
		return "", fmt.Errorf("failed to create staging directory: %w", err)
	}
	defer os.RemoveAll(stagingDir)

	dbFile := s.db.Name() + ".db"
	snapshot := filepath.Join(stagingDir, dbFile)
	if _, err := s.db.Conn().ExecContext(ctx, "VACUUM INTO ?", snapshot); err != nil {
		return "", fmt.Errorf("failed to snapshot %s: %w", s.db.Name(), err)
	}

	info, err := os.Stat(snapshot)
	if err != nil {
		return "", fmt.Errorf("failed to stat snapshot: %w", err)
	}
	checksum, err := calculateChecksum(snapshot)
	if err != nil {
		return "", fmt.Errorf("failed to calculate checksum: %w", err)
	}

	metadata := BackupMetadata{
		Timestamp: startTime.UTC(),
		Version:   "1.0.0",
		Database: DatabaseMetadata{
			Name:      s.db.Name(),
			Filename:  dbFile,
			SizeBytes: info.Size(),
			Checksum:  checksum,
		},
	}
	if err := writeMetadata(filepath.Join(stagingDir, metadataFile), metadata); err != nil {
		return "", fmt.Errorf("failed to write metadata: %w", err)
	}

	archivePath := filepath.Join(stagingDir, "backup.tar.gz")
	if err := createArchive(archivePath, stagingDir, []string{dbFile, metadataFile}); err != nil {
		return "", fmt.Errorf("failed to create archive: %w", err)
	}

	archiveInfo, err := os.Stat(archivePath)
	if err != nil {
		return "", fmt.Errorf("failed to stat archive: %w", err)
	}
	archiveFile, err := os.Open(archivePath)
	if err != nil {
		return "", fmt.Errorf("failed to open archive: %w", err)
	}
	defer archiveFile.Close()

	key := s.Key(startTime)
	if err := s.uploader.Upload(ctx, key, archiveFile, archiveInfo.Size()); err != nil {
		return "", fmt.Errorf("failed to upload backup: %w", err)
	}

	s.log.Info().
		Dur("duration_ms", time.Since(startTime)).
		Str("key", key).
		Int64("size_bytes", archiveInfo.Size()).
		Msg("Backup completed successfully")
	return key, nil
}

// BackupJob runs the backup service on a schedule
type BackupJob struct {
	service *BackupService
	timeout time.Duration
}

// NewBackupJob creates a new backup job
func NewBackupJob(service *BackupService) *BackupJob {
	return &BackupJob{service: service, timeout: 10 * time.Minute}
}

// Run executes the backup
func (j *BackupJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()
	_, err := j.service.CreateAndUploadBackup(ctx)
	return err
}

// Name returns the job name for scheduler
func (j *BackupJob) Name() string {
	return "run_store_backup"
}

func calculateChecksum(filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}
	return fmt.Sprintf("sha256:%x", hash.Sum(nil)), nil
}

func writeMetadata(path string, metadata BackupMetadata) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(metadata)
}

// createArchive writes the named files of sourceDir into a tar.gz archive.
func createArchive(archivePath, sourceDir string, names []string) error {
	archiveFile, err := os.Create(archivePath)
	if err != nil {
		return fmt.Errorf("failed to create archive file: %w", err)
	}
	defer archiveFile.Close()

	gzipWriter := gzip.NewWriter(archiveFile)
	tarWriter := tar.NewWriter(gzipWriter)

	for _, name := range names {
		if err := addFileToArchive(tarWriter, filepath.Join(sourceDir, name), name); err != nil {
			return fmt.Errorf("failed to add %s to archive: %w", name, err)
		}
	}

	if err := tarWriter.Close(); err != nil {
		return err
	}
	return gzipWriter.Close()
}

func addFileToArchive(tarWriter *tar.Writer, filePath, nameInArchive string) error {
	file, err := os.Open(filePath)
	if err != nil {
		return err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return err
	}

	header := &tar.Header{
		Name:    nameInArchive,
		Size:    info.Size(),
		Mode:    int64(info.Mode()),
		ModTime: info.ModTime(),
	}
	if err := tarWriter.WriteHeader(header); err != nil {
		return err
	}
	_, err = io.Copy(tarWriter, file)
	return err
}
