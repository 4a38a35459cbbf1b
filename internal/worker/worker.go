package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/attendtrack/backend/internal/audio"
	"github.com/attendtrack/backend/pkg/queue"
	"github.com/attendtrack/backend/pkg/storage"
)

// ArchiveProcessor processes queued jobs: archive stopped master files to S3
// and run retention sweeps.
type ArchiveProcessor struct {
	repo        *audio.Repository
	enforcer    *audio.Enforcer
	s3          *storage.S3
	queue       *queue.Queue
	storageRoot string
	logger      *zap.Logger
}

// NewArchiveProcessor creates an archive worker.
func NewArchiveProcessor(repo *audio.Repository, enforcer *audio.Enforcer, s3 *storage.S3, q *queue.Queue, storageRoot string, logger *zap.Logger) *ArchiveProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ArchiveProcessor{
		repo:        repo,
		enforcer:    enforcer,
		s3:          s3,
		queue:       q,
		storageRoot: storageRoot,
		logger:      logger,
	}
}

// Process executes one job.
func (p *ArchiveProcessor) Process(ctx context.Context, job *queue.Job) error {
	switch job.Type {
	case queue.JobTypeArchiveUpload:
		return p.processArchive(ctx, job)
	case queue.JobTypeRetentionSweep:
		_, err := p.enforcer.PurgeExpired(ctx)
		return err
	default:
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
}

func (p *ArchiveProcessor) processArchive(ctx context.Context, job *queue.Job) error {
	if p.s3 == nil {
		p.logger.Warn("archive job skipped, S3 not configured", zap.String("job_id", job.ID))
		return nil
	}
	var payload queue.ArchiveUploadPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	sess, err := p.repo.GetSessionByID(ctx, payload.RecordingID)
	if err != nil {
		return fmt.Errorf("recording not found: %s", payload.RecordingID)
	}
	if sess.ArchiveURL != "" {
		p.logger.Info("recording already archived", zap.String("recording_id", sess.ID.String()))
		return nil
	}

	path := filepath.Join(p.storageRoot, payload.DirKey, payload.FileName)
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open master: %w", err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat master: %w", err)
	}

	key := storage.ArchiveKey(payload.DirKey, payload.FileName)
	url, err := p.s3.Upload(ctx, p.s3.ArchiveBucket(), key,
		storage.ContentTypeForFilename(payload.FileName), f, info.Size())
	if err != nil {
		return fmt.Errorf("s3 upload: %w", err)
	}

	if err := p.repo.SetArchiveURL(ctx, payload.RecordingID, url); err != nil {
		p.logger.Error("update archive url failed", zap.Error(err), zap.String("recording_id", payload.RecordingID.String()))
		return fmt.Errorf("update db: %w", err)
	}

	p.logger.Info("recording archived", zap.String("recording_id", payload.RecordingID.String()), zap.String("s3_key", key))
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error.
func (p *ArchiveProcessor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("archive worker stopping")
			return
		default:
		}

		job, _, err := p.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			time.Sleep(queue.RetryBackoff)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))
			if reErr := p.queue.Retry(ctx, job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			time.Sleep(queue.RetryBackoff)
			continue
		}
	}
}
