package service

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"

	"github.com/ppopeskul/wa-ingest/internal/config"
	"github.com/ppopeskul/wa-ingest/internal/gateway"
	"github.com/ppopeskul/wa-ingest/internal/models"
	"github.com/ppopeskul/wa-ingest/internal/queue"
	"github.com/ppopeskul/wa-ingest/internal/repository"
)

const (
	mimeOctetStream = "application/octet-stream"
	mimeMarkdown    = "text/markdown"
)

type mediaService struct {
	repo         repository.Repository
	provider     gateway.ProviderClient
	storage      gateway.Storage
	dispatcher   TaskDispatcher
	retryBackoff time.Duration
	logger       *zap.Logger
	now          func() time.Time
	sleep        func(ctx context.Context, d time.Duration) error
}

func NewMediaService(
	cfg *config.Config,
	repo repository.Repository,
	provider gateway.ProviderClient,
	storage gateway.Storage,
	dispatcher TaskDispatcher,
	logger *zap.Logger,
) MediaService {
	return &mediaService{
		repo:         repo,
		provider:     provider,
		storage:      storage,
		dispatcher:   dispatcher,
		retryBackoff: cfg.Media.RetryBackoff,
		logger:       logger,
		now:          time.Now,
		sleep:        sleepContext,
	}
}

// Materialize downloads the attachment of a pending media message, uploads it to
// storage and records the result. Download and upload failures end in the failed
// state and are not returned; only database errors and cancellation are. A cancelled
// task leaves the message pending so it can be redelivered.
func (s *mediaService) Materialize(ctx context.Context, task queue.MediaTask) error {
	msg, err := s.repo.Message().GetByID(ctx, task.MessageID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.logger.Warn("Media message no longer exists", zap.String("messageID", task.MessageID))
			return nil
		}
		return fmt.Errorf("failed to get message: %w", err)
	}

	if msg.Status != models.MessageStatusPending {
		s.logger.Debug("Media already processed",
			zap.String("messageID", msg.ID),
			zap.String("status", string(msg.Status)))
		return nil
	}

	conn, err := s.repo.Connection().GetByID(ctx, task.ConnectionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return s.fail(ctx, msg.ID, fmt.Errorf("%w: %s", ErrConnectionNotFound, task.ConnectionID))
		}
		return fmt.Errorf("failed to get connection: %w", err)
	}

	content, err := s.download(ctx, conn.ProviderToken, task.ProviderMessageID)
	if err != nil {
		if ctx.Err() != nil {
			return s.interrupted(ctx, msg.ID, fmt.Errorf("download interrupted: %w", err))
		}
		return s.fail(ctx, msg.ID, fmt.Errorf("download failed: %w", err))
	}

	fileName := firstNonEmpty(content.FileName, task.FileName)
	format := resolveMediaFormat(content, task.ProviderMimeType, fileName, models.MessageType(task.MessageType))

	key := objectKey(task.CompanyID, task.ConnectionID, task.ProviderMessageID, format.extension, s.now().UTC())
	url, err := s.storage.Upload(ctx, key, format.storageMime, content.Data)
	if err != nil {
		if ctx.Err() != nil {
			return s.interrupted(ctx, msg.ID, fmt.Errorf("upload interrupted: %w", err))
		}
		return s.fail(ctx, msg.ID, fmt.Errorf("upload failed: %w", err))
	}

	metadata := map[string]any{
		models.MetaPendingDownload: false,
		models.MetaFileSize:        len(content.Data),
		models.MetaProcessedAt:     s.now().UTC().Format(time.RFC3339),
		models.MetaStorageMimeType: format.storageMime,
	}
	if fileName != "" {
		metadata[models.MetaFileName] = fileName
	}

	updated, err := s.repo.Message().MarkMediaDelivered(ctx, msg.ID, repository.MediaDelivered{
		MediaURL: url,
		MimeType: format.displayMime,
		Metadata: metadata,
	})
	if err != nil {
		return fmt.Errorf("failed to record media: %w", err)
	}
	if !updated {
		s.logger.Info("Media stored but message left pending state",
			zap.String("messageID", msg.ID),
			zap.String("url", url))
		return nil
	}

	s.logger.Info("Media materialized",
		zap.String("messageID", msg.ID),
		zap.String("mimeType", format.displayMime),
		zap.Int("size", len(content.Data)))

	if task.TriggerAgent {
		s.dispatcher.Enqueue(ctx, queue.NewAgentTask(queue.AgentTask{
			MessageID:      task.MessageID,
			CompanyID:      task.CompanyID,
			ConnectionID:   task.ConnectionID,
			ConversationID: task.ConversationID,
			ContactID:      task.ContactID,
			ContactPhone:   task.ContactPhone,
			MessageType:    task.MessageType,
			Content:        task.Caption,
			MediaURL:       url,
		}))
	}

	return nil
}

// download retries once after the configured backoff.
func (s *mediaService) download(ctx context.Context, token, providerMessageID string) (*gateway.MediaContent, error) {
	content, err := s.provider.DownloadMedia(ctx, token, providerMessageID)
	if err == nil {
		return content, nil
	}

	s.logger.Warn("Media download failed, retrying",
		zap.String("providerMessageID", providerMessageID),
		zap.Duration("backoff", s.retryBackoff),
		zap.Error(err))

	if err := s.sleep(ctx, s.retryBackoff); err != nil {
		return nil, err
	}

	return s.provider.DownloadMedia(ctx, token, providerMessageID)
}

func (s *mediaService) interrupted(ctx context.Context, messageID string, cause error) error {
	s.logger.Warn("Media materialization interrupted, message left pending",
		zap.String("messageID", messageID),
		zap.Error(cause))

	return fmt.Errorf("%w: %v", ctx.Err(), cause)
}

func (s *mediaService) fail(ctx context.Context, messageID string, cause error) error {
	s.logger.Error("Media materialization failed",
		zap.String("messageID", messageID),
		zap.Error(cause))

	// The failure must be recorded even when the task context has expired.
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	_, err := s.repo.Message().MarkMediaFailed(writeCtx, messageID, cause.Error(), map[string]any{
		models.MetaPendingDownload: false,
		models.MetaDownloadError:   cause.Error(),
	})
	if err != nil {
		return fmt.Errorf("failed to record media failure: %w", err)
	}

	return nil
}

type mediaFormat struct {
	displayMime string
	storageMime string
	extension   string
}

// resolveMediaFormat picks the MIME shown to users, the MIME sent to storage and the
// object extension. Provider MIME wins; bytes are sniffed when it is missing or generic.
func resolveMediaFormat(content *gateway.MediaContent, providerMime, fileName string, messageType models.MessageType) mediaFormat {
	mime := normalizeMime(content.MimeType)
	if mime == "" || mime == mimeOctetStream {
		if m := normalizeMime(providerMime); m != "" {
			mime = m
		}
	}
	if mime == "" || mime == mimeOctetStream {
		mime = normalizeMime(mimetype.Detect(content.Data).String())
	}

	ext := strings.ToLower(path.Ext(fileName))
	if ext == ".md" || ext == ".markdown" || mime == mimeMarkdown {
		if ext != ".markdown" {
			ext = ".md"
		}
		return mediaFormat{displayMime: mimeMarkdown, storageMime: mimeOctetStream, extension: ext}
	}

	if e := extensionFromMime(mime); e != "" {
		ext = e
	} else if ext == "" {
		ext = defaultExtension(messageType)
	}

	return mediaFormat{displayMime: mime, storageMime: storageSafeMime(mime), extension: ext}
}

// storageSafeMime maps types that storage would serve inline as text to a binary type.
func storageSafeMime(mime string) string {
	switch {
	case strings.HasPrefix(mime, "text/"),
		mime == "application/json",
		mime == "application/xml":
		return mimeOctetStream
	case mime == "":
		return mimeOctetStream
	default:
		return mime
	}
}

func extensionFromMime(mime string) string {
	switch mime {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	case "video/mp4":
		return ".mp4"
	case "video/3gpp":
		return ".3gp"
	case "video/quicktime":
		return ".mov"
	case "audio/ogg", "audio/opus":
		return ".ogg"
	case "audio/mpeg", "audio/mp3":
		return ".mp3"
	case "audio/mp4", "audio/x-m4a":
		return ".m4a"
	case "audio/aac":
		return ".aac"
	case "audio/amr":
		return ".amr"
	case "audio/wav", "audio/x-wav":
		return ".wav"
	case "application/pdf":
		return ".pdf"
	case "application/msword":
		return ".doc"
	case "application/vnd.openxmlformats-officedocument.wordprocessingml.document":
		return ".docx"
	case "application/vnd.ms-excel":
		return ".xls"
	case "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":
		return ".xlsx"
	case "application/vnd.ms-powerpoint":
		return ".ppt"
	case "application/vnd.openxmlformats-officedocument.presentationml.presentation":
		return ".pptx"
	case "application/zip":
		return ".zip"
	case "text/plain":
		return ".txt"
	case "text/csv":
		return ".csv"
	case "application/json":
		return ".json"
	case "application/xml", "text/xml":
		return ".xml"
	case "", mimeOctetStream:
		return ""
	}

	if m := mimetype.Lookup(mime); m != nil {
		return m.Extension()
	}
	return ""
}

func defaultExtension(messageType models.MessageType) string {
	switch messageType {
	case models.MessageTypeImage:
		return ".jpg"
	case models.MessageTypeVideo:
		return ".mp4"
	case models.MessageTypeAudio:
		return ".ogg"
	case models.MessageTypeSticker:
		return ".webp"
	default:
		return ".bin"
	}
}

// objectKey builds {company}/{connection}/{YYYY-MM}/{providerMessageID}_{unixnano}{ext}.
func objectKey(companyID, connectionID, providerMessageID, ext string, at time.Time) string {
	return fmt.Sprintf("%s/%s/%s/%s_%d%s",
		companyID, connectionID, at.Format("2006-01"), sanitizeKeySegment(providerMessageID), at.UnixNano(), ext)
}

func sanitizeKeySegment(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

func normalizeMime(mime string) string {
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = mime[:i]
	}
	return strings.ToLower(strings.TrimSpace(mime))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
