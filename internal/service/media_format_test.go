package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ppopeskul/wa-ingest/internal/gateway"
	"github.com/ppopeskul/wa-ingest/internal/models"
)

func TestResolveMediaFormat(t *testing.T) {
	pngBytes := []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A, 0, 0, 0, 0x0D, 'I', 'H', 'D', 'R'}

	tests := []struct {
		name         string
		content      *gateway.MediaContent
		providerMime string
		fileName     string
		messageType  models.MessageType
		expected     mediaFormat
	}{
		{
			name:        "download mime wins",
			content:     &gateway.MediaContent{MimeType: "audio/ogg; codecs=opus"},
			messageType: models.MessageTypeAudio,
			expected:    mediaFormat{displayMime: "audio/ogg", storageMime: "audio/ogg", extension: ".ogg"},
		},
		{
			name:         "provider mime fills generic download mime",
			content:      &gateway.MediaContent{MimeType: "application/octet-stream"},
			providerMime: "application/pdf",
			messageType:  models.MessageTypeDocument,
			expected:     mediaFormat{displayMime: "application/pdf", storageMime: "application/pdf", extension: ".pdf"},
		},
		{
			name:        "sniffed from bytes",
			content:     &gateway.MediaContent{Data: pngBytes},
			messageType: models.MessageTypeImage,
			expected:    mediaFormat{displayMime: "image/png", storageMime: "image/png", extension: ".png"},
		},
		{
			name:        "markdown by extension",
			content:     &gateway.MediaContent{MimeType: "text/plain"},
			fileName:    "README.MD",
			messageType: models.MessageTypeDocument,
			expected:    mediaFormat{displayMime: "text/markdown", storageMime: "application/octet-stream", extension: ".md"},
		},
		{
			name:        "plain text stored as binary",
			content:     &gateway.MediaContent{MimeType: "text/csv"},
			messageType: models.MessageTypeDocument,
			expected:    mediaFormat{displayMime: "text/csv", storageMime: "application/octet-stream", extension: ".csv"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := resolveMediaFormat(tt.content, tt.providerMime, tt.fileName, tt.messageType)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestObjectKey(t *testing.T) {
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	key := objectKey("company-1", "conn-1", "owner:3EB0/../x", ".jpg", at)

	assert.Equal(t, "company-1/conn-1/2025-03/owner_3EB0____x_1740830400000000000.jpg", key)
}

func TestDefaultExtension(t *testing.T) {
	assert.Equal(t, ".jpg", defaultExtension(models.MessageTypeImage))
	assert.Equal(t, ".ogg", defaultExtension(models.MessageTypeAudio))
	assert.Equal(t, ".bin", defaultExtension(models.MessageTypeDocument))
}
