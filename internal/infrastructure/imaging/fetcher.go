package imaging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/booklens/backend/internal/domain"
	"github.com/booklens/backend/internal/logging"
)

// DefaultMaxBytes caps downloaded and uploaded images
const DefaultMaxBytes = 5 << 20

// Fetcher downloads cover images into memory
type Fetcher struct {
	httpClient *http.Client
	maxBytes   int64
	logger     *slog.Logger
}

// NewFetcher creates a cover fetcher. maxBytes <= 0 uses DefaultMaxBytes.
func NewFetcher(maxBytes int64, logger *slog.Logger) *Fetcher {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Fetcher{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		maxBytes:   maxBytes,
		logger:     logging.NewComponentLogger(logger, "cover-fetcher"),
	}
}

// Fetch downloads ref. Non-image bodies and bodies over the size cap are errors.
func (f *Fetcher) Fetch(ctx context.Context, ref string) (domain.ImageHandle, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return domain.ImageHandle{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "BookLens/1.0")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return domain.ImageHandle{}, fmt.Errorf("%w: fetch cover: %v", domain.ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.ImageHandle{}, fmt.Errorf("%w: cover returned status %d", domain.ErrTransport, resp.StatusCode)
	}

	img, err := ReadImage(resp.Body, f.maxBytes)
	if err != nil {
		return domain.ImageHandle{}, err
	}

	f.logger.Debug("cover fetched", logging.String("ref", ref), logging.Int("bytes", len(img.Data)))
	return img, nil
}

// ReadImage reads at most maxBytes from r and sniffs the image format
func ReadImage(r io.Reader, maxBytes int64) (domain.ImageHandle, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return domain.ImageHandle{}, fmt.Errorf("read image: %w", err)
	}
	if int64(len(data)) > maxBytes {
		return domain.ImageHandle{}, fmt.Errorf("%w: image exceeds %d bytes", domain.ErrValidation, maxBytes)
	}
	if len(data) == 0 {
		return domain.ImageHandle{}, fmt.Errorf("%w: image is empty", domain.ErrValidation)
	}

	format, ok := SniffFormat(data)
	if !ok {
		return domain.ImageHandle{}, fmt.Errorf("%w: unsupported image type", domain.ErrValidation)
	}
	if err := CheckDimensions(data); err != nil {
		return domain.ImageHandle{}, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	return domain.ImageHandle{Data: data, Format: format}, nil
}

// SniffFormat returns "jpeg", "png", "gif" or "webp" for recognized image bytes
func SniffFormat(data []byte) (string, bool) {
	contentType := http.DetectContentType(data)
	if !strings.HasPrefix(contentType, "image/") {
		return "", false
	}
	switch format := strings.TrimPrefix(contentType, "image/"); format {
	case "jpeg", "png", "gif", "webp":
		return format, true
	default:
		return "", false
	}
}
