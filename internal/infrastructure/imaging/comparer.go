package imaging

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"math"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/booklens/backend/internal/domain"
	"github.com/booklens/backend/internal/logging"
)

const (
	// descriptorSide is the edge of the thumbnail the descriptor is taken from
	descriptorSide = 16

	similarityOffset = 2.5
	similarityScale  = 2.5

	// MaxPixels bounds the decoded size of any image; compressed formats can
	// claim far more pixels than their byte size suggests
	MaxPixels = 40_000_000
)

var (
	errFlatImage = errors.New("image has no contrast")
	errTooLarge  = errors.New("image dimensions exceed the pixel budget")
)

// Comparer scores cover similarity from a normalized thumbnail descriptor.
// It is stateless and safe for concurrent use.
type Comparer struct {
	logger *slog.Logger
}

// NewComparer creates an image comparer
func NewComparer(logger *slog.Logger) *Comparer {
	return &Comparer{logger: logging.NewComponentLogger(logger, "imaging")}
}

// Similarity returns clamp(2.5 - 2.5*d, 0, 1) where d is the Euclidean
// distance between the two descriptors, or -1 when either image cannot be
// decoded or described.
func (c *Comparer) Similarity(ctx context.Context, a, b domain.ImageHandle) float64 {
	if ctx.Err() != nil {
		return -1
	}

	return c.Prepare(ctx, a).Similarity(ctx, b)
}

// Prepare describes the reference once. A reference that cannot be described
// scores every candidate -1.
func (c *Comparer) Prepare(ctx context.Context, reference domain.ImageHandle) domain.ImageReference {
	descriptor, err := Describe(reference)
	if err != nil {
		c.logger.Debug("reference image not comparable", logging.Error(err))
	}
	return &preparedReference{descriptor: descriptor, logger: c.logger}
}

type preparedReference struct {
	descriptor []float64 // nil when the reference is unusable
	logger     *slog.Logger
}

func (r *preparedReference) Similarity(ctx context.Context, candidate domain.ImageHandle) float64 {
	if r.descriptor == nil || ctx.Err() != nil {
		return -1
	}
	descriptor, err := Describe(candidate)
	if err != nil {
		r.logger.Debug("candidate image not comparable", logging.Error(err))
		return -1
	}
	return scoreFromDistance(euclidean(r.descriptor, descriptor))
}

// CheckDimensions reads only the image header and rejects images whose
// decoded bitmap would exceed MaxPixels
func CheckDimensions(data []byte) error {
	config, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("decode image header: %w", err)
	}
	if config.Width <= 0 || config.Height <= 0 {
		return fmt.Errorf("decode image header: invalid size %dx%d", config.Width, config.Height)
	}
	if int64(config.Width)*int64(config.Height) > MaxPixels {
		return fmt.Errorf("%w: %dx%d", errTooLarge, config.Width, config.Height)
	}
	return nil
}

// Describe decodes an image and returns its unit-length descriptor: a 16x16
// grayscale thumbnail with brightness and contrast normalized (zero mean,
// unit variance)
func Describe(img domain.ImageHandle) ([]float64, error) {
	if img.Empty() {
		return nil, errors.New("empty image")
	}

	if err := CheckDimensions(img.Data); err != nil {
		return nil, err
	}

	decoded, _, err := image.Decode(bytes.NewReader(img.Data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	thumb := image.NewGray(image.Rect(0, 0, descriptorSide, descriptorSide))
	draw.ApproxBiLinear.Scale(thumb, thumb.Bounds(), decoded, decoded.Bounds(), draw.Src, nil)

	descriptor := make([]float64, len(thumb.Pix))
	mean := 0.0
	for i, p := range thumb.Pix {
		descriptor[i] = float64(p)
		mean += descriptor[i]
	}
	mean /= float64(len(descriptor))

	variance := 0.0
	for i := range descriptor {
		descriptor[i] -= mean
		variance += descriptor[i] * descriptor[i]
	}
	std := math.Sqrt(variance / float64(len(descriptor)))
	if std < 1e-9 {
		return nil, errFlatImage
	}

	norm := 0.0
	for i := range descriptor {
		descriptor[i] /= std
		norm += descriptor[i] * descriptor[i]
	}
	norm = math.Sqrt(norm)
	for i := range descriptor {
		descriptor[i] /= norm
	}

	return descriptor, nil
}

func euclidean(a, b []float64) float64 {
	sum := 0.0
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

func scoreFromDistance(distance float64) float64 {
	return math.Max(0, math.Min(1, similarityOffset-distance*similarityScale))
}
