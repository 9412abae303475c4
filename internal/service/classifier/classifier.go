package classifier

import (
	"context"
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/jwalitptl/retina-api/internal/model"
	"github.com/jwalitptl/retina-api/pkg/errors"
	"github.com/jwalitptl/retina-api/pkg/logger"
	"github.com/jwalitptl/retina-api/pkg/metrics"
)

// Classification is the stage assigned to one retinal image.
type Classification struct {
	Stage     model.Stage `json:"stage"`
	Diagnosis string      `json:"diagnosis"`
}

// Classifier grades a stored image.
type Classifier interface {
	Classify(ctx context.Context, imageRef string) (*Classification, error)
}

// Outcome is the settled result of Submit.
type Outcome struct {
	Classification *Classification
	Err            error
}

// Submit runs c in its own goroutine. The returned channel receives
// exactly one Outcome and is then closed.
func Submit(ctx context.Context, c Classifier, imageRef string) <-chan Outcome {
	out := make(chan Outcome, 1)
	go func() {
		defer close(out)
		result, err := c.Classify(ctx, imageRef)
		out <- Outcome{Classification: result, Err: err}
	}()
	return out
}

type Config struct {
	// Latency is the simulated inference time.
	Latency time.Duration
}

// Random picks a stage uniformly at random. It stands in for a real model
// and ignores the image content.
type Random struct {
	latency time.Duration
	logger  *logger.Logger
	metrics *metrics.Metrics

	sleep func(time.Duration)
	intn  func(n int) int
}

var _ Classifier = (*Random)(nil)

func NewRandom(cfg Config, logger *logger.Logger, metrics *metrics.Metrics) *Random {
	return &Random{
		latency: cfg.Latency,
		logger:  logger,
		metrics: metrics,
		sleep:   time.Sleep,
		intn:    rand.IntN,
	}
}

// Classify waits out the configured latency and always completes, even
// when ctx is cancelled meanwhile.
func (r *Random) Classify(_ context.Context, imageRef string) (*Classification, error) {
	if imageRef == "" {
		return nil, errors.BadRequest("image reference is required", nil)
	}

	start := time.Now()
	r.sleep(r.latency)

	stage := model.Stage(r.intn(int(model.StageProliferative) + 1))
	info, _ := model.StageInfo(stage)

	r.metrics.ClassificationLatency.Observe(time.Since(start).Seconds())
	r.metrics.ClassifiedStages.WithLabelValues(strconv.Itoa(int(stage))).Inc()
	r.logger.Debug("Image classified", "image", imageRef, "stage", int(stage))

	return &Classification{Stage: stage, Diagnosis: info.Description}, nil
}
