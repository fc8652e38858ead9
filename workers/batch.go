package workers

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"github.com/camden-git/faceenhancer/enhance"
	"github.com/camden-git/faceenhancer/media"
	"github.com/camden-git/faceenhancer/models"
	"github.com/camden-git/faceenhancer/quality"
	"github.com/camden-git/faceenhancer/realtime"
	"github.com/camden-git/faceenhancer/utils"
)

// ImageEnhancer is satisfied by *enhance.Enhancer.
type ImageEnhancer interface {
	Enhance(img gocv.Mat, params enhance.Params) *enhance.Result
}

// Recorder persists history records.
type Recorder interface {
	Create(ctx context.Context, e *models.Enhancement) error
}

// Notifier receives progress events.
type Notifier interface {
	Broadcast(event realtime.Event)
}

type BatchOptions struct {
	ID     string
	Params enhance.Params
	// Encode.Format empty means each output keeps its input's format.
	Encode  media.EncodeOptions
	DirHint string
	Metrics bool
	// OnItem is called after every input, in order.
	OnItem func(ItemResult)
}

type ItemResult struct {
	Input      string        `json:"input"`
	Output     string        `json:"output,omitempty"`
	Faces      int           `json:"faces"`
	Duration   time.Duration `json:"-"`
	DurationMs float64       `json:"duration_ms"`
	Error      string        `json:"error,omitempty"`
	Err        error         `json:"-"`
}

func (r ItemResult) Succeeded() bool {
	return r.Err == nil
}

type BatchSummary struct {
	ID         string       `json:"id"`
	Succeeded  int          `json:"succeeded"`
	Total      int          `json:"total"`
	Items      []ItemResult `json:"items"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
}

// OK reports whether at least one input succeeded.
func (s *BatchSummary) OK() bool {
	return s.Succeeded > 0
}

func (s *BatchSummary) String() string {
	return fmt.Sprintf("%d/%d", s.Succeeded, s.Total)
}

// BatchRunner enhances inputs one after another. A failed input is recorded
// and the batch moves on.
type BatchRunner struct {
	enhancer  ImageEnhancer
	processor *media.Processor
	recorder  Recorder
	notifier  Notifier
	log       logrus.FieldLogger
}

// NewBatchRunner wires a runner. recorder and notifier may be nil.
func NewBatchRunner(enhancer ImageEnhancer, processor *media.Processor, recorder Recorder, notifier Notifier, log logrus.FieldLogger) *BatchRunner {
	return &BatchRunner{
		enhancer:  enhancer,
		processor: processor,
		recorder:  recorder,
		notifier:  notifier,
		log:       log.WithField("component", "batch"),
	}
}

// EnhanceBatch processes inputs sequentially and saves each output as
// enhanced_<name> through the processor's store. Cancelling ctx marks the
// remaining inputs failed without touching them.
func (b *BatchRunner) EnhanceBatch(ctx context.Context, inputs []string, opts BatchOptions) *BatchSummary {
	if opts.ID == "" {
		opts.ID = uuid.NewString()
	}
	summary := &BatchSummary{ID: opts.ID, Total: len(inputs), StartedAt: time.Now()}
	log := b.log.WithField("batch_id", opts.ID)
	log.WithField("inputs", len(inputs)).Info("batch started")
	b.notify(realtime.Event{Type: realtime.EventBatchStarted, BatchID: opts.ID, Extra: map[string]interface{}{"total": len(inputs)}})

	for _, input := range inputs {
		var item ItemResult
		if err := ctx.Err(); err != nil {
			item = ItemResult{Input: input, Err: fmt.Errorf("batch cancelled: %w", err)}
		} else {
			item = b.enhanceOne(ctx, input, opts)
		}
		item.DurationMs = float64(item.Duration.Microseconds()) / 1000

		if item.Err != nil {
			item.Error = item.Err.Error()
			log.WithError(item.Err).WithField("input", input).Warn("batch item failed")
			b.notify(realtime.Event{Type: realtime.EventItemFailed, BatchID: opts.ID, Path: input, Status: models.StatusFailed, Error: item.Error})
		} else {
			summary.Succeeded++
			log.WithFields(logrus.Fields{"input": input, "output": item.Output, "faces": item.Faces}).Info("batch item enhanced")
			b.notify(realtime.Event{Type: realtime.EventItemCompleted, BatchID: opts.ID, Path: input, Status: models.StatusSucceeded,
				Extra: map[string]interface{}{"output": item.Output, "faces": item.Faces}})
		}
		summary.Items = append(summary.Items, item)
		if opts.OnItem != nil {
			opts.OnItem(item)
		}
	}

	summary.FinishedAt = time.Now()
	log.WithField("result", summary.String()).Info("batch finished")
	b.notify(realtime.Event{Type: realtime.EventBatchCompleted, BatchID: opts.ID, Status: summary.String(),
		Extra: map[string]interface{}{"succeeded": summary.Succeeded, "total": summary.Total}})
	return summary
}

func (b *BatchRunner) enhanceOne(ctx context.Context, input string, opts BatchOptions) (item ItemResult) {
	start := time.Now()
	item.Input = input
	rec := &models.Enhancement{
		ID:      uuid.NewString(),
		BatchID: &opts.ID,
		Source:  input,
		Params:  opts.Params.Normalized(),
	}
	defer func() {
		item.Duration = time.Since(start)
		b.record(ctx, rec, item)
	}()

	data, err := os.ReadFile(input)
	if err != nil {
		item.Err = fmt.Errorf("read input: %w", err)
		return item
	}
	if info := utils.ReadCaptureInfo(data); info != nil {
		rec.CameraMake, rec.CameraModel, rec.TakenAt = info.CameraMake, info.CameraModel, info.TakenAt
	}

	img, err := media.Decode(data)
	if err != nil {
		item.Err = err
		return item
	}
	defer img.Close()
	rec.InputWidth, rec.InputHeight = img.Cols(), img.Rows()

	res := b.enhancer.Enhance(img, opts.Params)
	defer res.Close()
	rec.StageTimings = models.StageDurations(res.Timings)
	rec.FacesDetected = len(res.Faces)
	if !res.Success {
		item.Err = res.Err
		return item
	}
	item.Faces = len(res.Faces)
	rec.OutputWidth, rec.OutputHeight = res.Image.Cols(), res.Image.Rows()

	if opts.Metrics {
		report := quality.Compare(img, res.Image)
		rec.Metrics = &report
		rec.PSNR, rec.SSIM = &report.PSNR, &report.SSIM
	}

	encode := opts.Encode
	if encode.Format == "" {
		// keep the input's format so the output is enhanced_<input name>
		if f, err := media.FormatForPath(input); err == nil {
			encode.Format = f
		}
	}
	out, err := b.processor.Publish(ctx, res.Image, opts.DirHint, utils.EnhancedName(filepath.Base(input)), encode, true)
	if err != nil {
		item.Err = fmt.Errorf("write output: %w", err)
		return item
	}
	item.Output = out.Path
	rec.OutputPath = &out.Path
	return item
}

func (b *BatchRunner) record(ctx context.Context, rec *models.Enhancement, item ItemResult) {
	if b.recorder == nil {
		return
	}
	rec.ProcessingMs = float64(item.Duration.Microseconds()) / 1000
	if item.Err != nil {
		rec.Status = models.StatusFailed
		msg := item.Err.Error()
		rec.Error = &msg
	} else {
		rec.Status = models.StatusSucceeded
	}
	// history must survive a cancelled batch
	if err := b.recorder.Create(context.WithoutCancel(ctx), rec); err != nil {
		b.log.WithError(err).WithField("input", rec.Source).Error("failed to record enhancement")
	}
}

func (b *BatchRunner) notify(event realtime.Event) {
	if b.notifier != nil {
		b.notifier.Broadcast(event)
	}
}
