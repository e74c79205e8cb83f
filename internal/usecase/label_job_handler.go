package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"

	"MarketLabel/internal/domain/models"
	domrepo "MarketLabel/internal/domain/repository"
	domsvc "MarketLabel/internal/domain/service"
	pkgkafka "MarketLabel/pkg/kafka"
	"MarketLabel/pkg/logger"
	"MarketLabel/pkg/queue"
)

// LabelJobHandler runs a persisted label run for every job on the jobs topic.
type LabelJobHandler struct {
	topic    string
	labeler  domsvc.Labeler
	metrics  domrepo.Metrics
	log      logger.Interface
	validate *validator.Validate
}

func NewLabelJobHandler(topic string, labeler domsvc.Labeler, metrics domrepo.Metrics, log logger.Interface) *LabelJobHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &LabelJobHandler{topic: topic, labeler: labeler, metrics: metrics, log: log, validate: validator.New()}
}

func (h *LabelJobHandler) Topic() string { return h.topic }

// Type names the message type on the Redis queue.
func (h *LabelJobHandler) Type() string { return models.LabelJobType }

// incoming message schema: {symbol, tf, from, to}
func (h *LabelJobHandler) Handle(ctx context.Context, b []byte) error {
	var job models.LabelJob
	if err := json.Unmarshal(b, &job); err != nil {
		h.metrics.RecordError("job_unmarshal")
		return pkgkafka.Permanent(fmt.Errorf("decode job: %w", err))
	}
	if err := defaults.Set(&job); err != nil {
		return pkgkafka.Permanent(err)
	}
	if err := h.validate.Struct(&job); err != nil {
		h.metrics.RecordError("job_invalid")
		return pkgkafka.Permanent(fmt.Errorf("invalid job: %w", err))
	}

	run, err := h.labeler.Run(ctx, domsvc.RunParams{
		Symbol:    job.Symbol,
		Timeframe: job.TF,
		From:      job.From,
		To:        job.To,
		Persist:   true,
	})
	switch {
	case err == nil:
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrNoCandles), IsMalformedConfig(err):
		h.log.Warn("label job dropped", logger.String("symbol", job.Symbol), logger.Error(err))
		return pkgkafka.Permanent(err)
	default:
		// storage and lock contention are worth another attempt
		return err
	}

	h.log.Info("label job done",
		logger.String("run_id", run.RunID),
		logger.String("symbol", run.Symbol),
		logger.Int("bars", run.Stats.Bars),
	)
	return nil
}

var (
	_ pkgkafka.MessageHandler = (*LabelJobHandler)(nil)
	_ queue.Job               = (*LabelJobHandler)(nil)
)
