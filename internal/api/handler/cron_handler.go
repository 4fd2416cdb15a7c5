package handler

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	apimw "github.com/notifyhub/rental-notifier/internal/api/middleware"
	"github.com/notifyhub/rental-notifier/internal/trigger"
)

// Pass runs one coordinator pass. *trigger.Coordinator satisfies it.
type Pass interface {
	Run(ctx context.Context) trigger.Result
}

// CronResponse is the body returned to the external scheduler.
type CronResponse struct {
	Success   bool           `json:"success"`
	Counts    map[string]int `json:"counts"`
	Errors    []string       `json:"errors"`
	Timestamp time.Time      `json:"timestamp"`
}

// CronHandler exposes the coordinator to an external scheduler.
type CronHandler struct {
	pass    Pass
	timeout time.Duration
	now     func() time.Time
	logger  *zap.Logger
}

// NewCronHandler bounds each pass by timeout; zero means unbounded.
func NewCronHandler(pass Pass, timeout time.Duration, logger *zap.Logger) *CronHandler {
	return &CronHandler{pass: pass, timeout: timeout, now: time.Now, logger: logger}
}

// Run handles GET /internal/cron/notifications
//
// Stage failures do not change the status code: they are listed in errors
// and the remaining stages still report their counts.
//
// The pass is detached from the caller's connection. Claims are inserted
// before sends, so a caller hanging up mid-pass must not cancel the sends
// for slots that are already claimed.
func (h *CronHandler) Run(w http.ResponseWriter, r *http.Request) {
	log := h.logger.With(zap.String("correlation_id", apimw.GetCorrelationID(r.Context())))

	defer func() {
		if p := recover(); p != nil {
			log.Error("notification run panicked", zap.Any("panic", p))
			respondError(w, http.StatusInternalServerError, "notification run failed")
		}
	}()

	runCtx := context.WithoutCancel(r.Context())
	if h.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(runCtx, h.timeout)
		defer cancel()
	}

	res := h.pass.Run(runCtx)
	if !res.Success() {
		log.Warn("notification run finished with errors", zap.Strings("errors", res.Errors))
	}

	respondJSON(w, http.StatusOK, CronResponse{
		Success:   true,
		Counts:    res.Counts,
		Errors:    res.Errors,
		Timestamp: h.now().UTC(),
	})
}
