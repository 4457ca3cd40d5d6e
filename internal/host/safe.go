// File: internal/host/safe.go
package host

import (
	"fmt"
	"time"

	"github.com/mdobak/go-xerrors"
	"go.uber.org/zap"

	"github.com/xkilldash9x/aerialguide/internal/geometry"
	"github.com/xkilldash9x/aerialguide/internal/world"
)

// SafeHandler shields the host from the engine. Errors are logged and
// swallowed, panics are recovered, so the host keeps running whatever a single
// event does to the model.
type SafeHandler struct {
	inner  Handler
	logger *zap.Logger
}

var _ Handler = (*SafeHandler)(nil)

// NewSafeHandler wraps h.
func NewSafeHandler(h Handler, logger *zap.Logger) *SafeHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SafeHandler{inner: h, logger: logger.Named("safe_handler")}
}

func (s *SafeHandler) guard(event string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			perr := xerrors.New(r)
			s.logger.Error("Recovered from panic while handling host event",
				zap.String("event", event),
				zap.Error(perr),
				zap.String("detail", fmt.Sprintf("%+v", perr)))
		}
		err = nil
	}()
	if ferr := fn(); ferr != nil {
		s.logger.Warn("Host event rejected", zap.String("event", event), zap.Error(ferr))
	}
	return nil
}

func (s *SafeHandler) LoadImages(images []world.ImageInput) error {
	return s.guard("loadImages", func() error { return s.inner.LoadImages(images) })
}

func (s *SafeHandler) LoadAreaOfInterest(points []geometry.Point) error {
	return s.guard("loadAreaOfInterest", func() error { return s.inner.LoadAreaOfInterest(points) })
}

func (s *SafeHandler) FootprintChanged(id string, points []geometry.Point) error {
	return s.guard("footprintChanged", func() error { return s.inner.FootprintChanged(id, points) })
}

func (s *SafeHandler) UsageChanged(id string, usage world.Usage) error {
	return s.guard("usageChanged", func() error { return s.inner.UsageChanged(id, usage) })
}

func (s *SafeHandler) FilterTimeRange(from, to time.Time) error {
	return s.guard("filterTimeRange", func() error { return s.inner.FilterTimeRange(from, to) })
}

func (s *SafeHandler) ResetFilter() error {
	return s.guard("resetFilter", s.inner.ResetFilter)
}

func (s *SafeHandler) HoverImage(id string) error {
	return s.guard("hoverImage", func() error { return s.inner.HoverImage(id) })
}

func (s *SafeHandler) HoverNone() error {
	return s.guard("hoverNone", s.inner.HoverNone)
}

func (s *SafeHandler) TogglePreview(id string) error {
	return s.guard("togglePreview", func() error { return s.inner.TogglePreview(id) })
}

func (s *SafeHandler) ShuffleWorst(n int) error {
	return s.guard("shuffleWorst", func() error { return s.inner.ShuffleWorst(n) })
}

func (s *SafeHandler) RequestRefinement() error {
	return s.guard("requestRefinement", s.inner.RequestRefinement)
}

func (s *SafeHandler) Tick() error {
	return s.guard("tick", s.inner.Tick)
}
