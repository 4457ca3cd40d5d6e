// File: internal/host/controller.go
package host

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/aerialguide/internal/eventlog"
	"github.com/xkilldash9x/aerialguide/internal/geometry"
	"github.com/xkilldash9x/aerialguide/internal/guidance"
	"github.com/xkilldash9x/aerialguide/internal/sqm"
	"github.com/xkilldash9x/aerialguide/internal/world"
)

// Settings gathers the model constants a controller is built with.
type Settings struct {
	World     world.Params
	SQM       sqm.Params
	Composite sqm.Composite
	Guidance  guidance.Config
}

// DefaultSettings returns the calibrated defaults.
func DefaultSettings() Settings {
	return Settings{
		World:    world.DefaultParams(),
		SQM:      sqm.DefaultParams(),
		Guidance: guidance.DefaultConfig(),
	}
}

// Stats is the progress summary shown to the analyst.
type Stats struct {
	JointQuality      float64 `json:"joint_quality"`
	PrescribedQuality float64 `json:"prescribed_quality"`
	Selected          int     `json:"selected"`
	AttacksCovered    int     `json:"attacks_covered"`
	Prescribed        int     `json:"prescribed"`
	AttacksPrescribed int     `json:"attacks_prescribed"`
	Attacks           int     `json:"attacks"`
	Phase             string  `json:"phase"`
}

// Summary is returned when the analyst finishes a session.
type Summary struct {
	Session    string   `json:"session"`
	Selected   []string `json:"selected"`
	Prescribed []string `json:"prescribed"`
	Stats      Stats    `json:"stats"`
}

// Controller owns the world state and the guide and implements Handler. It is
// driven from a single control flow.
type Controller struct {
	settings Settings
	engine   *geometry.Engine
	out      Outbound
	journal  *eventlog.Log
	logger   *zap.Logger

	world   *world.State
	guide   *guidance.Guide
	aoi     []geometry.Point
	preview map[string]bool
}

var _ Handler = (*Controller)(nil)

// NewController wires a controller. Nil collaborators are replaced by no-op
// implementations.
func NewController(settings Settings, engine *geometry.Engine, out Outbound, journal *eventlog.Log, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	if engine == nil {
		engine = geometry.NewEngine()
	}
	if out == nil {
		out = NopOutbound{}
	}
	if journal == nil {
		journal = eventlog.New(logger)
	}
	if settings.SQM.DetailScaleMax == 0 {
		settings.SQM.DetailScaleMax = settings.World.DetailScaleMax
	}
	return &Controller{
		settings: settings,
		engine:   engine,
		out:      out,
		journal:  journal,
		logger:   logger.Named("host"),
		preview:  make(map[string]bool),
	}
}

// World returns the current world state, or nil before LoadImages.
func (c *Controller) World() *world.State { return c.world }

// Guide returns the current guide, or nil before LoadImages.
func (c *Controller) Guide() *guidance.Guide { return c.guide }

// Journal returns the session event log.
func (c *Controller) Journal() *eventlog.Log { return c.journal }

// LoadImages replaces the world with a fresh state. A previously loaded area
// of interest is applied to the new images.
func (c *Controller) LoadImages(images []world.ImageInput) error {
	state := world.NewState(c.engine, c.settings.World, c.logger, images)
	model := sqm.New(c.settings.SQM, c.settings.Composite, state)
	guide, err := guidance.New(state, model, c.settings.Guidance, c.logger, c.journal)
	if err != nil {
		return err
	}
	c.world = state
	c.guide = guide
	c.preview = make(map[string]bool)
	c.logger.Info("Images loaded", zap.Int("received", len(images)), zap.Int("kept", state.Len()))
	c.journal.Record(guidance.ActorUser, "loadImages", "", float64(state.Len()))

	if c.aoi != nil {
		if err := c.applyAreaOfInterest(c.aoi); err != nil {
			c.aoi = nil
			return err
		}
	}
	return nil
}

// LoadAreaOfInterest recomputes every derived structure and bootstraps a new
// build cycle. An AOI that arrives before the images is kept until they do.
func (c *Controller) LoadAreaOfInterest(points []geometry.Point) error {
	aoi := append([]geometry.Point(nil), points...)
	if c.world == nil {
		c.aoi = aoi
		c.logger.Debug("Area of interest stored until images arrive")
		return nil
	}
	if err := c.applyAreaOfInterest(aoi); err != nil {
		return err
	}
	c.aoi = aoi
	return nil
}

func (c *Controller) applyAreaOfInterest(aoi []geometry.Point) error {
	if err := c.world.SetAreaOfInterest(aoi); err != nil {
		return err
	}
	if err := c.guide.Restart(); err != nil {
		return fmt.Errorf("failed to bootstrap guidance: %w", err)
	}
	c.journal.Record(guidance.ActorUser, "loadAreaOfInterest", "", c.world.AOIArea())
	return nil
}

// FootprintChanged updates one image and reconsiders it when prescribed.
func (c *Controller) FootprintChanged(id string, points []geometry.Point) error {
	if c.world == nil {
		return ErrNoImages
	}
	if err := c.world.UpdateFootprint(id, points); err != nil {
		return err
	}
	c.journal.Record(guidance.ActorUser, "footprint", id)
	if c.guide.IsPrescribed(id) {
		return c.guide.Reconsider(id)
	}
	return nil
}

// UsageChanged records the analyst's decision. Discarding or unsetting a
// prescribed image reconsiders it; selecting leaves the prescription alone.
func (c *Controller) UsageChanged(id string, usage world.Usage) error {
	if c.world == nil {
		return ErrNoImages
	}
	prev, err := c.world.SetUsage(id, usage)
	if err != nil {
		return err
	}
	img, _ := c.world.Lookup(id)
	c.journal.Record(guidance.ActorUser, usage.String(), id, img.Value(), boolMetric(img.Prescribed()))
	c.logger.Debug("Usage changed",
		zap.String("image_id", id), zap.Stringer("from", prev), zap.Stringer("to", usage))

	if usage != world.UsageSelected && c.guide.IsPrescribed(id) {
		return c.guide.Reconsider(id)
	}
	return nil
}

// FilterTimeRange restricts the host's view to images captured within [from, to].
func (c *Controller) FilterTimeRange(from, to time.Time) error {
	if c.world == nil {
		return ErrNoImages
	}
	if to.Before(from) {
		from, to = to, from
	}
	ids := c.world.ImagesBetween(from, to)
	c.out.FilterImages(ids)
	c.journal.Record(guidance.ActorUser, "timeFilter", from.Format(time.DateOnly)+"/"+to.Format(time.DateOnly), float64(len(ids)))
	return nil
}

// ResetFilter clears the time filter.
func (c *Controller) ResetFilter() error {
	c.out.ClearFilter()
	c.journal.Record(guidance.ActorUser, "timeReset", "")
	return nil
}

// HoverImage highlights a single image.
func (c *Controller) HoverImage(id string) error {
	if c.world == nil {
		return ErrNoImages
	}
	if _, err := c.world.Lookup(id); err != nil {
		return err
	}
	c.out.HighlightImages([]string{id})
	return nil
}

// HoverNone clears the highlight.
func (c *Controller) HoverNone() error {
	c.out.ClearHighlight()
	return nil
}

// TogglePreview opens or closes the preview of an image.
func (c *Controller) TogglePreview(id string) error {
	if c.world == nil {
		return ErrNoImages
	}
	img, err := c.world.Lookup(id)
	if err != nil {
		return err
	}
	visible := !c.preview[id]
	c.preview[id] = visible
	c.out.SetPreviewVisible(id, visible)
	c.journal.Record(guidance.ActorUser, "preview", id, img.Value(), boolMetric(img.Prescribed()))
	return nil
}

// ShuffleWorst drops the n weakest prescribed images.
func (c *Controller) ShuffleWorst(n int) error {
	if c.guide == nil {
		return ErrNoImages
	}
	return c.guide.ShuffleWorst(n)
}

// RequestRefinement schedules an annealing pass.
func (c *Controller) RequestRefinement() error {
	if c.guide == nil {
		return ErrNoImages
	}
	c.guide.RequestRefinement()
	return nil
}

// Tick advances guidance by one frame. Nothing happens before the area of
// interest is known.
func (c *Controller) Tick() error {
	if c.guide == nil || !c.world.HasAreaOfInterest() {
		return nil
	}
	c.guide.Tick()
	return nil
}

// Stats reports the current selection progress.
func (c *Controller) Stats() Stats {
	if c.world == nil {
		return Stats{Phase: guidance.Idle.String()}
	}
	s := Stats{
		JointQuality:      c.guide.JointQuality(),
		PrescribedQuality: c.guide.PrescribedQuality(),
		Selected:          len(c.world.SelectedIDs()),
		Prescribed:        len(c.guide.Prescribed()),
		Phase:             c.guide.Phase().String(),
	}
	for _, a := range c.world.Attacks() {
		s.Attacks++
		if a.UserCoverage() > 0 {
			s.AttacksCovered++
		}
		if a.Prescribed {
			s.AttacksPrescribed++
		}
	}
	return s
}

// Finish closes the session in the log and returns its summary.
func (c *Controller) Finish() Summary {
	stats := c.Stats()
	c.journal.Record(guidance.ActorUser, "FINISH", "", stats.JointQuality, stats.PrescribedQuality)
	sum := Summary{Session: c.journal.Session().String(), Stats: stats}
	if c.world != nil {
		sum.Selected = c.world.SelectedIDs()
		sum.Prescribed = c.guide.Prescribed()
	}
	c.logger.Info("Session finished",
		zap.Int("selected", stats.Selected),
		zap.Int("prescribed", stats.Prescribed),
		zap.Float64("joint_quality", stats.JointQuality))
	return sum
}

func boolMetric(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
