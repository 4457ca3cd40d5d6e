// File: internal/guidance/guide.go
// Package guidance maintains the machine suggested ("prescribed") selection.
// All work is paced by Tick so that a host render loop stays responsive.
package guidance

import (
	"fmt"
	"math/rand"
	"slices"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/aerialguide/internal/sqm"
	"github.com/xkilldash9x/aerialguide/internal/world"
)

// Phase is the state of the guidance machine.
type Phase int

const (
	Idle Phase = iota
	Building
	Annealing
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Building:
		return "building"
	case Annealing:
		return "annealing"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Actor names used in journal entries.
const (
	ActorGuide = "guide"
	ActorUser  = "user"
)

// Journal receives one entry per guidance action.
type Journal interface {
	Record(actor, operation, subject string, metrics ...float64)
}

type nopJournal struct{}

func (nopJournal) Record(string, string, string, ...float64) {}

// Guide owns the prescribed set. It is not safe for concurrent use; the host
// drives it from a single control flow.
type Guide struct {
	world   *world.State
	marks   *world.Prescriptions
	model   *sqm.Model
	cfg     Config
	logger  *zap.Logger
	rng     *rand.Rand
	accept  AcceptancePolicy
	journal Journal

	phase      Phase
	timer      int
	frame      uint64
	oriented   bool
	prescribed []string
	qualityLog []float64
}

// New creates a guide in the Building phase. It claims the prescription
// handle of w, so a State backs at most one guide. A nil journal discards
// entries.
func New(w *world.State, model *sqm.Model, cfg Config, logger *zap.Logger, journal Journal) (*Guide, error) {
	marks, err := w.ClaimPrescriptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create guide: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if journal == nil {
		journal = nopJournal{}
	}
	rng := cfg.Rng
	if rng == nil {
		seed := cfg.Seed
		if seed == 0 {
			seed = time.Now().UnixNano()
		}
		rng = rand.New(rand.NewSource(seed))
	}
	accept, err := AcceptanceByName(cfg.Anneal.Acceptance)
	if err != nil {
		logger.Warn("Unknown acceptance policy, using prototype", zap.String("acceptance", cfg.Anneal.Acceptance))
		accept = PrototypeAcceptance{}
	}
	return &Guide{
		world:   w,
		marks:   marks,
		model:   model,
		cfg:     cfg,
		logger:  logger.Named("guidance"),
		rng:     rng,
		accept:  accept,
		journal: journal,
		phase:   Building,
		timer:   cfg.InitialTimer,
	}, nil
}

// SetAcceptance replaces the annealing acceptance rule.
func (g *Guide) SetAcceptance(p AcceptancePolicy) {
	if p != nil {
		g.accept = p
	}
}

func (g *Guide) Phase() Phase         { return g.phase }
func (g *Guide) Timer() int           { return g.timer }
func (g *Guide) Config() Config       { return g.cfg }
func (g *Guide) Model() *sqm.Model    { return g.model }
func (g *Guide) Prescribed() []string { return slices.Clone(g.prescribed) }

// QualityLog returns the joint quality recorded by every orient step.
func (g *Guide) QualityLog() []float64 { return slices.Clone(g.qualityLog) }

// IsPrescribed reports whether id is part of the prescription.
func (g *Guide) IsPrescribed(id string) bool { return slices.Contains(g.prescribed, id) }

// Tick advances the machine by one frame. Building alternates orient and
// generate steps every BuildDelay frames once the timer has run out;
// Annealing runs one full search and returns to Idle.
func (g *Guide) Tick() {
	g.frame++
	if g.timer > 0 {
		g.timer--
	}
	switch g.phase {
	case Idle:
		return
	case Building:
		if g.timer > 0 {
			return
		}
		delay := uint64(max(g.cfg.BuildDelay, 2))
		switch g.frame % delay {
		case 0:
			g.Orient()
		case delay - 1:
			if g.oriented {
				g.Generate()
			}
		}
	case Annealing:
		g.refine()
	}
}

// Select adds id to the prescription. Repeated calls are no-ops.
func (g *Guide) Select(id string) error {
	if g.IsPrescribed(id) {
		return nil
	}
	img, err := g.world.Lookup(id)
	if err != nil {
		return err
	}
	if err := g.marks.Mark(id, true); err != nil {
		return err
	}
	g.prescribed = append(g.prescribed, id)
	g.journal.Record(ActorGuide, "prescribe", id, img.Value(), img.InterestPost())
	g.logger.Debug("Prescribed image", zap.String("image_id", id), zap.Float64("value", img.Value()))
	return nil
}

// Deselect removes id from the prescription. Absent ids are ignored.
func (g *Guide) Deselect(id string) error {
	i := slices.Index(g.prescribed, id)
	if i < 0 {
		return nil
	}
	img, err := g.world.Lookup(id)
	if err != nil {
		return err
	}
	if err := g.marks.Mark(id, false); err != nil {
		return err
	}
	g.prescribed = slices.Delete(g.prescribed, i, i+1)
	g.journal.Record(ActorGuide, "unprescribe", id, img.Value(), img.InterestPost())
	g.logger.Debug("Unprescribed image", zap.String("image_id", id))
	return nil
}

// Reconsider drops id from the prescription and reopens Building.
func (g *Guide) Reconsider(id string) error {
	if err := g.Deselect(id); err != nil {
		return err
	}
	g.reopen()
	return nil
}

// ShuffleWorst unprescribes the n prescribed images of lowest value and
// reopens Building.
func (g *Guide) ShuffleWorst(n int) error {
	if n <= 0 || len(g.prescribed) == 0 {
		return nil
	}
	ranked := slices.Clone(g.prescribed)
	values := make(map[string]float64, len(ranked))
	for _, id := range ranked {
		if img, err := g.world.Lookup(id); err == nil {
			values[id] = img.Value()
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return values[ranked[i]] < values[ranked[j]] })
	for _, id := range ranked[:min(n, len(ranked))] {
		if err := g.Deselect(id); err != nil {
			return err
		}
	}
	g.reopen()
	return nil
}

// RequestRefinement schedules one annealing pass on the next tick.
func (g *Guide) RequestRefinement() {
	g.logger.Info("Refinement requested", zap.Int("prescribed", len(g.prescribed)))
	g.phase = Annealing
}

// Restart clears the prescription and starts a new build cycle, seeding it
// from the equivalence classes when configured.
func (g *Guide) Restart() error {
	for _, id := range slices.Clone(g.prescribed) {
		if err := g.Deselect(id); err != nil {
			return err
		}
	}
	g.qualityLog = g.qualityLog[:0]
	g.timer = g.cfg.InitialTimer
	g.phase = Building
	g.oriented = false
	if g.cfg.SeedFromClasses {
		return g.SeedFromClasses()
	}
	return nil
}

func (g *Guide) reopen() {
	g.phase = Building
	g.oriented = false
}

// finishBuild ends a build cycle.
func (g *Guide) finishBuild(reason string) {
	next := Idle
	if g.cfg.RefineAfterBuild {
		next = Annealing
	}
	g.logger.Info("Build cycle finished",
		zap.String("reason", reason),
		zap.Int("prescribed", len(g.prescribed)),
		zap.Stringer("next", next))
	g.phase = next
}

// Joint returns the prescribed ids followed by user selected ids not already
// prescribed.
func (g *Guide) Joint() []string {
	joint := slices.Clone(g.prescribed)
	for _, id := range g.world.SelectedIDs() {
		if !slices.Contains(joint, id) {
			joint = append(joint, id)
		}
	}
	return joint
}

// Quality scores a set of image ids. Unknown ids are skipped.
func (g *Guide) Quality(ids []string) float64 {
	return g.model.Quality(g.resolve(ids))
}

// JointQuality scores prescribed and user selected images together.
func (g *Guide) JointQuality() float64 { return g.Quality(g.Joint()) }

// PrescribedQuality scores the prescription alone.
func (g *Guide) PrescribedQuality() float64 { return g.Quality(g.prescribed) }

func (g *Guide) resolve(ids []string) []*world.Image {
	out := make([]*world.Image, 0, len(ids))
	for _, id := range ids {
		img, err := g.world.Lookup(id)
		if err != nil {
			continue
		}
		out = append(out, img)
	}
	return out
}
