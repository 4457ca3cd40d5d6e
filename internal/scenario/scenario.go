// File: internal/scenario/scenario.go
// Package scenario reads analyst scenarios (an image set, an area of interest
// and optionally an attack calendar) from JSON files.
package scenario

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	jsoniter "github.com/json-iterator/go"
	"github.com/mitchellh/go-homedir"

	"github.com/xkilldash9x/aerialguide/internal/geometry"
	"github.com/xkilldash9x/aerialguide/internal/world"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Projection names accepted in scenario files.
const (
	ProjectionMercator = "mercator"
	ProjectionPlanar   = "planar"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid scenario")

// Scenario is one analyst session to replay.
type Scenario struct {
	Name string `json:"name" validate:"required"`
	// Projection selects how footprints are read; empty means mercator.
	Projection     string             `json:"projection" validate:"omitempty,oneof=mercator planar"`
	AreaOfInterest []geometry.Point   `json:"aoi" validate:"min=3"`
	AttackDates    []string           `json:"attack_dates" validate:"omitempty,dive,datetime=2006-01-02"`
	Images         []world.ImageInput `json:"images" validate:"required,min=1,dive"`

	// Source is the file the scenario was read from.
	Source string `json:"-"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load expands a leading ~ in path, then reads and validates the file.
func Load(path string) (*Scenario, error) {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return nil, fmt.Errorf("failed to expand scenario path %q: %w", path, err)
	}
	f, err := os.Open(expanded)
	if err != nil {
		return nil, fmt.Errorf("failed to open scenario: %w", err)
	}
	defer f.Close()

	s, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", expanded, err)
	}
	s.Source = expanded
	return s, nil
}

// Decode reads a scenario from r and validates it.
func Decode(r io.Reader) (*Scenario, error) {
	var s Scenario
	if err := json.NewDecoder(r).Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to decode scenario: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks the struct constraints and reports every violation at once.
func (s *Scenario) Validate() error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed on '%s'", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(msgs, "; "))
}

// Engine returns the geometry engine matching the scenario's projection.
func (s *Scenario) Engine() *geometry.Engine {
	if s.Projection == ProjectionPlanar {
		return geometry.NewPlanarEngine()
	}
	return geometry.NewEngine()
}

// Params returns base with the scenario's attack calendar, when it has one.
func (s *Scenario) Params(base world.Params) world.Params {
	if len(s.AttackDates) > 0 {
		base.AttackDates = append([]string(nil), s.AttackDates...)
	}
	return base
}
