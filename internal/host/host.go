// File: internal/host/host.go
// Package host is the boundary between the selection engine and the
// application embedding it. Inbound events arrive through Handler, outbound
// notifications leave through Outbound.
package host

import (
	"errors"
	"time"

	"github.com/xkilldash9x/aerialguide/internal/geometry"
	"github.com/xkilldash9x/aerialguide/internal/world"
)

// ErrNoImages is returned by events that need a loaded image set.
var ErrNoImages = errors.New("no images loaded")

// Handler receives the host's inbound events, one method per event.
type Handler interface {
	LoadImages(images []world.ImageInput) error
	LoadAreaOfInterest(points []geometry.Point) error
	FootprintChanged(id string, points []geometry.Point) error
	UsageChanged(id string, usage world.Usage) error

	FilterTimeRange(from, to time.Time) error
	ResetFilter() error
	HoverImage(id string) error
	HoverNone() error
	TogglePreview(id string) error
	ShuffleWorst(n int) error
	RequestRefinement() error
	Tick() error
}

// Outbound notifies the host. Calls must not block.
type Outbound interface {
	FilterImages(ids []string)
	ClearFilter()
	HighlightImages(ids []string)
	ClearHighlight()
	SetPreviewVisible(id string, visible bool)
}

// NopOutbound ignores every notification.
type NopOutbound struct{}

func (NopOutbound) FilterImages([]string)          {}
func (NopOutbound) ClearFilter()                   {}
func (NopOutbound) HighlightImages([]string)       {}
func (NopOutbound) ClearHighlight()                {}
func (NopOutbound) SetPreviewVisible(string, bool) {}
