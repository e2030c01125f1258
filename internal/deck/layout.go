package deck

import (
	"unicode/utf8"

	"slide-master/internal/domain"
)

// DefaultCapacity is how many bullets fit the wide content panel.
const DefaultCapacity = 6

// Tier is a font-size step. Lower tiers are larger.
type Tier int

const (
	TierLarge Tier = iota
	TierMedium
	TierSmall
)

// Points returns the body font size in points.
func (t Tier) Points() int {
	switch t {
	case TierLarge:
		return 22
	case TierMedium:
		return 18
	default:
		return 15
	}
}

func (t Tier) String() string {
	switch t {
	case TierLarge:
		return "large"
	case TierMedium:
		return "medium"
	default:
		return "small"
	}
}

// Region is the space a plan must fit. A zero frame means the reference panel.
type Region struct {
	Frame    Rect
	Capacity int
}

// Plan is the display decision for one slide.
type Plan struct {
	Tier    Tier
	Items   []domain.ContentPoint
	Dropped int
}

type budget struct {
	tier     Tier
	maxItems int
	maxAvg   float64
	maxTotal float64
}

// Budgets are measured in runes against the reference panel.
var budgets = []budget{
	{tier: TierLarge, maxItems: 3, maxAvg: 70, maxTotal: 200},
	{tier: TierMedium, maxItems: 5, maxAvg: 110, maxTotal: 480},
}

var referenceRegion = geometries[AspectWide].ContentText()

// Allocate keeps the first Capacity items in order and picks the largest tier
// whose budget holds. It is a pure function of its inputs.
func Allocate(items []domain.ContentPoint, region Region) Plan {
	capacity := region.Capacity
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	kept := len(items)
	if kept > capacity {
		kept = capacity
	}
	plan := Plan{
		Tier:    TierSmall,
		Items:   make([]domain.ContentPoint, kept),
		Dropped: len(items) - kept,
	}
	copy(plan.Items, items)

	widthScale, areaScale := scales(region.Frame)
	total := 0
	for _, it := range plan.Items {
		total += pointLength(it)
	}
	avg := 0.0
	if kept > 0 {
		avg = float64(total) / float64(kept)
	}

	for _, b := range budgets {
		if kept <= b.maxItems && avg <= b.maxAvg*widthScale && float64(total) <= b.maxTotal*areaScale {
			plan.Tier = b.tier
			break
		}
	}
	return plan
}

func scales(frame Rect) (width, area float64) {
	if frame.W <= 0 || frame.H <= 0 {
		return 1, 1
	}
	width = float64(frame.W) / float64(referenceRegion.W)
	area = frame.Area() / referenceRegion.Area()
	return width, area
}

func pointLength(p domain.ContentPoint) int {
	n := utf8.RuneCountInString(p.Body)
	if p.Kind == domain.PointLabeled {
		n += utf8.RuneCountInString(p.Label) + 2
	}
	return n
}

