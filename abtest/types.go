package abtest

import "time"

// Status describes the lifecycle state of a test or variant.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusActive    Status = "active"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	// StatusWinner marks the winning variant of a completed test.
	StatusWinner Status = "winner"
)

// TargetMetric names the metric a test is trying to move.
type TargetMetric string

const (
	MetricConversionRate TargetMetric = "conversion_rate"
	MetricRevenue        TargetMetric = "revenue"
	MetricEngagement     TargetMetric = "engagement"
	MetricBounceRate     TargetMetric = "bounce_rate"
)

// Metrics accumulates observations for one variant.
type Metrics struct {
	Impressions int `json:"impressions"`
	Conversions int `json:"conversions"`
	// ConversionRate is Conversions/Impressions, capped at 1.0.
	ConversionRate float64 `json:"conversionRate"`
	Revenue        float64 `json:"revenue"`
	// BounceRate is the fraction of impressions that bounced.
	BounceRate float64 `json:"bounceRate"`
	// AvgTimeOnPage is a running average in seconds, weighted by the
	// impression count at the time of each observation.
	AvgTimeOnPage float64 `json:"avgTimeOnPage"`
}

// Variant is one arm of a test, receiving Weight fraction of traffic.
type Variant struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Weight      float64        `json:"weight"`
	Config      map[string]any `json:"config,omitempty"`
	Metrics     Metrics        `json:"metrics"`
	Status      Status         `json:"status"`
}

// Test is an experiment. Variants[0] is the control by convention.
type Test struct {
	ID                string       `json:"id"`
	Name              string       `json:"name"`
	Description       string       `json:"description,omitempty"`
	Hypothesis        string       `json:"hypothesis,omitempty"`
	Variants          []*Variant   `json:"variants"`
	TargetMetric      TargetMetric `json:"targetMetric"`
	MinimumSampleSize int          `json:"minimumSampleSize"`
	// ConfidenceLevel is the required confidence for automatic winner
	// detection, e.g. 0.95.
	ConfidenceLevel float64    `json:"confidenceLevel"`
	StartDate       time.Time  `json:"startDate,omitzero"`
	EndDate         *time.Time `json:"endDate,omitempty"`
	Status          Status     `json:"status"`
	// Winner is the winning variant ID once the test completes with one.
	Winner string `json:"winner,omitempty"`
	// Pages lists the URLs the test runs on. Informational.
	Pages []string `json:"pages,omitempty"`
}

func (t *Test) variant(id string) *Variant {
	for _, v := range t.Variants {
		if v.ID == id {
			return v
		}
	}
	return nil
}

func (t *Test) clone() *Test {
	out := *t
	out.Variants = make([]*Variant, len(t.Variants))
	for i, v := range t.Variants {
		vc := *v
		if v.Config != nil {
			vc.Config = make(map[string]any, len(v.Config))
			for k, val := range v.Config {
				vc.Config[k] = val
			}
		}
		out.Variants[i] = &vc
	}
	if t.Pages != nil {
		out.Pages = append([]string(nil), t.Pages...)
	}
	if t.EndDate != nil {
		end := *t.EndDate
		out.EndDate = &end
	}
	return &out
}

// VariantDefinition describes one variant at test creation time.
type VariantDefinition struct {
	ID          string
	Name        string
	Description string
	Weight      float64
	Config      map[string]any
}

// TestDefinition describes a test at creation time.
type TestDefinition struct {
	Name              string
	Description       string
	Hypothesis        string
	Variants          []VariantDefinition
	TargetMetric      TargetMetric
	MinimumSampleSize int
	ConfidenceLevel   float64
	Pages             []string
}

// VariantResult is the per-variant statistical readout.
type VariantResult struct {
	Variant *Variant `json:"variant"`
	// UpliftPercent is the relative conversion-rate change vs control.
	UpliftPercent float64 `json:"upliftPercent"`
	// Significance is the approximate confidence that the difference vs
	// control is real, in [0,1]. Display only; winner detection uses the
	// raw z threshold.
	Significance float64 `json:"significance"`
	// ConfidenceInterval is the Wald 95% interval for the conversion
	// rate, clamped to [0,1].
	ConfidenceInterval [2]float64 `json:"confidenceInterval"`
}

// Results is the full readout for one test.
type Results struct {
	Test           *Test            `json:"test"`
	Variants       []*VariantResult `json:"variants"`
	Recommendation string           `json:"recommendation"`
}
