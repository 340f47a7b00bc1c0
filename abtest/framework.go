package abtest

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"

	"github.com/pgclosets/go-common/eventing"
	"github.com/pgclosets/go-common/kv"
	"github.com/pgclosets/go-common/logger"
)

// assignmentsKey is the single durable key holding every user's variant
// assignments as JSON {userId: {testId: variantId}}.
const assignmentsKey = "ab_test_assignments"

// WinnerSubject is the event subject published when a test completes
// with a statistical winner.
const WinnerSubject = "abtest.winner"

// WinnerEvent is the payload published on WinnerSubject.
type WinnerEvent struct {
	TestID        string  `json:"testId"`
	TestName      string  `json:"testName"`
	VariantID     string  `json:"variantId"`
	VariantName   string  `json:"variantName"`
	UpliftPercent float64 `json:"upliftPercent"`
}

type frameworkOptions struct {
	store kv.Store
	pub   eventing.Publisher
	log   logger.Logger
}

// FrameworkOption configures a Framework.
type FrameworkOption func(*frameworkOptions)

// WithStore persists user assignments so stickiness survives restarts.
func WithStore(store kv.Store) FrameworkOption {
	return func(o *frameworkOptions) { o.store = store }
}

// WithPublisher sets the sink for winner events. Defaults to logging.
func WithPublisher(pub eventing.Publisher) FrameworkOption {
	return func(o *frameworkOptions) { o.pub = pub }
}

// WithLogger sets the logger.
func WithLogger(log logger.Logger) FrameworkOption {
	return func(o *frameworkOptions) { o.log = log }
}

// Framework manages experiments and user assignments. Construct one at
// application start and inject it into consumers; all methods are safe
// for concurrent use.
type Framework struct {
	mutex       sync.Mutex
	tests       map[string]*Test
	assignments map[string]map[string]string // userID -> testID -> variantID
	store       kv.Store
	pub         eventing.Publisher
	log         logger.Logger
}

// New returns a Framework. When a store is configured, previously
// persisted assignments are loaded so returning users keep their
// variants.
func New(ctx context.Context, opts ...FrameworkOption) *Framework {
	o := frameworkOptions{log: logger.NewConsoleLogger()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.pub == nil {
		o.pub = eventing.NewLogPublisher(o.log)
	}
	f := &Framework{
		tests:       make(map[string]*Test),
		assignments: make(map[string]map[string]string),
		store:       o.store,
		pub:         o.pub,
		log:         o.log.WithPrefix("abtest"),
	}
	f.loadAssignments(ctx)
	return f
}

// CreateTest registers a new test in draft status with zeroed metrics.
// Variant weights are normalized to sum to 1; when every weight is zero,
// traffic is split evenly.
func (f *Framework) CreateTest(def TestDefinition) *Test {
	test := &Test{
		ID:                "test_" + uuid.NewString(),
		Name:              def.Name,
		Description:       def.Description,
		Hypothesis:        def.Hypothesis,
		TargetMetric:      def.TargetMetric,
		MinimumSampleSize: def.MinimumSampleSize,
		ConfidenceLevel:   def.ConfidenceLevel,
		Status:            StatusDraft,
		Pages:             append([]string(nil), def.Pages...),
	}
	if test.TargetMetric == "" {
		test.TargetMetric = MetricConversionRate
	}
	if test.ConfidenceLevel == 0 {
		test.ConfidenceLevel = 0.95
	}

	var weightSum float64
	for _, v := range def.Variants {
		weightSum += v.Weight
	}
	for _, v := range def.Variants {
		variant := &Variant{
			ID:          v.ID,
			Name:        v.Name,
			Description: v.Description,
			Weight:      v.Weight,
			Config:      v.Config,
			Status:      StatusDraft,
		}
		if variant.ID == "" {
			variant.ID = "variant_" + uuid.NewString()
		}
		if weightSum > 0 {
			variant.Weight = v.Weight / weightSum
		} else {
			variant.Weight = 1 / float64(len(def.Variants))
		}
		test.Variants = append(test.Variants, variant)
	}

	f.mutex.Lock()
	f.tests[test.ID] = test
	f.mutex.Unlock()
	return test.clone()
}

// Test returns a snapshot of the test, or nil when unknown.
func (f *Framework) Test(testID string) *Test {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	test, ok := f.tests[testID]
	if !ok {
		return nil
	}
	return test.clone()
}

// ActiveTests returns snapshots of every active test.
func (f *Framework) ActiveTests() []*Test {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	var out []*Test
	for _, test := range f.tests {
		if test.Status == StatusActive {
			out = append(out, test.clone())
		}
	}
	return out
}

// StartTest moves a draft test to active so assignment and tracking
// begin. Reports whether the transition happened. A test with no
// variants cannot split traffic and never starts.
func (f *Framework) StartTest(testID string) bool {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	test, ok := f.tests[testID]
	if !ok || test.Status != StatusDraft || len(test.Variants) == 0 {
		return false
	}
	test.Status = StatusActive
	test.StartDate = time.Now()
	for _, v := range test.Variants {
		v.Status = StatusActive
	}
	return true
}

// PauseTest suspends an active test. Assignments are retained.
func (f *Framework) PauseTest(testID string) bool {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	test, ok := f.tests[testID]
	if !ok || test.Status != StatusActive {
		return false
	}
	test.Status = StatusPaused
	return true
}

// ResumeTest reactivates a paused test.
func (f *Framework) ResumeTest(testID string) bool {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	test, ok := f.tests[testID]
	if !ok || test.Status != StatusPaused {
		return false
	}
	test.Status = StatusActive
	return true
}

// EndTest completes an active or paused test manually, optionally naming
// a winner. Pass an empty winnerID to complete without one.
func (f *Framework) EndTest(testID, winnerID string) bool {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	test, ok := f.tests[testID]
	if !ok || (test.Status != StatusActive && test.Status != StatusPaused) {
		return false
	}
	test.Status = StatusCompleted
	now := time.Now()
	test.EndDate = &now
	if winnerID != "" {
		if winner := test.variant(winnerID); winner != nil {
			winner.Status = StatusWinner
			test.Winner = winnerID
		}
	}
	return true
}

// GetVariant returns the user's variant for an active test, assigning
// one deterministically on first access. Returns nil when the test is
// unknown or not active.
func (f *Framework) GetVariant(ctx context.Context, testID, userID string) *Variant {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	test, ok := f.tests[testID]
	if !ok || test.Status != StatusActive {
		return nil
	}

	if variantID, ok := f.assignments[userID][testID]; ok {
		if variant := test.variant(variantID); variant != nil {
			out := *variant
			return &out
		}
		return nil
	}

	variant := assignVariant(test.Variants, userID)
	if f.assignments[userID] == nil {
		f.assignments[userID] = make(map[string]string)
	}
	f.assignments[userID][testID] = variant.ID
	f.saveAssignmentLocked(ctx, userID, testID, variant.ID)

	out := *variant
	return &out
}

// assignVariant buckets the user into [0,1) from a hash of their ID and
// walks the cumulative weights. The first variant is the fallback so
// assignment terminates even with malformed weights.
func assignVariant(variants []*Variant, userID string) *Variant {
	r := float64(xxhash.Sum64String(userID)%10000) / 10000
	var cumulative float64
	for _, v := range variants {
		cumulative += v.Weight
		if r <= cumulative {
			return v
		}
	}
	return variants[0]
}

// TrackImpression records one impression for the variant and recomputes
// conversion rates. Unknown IDs are no-ops.
func (f *Framework) TrackImpression(testID, variantID string) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	test, ok := f.tests[testID]
	if !ok {
		return
	}
	variant := test.variant(variantID)
	if variant == nil {
		return
	}
	variant.Metrics.Impressions++
	recalculateRates(test)
}

// TrackConversion records a conversion with optional revenue, recomputes
// rates, and runs winner detection. Unknown IDs are no-ops.
func (f *Framework) TrackConversion(ctx context.Context, testID, variantID string, revenue float64) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	test, ok := f.tests[testID]
	if !ok {
		return
	}
	variant := test.variant(variantID)
	if variant == nil {
		return
	}
	variant.Metrics.Conversions++
	variant.Metrics.Revenue += revenue
	recalculateRates(test)
	f.checkWinnerLocked(ctx, test)
}

// TrackEngagement folds one page view's time-on-page and bounce outcome
// into the variant's running averages.
func (f *Framework) TrackEngagement(testID, variantID string, timeOnPage time.Duration, bounced bool) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	test, ok := f.tests[testID]
	if !ok {
		return
	}
	variant := test.variant(variantID)
	if variant == nil {
		return
	}
	m := &variant.Metrics
	prior := float64(m.Impressions)
	totalTime := m.AvgTimeOnPage * prior
	m.AvgTimeOnPage = (totalTime + timeOnPage.Seconds()) / (prior + 1)
	if bounced {
		totalBounces := m.BounceRate * prior
		m.BounceRate = (totalBounces + 1) / (prior + 1)
	}
}

// recalculateRates recomputes each variant's conversion rate. The rate is
// capped at 1.0 so a conversion tracked without a matching impression
// cannot push it out of range.
func recalculateRates(test *Test) {
	for _, v := range test.Variants {
		if v.Metrics.Impressions > 0 {
			v.Metrics.ConversionRate = math.Min(1,
				float64(v.Metrics.Conversions)/float64(v.Metrics.Impressions))
		}
	}
}

// checkWinnerLocked runs the two-proportion z-test. Automatic winner
// detection only applies to active two-variant tests.
func (f *Framework) checkWinnerLocked(ctx context.Context, test *Test) {
	if test.Status != StatusActive || len(test.Variants) != 2 {
		return
	}
	control, treatment := test.Variants[0], test.Variants[1]
	if control.Metrics.Impressions < test.MinimumSampleSize ||
		treatment.Metrics.Impressions < test.MinimumSampleSize {
		return
	}
	z := zScore(control.Metrics, treatment.Metrics)
	if z == 0 || math.Abs(z) < criticalValue(test.ConfidenceLevel) {
		return
	}

	winner := control
	if treatment.Metrics.ConversionRate > control.Metrics.ConversionRate {
		winner = treatment
	}
	winner.Status = StatusWinner
	test.Winner = winner.ID
	test.Status = StatusCompleted
	now := time.Now()
	test.EndDate = &now

	f.log.Info("test %q completed, winner %q (z=%.2f)", test.Name, winner.Name, z)
	payload, err := json.Marshal(WinnerEvent{
		TestID:        test.ID,
		TestName:      test.Name,
		VariantID:     winner.ID,
		VariantName:   winner.Name,
		UpliftPercent: upliftPercent(control.Metrics, winner.Metrics),
	})
	if err == nil {
		_ = f.pub.Publish(ctx, WinnerSubject, payload)
	}
}

// Results returns the statistical readout for a test, or nil when the
// test is unknown or has no variants to compare.
func (f *Framework) Results(testID string) *Results {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	test, ok := f.tests[testID]
	if !ok || len(test.Variants) == 0 {
		return nil
	}
	snapshot := test.clone()
	control := snapshot.Variants[0]
	results := &Results{Test: snapshot}
	for _, variant := range snapshot.Variants {
		result := &VariantResult{
			Variant:            variant,
			ConfidenceInterval: confidenceInterval(variant.Metrics),
		}
		if variant.ID != control.ID {
			result.UpliftPercent = upliftPercent(control.Metrics, variant.Metrics)
			result.Significance = significance(control.Metrics, variant.Metrics)
		}
		results.Variants = append(results.Variants, result)
	}
	results.Recommendation = recommendation(snapshot, results.Variants)
	return results
}

// ExportTestData serializes a test's results as indented JSON.
func (f *Framework) ExportTestData(testID string) ([]byte, error) {
	results := f.Results(testID)
	if results == nil {
		return nil, fmt.Errorf("abtest: unknown test %q", testID)
	}
	return json.MarshalIndent(results, "", "  ")
}

func recommendation(test *Test, results []*VariantResult) string {
	for _, r := range results {
		if r.Variant.Status == StatusWinner {
			return fmt.Sprintf("%s is the winner with %.2f%% uplift and %.1f%% confidence",
				r.Variant.Name, r.UpliftPercent, r.Significance*100)
		}
	}
	needMoreData := true
	for _, r := range results {
		if r.Variant.Metrics.Impressions >= test.MinimumSampleSize {
			needMoreData = false
			break
		}
	}
	if needMoreData {
		return "Need more data to reach statistical significance"
	}
	best := results[0]
	for _, r := range results[1:] {
		if r.Variant.Metrics.ConversionRate > best.Variant.Metrics.ConversionRate {
			best = r
		}
	}
	return fmt.Sprintf("%s is leading with %.2f%% uplift, but not yet statistically significant",
		best.Variant.Name, best.UpliftPercent)
}

// loadAssignments restores the sticky assignment map from the store.
func (f *Framework) loadAssignments(ctx context.Context) {
	if f.store == nil {
		return
	}
	raw, found, err := f.store.Get(ctx, assignmentsKey)
	if err != nil {
		f.log.Warn("loading assignments failed: %v", err)
		return
	}
	if !found {
		return
	}
	var data map[string]map[string]string
	if err := json.Unmarshal(raw, &data); err != nil {
		f.log.Warn("discarding malformed assignment record: %v", err)
		_ = f.store.Delete(ctx, assignmentsKey)
		return
	}
	f.mutex.Lock()
	f.assignments = data
	f.mutex.Unlock()
}

// saveAssignmentLocked merges one new assignment into the persisted
// record. The record is re-read before the write so concurrent processes
// lose at most their own in-flight assignment rather than each other's
// whole map.
func (f *Framework) saveAssignmentLocked(ctx context.Context, userID, testID, variantID string) {
	if f.store == nil {
		return
	}
	merged := make(map[string]map[string]string)
	if raw, found, err := f.store.Get(ctx, assignmentsKey); err == nil && found {
		if err := json.Unmarshal(raw, &merged); err != nil {
			merged = make(map[string]map[string]string)
		}
	}
	if merged[userID] == nil {
		merged[userID] = make(map[string]string)
	}
	merged[userID][testID] = variantID
	raw, err := json.Marshal(merged)
	if err != nil {
		return
	}
	if err := f.store.Set(ctx, assignmentsKey, raw); err != nil {
		f.log.Warn("persisting assignment failed: %v", err)
	}
}
