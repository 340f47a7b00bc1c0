package abtest

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgclosets/go-common/eventing"
	"github.com/pgclosets/go-common/kv"
	"github.com/pgclosets/go-common/logger"
)

func newTestDefinition() TestDefinition {
	return TestDefinition{
		Name:              "checkout button color",
		Hypothesis:        "green converts better than blue",
		MinimumSampleSize: 1000,
		ConfidenceLevel:   0.95,
		Variants: []VariantDefinition{
			{ID: "control", Name: "Blue", Weight: 0.5},
			{ID: "treatment", Name: "Green", Weight: 0.5},
		},
	}
}

func startedTest(t *testing.T, f *Framework, def TestDefinition) *Test {
	t.Helper()
	test := f.CreateTest(def)
	require.True(t, f.StartTest(test.ID))
	return test
}

func TestCreateTestDefaults(t *testing.T) {
	f := New(context.Background(), WithLogger(logger.NewTestLogger()))

	test := f.CreateTest(newTestDefinition())
	assert.NotEmpty(t, test.ID)
	assert.Equal(t, StatusDraft, test.Status)
	assert.Equal(t, MetricConversionRate, test.TargetMetric)
	require.Len(t, test.Variants, 2)
	for _, v := range test.Variants {
		assert.Equal(t, 0.5, v.Weight)
		assert.Zero(t, v.Metrics)
	}
}

func TestCreateTestNormalizesWeights(t *testing.T) {
	f := New(context.Background(), WithLogger(logger.NewTestLogger()))

	def := newTestDefinition()
	def.Variants[0].Weight = 3
	def.Variants[1].Weight = 1
	test := f.CreateTest(def)
	assert.Equal(t, 0.75, test.Variants[0].Weight)
	assert.Equal(t, 0.25, test.Variants[1].Weight)

	// All-zero weights fall back to an even split.
	def.Variants[0].Weight = 0
	def.Variants[1].Weight = 0
	test = f.CreateTest(def)
	assert.Equal(t, 0.5, test.Variants[0].Weight)
	assert.Equal(t, 0.5, test.Variants[1].Weight)
}

func TestLifecycle(t *testing.T) {
	ctx := context.Background()
	f := New(ctx, WithLogger(logger.NewTestLogger()))
	test := f.CreateTest(newTestDefinition())

	// Draft tests never hand out variants.
	assert.Nil(t, f.GetVariant(ctx, test.ID, "user-1"))
	assert.Empty(t, f.ActiveTests())

	require.True(t, f.StartTest(test.ID))
	assert.False(t, f.StartTest(test.ID))
	assert.NotNil(t, f.GetVariant(ctx, test.ID, "user-1"))
	assert.Len(t, f.ActiveTests(), 1)

	require.True(t, f.PauseTest(test.ID))
	assert.Nil(t, f.GetVariant(ctx, test.ID, "user-2"))

	require.True(t, f.ResumeTest(test.ID))
	assert.NotNil(t, f.GetVariant(ctx, test.ID, "user-2"))

	require.True(t, f.EndTest(test.ID, "treatment"))
	assert.False(t, f.EndTest(test.ID, "treatment"))
	ended := f.Test(test.ID)
	assert.Equal(t, StatusCompleted, ended.Status)
	assert.Equal(t, "treatment", ended.Winner)
	require.NotNil(t, ended.EndDate)
}

func TestTestWithoutVariantsNeverActivates(t *testing.T) {
	ctx := context.Background()
	f := New(ctx, WithLogger(logger.NewTestLogger()))
	test := f.CreateTest(TestDefinition{Name: "empty"})

	// No variants means no traffic split; none of these may panic.
	assert.False(t, f.StartTest(test.ID))
	assert.Equal(t, StatusDraft, f.Test(test.ID).Status)
	assert.Nil(t, f.GetVariant(ctx, test.ID, "user-1"))
	assert.Nil(t, f.Results(test.ID))
	_, err := f.ExportTestData(test.ID)
	assert.Error(t, err)
}

func TestEndTestRequiresActiveOrPaused(t *testing.T) {
	ctx := context.Background()
	f := New(ctx, WithLogger(logger.NewTestLogger()))
	test := f.CreateTest(newTestDefinition())

	// A draft test cannot be ended.
	assert.False(t, f.EndTest(test.ID, ""))
	assert.Equal(t, StatusDraft, f.Test(test.ID).Status)

	require.True(t, f.StartTest(test.ID))
	require.True(t, f.PauseTest(test.ID))
	assert.True(t, f.EndTest(test.ID, ""))
	assert.Equal(t, StatusCompleted, f.Test(test.ID).Status)
}

func TestUnknownIDsAreNoOps(t *testing.T) {
	ctx := context.Background()
	f := New(ctx, WithLogger(logger.NewTestLogger()))
	test := startedTest(t, f, newTestDefinition())

	assert.Nil(t, f.Test("nope"))
	assert.Nil(t, f.GetVariant(ctx, "nope", "user-1"))
	assert.False(t, f.StartTest("nope"))
	assert.False(t, f.PauseTest("nope"))
	f.TrackImpression("nope", "control")
	f.TrackImpression(test.ID, "nope")
	f.TrackConversion(ctx, test.ID, "nope", 0)
	f.TrackEngagement(test.ID, "nope", time.Second, false)

	for _, v := range f.Test(test.ID).Variants {
		assert.Zero(t, v.Metrics)
	}
}

func TestStickyAssignment(t *testing.T) {
	ctx := context.Background()
	f := New(ctx, WithLogger(logger.NewTestLogger()))
	test := startedTest(t, f, newTestDefinition())

	first := f.GetVariant(ctx, test.ID, "user-42")
	require.NotNil(t, first)
	for i := 0; i < 100; i++ {
		again := f.GetVariant(ctx, test.ID, "user-42")
		require.NotNil(t, again)
		assert.Equal(t, first.ID, again.ID)
	}
}

func TestWeightDistribution(t *testing.T) {
	ctx := context.Background()
	f := New(ctx, WithLogger(logger.NewTestLogger()))
	test := startedTest(t, f, newTestDefinition())

	counts := make(map[string]int)
	const users = 10000
	for i := 0; i < users; i++ {
		v := f.GetVariant(ctx, test.ID, fmt.Sprintf("user-%d", i))
		require.NotNil(t, v)
		counts[v.ID]++
	}
	// A 50/50 split over 10k users should land within 5% of even.
	assert.InDelta(t, users/2, counts["control"], users/20)
	assert.InDelta(t, users/2, counts["treatment"], users/20)
}

func TestConversionRateTracking(t *testing.T) {
	ctx := context.Background()
	f := New(ctx, WithLogger(logger.NewTestLogger()))
	test := startedTest(t, f, newTestDefinition())

	for i := 0; i < 200; i++ {
		f.TrackImpression(test.ID, "control")
	}
	for i := 0; i < 30; i++ {
		f.TrackConversion(ctx, test.ID, "control", 49.99)
	}

	m := f.Test(test.ID).Variants[0].Metrics
	assert.Equal(t, 200, m.Impressions)
	assert.Equal(t, 30, m.Conversions)
	assert.InDelta(t, 0.15, m.ConversionRate, 1e-9)
	assert.InDelta(t, 30*49.99, m.Revenue, 1e-6)
}

func TestConversionRateCapped(t *testing.T) {
	ctx := context.Background()
	f := New(ctx, WithLogger(logger.NewTestLogger()))
	test := startedTest(t, f, newTestDefinition())

	f.TrackImpression(test.ID, "control")
	f.TrackConversion(ctx, test.ID, "control", 0)
	f.TrackConversion(ctx, test.ID, "control", 0)

	m := f.Test(test.ID).Variants[0].Metrics
	assert.Equal(t, 1.0, m.ConversionRate)
}

func TestEngagementAverages(t *testing.T) {
	ctx := context.Background()
	f := New(ctx, WithLogger(logger.NewTestLogger()))
	test := startedTest(t, f, newTestDefinition())

	f.TrackEngagement(test.ID, "control", 10*time.Second, true)
	m := f.Test(test.ID).Variants[0].Metrics
	assert.InDelta(t, 10, m.AvgTimeOnPage, 1e-9)
	assert.InDelta(t, 1, m.BounceRate, 1e-9)

	f.TrackImpression(test.ID, "control")
	f.TrackEngagement(test.ID, "control", 30*time.Second, false)
	m = f.Test(test.ID).Variants[0].Metrics
	assert.InDelta(t, 20, m.AvgTimeOnPage, 1e-9)
}

// runWinnerScenario feeds both variants impressions and conversions such
// that the final conversion triggers exactly one winner evaluation at
// control 1000/50 vs treatment 1000/80.
func runWinnerScenario(ctx context.Context, f *Framework, testID string) {
	for i := 0; i < 999; i++ {
		f.TrackImpression(testID, "control")
		f.TrackImpression(testID, "treatment")
	}
	for i := 0; i < 50; i++ {
		f.TrackConversion(ctx, testID, "control", 0)
	}
	for i := 0; i < 79; i++ {
		f.TrackConversion(ctx, testID, "treatment", 0)
	}
	f.TrackImpression(testID, "control")
	f.TrackImpression(testID, "treatment")
	f.TrackConversion(ctx, testID, "treatment", 0)
}

func TestWinnerDetection(t *testing.T) {
	ctx := context.Background()
	pub := eventing.NewCapturePublisher()
	f := New(ctx, WithLogger(logger.NewTestLogger()), WithPublisher(pub))
	test := startedTest(t, f, newTestDefinition())

	runWinnerScenario(ctx, f, test.ID)

	done := f.Test(test.ID)
	assert.Equal(t, StatusCompleted, done.Status)
	assert.Equal(t, "treatment", done.Winner)
	assert.Equal(t, StatusWinner, done.Variants[1].Status)
	require.NotNil(t, done.EndDate)

	events := pub.Events()
	require.Len(t, events, 1)
	assert.Equal(t, WinnerSubject, events[0].Subject)
	var event WinnerEvent
	require.NoError(t, json.Unmarshal(events[0].Data, &event))
	assert.Equal(t, test.ID, event.TestID)
	assert.Equal(t, "treatment", event.VariantID)
	assert.InDelta(t, 60.0, event.UpliftPercent, 1e-6)
}

func TestNoWinnerBelowMinimumSample(t *testing.T) {
	ctx := context.Background()
	pub := eventing.NewCapturePublisher()
	f := New(ctx, WithLogger(logger.NewTestLogger()), WithPublisher(pub))
	def := newTestDefinition()
	def.MinimumSampleSize = 2000
	test := startedTest(t, f, def)

	runWinnerScenario(ctx, f, test.ID)

	assert.Equal(t, StatusActive, f.Test(test.ID).Status)
	assert.Empty(t, f.Test(test.ID).Winner)
	assert.Empty(t, pub.Events())
}

func TestNoWinnerWithoutSignificance(t *testing.T) {
	ctx := context.Background()
	f := New(ctx, WithLogger(logger.NewTestLogger()))
	def := newTestDefinition()
	def.MinimumSampleSize = 10
	test := startedTest(t, f, def)

	for i := 0; i < 20; i++ {
		f.TrackImpression(test.ID, "control")
		f.TrackImpression(test.ID, "treatment")
	}
	f.TrackConversion(ctx, test.ID, "control", 0)
	f.TrackConversion(ctx, test.ID, "treatment", 0)
	f.TrackConversion(ctx, test.ID, "treatment", 0)

	assert.Equal(t, StatusActive, f.Test(test.ID).Status)

	results := f.Results(test.ID)
	require.NotNil(t, results)
	assert.Contains(t, results.Recommendation, "Green is leading")
	assert.Contains(t, results.Recommendation, "not yet statistically significant")
}

func TestResults(t *testing.T) {
	ctx := context.Background()
	f := New(ctx, WithLogger(logger.NewTestLogger()))
	test := startedTest(t, f, newTestDefinition())

	assert.Nil(t, f.Results("nope"))

	results := f.Results(test.ID)
	require.NotNil(t, results)
	assert.Equal(t, "Need more data to reach statistical significance", results.Recommendation)

	runWinnerScenario(ctx, f, test.ID)
	results = f.Results(test.ID)
	require.Len(t, results.Variants, 2)
	assert.Contains(t, results.Recommendation, "Green is the winner")
	assert.InDelta(t, 60.0, results.Variants[1].UpliftPercent, 1e-6)
	assert.Greater(t, results.Variants[1].Significance, 0.95)
	ci := results.Variants[1].ConfidenceInterval
	assert.Less(t, ci[0], 0.08)
	assert.Greater(t, ci[1], 0.08)
}

func TestExportTestData(t *testing.T) {
	ctx := context.Background()
	f := New(ctx, WithLogger(logger.NewTestLogger()))
	test := startedTest(t, f, newTestDefinition())

	_, err := f.ExportTestData("nope")
	assert.Error(t, err)

	data, err := f.ExportTestData(test.ID)
	require.NoError(t, err)
	var decoded Results
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, test.ID, decoded.Test.ID)
}

func TestAssignmentPersistence(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemory()
	defer store.Close()

	f1 := New(ctx, WithLogger(logger.NewTestLogger()), WithStore(store))
	test := startedTest(t, f1, newTestDefinition())
	assigned := f1.GetVariant(ctx, test.ID, "user-7")
	require.NotNil(t, assigned)

	raw, found, err := store.Get(ctx, "ab_test_assignments")
	require.NoError(t, err)
	require.True(t, found)
	var record map[string]map[string]string
	require.NoError(t, json.Unmarshal(raw, &record))
	assert.Equal(t, assigned.ID, record["user-7"][test.ID])

	// A restarted framework honors the stored assignment even when the
	// test's weights would now bucket the user elsewhere.
	f2 := New(ctx, WithLogger(logger.NewTestLogger()), WithStore(store))
	other := test.clone()
	other.Status = StatusActive
	if assigned.ID == "control" {
		other.Variants[0].Weight = 0
		other.Variants[1].Weight = 1
	} else {
		other.Variants[0].Weight = 1
		other.Variants[1].Weight = 0
	}
	f2.tests[other.ID] = other

	sticky := f2.GetVariant(ctx, other.ID, "user-7")
	require.NotNil(t, sticky)
	assert.Equal(t, assigned.ID, sticky.ID)
}

func TestMalformedAssignmentRecordDiscarded(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemory()
	defer store.Close()
	require.NoError(t, store.Set(ctx, "ab_test_assignments", []byte("not json")))

	f := New(ctx, WithLogger(logger.NewTestLogger()), WithStore(store))
	test := startedTest(t, f, newTestDefinition())
	assert.NotNil(t, f.GetVariant(ctx, test.ID, "user-1"))

	_, found, err := store.Get(ctx, "ab_test_assignments")
	require.NoError(t, err)
	assert.True(t, found)
}
