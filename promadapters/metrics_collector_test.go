package promadapters_test

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/library-circulation-go/circulation"
	"github.com/AntonStoeckl/library-circulation-go/promadapters"
)

func givenCollector(t *testing.T) (*promadapters.MetricsCollector, *prometheus.Registry) {
	t.Helper()

	registry := prometheus.NewRegistry()
	collector, err := promadapters.NewMetricsCollector(registry, promadapters.WithBuckets(0.01, 0.1, 1))
	require.NoError(t, err)

	return collector, registry
}

func Test_NewMetricsCollector_InvalidConfiguration(t *testing.T) {
	_, errRegisterer := promadapters.NewMetricsCollector(nil)
	_, errBuckets := promadapters.NewMetricsCollector(prometheus.NewRegistry(), promadapters.WithBuckets(1, 0.1))

	assert.ErrorIs(t, errRegisterer, promadapters.ErrNilRegisterer)
	assert.Error(t, errBuckets)
}

func Test_MetricsCollector_CountsOperationsWithFixedLabels(t *testing.T) {
	// arrange
	collector, registry := givenCollector(t)

	// act
	collector.IncrementCounter(circulation.OperationsMetric, map[string]string{
		circulation.LabelOperation: circulation.OperationIssue,
		circulation.LabelStatus:    circulation.StatusSuccess,
	})
	collector.IncrementCounter(circulation.OperationsMetric, map[string]string{
		circulation.LabelOperation: circulation.OperationIssue,
		circulation.LabelStatus:    circulation.StatusError,
		circulation.LabelErrorType: "already_issued",
	})

	// assert
	expected := `
# HELP circulation_operations_total Circulation operations by outcome.
# TYPE circulation_operations_total counter
circulation_operations_total{error_type="",operation="issue",status="success"} 1
circulation_operations_total{error_type="already_issued",operation="issue",status="error"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(registry, strings.NewReader(expected), circulation.OperationsMetric))
}

func Test_MetricsCollector_GaugeWithoutLabels(t *testing.T) {
	// arrange
	collector, registry := givenCollector(t)

	// act
	collector.RecordValue(circulation.ItemsOnLoanMetric, 2, nil)
	collector.RecordValue(circulation.ItemsOnLoanMetric, 1, nil)

	// assert
	expected := `
# HELP circulation_items_on_loan Items currently on loan.
# TYPE circulation_items_on_loan gauge
circulation_items_on_loan 1
`
	assert.NoError(t, testutil.GatherAndCompare(registry, strings.NewReader(expected), circulation.ItemsOnLoanMetric))
}

func Test_MetricsCollector_Histogram(t *testing.T) {
	// arrange
	collector, registry := givenCollector(t)
	labels := map[string]string{circulation.LabelOperation: circulation.OperationReturn, circulation.LabelStatus: circulation.StatusSuccess}

	// act
	collector.RecordDuration(circulation.OperationDurationMetric, 50*time.Millisecond, labels)
	collector.RecordDuration(circulation.OperationDurationMetric, 2*time.Second, labels)

	// assert
	count, err := testutil.GatherAndCount(registry, circulation.OperationDurationMetric)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func Test_MetricsCollector_UnknownMetricsUseTheirFirstLabelKeys(t *testing.T) {
	// arrange
	collector, registry := givenCollector(t)

	// act
	collector.IncrementCounter("custom_total", map[string]string{"b": "2", "a": "1"})
	collector.IncrementCounter("custom_total", map[string]string{"a": "1", "c": "dropped"})

	// assert
	expected := `
# HELP custom_total custom_total
# TYPE custom_total counter
custom_total{a="1",b=""} 1
custom_total{a="1",b="2"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(registry, strings.NewReader(expected), "custom_total"))
}

func Test_MetricsCollector_SharedRegistryReusesCollectors(t *testing.T) {
	// arrange
	registry := prometheus.NewRegistry()
	first, err := promadapters.NewMetricsCollector(registry)
	require.NoError(t, err)
	second, err := promadapters.NewMetricsCollector(registry)
	require.NoError(t, err)
	labels := map[string]string{circulation.LabelNoticeKind: "overdue"}

	// act
	first.IncrementCounter(circulation.NotificationsFailedMetric, labels)
	second.IncrementCounter(circulation.NotificationsFailedMetric, labels)

	// assert
	expected := `
# HELP circulation_notifications_failed_total Notices the notifier failed to deliver.
# TYPE circulation_notifications_failed_total counter
circulation_notifications_failed_total{notice_kind="overdue"} 2
`
	assert.NoError(t, testutil.GatherAndCompare(registry, strings.NewReader(expected), circulation.NotificationsFailedMetric))
}

func Test_MetricsCollector_ConcurrentUse(t *testing.T) {
	// arrange
	collector, registry := givenCollector(t)
	const workers = 16
	labels := map[string]string{circulation.LabelOperation: circulation.OperationReturn}

	// act
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			collector.IncrementCounter(circulation.HandOffsMetric, labels)
		}()
	}
	wg.Wait()

	// assert
	expected := `
# HELP circulation_handoffs_total Items handed from a wait-list to the next holder.
# TYPE circulation_handoffs_total counter
circulation_handoffs_total{operation="return"} 16
`
	assert.NoError(t, testutil.GatherAndCompare(registry, strings.NewReader(expected), circulation.HandOffsMetric))
}
