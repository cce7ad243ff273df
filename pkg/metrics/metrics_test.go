package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with default options on a fresh registry", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(WithPrometheusRegistry(registry))

			Convey("Then metrics register under the pepai namespace", func() {
				So(manager, ShouldNotBeNil)
				manager.generationAttempts.Inc()
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				found := false
				for _, f := range families {
					if f.GetName() == "pepai_drills_generation_attempts_total" {
						found = true
					}
				}
				So(found, ShouldBeTrue)
			})
		})

		Convey("When creating with custom options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test"),
				WithSubsystem("unit"),
				WithHistogramBuckets([]float64{0.1, 0.5, 1.0}),
				WithLatencyBuckets([]float64{10, 100}),
				WithPrometheusRegistry(registry),
			)

			Convey("Then names follow the custom namespace", func() {
				manager.historySaves.Add(2)
				So(testutil.ToFloat64(manager.historySaves), ShouldEqual, 2)
				count, err := testutil.GatherAndCount(registry, "test_unit_history_saves_total")
				So(err, ShouldBeNil)
				So(count, ShouldEqual, 1)
			})
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given the global manager", t, func() {
		Convey("When recording generation metrics", func() {
			before := testutil.ToFloat64(globalManager.generationRetries)
			RecordGenerationAttempt()
			RecordGenerationRetry()
			RecordGenerationHighDemand()
			RecordGenerationLatency("stream", 1200)
			RecordDrillGenerated("refine")
			RecordMalformedResponse()

			Convey("Then counters move", func() {
				So(testutil.ToFloat64(globalManager.generationRetries), ShouldEqual, before+1)
				So(testutil.ToFloat64(globalManager.drillsGenerated.WithLabelValues("refine")), ShouldBeGreaterThanOrEqualTo, 1)
			})
		})

		Convey("When recording billing and voice metrics", func() {
			RecordBillingDeduction("credits")
			RecordInsufficientBalance("pepPoints")
			RecordBillingEvent("payment", "applied")
			IncVoiceSessions()
			IncVoiceSessions()
			DecVoiceSessions()
			RecordVoiceToolCall("addPlayer")

			Convey("Then the active voice gauge reflects open sessions", func() {
				So(testutil.ToFloat64(globalManager.voiceSessionsActive), ShouldBeGreaterThanOrEqualTo, 1)
				DecVoiceSessions()
			})
		})

		Convey("When recording operational metrics", func() {
			So(func() {
				UpdateQueueSize(10)
				UpdateQueueCapacity(100)
				UpdateQueueUtilization(0.1)
				RecordQueueEnqueue()
				RecordQueueDequeue()
				RecordQueueEnqueueError()
				RecordQueueProcessingLatency(0.4)
				UpdateWorkerCount(4)
				UpdateWorkerMessagesPerSecond(2.5)
				RecordWorkerProcessingLatency(3)
				RecordWorkerError()
				RecordHistorySave(3)
				RecordHistoryDuplicate()
				RecordShareLink("stored", "create")
				RecordStoreLatency("save_drill", 4)
				RecordStoreError("save_drill")
				RecordHTTPRequest("drills", "POST", "200")
				RecordHTTPRequestDuration("drills", "POST", "200", 900)
				RecordErrorByComponent("queue", "full")
				RecordErrorByType("client_error", "medium")
				RecordErrorByEndpoint("drills", "POST", "client_error")
				RecordErrorLatency("http", "server_error", 20)
				UpdateSystemMemoryUsage(1 << 20)
				UpdateSystemGoroutineCount(12)
				RecordSystemGCPauseTime(0.2)
			}, ShouldNotPanic)
			So(testutil.ToFloat64(globalManager.queueSize), ShouldEqual, 10)
		})

		Convey("When gathering the custom registry", func() {
			families, err := GetRegistry().Gather()

			Convey("Then only pepai metrics are exposed", func() {
				So(err, ShouldBeNil)
				So(len(families), ShouldBeGreaterThan, 0)
				for _, f := range families {
					So(strings.HasPrefix(f.GetName(), "pepai_"), ShouldBeTrue)
				}
			})
		})
	})
}
