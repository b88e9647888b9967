// Package metrics holds the Prometheus collectors of the quiz service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.01, 0.1, 0.5, 1, 5, 30, 120},
		},
		[]string{"method", "endpoint"},
	)

	GradingDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "skillforge_grading_duration_seconds",
			Help:    "Time spent grading one answer",
			Buckets: []float64{0.001, 0.1, 1, 5, 15, 30, 60, 120},
		},
		[]string{"question_type"},
	)

	GradedAnswers = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skillforge_graded_answers_total",
			Help: "Graded answers by question type and outcome",
		},
		[]string{"question_type", "outcome"},
	)

	Submissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skillforge_submissions_total",
			Help: "Submitted exams by pass status",
		},
		[]string{"pass_status"},
	)

	TutorRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skillforge_tutor_requests_total",
			Help: "Finished tutor requests by status",
		},
		[]string{"status"},
	)

	TutorInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "skillforge_tutor_requests_in_flight",
			Help: "Tutor requests waiting for a completion",
		},
	)
)

// Grading outcomes.
const (
	OutcomeCorrect     = "correct"
	OutcomeIncorrect   = "incorrect"
	OutcomeUnanswered  = "unanswered"
	OutcomeGradeFailed = "failed"
)

var initOnce sync.Once

// Init registers all collectors with the default registry. Safe to call more than once.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(RequestCounter)
		prometheus.MustRegister(RequestDuration)
		prometheus.MustRegister(GradingDuration)
		prometheus.MustRegister(GradedAnswers)
		prometheus.MustRegister(Submissions)
		prometheus.MustRegister(TutorRequests)
		prometheus.MustRegister(TutorInFlight)
	})
}

// ObserveGrading records the duration and outcome of grading one answer.
func ObserveGrading(questionType, outcome string, d time.Duration) {
	GradingDuration.WithLabelValues(questionType).Observe(d.Seconds())
	GradedAnswers.WithLabelValues(questionType, outcome).Inc()
}

// Middleware counts requests and their durations by chi route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		endpoint := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			endpoint = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		RequestCounter.WithLabelValues(r.Method, endpoint, strconv.Itoa(status)).Inc()
		RequestDuration.WithLabelValues(r.Method, endpoint).Observe(time.Since(start).Seconds())
	})
}

// Handler serves the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.Handler()
}
