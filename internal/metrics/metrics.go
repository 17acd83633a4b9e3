// internal/metrics/metrics.go
//
// Prometheus collectors for the riddle service. Collectors are registered
// with the default registry at init so /metrics (promhttp.Handler) serves
// them without further wiring.

package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/robalobadob/riddlerush/internal/game"
)

var (
	Rounds = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "riddle_rounds_total",
			Help: "Rounds finished, by difficulty and result",
		},
		[]string{"difficulty", "result"},
	)
	Points = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "riddle_points_awarded_total",
			Help: "Points awarded for correct answers",
		},
		[]string{"difficulty"},
	)
	Hints = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "riddle_hints_total",
			Help: "Hints shown to players",
		},
		[]string{"difficulty"},
	)
	ProviderErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "riddle_provider_errors_total",
			Help: "Failed riddle, hint and answer-check calls",
		},
		[]string{"op"},
	)
	FinalScores = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "riddle_final_score",
			Help:    "Score at the end of a game",
			Buckets: prometheus.LinearBuckets(0, 10, 11),
		},
		[]string{"difficulty"},
	)
	Sessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "riddle_sessions_active",
			Help: "Game sessions currently held in memory",
		},
	)
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "riddle_http_requests_total",
			Help: "HTTP requests by route pattern, method and status",
		},
		[]string{"route", "method", "code"},
	)
)

func init() {
	prometheus.MustRegister(Rounds)
	prometheus.MustRegister(Points)
	prometheus.MustRegister(Hints)
	prometheus.MustRegister(ProviderErrors)
	prometheus.MustRegister(FinalScores)
	prometheus.MustRegister(Sessions)
	prometheus.MustRegister(HTTPRequests)
}

// Recorder feeds engine events into the collectors above.
type Recorder struct{}

var _ game.Recorder = Recorder{}

func (Recorder) RoundFinished(d game.Difficulty, r game.Result, awarded int) {
	Rounds.WithLabelValues(string(d), string(r)).Inc()
	if awarded > 0 {
		Points.WithLabelValues(string(d)).Add(float64(awarded))
	}
}

func (Recorder) HintUsed(d game.Difficulty) { Hints.WithLabelValues(string(d)).Inc() }

func (Recorder) ProviderFailed(op string) { ProviderErrors.WithLabelValues(op).Inc() }

func (Recorder) GameFinished(d game.Difficulty, score int) {
	FinalScores.WithLabelValues(string(d)).Observe(float64(score))
}

// ObserveRequest counts one served HTTP request.
func ObserveRequest(route, method string, code int) {
	if route == "" {
		route = "unmatched"
	}
	HTTPRequests.WithLabelValues(route, method, strconv.Itoa(code)).Inc()
}
