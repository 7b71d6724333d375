package backend

import "github.com/prometheus/client_golang/prometheus"

var (
	sessionGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name:      "sessions",
		Subsystem: "hub",
		Help:      "Number of live sessions joined to the hub.",
	})

	sentCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name:      "messages_sent",
		Subsystem: "hub",
		Help:      "Counter of messages appended to the log.",
	})

	replyCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name:      "replies_added",
		Subsystem: "hub",
		Help:      "Counter of replies appended to messages.",
	})

	reactionCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name:      "reactions_toggled",
		Subsystem: "hub",
		Help:      "Counter of reaction toggles applied.",
	})

	deleteCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name:      "messages_deleted",
		Subsystem: "hub",
		Help:      "Counter of messages deleted by their authors.",
	})

	droppedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:      "intents_dropped",
		Subsystem: "hub",
		Help:      "Counter of intents dropped without a broadcast.",
	}, []string{"reason"})
)

func init() {
	prometheus.MustRegister(sessionGauge)
	prometheus.MustRegister(sentCounter)
	prometheus.MustRegister(replyCounter)
	prometheus.MustRegister(reactionCounter)
	prometheus.MustRegister(deleteCounter)
	prometheus.MustRegister(droppedCounter)
}
