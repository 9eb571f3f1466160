package pkg

import "github.com/prometheus/client_golang/prometheus"

var (
	PresenceClientsGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "presence_clients",
		Help: "A gauge of clients connected to the presence server.",
	})

	PresenceRoomsGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "presence_rooms",
		Help: "A gauge of rooms with at least one member.",
	})

	PresenceMessagesCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "presence_messages_total",
		Help: "A counter of client updates received.",
	})

	PresencePublishesCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "presence_publishes_total",
		Help: "A counter of room broadcasts published.",
	})

	PresenceInFlightGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "presence_in_flight_requests",
		Help: "A gauge of requests being handled by the presence server.",
	})

	PresenceRequestsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "presence_requests_total",
		Help: "A counter for requests to the presence server.",
	}, []string{"code", "method"})
)

func init() {
	prometheus.MustRegister(
		PresenceClientsGauge,
		PresenceRoomsGauge,
		PresenceMessagesCounter,
		PresencePublishesCounter,
		PresenceInFlightGauge,
		PresenceRequestsCounter,
	)
}
