package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bradennss/presence/pkg"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

func main() {
	config := pkg.NewConfigFromEnv()
	hub := pkg.NewHub(pkg.NewBroker())

	presenceRouter := mux.NewRouter()
	presenceRouter.HandleFunc("/", hub.LivenessHandler)
	presenceRouter.HandleFunc("/api/v1/health", hub.HealthHandler)
	presenceRouter.HandleFunc("/api/v1/socket", hub.SocketHandler)

	presenceServer := &http.Server{
		Addr: config.ListenAddr(),
		Handler: promhttp.InstrumentHandlerInFlight(pkg.PresenceInFlightGauge,
			promhttp.InstrumentHandlerCounter(pkg.PresenceRequestsCounter,
				presenceRouter)),
	}

	metricsRouter := mux.NewRouter()
	metricsRouter.Handle("/metrics", promhttp.Handler())

	metricsServer := &http.Server{
		Addr:    config.MetricsAddr(),
		Handler: metricsRouter,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	log.Info("Starting presence server on ", config.ListenAddr(), "...")
	go func() {
		err := presenceServer.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			log.Fatal("Presence server failed: ", err)
		}
	}()

	log.Info("Starting metrics server on ", config.MetricsAddr(), "...")
	go func() {
		err := metricsServer.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			log.Fatal("Metrics server failed: ", err)
		}
	}()

	<-done

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	log.Info("Shutting down presence server...")
	if err := presenceServer.Shutdown(ctx); err != nil {
		log.Fatal("Presence server shutdown failed: ", err)
	}

	log.Info("Shutting down metrics server...")
	if err := metricsServer.Shutdown(ctx); err != nil {
		log.Fatal("Metrics server shutdown failed: ", err)
	}
}
