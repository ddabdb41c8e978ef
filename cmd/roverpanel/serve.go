package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/gwillem/roverpanel/pkg/config"
	"github.com/gwillem/roverpanel/pkg/controller"
	"github.com/gwillem/roverpanel/pkg/logging"
	"github.com/gwillem/roverpanel/pkg/robot"
	"github.com/gwillem/roverpanel/pkg/store"
)

type ServeCommand struct {
	Listen   string `long:"listen" description:"Listen address (overrides config)"`
	Gimbal   string `long:"gimbal" description:"Serial port of the camera gimbal (overrides config)"`
	NoDetect bool   `long:"no-detect" description:"Report detection as unavailable"`
	JSONLogs bool   `long:"json-logs" description:"Log JSON lines instead of console output"`
}

func (c *ServeCommand) Execute(args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if c.Listen != "" {
		cfg.Controller.Listen = c.Listen
	}
	if c.Gimbal != "" {
		cfg.Controller.GimbalPort = c.Gimbal
	}
	if c.NoDetect {
		cfg.Controller.DetectionAvailable = false
	}

	log := logging.New(cfg.LogLevel, os.Stderr)
	if c.JSONLogs {
		log = logging.NewJSON(cfg.LogLevel, os.Stderr)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := store.Open(cfg.Controller.DB, log)
	if err != nil {
		return err
	}
	defer db.Close()

	driver, err := openDriver(ctx, cfg.Controller, log)
	if err != nil {
		return err
	}
	defer driver.Close()

	srv, err := controller.New(controller.Config{
		Password:           cfg.Controller.Password,
		DetectionAvailable: cfg.Controller.DetectionAvailable,
		Model:              cfg.Controller.Model,
		StatusInterval:     cfg.Controller.StatusInterval(),
		SensorsInterval:    cfg.Controller.SensorsInterval(),
		Logger:             log,
		Driver:             driver,
		Store:              db,
	})
	if err != nil {
		return fmt.Errorf("create controller: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/ws", srv)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintf(w, "ok %d sessions\n", srv.Sessions())
	})

	httpSrv := &http.Server{
		Addr:              cfg.Controller.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", httpSrv.Addr).Msg("Listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	runErr := make(chan error, 1)
	go func() { runErr <- srv.Run(ctx) }()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			stop()
			<-runErr
			return fmt.Errorf("listen: %w", err)
		}
	}

	log.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("HTTP shutdown")
	}
	if err := <-runErr; err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// openDriver returns the gimbal driver when a port is configured, else the
// logging mock.
func openDriver(ctx context.Context, cfg config.ControllerConfig, log zerolog.Logger) (robot.Driver, error) {
	mock := robot.NewMockDriver(log.With().Str("component", "driver").Logger())
	if cfg.GimbalPort == "" {
		log.Info().Msg("No gimbal port configured, using simulated hardware")
		return mock, nil
	}

	cal := cfg.Calibration
	if !cfg.IsCalibrated() {
		log.Warn().Msg("Gimbal not calibrated, using full servo range")
		cal = robot.DefaultCalibration()
	}
	d, err := robot.NewGimbalDriver(ctx, cfg.GimbalPort, cal, mock)
	if err != nil {
		return nil, fmt.Errorf("open gimbal on %s: %w", cfg.GimbalPort, err)
	}
	log.Info().Str("port", cfg.GimbalPort).Msg("Gimbal ready")
	return d, nil
}
