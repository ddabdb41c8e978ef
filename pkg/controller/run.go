package controller

import (
	"context"
	"slices"
	"time"

	"github.com/gwillem/roverpanel/pkg/protocol"
	"github.com/gwillem/roverpanel/pkg/robot"
)

// Run broadcasts status and sensor snapshots and simulated detections
// until ctx is done. On return the wheels are stopped.
func (s *Server) Run(ctx context.Context) error {
	for _, name := range robot.GimbalServos() {
		if err := s.cfg.Driver.SetServo(ctx, name, protocol.ServoHome); err != nil {
			s.log.Warn().Err(err).Str("servo", string(name)).Msg("Servo init failed")
		}
	}
	s.log.Info().
		Bool("detection", s.cfg.DetectionAvailable).
		Str("model", s.cfg.Model).
		Msg("Controller running")

	status := time.NewTicker(s.cfg.StatusInterval)
	defer status.Stop()
	sensors := time.NewTicker(s.cfg.SensorsInterval)
	defer sensors.Stop()
	detect := time.NewTicker(s.cfg.DetectionInterval)
	defer detect.Stop()

	for {
		select {
		case <-ctx.Done():
			if err := s.drive(context.WithoutCancel(ctx), protocol.DirectionNone); err != nil {
				s.log.Warn().Err(err).Msg("Stop on shutdown failed")
			}
			return ctx.Err()
		case <-status.C:
			s.broadcast(protocol.EventStatus, s.status())
		case <-sensors.C:
			s.broadcast(protocol.EventSensors, s.sensors())
		case <-detect.C:
			if dets, ok := s.detect(); ok {
				s.broadcast(protocol.EventDetectionResults, dets)
			}
		}
	}
}

// detect produces one frame of simulated detections: the first classes in
// the list, each seen with the configured minimum confidence or better.
func (s *Server) detect() ([]protocol.Detection, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.detection.Enabled || !s.cfg.DetectionAvailable {
		return nil, false
	}

	n := min(len(s.detection.Classes), 2)
	dets := make([]protocol.Detection, 0, n)
	for i, class := range s.detection.Classes[:n] {
		conf := protocol.ClampFloat(s.detection.Confidence+0.1*float64(i+1), 0, 0.99)
		x := 80 + 200*i
		dets = append(dets, protocol.Detection{
			Class:      class,
			ID:         i,
			Confidence: float64(int(conf*100)) / 100,
			BBox:       [4]int{x, 120, x + 160, 360},
		})
	}
	if len(dets) == 0 || slices.Equal(dets, s.detection.Detections) {
		return nil, false
	}
	s.detection.Detections = dets
	return slices.Clone(dets), true
}
