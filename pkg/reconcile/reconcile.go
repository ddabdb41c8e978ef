// Package reconcile holds the panel's copy of controller state. Every inbound
// snapshot replaces its slice wholesale; nothing is merged.
package reconcile

import (
	"time"

	"github.com/gwillem/roverpanel/pkg/protocol"
)

// Display is what the UI renders. Nil slices mean "not received yet".
type Display struct {
	Connected        bool
	Status           *protocol.Status
	Sensors          *protocol.Sensors
	Detection        *protocol.DetectionState
	Results          []protocol.Detection
	ClassUpdate      *protocol.DetectionClassUpdate
	DetectionEnabled bool // local toggle
	UpdatedAt        time.Time
}

// Reconciler applies snapshots to a Display.
type Reconciler struct {
	d   Display
	now func() time.Time
}

func New() *Reconciler {
	return &Reconciler{now: time.Now}
}

func (r *Reconciler) touch() {
	r.d.UpdatedAt = r.now()
}

func (r *Reconciler) SetConnected(connected bool) {
	r.d.Connected = connected
	r.touch()
}

func (r *Reconciler) ApplyStatus(s protocol.Status) {
	r.d.Status = &s
	r.touch()
}

func (r *Reconciler) ApplySensors(s protocol.Sensors) {
	r.d.Sensors = &s
	r.touch()
}

// ApplyDetectionState replaces the detection slice and syncs the local
// toggle to the controller's view.
func (r *Reconciler) ApplyDetectionState(s protocol.DetectionState) {
	r.d.Detection = &s
	r.d.DetectionEnabled = s.Enabled
	if s.Detections != nil {
		r.d.Results = s.Detections
	}
	r.touch()
}

func (r *Reconciler) ApplyResults(results []protocol.Detection) {
	r.d.Results = results
	r.touch()
}

func (r *Reconciler) ApplyClassUpdate(u protocol.DetectionClassUpdate) {
	r.d.ClassUpdate = &u
	r.touch()
}

// SetDetectionEnabled records the user's toggle.
func (r *Reconciler) SetDetectionEnabled(on bool) {
	r.d.DetectionEnabled = on
	r.touch()
}

func (r *Reconciler) DetectionEnabled() bool {
	return r.d.DetectionEnabled
}

// Visible returns detection results only while the local toggle is on,
// even if the controller keeps sending them.
func (r *Reconciler) Visible() []protocol.Detection {
	if !r.d.DetectionEnabled {
		return nil
	}
	return r.d.Results
}

// Snapshot returns a copy of the display state with hidden results removed.
func (r *Reconciler) Snapshot() Display {
	d := r.d
	d.Results = append([]protocol.Detection(nil), r.Visible()...)
	return d
}
