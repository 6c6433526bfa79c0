package session

import "github.com/FlorentCollin/longshot/internal/protocol"

// Status is the user-facing projection of a machine status report.
type Status int

const (
	StatusUnknown Status = iota
	StatusStandBy
	StatusReady
	StatusBusy
)

func (s Status) String() string {
	switch s {
	case StatusStandBy:
		return "StandBy"
	case StatusReady:
		return "Ready"
	case StatusBusy:
		return "Busy"
	}
	return "Unknown"
}

// Project derives the Status for a status report: StandBy when the machine
// is in standby, Ready when it reports ready-or-dispensing with no function
// in progress, Busy otherwise.
func Project(st protocol.MonitorState) Status {
	if st.State == protocol.StateStandBy {
		return StatusStandBy
	}
	if st.State == protocol.StateReadyOrDispensing && st.Progress == 0 {
		return StatusReady
	}
	return StatusBusy
}

// Matches reports whether the report projects to the wanted status.
func (s Status) Matches(st protocol.MonitorState) bool { return Project(st) == s }
