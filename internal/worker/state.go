package worker

// State is a lifecycle phase of the delivery worker.
type State int32

const (
	// Starting performs the initial configuration fetch.
	Starting State = iota
	// Running drains the queue and delivers snapshots.
	Running
	// Draining makes a last bounded attempt on a buffered snapshot.
	Draining
	// Stopped is terminal.
	Stopped
)

func (s State) String() string {
	switch s {
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Draining:
		return "draining"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}
