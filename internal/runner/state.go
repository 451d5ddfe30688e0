package runner

// State is the run loop's position in its lifecycle.
type State int

const (
	StateIdle State = iota
	StateFetchingRecords
	StateProcessingRecord
	StateSucceeded
	StateFailed
	StateDrained
	StateClosed
)

var stateNames = [...]string{
	StateIdle:             "Idle",
	StateFetchingRecords:  "FetchingRecords",
	StateProcessingRecord: "ProcessingRecord",
	StateSucceeded:        "Succeeded",
	StateFailed:           "Failed",
	StateDrained:          "Drained",
	StateClosed:           "Closed",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "Unknown"
}
