package extractor

type State int

const (
	StateSubmitting State = iota
	StateAwaitingResult
	StateNoResults
	StateDownloading
	StateComplete
	StateTimedOut
	StateError
)

var stateNames = map[State]string{
	StateSubmitting:     "Submitting",
	StateAwaitingResult: "AwaitingResult",
	StateNoResults:      "NoResults",
	StateDownloading:    "Downloading",
	StateComplete:       "Complete",
	StateTimedOut:       "TimedOut",
	StateError:          "Error",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "Unknown"
}

// Terminal reports whether the machine stops in s.
func (s State) Terminal() bool {
	switch s {
	case StateNoResults, StateComplete, StateTimedOut, StateError:
		return true
	}
	return false
}

// Succeeded is true for the two success terminals.
func (s State) Succeeded() bool {
	return s == StateNoResults || s == StateComplete
}

type ProbeResult int

const (
	ProbePending ProbeResult = iota
	ProbeEmpty
	ProbeReady
)
