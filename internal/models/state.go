package models

// PieceStatus is the overall lifecycle state of one piece run.
type PieceStatus string

const (
	PieceRunning   PieceStatus = "running"
	PieceCompleted PieceStatus = "completed"
	PieceAborted   PieceStatus = "aborted"
)

// PieceState is the mutable runtime state the engine advances as it
// drives a piece to completion. It is exclusively owned by the engine
// running it.
type PieceState struct {
	PieceName          string
	CurrentMovement    string
	Iteration          int
	MovementOutputs    map[string]Response
	UserInputs         []string
	PersonaSessions    map[string]string
	MovementIterations map[string]int
	Status             PieceStatus
	AbortReason        string
}

// NewPieceState initializes a fresh runtime state for a piece run
// starting at startMovement.
func NewPieceState(pieceName, startMovement string) *PieceState {
	return &PieceState{
		PieceName:          pieceName,
		CurrentMovement:    startMovement,
		Iteration:          0,
		MovementOutputs:    make(map[string]Response),
		UserInputs:         make([]string, 0),
		PersonaSessions:    make(map[string]string),
		MovementIterations: make(map[string]int),
		Status:             PieceRunning,
	}
}

// RecordOutput stores the last response produced for a movement.
func (s *PieceState) RecordOutput(movement string, resp Response) {
	s.MovementOutputs[movement] = resp
}

// IncrementMovementIteration bumps the per-movement iteration counter
// and returns the new value.
func (s *PieceState) IncrementMovementIteration(movement string) int {
	s.MovementIterations[movement]++
	return s.MovementIterations[movement]
}

// MaxUserInputs and MaxUserInputLength bound the FIFO user-input buffer
// accumulated across blocked-movement retries.
const (
	MaxUserInputs      = 50
	MaxUserInputLength = 4000
)

// AppendUserInput appends a user-supplied string to the bounded FIFO
// buffer, truncating overlong entries and evicting the oldest entry
// once the buffer is full.
func (s *PieceState) AppendUserInput(input string) {
	if len(input) > MaxUserInputLength {
		input = input[:MaxUserInputLength]
	}
	s.UserInputs = append(s.UserInputs, input)
	if len(s.UserInputs) > MaxUserInputs {
		s.UserInputs = s.UserInputs[len(s.UserInputs)-MaxUserInputs:]
	}
}

// LoopDetectorConfig configures consecutive-same-movement detection.
type LoopDetectorConfig struct {
	MaxConsecutiveSameMovement int
	Action                     LoopAction
}

// LoopAction is the configured response to a loop being detected.
type LoopAction string

const (
	LoopAbort  LoopAction = "abort"
	LoopWarn   LoopAction = "warn"
	LoopIgnore LoopAction = "ignore"
)

// CyclePattern is one configured repeating sequence of movement names
// the cycle detector watches for.
type CyclePattern struct {
	Cycle     []string
	Threshold int
}
