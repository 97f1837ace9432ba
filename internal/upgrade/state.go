// Package upgrade sequences a diamond upgrade: deploy modules, resolve
// selectors, submit the cut, then run best-effort initialization,
// configuration and verification.
package upgrade

import (
	"encoding/hex"
	"fmt"
	"time"
)

// State is the orchestrator's position in the run.
type State int

const (
	Idle State = iota
	ModulesDeployed
	SelectorsResolved
	CutSubmitted
	Initialized
	Configured
	Verified
	Complete
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case ModulesDeployed:
		return "ModulesDeployed"
	case SelectorsResolved:
		return "SelectorsResolved"
	case CutSubmitted:
		return "CutSubmitted"
	case Initialized:
		return "Initialized"
	case Configured:
		return "Configured"
	case Verified:
		return "Verified"
	case Complete:
		return "Complete"
	case Failed:
		return "Failed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool { return s == Complete || s == Failed }

// Step names one orchestrator transition.
type Step string

const (
	StepDeploy     Step = "deploy"
	StepResolve    Step = "resolve"
	StepCut        Step = "cut"
	StepInitialize Step = "initialize"
	StepConfigure  Step = "configure"
	StepVerify     Step = "verify"
	StepManifest   Step = "manifest"
)

// Fatal reports whether a failure in this step aborts the run.
func (s Step) Fatal() bool {
	return s == StepDeploy || s == StepResolve || s == StepCut
}

// StepStatus is the reported outcome of a step.
type StepStatus string

const (
	StatusSuccess StepStatus = "success"
	StatusFailure StepStatus = "failure"
	StatusSkipped StepStatus = "skipped"
)

// StepResult is the per-step report accumulated during a run.
type StepResult struct {
	Step     Step
	Status   StepStatus
	Reason   string
	Duration time.Duration
}

// StepError is returned when a fatal step aborts the run. Payload is the data
// that was being submitted when the step failed, if any.
type StepError struct {
	Step    Step
	State   State
	Target  string
	Payload []byte
	Err     error
}

func (e *StepError) Error() string {
	msg := fmt.Sprintf("%s failed in state %s", e.Step, e.State)
	if e.Target != "" {
		msg += " (target " + e.Target + ")"
	}
	if len(e.Payload) > 0 {
		msg += fmt.Sprintf(" [payload %d bytes %s]", len(e.Payload), abbreviate("0x"+hex.EncodeToString(e.Payload)))
	}
	return msg + ": " + e.Err.Error()
}

func (e *StepError) Unwrap() error { return e.Err }

func abbreviate(hexStr string) string {
	const limit = 74
	if len(hexStr) <= limit {
		return hexStr
	}
	return hexStr[:limit] + "..."
}
