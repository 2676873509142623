package peek

import "iter"

// StopReason records why a capture pass ended.
type StopReason string

const (
	StopNone       StopReason = ""
	StopCapped     StopReason = "capped"
	StopExhausted  StopReason = "exhausted"
	StopSuperseded StopReason = "superseded"
	// StopDetached means the session left the registry mid-pass through an
	// intent or a closed tab, not a newer load.
	StopDetached StopReason = "detached"
	StopFailed     StopReason = "failed"
)

const (
	DefaultMaxScreenshots = 7
	DefaultFoldSlack      = 100
)

// Plan bounds one capture pass. Each recorded frame counts toward the cap,
// including the first above-the-fold capture; the pass also ends once less
// than the slack remains below the fold.
type Plan struct {
	max    int
	slack  int
	frames int
	reason StopReason
}

func NewPlan(maxScreenshots, foldSlack int) *Plan {
	if maxScreenshots < 1 {
		maxScreenshots = 1
	}
	if foldSlack < 0 {
		foldSlack = 0
	}
	return &Plan{max: maxScreenshots, slack: foldSlack}
}

// Next reports whether another scroll step should be taken.
func (p *Plan) Next() bool {
	return p.reason == StopNone
}

// Record counts one appended frame and the pixels left below the fold after
// it was captured. It returns the stop reason, if the pass is now over.
func (p *Plan) Record(remaining int) StopReason {
	if p.reason != StopNone {
		return p.reason
	}
	p.frames++
	switch {
	case p.frames >= p.max:
		p.reason = StopCapped
	case remaining < p.slack:
		p.reason = StopExhausted
	}
	return p.reason
}

// Abort ends the plan early. The first reason wins.
func (p *Plan) Abort(reason StopReason) {
	if p.reason == StopNone {
		p.reason = reason
	}
}

// Steps yields the index of each frame still to be captured. The consumer
// must call Record or Abort in every iteration.
func (p *Plan) Steps() iter.Seq[int] {
	return func(yield func(int) bool) {
		for p.Next() {
			if !yield(p.frames) {
				return
			}
		}
	}
}

func (p *Plan) Frames() int        { return p.frames }
func (p *Plan) Reason() StopReason { return p.reason }
