// Package verdict holds the pass/fail result shared by the validation gate
// and the continuity tracker.
package verdict

import (
	"fmt"
	"strings"

	"github.com/zulandar/quill/internal/errs"
)

// Check names, in gate order.
const (
	CheckStructural  = "structural"
	CheckLength      = "length"
	CheckDuplication = "duplication"
	CheckContinuity  = "continuity"
	CheckQuality     = "quality"
)

// Reason is one failed check.
type Reason struct {
	Check   string    `json:"check"`
	Kind    errs.Kind `json:"kind"`
	Code    string    `json:"code"`
	Message string    `json:"message"`
	Fact    string    `json:"fact,omitempty"`
}

func (r Reason) String() string {
	return fmt.Sprintf("%s(%s)", r.Code, r.Message)
}

// Err converts the reason into a classified error.
func (r Reason) Err() error {
	if r.Kind == errs.KindContinuity {
		return errs.Continuity(r.Check, r.Fact, "%s", r.Message)
	}
	return &errs.Error{Kind: r.Kind, Op: r.Check, Msg: r.Message}
}

// Result is the outcome of evaluating a candidate.
type Result struct {
	Passed  bool     `json:"passed"`
	Reasons []Reason `json:"reasons,omitempty"`
}

// Pass returns a passing result.
func Pass() Result { return Result{Passed: true} }

// Fail returns a failing result carrying the given reasons.
func Fail(reasons ...Reason) Result {
	return Result{Passed: false, Reasons: reasons}
}

// Add records a failure.
func (r *Result) Add(reason Reason) {
	r.Reasons = append(r.Reasons, reason)
	r.Passed = false
}

// Merge folds other into r.
func (r *Result) Merge(other Result) {
	for _, reason := range other.Reasons {
		r.Add(reason)
	}
	if !other.Passed && len(other.Reasons) == 0 {
		r.Passed = false
	}
}

// Checks returns the distinct check names that failed, in order.
func (r Result) Checks() []string {
	var out []string
	seen := map[string]bool{}
	for _, reason := range r.Reasons {
		if !seen[reason.Check] {
			seen[reason.Check] = true
			out = append(out, reason.Check)
		}
	}
	return out
}

// Summary renders the reasons as "fail: A; B".
func (r Result) Summary() string {
	if r.Passed {
		return "pass"
	}
	parts := make([]string, len(r.Reasons))
	for i, reason := range r.Reasons {
		parts[i] = reason.String()
	}
	return "fail: " + strings.Join(parts, "; ")
}
