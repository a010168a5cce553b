// Package bulletin reports run outcomes to chat platforms.
package bulletin

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/zulandar/quill/internal/orchestrator"
	"github.com/zulandar/quill/internal/policy"
)

// Color constants for bulletin severity.
const (
	ColorSuccess = "#36a64f"
	ColorInfo    = "#2196f3"
	ColorWarning = "#ff9800"
	ColorError   = "#e53935"
)

// Bulletin is a run outcome formatted for chat.
type Bulletin struct {
	Title    string
	Body     string
	Severity string // success, info, warning, error
	Color    string
	Fields   []Field
	Failed   bool
}

// Field is a key-value pair shown beside the bulletin body.
type Field struct {
	Name  string
	Value string
	Short bool
}

// Text renders the bulletin as plain text for platforms without rich
// formatting and for fallbacks.
func (b Bulletin) Text() string {
	var sb strings.Builder
	sb.WriteString(b.Title)
	if b.Body != "" {
		sb.WriteString("\n")
		sb.WriteString(b.Body)
	}
	for _, f := range b.Fields {
		fmt.Fprintf(&sb, "\n%s: %s", f.Name, f.Value)
	}
	return sb.String()
}

// Notifier delivers bulletins to one destination.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, b Bulletin) error
}

func severityColor(severity string) string {
	switch severity {
	case "success":
		return ColorSuccess
	case "warning":
		return ColorWarning
	case "error":
		return ColorError
	default:
		return ColorInfo
	}
}

// FromRunResult formats a run outcome.
func FromRunResult(r *orchestrator.RunResult) Bulletin {
	b := Bulletin{Failed: !r.Success}
	action := r.Action.String()
	if action == "" {
		action = "run"
	}
	switch {
	case !r.Success && r.Error == nil:
		b.Severity = "error"
		b.Title = fmt.Sprintf("Quill %s failed", action)
	case !r.Success:
		b.Severity = "error"
		b.Title = fmt.Sprintf("Quill %s failed at %s", action, r.Error.Stage)
		b.Body = r.Error.Message
		if len(r.Error.Reasons) > 0 {
			b.Severity = "warning"
			lines := make([]string, len(r.Error.Reasons))
			for i, reason := range r.Error.Reasons {
				lines[i] = "• " + reason.String()
			}
			b.Body = strings.Join(lines, "\n")
		}
	case r.Action.Kind == policy.ActionNone || r.DryRun:
		b.Severity = "info"
		b.Title = "Quill " + action
		b.Body = r.Detail
	default:
		b.Severity = "success"
		b.Title = "Quill " + action
		b.Body = r.Detail
	}
	b.Color = severityColor(b.Severity)

	if r.WorkSlug != "" {
		b.Fields = append(b.Fields, Field{Name: "Work", Value: r.WorkSlug, Short: true})
	}
	if len(r.Committed) > 0 {
		nums := make([]string, len(r.Committed))
		words := 0
		for i, u := range r.Committed {
			nums[i] = fmt.Sprint(u.Number)
			words += u.Words
		}
		b.Fields = append(b.Fields,
			Field{Name: "Units", Value: strings.Join(nums, ", "), Short: true},
			Field{Name: "Words", Value: fmt.Sprint(words), Short: true},
		)
	}
	b.Fields = append(b.Fields,
		Field{Name: "Run", Value: r.RunID, Short: true},
		Field{Name: "Duration", Value: r.Duration().Round(time.Millisecond).String(), Short: true},
	)
	return b
}

// Multi fans a bulletin out to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Name() string {
	names := make([]string, len(m))
	for i, n := range m {
		names[i] = n.Name()
	}
	return strings.Join(names, "+")
}

func (m Multi) Notify(ctx context.Context, b Bulletin) error {
	var errList []error
	for _, n := range m {
		if err := n.Notify(ctx, b); err != nil {
			errList = append(errList, fmt.Errorf("%s: %w", n.Name(), err))
		}
	}
	return errors.Join(errList...)
}

// OnlyFailures wraps n so successful runs are not reported.
func OnlyFailures(n Notifier) Notifier {
	return failuresOnly{n}
}

type failuresOnly struct {
	Notifier
}

func (f failuresOnly) Notify(ctx context.Context, b Bulletin) error {
	if !b.Failed {
		return nil
	}
	return f.Notifier.Notify(ctx, b)
}
