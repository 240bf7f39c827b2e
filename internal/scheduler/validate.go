package scheduler

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/mrz1836/overseer/internal/constants"
	"github.com/mrz1836/overseer/internal/domain"
	overseererrors "github.com/mrz1836/overseer/internal/errors"
	"github.com/mrz1836/overseer/internal/logging"
)

// maxGoalRunes caps a goal taken from an instruction or a planner suggestion.
const maxGoalRunes = 500

// finding is a field the validator changed or dropped.
type finding struct {
	kind    overseererrors.Kind
	message string
}

// sanitize validates an untrusted planner decision. Nothing it rejects is
// fatal: offending fields are dropped and reported as findings.
func sanitize(d domain.Decision, maxCommands int) (domain.Decision, []finding) {
	var findings []finding
	out := domain.Decision{Usage: d.Usage}

	out.Explanation = strings.TrimSpace(d.Explanation)
	if n := len([]rune(out.Explanation)); n > constants.MaxExplanationLength {
		out.Explanation = logging.Truncate(out.Explanation, constants.MaxExplanationLength)
		findings = append(findings, finding{message: fmt.Sprintf("explanation truncated from %d characters", n)})
	}

	for i, spec := range d.Commands {
		spec.Command = strings.TrimSpace(spec.Command)
		spec.Intent = strings.TrimSpace(spec.Intent)
		if spec.Command == "" {
			findings = append(findings, finding{message: fmt.Sprintf("command %d dropped: empty", i+1)})
			continue
		}
		if len(out.Commands) == maxCommands {
			findings = append(findings, finding{
				kind:    overseererrors.KindSafetyViolation,
				message: fmt.Sprintf("%d commands dropped: at most %d are run per iteration", len(d.Commands)-i, maxCommands),
			})
			break
		}
		out.Commands = append(out.Commands, spec)
	}

	if mr := d.Modification; mr != nil && mr.Enabled {
		req := *mr
		req.Request = strings.TrimSpace(req.Request)
		req.Target = strings.TrimSpace(req.Target)
		switch {
		case req.Request == "":
			findings = append(findings, finding{message: "modification request dropped: no request text"})
		case req.Target != "" && !filepath.IsLocal(filepath.FromSlash(req.Target)):
			findings = append(findings, finding{
				kind:    overseererrors.KindSafetyViolation,
				message: fmt.Sprintf("modification request dropped: target %q is outside the source root", req.Target),
			})
		default:
			out.Modification = &req
		}
	}

	out.NextGoal = strings.TrimSpace(d.NextGoal)
	if len([]rune(out.NextGoal)) > maxGoalRunes {
		out.NextGoal = logging.Truncate(out.NextGoal, maxGoalRunes)
		findings = append(findings, finding{message: "next goal suggestion truncated"})
	}
	return out, findings
}
