package selfmod

import (
	"context"
	"strings"

	"github.com/mrz1836/overseer/internal/domain"
	overseererrors "github.com/mrz1836/overseer/internal/errors"
)

// Request asks for a change. Target is empty for a whole-tree request.
type Request struct {
	Variant domain.RequestVariant `json:"variant"`
	Target  string                `json:"target,omitempty"`
	Text    string                `json:"request"`
}

// SingleFile requests a change to one file relative to the source root.
func SingleFile(target, text string) Request {
	return Request{Variant: domain.VariantSingleFile, Target: target, Text: text}
}

// WholeTree requests a change anywhere in the source root.
func WholeTree(text string) Request {
	return Request{Variant: domain.VariantWholeTree, Text: text}
}

// FromDecision converts a planner modification request.
func FromDecision(mr domain.ModificationRequest) Request {
	if strings.TrimSpace(mr.Target) == "" {
		return WholeTree(mr.Request)
	}
	return SingleFile(mr.Target, mr.Request)
}

// Validate checks the request shape.
func (r Request) Validate() error {
	if strings.TrimSpace(r.Text) == "" {
		return overseererrors.Wrap(overseererrors.ErrEmptyValue, "modification request text")
	}
	switch r.Variant {
	case domain.VariantSingleFile:
		if strings.TrimSpace(r.Target) == "" {
			return overseererrors.Wrap(overseererrors.ErrEmptyValue, "single-file modification target")
		}
	case domain.VariantWholeTree:
	default:
		return overseererrors.Wrapf(overseererrors.ErrInvalidArgument, "unknown request variant %q", r.Variant)
	}
	return nil
}

// Policy is the caller's permission to apply.
type Policy struct {
	// AutoApply permits applying without stopping at Assessed.
	AutoApply bool

	// AllowMedium extends AutoApply to medium-risk plans.
	AllowMedium bool
}

// SourceFile is one input file handed to the patch generator.
type SourceFile struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// ProposedChange is the full new content of one file.
type ProposedChange struct {
	Path    string `json:"path"`
	Content string `json:"content"`
	Reason  string `json:"reason,omitempty"`
}

// Proposal is a patch generator's answer.
type Proposal struct {
	Summary string           `json:"summary"`
	Changes []ProposedChange `json:"changes"`

	// DeclaredRisk is the generator's own rating. It can raise the assessed
	// level but never lower it.
	DeclaredRisk domain.RiskLevel `json:"risk_level,omitempty"`
	Rationale    string           `json:"rationale,omitempty"`

	Usage *domain.Usage `json:"usage,omitempty"`
}

// PatchGenerator proposes changes for a request.
type PatchGenerator interface {
	Generate(ctx context.Context, req Request, files []SourceFile) (Proposal, error)
}
