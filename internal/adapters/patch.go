package adapters

import (
	"context"
	"fmt"

	overseererrors "github.com/mrz1836/overseer/internal/errors"
	"github.com/mrz1836/overseer/internal/selfmod"
)

// PatchRequest is the document a patch generator program receives.
type PatchRequest struct {
	Request selfmod.Request      `json:"request"`
	Files   []selfmod.SourceFile `json:"files"`
}

// ProcessPatchGenerator asks an external program for a modification proposal.
type ProcessPatchGenerator struct {
	proc process
}

// NewProcessPatchGenerator returns a generator that runs argv for every call.
func NewProcessPatchGenerator(argv []string, opts ...ProcessOption) *ProcessPatchGenerator {
	return &ProcessPatchGenerator{proc: newProcess(argv, opts)}
}

// Generate sends the request with the gathered files and decodes a Proposal.
func (g *ProcessPatchGenerator) Generate(ctx context.Context, req selfmod.Request, files []selfmod.SourceFile) (selfmod.Proposal, error) {
	var p selfmod.Proposal
	if err := g.proc.call(ctx, PatchRequest{Request: req, Files: files}, &p); err != nil {
		return selfmod.Proposal{}, fmt.Errorf("%w: %w", overseererrors.ErrPlannerFailure, err)
	}
	return p, nil
}

var _ selfmod.PatchGenerator = (*ProcessPatchGenerator)(nil)
