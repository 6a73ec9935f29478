package agent

import (
	"context"
	"errors"
	"log"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/mohammad-safakhou/analyst/internal/capability"
	"github.com/mohammad-safakhou/analyst/internal/completion"
)

// Combiner merges the concatenated agent code into one script.
type Combiner struct {
	svc    completion.Service
	logger *log.Logger
}

// NewCombiner creates a combiner. A nil logger uses the default [COMBINER] logger.
func NewCombiner(svc completion.Service, logger *log.Logger) *Combiner {
	if logger == nil {
		logger = log.New(log.Writer(), "[COMBINER] ", log.LstdFlags)
	}
	return &Combiner{svc: svc, logger: logger}
}

// Combine returns the merged script. It runs on empty input too; a reply
// without usable code is a CombinationError.
func (c *Combiner) Combine(ctx context.Context, concatenatedCode string) (FinalArtifact, error) {
	ctx, span := tracer.Start(ctx, "agent.combine")
	defer span.End()
	span.SetAttributes(attribute.Int("code.input_bytes", len(concatenatedCode)))

	ctx = completion.WithInstructions(ctx, combinerInstructions)
	resp, err := c.svc.Complete(ctx, map[string]string{
		capability.FieldAgentCodeList: concatenatedCode,
	}, []string{capability.FieldCode})
	if err == nil {
		err = completion.CheckOutputs(resp, []string{capability.FieldCode})
	}
	if err == nil && strings.TrimSpace(resp[capability.FieldCode]) == "" {
		err = errors.New("empty merged code")
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.Printf("combination failed: %v", err)
		return FinalArtifact{}, stageErr(KindCombination, err)
	}
	return FinalArtifact{Code: resp[capability.FieldCode]}, nil
}
