// Package oracle picks the options relevant to a prompt. Backends answer
// with option numbers or "none"; the heuristic backend ranks by score.
package oracle

import (
	"context"
	"fmt"
)

type Stage string

const (
	StagePacks     Stage = "packs"
	StageArtifacts Stage = "artifacts"
)

// Option is one numbered choice. Text is what a reasoning backend reads;
// Score is what the heuristic ranks by.
type Option struct {
	Text  string
	Score float64
}

// Query asks which Options help answer Prompt. Subject names the pack
// during artifact selection.
type Query struct {
	Stage   Stage
	Prompt  string
	Subject string
	Options []Option
}

// Choice is an ordered list of 0-based option indexes, or None.
type Choice struct {
	Indexes []int
	None    bool
}

type Oracle interface {
	Select(ctx context.Context, q Query) (Choice, error)
}

// ParseError reports a reply that is neither "none" nor a list of numbers.
type ParseError struct {
	Reply string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("unparsable oracle reply: %q", e.Reply)
}
