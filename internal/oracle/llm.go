package oracle

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/ctxkit/internal/ai"
)

const packPromptTemplate = `You are a context selection assistant. Your job is to be VERY selective and only choose context that would genuinely help answer the user's question.

User's question: "%s"

Available ContextPacks from previous conversations:
%s
INSTRUCTIONS:
1. Only select ContextPacks if they contain information that would ACTUALLY help answer this specific question
2. Be conservative - it's better to select nothing than to include irrelevant context
3. Consider: Does this ContextPack contain relevant analysis, data patterns, code, or insights for this question?

Respond with ONLY the numbers of helpful ContextPacks (comma-separated), or "none" if no context would help.
Example responses: "1,3" or "2" or "none"
`

const artifactPromptTemplate = `For the ContextPack "%s", determine which artifacts would help answer: "%s"

Available artifacts:
%s

Which artifacts would be helpful? Respond with numbers (comma-separated) or "none".
Be selective - only include artifacts that directly relate to the question.`

// LLM asks a text generator to choose. Each call is bounded by timeout
// and is not retried.
type LLM struct {
	gen     ai.IGenerator
	timeout time.Duration
}

func NewLLM(gen ai.IGenerator, timeout time.Duration) *LLM {
	return &LLM{gen: gen, timeout: timeout}
}

func (l *LLM) Select(ctx context.Context, q Query) (Choice, error) {
	if l.gen == nil {
		return Choice{}, ai.ErrUnavailable
	}
	if len(q.Options) == 0 {
		return Choice{None: true}, nil
	}
	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}
	prompt := BuildPrompt(q)
	reply, err := l.gen.Generate(ctx, prompt)
	if err != nil {
		return Choice{}, fmt.Errorf("oracle generate: %w", err)
	}
	choice, err := ParseReply(reply, len(q.Options))
	if err != nil {
		return Choice{}, err
	}
	logutil.GetLogger(ctx).Debug("oracle replied",
		zap.String("stage", string(q.Stage)),
		zap.String("reply", strings.TrimSpace(reply)),
		zap.Ints("indexes", choice.Indexes))
	return choice, nil
}

// BuildPrompt renders the numbered options into the stage prompt.
func BuildPrompt(q Query) string {
	if q.Stage == StageArtifacts {
		lines := make([]string, 0, len(q.Options))
		for i, opt := range q.Options {
			lines = append(lines, fmt.Sprintf("%d. %s", i+1, opt.Text))
		}
		return fmt.Sprintf(artifactPromptTemplate, q.Subject, q.Prompt, strings.Join(lines, "\n"))
	}
	var sb strings.Builder
	for i, opt := range q.Options {
		fmt.Fprintf(&sb, "\n%d. %s\n", i+1, opt.Text)
	}
	return fmt.Sprintf(packPromptTemplate, q.Prompt, sb.String())
}

// ParseReply reads "none" or a comma separated list of 1-based numbers.
// Numbers outside [1, n] and repeats are dropped.
func ParseReply(reply string, n int) (Choice, error) {
	text := strings.ToLower(strings.TrimSpace(reply))
	text = strings.Trim(text, "\"'`.")
	text = strings.TrimSpace(text)
	if text == "none" {
		return Choice{None: true}, nil
	}
	if text == "" {
		return Choice{}, &ParseError{Reply: reply}
	}
	seen := make(map[int]bool)
	indexes := make([]int, 0)
	for _, part := range strings.Split(text, ",") {
		num, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return Choice{}, &ParseError{Reply: reply}
		}
		idx := num - 1
		if idx < 0 || idx >= n || seen[idx] {
			continue
		}
		seen[idx] = true
		indexes = append(indexes, idx)
	}
	return Choice{Indexes: indexes}, nil
}
