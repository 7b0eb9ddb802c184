package oracle

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type stubGenerator struct {
	reply  string
	err    error
	prompt string
	block  bool
}

func (s *stubGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	s.prompt = prompt
	if s.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return s.reply, s.err
}

func TestParseReply(t *testing.T) {
	tests := []struct {
		name    string
		reply   string
		want    Choice
		wantErr bool
	}{
		{name: "none", reply: " None\n", want: Choice{None: true}},
		{name: "quoted none", reply: `"none".`, want: Choice{None: true}},
		{name: "list", reply: "1,3", want: Choice{Indexes: []int{0, 2}}},
		{name: "spaces", reply: " 2 , 1 ", want: Choice{Indexes: []int{1, 0}}},
		{name: "out of range dropped", reply: "4,0,2", want: Choice{Indexes: []int{1}}},
		{name: "repeat dropped", reply: "2,2", want: Choice{Indexes: []int{1}}},
		{name: "prose", reply: "I would pick the first", wantErr: true},
		{name: "empty", reply: "  ", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseReply(tt.reply, 3)
			if tt.wantErr {
				var perr *ParseError
				require.ErrorAs(t, err, &perr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestHeuristic(t *testing.T) {
	opts := []Option{{Score: 0.2}, {Score: 0.9}, {Score: 0.5}, {Score: 0.9}}
	got, err := NewHeuristic(3).Select(context.Background(), Query{Options: opts})
	require.NoError(t, err)
	require.Equal(t, []int{1, 3, 2}, got.Indexes)
	require.Equal(t, []int{1, 3, 2, 0}, TopByScore(opts, 10))
	require.Empty(t, TopByScore(nil, 3))
}

func TestLLMSelect(t *testing.T) {
	gen := &stubGenerator{reply: "2"}
	o := NewLLM(gen, time.Second)
	got, err := o.Select(context.Background(), Query{
		Stage:   StagePacks,
		Prompt:  "monthly revenue",
		Options: []Option{{Text: `"A" (Project: x)`}, {Text: `"B" (Project: y)`}},
	})
	require.NoError(t, err)
	require.Equal(t, []int{1}, got.Indexes)
	require.Contains(t, gen.prompt, `User's question: "monthly revenue"`)
	require.Contains(t, gen.prompt, "\n2. \"B\" (Project: y)\n")
}

func TestLLMArtifactPrompt(t *testing.T) {
	p := BuildPrompt(Query{
		Stage:   StageArtifacts,
		Prompt:  "q",
		Subject: "Revenue",
		Options: []Option{{Text: "SQL: select 1"}, {Text: "CODE: print(1)"}},
	})
	require.True(t, strings.HasPrefix(p, `For the ContextPack "Revenue", determine which artifacts would help answer: "q"`))
	require.Contains(t, p, "1. SQL: select 1\n2. CODE: print(1)")
}

func TestLLMErrors(t *testing.T) {
	ctx := context.Background()
	q := Query{Options: []Option{{Text: "a"}}}

	_, err := NewLLM(&stubGenerator{err: errors.New("boom")}, 0).Select(ctx, q)
	require.Error(t, err)

	_, err = NewLLM(&stubGenerator{reply: "maybe"}, 0).Select(ctx, q)
	var perr *ParseError
	require.ErrorAs(t, err, &perr)

	_, err = NewLLM(&stubGenerator{block: true}, 10*time.Millisecond).Select(ctx, q)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	_, err = NewLLM(nil, 0).Select(ctx, q)
	require.Error(t, err)

	got, err := NewLLM(&stubGenerator{}, 0).Select(ctx, Query{})
	require.NoError(t, err)
	require.True(t, got.None)
}
