package artifact

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/xxxsen/ctxkit/internal/model"
)

// Block is a fenced code block lifted out of a markdown body.
type Block struct {
	Lang    string
	Kind    model.ArtifactKind
	Content string
}

var langAliases = map[string]string{
	"py":   "python",
	"js":   "javascript",
	"ts":   "typescript",
	"sh":   "shell",
	"bash": "shell",
	"zsh":  "shell",
	"yml":  "yaml",
	"psql": "sql",
}

var codeLangs = map[string]struct{}{
	"python": {}, "javascript": {}, "typescript": {}, "shell": {}, "r": {}, "scala": {},
	"java": {}, "go": {}, "rust": {}, "cpp": {}, "c": {}, "dockerfile": {}, "makefile": {},
}

// NormalizeLanguage lower-cases a fence info string and resolves aliases.
// An empty language is "text".
func NormalizeLanguage(lang string) string {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if lang == "" {
		return "text"
	}
	if alias, ok := langAliases[lang]; ok {
		return alias
	}
	return lang
}

func KindOf(lang string) model.ArtifactKind {
	lang = NormalizeLanguage(lang)
	if lang == "sql" {
		return model.ArtifactKindSQL
	}
	if _, ok := codeLangs[lang]; ok {
		return model.ArtifactKindCode
	}
	return model.ArtifactKindText
}

// Extract returns the non-empty fenced code blocks of body in document
// order, including blocks nested in lists and quotes.
func Extract(body string) []Block {
	source := []byte(body)
	doc := goldmark.New().Parser().Parse(text.NewReader(source))
	var blocks []Block
	_ = ast.Walk(doc, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		fence, ok := node.(*ast.FencedCodeBlock)
		if !ok {
			return ast.WalkContinue, nil
		}
		var sb strings.Builder
		for i := 0; i < fence.Lines().Len(); i++ {
			line := fence.Lines().At(i)
			sb.Write(line.Value(source))
		}
		code := strings.TrimSpace(sb.String())
		if code == "" {
			return ast.WalkSkipChildren, nil
		}
		lang := NormalizeLanguage(string(fence.Language(source)))
		blocks = append(blocks, Block{Lang: lang, Kind: KindOf(lang), Content: code})
		return ast.WalkSkipChildren, nil
	})
	return blocks
}
