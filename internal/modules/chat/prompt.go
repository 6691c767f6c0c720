package chat

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	types "github.com/yungbote/sitechat-backend/internal/domain"
	"github.com/yungbote/sitechat-backend/internal/domain/chat"
	"github.com/yungbote/sitechat-backend/internal/platform/openai"
	"github.com/yungbote/sitechat-backend/internal/platform/pinecone"
)

// Passage is one retrieved chunk.
type Passage struct {
	URL     string
	Title   string
	Heading string
	Text    string
	Score   float64
}

const answerRules = `Rules:
- Answer using the website context below. If it does not contain the answer, say you don't know and suggest contacting the site owner.
- Cite the sources you used with their bracketed numbers, e.g. [1].
- Be concise and friendly. Use short paragraphs or lists.
- Never invent prices, policies, links or contact details.`

const noContextRules = `The assistant has not been trained on any website content yet. Answer general questions briefly and say that detailed answers will be available once the site has been indexed.`

func passagesFromMatches(matches []pinecone.VectorMatch, minScore float64) []Passage {
	out := make([]Passage, 0, len(matches))
	for _, m := range matches {
		if m.Score < minScore {
			continue
		}
		text := strings.TrimSpace(m.MetaString("text"))
		if text == "" {
			continue
		}
		out = append(out, Passage{
			URL:     m.MetaString("url"),
			Title:   m.MetaString("title"),
			Heading: m.MetaString("heading"),
			Text:    text,
			Score:   m.Score,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

// buildContext numbers passages by page and stops once budget runs out.
// Passages from one URL share a number; the returned sources line up with
// those numbers.
func buildContext(passages []Passage, budget int) (string, []types.MessageSource) {
	var (
		b       strings.Builder
		sources []types.MessageSource
		index   = map[string]int{}
	)
	for _, p := range passages {
		n, ok := index[p.URL]
		if !ok {
			n = len(sources) + 1
		}
		label := p.Title
		if p.Heading != "" && p.Heading != p.Title {
			if label != "" {
				label += " › "
			}
			label += p.Heading
		}
		block := fmt.Sprintf("[%d] %s (%s)\n%s\n\n", n, label, p.URL, p.Text)
		remaining := budget - b.Len()
		if remaining <= 0 {
			break
		}
		if len(block) > remaining {
			if remaining < 200 {
				break
			}
			block = truncateBytes(block, remaining)
		}
		if !ok {
			index[p.URL] = n
			sources = append(sources, types.MessageSource{URL: p.URL, Title: p.Title, Score: roundScore(p.Score)})
		}
		b.WriteString(block)
	}
	return strings.TrimSpace(b.String()), sources
}

func systemPrompt(b *types.Bot, contextText string, hasPages bool) string {
	var sb strings.Builder
	base := strings.TrimSpace(b.SystemPrompt)
	if base == "" {
		base = fmt.Sprintf("You are %s, a helpful assistant that answers visitors' questions about this website.", b.Name)
	}
	sb.WriteString(base)
	sb.WriteString("\n\n")
	if !hasPages {
		sb.WriteString(noContextRules)
		return sb.String()
	}
	sb.WriteString(answerRules)
	sb.WriteString("\n\nWebsite context:\n")
	if contextText == "" {
		sb.WriteString("(no relevant passages found)")
	} else {
		sb.WriteString(contextText)
	}
	return sb.String()
}

func buildMessages(system string, history []*types.Message, user string) []openai.Message {
	msgs := make([]openai.Message, 0, len(history)+2)
	msgs = append(msgs, openai.Message{Role: chat.RoleSystem, Content: system})
	for _, m := range history {
		if m == nil || strings.TrimSpace(m.Content) == "" {
			continue
		}
		if m.Role != chat.RoleUser && m.Role != chat.RoleAssistant {
			continue
		}
		msgs = append(msgs, openai.Message{Role: m.Role, Content: m.Content})
	}
	msgs = append(msgs, openai.Message{Role: chat.RoleUser, Content: user})
	return msgs
}

func truncateBytes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func roundScore(v float64) float64 {
	return float64(int(v*1000+0.5)) / 1000
}
