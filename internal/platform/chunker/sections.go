package chunker

import "strings"

type Section struct {
	Heading string
	Text    string
}

// SectionChunk is a chunk with its heading context. EmbedText is what gets
// embedded; Text is what gets shown.
type SectionChunk struct {
	Chunk
	Heading   string
	EmbedText string
}

// SplitSections chunks each section on its own and prefixes the embed text
// with "title › heading". Sections shorter than Size/4 are folded into the
// following one.
func SplitSections(title string, sections []Section, opts Options) []SectionChunk {
	opts = opts.normalized()
	title = strings.TrimSpace(title)

	var out []SectionChunk
	for _, sec := range mergeShort(sections, opts.Size/4) {
		prefix := contextPrefix(title, sec.Heading)
		for _, c := range Split(sec.Text, opts) {
			embed := c.Text
			if prefix != "" {
				embed = prefix + "\n\n" + c.Text
			}
			c.Index = len(out)
			out = append(out, SectionChunk{Chunk: c, Heading: sec.Heading, EmbedText: embed})
		}
	}
	return out
}

func mergeShort(sections []Section, minLen int) []Section {
	var out []Section
	var pending *Section
	for _, s := range sections {
		s.Heading = strings.TrimSpace(s.Heading)
		s.Text = strings.TrimSpace(s.Text)
		if pending != nil {
			if pending.Text != "" {
				s.Text = strings.TrimSpace(pending.Text + "\n\n" + s.Text)
			}
			if s.Heading == "" {
				s.Heading = pending.Heading
			}
			pending = nil
		}
		if s.Text == "" {
			continue
		}
		if len([]rune(s.Text)) < minLen {
			cp := s
			pending = &cp
			continue
		}
		out = append(out, s)
	}
	if pending != nil {
		out = append(out, *pending)
	}
	return out
}

func contextPrefix(title, heading string) string {
	switch {
	case title != "" && heading != "" && !strings.EqualFold(title, heading):
		return title + " › " + heading
	case heading != "":
		return heading
	default:
		return title
	}
}
