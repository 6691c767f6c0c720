package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitEmpty(t *testing.T) {
	assert.Nil(t, Split("", Options{}))
	assert.Nil(t, Split(" \n\t ", Options{}))
}

func TestSplitShortTextIsOneChunk(t *testing.T) {
	chunks := Split("  hello world  ", Options{})
	require.Len(t, chunks, 1)
	assert.Equal(t, "hello world", chunks[0].Text)
	assert.Equal(t, 2, chunks[0].Start)
	assert.Equal(t, 13, chunks[0].End)
}

func TestSplitPrefersParagraphBoundary(t *testing.T) {
	para1 := strings.Repeat("a", 70)
	para2 := strings.Repeat("b", 70)
	chunks := Split(para1+"\n\n"+para2, Options{Size: 100, Overlap: -1})
	require.Len(t, chunks, 2)
	assert.Equal(t, para1, chunks[0].Text)
	assert.Equal(t, para2, chunks[1].Text)
}

func TestSplitSentenceBoundary(t *testing.T) {
	s1 := strings.Repeat("x", 60) + "."
	text := s1 + " " + strings.Repeat("y", 80)
	chunks := Split(text, Options{Size: 100, Overlap: -1})
	require.NotEmpty(t, chunks)
	assert.Equal(t, s1, chunks[0].Text)
}

func TestSplitHardCutWithoutBoundaries(t *testing.T) {
	text := strings.Repeat("z", 250)
	chunks := Split(text, Options{Size: 100, Overlap: 20})
	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0].Text, 100)
	assert.Equal(t, 80, chunks[1].Start)
	assert.Equal(t, 160, chunks[2].Start)
	assert.Equal(t, 250, chunks[2].End)
}

func TestSplitOverlapClampedAndAdvancing(t *testing.T) {
	text := strings.Repeat("word ", 400)
	chunks := Split(text, Options{Size: 100, Overlap: 500})
	require.NotEmpty(t, chunks)
	for i := 1; i < len(chunks); i++ {
		assert.Greater(t, chunks[i].Start, chunks[i-1].Start)
		assert.Equal(t, i, chunks[i].Index)
	}
	for _, c := range chunks {
		assert.LessOrEqual(t, len([]rune(c.Text)), 100)
	}
}

func TestSplitRuneSafe(t *testing.T) {
	text := strings.Repeat("日本語のテキスト", 40)
	for _, c := range Split(text, Options{Size: 100}) {
		assert.True(t, strings.Contains(text, c.Text))
		assert.LessOrEqual(t, len([]rune(c.Text)), 100)
	}
}

func TestSplitSectionsAddsContextAndMergesShort(t *testing.T) {
	long := strings.Repeat("Setup takes a few minutes. ", 10)
	secs := []Section{
		{Heading: "Intro", Text: "tiny"},
		{Heading: "Install", Text: long},
		{Heading: "", Text: "   "},
	}
	out := SplitSections("Acme Docs", secs, Options{Size: 400})
	require.Len(t, out, 1)
	assert.Equal(t, "Install", out[0].Heading)
	assert.True(t, strings.HasPrefix(out[0].Text, "tiny"))
	assert.True(t, strings.HasPrefix(out[0].EmbedText, "Acme Docs › Install\n\n"))
}

func TestSplitSectionsTrailingShortKept(t *testing.T) {
	out := SplitSections("", []Section{{Heading: "FAQ", Text: "Short answer."}}, Options{})
	require.Len(t, out, 1)
	assert.Equal(t, "FAQ\n\nShort answer.", out[0].EmbedText)
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens(""))
	assert.Equal(t, 1, EstimateTokens("abc"))
	assert.Equal(t, 2, EstimateTokens("abcde"))
}
