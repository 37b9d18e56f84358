package dialogue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collectItems(scanner *TagScanner, chunks ...string) []Item {
	var items []Item
	for _, chunk := range chunks {
		items = append(items, scanner.Feed(chunk)...)
	}
	return append(items, scanner.Flush()...)
}

func TestScannerFlushesCompleteSentences(t *testing.T) {
	var s TagScanner

	items := s.Feed("Hello there. How can I ")
	require.Len(t, items, 1)
	assert.Equal(t, ItemText, items[0].Kind)
	assert.Equal(t, "Hello there.", items[0].Text)

	items = s.Feed("help you today?")
	require.Len(t, items, 1)
	assert.Equal(t, "How can I help you today?", items[0].Text)

	assert.Empty(t, s.Flush())
}

func TestScannerFlushReleasesPartialSentence(t *testing.T) {
	var s TagScanner
	items := collectItems(&s, "One moment please")
	require.Len(t, items, 1)
	assert.Equal(t, "One moment please", items[0].Text)
}

func TestScannerRecognizesTagSplitAcrossChunks(t *testing.T) {
	var s TagScanner
	items := collectItems(&s, "Goodbye! <han", `gup />`)

	require.Len(t, items, 2)
	assert.Equal(t, "Goodbye!", items[0].Text)
	assert.Equal(t, ItemTag, items[1].Kind)
	assert.Equal(t, "hangup", items[1].Tag.Name)
}

func TestScannerFlushesTextBeforeTagMidSentence(t *testing.T) {
	var s TagScanner
	items := collectItems(&s, `Transferring you now <transfer to="sip:support@pbx" /> hold on.`)

	require.Len(t, items, 3)
	assert.Equal(t, "Transferring you now", items[0].Text)
	assert.Equal(t, "transfer", items[1].Tag.Name)
	assert.Equal(t, "sip:support@pbx", items[1].Tag.Attrs["to"])
	assert.Equal(t, "hold on.", items[2].Text)
}

func TestScannerCollectTagAttributes(t *testing.T) {
	var s TagScanner
	items := collectItems(&s, `<collect type="phone" var="user_phone" prompt="Enter your number" />`)

	require.Len(t, items, 1)
	tag := items[0].Tag
	assert.Equal(t, "collect", tag.Name)
	assert.Equal(t, "phone", tag.Attrs["type"])
	assert.Equal(t, "user_phone", tag.Attrs["var"])
	assert.Equal(t, "Enter your number", tag.Attrs["prompt"])
}

func TestScannerTreatsUnknownTagAsText(t *testing.T) {
	var s TagScanner
	items := collectItems(&s, "The result is <b>bold</b>.")

	require.NotEmpty(t, items)
	for _, item := range items {
		assert.Equal(t, ItemText, item.Kind)
	}
	var joined string
	for _, item := range items {
		joined += item.Text
	}
	assert.Contains(t, joined, "<b>bold</b>")
}

func TestScannerLessThanAsLiteralText(t *testing.T) {
	var s TagScanner
	items := collectItems(&s, "3 < 5 is true.")
	require.Len(t, items, 1)
	assert.Equal(t, "3 < 5 is true.", items[0].Text)
}

func TestScannerCJKSentenceEnders(t *testing.T) {
	var s TagScanner
	items := s.Feed("您好！请问有什么可以帮您？")
	require.Len(t, items, 2)
	assert.Equal(t, "您好！", items[0].Text)
	assert.Equal(t, "请问有什么可以帮您？", items[1].Text)
}

func TestScannerGotoSceneTag(t *testing.T) {
	var s TagScanner
	items := collectItems(&s, `Let me check. <goto scene="billing" />`)

	require.Len(t, items, 2)
	assert.Equal(t, "Let me check.", items[0].Text)
	assert.Equal(t, "goto", items[1].Tag.Name)
	assert.Equal(t, "billing", items[1].Tag.Attrs["scene"])
}

func TestParseTagRejectsMalformedAttributes(t *testing.T) {
	_, ok := parseTag(`<transfer to=unquoted />`)
	assert.False(t, ok)

	_, ok = parseTag(`<goto scene="open />`)
	assert.False(t, ok)
}
