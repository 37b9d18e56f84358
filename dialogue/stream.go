package dialogue

import (
	"strings"
	"unicode/utf8"
)

// Inline action markers the brain may embed in its text output.
var knownTags = map[string]struct{}{
	"hangup":   {},
	"transfer": {},
	"play":     {},
	"goto":     {},
	"collect":  {},
}

// A tag candidate longer than this cannot be one of ours; stop buffering and
// treat the '<' as literal text.
const maxTagLen = 512

type ItemKind int

const (
	ItemText ItemKind = iota
	ItemTag
)

type Tag struct {
	Name  string
	Attrs map[string]string
}

type Item struct {
	Kind ItemKind
	Text string
	Tag  Tag
}

// TagScanner incrementally recognizes action markers in streamed model
// output. Text is released sentence-by-sentence so synthesis can start
// before the model finishes; a marker is released only once its closing
// "/>" has been seen, buffering partial tag content across chunks instead of
// re-parsing from scratch.
type TagScanner struct {
	buf strings.Builder
}

// Feed appends a chunk and returns every item that became complete.
func (s *TagScanner) Feed(chunk string) []Item {
	s.buf.WriteString(chunk)
	return s.drain(false)
}

// Flush ends the stream, releasing any buffered text including a trailing
// partial sentence or an unterminated tag candidate.
func (s *TagScanner) Flush() []Item {
	return s.drain(true)
}

func (s *TagScanner) drain(eof bool) []Item {
	data := s.buf.String()
	s.buf.Reset()

	var items []Item
	emitText := func(text string) {
		if text != "" {
			items = append(items, Item{Kind: ItemText, Text: text})
		}
	}

	pending := ""
	for data != "" {
		open := strings.Index(data, "<")
		if open < 0 {
			pending += data
			data = ""
			break
		}

		pending += data[:open]
		data = data[open:]

		closing := strings.Index(data, ">")
		if closing < 0 {
			if eof || len(data) > maxTagLen || !couldBeTag(data) {
				// Not one of ours: the '<' is literal text.
				pending += data[:1]
				data = data[1:]
				continue
			}
			// Wait for the rest of the tag.
			break
		}

		tag, ok := parseTag(data[:closing+1])
		if !ok {
			pending += data[:1]
			data = data[1:]
			continue
		}

		// Everything before a marker is flushed even mid-sentence, so the
		// action fires at the position the model placed it.
		complete, rest := splitSentences(pending)
		for _, sentence := range complete {
			emitText(sentence)
		}
		emitText(strings.TrimSpace(rest))
		pending = ""

		items = append(items, Item{Kind: ItemTag, Tag: tag})
		data = data[closing+1:]
	}

	complete, rest := splitSentences(pending)
	for _, sentence := range complete {
		emitText(sentence)
	}
	if eof {
		emitText(strings.TrimSpace(rest))
	} else {
		s.buf.WriteString(rest)
		s.buf.WriteString(data)
	}
	return items
}

// couldBeTag reports whether a partial "<..." run may still grow into a
// recognized marker.
func couldBeTag(partial string) bool {
	body := partial[1:]
	name := body
	if i := strings.IndexAny(body, " \t\n/"); i >= 0 {
		name = body[:i]
	}
	for known := range knownTags {
		if strings.HasPrefix(known, name) || strings.HasPrefix(name, known) {
			return true
		}
	}
	return false
}

// parseTag accepts self-closing markers: <hangup />, <goto scene="x" />.
func parseTag(raw string) (Tag, bool) {
	inner := strings.TrimPrefix(raw, "<")
	inner = strings.TrimSuffix(inner, ">")
	inner = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(inner), "/"))
	if inner == "" {
		return Tag{}, false
	}

	name := inner
	rest := ""
	if i := strings.IndexAny(inner, " \t\n"); i >= 0 {
		name = inner[:i]
		rest = strings.TrimSpace(inner[i:])
	}
	if _, ok := knownTags[name]; !ok {
		return Tag{}, false
	}

	attrs := make(map[string]string)
	for rest != "" {
		eq := strings.Index(rest, "=")
		if eq < 0 {
			return Tag{}, false
		}
		key := strings.TrimSpace(rest[:eq])
		rest = strings.TrimSpace(rest[eq+1:])
		if !strings.HasPrefix(rest, `"`) {
			return Tag{}, false
		}
		end := strings.Index(rest[1:], `"`)
		if end < 0 {
			return Tag{}, false
		}
		attrs[key] = rest[1 : end+1]
		rest = strings.TrimSpace(rest[end+2:])
	}
	return Tag{Name: name, Attrs: attrs}, true
}

var sentenceEnders = map[rune]struct{}{
	'.': {}, '!': {}, '?': {}, '\n': {},
	'。': {}, '！': {}, '？': {}, '；': {},
}

// splitSentences returns complete sentences and the unfinished remainder.
func splitSentences(text string) ([]string, string) {
	var sentences []string
	start := 0
	for i, r := range text {
		if _, ok := sentenceEnders[r]; !ok {
			continue
		}
		end := i + utf8.RuneLen(r)
		sentence := strings.TrimSpace(text[start:end])
		if sentence != "" {
			sentences = append(sentences, sentence)
		}
		start = end
	}
	return sentences, text[start:]
}
