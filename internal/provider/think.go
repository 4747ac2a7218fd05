package provider

import (
	"regexp"
	"strings"
)

var thinkBlockRe = regexp.MustCompile(`(?s)<think>.*?</think>`)

// StripThink removes complete <think>...</think> sections (and a trailing
// unterminated one, in case the model never closed it) from a finished
// response.
func StripThink(s string) string {
	s = thinkBlockRe.ReplaceAllString(s, "")
	if idx := strings.Index(s, "<think>"); idx >= 0 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}

// thinkFilter is a buffered state machine that strips <think>...</think>
// spans from a stream of chunks, even when the tags themselves are split
// across chunk boundaries.
type thinkFilter struct {
	inThink bool
	buf     strings.Builder
}

const (
	openTag  = "<think>"
	closeTag = "</think>"
)

// Feed processes one incoming chunk and returns the portion of visible
// (non-thinking) text it released. Partial tags are held in the internal
// buffer until they can be resolved by a subsequent chunk.
func (f *thinkFilter) Feed(chunk string) string {
	f.buf.WriteString(chunk)
	pending := f.buf.String()
	f.buf.Reset()

	var out strings.Builder
	for {
		if !f.inThink {
			idx := strings.Index(pending, openTag)
			if idx < 0 {
				if tail := longestSuffixPrefixOf(pending, openTag); tail > 0 {
					out.WriteString(pending[:len(pending)-tail])
					f.buf.WriteString(pending[len(pending)-tail:])
				} else {
					out.WriteString(pending)
				}
				break
			}
			out.WriteString(pending[:idx])
			pending = pending[idx+len(openTag):]
			f.inThink = true
		} else {
			idx := strings.Index(pending, closeTag)
			if idx < 0 {
				if tail := longestSuffixPrefixOf(pending, closeTag); tail > 0 {
					f.buf.WriteString(pending[len(pending)-tail:])
				}
				break
			}
			pending = pending[idx+len(closeTag):]
			f.inThink = false
		}
	}
	return out.String()
}

// longestSuffixPrefixOf returns the length of the longest suffix of s that
// is also a (possibly full) prefix of tag -- used to hold back a
// potentially-split tag until the next chunk arrives.
func longestSuffixPrefixOf(s, tag string) int {
	max := len(tag) - 1
	if max > len(s) {
		max = len(s)
	}
	for l := max; l > 0; l-- {
		if strings.HasSuffix(s, tag[:l]) {
			return l
		}
	}
	return 0
}
