// Package mention splits a user message into ACP content blocks, turning
// @path tokens into resource links the agent can open.
//
// The parser never touches the filesystem: the token is passed through
// verbatim as the link URI and the working directory is context for the
// agent, not something to join paths against here.
package mention

import (
	"strings"
	"unicode"

	"github.com/Piebald-AI/gemini-cli-desktop/internal/backend/acp"
)

// delimiters are the characters that terminate a mention token, besides
// whitespace.
const delimiters = ",;!?()[]{}"

// Parse splits message into ordered text and resource_link content blocks.
// A mention is `@` followed by at least one token character, where the `@`
// is at the start of the message or preceded by whitespace; an embedded `@`
// (me@host.com) is plain text. A message with no mentions becomes exactly
// one text block, preserving the message byte-for-byte.
func Parse(message, workingDirectory string) []acp.ContentBlock {
	_ = workingDirectory // context only; paths are never resolved here

	var blocks []acp.ContentBlock
	runes := []rune(message)
	var text strings.Builder

	flush := func() {
		if text.Len() > 0 {
			blocks = append(blocks, acp.TextBlock(text.String()))
			text.Reset()
		}
	}

	i := 0
	for i < len(runes) {
		r := runes[i]
		if r == '@' && startsMention(runes, i) {
			token := readToken(runes, i+1)
			flush()
			blocks = append(blocks, acp.ResourceLinkBlock(token, linkName(token)))
			i += 1 + len([]rune(token))
			continue
		}
		text.WriteRune(r)
		i++
	}
	flush()

	if len(blocks) == 0 {
		// No mentions and no text still yields one (empty) text block so
		// callers always have prompt content.
		blocks = append(blocks, acp.TextBlock(message))
	}
	return blocks
}

// startsMention reports whether the '@' at index i opens a mention: it must
// not be glued to preceding text and must be followed by a token character.
func startsMention(runes []rune, i int) bool {
	if i > 0 && !unicode.IsSpace(runes[i-1]) {
		return false
	}
	return i+1 < len(runes) && isTokenRune(runes[i+1])
}

// readToken consumes token characters starting at index start.
func readToken(runes []rune, start int) string {
	end := start
	for end < len(runes) && isTokenRune(runes[end]) {
		end++
	}
	return string(runes[start:end])
}

// isTokenRune reports whether r can appear inside a mention token.
func isTokenRune(r rune) bool {
	return !unicode.IsSpace(r) && !strings.ContainsRune(delimiters, r)
}

// linkName derives the display name for a token: the final path segment
// when the token looks like a path, otherwise the token itself.
func linkName(token string) string {
	idx := strings.LastIndexAny(token, `/\`)
	if idx < 0 || idx == len(token)-1 {
		return token
	}
	return token[idx+1:]
}
