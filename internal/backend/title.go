package backend

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/Piebald-AI/gemini-cli-desktop/internal/backend/launcher"
)

// titleMaxLen rejects model answers that are clearly not a title.
const titleMaxLen = 50

// titleFallbackLen is how much of the original message stands in when the
// model produces nothing usable.
const titleFallbackLen = 30

// GenerateConversationTitle asks a short-lived gemini child for a compact
// title of the conversation's opening message. When the model's answer is
// empty or implausibly long, a prefix of the message itself is used.
func (b *Backend) GenerateConversationTitle(ctx context.Context, message string, model string) (string, error) {
	if model == "" {
		model = b.cfg.TitleModel
	}
	if model == "" {
		model = b.cfg.DefaultModel
	}

	prompt := fmt.Sprintf(
		"Generate a short, concise title (3-6 words) for a conversation that starts with this user message: %q. Only return the title, nothing else.",
		truncateRunes(message, 200))

	cmd := launcher.PlainCommand(launcher.KindGemini, model)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return "", fmt.Errorf("open stdin pipe: %w", err)
	}

	type result struct {
		output []byte
		err    error
	}
	done := make(chan result, 1)
	go func() {
		output, err := cmd.Output()
		done <- result{output: output, err: err}
	}()

	if _, err := io.WriteString(stdin, prompt); err != nil {
		return "", fmt.Errorf("write title prompt: %w", err)
	}
	if err := stdin.Close(); err != nil {
		return "", fmt.Errorf("close title prompt: %w", err)
	}

	var res result
	select {
	case <-ctx.Done():
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
		<-done
		return "", ctx.Err()
	case res = <-done:
	}
	if res.err != nil {
		return "", fmt.Errorf("title generation failed: %w", res.err)
	}

	title := lastNonEmptyLine(string(res.output))
	title = strings.TrimSpace(strings.Trim(title, `"`))
	if title == "" || len(title) > titleMaxLen {
		return truncateRunes(message, titleFallbackLen), nil
	}
	return title, nil
}

// lastNonEmptyLine returns the final non-blank line of s; CLIs print their
// answer last, after any banners.
func lastNonEmptyLine(s string) string {
	lines := strings.Split(s, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if trimmed := strings.TrimSpace(lines[i]); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

// truncateRunes cuts s to at most n runes without splitting a character.
func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
