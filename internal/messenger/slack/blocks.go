package slack

import (
	"strings"

	slacklib "github.com/slack-go/slack"
)

// BuildReportBlocks renders a multi-line report as Block Kit blocks. The first
// line becomes a header; the rest is a markdown section.
func BuildReportBlocks(text string) []slacklib.Block {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	title, body, _ := strings.Cut(text, "\n")
	blocks := []slacklib.Block{
		slacklib.NewHeaderBlock(slacklib.NewTextBlockObject(slacklib.PlainTextType, title, true, false)),
	}

	if body = strings.TrimSpace(body); body != "" {
		blocks = append(blocks, slacklib.NewSectionBlock(
			slacklib.NewTextBlockObject(slacklib.MarkdownType, body, false, false),
			nil,
			nil,
		))
	}

	return blocks
}
