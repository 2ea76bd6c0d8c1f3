package slack

import (
	"regexp"
	"strings"
)

// DefaultAppCommand is the umbrella slash command: "/subtrack today".
const DefaultAppCommand = "/subtrack"

// mentionPattern matches a Slack-encoded user mention (<@U12345>) at the start.
var mentionPattern = regexp.MustCompile(`^<@[A-Z0-9]+(?:\|[^>]*)?>\s*`) //nolint:gochecknoglobals // compiled regexp

// SlashCommandText converts a slash command invocation into chat command text.
// The umbrella command takes the command word as its first argument
// ("/subtrack today" -> "/today", bare "/subtrack" -> "/help"); any other
// registered command is passed through ("/stats" -> "/stats").
func SlashCommandText(appCommand, command, text string) string {
	command = strings.ToLower(strings.TrimSpace(command))
	text = strings.TrimSpace(text)

	if command == strings.ToLower(appCommand) {
		if text == "" {
			return "/help"
		}
		return asCommand(text)
	}

	if text == "" {
		return command
	}
	return command + " " + text
}

// MentionText extracts chat command text from an app mention
// ("<@U1> stats" -> "/stats"). ok is false when text does not start with a mention.
func MentionText(text string) (string, bool) {
	trimmed := strings.TrimSpace(text)
	loc := mentionPattern.FindStringIndex(trimmed)
	if loc == nil {
		return "", false
	}

	rest := strings.TrimSpace(trimmed[loc[1]:])
	if rest == "" {
		return "/help", true
	}
	return asCommand(rest), true
}

// DirectText converts a direct message to chat command text ("today" -> "/today").
func DirectText(text string) string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return ""
	}
	return asCommand(trimmed)
}

func asCommand(s string) string {
	if strings.HasPrefix(s, "/") {
		return s
	}
	return "/" + s
}
