package bot

import (
	"strings"
)

// CommandAction represents the type of parsed command.
type CommandAction string

const (
	// CommandActionStats asks for all-time totals.
	CommandActionStats CommandAction = "stats"
	// CommandActionToday asks for the current local day.
	CommandActionToday CommandAction = "today"
	// CommandActionReport asks for yesterday's report on demand.
	CommandActionReport CommandAction = "report"
	// CommandActionHelp indicates a help request. /start maps here too.
	CommandActionHelp CommandAction = "help"
	// CommandActionUnknown indicates an unrecognized command.
	CommandActionUnknown CommandAction = "unknown"
)

// Command represents a parsed chat command.
type Command struct {
	Action CommandAction
	Args   string // text after the command word
	Raw    string // original text
}

// ParseCommand extracts a slash command from a message. It accepts both
// "/stats" and "/stats@botname". ok is false for plain text and for commands
// addressed to a different bot; botName may be empty to accept any address.
func ParseCommand(text, botName string) (Command, bool) {
	cmd := Command{Action: CommandActionUnknown, Raw: text}

	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "/") {
		return cmd, false
	}

	word, args, _ := strings.Cut(trimmed[1:], " ")
	name, target, addressed := strings.Cut(word, "@")
	if addressed && botName != "" && !strings.EqualFold(target, strings.TrimPrefix(botName, "@")) {
		return cmd, false
	}
	cmd.Args = strings.TrimSpace(args)

	switch strings.ToLower(name) {
	case "stats":
		cmd.Action = CommandActionStats
	case "today":
		cmd.Action = CommandActionToday
	case "report", "yesterday":
		cmd.Action = CommandActionReport
	case "help", "start":
		cmd.Action = CommandActionHelp
	}

	return cmd, true
}
