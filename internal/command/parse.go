// Package command parses the in-band command grammar and dispatches
// recognized commands to the bot collaborator. Message bodies starting with
// the '%' sigil are commands; everything else is plain chat and is never
// parsed further.
package command

import (
	"errors"
	"strings"
	"unicode"
)

// Sigil marks a chat message as an in-band command.
const Sigil = '%'

// ErrInvalidCommand is returned for sigil-prefixed bodies that match no
// command form.
var ErrInvalidCommand = errors.New("invalid command or command syntax entered")

// Command is one parsed command. Exactly one of the concrete types below.
type Command interface {
	command()
}

// Query asks a bot a question. An empty Bot targets the default bot.
type Query struct {
	Bot  string
	Text string
}

// Create registers a new bot owned by the requester.
type Create struct {
	Name         string
	Language     string // empty unless a lang=<language> token was given
	Instructions string
}

// Remove removes a bot by name. Ownership is checked by the collaborator.
type Remove struct {
	Name string
}

// List asks for the bot roster.
type List struct{}

// Help asks for the static usage text.
type Help struct{}

func (Query) command()  {}
func (Create) command() {}
func (Remove) command() {}
func (List) command()   {}
func (Help) command()   {}

// HelpText is the static usage message returned for %help.
const HelpText = `Valid commands:
- %ai <message> - ask a question to the default bot (greg)
- %ask <bot> <message> - ask a question to a bot by name
- %newbot <name> [lang=<language>] <instructions> - create a new
bot that follows custom instructions
- %listbots - list bots by name
- %removebot <bot> - remove a bot (you can only remove a bot you created)
- %help - show this message`

// Parse inspects a message body. It returns (nil, false, nil) for plain chat,
// (cmd, true, nil) for a recognized command, and (nil, true, err) for a
// sigil-prefixed body that fails to parse.
func Parse(body string) (Command, bool, error) {
	if len(body) == 0 || body[0] != Sigil {
		return nil, false, nil
	}
	input := body[1:]

	fields := strings.Fields(input)
	if len(fields) == 0 {
		return nil, true, ErrInvalidCommand
	}

	switch fields[0] {
	case "ai":
		return Query{Text: rest(input, "ai")}, true, nil

	case "ask":
		if len(fields) <= 2 {
			return nil, true, ErrInvalidCommand
		}
		bot := fields[1]
		text := rest(rest(input, "ask"), bot)
		return Query{Bot: bot, Text: text}, true, nil

	case "help":
		return Help{}, true, nil

	case "newbot":
		if len(fields) <= 2 {
			return nil, true, ErrInvalidCommand
		}
		name := fields[1]
		instructions := rest(rest(input, "newbot"), name)
		var lang string
		if v, ok := strings.CutPrefix(fields[2], "lang="); ok {
			lang = v
			instructions = rest(instructions, fields[2])
		}
		return Create{Name: name, Language: lang, Instructions: instructions}, true, nil

	case "listbots":
		return List{}, true, nil

	case "removebot":
		name := rest(input, "removebot")
		if name == "" {
			return nil, true, ErrInvalidCommand
		}
		return Remove{Name: name}, true, nil

	default:
		return nil, true, ErrInvalidCommand
	}
}

// rest strips a leading token (plus the whitespace around it) from input and
// returns whatever follows. Any whitespace counts, including newlines, since
// message bodies are multi-line.
func rest(input, token string) string {
	s := strings.TrimLeftFunc(input, unicode.IsSpace)
	s = strings.TrimPrefix(s, token)
	return strings.TrimLeftFunc(s, unicode.IsSpace)
}
