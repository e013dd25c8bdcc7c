package command

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/parlor/chat-app/internal/bot"
	"github.com/parlor/chat-app/internal/metrics"
	"github.com/parlor/chat-app/internal/protocol"
)

// SystemSender is the sender name on synthetic error and status messages.
const SystemSender = "System"

// Injector re-enters a synthetic message into the message pipeline. Injected
// messages are rendered and broadcast like any other, but are never handed
// back to the dispatcher, so dispatch cannot recurse.
type Injector func(sender, body string)

// Dispatcher reacts to user messages: it parses the command grammar and runs
// recognized commands against the bot collaborator, injecting replies and
// errors as synthetic messages.
type Dispatcher struct {
	bots   bot.Service
	inject Injector
}

// NewDispatcher creates a Dispatcher talking to the given bot service.
func NewDispatcher(bots bot.Service, inject Injector) *Dispatcher {
	return &Dispatcher{bots: bots, inject: inject}
}

// React inspects one user-originated message. Plain chat is ignored. Errors
// of every kind, including collaborator failures, surface as System messages;
// React never fails.
func (d *Dispatcher) React(ctx context.Context, msg protocol.ChatMessage) {
	cmd, isCommand, err := Parse(msg.Body)
	if !isCommand {
		return
	}
	if err != nil {
		d.system(fmt.Sprintf("Invalid command:\n%v", err))
		return
	}

	switch cmd := cmd.(type) {
	case Query:
		metrics.CommandsTotal.WithLabelValues("query").Inc()
		resp, err := d.bots.GetResponse(ctx, cmd.Text, msg.Sender, cmd.Bot)
		if err != nil {
			log.Printf("command: bot query by %q failed: %v", msg.Sender, err)
			d.system(fmt.Sprintf("Bot could not respond:\n%v", err))
			return
		}
		d.inject(resp.BotName+" (Bot)", resp.Text)

	case Create:
		metrics.CommandsTotal.WithLabelValues("newbot").Inc()
		b := bot.Bot{
			Name:         cmd.Name,
			Owner:        msg.Sender,
			Instructions: cmd.Instructions,
			Language:     cmd.Language,
		}
		if err := d.bots.AddBot(b); err != nil {
			d.system(fmt.Sprintf("Could not create bot:\n%v", err))
			return
		}
		d.system(fmt.Sprintf("Bot %s created", cmd.Name))

	case Remove:
		metrics.CommandsTotal.WithLabelValues("removebot").Inc()
		if d.bots.RemoveBotByName(cmd.Name, msg.Sender) {
			d.system("Bot removed")
		} else {
			d.system("No such bot exists")
		}

	case List:
		metrics.CommandsTotal.WithLabelValues("listbots").Inc()
		names := make([]string, 0)
		for _, b := range d.bots.Bots() {
			names = append(names, "- "+b.Name)
		}
		d.system("Bots online:\n" + strings.Join(names, "\n"))

	case Help:
		metrics.CommandsTotal.WithLabelValues("help").Inc()
		d.system(HelpText)
	}
}

func (d *Dispatcher) system(body string) {
	d.inject(SystemSender, body)
}
