// Package bot implements the bot collaborator: an in-memory registry of chat
// bots plus an OpenAI-compatible chat-completions client that answers their
// queries. The chat core only depends on the Service interface; everything
// else here is the built-in implementation.
package bot

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// DefaultBotName is the built-in bot that answers %ai queries.
const DefaultBotName = "greg"

const defaultInstructions = "You are a helpful assistant in a small group " +
	"chat room. Keep replies short, conversational, and in plain Markdown."

// Bot is one registered bot.
type Bot struct {
	Name         string
	Owner        string // empty for the built-in bot
	Instructions string
	Language     string // constrains the reply language when set
}

// Response is a bot's answer to a query.
type Response struct {
	BotName string
	Text    string
}

// Service is the collaborator interface the command dispatcher consumes.
type Service interface {
	// GetResponse answers query on behalf of requester. An empty botName
	// targets the default bot; an unknown name is an error.
	GetResponse(ctx context.Context, query, requester, botName string) (Response, error)
	// Bots returns the roster, sorted by name.
	Bots() []Bot
	// AddBot registers b. Registering an existing name is an error.
	AddBot(b Bot) error
	// RemoveBotByName removes the named bot if requester owns it. It reports
	// whether a bot was removed.
	RemoveBotByName(name, requester string) bool
}

// Completer produces a completion for a system prompt and user prompt. It is
// the seam between the registry and the LLM transport.
type Completer interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// Registry is the in-memory Service implementation. It is process-lifetime
// only; bots do not survive restarts.
type Registry struct {
	completer Completer

	mu   sync.Mutex
	bots map[string]Bot
}

// NewRegistry creates a Registry seeded with the built-in default bot.
func NewRegistry(completer Completer) *Registry {
	r := &Registry{
		completer: completer,
		bots:      make(map[string]Bot),
	}
	r.bots[DefaultBotName] = Bot{
		Name:         DefaultBotName,
		Instructions: defaultInstructions,
	}
	return r
}

// GetResponse implements Service.
func (r *Registry) GetResponse(ctx context.Context, query, requester, botName string) (Response, error) {
	if botName == "" {
		botName = DefaultBotName
	}

	r.mu.Lock()
	b, ok := r.bots[botName]
	r.mu.Unlock()
	if !ok {
		return Response{}, fmt.Errorf("bot: no bot named %q", botName)
	}

	system := b.Instructions
	if b.Language != "" {
		system += fmt.Sprintf(" Respond only in %s.", b.Language)
	}

	prompt := strings.TrimSpace(query)
	if requester != "" {
		prompt = fmt.Sprintf("%s asks: %s", requester, prompt)
	}

	text, err := r.completer.Complete(ctx, system, prompt)
	if err != nil {
		return Response{}, fmt.Errorf("bot: %q completion failed: %w", b.Name, err)
	}
	return Response{BotName: b.Name, Text: text}, nil
}

// Bots implements Service.
func (r *Registry) Bots() []Bot {
	r.mu.Lock()
	out := make([]Bot, 0, len(r.bots))
	for _, b := range r.bots {
		out = append(out, b)
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// AddBot implements Service.
func (r *Registry) AddBot(b Bot) error {
	if strings.TrimSpace(b.Name) == "" {
		return fmt.Errorf("bot: name is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.bots[b.Name]; exists {
		return fmt.Errorf("bot: a bot named %q already exists", b.Name)
	}
	r.bots[b.Name] = b
	return nil
}

// RemoveBotByName implements Service. The built-in bot has no owner and can
// never be removed.
func (r *Registry) RemoveBotByName(name, requester string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.bots[name]
	if !ok || b.Owner == "" || b.Owner != requester {
		return false
	}
	delete(r.bots, name)
	return true
}
