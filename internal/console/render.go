// ABOUTME: Terminal rendering for the console: conversation list, log, prompts
// ABOUTME: Sender-classified colors and bot-mode annotations via fatih/color

package console

import (
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"

	"github.com/qualiver/agent-console/internal/store"
)

// Renderer prints console output. It holds no state beyond the writer.
type Renderer struct {
	out io.Writer

	cyan   *color.Color
	green  *color.Color
	yellow *color.Color
	red    *color.Color
	faint  *color.Color
}

// NewRenderer creates a Renderer writing to out.
func NewRenderer(out io.Writer) *Renderer {
	return &Renderer{
		out:    out,
		cyan:   color.New(color.FgCyan),
		green:  color.New(color.FgGreen),
		yellow: color.New(color.FgYellow),
		red:    color.New(color.FgRed),
		faint:  color.New(color.Faint),
	}
}

// Greeting prints the session banner.
func (r *Renderer) Greeting(operator string) {
	fmt.Fprintf(r.out, "agent-console — signed in as %s\n", operator)
	fmt.Fprintln(r.out, "Type a message and press Enter. /help for commands. Ctrl+C to quit.")
	fmt.Fprintln(r.out)
}

// Help lists the available commands.
func (r *Renderer) Help() {
	fmt.Fprintln(r.out, "Commands:")
	fmt.Fprintln(r.out, "  /list           Show conversations, newest first")
	fmt.Fprintln(r.out, "  /open <n|id>    Open a conversation")
	fmt.Fprintln(r.out, "  /bot on|off     Toggle the automated responder")
	fmt.Fprintln(r.out, "  /reload         Refetch the conversation list")
	fmt.Fprintln(r.out, "  /help           Show this help")
	fmt.Fprintln(r.out, "  /quit           Exit")
}

// ConversationList prints the list in display order with selection marker.
func (r *Renderer) ConversationList(list []store.Conversation, selectedID string) {
	if len(list) == 0 {
		fmt.Fprintln(r.out, "No conversations yet.")
		return
	}
	for i, conv := range list {
		marker := " "
		if conv.ID == selectedID {
			marker = "*"
		}
		name := conv.ContactName
		if name == "" {
			name = conv.PhoneNumber
		}
		bot := r.red.Sprint("manual")
		if conv.BotActive {
			bot = r.green.Sprint("bot")
		}
		last := ""
		if !conv.LastMessageAt.IsZero() {
			last = r.faint.Sprint(conv.LastMessageAt.Local().Format("Jan 2 15:04"))
		}
		fmt.Fprintf(r.out, "%s %2d. %s  [%s]  %s\n", marker, i+1, r.cyan.Sprint(name), bot, last)
	}
}

// ConversationHeader prints the opened conversation's banner.
func (r *Renderer) ConversationHeader(conv store.Conversation, botActive bool) {
	name := conv.ContactName
	if name == "" {
		name = conv.PhoneNumber
	}
	mode := r.red.Sprint("manual mode")
	if botActive {
		mode = r.green.Sprint("bot active")
	}
	fmt.Fprintf(r.out, "\n— %s (%s) — %s —\n", r.cyan.Sprint(name), conv.PhoneNumber, mode)
}

// Message prints one log entry with sender classification and status.
func (r *Renderer) Message(msg store.Message) {
	var sender string
	switch msg.Sender {
	case store.SenderBot:
		sender = r.green.Sprint("bot")
	case store.SenderAgent:
		sender = r.yellow.Sprint("agent")
	default:
		sender = r.cyan.Sprint("user")
	}

	ts := r.faint.Sprint(msg.CreatedAt.Local().Format(time.Kitchen))
	line := fmt.Sprintf("%s %s: %s", ts, sender, msg.Content)
	if msg.MediaURL != "" {
		line += r.faint.Sprintf(" [media: %s]", msg.MediaURL)
	}
	if msg.Status == store.StatusFailed {
		line += r.red.Sprint(" (failed)")
	}
	if !msg.BotActive && msg.Sender == store.SenderAgent {
		line += r.faint.Sprint(" (manual)")
	}
	fmt.Fprintln(r.out, line)
}

// Prompt prints the input prompt with selection context.
func (r *Renderer) Prompt(name string, botActive bool) {
	if name == "" {
		fmt.Fprint(r.out, "> ")
		return
	}
	mode := "manual"
	if botActive {
		mode = "bot"
	}
	fmt.Fprintf(r.out, "[%s %s]> ", r.cyan.Sprint(name), r.faint.Sprint(mode))
}

// Notice prints an informational line.
func (r *Renderer) Notice(text string) {
	r.faint.Fprintf(r.out, "· %s\n", text)
}

// Error prints an operation error.
func (r *Renderer) Error(err error) {
	r.red.Fprintf(r.out, "error: %v\n", err)
}
