// ABOUTME: Interactive console application wiring synchronizers and coordinators
// ABOUTME: Scanner-driven command loop; live change events trigger redraw notices

package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/qualiver/agent-console/internal/botmode"
	"github.com/qualiver/agent-console/internal/profile"
	"github.com/qualiver/agent-console/internal/send"
	"github.com/qualiver/agent-console/internal/store"
	"github.com/qualiver/agent-console/internal/sync"
)

// App owns the interactive console session. All state flows through the
// synchronizers and coordinators; the app renders snapshots and routes
// operator commands.
type App struct {
	conversations *sync.Conversations
	messages      *sync.Messages
	botMode       *botmode.Coordinator
	sender        *send.Coordinator
	profile       *profile.Profile
	renderer      *Renderer
	logger        *slog.Logger
}

// New wires an App over the given store client and coordinators.
func New(conversations *sync.Conversations, messages *sync.Messages, botMode *botmode.Coordinator, sender *send.Coordinator, prof *profile.Profile, logger *slog.Logger) *App {
	if logger == nil {
		logger = slog.Default()
	}
	return &App{
		conversations: conversations,
		messages:      messages,
		botMode:       botMode,
		sender:        sender,
		profile:       prof,
		renderer:      NewRenderer(os.Stdout),
		logger:        logger.With("component", "console"),
	}
}

// Run performs the initial load, hooks up live-event observers, and enters
// the command loop until ctx is cancelled or input ends.
func (a *App) Run(ctx context.Context) error {
	// Remote updates to the selected conversation feed the bot-mode
	// coordinator and refresh the header line.
	a.conversations.OnSelectedUpdate(func(conv store.Conversation) {
		a.botMode.ObserveRemote(conv)
		a.renderer.Notice(fmt.Sprintf("conversation updated: bot %s", onOff(a.botMode.Effective(conv))))
	})
	a.messages.OnAppend(func(msg store.Message) {
		a.renderer.Message(msg)
	})

	if err := a.conversations.Start(ctx); err != nil {
		return err
	}
	defer a.conversations.Close()
	defer a.messages.Close()

	a.renderer.Greeting(a.profile.DisplayName)
	a.renderer.ConversationList(a.conversations.Snapshot(), "")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		a.prompt()

		input, err := readLine(ctx, scanner)
		if err != nil {
			if err == io.EOF || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("reading input: %w", err)
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			if quit := a.command(ctx, input); quit {
				return nil
			}
			continue
		}

		a.send(ctx, input)
	}
}

func (a *App) prompt() {
	if conv, ok := a.conversations.Selected(); ok {
		name := conv.ContactName
		if name == "" {
			name = conv.PhoneNumber
		}
		a.renderer.Prompt(name, a.botMode.Effective(conv))
	} else {
		a.renderer.Prompt("", false)
	}
}

// command dispatches a slash command. Returns true to exit the loop.
func (a *App) command(ctx context.Context, input string) bool {
	cmd, args, _ := strings.Cut(input, " ")
	args = strings.TrimSpace(args)

	switch cmd {
	case "/quit", "/exit", "/q":
		return true

	case "/help":
		a.renderer.Help()

	case "/list":
		selectedID := ""
		if conv, ok := a.conversations.Selected(); ok {
			selectedID = conv.ID
		}
		a.renderer.ConversationList(a.conversations.Snapshot(), selectedID)

	case "/open":
		a.open(ctx, args)

	case "/bot":
		a.toggleBot(ctx, args)

	case "/reload":
		if err := a.conversations.Load(ctx); err != nil {
			a.renderer.Error(err)
			break
		}
		selectedID := ""
		if conv, ok := a.conversations.Selected(); ok {
			selectedID = conv.ID
		}
		a.renderer.ConversationList(a.conversations.Snapshot(), selectedID)

	default:
		a.renderer.Notice(fmt.Sprintf("unknown command %s, try /help", cmd))
	}
	return false
}

// open selects a conversation by list position or id and reloads its log.
func (a *App) open(ctx context.Context, arg string) {
	if arg == "" {
		a.renderer.Notice("usage: /open <number|id>")
		return
	}

	id := arg
	if n, err := strconv.Atoi(arg); err == nil {
		list := a.conversations.Snapshot()
		if n < 1 || n > len(list) {
			a.renderer.Notice(fmt.Sprintf("no conversation #%d", n))
			return
		}
		id = list[n-1].ID
	}

	conv, changed := a.conversations.Select(id)
	if !changed {
		return
	}

	a.botMode.ObserveRemote(conv)
	if err := a.messages.SetConversation(ctx, conv.ID); err != nil {
		a.renderer.Error(err)
		return
	}
	a.renderer.ConversationHeader(conv, a.botMode.Effective(conv))
	for _, msg := range a.messages.Snapshot() {
		a.renderer.Message(msg)
	}
}

func (a *App) toggleBot(ctx context.Context, arg string) {
	conv, ok := a.conversations.Selected()
	if !ok {
		a.renderer.Notice("no conversation selected, /open one first")
		return
	}

	var target bool
	switch arg {
	case "on":
		target = true
	case "off":
		target = false
	default:
		a.renderer.Notice("usage: /bot on|off")
		return
	}

	if err := a.botMode.Toggle(ctx, conv, target); err != nil {
		a.renderer.Error(err)
		a.renderer.Notice(fmt.Sprintf("bot mode reverted to %s", onOff(a.botMode.Effective(conv))))
		return
	}
	a.renderer.Notice(fmt.Sprintf("bot %s for %s", onOff(target), conv.PhoneNumber))
}

func (a *App) send(ctx context.Context, content string) {
	conv, ok := a.conversations.Selected()
	if !ok {
		a.renderer.Notice("no conversation selected, /open one first")
		return
	}

	manualMode := !a.botMode.Effective(conv)
	if err := a.sender.Send(ctx, conv, content, manualMode); err != nil {
		a.renderer.Error(err)
	}
	// The sent message is rendered when its subscription echo arrives.
}

// readLine reads one line of input without blocking ctx cancellation.
func readLine(ctx context.Context, scanner *bufio.Scanner) (string, error) {
	inputCh := make(chan string, 1)
	errCh := make(chan error, 1)

	go func() {
		if scanner.Scan() {
			inputCh <- scanner.Text()
		} else {
			if err := scanner.Err(); err != nil {
				errCh <- err
			} else {
				errCh <- io.EOF
			}
		}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case err := <-errCh:
		return "", err
	case input := <-inputCh:
		return input, nil
	}
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}
