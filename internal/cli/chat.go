// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// chat.go - Interactive chat REPL.
//
// USABILITY: Readline-style editing and history via liner.
//
// Plain lines are sent to the active chat and the answer is streamed
// back as it arrives. Lines starting with "/" are commands.

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"github.com/jeranaias/visionary/internal/app"
	"github.com/jeranaias/visionary/internal/chat"
	"github.com/jeranaias/visionary/internal/config"
	"github.com/jeranaias/visionary/internal/locale"
	"github.com/jeranaias/visionary/internal/model"
)

// =============================================================================
// INPUT HISTORY
// =============================================================================

// ChatCLI provides input history and line editing for interactive chat.
type ChatCLI struct {
	line        *liner.State
	historyFile string
}

// NewChatCLI creates a new ChatCLI with input history support.
func NewChatCLI() *ChatCLI {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	configDir, err := config.ConfigDir()
	if err != nil {
		configDir = os.TempDir()
	}
	c := &ChatCLI{
		line:        line,
		historyFile: filepath.Join(configDir, "chat_history"),
	}
	c.LoadHistory()
	return c
}

// LoadHistory loads command history from file.
func (c *ChatCLI) LoadHistory() {
	if f, err := os.Open(c.historyFile); err == nil {
		c.line.ReadHistory(f)
		f.Close()
	}
}

// ReadInput reads a line of input with the given prompt.
func (c *ChatCLI) ReadInput(prompt string) (string, error) {
	input, err := c.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		c.line.AppendHistory(input)
	}
	return input, nil
}

// SaveHistory persists command history to file with secure permissions.
func (c *ChatCLI) SaveHistory() {
	if err := config.EnsureConfigDir(); err != nil {
		return
	}
	f, err := os.OpenFile(c.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return
	}
	defer f.Close()
	c.line.WriteHistory(f)
}

// Close saves history and closes the liner.
func (c *ChatCLI) Close() {
	c.SaveHistory()
	c.line.Close()
}

// =============================================================================
// COMMAND
// =============================================================================

func newChatCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat (the default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runChat(cmd, flags)
		},
	}
}

func runChat(cmd *cobra.Command, flags *globalFlags) error {
	ctx := cmd.Context()
	s, err := openSession(ctx, flags)
	if err != nil {
		return err
	}
	defer s.Close()

	watchCtx, stopWatch := context.WithCancel(ctx)
	defer stopWatch()
	if w, err := config.NewWatcher(s.ConfigPath, s.Holder, s.Log); err != nil {
		s.Log.Warn().Err(err).Msg("config_watch_unavailable")
	} else {
		go w.Run(watchCtx)
	}

	in, closeIn, interactive := inputFor(cmd)
	defer closeIn()

	r := newREPL(s, in, cmd.OutOrStdout())
	if interactive && s.Config.UI.RenderMarkdown {
		r.md = newMarkdownRenderer(r.width - 4)
	}
	return r.run(ctx)
}

// =============================================================================
// REPL
// =============================================================================

// repl is one interactive chat session.
type repl struct {
	app     *app.App
	text    *locale.Printer
	done    <-chan app.Generation
	in      LineReader
	out     io.Writer
	confirm app.Confirmer
	md      *glamour.TermRenderer
	width   int
}

func newREPL(s *Session, in LineReader, out io.Writer) *repl {
	return &repl{
		app:     s.App,
		text:    s.Text,
		done:    s.Done,
		in:      in,
		out:     out,
		confirm: promptConfirmer{in: in},
		width:   GetTerminalWidth(),
	}
}

func (r *repl) run(ctx context.Context) error {
	fmt.Fprintln(r.out, TitleStyle.Render("Visionary")+" "+DimStyle.Render("v"+Version))
	fmt.Fprintln(r.out, DimStyle.Render("Type /help for commands, /quit to exit."))
	if c := r.app.Chats().Active(); c != nil {
		fmt.Fprintln(r.out, DimStyle.Render("Active chat: "+c.Title))
	}

	for {
		input, err := r.in.ReadInput(r.prompt())
		if err != nil {
			// Ctrl+C, Ctrl+D and EOF all end the session.
			fmt.Fprintln(r.out)
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			quit, err := r.handleCommand(ctx, input)
			if err != nil {
				fmt.Fprintf(r.out, "%s %v\n", ErrorStyle.Render("[Error]"), err)
			}
			if quit {
				return nil
			}
			continue
		}

		if err := r.send(ctx, input, false); err != nil {
			fmt.Fprintf(r.out, "%s %v\n", ErrorStyle.Render("[Error]"), err)
		}
	}
}

func (r *repl) prompt() string {
	return UserStyle.Render("visionary> ")
}

// =============================================================================
// MESSAGE PROCESSING
// =============================================================================

// send submits prompt to the active chat, creating one if needed, and
// blocks until the answer is final or the user interrupts.
func (r *repl) send(ctx context.Context, prompt string, isImage bool) error {
	if r.app.Chats().ActiveID() == "" {
		r.app.NewChat(ctx)
	}

	var printer *streamPrinter
	if !isImage && r.md == nil {
		printer = &streamPrinter{out: r.out}
		unsubscribe := r.app.Chats().Subscribe(printer.observe)
		defer unsubscribe()
	}

	ex, err := r.app.Send(ctx, prompt, isImage)
	if err != nil {
		return err
	}
	fmt.Fprintln(r.out, RenderRole(model.RoleAssistant))
	if printer != nil {
		printer.track(ex.ConversationID, ex.Placeholder.ID)
	} else {
		fmt.Fprintln(r.out, DimStyle.Render(messageBody(ex.Placeholder, r.text)))
	}

	waitCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()
	if !r.wait(waitCtx, ex.Placeholder.ID) {
		fmt.Fprintln(r.out)
		fmt.Fprintln(r.out, DimStyle.Render("(still generating in the background)"))
		return nil
	}

	conv, ok := r.app.Chats().Get(ex.ConversationID)
	if !ok {
		return nil
	}
	msg := conv.MessageByID(ex.Placeholder.ID)
	if msg == nil {
		return nil
	}
	if printer != nil {
		printer.finish(msg)
		return nil
	}
	r.printFinal(msg)
	return nil
}

// wait blocks until the generation for msgID ends. It reports false if
// ctx ended first.
func (r *repl) wait(ctx context.Context, msgID string) bool {
	for {
		select {
		case g := <-r.done:
			if g.MessageID == msgID {
				return true
			}
		case <-ctx.Done():
			return false
		}
	}
}

func (r *repl) printFinal(msg *model.Message) {
	body := messageBody(msg, r.text)
	switch msg.Status {
	case model.StatusFailed:
		fmt.Fprintln(r.out, ErrorStyle.Render(body))
	case model.StatusComplete:
		fmt.Fprintln(r.out, renderMarkdown(r.md, body))
	default:
		fmt.Fprintln(r.out, body)
	}
	fmt.Fprintln(r.out)
}

// streamPrinter writes the new tail of a streaming message each time the
// chat collection is republished.
type streamPrinter struct {
	mu      sync.Mutex
	out     io.Writer
	convID  string
	msgID   string
	printed string
}

func (p *streamPrinter) track(convID, msgID string) {
	p.mu.Lock()
	p.convID, p.msgID = convID, msgID
	p.printed = ""
	p.mu.Unlock()
}

func (p *streamPrinter) observe(snap chat.Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.msgID == "" {
		return
	}
	for _, c := range snap.Chats {
		if c.ID != p.convID {
			continue
		}
		if m := c.MessageByID(p.msgID); m != nil && m.Status == model.StatusStreaming {
			p.writeLocked(m.Content)
		}
		return
	}
}

// writeLocked prints the part of content not yet printed. Content that
// does not extend what was printed is ignored.
func (p *streamPrinter) writeLocked(content string) {
	if !strings.HasPrefix(content, p.printed) {
		return
	}
	fmt.Fprint(p.out, content[len(p.printed):])
	p.printed = content
}

// finish prints whatever the final state adds.
func (p *streamPrinter) finish(msg *model.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch msg.Status {
	case model.StatusComplete:
		p.writeLocked(msg.Content)
		fmt.Fprintln(p.out)
	case model.StatusFailed:
		if p.printed != "" {
			fmt.Fprintln(p.out)
		}
		fmt.Fprintln(p.out, ErrorStyle.Render(msg.Content))
	}
	fmt.Fprintln(p.out)
	p.msgID = ""
}

// =============================================================================
// SLASH COMMANDS
// =============================================================================

const chatHelp = `Commands:
  /new                     start a new chat
  /list                    list chats
  /switch <n|id>           make a chat active
  /show [n|id]             print a chat
  /image <prompt>          generate an image in the active chat
  /save [path]             save the latest image of the active chat
  /delete [n|id]           delete a chat (asks first)
  /clear                   delete all chats (asks first)
  /export [json|md] [dir]  export the active chat
  /settings                show generation settings
  /models                  list known models
  /set <key> <value>       change model, temperature or ratio
  /help                    show this help
  /quit                    exit`

// handleCommand runs one slash command. It reports whether the REPL
// should exit.
func (r *repl) handleCommand(ctx context.Context, input string) (bool, error) {
	name, arg, _ := strings.Cut(strings.TrimPrefix(input, "/"), " ")
	arg = strings.TrimSpace(arg)

	switch strings.ToLower(name) {
	case "quit", "exit", "q":
		return true, nil

	case "help", "h", "?":
		fmt.Fprintln(r.out, chatHelp)

	case "new":
		c := r.app.NewChat(ctx)
		fmt.Fprintln(r.out, SuccessStyle.Render("New chat")+" "+DimStyle.Render(shortID(c.ID)))

	case "list", "ls":
		snap := r.app.Chats().Snapshot()
		fmt.Fprintln(r.out, renderChatList(snap.Chats, snap.ActiveID, r.width))

	case "switch", "open":
		if arg == "" {
			return false, errors.New("usage: /switch <n|id>")
		}
		c, err := resolveChat(r.app.Chats().Snapshot(), arg)
		if err != nil {
			return false, err
		}
		if err := r.app.SelectChat(ctx, c.ID); err != nil {
			return false, err
		}
		fmt.Fprintln(r.out, DimStyle.Render("Active chat: "+c.Title))

	case "show":
		c, err := resolveChat(r.app.Chats().Snapshot(), arg)
		if err != nil {
			return false, err
		}
		fmt.Fprint(r.out, renderTranscript(c, r.text, r.md, r.width))

	case "image", "img":
		if arg == "" {
			return false, errors.New("usage: /image <prompt>")
		}
		return false, r.send(ctx, arg, true)

	case "save":
		return false, r.saveLatestImage(arg)

	case "delete", "rm":
		c, err := resolveChat(r.app.Chats().Snapshot(), arg)
		if err != nil {
			return false, err
		}
		deleted, err := r.app.DeleteChat(ctx, c.ID, r.confirm)
		if err != nil {
			return false, err
		}
		if deleted {
			fmt.Fprintln(r.out, SuccessStyle.Render("Deleted")+" "+c.Title)
		}

	case "clear":
		if r.app.ClearAll(ctx, r.confirm) {
			fmt.Fprintln(r.out, SuccessStyle.Render("All chats deleted"))
		}

	case "export":
		format, dir, _ := strings.Cut(arg, " ")
		id := r.app.Chats().ActiveID()
		if id == "" {
			return false, app.ErrNoActiveChat
		}
		if dir = strings.TrimSpace(dir); dir == "" {
			dir = "."
		}
		path, err := r.app.Export(id, dir, format)
		if err != nil {
			return false, err
		}
		fmt.Fprintln(r.out, SuccessStyle.Render("Exported to")+" "+path)

	case "settings":
		fmt.Fprintln(r.out, renderSettings(r.app.Settings().Get()))

	case "models":
		fmt.Fprintln(r.out, renderModels(r.app.Settings().Get().Model))

	case "set":
		key, value, _ := strings.Cut(arg, " ")
		if key == "" || strings.TrimSpace(value) == "" {
			return false, errors.New("usage: /set <model|temperature|ratio> <value>")
		}
		got, err := applySetting(ctx, r.app.Settings(), key, strings.TrimSpace(value))
		if err != nil {
			return false, err
		}
		fmt.Fprintf(r.out, "%s %s = %s\n", SuccessStyle.Render("Set"), key, got)

	default:
		return false, fmt.Errorf("unknown command /%s (try /help)", name)
	}
	return false, nil
}

// saveLatestImage writes the newest image of the active chat to path.
func (r *repl) saveLatestImage(path string) error {
	c := r.app.Chats().Active()
	if c == nil {
		return app.ErrNoActiveChat
	}
	for i := len(c.Messages) - 1; i >= 0; i-- {
		if m := c.Messages[i]; m.HasImage() {
			saved, err := saveImage(m.ImageURL, path, m.ID)
			if err != nil {
				return err
			}
			fmt.Fprintln(r.out, SuccessStyle.Render("Saved")+" "+saved)
			return nil
		}
	}
	return errors.New("no image in the active chat")
}
