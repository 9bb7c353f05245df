// Package cli is a line-based presentation layer over a chat session store.
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/PabloGalante/chatrelay/internal/app/chatsession"
	"github.com/PabloGalante/chatrelay/internal/domain"
)

const helpText = `commands:
  /new [name]     start a new thread and switch to it
  /use <id>       switch to thread <id>
  /list           list threads, newest first
  /rename <name>  rename the active thread
  /clear          clear the active thread's messages
  /history        print the active thread's messages
  /help           show this help
  /quit           exit
anything else is sent to the active thread`

type REPL struct {
	store *chatsession.Store
	out   io.Writer
}

func NewREPL(store *chatsession.Store, out io.Writer) *REPL {
	return &REPL{store: store, out: out}
}

// Run reads lines from in until EOF, /quit or ctx is done.
func (r *REPL) Run(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	r.prompt()

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil
		}

		quit, err := r.handle(ctx, scanner.Text())
		if err != nil {
			return err
		}
		if quit {
			return nil
		}
		r.prompt()
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	return nil
}

func (r *REPL) handle(ctx context.Context, line string) (bool, error) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "/") {
		return false, r.send(ctx, line)
	}

	cmd, arg, _ := strings.Cut(trimmed, " ")
	arg = strings.TrimSpace(arg)

	switch cmd {
	case "/quit", "/exit":
		return true, nil
	case "/help":
		r.printf("%s\n", helpText)
	case "/new":
		id := r.store.CreateThread(arg)
		r.printf("switched to new thread %d\n", id)
	case "/use":
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil {
			r.printf("usage: /use <id>\n")
			return false, nil
		}
		if err := r.store.SetActiveThread(domain.ThreadID(id)); err != nil {
			r.printf("no thread with id %d\n", id)
			return false, nil
		}
		r.history()
	case "/list":
		r.list()
	case "/rename":
		if err := r.store.RenameThread(r.store.ActiveThreadID(), arg); err != nil {
			return false, err
		}
	case "/clear":
		if err := r.store.ClearActiveThread(); err != nil {
			return false, err
		}
		r.printf("cleared\n")
	case "/history":
		r.history()
	default:
		r.printf("unknown command %s, try /help\n", cmd)
	}
	return false, nil
}

func (r *REPL) send(ctx context.Context, text string) error {
	out, err := r.store.SendMessage(ctx, text)
	if errors.Is(err, domain.ErrEmptyInput) {
		return nil
	}
	if err != nil {
		return err
	}

	r.printf("%s\n", out.AssistantMessage.Text)
	return nil
}

func (r *REPL) list() {
	state := r.store.Snapshot()
	for _, t := range state.Threads {
		marker := " "
		if t.ID == state.ActiveThreadID {
			marker = "*"
		}
		r.printf("%s %d  %s (%d messages)\n", marker, t.ID, t.Name, len(state.MessagesByThreadID[t.ID]))
	}
}

func (r *REPL) history() {
	msgs, err := r.store.Messages(r.store.ActiveThreadID())
	if err != nil {
		return
	}
	for _, m := range msgs {
		r.printf("[%s] %s\n", m.Sender, m.Text)
	}
}

func (r *REPL) prompt() {
	r.printf("%s> ", r.store.ActiveThread().Name)
}

func (r *REPL) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(r.out, format, args...)
}
