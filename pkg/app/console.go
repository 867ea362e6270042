package app

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/muesli/reflow/wordwrap"
	"github.com/muesli/reflow/wrap"

	"github.com/ilkoid/poncho-relay/pkg/pipeline"
	"github.com/ilkoid/poncho-relay/pkg/platform"
)

// Идентификаторы консольной платформы.
const (
	ConsolePlatformID = "console"
	ConsoleUserID     = "console-user"
	ConsoleSelfID     = "console-bot"
)

// ConsoleSender печатает ответы в writer.
type ConsoleSender struct {
	mu  sync.Mutex
	out io.Writer

	// Width — ширина переноса в колонках терминала, 0 = без переноса.
	// Широкие символы (CJK) занимают две колонки.
	Width int
}

// NewConsoleSender создаёт ConsoleSender.
func NewConsoleSender(out io.Writer) *ConsoleSender {
	return &ConsoleSender{out: out}
}

// Send реализует platform.Sender.
func (s *ConsoleSender) Send(ctx context.Context, event *platform.MessageEvent, result *platform.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := fmt.Fprintln(s.out, wrapText(result.Text(), s.Width))
	return err
}

// wrapText переносит по словам, а слова длиннее строки режет.
func wrapText(s string, width int) string {
	if width <= 0 {
		return s
	}
	return wrap.String(wordwrap.String(s, width), width)
}

// ConsoleEvent строит личное сообщение консольного пользователя.
func ConsoleEvent(text string) *platform.MessageEvent {
	return platform.NewMessageEvent(platform.EventInit{
		PlatformID:  ConsolePlatformID,
		MessageType: platform.FriendMessage,
		SenderID:    ConsoleUserID,
		SenderName:  "you",
		SelfID:      ConsoleSelfID,
		Components:  []platform.Component{platform.Plain(text)},
	})
}

// RunConsole — простая консольная петля: строка из in становится событием,
// ответы печатает Sender компонентов (обычно ConsoleSender на out).
//
// События обрабатываются синхронно, поэтому ask/WAIT работает построчно.
// Выход по "exit", "quit" или EOF.
func RunConsole(ctx context.Context, c *Components, in io.Reader, out io.Writer, prompt string) error {
	fmt.Fprintln(out, "Type 'exit' or 'quit' to exit")

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, prompt)
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "exit" || line == "quit" {
			fmt.Fprintln(out, "Goodbye!")
			break
		}
		if line == "" {
			continue
		}

		outcome := c.Handle(ctx, ConsoleEvent(line))
		switch outcome.Status {
		case pipeline.StatusDropped:
			fmt.Fprintf(out, "(dropped: %s)\n", outcome.Reason)
		case pipeline.StatusFailed:
			if outcome.Err != nil {
				fmt.Fprintf(out, "Error: %v\n", outcome.Err)
			}
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return scanner.Err()
}
