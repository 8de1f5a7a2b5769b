package console

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/chzyer/readline"
)

// continuationPrompt is shown while a statement is incomplete.
const continuationPrompt = "   ...> "

// Config configures the interactive terminal.
type Config struct {
	Prompt      string
	HistoryFile string
}

// Terminal is the interactive line editor. It is created before the rest
// of the bridge so log output can be routed through Stderr without
// corrupting the prompt.
type Terminal struct {
	rl     *readline.Instance
	prompt string
}

// NewTerminal creates a line editor with history and dot-command completion.
func NewTerminal(cfg Config) (*Terminal, error) {
	prompt := cfg.Prompt
	if prompt == "" {
		prompt = "ircon> "
	}
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          prompt,
		HistoryFile:     cfg.HistoryFile,
		InterruptPrompt: "^C",
		EOFPrompt:       ".quit",
		AutoComplete: readline.NewPrefixCompleter(
			readline.PcItem(".tables"),
			readline.PcItem(".schema"),
			readline.PcItem(".devices"),
			readline.PcItem(".discover"),
			readline.PcItem(".help"),
			readline.PcItem(".quit"),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	return &Terminal{rl: rl, prompt: prompt}, nil
}

// Interactive reports whether stdin and stdout are both terminals.
func Interactive() bool {
	return readline.DefaultIsTerminal()
}

// Stdout returns a writer that coordinates with the prompt.
func (t *Terminal) Stdout() io.Writer {
	return t.rl.Stdout()
}

// Stderr returns a writer that coordinates with the prompt.
func (t *Terminal) Stderr() io.Writer {
	return t.rl.Stderr()
}

// Close restores the terminal. A blocked Run returns.
func (t *Terminal) Close() error {
	return t.rl.Close()
}

// Run reads statements until .quit, end of input or ctx is done. Errors
// from individual statements are printed and do not end the session.
// Ctrl-C discards the statement being typed.
func (t *Terminal) Run(ctx context.Context, c *Console) error {
	c.SetOutput(t.rl.Stdout())
	stop := context.AfterFunc(ctx, func() { t.rl.Close() })
	defer stop()
	fmt.Fprintln(t.rl.Stdout(), `Enter ".help" for usage hints.`)

	var buf Buffer
	for {
		if ctx.Err() != nil {
			return nil
		}

		if buf.Pending() {
			t.rl.SetPrompt(continuationPrompt)
		} else {
			t.rl.SetPrompt(t.prompt)
		}

		line, err := t.rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			buf.Reset()
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("reading input: %w", err)
		}

		for _, stmt := range buf.Feed(line) {
			err := c.Exec(ctx, stmt)
			if errors.Is(err, ErrQuit) {
				return nil
			}
			if err != nil {
				fmt.Fprintf(t.rl.Stderr(), "Error: %v\n", err)
			}
		}
	}
}
