// Package repl implements the interactive reviewer console: an admin lists
// work waiting for review, inspects answers, edits them in review mode and
// approves or rejects, without leaving the terminal.
package repl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/chzyer/readline"
	"github.com/fatih/color"

	"github.com/evalflow/evalflow/internal/workflow"
)

// errExit ends the loop without reporting an error.
var errExit = errors.New("exit")

// REPL represents the interactive shell
type REPL struct {
	svc      *workflow.Service
	out      io.Writer
	actor    string
	history  string
	commands map[string]command
}

// command is a console command. args excludes the command name.
type command struct {
	usage   string
	desc    string
	handler func(ctx context.Context, args []string) error
}

// Config holds REPL configuration
type Config struct {
	Service *workflow.Service
	// Actor is the reviewer every command runs as
	Actor string
	// HistoryFile persists line history; empty keeps it in memory
	HistoryFile string
	// Out receives command output; defaults to stdout
	Out io.Writer
}

// New creates a new REPL instance
func New(cfg *Config) (*REPL, error) {
	if cfg.Service == nil {
		return nil, fmt.Errorf("workflow service is required")
	}
	if cfg.Actor == "" {
		return nil, fmt.Errorf("actor is required")
	}
	out := cfg.Out
	if out == nil {
		out = os.Stdout
	}

	r := &REPL{
		svc:     cfg.Service,
		out:     out,
		actor:   cfg.Actor,
		history: cfg.HistoryFile,
	}
	r.registerCommands()
	return r, nil
}

// Run starts the REPL loop
func (r *REPL) Run(ctx context.Context) error {
	cyan := color.New(color.FgCyan).SprintFunc()
	rl, err := readline.NewEx(&readline.Config{
		Prompt:            cyan("evalflow> "),
		HistoryFile:       r.history,
		AutoComplete:      r.completer(),
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
		Stdout:            r.out,
	})
	if err != nil {
		return fmt.Errorf("failed to create readline: %w", err)
	}
	defer rl.Close()

	r.printWelcome()

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			if errors.Is(err, io.EOF) {
				fmt.Fprintln(r.out, "\nGoodbye!")
				return nil
			}
			return err
		}

		if err := r.Exec(ctx, line); err != nil {
			if errors.Is(err, errExit) {
				return nil
			}
			red := color.New(color.FgRed).SprintFunc()
			fmt.Fprintf(r.out, "%s %v\n", red("Error:"), err)
		}
	}
}

// Exec runs a single console line.
func (r *REPL) Exec(ctx context.Context, line string) error {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return nil
	}
	cmd, ok := r.commands[parts[0]]
	if !ok {
		return fmt.Errorf("unknown command %q (try 'help')", parts[0])
	}
	return cmd.handler(ctx, parts[1:])
}

// registerCommands registers all built-in commands
func (r *REPL) registerCommands() {
	help := command{"help", "Show this help message", r.cmdHelp}
	exit := command{"exit", "Leave the console", r.cmdExit}
	r.commands = map[string]command{
		"help":         help,
		"?":            help,
		"exit":         exit,
		"quit":         exit,
		"whoami":       {"whoami", "Show the reviewer id", r.cmdWhoami},
		"progress":     {"progress <evaluation>", "Show evaluation progress and counts", r.cmdProgress},
		"availability": {"availability <evaluation>", "Show assigned and free dimensions", r.cmdAvailability},
		"pending":      {"pending <evaluation>", "List assignments waiting for review", r.cmdPending},
		"show":         {"show <assignment>", "Show one assignment", r.cmdShow},
		"answers":      {"answers <assignment>", "List the answers of an assignment", r.cmdAnswers},
		"history":      {"history <assignment> [limit]", "Show the audit trail", r.cmdHistory},
		"edit":         {"edit <assignment> <question> <value...>", "Correct an answer under review", r.cmdEdit},
		"approve":      {"approve <assignment> [comments...]", "Approve submitted work", r.cmdApprove},
		"reject":       {"reject <assignment> <comments...>", "Reject submitted work", r.cmdReject},
	}
}

func (r *REPL) completer() *readline.PrefixCompleter {
	var items []readline.PrefixCompleterInterface
	for _, name := range r.commandNames() {
		items = append(items, readline.PcItem(name))
	}
	return readline.NewPrefixCompleter(items...)
}

func (r *REPL) commandNames() []string {
	names := make([]string, 0, len(r.commands))
	for name := range r.commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// printWelcome prints the welcome message
func (r *REPL) printWelcome() {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	fmt.Fprintf(r.out, "\n%s\n", cyan("evalflow reviewer console"))
	fmt.Fprintf(r.out, "Signed in as %s\n\n", r.actor)
	fmt.Fprintln(r.out, "Type 'help' for available commands, 'exit' to quit")
	fmt.Fprintln(r.out)
}

// cmdHelp shows help information
func (r *REPL) cmdHelp(_ context.Context, _ []string) error {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()
	fmt.Fprintf(r.out, "\n%s\n\n", cyan("Available Commands:"))

	seen := map[string]bool{}
	for _, name := range r.commandNames() {
		cmd := r.commands[name]
		if seen[cmd.usage] {
			continue
		}
		seen[cmd.usage] = true
		fmt.Fprintf(r.out, "  %-42s %s\n", green(cmd.usage), cmd.desc)
	}
	fmt.Fprintln(r.out)
	return nil
}

func (r *REPL) cmdExit(_ context.Context, _ []string) error {
	green := color.New(color.FgGreen).SprintFunc()
	fmt.Fprintf(r.out, "\n%s Goodbye!\n", green("✓"))
	return errExit
}

func (r *REPL) cmdWhoami(_ context.Context, _ []string) error {
	fmt.Fprintln(r.out, r.actor)
	return nil
}

// need checks the argument count of a command.
func need(args []string, n int, usage string) error {
	if len(args) < n {
		return fmt.Errorf("usage: %s", usage)
	}
	return nil
}
