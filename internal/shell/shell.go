// Package shell is the line-oriented front end of the local application. It turns
// typed commands into Session Gate and library calls and prints the results.
package shell

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"go.uber.org/zap"

	"github.com/and161185/nextbest/internal/errs"
	"github.com/and161185/nextbest/internal/service"
	"github.com/and161185/nextbest/internal/session"
)

// ErrQuit is returned by Exec when the user asked to leave.
var ErrQuit = errors.New("quit")

// PasswordReader reads a secret without echoing it.
type PasswordReader func(prompt string) (string, error)

// Options tune a Shell. Zero values are usable.
type Options struct {
	Out      io.Writer
	Password PasswordReader
	// Timeout bounds every command; zero means no limit.
	Timeout time.Duration
	Log     *zap.Logger
}

type command struct {
	usage string
	help  string
	run   func(ctx context.Context, args []string) error
}

// Shell dispatches commands for one interactive session.
type Shell struct {
	gate    *session.Gate
	lib     service.LibraryService
	out     io.Writer
	readPw  PasswordReader
	timeout time.Duration
	log     *zap.Logger

	cmds map[string]command
}

// New builds a shell over gate and lib.
func New(gate *session.Gate, lib service.LibraryService, o Options) *Shell {
	s := &Shell{
		gate:    gate,
		lib:     lib,
		out:     o.Out,
		readPw:  o.Password,
		timeout: o.Timeout,
		log:     o.Log,
	}
	if s.out == nil {
		s.out = io.Discard
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	if s.readPw == nil {
		s.readPw = func(string) (string, error) {
			return "", fmt.Errorf("password required: %w", errs.ErrInvalidArgument)
		}
	}
	s.cmds = s.commandTable()
	return s
}

// Prompt reflects the session state.
func (s *Shell) Prompt() string {
	switch s.gate.State() {
	case session.StateBootstrap:
		return "nextbest (setup)> "
	case session.StateLoggedIn:
		ident, _ := s.gate.Identity()
		if ident.IsAdmin() {
			return ident.Username + "@nextbest# "
		}
		return ident.Username + "@nextbest> "
	default:
		return "nextbest> "
	}
}

// Exec runs one command line.
func (s *Shell) Exec(ctx context.Context, line string) error {
	args := ParseArgs(line)
	if len(args) == 0 {
		return nil
	}
	name := strings.ToLower(args[0])
	if name == "quit" || name == "exit" {
		return ErrQuit
	}
	cmd, ok := s.cmds[name]
	if !ok {
		return fmt.Errorf("unknown command %q, try help: %w", args[0], errs.ErrInvalidArgument)
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	return cmd.run(ctx, args[1:])
}

// Run reads commands until quit, EOF or ctx is done. Command errors are printed and
// the loop continues.
func (s *Shell) Run(ctx context.Context, rl *readline.Instance) error {
	for {
		rl.SetPrompt(s.Prompt())
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if line == "" {
				fmt.Fprintln(s.out, "Use 'quit' to exit.")
			}
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := s.Exec(ctx, line); err != nil {
			if errors.Is(err, ErrQuit) {
				return nil
			}
			s.PrintError(err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// known are the errors whose text is meant for the user.
var known = []error{
	errs.ErrNotFound, errs.ErrUnauthorized, errs.ErrForbidden, errs.ErrRateLimited,
	errs.ErrBootstrapRequired, errs.ErrDuplicateUsername, errs.ErrEmptyUsername,
	errs.ErrEmptyPassword, errs.ErrEmptyName, errs.ErrEmptyTitle, errs.ErrDuplicateFriend,
	errs.ErrDuplicateSuggestion, errs.ErrUnresolvedReference, errs.ErrInUse,
	errs.ErrInvalidArgument, errs.ErrSchemaMismatch, context.DeadlineExceeded,
}

// PrintError reports err to the user. Unexpected errors are logged and shown generically.
func (s *Shell) PrintError(err error) {
	for _, k := range known {
		if errors.Is(err, k) {
			fmt.Fprintln(s.out, "error:", err)
			return
		}
	}
	s.log.Error("command failed", zap.Error(err))
	fmt.Fprintln(s.out, "error: internal error, see log")
}

// ParseArgs splits a line on spaces; double quotes group words.
func ParseArgs(line string) []string {
	var (
		args    []string
		cur     strings.Builder
		quoted  bool
		started bool
	)
	for _, r := range line {
		switch {
		case r == '"':
			quoted = !quoted
			started = true
		case (r == ' ' || r == '\t') && !quoted:
			if started {
				args = append(args, cur.String())
				cur.Reset()
				started = false
			}
		default:
			cur.WriteRune(r)
			started = true
		}
	}
	if started {
		args = append(args, cur.String())
	}
	return args
}

// options separates key=value arguments whose key is in keys from positional ones.
func options(args []string, keys ...string) (pos []string, opts map[string]string, err error) {
	opts = map[string]string{}
	for _, a := range args {
		k, v, ok := strings.Cut(a, "=")
		if !ok || !contains(keys, strings.ToLower(k)) {
			pos = append(pos, a)
			continue
		}
		k = strings.ToLower(k)
		if _, dup := opts[k]; dup {
			return nil, nil, fmt.Errorf("%s given twice: %w", k, errs.ErrInvalidArgument)
		}
		opts[k] = v
	}
	return pos, opts, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func (s *Shell) printHelp(name string) error {
	if name == "" {
		names := make([]string, 0, len(s.cmds))
		for n := range s.cmds {
			names = append(names, n)
		}
		sort.Strings(names)
		fmt.Fprintln(s.out, "Commands:")
		for _, n := range names {
			fmt.Fprintf(s.out, "  %s\n", s.cmds[n].usage)
		}
		fmt.Fprintln(s.out, "  quit")
		fmt.Fprintln(s.out, "Use 'help <command>' for details.")
		return nil
	}
	cmd, ok := s.cmds[strings.ToLower(name)]
	if !ok {
		return fmt.Errorf("unknown command %q: %w", name, errs.ErrInvalidArgument)
	}
	fmt.Fprintf(s.out, "Syntax: %s\n%s\n", cmd.usage, cmd.help)
	return nil
}
