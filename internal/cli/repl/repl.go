package repl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"shodh/internal/backend"
	"shodh/internal/cli/command"
	"shodh/internal/cli/config"
	httpclient "shodh/internal/cli/http"
	"shodh/internal/cli/state"
	"shodh/internal/cli/watch"
	"shodh/internal/model"

	"github.com/chzyer/readline"
	"github.com/google/shlex"
)

const prompt = "shodh> "

// LineReader reads one line of input at a time.
type LineReader interface {
	Readline() (string, error)
	SetPrompt(prompt string)
	Close() error
}

// NewReadline creates a terminal line reader keeping history at historyPath.
func NewReadline(historyPath string) (LineReader, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          prompt,
		HistoryFile:     historyPath,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("init readline failed: %w", err)
	}
	return rl, nil
}

// Options configures a session.
type Options struct {
	Client       *httpclient.Client
	Commands     map[string]command.Command
	State        *state.SessionState
	StatePath    string
	PrettyJSON   bool
	PollInterval time.Duration
	// PushURL overrides the websocket endpoint derived from the base URL.
	PushURL     string
	DisablePush bool
	Out         io.Writer
}

// Session holds REPL state.
type Session struct {
	reader       LineReader
	client       *httpclient.Client
	commands     map[string]command.Command
	sessionState *state.SessionState
	statePath    string
	prettyJSON   bool
	pollInterval time.Duration
	pushURL      string
	disablePush  bool
	out          io.Writer
}

func New(reader LineReader, opts Options) *Session {
	st := opts.State
	if st == nil {
		st = &state.SessionState{}
	}
	out := opts.Out
	if out == nil {
		out = io.Discard
	}
	return &Session{
		reader:       reader,
		client:       opts.Client,
		commands:     opts.Commands,
		sessionState: st,
		statePath:    opts.StatePath,
		prettyJSON:   opts.PrettyJSON,
		pollInterval: opts.PollInterval,
		pushURL:      opts.PushURL,
		disablePush:  opts.DisablePush,
		out:          out,
	}
}

// Run reads commands until exit, end of input or ctx cancellation.
func (s *Session) Run(ctx context.Context) error {
	s.reader.SetPrompt(prompt)
	for {
		if ctx.Err() != nil {
			return nil
		}
		line, err := s.reader.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read input failed: %w", err)
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			s.printLine("bye")
			return nil
		}
		if s.handleSystemCommand(ctx, line) {
			continue
		}
		if err := s.handleCommand(ctx, line); err != nil {
			s.printLine("error: %v", err)
		}
	}
}

func (s *Session) handleSystemCommand(ctx context.Context, line string) bool {
	switch {
	case line == "help":
		s.printHelp()
	case strings.HasPrefix(line, "set "):
		s.handleSet(strings.TrimSpace(strings.TrimPrefix(line, "set ")))
	case strings.HasPrefix(line, "show "):
		s.handleShow(strings.TrimSpace(strings.TrimPrefix(line, "show ")))
	case line == "logout":
		*s.sessionState = state.SessionState{}
		if err := state.Clear(s.statePath); err != nil {
			s.printLine("clear state failed: %v", err)
			return true
		}
		s.printLine("session cleared")
	case line == "watch" || strings.HasPrefix(line, "watch "):
		if err := s.handleWatch(ctx, strings.TrimSpace(strings.TrimPrefix(line, "watch"))); err != nil {
			s.printLine("error: %v", err)
		}
	default:
		return false
	}
	return true
}

func (s *Session) handleSet(args string) {
	parts := strings.Fields(args)
	if len(parts) == 0 {
		s.printLine("usage: set base|timeout|user")
		return
	}
	switch parts[0] {
	case "base":
		if len(parts) < 2 {
			s.printLine("usage: set base http://127.0.0.1:3000")
			return
		}
		s.client.SetBaseURL(strings.TrimRight(parts[1], "/"))
		s.printLine("base set to %s", s.client.BaseURL())
	case "timeout":
		if len(parts) < 2 {
			s.printLine("usage: set timeout 10s")
			return
		}
		dur, err := time.ParseDuration(parts[1])
		if err != nil {
			s.printLine("invalid duration: %v", err)
			return
		}
		s.client.SetTimeout(dur)
		s.printLine("timeout set to %s", dur)
	case "user":
		if len(parts) < 2 {
			s.printLine("usage: set user <id> [name]")
			return
		}
		id, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil || id <= 0 {
			s.printLine("invalid user id: %s", parts[1])
			return
		}
		s.sessionState.UserID = id
		s.sessionState.Username = ""
		if len(parts) > 2 {
			s.sessionState.Username = strings.Join(parts[2:], " ")
		}
		if err := state.Save(s.statePath, *s.sessionState); err != nil {
			s.printLine("save state failed: %v", err)
			return
		}
		s.printLine("user set to %d", id)
	default:
		s.printLine("unknown set command")
	}
}

func (s *Session) handleShow(args string) {
	switch args {
	case "user":
		if s.sessionState.UserID <= 0 {
			s.printLine("user: <none>")
			return
		}
		if s.sessionState.Username != "" {
			s.printLine("user: %d (%s)", s.sessionState.UserID, s.sessionState.Username)
			return
		}
		s.printLine("user: %d", s.sessionState.UserID)
	case "config":
		s.printLine("base: %s", s.client.BaseURL())
		s.printLine("push: %s", s.currentPushURL())
		s.printLine("statePath: %s", s.statePath)
		s.printLine("pollInterval: %s", s.pollInterval)
		if s.sessionState.LastSubmissionID != "" {
			s.printLine("lastSubmission: %s", s.sessionState.LastSubmissionID)
		}
	default:
		s.printLine("usage: show user|config")
	}
}

func (s *Session) handleCommand(ctx context.Context, line string) error {
	tokens, err := shlex.Split(line)
	if err != nil {
		return fmt.Errorf("parse command failed: %w", err)
	}
	if len(tokens) < 2 {
		return fmt.Errorf("invalid command, use: <service> <action> key=value ...")
	}
	key := fmt.Sprintf("%s %s", tokens[0], tokens[1])
	cmd, ok := s.commands[key]
	if !ok {
		return fmt.Errorf("unknown command: %s", key)
	}
	params, err := parseParams(tokens[2:])
	if err != nil {
		return err
	}
	params.Canonicalize(cmd.Fields)

	s.applyParamShortcuts(cmd, params)
	if err := s.promptMissing(cmd, params); err != nil {
		return err
	}
	req, err := command.BuildRequest(cmd, params)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(ctx, req.Method, req.Path, req.Headers, req.Body)
	if err != nil {
		return err
	}

	switch {
	case cmd.Service == "contest" && cmd.Action == "leaderboard" && resp.StatusCode == http.StatusOK:
		if s.renderLeaderboard(resp) {
			return nil
		}
	case cmd.Service == "submit" && cmd.Action == "create" && resp.StatusCode == http.StatusOK:
		s.renderResponse(resp)
		return s.afterSubmit(ctx, resp.Body, params.Bool("watch"))
	}
	s.renderResponse(resp)
	return nil
}

func parseParams(tokens []string) (command.Params, error) {
	params := command.Params{}
	for _, token := range tokens {
		parts := strings.SplitN(token, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid param: %s", token)
		}
		params.Set(parts[0], parts[1])
	}
	return params, nil
}

func (s *Session) applyParamShortcuts(cmd command.Command, params command.Params) {
	if cmd.UsesUser && params.Get("user_id") == "" && s.sessionState.UserID > 0 {
		params.Set("user_id", strconv.FormatInt(s.sessionState.UserID, 10))
	}
	if cmd.Service == "submit" && cmd.Action == "create" {
		if params.Has("source_file") && !params.Has("code") {
			params.Set("code", "_file_")
		}
	}
}

func (s *Session) promptMissing(cmd command.Command, params command.Params) error {
	for _, field := range cmd.Fields {
		if !field.Required {
			continue
		}
		if params.Get(field.Name) != "" {
			continue
		}
		value, err := s.promptValue(field.Prompt)
		if err != nil {
			return err
		}
		params.Set(field.Name, value)
	}
	return nil
}

func (s *Session) promptValue(label string) (string, error) {
	s.reader.SetPrompt(label + ": ")
	defer s.reader.SetPrompt(prompt)
	line, err := s.reader.Readline()
	if err != nil {
		return "", fmt.Errorf("read input failed: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func (s *Session) afterSubmit(ctx context.Context, body []byte, follow bool) error {
	sub, err := model.DecodeSubmission(body)
	if err != nil {
		return fmt.Errorf("decode submission failed: %w", err)
	}
	s.sessionState.LastSubmissionID = sub.ID.String()
	if err := state.Save(s.statePath, *s.sessionState); err != nil {
		s.printLine("save state failed: %v", err)
	}
	if !follow {
		s.printLine("submission %s recorded, run `watch` to follow it", sub.ID)
		return nil
	}
	return s.follow(ctx, sub)
}

func (s *Session) handleWatch(ctx context.Context, args string) error {
	params, err := parseParams(strings.Fields(args))
	if err != nil {
		return err
	}
	id := params.Get("id")
	if id == "" {
		id = s.sessionState.LastSubmissionID
	}
	if id == "" {
		return fmt.Errorf("usage: watch id=<submission_id>")
	}
	return s.follow(ctx, model.Submission{ID: model.ID(id), Status: model.StatusPending})
}

func (s *Session) follow(ctx context.Context, initial model.Submission) error {
	fetcher, err := backend.NewWithHTTPClient(s.client.BaseURL(), s.client.HTTP())
	if err != nil {
		return err
	}
	pushURL := ""
	if !s.disablePush {
		pushURL = s.currentPushURL()
	}
	// Ctrl-C stops the watch and returns to the prompt.
	watchCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()
	final, err := watch.Run(watchCtx, watch.Options{
		Fetcher:  fetcher,
		Interval: s.pollInterval,
		PushURL:  pushURL,
		Out:      s.out,
	}, initial)
	if err != nil {
		if watchCtx.Err() != nil && ctx.Err() == nil {
			s.printLine("watch stopped: %s", watch.Format(final))
			return nil
		}
		return err
	}
	s.printLine("final: %s", watch.Format(final))
	return nil
}

func (s *Session) currentPushURL() string {
	if s.pushURL != "" {
		return s.pushURL
	}
	return config.PushURLFor(s.client.BaseURL())
}

func (s *Session) renderLeaderboard(resp httpclient.ResponseInfo) bool {
	var rows []model.LeaderboardEntry
	if err := json.Unmarshal(resp.Body, &rows); err != nil {
		return false
	}
	s.printLine("HTTP %d (%s)", resp.StatusCode, resp.Duration)
	if len(rows) == 0 {
		s.printLine("leaderboard is empty")
		return true
	}
	s.printLine("%-5s %-16s %8s %6s", "RANK", "USER", "SCORE", "SOLVED")
	for _, row := range rows {
		s.printLine("%-5d %-16s %8d %6d", row.Rank, row.Username, row.TotalScore, row.ProblemsSolved)
	}
	return true
}

func (s *Session) renderResponse(resp httpclient.ResponseInfo) {
	s.printLine("HTTP %d (%s) trace=%s", resp.StatusCode, resp.Duration, resp.TraceID)
	if len(resp.Body) == 0 {
		return
	}
	if s.prettyJSON {
		var raw interface{}
		if err := json.Unmarshal(resp.Body, &raw); err == nil {
			formatted, _ := json.MarshalIndent(raw, "", "  ")
			s.printLine("%s", string(formatted))
			return
		}
	}
	s.printLine("%s", string(resp.Body))
}

func (s *Session) printHelp() {
	s.printLine("usage: <service> <action> key=value ...")
	s.printLine("system: help | exit | logout | watch [id=...] | set base|timeout|user | show user|config")
	s.printLine("commands:")
	for _, key := range command.Keys(s.commands) {
		s.printLine("  %s", key)
	}
	s.printLine("examples:")
	s.printLine("  set user 1 alice")
	s.printLine("  contest join id=1")
	s.printLine("  submit create problem_id=1 contest_id=1 language=python source_file=./main.py watch=true")
}

func (s *Session) printLine(format string, args ...interface{}) {
	_, _ = fmt.Fprintf(s.out, format+"\n", args...)
}
