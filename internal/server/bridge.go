package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os/exec"
	"runtime"
	"strings"
	"time"
)

// CLISettings is the execution configuration snapshot a single invocation runs
// with. It is read once at call start and never re-read mid-call.
type CLISettings struct {
	Root    string
	Command string
	Args    string
}

func (s *Store) CLISettings() CLISettings {
	return CLISettings{
		Root:    s.GetSetting("CLI_ROOT", mustGetwd()),
		Command: s.GetSetting("CLI_COMMAND", "claude"),
		Args:    s.GetSetting("CLI_ARGS", "chat"),
	}
}

type InvokeRequest struct {
	Message        string
	ContextFiles   []string
	Model          string
	ConversationID *int64
	MessageID      *int64
}

type InvokeResult struct {
	Content   string
	SessionID string
}

// Bridge executes one request/response round-trip against the external CLI
// tool: spawn, write stdin, collect streams, classify, record, reply.
type Bridge struct {
	store   *Store
	monitor *Monitor
}

func NewBridge(store *Store, monitor *Monitor) *Bridge {
	return &Bridge{store: store, monitor: monitor}
}

// Invoke runs the configured command once with the composed prompt on stdin.
// The context is threaded through for future cancellation support but does not
// kill a running process: a hung tool blocks this call indefinitely, matching
// the no-timeout contract of the gateway protocol.
func (b *Bridge) Invoke(ctx context.Context, settings CLISettings, req InvokeRequest) (*InvokeResult, error) {
	_ = ctx
	start := time.Now()
	if b.monitor != nil {
		b.monitor.InvocationStarted()
	}

	stdin := composePrompt(req.Message, req.ContextFiles)
	args := resolveArgs(settings.Args, req.Model)

	call := &CLICall{
		ConversationID: req.ConversationID,
		MessageID:      req.MessageID,
		UserMessage:    req.Message,
		CLICommand:     settings.Command,
		CLIArgs:        settings.Args,
		ExecutionPath:  settings.Root,
		FullStdin:      &stdin,
	}
	if len(req.ContextFiles) > 0 {
		if enc, err := json.Marshal(req.ContextFiles); err == nil {
			files := string(enc)
			call.ContextFiles = &files
		}
	}
	if strings.TrimSpace(req.Model) != "" {
		model := req.Model
		call.Model = &model
	}

	if _, err := exec.LookPath(settings.Command); err != nil {
		return b.spawnFailure(call, start, err)
	}

	argv := shellArgv(settings.Command, args)
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = settings.Root
	cmd.Stdin = strings.NewReader(stdin + "\n")

	maxOut := cliMaxOutputBytes()
	stdout := newCappedBuffer(maxOut)
	stderr := newCappedBuffer(maxOut)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return b.spawnFailure(call, start, err)
	}

	exit := 0
	if err := cmd.Wait(); err != nil {
		var ee *exec.ExitError
		if errors.As(err, &ee) {
			exit = ee.ExitCode()
		} else {
			return b.spawnFailure(call, start, err)
		}
	}

	rawOut := strings.TrimSpace(stdout.String())
	rawErr := stderr.String()
	success := exit == 0 && rawOut != ""

	content := rawOut
	sessionID := ""
	if env, ok := parseEnvelope(stdout.String()); ok {
		if env.Result != nil {
			content = *env.Result
		}
		sessionID = strings.TrimSpace(env.SessionID)
	}

	call.ExitCode = &exit
	call.DurationMs = time.Since(start).Milliseconds()
	call.Success = success
	call.Response = content
	call.Error = rawErr
	if sessionID != "" {
		call.CLISessionID = &sessionID
	}
	b.record(call)
	if b.monitor != nil {
		b.monitor.InvocationFinished(success)
	}

	if !success {
		msg := rawErr
		if msg == "" {
			msg = "Failed to get response from the CLI"
		}
		return nil, errors.New(msg)
	}
	return &InvokeResult{Content: content, SessionID: sessionID}, nil
}

// spawnFailure records a call that never produced a process exit. The -1 exit
// code is the sentinel distinguishing spawn failures from real exits.
func (b *Bridge) spawnFailure(call *CLICall, start time.Time, cause error) (*InvokeResult, error) {
	exit := -1
	call.ExitCode = &exit
	call.DurationMs = time.Since(start).Milliseconds()
	call.Success = false
	call.Error = cause.Error()
	b.record(call)
	if b.monitor != nil {
		b.monitor.InvocationFinished(false)
	}
	return nil, fmt.Errorf("failed to start %s: %v. Make sure the CLI is installed and available in PATH", call.CLICommand, cause)
}

// record appends the invocation record. Storage failures are reported but
// never propagated: logging must not fail the user-visible operation.
func (b *Bridge) record(call *CLICall) {
	if b.store == nil {
		return
	}
	if _, err := b.store.LogCLICall(call); err != nil {
		log.Printf("Failed to log CLI call: %v", err)
	}
}

// resolveArgs splits the configured argument string on single spaces and
// appends the structured-output flags when absent. Multi-space separators are
// not collapsed; callers own the quality of the configured string.
func resolveArgs(argString, model string) []string {
	var args []string
	if argString != "" {
		args = strings.Split(argString, " ")
	}
	if !containsArg(args, "--print") {
		args = append(args, "--print")
	}
	if !containsArg(args, "--output-format") {
		args = append(args, "--output-format", "json")
	}
	if strings.TrimSpace(model) != "" {
		args = append(args, "--model", model)
	}
	return args
}

func containsArg(args []string, flag string) bool {
	for _, a := range args {
		if a == flag {
			return true
		}
	}
	return false
}

// shellArgv resolves the command through the host shell so PATH lookup and
// builtins behave the way they do in an interactive terminal.
func shellArgv(command string, args []string) []string {
	line := command
	if len(args) > 0 {
		line += " " + strings.Join(args, " ")
	}
	if runtime.GOOS == "windows" {
		return []string{"powershell", "-NoProfile", "-Command", line}
	}
	return []string{"sh", "-lc", line}
}
