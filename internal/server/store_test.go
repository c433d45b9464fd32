package server

import (
	"testing"
)

func TestStore_DefaultSettings(t *testing.T) {
	store := newTestStore(t)

	if got := store.GetSetting("CLI_COMMAND", ""); got != "claude" {
		t.Errorf("expected default CLI_COMMAND claude, got %q", got)
	}
	if got := store.GetSetting("CLI_ARGS", ""); got != "chat" {
		t.Errorf("expected default CLI_ARGS chat, got %q", got)
	}
	if got := store.GetSetting("CLI_ROOT", ""); got == "" {
		t.Error("expected CLI_ROOT to be initialized")
	}
	if got := store.GetSetting("DEFAULT_MODEL", ""); got == "" {
		t.Error("expected DEFAULT_MODEL to be initialized")
	}
	if got := store.GetSetting("MISSING_KEY", "fallback"); got != "fallback" {
		t.Errorf("expected fallback for missing key, got %q", got)
	}
}

func TestStore_SetSettingUpsert(t *testing.T) {
	store := newTestStore(t)

	if err := store.SetSetting("CLI_COMMAND", "mock-cli"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if got := store.GetSetting("CLI_COMMAND", ""); got != "mock-cli" {
		t.Errorf("expected updated value, got %q", got)
	}
	if err := store.SetSetting("", "x"); err == nil {
		t.Error("expected error for empty key")
	}

	settings, err := store.Settings()
	if err != nil {
		t.Fatalf("list settings: %v", err)
	}
	if len(settings) < 4 {
		t.Errorf("expected at least the 4 bootstrapped settings, got %d", len(settings))
	}
}

func TestStore_CLISettingsSnapshot(t *testing.T) {
	store := newTestStore(t)
	if err := store.SetSetting("CLI_ROOT", "/srv/project"); err != nil {
		t.Fatalf("set: %v", err)
	}

	s := store.CLISettings()
	if s.Root != "/srv/project" {
		t.Errorf("expected root from settings, got %q", s.Root)
	}
	if s.Command != "claude" || s.Args != "chat" {
		t.Errorf("unexpected snapshot: %+v", s)
	}
}

func TestStore_ConversationLifecycle(t *testing.T) {
	store := newTestStore(t)

	id, err := store.CreateConversation("First chat", nil, nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	c, err := store.GetConversation(id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if c == nil || c.Title != "First chat" || c.Hidden {
		t.Fatalf("unexpected conversation: %+v", c)
	}

	missing, err := store.GetConversation(9999)
	if err != nil {
		t.Fatalf("get missing: %v", err)
	}
	if missing != nil {
		t.Error("expected nil for missing conversation")
	}

	model := "opus"
	if err := store.UpdateConversation(id, "Renamed", nil, &model); err != nil {
		t.Fatalf("update: %v", err)
	}
	c, _ = store.GetConversation(id)
	if c.Title != "Renamed" || c.Model == nil || *c.Model != "opus" {
		t.Errorf("update not applied: %+v", c)
	}

	if err := store.SetConversationSessionID(id, "sess-1"); err != nil {
		t.Fatalf("set session id: %v", err)
	}
	c, _ = store.GetConversation(id)
	if c.CLISessionID == nil || *c.CLISessionID != "sess-1" {
		t.Errorf("session id not applied: %+v", c)
	}
}

func TestStore_HideAndVisible(t *testing.T) {
	store := newTestStore(t)

	a, _ := store.CreateConversation("a", nil, nil)
	b, _ := store.CreateConversation("b", nil, nil)

	if err := store.HideConversation(a); err != nil {
		t.Fatalf("hide: %v", err)
	}

	visible, err := store.VisibleConversations()
	if err != nil {
		t.Fatalf("visible: %v", err)
	}
	if len(visible) != 1 || visible[0].ID != b {
		t.Errorf("expected only conversation b visible, got %+v", visible)
	}

	all, err := store.Conversations()
	if err != nil {
		t.Fatalf("all: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("hide must not delete rows, got %d", len(all))
	}
}

func TestStore_DeleteConversationCascades(t *testing.T) {
	store := newTestStore(t)

	id, _ := store.CreateConversation("doomed", nil, nil)
	if _, err := store.SaveMessage(id, "user", "hello"); err != nil {
		t.Fatalf("save message: %v", err)
	}
	exit := 0
	if _, err := store.LogCLICall(&CLICall{
		ConversationID: &id,
		UserMessage:    "hello",
		CLICommand:     "claude",
		ExecutionPath:  "/tmp",
		ExitCode:       &exit,
		Success:        true,
	}); err != nil {
		t.Fatalf("log call: %v", err)
	}

	if err := store.DeleteConversation(id); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if c, _ := store.GetConversation(id); c != nil {
		t.Error("conversation still present after delete")
	}
	msgs, _ := store.Messages(id)
	if len(msgs) != 0 {
		t.Errorf("expected cascaded message delete, got %d", len(msgs))
	}
	n, _ := store.CountCLICalls()
	if n != 0 {
		t.Errorf("expected cascaded CLI call delete, got %d", n)
	}
}

func TestStore_MessagesOrdered(t *testing.T) {
	store := newTestStore(t)

	id, _ := store.CreateConversation("chat", nil, nil)
	if _, err := store.SaveMessage(id, "user", "first"); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := store.SaveMessage(id, "assistant", "second"); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := store.SaveMessage(id, "", "bad"); err == nil {
		t.Error("expected error for empty role")
	}

	msgs, err := store.Messages(id)
	if err != nil {
		t.Fatalf("messages: %v", err)
	}
	if len(msgs) != 2 || msgs[0].Content != "first" || msgs[1].Content != "second" {
		t.Errorf("unexpected message order: %+v", msgs)
	}
}

func TestStore_CLICallRoundTrip(t *testing.T) {
	store := newTestStore(t)

	exit := 2
	stdin := "full stdin text"
	files := `["a.md"]`
	model := "opus"
	sess := "s-123"
	id, err := store.LogCLICall(&CLICall{
		UserMessage:   "msg",
		CLICommand:    "claude",
		CLIArgs:       "chat",
		ExecutionPath: "/srv",
		Response:      "out",
		Error:         "err",
		ExitCode:      &exit,
		DurationMs:    120,
		Success:       false,
		ContextFiles:  &files,
		FullStdin:     &stdin,
		Model:         &model,
		CLISessionID:  &sess,
	})
	if err != nil {
		t.Fatalf("log: %v", err)
	}

	call, err := store.CLICallByID(id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if call == nil {
		t.Fatal("expected call record")
	}
	if call.UserMessage != "msg" || call.CLICommand != "claude" || call.CLIArgs != "chat" {
		t.Errorf("unexpected record: %+v", call)
	}
	if call.ExitCode == nil || *call.ExitCode != 2 || call.DurationMs != 120 || call.Success {
		t.Errorf("unexpected outcome fields: %+v", call)
	}
	if call.FullStdin == nil || *call.FullStdin != stdin {
		t.Errorf("full_stdin not preserved: %v", call.FullStdin)
	}
	if call.ContextFiles == nil || *call.ContextFiles != files {
		t.Errorf("context_files not preserved: %v", call.ContextFiles)
	}
	if call.Timestamp == "" {
		t.Error("expected timestamp assigned on insert")
	}

	if missing, err := store.CLICallByID(9999); err != nil || missing != nil {
		t.Errorf("expected nil for missing call, got %v, %v", missing, err)
	}

	if _, err := store.LogCLICall(nil); err == nil {
		t.Error("expected error for nil call")
	}
}

func TestStore_RecentCLICallsNewestFirst(t *testing.T) {
	store := newTestStore(t)

	for _, msg := range []string{"one", "two", "three"} {
		if _, err := store.LogCLICall(&CLICall{UserMessage: msg, CLICommand: "c", ExecutionPath: "/"}); err != nil {
			t.Fatalf("log: %v", err)
		}
	}

	calls, err := store.RecentCLICalls(2)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(calls) != 2 {
		t.Fatalf("expected limit applied, got %d", len(calls))
	}
	if calls[0].UserMessage != "three" || calls[1].UserMessage != "two" {
		t.Errorf("expected newest first, got %q then %q", calls[0].UserMessage, calls[1].UserMessage)
	}
}

func TestStore_DefaultPromptBootstrap(t *testing.T) {
	store := newTestStore(t)

	p, err := store.GetPromptByName("file-summarization")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if p == nil {
		t.Fatal("expected default file-summarization prompt")
	}
	if p.Model == nil || *p.Model == "" {
		t.Error("expected default prompt model")
	}

	// Reopening must not duplicate the bootstrap rows.
	prompts, err := store.Prompts()
	if err != nil {
		t.Fatalf("prompts: %v", err)
	}
	if len(prompts) != 1 {
		t.Errorf("expected exactly 1 bootstrapped prompt, got %d", len(prompts))
	}
}

func TestStore_PromptCRUD(t *testing.T) {
	store := newTestStore(t)

	id, err := store.CreatePrompt("review", "Code review", "Review this:", nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := store.CreatePrompt("", "", "text", nil); err == nil {
		t.Error("expected error for empty name")
	}

	model := "haiku"
	if err := store.UpdatePrompt(id, "Updated", "New text", &model); err != nil {
		t.Fatalf("update: %v", err)
	}
	p, _ := store.GetPrompt(id)
	if p == nil || p.Description != "Updated" || p.PromptText != "New text" {
		t.Errorf("update not applied: %+v", p)
	}

	if err := store.DeletePrompt(id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if p, _ := store.GetPrompt(id); p != nil {
		t.Error("prompt still present after delete")
	}
}
