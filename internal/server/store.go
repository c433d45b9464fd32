package server

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
	mu sync.Mutex
}

func OpenStore(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		path = filepath.Join("data", "claudeui.db")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	s := &Store{db: db}
	if err := s.ensureSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	s.initDefaultSettings()
	s.initDefaultPrompts()
	return s, nil
}

func (s *Store) Close() {
	if s == nil || s.db == nil {
		return
	}
	_ = s.db.Close()
}

func (s *Store) ensureSchema() error {
	if s == nil || s.db == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	stmts := []string{
		`create table if not exists conversations (
			id integer primary key autoincrement,
			created_at text,
			updated_at text,
			title text,
			hidden integer default 0,
			selected_files text,
			model text,
			cli_session_id text
		);`,
		`create table if not exists messages (
			id integer primary key autoincrement,
			conversation_id integer not null,
			timestamp text,
			role text not null,
			content text not null
		);`,
		`create table if not exists cli_calls (
			id integer primary key autoincrement,
			conversation_id integer,
			message_id integer,
			timestamp text,
			user_message text not null,
			cli_command text not null,
			cli_args text,
			execution_path text not null,
			response text,
			error text,
			exit_code integer,
			duration_ms integer,
			success integer default 0,
			context_files text,
			full_stdin text,
			model text,
			cli_session_id text
		);`,
		`create table if not exists settings (
			key text primary key,
			value text not null,
			updated_at text
		);`,
		`create table if not exists prompts (
			id integer primary key autoincrement,
			name text unique not null,
			description text,
			prompt_text text not null,
			model text,
			created_at text,
			updated_at text
		);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func nowText() string {
	return time.Now().Format(time.RFC3339Nano)
}

// Settings

type Setting struct {
	Key       string `json:"key"`
	Value     string `json:"value"`
	UpdatedAt string `json:"updated_at"`
}

func (s *Store) GetSetting(key, fallback string) string {
	if s == nil || s.db == nil {
		return fallback
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var v string
	err := s.db.QueryRow(`select value from settings where key = ?`, key).Scan(&v)
	if err != nil {
		return fallback
	}
	return v
}

func (s *Store) SetSetting(key, value string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("store not open")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("invalid setting: empty key")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(
		`insert into settings(key,value,updated_at) values(?,?,?)
		 on conflict(key) do update set value=excluded.value, updated_at=excluded.updated_at`,
		key, value, nowText(),
	)
	return err
}

func (s *Store) Settings() ([]Setting, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("store not open")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.Query(`select key,value,coalesce(updated_at,'') from settings order by key asc`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Setting
	for rows.Next() {
		var st Setting
		if err := rows.Scan(&st.Key, &st.Value, &st.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func (s *Store) initDefaultSettings() {
	defaults := []struct{ key, value string }{
		{"CLI_ROOT", mustGetwd()},
		{"CLI_COMMAND", "claude"},
		{"CLI_ARGS", "chat"},
		{"DEFAULT_MODEL", "claude-sonnet-4-5-20250929"},
	}
	for _, d := range defaults {
		if s.GetSetting(d.key, "") == "" {
			_ = s.SetSetting(d.key, d.value)
		}
	}
}

func mustGetwd() string {
	cwd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return cwd
}

// Conversations

type Conversation struct {
	ID            int64   `json:"id"`
	CreatedAt     string  `json:"created_at"`
	UpdatedAt     string  `json:"updated_at"`
	Title         string  `json:"title"`
	Hidden        bool    `json:"hidden"`
	SelectedFiles *string `json:"selected_files"`
	Model         *string `json:"model"`
	CLISessionID  *string `json:"cli_session_id"`
}

func (s *Store) CreateConversation(title string, selectedFiles, model *string) (int64, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("store not open")
	}
	if strings.TrimSpace(title) == "" {
		title = "Untitled"
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := nowText()
	res, err := s.db.Exec(
		`insert into conversations(created_at,updated_at,title,hidden,selected_files,model) values(?,?,?,0,?,?)`,
		now, now, title, selectedFiles, model,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *Store) UpdateConversation(id int64, title string, selectedFiles, model *string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("store not open")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(
		`update conversations set updated_at=?, title=?, selected_files=?, model=? where id=?`,
		nowText(), title, selectedFiles, model, id,
	)
	return err
}

func (s *Store) SetConversationSessionID(id int64, sessionID string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("store not open")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`update conversations set cli_session_id=?, updated_at=? where id=?`, sessionID, nowText(), id)
	return err
}

const conversationColumns = `id,coalesce(created_at,''),coalesce(updated_at,''),coalesce(title,''),hidden,selected_files,model,cli_session_id`

func scanConversation(row interface{ Scan(...any) error }) (Conversation, error) {
	var c Conversation
	var hidden int
	err := row.Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt, &c.Title, &hidden, &c.SelectedFiles, &c.Model, &c.CLISessionID)
	if err != nil {
		return Conversation{}, err
	}
	c.Hidden = hidden != 0
	return c, nil
}

func (s *Store) GetConversation(id int64) (*Conversation, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("store not open")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := scanConversation(s.db.QueryRow(`select `+conversationColumns+` from conversations where id=?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Store) listConversations(query string) ([]Conversation, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("store not open")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) Conversations() ([]Conversation, error) {
	return s.listConversations(`select ` + conversationColumns + ` from conversations order by updated_at desc`)
}

func (s *Store) VisibleConversations() ([]Conversation, error) {
	return s.listConversations(`select ` + conversationColumns + ` from conversations where hidden = 0 order by updated_at desc`)
}

func (s *Store) HideConversation(id int64) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("store not open")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`update conversations set hidden = 1 where id = ?`, id)
	return err
}

// DeleteConversation removes the conversation with its messages and CLI call
// records. Deletion order matters: call records first, then messages, then the
// conversation row itself.
func (s *Store) DeleteConversation(id int64) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("store not open")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.Exec(`delete from cli_calls where conversation_id = ?`, id); err != nil {
		return err
	}
	if _, err := s.db.Exec(`delete from messages where conversation_id = ?`, id); err != nil {
		return err
	}
	_, err := s.db.Exec(`delete from conversations where id = ?`, id)
	return err
}

// Messages

type Message struct {
	ID             int64  `json:"id"`
	ConversationID int64  `json:"conversation_id"`
	Timestamp      string `json:"timestamp"`
	Role           string `json:"role"`
	Content        string `json:"content"`
}

func (s *Store) SaveMessage(conversationID int64, role, content string) (int64, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("store not open")
	}
	role = strings.TrimSpace(role)
	if role == "" {
		return 0, fmt.Errorf("invalid message: empty role")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.Exec(
		`insert into messages(conversation_id,timestamp,role,content) values(?,?,?,?)`,
		conversationID, nowText(), role, content,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *Store) Messages(conversationID int64) ([]Message, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("store not open")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.Query(
		`select id,conversation_id,coalesce(timestamp,''),role,content from messages where conversation_id = ? order by timestamp asc, id asc`,
		conversationID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Timestamp, &m.Role, &m.Content); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Prompts

type Prompt struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	PromptText  string  `json:"prompt_text"`
	Model       *string `json:"model"`
	CreatedAt   string  `json:"created_at"`
	UpdatedAt   string  `json:"updated_at"`
}

func (s *Store) CreatePrompt(name, description, promptText string, model *string) (int64, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("store not open")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, fmt.Errorf("invalid prompt: empty name")
	}
	if strings.TrimSpace(promptText) == "" {
		return 0, fmt.Errorf("invalid prompt: empty prompt_text")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := nowText()
	res, err := s.db.Exec(
		`insert into prompts(name,description,prompt_text,model,created_at,updated_at) values(?,?,?,?,?,?)`,
		name, description, promptText, model, now, now,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *Store) UpdatePrompt(id int64, description, promptText string, model *string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("store not open")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(
		`update prompts set description=?, prompt_text=?, model=?, updated_at=? where id=?`,
		description, promptText, model, nowText(), id,
	)
	return err
}

const promptColumns = `id,name,coalesce(description,''),prompt_text,model,coalesce(created_at,''),coalesce(updated_at,'')`

func scanPrompt(row interface{ Scan(...any) error }) (Prompt, error) {
	var p Prompt
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.PromptText, &p.Model, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (s *Store) GetPrompt(id int64) (*Prompt, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("store not open")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := scanPrompt(s.db.QueryRow(`select `+promptColumns+` from prompts where id=?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) GetPromptByName(name string) (*Prompt, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("store not open")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := scanPrompt(s.db.QueryRow(`select `+promptColumns+` from prompts where name=?`, name))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) Prompts() ([]Prompt, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("store not open")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.Query(`select ` + promptColumns + ` from prompts order by name asc`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Prompt
	for rows.Next() {
		p, err := scanPrompt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) DeletePrompt(id int64) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("store not open")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`delete from prompts where id = ?`, id)
	return err
}

const defaultSummarizationPrompt = `Please provide a comprehensive summary of the following file. Include:

1. **Purpose**: What is the main purpose of this file?
2. **Key Components**: What are the main sections, functions, or classes?
3. **Dependencies**: What libraries or modules does it depend on?
4. **Key Functionality**: What are the most important features or behaviors?
5. **Notable Patterns**: Are there any design patterns or architectural decisions worth mentioning?

Keep the summary concise but informative.`

func (s *Store) initDefaultPrompts() {
	if p, err := s.GetPromptByName("file-summarization"); err == nil && p == nil {
		model := "claude-3-5-haiku-20241022"
		_, _ = s.CreatePrompt("file-summarization", "Summarize the content of a file", defaultSummarizationPrompt, &model)
	}
}
