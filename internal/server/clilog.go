package server

import (
	"database/sql"
	"fmt"
)

// CLICall is the durable record of one bridge invocation attempt. Every call
// produces exactly one row, whether the process ran, failed, or never started.
type CLICall struct {
	ID             int64   `json:"id"`
	ConversationID *int64  `json:"conversation_id"`
	MessageID      *int64  `json:"message_id"`
	Timestamp      string  `json:"timestamp"`
	UserMessage    string  `json:"user_message"`
	CLICommand     string  `json:"cli_command"`
	CLIArgs        string  `json:"cli_args"`
	ExecutionPath  string  `json:"execution_path"`
	Response       string  `json:"response"`
	Error          string  `json:"error"`
	ExitCode       *int    `json:"exit_code"`
	DurationMs     int64   `json:"duration_ms"`
	Success        bool    `json:"success"`
	ContextFiles   *string `json:"context_files"`
	FullStdin      *string `json:"full_stdin"`
	Model          *string `json:"model"`
	CLISessionID   *string `json:"cli_session_id"`
}

func (s *Store) LogCLICall(call *CLICall) (int64, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("store not open")
	}
	if call == nil {
		return 0, fmt.Errorf("invalid CLI call: nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	success := 0
	if call.Success {
		success = 1
	}
	res, err := s.db.Exec(
		`insert into cli_calls(
			conversation_id,message_id,timestamp,user_message,cli_command,cli_args,
			execution_path,response,error,exit_code,duration_ms,success,
			context_files,full_stdin,model,cli_session_id
		) values(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		call.ConversationID,
		call.MessageID,
		nowText(),
		call.UserMessage,
		call.CLICommand,
		call.CLIArgs,
		call.ExecutionPath,
		call.Response,
		call.Error,
		call.ExitCode,
		call.DurationMs,
		success,
		call.ContextFiles,
		call.FullStdin,
		call.Model,
		call.CLISessionID,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

const cliCallColumns = `id,conversation_id,message_id,coalesce(timestamp,''),user_message,
	cli_command,coalesce(cli_args,''),execution_path,coalesce(response,''),coalesce(error,''),
	exit_code,coalesce(duration_ms,0),success,context_files,full_stdin,model,cli_session_id`

func scanCLICall(row interface{ Scan(...any) error }) (CLICall, error) {
	var c CLICall
	var success int
	err := row.Scan(
		&c.ID, &c.ConversationID, &c.MessageID, &c.Timestamp, &c.UserMessage,
		&c.CLICommand, &c.CLIArgs, &c.ExecutionPath, &c.Response, &c.Error,
		&c.ExitCode, &c.DurationMs, &success, &c.ContextFiles, &c.FullStdin,
		&c.Model, &c.CLISessionID,
	)
	if err != nil {
		return CLICall{}, err
	}
	c.Success = success != 0
	return c, nil
}

func (s *Store) RecentCLICalls(limit int) ([]CLICall, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("store not open")
	}
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.Query(`select `+cliCallColumns+` from cli_calls order by id desc limit ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []CLICall
	for rows.Next() {
		c, err := scanCLICall(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) CLICallByID(id int64) (*CLICall, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("store not open")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := scanCLICall(s.db.QueryRow(`select `+cliCallColumns+` from cli_calls where id=?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Store) CountCLICalls() (int64, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("store not open")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	if err := s.db.QueryRow(`select count(1) from cli_calls`).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}
