package server

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
)

// API exposes the CRUD surface over the store plus the file browsing and
// summarization endpoints. The chat path itself goes through the Gateway.
type API struct {
	store   *Store
	bridge  *Bridge
	tree    *FileTree
	monitor *Monitor
}

func NewAPI(store *Store, bridge *Bridge, tree *FileTree, monitor *Monitor) *API {
	return &API{store: store, bridge: bridge, tree: tree, monitor: monitor}
}

func (a *API) Routes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/health", a.monitor.healthHandler)
		r.Get("/stats", a.monitor.statsHandler)

		r.Route("/conversations", func(r chi.Router) {
			r.Get("/", a.handleListConversations)
			r.Get("/visible", a.handleListVisibleConversations)
			r.Post("/", a.handleCreateConversation)
			r.Get("/{id}", a.handleGetConversation)
			r.Put("/{id}", a.handleUpdateConversation)
			r.Put("/{id}/hide", a.handleHideConversation)
			r.Delete("/{id}", a.handleDeleteConversation)
			r.Get("/{id}/messages", a.handleListMessages)
			r.Post("/{id}/messages", a.handleSaveMessage)
		})

		r.Route("/cli-calls", func(r chi.Router) {
			r.Get("/", a.handleListCLICalls)
			r.Get("/{id}", a.handleGetCLICall)
		})

		r.Route("/settings", func(r chi.Router) {
			r.Get("/", a.handleListSettings)
			r.Get("/{key}", a.handleGetSetting)
			r.Put("/{key}", a.handleSetSetting)
		})

		r.Route("/prompts", func(r chi.Router) {
			r.Get("/", a.handleListPrompts)
			r.Post("/", a.handleCreatePrompt)
			r.Get("/{id}", a.handleGetPrompt)
			r.Put("/{id}", a.handleUpdatePrompt)
			r.Delete("/{id}", a.handleDeletePrompt)
		})

		r.Route("/files", func(r chi.Router) {
			r.Get("/", a.handleFileTree)
			r.Get("/content", a.handleFileContent)
			r.Post("/summarize", a.handleSummarizeFile)
		})
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

// Conversations

func (a *API) handleListConversations(w http.ResponseWriter, r *http.Request) {
	conversations, err := a.store.Conversations()
	if err != nil {
		log.Printf("Error fetching conversations: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch conversations")
		return
	}
	if conversations == nil {
		conversations = []Conversation{}
	}
	writeJSON(w, http.StatusOK, conversations)
}

func (a *API) handleListVisibleConversations(w http.ResponseWriter, r *http.Request) {
	conversations, err := a.store.VisibleConversations()
	if err != nil {
		log.Printf("Error fetching visible conversations: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch conversations")
		return
	}
	if conversations == nil {
		conversations = []Conversation{}
	}
	writeJSON(w, http.StatusOK, conversations)
}

func (a *API) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid conversation id")
		return
	}
	conversation, err := a.store.GetConversation(id)
	if err != nil {
		log.Printf("Error fetching conversation: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch conversation")
		return
	}
	if conversation == nil {
		writeError(w, http.StatusNotFound, "Conversation not found")
		return
	}
	writeJSON(w, http.StatusOK, conversation)
}

type conversationRequest struct {
	Title         string  `json:"title"`
	SelectedFiles *string `json:"selected_files"`
	Model         *string `json:"model"`
}

func (a *API) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	var req conversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	id, err := a.store.CreateConversation(req.Title, req.SelectedFiles, req.Model)
	if err != nil {
		log.Printf("Error creating conversation: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to create conversation")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "title": req.Title})
}

func (a *API) handleUpdateConversation(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid conversation id")
		return
	}
	var req conversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if err := a.store.UpdateConversation(id, req.Title, req.SelectedFiles, req.Model); err != nil {
		log.Printf("Error updating conversation: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to update conversation")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (a *API) handleHideConversation(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid conversation id")
		return
	}
	if err := a.store.HideConversation(id); err != nil {
		log.Printf("Error hiding conversation: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to hide conversation")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Conversation hidden"})
}

func (a *API) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid conversation id")
		return
	}
	if err := a.store.DeleteConversation(id); err != nil {
		log.Printf("Error deleting conversation: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to delete conversation")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Conversation permanently deleted"})
}

// Messages

func (a *API) handleListMessages(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid conversation id")
		return
	}
	messages, err := a.store.Messages(id)
	if err != nil {
		log.Printf("Error fetching messages: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch messages")
		return
	}
	if messages == nil {
		messages = []Message{}
	}
	writeJSON(w, http.StatusOK, messages)
}

type messageRequest struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func (a *API) handleSaveMessage(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid conversation id")
		return
	}
	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	messageID, err := a.store.SaveMessage(id, req.Role, req.Content)
	if err != nil {
		log.Printf("Error saving message: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to save message")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":              messageID,
		"conversation_id": id,
		"role":            req.Role,
		"content":         req.Content,
	})
}

// CLI calls

func (a *API) handleListCLICalls(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	calls, err := a.store.RecentCLICalls(limit)
	if err != nil {
		log.Printf("Error fetching CLI calls: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch CLI calls")
		return
	}
	if calls == nil {
		calls = []CLICall{}
	}
	writeJSON(w, http.StatusOK, calls)
}

func (a *API) handleGetCLICall(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid CLI call id")
		return
	}
	call, err := a.store.CLICallByID(id)
	if err != nil {
		log.Printf("Error fetching CLI call: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch CLI call")
		return
	}
	if call == nil {
		writeError(w, http.StatusNotFound, "CLI call not found")
		return
	}
	writeJSON(w, http.StatusOK, call)
}

// Settings

func (a *API) handleListSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := a.store.Settings()
	if err != nil {
		log.Printf("Error fetching settings: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch settings")
		return
	}
	if settings == nil {
		settings = []Setting{}
	}
	writeJSON(w, http.StatusOK, settings)
}

func (a *API) handleGetSetting(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	value := a.store.GetSetting(key, "")
	if value == "" {
		writeError(w, http.StatusNotFound, "Setting not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"key": key, "value": value})
}

type settingRequest struct {
	Value string `json:"value"`
}

func (a *API) handleSetSetting(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	var req settingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if req.Value == "" {
		writeError(w, http.StatusBadRequest, "Value is required")
		return
	}
	if err := a.store.SetSetting(key, req.Value); err != nil {
		log.Printf("Error updating setting: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to update setting")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "key": key, "value": req.Value})
}

// Prompts

func (a *API) handleListPrompts(w http.ResponseWriter, r *http.Request) {
	prompts, err := a.store.Prompts()
	if err != nil {
		log.Printf("Error fetching prompts: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch prompts")
		return
	}
	if prompts == nil {
		prompts = []Prompt{}
	}
	writeJSON(w, http.StatusOK, prompts)
}

type promptRequest struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	PromptText  string  `json:"prompt_text"`
	Model       *string `json:"model"`
}

func (a *API) handleCreatePrompt(w http.ResponseWriter, r *http.Request) {
	var req promptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	id, err := a.store.CreatePrompt(req.Name, req.Description, req.PromptText, req.Model)
	if err != nil {
		log.Printf("Error creating prompt: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to create prompt")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "name": req.Name})
}

func (a *API) handleGetPrompt(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid prompt id")
		return
	}
	prompt, err := a.store.GetPrompt(id)
	if err != nil {
		log.Printf("Error fetching prompt: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch prompt")
		return
	}
	if prompt == nil {
		writeError(w, http.StatusNotFound, "Prompt not found")
		return
	}
	writeJSON(w, http.StatusOK, prompt)
}

func (a *API) handleUpdatePrompt(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid prompt id")
		return
	}
	var req promptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if err := a.store.UpdatePrompt(id, req.Description, req.PromptText, req.Model); err != nil {
		log.Printf("Error updating prompt: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to update prompt")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (a *API) handleDeletePrompt(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid prompt id")
		return
	}
	if err := a.store.DeletePrompt(id); err != nil {
		log.Printf("Error deleting prompt: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to delete prompt")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// Files

func (a *API) handleFileTree(w http.ResponseWriter, r *http.Request) {
	root := a.store.GetSetting("CLI_ROOT", mustGetwd())
	nodes := a.tree.Nodes(root)
	if nodes == nil {
		nodes = []FileNode{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"root": root, "files": nodes})
}

func (a *API) handleFileContent(w http.ResponseWriter, r *http.Request) {
	filePath := r.URL.Query().Get("path")
	if filePath == "" {
		writeError(w, http.StatusBadRequest, "File path is required")
		return
	}
	root := a.store.GetSetting("CLI_ROOT", mustGetwd())
	abs, err := resolveUnderRoot(root, filePath)
	if err != nil {
		writeError(w, http.StatusForbidden, "Access denied")
		return
	}
	content, err := os.ReadFile(abs)
	if err != nil {
		log.Printf("Error reading file: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to read file")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"path": filePath, "content": string(content)})
}

type summarizeRequest struct {
	Path string `json:"path"`
}

// handleSummarizeFile runs the file-summarization prompt through the same
// bridge mechanics as a chat message, using the prompt's model or the
// DEFAULT_MODEL setting.
func (a *API) handleSummarizeFile(w http.ResponseWriter, r *http.Request) {
	var req summarizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if strings.TrimSpace(req.Path) == "" {
		writeError(w, http.StatusBadRequest, "File path is required")
		return
	}

	root := a.store.GetSetting("CLI_ROOT", mustGetwd())
	abs, err := resolveUnderRoot(root, req.Path)
	if err != nil {
		writeError(w, http.StatusForbidden, "Access denied")
		return
	}
	content, err := os.ReadFile(abs)
	if err != nil {
		log.Printf("Error reading file: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to read file")
		return
	}

	prompt, err := a.store.GetPromptByName("file-summarization")
	if err != nil || prompt == nil {
		writeError(w, http.StatusInternalServerError, "Summarization prompt not found")
		return
	}
	model := a.store.GetSetting("DEFAULT_MODEL", "")
	if prompt.Model != nil && strings.TrimSpace(*prompt.Model) != "" {
		model = *prompt.Model
	}

	message := fmt.Sprintf("%s\n\nFile: %s\n\n%s", prompt.PromptText, req.Path, string(content))
	settings := a.store.CLISettings()
	res, err := a.bridge.Invoke(r.Context(), settings, InvokeRequest{
		Message: message,
		Model:   model,
	})
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"path": req.Path, "summary": res.Content})
}
