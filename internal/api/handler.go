package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/anthropics/chat-autopilot/internal/biz/domain"
	"github.com/anthropics/chat-autopilot/internal/biz/repo"
	"github.com/anthropics/chat-autopilot/internal/biz/usecase"
	"github.com/anthropics/chat-autopilot/internal/registry"
	"github.com/anthropics/chat-autopilot/internal/service"
)

// Server exposes the command surface consumed by the UI layer. Every
// operation answers a {success, ...}-shaped JSON object; errors never cross
// the boundary as anything else.
type Server struct {
	reg        *registry.Registry
	dispatcher *service.Dispatcher
	rules      repo.RuleRepo
	templates  repo.TemplateRepo

	server *http.Server
	port   int
}

// NewServer creates a new API server.
func NewServer(reg *registry.Registry, dispatcher *service.Dispatcher, rules repo.RuleRepo, templates repo.TemplateRepo, port int) *Server {
	return &Server{
		reg:        reg,
		dispatcher: dispatcher,
		rules:      rules,
		templates:  templates,
		port:       port,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:    fmt.Sprintf("127.0.0.1:%d", s.port),
		Handler: s.Handler(),
	}

	fmt.Printf("[API] Starting HTTP server on port %d\n", s.port)
	return s.server.ListenAndServe()
}

// Stop stops the HTTP server.
func (s *Server) Stop() error {
	if s.server != nil {
		return s.server.Shutdown(context.Background())
	}
	return nil
}

// Handler returns the route table. Split out from Start so tests can drive
// it through httptest without binding a port.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Account lifecycle
	mux.HandleFunc("/api/accounts", s.handleAccounts)
	mux.HandleFunc("/api/accounts/connect", s.handleConnect)
	mux.HandleFunc("/api/accounts/disconnect", s.handleDisconnect)
	mux.HandleFunc("/api/accounts/status", s.handleStatus)

	// Auto-reply switch
	mux.HandleFunc("/api/autoreply", s.handleAutoReplySwitch)

	// Sending
	mux.HandleFunc("/api/send", s.handleSend)
	mux.HandleFunc("/api/send/bulk", s.handleSendBulk)
	mux.HandleFunc("/api/send/multi", s.handleSendMulti)

	// Chats and message log
	mux.HandleFunc("/api/chats", s.handleChats)
	mux.HandleFunc("/api/messages", s.handleMessages)
	mux.HandleFunc("/api/history", s.handleHistory)

	// Rule management
	mux.HandleFunc("/api/rules", s.handleRules)
	mux.HandleFunc("/api/rules/stats", s.handleRuleStats)
	mux.HandleFunc("/api/rules/import", s.handleRuleImport)
	mux.HandleFunc("/api/rules/export", s.handleRuleExport)
	mux.HandleFunc("/api/rules/", s.handleRuleItem)

	// Template management
	mux.HandleFunc("/api/templates", s.handleTemplates)
	mux.HandleFunc("/api/templates/", s.handleTemplateItem)

	// Health check
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	return mux
}

// ============ Account Handlers ============

func (s *Server) handleAccounts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, map[string]interface{}{"success": true, "accounts": s.reg.ListAccounts()})
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		AccountID string `json:"account_id"`
		Name      string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.AccountID == "" {
		http.Error(w, "account_id is required", http.StatusBadRequest)
		return
	}
	if err := s.reg.Connect(r.Context(), req.AccountID, req.Name); err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, map[string]interface{}{"success": true})
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		AccountID string `json:"account_id"`
	}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	s.reg.Disconnect(r.Context(), req.AccountID)
	s.writeJSON(w, map[string]interface{}{"success": true})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if accountID := r.URL.Query().Get("account_id"); accountID != "" {
		s.writeJSON(w, map[string]interface{}{"success": true, "state": s.reg.Status(accountID)})
		return
	}
	s.writeJSON(w, map[string]interface{}{"success": true, "states": s.reg.Statuses()})
}

func (s *Server) handleAutoReplySwitch(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.writeJSON(w, map[string]interface{}{"success": true, "enabled": s.reg.AutoReplyEnabled()})

	case http.MethodPost:
		var req struct {
			Enabled bool `json:"enabled"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		s.reg.SetAutoReplyEnabled(req.Enabled)
		s.writeJSON(w, map[string]interface{}{"success": true, "enabled": req.Enabled})

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// ============ Send Handlers ============

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		AccountID  string `json:"account_id"`
		To         string `json:"to"`
		Text       string `json:"text"`
		TemplateID string `json:"template_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.AccountID == "" || req.To == "" {
		http.Error(w, "account_id and to are required", http.StatusBadRequest)
		return
	}

	text, media, err := s.resolveContent(r.Context(), req.Text, req.TemplateID)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, s.dispatcher.Send(r.Context(), req.AccountID, req.To, text, media))
}

func (s *Server) handleSendBulk(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		AccountID  string   `json:"account_id"`
		Recipients []string `json:"recipients"`
		Text       string   `json:"text"`
		TemplateID string   `json:"template_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.AccountID == "" || len(req.Recipients) == 0 {
		http.Error(w, "account_id and recipients are required", http.StatusBadRequest)
		return
	}

	text, media, err := s.resolveContent(r.Context(), req.Text, req.TemplateID)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	results := s.dispatcher.SendBulk(r.Context(), req.AccountID, req.Recipients, text, media)
	s.writeJSON(w, map[string]interface{}{"success": true, "results": results})
}

func (s *Server) handleSendMulti(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		AccountIDs []string `json:"account_ids"`
		To         string   `json:"to"`
		Text       string   `json:"text"`
		TemplateID string   `json:"template_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if len(req.AccountIDs) == 0 || req.To == "" {
		http.Error(w, "account_ids and to are required", http.StatusBadRequest)
		return
	}

	text, media, err := s.resolveContent(r.Context(), req.Text, req.TemplateID)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	results := s.dispatcher.SendMultiAccount(r.Context(), req.AccountIDs, req.To, text, media)
	s.writeJSON(w, map[string]interface{}{"success": true, "results": results})
}

// ============ Chat Handlers ============

func (s *Server) handleChats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	chats, err := s.reg.GetChats(r.Context(), r.URL.Query().Get("account_id"))
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, map[string]interface{}{"success": true, "chats": chats})
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	limit := 50
	if val := r.URL.Query().Get("limit"); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			limit = parsed
		}
	}
	accountID := r.URL.Query().Get("account_id")
	s.writeJSON(w, map[string]interface{}{"success": true, "messages": s.reg.Messages(accountID, limit)})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	chatID := r.URL.Query().Get("chat_id")
	if chatID == "" {
		http.Error(w, "chat_id is required", http.StatusBadRequest)
		return
	}
	limit := 50
	if val := r.URL.Query().Get("limit"); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			limit = parsed
		}
	}
	msgs, err := s.reg.ChatHistory(r.Context(), chatID, limit)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, map[string]interface{}{"success": true, "messages": msgs})
}

// ============ Rule Handlers ============

func (s *Server) handleRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	switch r.Method {
	case http.MethodGet:
		rules, err := s.rules.GetAll(ctx, r.URL.Query().Get("account_id"))
		if err != nil {
			s.writeFailure(w, err)
			return
		}
		s.writeJSON(w, map[string]interface{}{"success": true, "rules": rules})

	case http.MethodPost:
		var rule domain.AutoReplyRule
		if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if rule.ID == "" {
			rule.ID = uuid.NewString()
		}
		rule.IsActive = true
		if err := usecase.ValidateRule(&rule); err != nil {
			s.writeFailure(w, err)
			return
		}
		if err := s.rules.Create(ctx, &rule); err != nil {
			s.writeFailure(w, err)
			return
		}
		s.writeJSON(w, map[string]interface{}{"success": true, "rule": rule})

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleRuleItem(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/rules/")
	ctx := r.Context()

	if id, ok := strings.CutSuffix(path, "/toggle"); ok {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			Active bool `json:"active"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := s.rules.ToggleActive(ctx, id, req.Active); err != nil {
			s.writeFailure(w, err)
			return
		}
		s.writeJSON(w, map[string]interface{}{"success": true})
		return
	}

	if path == "" {
		http.Error(w, "rule id is required", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodGet:
		rule, err := s.rules.GetByID(ctx, path)
		if err != nil {
			s.writeFailure(w, err)
			return
		}
		if rule == nil {
			http.Error(w, "rule not found", http.StatusNotFound)
			return
		}
		s.writeJSON(w, map[string]interface{}{"success": true, "rule": rule})

	case http.MethodPut:
		var rule domain.AutoReplyRule
		if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		rule.ID = path
		if err := usecase.ValidateRule(&rule); err != nil {
			s.writeFailure(w, err)
			return
		}
		if err := s.rules.Update(ctx, &rule); err != nil {
			s.writeFailure(w, err)
			return
		}
		s.writeJSON(w, map[string]interface{}{"success": true, "rule": rule})

	case http.MethodDelete:
		if err := s.rules.Delete(ctx, path); err != nil {
			s.writeFailure(w, err)
			return
		}
		s.writeJSON(w, map[string]interface{}{"success": true})

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleRuleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ctx := r.Context()
	accountID := r.URL.Query().Get("account_id")

	rules, err := s.rules.GetAll(ctx, accountID)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	stats, err := s.rules.GetStats(ctx, accountID)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, map[string]interface{}{
		"success": true,
		"summary": domain.Summarize(rules),
		"rules":   stats,
	})
}

func (s *Server) handleRuleImport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		AccountID string                  `json:"account_id"`
		Rules     []*domain.AutoReplyRule `json:"rules"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.AccountID == "" {
		http.Error(w, "account_id is required", http.StatusBadRequest)
		return
	}
	for _, rule := range req.Rules {
		if rule.ID == "" {
			rule.ID = uuid.NewString()
		}
		if err := usecase.ValidateRule(rule); err != nil {
			s.writeFailure(w, fmt.Errorf("rule %q: %w", rule.Name, err))
			return
		}
	}
	if err := s.rules.ReplaceAll(r.Context(), req.AccountID, req.Rules); err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, map[string]interface{}{"success": true, "imported": len(req.Rules)})
}

func (s *Server) handleRuleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	rules, err := s.rules.GetAll(r.Context(), r.URL.Query().Get("account_id"))
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, map[string]interface{}{"success": true, "rules": rules})
}

// ============ Template Handlers ============

func (s *Server) handleTemplates(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	switch r.Method {
	case http.MethodGet:
		templates, err := s.templates.GetAll(ctx)
		if err != nil {
			s.writeFailure(w, err)
			return
		}
		s.writeJSON(w, map[string]interface{}{"success": true, "templates": templates})

	case http.MethodPost:
		var tpl domain.Template
		if err := json.NewDecoder(r.Body).Decode(&tpl); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if strings.TrimSpace(tpl.Name) == "" {
			http.Error(w, "template name is required", http.StatusBadRequest)
			return
		}
		if tpl.ID == "" {
			tpl.ID = uuid.NewString()
		}
		if err := s.templates.Create(ctx, &tpl); err != nil {
			s.writeFailure(w, err)
			return
		}
		s.writeJSON(w, map[string]interface{}{"success": true, "template": tpl})

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleTemplateItem(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/templates/")
	ctx := r.Context()

	if id, ok := strings.CutSuffix(path, "/attachment"); ok {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			FileName string `json:"file_name"`
			Data     string `json:"data"` // base64
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if req.FileName == "" {
			http.Error(w, "file_name is required", http.StatusBadRequest)
			return
		}
		data, err := base64.StdEncoding.DecodeString(req.Data)
		if err != nil {
			http.Error(w, "data must be base64", http.StatusBadRequest)
			return
		}
		if err := s.templates.SaveAttachment(ctx, id, req.FileName, data); err != nil {
			s.writeFailure(w, err)
			return
		}
		s.writeJSON(w, map[string]interface{}{"success": true})
		return
	}

	if path == "" {
		http.Error(w, "template id is required", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodGet:
		tpl, err := s.templates.GetByID(ctx, path)
		if err != nil {
			s.writeFailure(w, err)
			return
		}
		if tpl == nil {
			http.Error(w, "template not found", http.StatusNotFound)
			return
		}
		s.writeJSON(w, map[string]interface{}{"success": true, "template": tpl})

	case http.MethodPut:
		var tpl domain.Template
		if err := json.NewDecoder(r.Body).Decode(&tpl); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		tpl.ID = path
		if err := s.templates.Update(ctx, &tpl); err != nil {
			s.writeFailure(w, err)
			return
		}
		s.writeJSON(w, map[string]interface{}{"success": true, "template": tpl})

	case http.MethodDelete:
		if err := s.templates.Delete(ctx, path); err != nil {
			s.writeFailure(w, err)
			return
		}
		s.writeJSON(w, map[string]interface{}{"success": true})

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// ============ Helpers ============

// resolveContent picks explicit text, or the template's content (and
// attachment) when a template id is given.
func (s *Server) resolveContent(ctx context.Context, text, templateID string) (string, *domain.Media, error) {
	if templateID == "" {
		return text, nil, nil
	}
	tpl, err := s.templates.GetByID(ctx, templateID)
	if err != nil {
		return "", nil, err
	}
	if tpl == nil {
		return "", nil, fmt.Errorf("template %s not found", templateID)
	}
	media, err := s.templates.GetAttachment(ctx, templateID)
	if err != nil {
		return "", nil, err
	}
	if text == "" {
		text = tpl.Content
	}
	return text, media, nil
}

func (s *Server) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

// writeFailure reports an operation failure as a structured result. The HTTP
// status stays 200: failure is data, not protocol.
func (s *Server) writeFailure(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"success": false, "error": err.Error()})
}
