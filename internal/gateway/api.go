// ABOUTME: HTTP API handlers for conversations, messages, chat, and proxy routes
// ABOUTME: Maps domain errors onto 400/404/500 JSON error responses

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/neurofluxion/flux-gateway/internal/chat"
	"github.com/neurofluxion/flux-gateway/internal/store"
)

// ConversationResponse is the JSON shape of a conversation.
type ConversationResponse struct {
	ID        int64  `json:"id"`
	Title     string `json:"title"`
	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt"`
}

// MessageResponse is the JSON shape of a message.
type MessageResponse struct {
	ID             int64          `json:"id"`
	ConversationID int64          `json:"conversationId"`
	Content        string         `json:"content"`
	Role           string         `json:"role"`
	MessageType    string         `json:"messageType"`
	Metadata       map[string]any `json:"metadata"`
	AgentUsed      *string        `json:"agentUsed"`
	CreatedAt      string         `json:"createdAt"`
}

// DocumentResponse is the JSON shape of an indexed document.
type DocumentResponse struct {
	ID           int64   `json:"id"`
	Title        string  `json:"title"`
	Content      string  `json:"content"`
	FilePath     *string `json:"filePath"`
	DocumentType string  `json:"documentType"`
	CreatedAt    string  `json:"createdAt"`
}

// CreateConversationRequest is the JSON request body for POST /conversations.
type CreateConversationRequest struct {
	Title string `json:"title"`
}

// CreateMessageRequest is the JSON request body for POST /conversations/{id}/messages.
type CreateMessageRequest struct {
	Content     string         `json:"content"`
	Role        string         `json:"role"`
	MessageType string         `json:"messageType"`
	Metadata    map[string]any `json:"metadata"`
	AgentUsed   *string        `json:"agentUsed"`
}

// CreateDocumentRequest is the JSON request body for POST /documents.
type CreateDocumentRequest struct {
	Title        string  `json:"title"`
	Content      string  `json:"content"`
	FilePath     *string `json:"filePath"`
	DocumentType string  `json:"documentType"`
}

// ChatRequest is the JSON request body for POST /chat.
type ChatRequest struct {
	Message        string `json:"message"`
	ConversationID int64  `json:"conversationId"`
	MessageType    string `json:"messageType"`
}

// ChatResponse is the JSON response for POST /chat. AIMessage is null when
// the identical request is still pending a reply.
type ChatResponse struct {
	UserMessage *MessageResponse `json:"userMessage"`
	AIMessage   *MessageResponse `json:"aiMessage"`
	Metadata    map[string]any   `json:"metadata"`
}

func conversationToResponse(c *store.Conversation) ConversationResponse {
	return ConversationResponse{
		ID:        c.ID,
		Title:     c.Title,
		CreatedAt: c.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt: c.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func messageToResponse(m *store.Message) *MessageResponse {
	if m == nil {
		return nil
	}
	return &MessageResponse{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		Content:        m.Content,
		Role:           m.Role,
		MessageType:    m.MessageType,
		Metadata:       m.Metadata,
		AgentUsed:      m.AgentUsed,
		CreatedAt:      m.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func documentToResponse(d *store.Document) DocumentResponse {
	return DocumentResponse{
		ID:           d.ID,
		Title:        d.Title,
		Content:      d.Content,
		FilePath:     d.FilePath,
		DocumentType: d.DocumentType,
		CreatedAt:    d.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

// handleListConversations handles GET /conversations.
func (g *Gateway) handleListConversations(w http.ResponseWriter, r *http.Request) {
	conversations, err := g.conversations.ListConversations(r.Context())
	if err != nil {
		g.internalError(w, "listing conversations", err)
		return
	}

	response := make([]ConversationResponse, 0, len(conversations))
	for _, c := range conversations {
		response = append(response, conversationToResponse(c))
	}
	g.writeJSON(w, http.StatusOK, response)
}

// handleCreateConversation handles POST /conversations.
func (g *Gateway) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	var req CreateConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Title == "" {
		g.sendJSONError(w, http.StatusBadRequest, "title is required")
		return
	}

	c, err := g.conversations.CreateConversation(r.Context(), req.Title)
	if err != nil {
		g.internalError(w, "creating conversation", err)
		return
	}
	g.writeJSON(w, http.StatusCreated, conversationToResponse(c))
}

// handleGetConversation handles GET /conversations/{id}.
func (g *Gateway) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	id, ok := g.pathID(w, r)
	if !ok {
		return
	}

	c, err := g.conversations.GetConversation(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		g.sendJSONError(w, http.StatusNotFound, "conversation not found")
		return
	}
	if err != nil {
		g.internalError(w, "getting conversation", err)
		return
	}
	g.writeJSON(w, http.StatusOK, conversationToResponse(c))
}

// handleDeleteConversation handles DELETE /conversations/{id}.
// Deleting cascades to the conversation's messages.
func (g *Gateway) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	id, ok := g.pathID(w, r)
	if !ok {
		return
	}

	if err := g.conversations.DeleteConversation(r.Context(), id); err != nil {
		g.internalError(w, "deleting conversation", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleListMessages handles GET /conversations/{id}/messages.
// Messages are returned in chronological order.
func (g *Gateway) handleListMessages(w http.ResponseWriter, r *http.Request) {
	id, ok := g.pathID(w, r)
	if !ok {
		return
	}

	messages, err := g.conversations.ListMessages(r.Context(), id)
	if err != nil {
		g.internalError(w, "listing messages", err)
		return
	}

	response := make([]*MessageResponse, 0, len(messages))
	for _, m := range messages {
		response = append(response, messageToResponse(m))
	}
	g.writeJSON(w, http.StatusOK, response)
}

// handleCreateMessage handles POST /conversations/{id}/messages.
func (g *Gateway) handleCreateMessage(w http.ResponseWriter, r *http.Request) {
	id, ok := g.pathID(w, r)
	if !ok {
		return
	}

	var req CreateMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Content == "" {
		g.sendJSONError(w, http.StatusBadRequest, "content is required")
		return
	}

	msg, err := g.conversations.CreateMessage(r.Context(), store.CreateMessage{
		ConversationID: id,
		Content:        req.Content,
		Role:           req.Role,
		MessageType:    req.MessageType,
		Metadata:       req.Metadata,
		AgentUsed:      req.AgentUsed,
	})
	if err != nil {
		g.internalError(w, "creating message", err)
		return
	}
	g.writeJSON(w, http.StatusCreated, messageToResponse(msg))
}

// handleChat handles POST /chat, the orchestrated chat turn.
func (g *Gateway) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	result, err := g.chat.Send(r.Context(), chat.Request{
		Message:        req.Message,
		ConversationID: req.ConversationID,
		MessageType:    req.MessageType,
	})
	if errors.Is(err, chat.ErrEmptyMessage) {
		g.sendJSONError(w, http.StatusBadRequest, "message is required")
		return
	}
	if err != nil {
		g.logger.Error("chat turn failed", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "chat processing failed")
		return
	}

	g.writeJSON(w, http.StatusOK, ChatResponse{
		UserMessage: messageToResponse(result.UserMessage),
		AIMessage:   messageToResponse(result.AIMessage),
		Metadata:    result.Metadata,
	})
}

// handleAgentStatuses handles GET /agents/status. Backend outages resolve
// to the fallback roster, never to an error.
func (g *Gateway) handleAgentStatuses(w http.ResponseWriter, r *http.Request) {
	g.writeJSON(w, http.StatusOK, g.status.AgentStatuses(r.Context()))
}

// handleUpdateAgentStatus handles POST /agents/status: body passthrough to
// the backend, mirrored into the local registry on success.
func (g *Gateway) handleUpdateAgentStatus(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "reading request body")
		return
	}

	result, err := g.status.UpdateAgentStatus(r.Context(), body)
	if err != nil {
		g.logger.Error("agent status update failed", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "agent status update failed")
		return
	}

	g.mirrorAgentStatus(r.Context(), body)
	g.writeJSON(w, http.StatusOK, result)
}

// mirrorAgentStatus upserts a forwarded status write into the local
// registry so the registry reflects the last accepted write per agent.
func (g *Gateway) mirrorAgentStatus(ctx context.Context, body []byte) {
	var update struct {
		AgentName string         `json:"agent_name"`
		Status    string         `json:"status"`
		Metadata  map[string]any `json:"metadata"`
	}
	if err := json.Unmarshal(body, &update); err != nil || update.AgentName == "" {
		return
	}
	if _, err := g.agents.Upsert(ctx, update.AgentName, update.Status, update.Metadata); err != nil {
		g.logger.Warn("mirroring agent status failed", "agent", update.AgentName, "error", err)
	}
}

// handleHealth handles GET /health. Backend outages resolve to the partial
// fallback payload, never to an error.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	g.writeJSON(w, http.StatusOK, g.status.Health(r.Context()))
}

// handleUpload handles POST /upload: a single multipart file forwarded to
// the backend for analysis.
func (g *Gateway) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, g.uploadMaxBytes)
	if err := r.ParseMultipartForm(g.uploadMaxBytes); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "invalid multipart body or file too large")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "no file provided")
		return
	}
	defer file.Close()

	result, err := g.upstream.Upload(r.Context(), header.Filename, header.Header.Get("Content-Type"), file)
	if err != nil {
		g.logger.Error("upload forwarding failed", "filename", header.Filename, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "file processing failed")
		return
	}
	g.writeJSON(w, http.StatusOK, result)
}

// handleModels handles GET /models: passthrough of the backend model list.
func (g *Gateway) handleModels(w http.ResponseWriter, r *http.Request) {
	models, err := g.upstream.Models(r.Context())
	if err != nil {
		g.logger.Error("listing models failed", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "model listing failed")
		return
	}
	g.writeJSON(w, http.StatusOK, models)
}

// handleListDocuments handles GET /documents.
func (g *Gateway) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := g.documents.List(r.Context())
	if err != nil {
		g.internalError(w, "listing documents", err)
		return
	}

	response := make([]DocumentResponse, 0, len(docs))
	for _, d := range docs {
		response = append(response, documentToResponse(d))
	}
	g.writeJSON(w, http.StatusOK, response)
}

// handleCreateDocument handles POST /documents.
func (g *Gateway) handleCreateDocument(w http.ResponseWriter, r *http.Request) {
	var req CreateDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Title == "" || req.Content == "" {
		g.sendJSONError(w, http.StatusBadRequest, "title and content are required")
		return
	}

	doc, err := g.documents.Create(r.Context(), store.CreateDocument{
		Title:        req.Title,
		Content:      req.Content,
		FilePath:     req.FilePath,
		DocumentType: req.DocumentType,
	})
	if err != nil {
		g.internalError(w, "creating document", err)
		return
	}
	g.writeJSON(w, http.StatusCreated, documentToResponse(doc))
}

// handleGetDocument handles GET /documents/{id}.
func (g *Gateway) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := g.pathID(w, r)
	if !ok {
		return
	}

	doc, err := g.documents.Get(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		g.sendJSONError(w, http.StatusNotFound, "document not found")
		return
	}
	if err != nil {
		g.internalError(w, "getting document", err)
		return
	}
	g.writeJSON(w, http.StatusOK, documentToResponse(doc))
}

// handleDeleteDocument handles DELETE /documents/{id}.
func (g *Gateway) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := g.pathID(w, r)
	if !ok {
		return
	}

	if err := g.documents.Delete(r.Context(), id); err != nil {
		g.internalError(w, "deleting document", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// pathID parses the {id} path segment, answering 400 on garbage.
func (g *Gateway) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}

// writeJSON writes a JSON response with the given status code.
func (g *Gateway) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		g.logger.Error("encoding response failed", "error", err)
	}
}

// sendJSONError writes a JSON error response with the given status code.
func (g *Gateway) sendJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// internalError logs the error and answers 500 without leaking details.
func (g *Gateway) internalError(w http.ResponseWriter, action string, err error) {
	g.logger.Error(action+" failed", "error", err)
	g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
}
