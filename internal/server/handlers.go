package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/raphaelgruber/convo-go/internal/chat"
	"github.com/raphaelgruber/convo-go/internal/config"
	"github.com/raphaelgruber/convo-go/internal/events"
	"github.com/raphaelgruber/convo-go/internal/metrics"
	"github.com/raphaelgruber/convo-go/internal/models"
	"github.com/raphaelgruber/convo-go/internal/speech"
	"github.com/raphaelgruber/convo-go/internal/upload"
)

const errChatNotFound = "Chat not found"

// respondError maps err onto a status code. Unexpected errors are logged
// and answered with the generic message.
func (s *Server) respondError(c *gin.Context, err error, generic string) {
	ctx := c.Request.Context()
	_ = c.Error(err)

	switch {
	case errors.Is(err, chat.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": errChatNotFound})
	case errors.Is(err, chat.ErrInvalidTurn), errors.Is(err, models.ErrInvalidMessage):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, upload.ErrTooLarge):
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "File too large"})
	case errors.Is(err, context.DeadlineExceeded):
		s.logger.WarnContext(ctx, generic, "error", err)
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": "request timed out"})
	default:
		s.logger.ErrorContext(ctx, generic, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": generic})
	}
}

func (s *Server) createChat(c *gin.Context) {
	ctx := c.Request.Context()

	var req createChatRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = s.opts.DefaultTitle
	}

	conv, err := s.deps.Store.CreateConversation(ctx, title)
	if err != nil {
		s.respondError(c, err, "Failed to create chat")
		return
	}

	id := models.IDString(conv.ID)
	s.publish(events.Event{Type: events.ConversationCreated, ConversationID: id, Title: conv.Title})
	c.JSON(http.StatusCreated, toChatResponse(*conv))
}

func (s *Server) listChats(c *gin.Context) {
	convs, err := s.deps.Store.ListConversations(c.Request.Context())
	if err != nil {
		s.respondError(c, err, "Failed to fetch chats")
		return
	}
	c.JSON(http.StatusOK, gin.H{"chats": toChatResponses(convs)})
}

func (s *Server) getChat(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	conv, err := s.deps.Store.GetConversation(ctx, id)
	if err != nil {
		s.respondError(c, err, "Failed to fetch chat history")
		return
	}
	if conv == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": errChatNotFound})
		return
	}

	msgs, err := s.deps.Store.ListMessages(ctx, id)
	if err != nil {
		s.respondError(c, err, "Failed to fetch chat history")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"chat":     toChatResponse(*conv),
		"messages": toMessageResponses(msgs),
	})
}

func (s *Server) renameChat(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	var req renameChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "title is required"})
		return
	}

	ok, err := s.deps.Store.RenameConversation(ctx, id, title)
	if err != nil {
		s.respondError(c, err, "Failed to rename chat")
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": errChatNotFound})
		return
	}

	s.publish(events.Event{Type: events.ConversationRenamed, ConversationID: id, Title: title})
	c.JSON(http.StatusOK, gin.H{"message": "Chat renamed successfully"})
}

func (s *Server) deleteChat(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	ok, err := s.deps.Store.DeleteConversation(ctx, id)
	if err != nil {
		s.respondError(c, err, "Failed to delete chat")
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": errChatNotFound})
		return
	}

	s.publish(events.Event{Type: events.ConversationDeleted, ConversationID: id})
	c.JSON(http.StatusOK, gin.H{"message": "Chat deleted successfully"})
}

func (s *Server) sendMessage(c *gin.Context) {
	id := c.Param("id")

	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	in := chat.NewTurnInput(req.Content, req.OriginalContent)
	in.ContextText = req.WebSearchResults
	s.runTurn(c, id, in, "Failed to process message")
}

func (s *Server) uploadFile(c *gin.Context) {
	id := c.Param("id")
	ctx := config.WithLogFields(c.Request.Context(), config.LogFields{ConversationID: id})

	if s.deps.Uploads == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "uploads are disabled"})
		return
	}

	conv, err := s.deps.Store.GetConversation(ctx, id)
	if err != nil {
		s.respondError(c, err, "Failed to process file upload")
		return
	}
	if conv == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": errChatNotFound})
		return
	}

	header, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	if err := s.deps.Uploads.CheckSize(header.Size); err != nil {
		s.respondError(c, err, "Failed to process file upload")
		return
	}

	start := time.Now()
	f, err := header.Open()
	if err != nil {
		s.respondError(c, err, "Failed to process file upload")
		return
	}
	saved, err := s.deps.Uploads.Save(f, header.Filename)
	_ = f.Close()
	if err != nil {
		s.deps.Metrics.RecordFailure(metrics.OpUpload)
		s.respondError(c, err, "Failed to process file upload")
		return
	}

	processed, err := s.deps.Processor.Process(saved.Path, header.Filename)
	if err != nil {
		s.deps.Metrics.RecordFailure(metrics.OpUpload)
		s.respondError(c, err, "Failed to process file upload")
		return
	}
	s.deps.Metrics.RecordTiming(metrics.OpUpload, time.Since(start))
	s.logger.InfoContext(ctx, "file uploaded", "name", saved.Name, "kind", processed.Kind, "size", saved.Size)

	combined := upload.CombineText(c.PostForm("message"), processed.Text)
	in := chat.NewTurnInput(combined, c.PostForm("original_content"))
	in.ContextText = c.PostForm("web_search_results")
	in.File = saved.FileInfo(header.Filename, header.Header.Get("Content-Type"))
	if processed.Kind == upload.KindImage {
		in.ImagePath = saved.Path
	}
	s.runTurn(c, id, in, "Failed to process file upload")
}

func (s *Server) runTurn(c *gin.Context, id string, in chat.TurnInput, generic string) {
	res, err := s.deps.Turns.ProcessTurn(c.Request.Context(), id, in)
	if err != nil {
		if !errors.Is(err, chat.ErrNotFound) && !errors.Is(err, chat.ErrInvalidTurn) {
			s.publish(events.Event{Type: events.TurnFailed, ConversationID: id, Error: generic})
		}
		s.respondError(c, err, generic)
		return
	}

	s.publish(events.Event{Type: events.TurnCompleted, ConversationID: id, Title: res.Title})
	c.JSON(http.StatusOK, TurnResponse{
		ChatID:   id,
		Message:  toMessageResponse(*res.UserMessage),
		Response: toMessageResponse(*res.AssistantMessage),
		Title:    res.Title,
	})
}

func (s *Server) webSearch(c *gin.Context) {
	var req webSearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		c.JSON(http.StatusOK, gin.H{"results": []any{}})
		return
	}
	if s.deps.Search == nil {
		c.JSON(http.StatusOK, gin.H{"error": "web search not configured", "results": []any{}})
		return
	}

	results, err := s.deps.Search.Search(c.Request.Context(), req.Query)
	if err != nil {
		s.logger.WarnContext(c.Request.Context(), "web search failed", "error", err)
		c.JSON(http.StatusOK, gin.H{"error": err.Error(), "results": []any{}})
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}

func (s *Server) tts(c *gin.Context) {
	var req ttsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if s.deps.Speech == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "TTS failed: speech not configured"})
		return
	}

	audio, err := s.deps.Speech.Synthesize(c.Request.Context(), speech.Request{
		Text:  req.Text,
		Voice: req.Voice,
		Model: req.Model,
	})
	if err != nil {
		_ = c.Error(err)
		s.logger.ErrorContext(c.Request.Context(), "speech synthesis failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "TTS failed: " + err.Error()})
		return
	}
	c.Data(http.StatusOK, speech.ContentType, audio)
}

func (s *Server) stats(c *gin.Context) {
	c.JSON(http.StatusOK, s.deps.Metrics.Snapshot())
}
