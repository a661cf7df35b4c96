package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	echo "github.com/labstack/echo/v5"

	"github.com/protagolabs/agentcore/pkg/models"
	"github.com/protagolabs/agentcore/pkg/runtime"
)

const (
	// wsHeartbeatInterval is the mandatory idle heartbeat period. The timer
	// resets on any server send.
	wsHeartbeatInterval = 15 * time.Second

	// wsRunTimeout bounds a single streamed turn.
	wsRunTimeout = 10 * time.Minute

	wsRequestTimeout = 30 * time.Second
)

// wsRunRequest is the single client message that starts a run.
type wsRunRequest struct {
	AgentID       string `json:"agent_id"`
	UserID        string `json:"user_id"`
	InputContent  string `json:"input_content"`
	WorkingSource string `json:"working_source"`
}

// wsRunHandler handles WS /ws/agent/run.
func (s *Server) wsRunHandler(c *echo.Context) error {
	conn, err := websocket.Accept(c.Response(), c.Request(), &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		return err
	}
	defer conn.Close(websocket.StatusInternalError, "closing")

	ctx, cancel := context.WithTimeout(c.Request().Context(), wsRunTimeout)
	defer cancel()

	req, err := readRunRequest(ctx, conn)
	if err != nil {
		conn.Close(websocket.StatusPolicyViolation, "invalid request")
		return nil
	}

	sender := newWSSender(ctx, conn)
	defer sender.stop()

	out, err := s.deps.Runtime.Run(ctx, runtime.RunInput{
		AgentID:       req.AgentID,
		UserID:        req.UserID,
		Input:         req.InputContent,
		WorkingSource: models.WorkingSource(req.WorkingSource),
		Stream:        sender.stream,
	})
	if err != nil {
		sender.send(map[string]any{
			"type":          "error",
			"error_message": err.Error(),
			"error_type":    "execution_error",
		})
		conn.Close(websocket.StatusNormalClosure, "error")
		return nil
	}

	s.logger.Info("WS run complete",
		"agent_id", req.AgentID, "user_id", req.UserID, "event_id", out.Event.EventID)
	conn.Close(websocket.StatusNormalClosure, "complete")
	return nil
}

func readRunRequest(ctx context.Context, conn *websocket.Conn) (*wsRunRequest, error) {
	readCtx, cancel := context.WithTimeout(ctx, wsRequestTimeout)
	defer cancel()

	_, data, err := conn.Read(readCtx)
	if err != nil {
		return nil, err
	}
	var req wsRunRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, err
	}
	if req.AgentID == "" || req.UserID == "" || req.InputContent == "" {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "agent_id, user_id and input_content are required")
	}
	if req.WorkingSource == "" {
		req.WorkingSource = string(models.WorkingSourceChat)
	}
	return &req, nil
}

// wsSender serializes writes and keeps the idle heartbeat alive.
type wsSender struct {
	ctx  context.Context
	conn *websocket.Conn

	mu     sync.Mutex
	timer  *time.Timer
	stopCh chan struct{}
	once   sync.Once
}

func newWSSender(ctx context.Context, conn *websocket.Conn) *wsSender {
	s := &wsSender{
		ctx:    ctx,
		conn:   conn,
		timer:  time.NewTimer(wsHeartbeatInterval),
		stopCh: make(chan struct{}),
	}
	go s.heartbeatLoop()
	return s
}

func (s *wsSender) heartbeatLoop() {
	for {
		select {
		case <-s.stopCh:
			return
		case <-s.ctx.Done():
			return
		case <-s.timer.C:
			s.send(map[string]any{"type": "heartbeat"})
		}
	}
}

func (s *wsSender) send(msg map[string]any) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.conn.Write(s.ctx, websocket.MessageText, data); err != nil {
		return
	}
	if !s.timer.Stop() {
		select {
		case <-s.timer.C:
		default:
		}
	}
	s.timer.Reset(wsHeartbeatInterval)
}

func (s *wsSender) stop() {
	s.once.Do(func() {
		close(s.stopCh)
		s.timer.Stop()
	})
}

// stream translates runtime stream messages into the wire protocol.
func (s *wsSender) stream(msg runtime.StreamMessage) {
	switch msg.Type {
	case runtime.StreamStatus:
		s.send(map[string]any{
			"type":        "progress",
			"step":        msg.Step,
			"description": msg.Content,
		})
	case runtime.StreamAgentDelta:
		s.send(map[string]any{"type": "agent_response", "delta": msg.Content})
	case runtime.StreamToolCall:
		s.send(map[string]any{
			"type":       "tool_call",
			"tool_name":  msg.ToolName,
			"tool_input": msg.ToolInput,
		})
	case runtime.StreamToolResult:
		s.send(map[string]any{
			"type":        "tool_call",
			"tool_name":   msg.ToolName,
			"tool_output": msg.ToolOutput,
		})
	case runtime.StreamError:
		s.send(map[string]any{
			"type":          "error",
			"error_message": msg.Error,
			"error_type":    "execution_error",
		})
	case runtime.StreamComplete:
		s.send(map[string]any{
			"type":     "complete",
			"message":  msg.Content,
			"event_id": msg.EventID,
		})
	}
}
