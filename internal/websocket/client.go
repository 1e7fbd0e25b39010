package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/PubNubDevelopers/SBMM-Engine/internal/service"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 4096

	// Time allowed for a confirm call triggered by a frame
	confirmTimeout = 5 * time.Second
)

// Inbound frame types.
const (
	FrameConfirm = "confirm"
	FrameLatency = "latency"
	FrameError   = "error"
	FrameAck     = "ack"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// inboundFrame 클라이언트 → 서버 메시지
type inboundFrame struct {
	Type       string             `json:"type"`
	MatchID    string             `json:"matchId,omitempty"`
	LatencyMap map[string]float64 `json:"latencyMap,omitempty"`
}

// Client WebSocket 클라이언트
type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	send     chan *Message
	playerID string
	monitor  bool
	logger   *zap.Logger
}

// NewClient 클라이언트 생성
func NewClient(hub *Hub, conn *websocket.Conn, playerID string, monitor bool) *Client {
	return &Client{
		hub:      hub,
		conn:     conn,
		send:     make(chan *Message, 256),
		playerID: playerID,
		monitor:  monitor,
		logger:   hub.logger.With(zap.String("playerId", playerID)),
	}
}

// readPump 클라이언트 프레임 처리 (confirm / latency)
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("WebSocket read error", zap.Error(err))
			}
			break
		}
		c.handleFrame(data)
	}
}

func (c *Client) handleFrame(data []byte) {
	var frame inboundFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		c.reply(FrameError, errorPayload("malformed frame"))
		return
	}

	switch frame.Type {
	case FrameConfirm:
		if c.hub.confirmer == nil {
			c.reply(FrameError, errorPayload("confirmation unavailable"))
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), confirmTimeout)
		err := c.hub.confirmer.Confirm(ctx, frame.MatchID, c.playerID)
		cancel()
		switch {
		case errors.Is(err, service.ErrMatchNotFound), errors.Is(err, service.ErrNotInMatch):
			c.reply(FrameError, errorPayload(err.Error()))
		case err != nil:
			c.logger.Warn("Confirm failed", zap.String("matchId", frame.MatchID), zap.Error(err))
			c.reply(FrameError, errorPayload("confirmation failed"))
		default:
			c.reply(FrameAck, map[string]string{"type": FrameConfirm, "matchId": frame.MatchID})
		}

	case FrameLatency:
		if c.hub.latency != nil {
			c.hub.latency.Record(service.LatencyReport{PlayerID: c.playerID, LatencyMap: frame.LatencyMap})
		}

	default:
		c.reply(FrameError, errorPayload("unknown frame type"))
	}
}

// reply 연결에 직접 응답. 이미 해제되었거나 버퍼가 차면 버린다.
func (c *Client) reply(msgType string, payload interface{}) {
	message := &Message{PlayerID: c.playerID, Type: msgType, Payload: payload}
	if !c.hub.deliver(c, message) {
		c.logger.Debug("Dropped reply", zap.String("type", msgType))
	}
}

func errorPayload(message string) map[string]string {
	return map[string]string{"error": message}
}

// writePump Hub로부터 메시지를 받아 클라이언트에게 전송
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub가 채널을 닫음
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			data, err := json.Marshal(message)
			if err != nil {
				c.logger.Error("Failed to marshal message", zap.Error(err))
				continue
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Error("Failed to write message", zap.Error(err))
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ServeWs WebSocket 연결 업그레이드 및 클라이언트 시작
func ServeWs(hub *Hub, w http.ResponseWriter, r *http.Request, playerID string, monitor bool) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		hub.logger.Error("Failed to upgrade WebSocket connection", zap.Error(err))
		return
	}

	client := NewClient(hub, conn, playerID, monitor)
	client.hub.register <- client

	go client.writePump()
	go client.readPump()
}
