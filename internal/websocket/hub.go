package websocket

import (
	"context"
	"sync"

	"github.com/PubNubDevelopers/SBMM-Engine/internal/models"
	"github.com/PubNubDevelopers/SBMM-Engine/internal/service"
	"github.com/PubNubDevelopers/SBMM-Engine/pkg/transport"
	"go.uber.org/zap"
)

// Confirmer 클라이언트 확인 신호 처리
type Confirmer interface {
	Confirm(ctx context.Context, matchID, playerID string) error
}

// LatencyRecorder 클라이언트 지연 보고 처리
type LatencyRecorder interface {
	Record(report service.LatencyReport)
}

// Hub WebSocket 연결 관리. 플레이어 토픽 이벤트를 해당 연결로 중계한다.
type Hub struct {
	// 플레이어별 연결 (playerID -> *Client)
	clients map[string]*Client
	// 플레이어 토픽 구독
	subs map[string]*transport.Subscription
	mu   sync.RWMutex

	broadcast  chan *Message
	register   chan *Client
	unregister chan *Client

	transport transport.Transport
	confirmer Confirmer
	latency   LatencyRecorder
	logger    *zap.Logger
}

// Message WebSocket 메시지
type Message struct {
	PlayerID string      `json:"-"`       // 수신자 (빈 문자열이면 모니터 구독자 전체)
	Type     string      `json:"type"`    // 메시지 타입
	Payload  interface{} `json:"payload"` // 메시지 내용
}

// HubConfig Hub 의존성
type HubConfig struct {
	Transport transport.Transport
	Confirmer Confirmer
	Latency   LatencyRecorder
	Logger    *zap.Logger
}

// NewHub Hub 생성
func NewHub(cfg HubConfig) *Hub {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Hub{
		clients:    make(map[string]*Client),
		subs:       make(map[string]*transport.Subscription),
		broadcast:  make(chan *Message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		transport:  cfg.Transport,
		confirmer:  cfg.Confirmer,
		latency:    cfg.Latency,
		logger:     cfg.Logger,
	}
}

// Run Hub 실행. ctx 가 끝나면 모든 연결을 닫는다.
func (h *Hub) Run(ctx context.Context) {
	if h.transport != nil {
		if sub, err := h.transport.Subscribe(ctx, transport.MonitorTopic); err != nil {
			h.logger.Warn("Monitor feed unavailable", zap.Error(err))
		} else {
			go h.forward(ctx, sub, "")
		}
	}

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return

		case client := <-h.register:
			h.registerClient(ctx, client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case message := <-h.broadcast:
			h.broadcastMessage(message)
		}
	}
}

// registerClient 클라이언트 등록 + 플레이어 토픽 구독
func (h *Hub) registerClient(ctx context.Context, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	// 기존 연결이 있으면 닫기
	if oldClient, exists := h.clients[client.playerID]; exists {
		close(oldClient.send)
		h.logger.Info("Replaced existing WebSocket connection",
			zap.String("playerId", client.playerID))
	}
	h.clients[client.playerID] = client

	if _, subscribed := h.subs[client.playerID]; !subscribed && h.transport != nil {
		sub, err := h.transport.Subscribe(ctx, transport.PlayerTopic(client.playerID))
		if err != nil {
			h.logger.Warn("Failed to subscribe player topic",
				zap.String("playerId", client.playerID),
				zap.Error(err))
		} else {
			h.subs[client.playerID] = sub
			go h.forward(ctx, sub, client.playerID)
		}
	}

	h.logger.Info("WebSocket client registered",
		zap.String("playerId", client.playerID),
		zap.Bool("monitor", client.monitor),
		zap.Int("totalClients", len(h.clients)))
}

// unregisterClient 클라이언트 해제
func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if current, exists := h.clients[client.playerID]; exists && current == client {
		delete(h.clients, client.playerID)
		close(client.send)
		if sub, ok := h.subs[client.playerID]; ok {
			sub.Close()
			delete(h.subs, client.playerID)
		}
		h.logger.Info("WebSocket client unregistered",
			zap.String("playerId", client.playerID),
			zap.Int("totalClients", len(h.clients)))
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, client := range h.clients {
		close(client.send)
		delete(h.clients, id)
	}
	for id, sub := range h.subs {
		sub.Close()
		delete(h.subs, id)
	}
}

// forward 토픽 이벤트를 Hub 메시지로 변환
func (h *Hub) forward(ctx context.Context, sub *transport.Subscription, playerID string) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-sub.Messages():
			if !ok {
				return
			}
			event, err := models.ParseEvent(msg.Payload)
			if err != nil || event.Type == models.EventUnknown {
				h.logger.Debug("Dropping event", zap.String("topic", msg.Topic), zap.Error(err))
				continue
			}
			select {
			case h.broadcast <- &Message{PlayerID: playerID, Type: string(event.Type), Payload: event}:
			case <-ctx.Done():
				return
			}
		}
	}
}

// broadcastMessage 메시지 전달
func (h *Hub) broadcastMessage(message *Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if message.PlayerID == "" {
		// 모니터 구독자 전체
		for _, client := range h.clients {
			if !client.monitor {
				continue
			}
			select {
			case client.send <- message:
			default:
				h.logger.Warn("Client send channel full, unregistering",
					zap.String("playerId", client.playerID))
				go func(c *Client) {
					h.unregister <- c
				}(client)
			}
		}
		return
	}

	// 특정 플레이어에게만 전송
	if client, exists := h.clients[message.PlayerID]; exists {
		select {
		case client.send <- message:
		default:
			h.logger.Warn("Client send channel full",
				zap.String("playerId", message.PlayerID))
		}
	}
}

// deliver 등록된 연결에만 보낸다. send 는 h.mu 쓰기 잠금 아래에서만 닫히므로
// 읽기 잠금을 잡은 동안에는 닫힌 채널에 보내지 않는다.
func (h *Hub) deliver(client *Client, message *Message) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if current, ok := h.clients[client.playerID]; !ok || current != client {
		return false
	}
	select {
	case client.send <- message:
		return true
	default:
		return false
	}
}

// SendToPlayer 특정 플레이어에게 메시지 전송
func (h *Hub) SendToPlayer(playerID string, msgType string, payload interface{}) {
	h.broadcast <- &Message{
		PlayerID: playerID,
		Type:     msgType,
		Payload:  payload,
	}
}

// ClientCount 현재 연결 수
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
