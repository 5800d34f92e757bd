// websocket/hub.go
package websocket

import (
	"context"
	"encoding/json"
	"time"

	"github.com/LilVoxy/rental_warehouse/ETL/models"
	"github.com/LilVoxy/rental_warehouse/ETL/utils"
)

// Hub рассылает изменения журнала запусков подключенным клиентам
type Hub struct {
	source RunSource
	logger *utils.ETLLogger

	clients    map[string]*Client
	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte
	done       chan struct{}

	// последнее известное состояние запусков; используется только в Watch/Poll
	seen map[int64]runState
}

type runState struct {
	status  models.RunStatus
	written int
}

// NewHub создает новый экземпляр Hub
func NewHub(source RunSource, logger *utils.ETLLogger) *Hub {
	return &Hub{
		source:     source,
		logger:     logger.WithField("component", "ws"),
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte),
		done:       make(chan struct{}),
		seen:       make(map[int64]runState),
	}
}

// Run обслуживает регистрацию клиентов и рассылку до отмены ctx
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for id, client := range h.clients {
				close(client.Send)
				delete(h.clients, id)
			}
			return

		case client := <-h.register:
			h.clients[client.ID] = client
			h.logger.Debug("Клиент %s подключился", client.ID)

		case client := <-h.unregister:
			if _, ok := h.clients[client.ID]; ok {
				delete(h.clients, client.ID)
				close(client.Send)
				h.logger.Debug("Клиент %s отключился", client.ID)
			}

		case message := <-h.broadcast:
			for id, client := range h.clients {
				select {
				case client.Send <- message:
				default:
					// Медленный клиент отключается
					close(client.Send)
					delete(h.clients, id)
				}
			}
		}
	}
}

// Watch опрашивает журнал запусков с интервалом и рассылает изменения
func (h *Hub) Watch(ctx context.Context, interval time.Duration) {
	if _, err := h.Poll(ctx); err != nil {
		h.logger.Warn("Ошибка при опросе журнала запусков: %v", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := h.Poll(ctx); err != nil {
				h.logger.Warn("Ошибка при опросе журнала запусков: %v", err)
			}
		}
	}
}

// Poll читает журнал и рассылает новые и изменившиеся запуски; возвращает их число
func (h *Hub) Poll(ctx context.Context) (int, error) {
	runs, err := h.source.Recent(snapshotSize)
	if err != nil {
		return 0, err
	}

	changed := h.diff(runs)
	for i := range changed {
		payload, err := json.Marshal(Message{Type: TypeRunUpdate, Run: &changed[i]})
		if err != nil {
			return i, err
		}
		select {
		case h.broadcast <- payload:
		case <-h.done:
			return i, nil
		case <-ctx.Done():
			return i, ctx.Err()
		}
	}
	return len(changed), nil
}

// diff возвращает запуски, появившиеся или изменившиеся с прошлого опроса, от старых к новым
func (h *Hub) diff(runs []models.RunRecord) []models.RunRecord {
	var changed []models.RunRecord
	for i := len(runs) - 1; i >= 0; i-- {
		r := runs[i]
		state := runState{status: r.Status, written: r.RowsWritten}
		if prev, ok := h.seen[r.ID]; ok && prev == state {
			continue
		}
		h.seen[r.ID] = state
		changed = append(changed, r)
	}
	return changed
}
