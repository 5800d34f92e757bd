// websocket/client.go
package websocket

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// ServeHTTP подключает клиента, отправляет снимок последних запусков и подписывает на изменения
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	runs, err := h.source.Recent(snapshotSize)
	if err != nil {
		h.logger.Error("Ошибка при чтении журнала запусков: %v", err)
		http.Error(w, "Журнал запусков недоступен", http.StatusServiceUnavailable)
		return
	}
	snapshot, err := json.Marshal(Message{Type: TypeSnapshot, Runs: runs})
	if err != nil {
		http.Error(w, "Ошибка при формировании снимка", http.StatusInternalServerError)
		return
	}

	socket, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("Ошибка при установке WebSocket-соединения: %v", err)
		return
	}

	client := &Client{
		ID:     uuid.NewString(),
		Socket: socket,
		Send:   make(chan []byte, sendBuffer),
	}
	client.Send <- snapshot

	select {
	case h.register <- client:
	case <-h.done:
		socket.Close()
		return
	}

	go client.writePump()
	go client.readPump(h)
}

// writePump отправляет сообщения клиенту
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Socket.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Socket.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Канал закрыт
				c.Socket.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			// Каждое сообщение отдельным кадром, чтобы клиент разбирал JSON без разделителей
			if err := c.Socket.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.Socket.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Socket.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump держит соединение и отслеживает его разрыв
func (c *Client) readPump(h *Hub) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.done:
		}
		c.Socket.Close()
	}()

	c.Socket.SetReadLimit(maxMessageSize)
	c.Socket.SetReadDeadline(time.Now().Add(pongWait))
	c.Socket.SetPongHandler(func(string) error {
		c.Socket.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, _, err := c.Socket.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn("Клиент %s: %v", c.ID, err)
			}
			return
		}
		// Входящие сообщения не обрабатываются, поток только на чтение
	}
}
