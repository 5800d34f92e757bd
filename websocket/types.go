// websocket/types.go
package websocket

import (
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/LilVoxy/rental_warehouse/ETL/models"
)

// Типы сообщений
const (
	TypeSnapshot  = "runs_snapshot"
	TypeRunUpdate = "run_update"
)

// Message сообщение, отправляемое клиенту
type Message struct {
	Type string             `json:"type"`
	Run  *models.RunRecord  `json:"run,omitempty"`
	Runs []models.RunRecord `json:"runs,omitempty"`
}

// RunSource журнал запусков
type RunSource interface {
	Recent(limit int) ([]models.RunRecord, error)
}

// Клиент WebSocket
type Client struct {
	ID     string
	Socket *websocket.Conn
	Send   chan []byte
}

// Конфигурация WebSocket-соединения
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // панель отчетов открывается с любого источника
	},
}
