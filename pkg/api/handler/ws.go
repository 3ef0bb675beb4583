package handler

import (
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/LENAX/toolflow/pkg/core/progress"
)

const wsWriteTimeout = 10 * time.Second

// ProgressHandler 进度事件WebSocket处理器
// 每个连接独立订阅事件总线，连接断开即退订
type ProgressHandler struct {
	bus      *progress.Bus
	upgrader websocket.Upgrader
}

// NewProgressHandler 创建ProgressHandler
func NewProgressHandler(bus *progress.Bus) *ProgressHandler {
	return &ProgressHandler{
		bus: bus,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Stream 推送任务状态事件
// GET /api/v1/ws/progress
func (h *ProgressHandler) Stream(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("⚠️  [WebSocket升级失败] Error=%v", err)
		return
	}
	defer conn.Close()

	ctx := c.Request.Context()
	events, err := h.bus.Subscribe(ctx)
	if err != nil {
		log.Printf("❌ [订阅进度事件失败] Error=%v", err)
		return
	}

	// 读循环只用于感知客户端断开
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				conn.Close()
				return
			}
		}
	}()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
