package display

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"MLvsTheWorld/model"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Selector is the selection surface: one entry per model identity.
type Selector interface {
	Active() model.Identity
	Select(id model.Identity) bool
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Router builds the HTTP surface of the hub.
func (h *Hub) Router(sel Selector) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/api/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})
	r.GET("/api/models", func(c *gin.Context) {
		active := sel.Active()
		models := make([]gin.H, 0, len(model.All()))
		for _, id := range model.All() {
			models = append(models, gin.H{
				"name":     id.String(),
				"artifact": id.FileName(),
				"active":   id == active,
			})
		}
		c.JSON(http.StatusOK, gin.H{"data": models})
	})
	r.POST("/api/models/:name/select", func(c *gin.Context) {
		id, err := model.Parse(c.Param("name"))
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		changed := sel.Select(id)
		c.JSON(http.StatusOK, gin.H{"data": gin.H{"active": id.String(), "changed": changed}})
	})
	r.GET("/api/overlay.png", func(c *gin.Context) {
		png := h.Snapshot().OverlayPNG
		if png == nil {
			c.Status(http.StatusNoContent)
			return
		}
		c.Data(http.StatusOK, "image/png", png)
	})
	r.GET("/api/label", func(c *gin.Context) {
		s := h.Snapshot()
		c.JSON(http.StatusOK, gin.H{"data": gin.H{"label": s.Label, "model": s.Model.String(), "seq": s.LastSeq}})
	})
	r.GET("/api/preview.jpg", func(c *gin.Context) {
		jpg := h.Snapshot().PreviewJPG
		if jpg == nil {
			c.Status(http.StatusNoContent)
			return
		}
		c.Data(http.StatusOK, "image/jpeg", jpg)
	})
	r.GET("/ws", h.serveWS)
	return r
}

func (h *Hub) serveWS(c *gin.Context) {
	select {
	case <-h.done:
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "display stopped"})
		return
	default:
	}
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	cl := &client{id: uuid.NewString(), conn: conn, send: make(chan []byte, 16)}
	h.clientsMu.Lock()
	if h.clientsClosed {
		h.clientsMu.Unlock()
		_ = conn.Close()
		return
	}
	h.clients[cl.id] = cl
	h.clientsMu.Unlock()
	h.log.Info("websocket client connected", zap.String("client", cl.id))

	go h.writeLoop(cl)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			h.dropClient(cl.id)
			h.log.Info("websocket client gone", zap.String("client", cl.id), zap.Error(err))
			return
		}
	}
}

func (h *Hub) writeLoop(cl *client) {
	for msg := range cl.send {
		_ = cl.conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
		if err := cl.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			h.dropClient(cl.id)
			return
		}
	}
	_ = cl.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "display stopped"))
	_ = cl.conn.Close()
}

func (h *Hub) dropClient(id string) {
	h.clientsMu.Lock()
	cl, ok := h.clients[id]
	if ok {
		delete(h.clients, id)
		close(cl.send)
	}
	h.clientsMu.Unlock()
}

func (h *Hub) closeClients() {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()
	h.clientsClosed = true
	for id, cl := range h.clients {
		close(cl.send)
		delete(h.clients, id)
	}
}

// Serve runs the HTTP surface on port until ctx is cancelled.
func (h *Hub) Serve(ctx context.Context, port int, sel Selector) error {
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: h.Router(sel),
	}
	errCh := make(chan error, 1)
	go func() {
		h.log.Info("display server listening", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
