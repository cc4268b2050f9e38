package webservice

import (
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	mjpegBoundary = "stivisionframe"
	wsWriteWait   = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 64 * 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins
	},
}

// handleScreenWS pushes each frame as a JSON metrics text message followed by
// the JPEG as a binary message.
func (wm *WebMaster) handleScreenWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Println("[web] Failed to upgrade to websocket:", err)
		return
	}
	defer conn.Close()

	frames, cancel := wm.screen.Subscribe()
	defer cancel()

	// the browser never sends anything useful; reading detects the close
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	for f := range frames {
		conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := conn.WriteJSON(gin.H{"seq": f.Seq, "metrics": f.Metrics}); err != nil {
			return
		}
		conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := conn.WriteMessage(websocket.BinaryMessage, f.JPEG); err != nil {
			return
		}
	}
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseGoingAway, "viewer closed"),
		time.Now().Add(wsWriteWait))
}

func (wm *WebMaster) handleMJPEG(c *gin.Context) {
	frames, cancel := wm.screen.Subscribe()
	defer cancel()

	c.Header("Content-Type", "multipart/x-mixed-replace; boundary="+mjpegBoundary)
	c.Header("Cache-Control", "no-cache")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case f, ok := <-frames:
			if !ok {
				return
			}
			if _, err := fmt.Fprintf(c.Writer, "--%s\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", mjpegBoundary, len(f.JPEG)); err != nil {
				return
			}
			if _, err := c.Writer.Write(f.JPEG); err != nil {
				return
			}
			if _, err := c.Writer.Write([]byte("\r\n")); err != nil {
				return
			}
			c.Writer.Flush()
		}
	}
}

func (wm *WebMaster) handleFrame(c *gin.Context) {
	f := wm.screen.Latest()
	if f == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no frame received yet"})
		return
	}
	c.Header("Cache-Control", "no-cache")
	c.Data(http.StatusOK, "image/jpeg", f.JPEG)
}
