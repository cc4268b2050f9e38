package webservice

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pion/webrtc/v4"

	"github.com/RogersSccot/STI-Vision/camproto"
	"github.com/RogersSccot/STI-Vision/session"
	"github.com/RogersSccot/STI-Vision/snapshot"
)

type SessionInfo struct {
	SessionID   string                   `json:"session_id,omitempty"`
	State       session.State            `json:"state"`
	Endpoint    string                   `json:"endpoint,omitempty"`
	Options     *camproto.CaptureOptions `json:"options,omitempty"`
	Metrics     session.Metrics          `json:"metrics"`
	LastError   string                   `json:"last_error,omitempty"`
	Subscribers int                      `json:"subscribers"`
}

func (wm *WebMaster) handleSessionInfo(c *gin.Context) {
	info := SessionInfo{
		State:       session.Disconnected,
		Subscribers: wm.screen.Subscribers(),
	}
	if s := wm.screen.Session(); s != nil {
		opts := s.Options()
		info.SessionID = s.ID
		info.State = s.State()
		info.Endpoint = s.Endpoint().String()
		info.Options = &opts
		info.Metrics = s.Metrics()
	}
	if err := wm.screen.LastError(); err != nil {
		info.LastError = err.Error()
	}
	c.JSON(http.StatusOK, info)
}

func (wm *WebMaster) handleSnapshot(c *gin.Context) {
	f := wm.screen.Latest()
	if f == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no frame received yet"})
		return
	}
	location, err := wm.store.Save(c.Request.Context(), snapshot.Name(time.Now()), f.Original)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"location": location, "seq": f.Seq})
}

// handleStop is the viewer's cancel key: the session closes without being
// reported as a failure and no reconnect follows.
func (wm *WebMaster) handleStop(c *gin.Context) {
	if wm.config.OnStop != nil {
		wm.config.OnStop()
	}
	s := wm.screen.Session()
	if s == nil {
		c.JSON(http.StatusOK, gin.H{"state": session.Disconnected})
		return
	}
	s.Stop()
	c.JSON(http.StatusOK, gin.H{"state": s.State()})
}

func (wm *WebMaster) handleWebRTCOffer(c *gin.Context) {
	var req struct {
		SDP  string `json:"sdp" binding:"required"`
		Type string `json:"type"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	if req.Type != "" && req.Type != webrtc.SDPTypeOffer.String() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "expected an offer"})
		return
	}

	answer, err := HandleSDP(req.SDP, wm.config.ICEServers, func(pc *webrtc.PeerConnection, dc *webrtc.DataChannel) {
		go pushFrames(wm.screen, pc, dc)
	})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"type": webrtc.SDPTypeAnswer.String(), "sdp": answer})
}
