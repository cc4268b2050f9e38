package webservice

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/RogersSccot/STI-Vision/discovery"
)

// BrowseFunc lists advertised camera servers.
type BrowseFunc func(ctx context.Context) ([]discovery.Service, error)

// CamerasDiscovery refreshes the discovered camera list every interval until
// ctx is done.
func (wm *WebMaster) CamerasDiscovery(ctx context.Context, browse BrowseFunc, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		services, err := browse(ctx)
		if err == nil {
			wm.camerasMu.Lock()
			wm.cameras = make(map[string]discovery.Service, len(services))
			for _, s := range services {
				wm.cameras[s.Instance] = s
			}
			wm.camerasMu.Unlock()
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

type CameraInfo struct {
	Instance string `json:"instance"`
	Endpoint string `json:"endpoint"`
	HostName string `json:"host_name"`
}

func (wm *WebMaster) handleListCameras(c *gin.Context) {
	wm.camerasMu.RLock()
	defer wm.camerasMu.RUnlock()

	cameras := make([]CameraInfo, 0, len(wm.cameras))
	for _, s := range wm.cameras {
		cameras = append(cameras, CameraInfo{
			Instance: s.Instance,
			Endpoint: s.Endpoint().String(),
			HostName: s.HostName,
		})
	}
	sort.Slice(cameras, func(i, j int) bool { return cameras[i].Instance < cameras[j].Instance })
	c.JSON(http.StatusOK, gin.H{"cameras": cameras})
}
