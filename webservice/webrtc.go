package webservice

import (
	"encoding/json"
	"errors"
	"log"
	"sync"

	"github.com/pion/webrtc/v4"
)

// chunkSize keeps every data channel message under the SCTP limit browsers
// agree on.
const chunkSize = 16 * 1024

type frameHeader struct {
	Seq    uint64  `json:"seq"`
	Size   int     `json:"size"`
	Chunks int     `json:"chunks"`
	FPS    float64 `json:"fps"`
	Mbit   float64 `json:"mbit"`
}

// chunks splits b into pieces of at most size bytes.
func chunks(b []byte, size int) [][]byte {
	var out [][]byte
	for len(b) > size {
		out = append(out, b[:size:size])
		b = b[size:]
	}
	if len(b) > 0 {
		out = append(out, b)
	}
	return out
}

// HandleSDP answers a browser offer. The browser opens the data channel;
// onChannel is called once it is open.
func HandleSDP(sdp string, iceServers []string, onChannel func(pc *webrtc.PeerConnection, dc *webrtc.DataChannel)) (string, error) {
	offer := webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer,
		SDP:  sdp,
	}

	config := webrtc.Configuration{}
	if len(iceServers) > 0 {
		config.ICEServers = []webrtc.ICEServer{{URLs: iceServers}}
	}
	peerConnection, err := webrtc.NewPeerConnection(config)
	if err != nil {
		return "", err
	}

	peerConnection.OnDataChannel(func(dc *webrtc.DataChannel) {
		log.Printf("[web] data channel %q from browser", dc.Label())
		dc.OnOpen(func() {
			onChannel(peerConnection, dc)
		})
	})
	peerConnection.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Printf("[web] peer connection state: %s", s)
		if s == webrtc.PeerConnectionStateFailed || s == webrtc.PeerConnectionStateClosed {
			peerConnection.Close()
		}
	})

	if err := peerConnection.SetRemoteDescription(offer); err != nil {
		peerConnection.Close()
		return "", err
	}
	answer, err := peerConnection.CreateAnswer(nil)
	if err != nil {
		peerConnection.Close()
		return "", err
	}

	// wait for ICE gathering so the answer carries every candidate
	gatherComplete := webrtc.GatheringCompletePromise(peerConnection)
	if err := peerConnection.SetLocalDescription(answer); err != nil {
		peerConnection.Close()
		return "", err
	}
	<-gatherComplete

	local := peerConnection.LocalDescription()
	if local == nil {
		peerConnection.Close()
		return "", errors.New("webrtc: no local description")
	}
	return local.SDP, nil
}

// pushFrames streams screen frames over dc as a JSON header followed by
// binary chunks, until the channel or peer closes.
func pushFrames(sc *Screen, pc *webrtc.PeerConnection, dc *webrtc.DataChannel) {
	frames, cancel := sc.Subscribe()
	var once sync.Once
	stop := func() { once.Do(cancel) }
	dc.OnClose(stop)
	defer stop()

	for f := range frames {
		parts := chunks(f.JPEG, chunkSize)
		hdr, _ := json.Marshal(frameHeader{
			Seq:    f.Seq,
			Size:   len(f.JPEG),
			Chunks: len(parts),
			FPS:    f.Metrics.FPS,
			Mbit:   f.Metrics.ThroughputMbit,
		})
		if err := dc.SendText(string(hdr)); err != nil {
			log.Printf("[web] data channel send: %v", err)
			break
		}
		for _, p := range parts {
			if err := dc.Send(p); err != nil {
				log.Printf("[web] data channel send: %v", err)
				pc.Close()
				return
			}
		}
	}
	pc.Close()
}
