// Package telemetry implements the ground-station uplink: 10 Hz UDP
// heartbeat/attitude datagrams (spec §6, the wire contract) plus a
// websocket live-feed enrichment in the teacher's style
// (Valkyrie/internal/livefeed/streamer.go), gated by the CLI's -m flag.
package telemetry

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"math"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/arobi/flightcore/internal/fcstate"
	"github.com/arobi/flightcore/internal/obslog"
)

const tickPeriod = 100 * time.Millisecond // 10 Hz

type packetKind uint8

const (
	packetHeartbeat packetKind = iota
	packetAttitude
)

// Uplink owns the 10 Hz UDP datagram send loop. Packet payload is
// opaque to the spec; this wire layout is an internal contract
// between this writer and whatever ground-station reader is paired
// with it.
type Uplink struct {
	store *fcstate.Store
	conn  *net.UDPConn
}

// Dial resolves addr ("host:port") and opens the UDP socket used for
// outbound datagrams.
func Dial(store *fcstate.Store, addr string) (*Uplink, error) {
	raddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, err
	}
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return nil, err
	}
	return &Uplink{store: store, conn: conn}, nil
}

// Run sends heartbeat and attitude datagrams at 10 Hz until ctx is done.
func (u *Uplink) Run(ctx context.Context) error {
	defer u.conn.Close()
	ticker := time.NewTicker(tickPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			u.sendHeartbeat()
			u.sendAttitude()
		}
	}
}

func (u *Uplink) sendHeartbeat() {
	buf := make([]byte, 9)
	buf[0] = byte(packetHeartbeat)
	binary.LittleEndian.PutUint64(buf[1:], uint64(time.Now().UnixMicro()))
	if _, err := u.conn.Write(buf); err != nil {
		obslog.Logger.WithError(err).Debug("telemetry: heartbeat send failed")
	}
}

func (u *Uplink) sendAttitude() {
	st := u.store.State()
	buf := make([]byte, 1+8+8*6)
	buf[0] = byte(packetAttitude)
	binary.LittleEndian.PutUint64(buf[1:9], uint64(time.Now().UnixMicro()))
	putFloat(buf[9:17], st.Roll)
	putFloat(buf[17:25], st.Pitch)
	putFloat(buf[25:33], st.Yaw)
	putFloat(buf[33:41], st.DRoll)
	putFloat(buf[41:49], st.DPitch)
	putFloat(buf[49:57], st.DYaw)
	if _, err := u.conn.Write(buf); err != nil {
		obslog.Logger.WithError(err).Debug("telemetry: attitude send failed")
	}
}

func putFloat(b []byte, v float64) {
	binary.LittleEndian.PutUint64(b, math.Float64bits(v))
}

// LiveFeed broadcasts the same attitude snapshots to websocket
// subscribers as an enrichment over the raw UDP contract, grounded on
// the teacher's livefeed.LiveFeedStreamer.
type LiveFeed struct {
	mu       sync.RWMutex
	clients  map[*websocket.Conn]bool
	upgrader websocket.Upgrader
	store    *fcstate.Store
}

// attitudeMessage is the JSON payload pushed to websocket subscribers.
type attitudeMessage struct {
	Timestamp time.Time `json:"timestamp"`
	Roll      float64   `json:"roll"`
	Pitch     float64   `json:"pitch"`
	Yaw       float64   `json:"yaw"`
	Mode      string    `json:"mode"`
	Loop      uint64    `json:"loop"`
}

func NewLiveFeed(store *fcstate.Store) *LiveFeed {
	return &LiveFeed{
		clients: make(map[*websocket.Conn]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		store: store,
	}
}

// HandleWebSocket upgrades an HTTP connection and registers it as a
// telemetry subscriber.
func (lf *LiveFeed) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := lf.upgrader.Upgrade(w, r, nil)
	if err != nil {
		obslog.Logger.WithError(err).Warn("telemetry: websocket upgrade failed")
		return
	}
	lf.mu.Lock()
	lf.clients[conn] = true
	lf.mu.Unlock()
}

// Run pushes an attitude snapshot to every connected client at 10 Hz
// until ctx is done.
func (lf *LiveFeed) Run(ctx context.Context) error {
	ticker := time.NewTicker(tickPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			lf.closeAll()
			return nil
		case <-ticker.C:
			lf.broadcast()
		}
	}
}

func (lf *LiveFeed) broadcast() {
	st := lf.store.State()
	sp := lf.store.Setpoint()
	msg := attitudeMessage{
		Timestamp: time.Now(),
		Roll:      st.Roll,
		Pitch:     st.Pitch,
		Yaw:       st.Yaw,
		Mode:      sp.Mode.String(),
		Loop:      st.ControlLoops,
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}

	lf.mu.RLock()
	defer lf.mu.RUnlock()
	for conn := range lf.clients {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			obslog.Logger.WithError(err).Debug("telemetry: websocket write failed, dropping client")
			go lf.drop(conn)
		}
	}
}

func (lf *LiveFeed) drop(conn *websocket.Conn) {
	lf.mu.Lock()
	defer lf.mu.Unlock()
	delete(lf.clients, conn)
	conn.Close()
}

func (lf *LiveFeed) closeAll() {
	lf.mu.Lock()
	defer lf.mu.Unlock()
	for conn := range lf.clients {
		conn.Close()
		delete(lf.clients, conn)
	}
}
