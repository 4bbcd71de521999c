package views

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"

	"github.com/gorilla/websocket"

	"imu-fusion/models"
	"imu-fusion/utils"
)

const (
	socketBufferSize  = 1024
	messageBufferSize = 64
	forwardBufferSize = 256
)

// LiveMessage is the JSON frame sent to live clients for every output.
type LiveMessage struct {
	Index      int                  `json:"index"`
	Timestamp  float64              `json:"timestamp"`
	Quaternion [4]float64           `json:"quaternion"` // w, x, y, z
	Euler      models.Euler         `json:"euler"`
	State      models.InternalState `json:"state"`
	Flags      models.Flags         `json:"flags"`
}

func NewLiveMessage(o *models.Output) LiveMessage {
	q := o.Quaternion
	return LiveMessage{
		Index:      o.Index,
		Timestamp:  o.Timestamp,
		Quaternion: [4]float64{q.Real, q.Imag, q.Jmag, q.Kmag},
		Euler:      o.Euler,
		State:      o.State,
		Flags:      o.Flags,
	}
}

// LiveStream fans per-sample outputs out to websocket clients. One
// goroutine (Run) owns the client set; Broadcast never blocks, and a
// client that falls behind misses frames rather than slowing the pipeline.
type LiveStream struct {
	forward chan []byte
	join    chan *liveClient
	leave   chan *liveClient
	done    chan struct{}
	clients map[*liveClient]bool

	count   int32
	dropped uint64
}

type liveClient struct {
	socket *websocket.Conn
	send   chan []byte
}

func NewLiveStream() *LiveStream {
	return &LiveStream{
		forward: make(chan []byte, forwardBufferSize),
		join:    make(chan *liveClient),
		leave:   make(chan *liveClient),
		done:    make(chan struct{}),
		clients: make(map[*liveClient]bool),
	}
}

// Run serves joins, leaves and broadcasts until ctx is done, then
// disconnects every client.
func (r *LiveStream) Run(ctx context.Context) {
	defer close(r.done)
	for {
		select {
		case <-ctx.Done():
			atomic.StoreInt32(&r.count, 0)
			for c := range r.clients {
				delete(r.clients, c)
				close(c.send)
			}
			utils.L().Info("live stream stopped  (dropped=%d)", atomic.LoadUint64(&r.dropped))
			return
		case c := <-r.join:
			r.clients[c] = true
			atomic.AddInt32(&r.count, 1)
			utils.L().Info("live stream: client joined (%s)", c.socket.RemoteAddr())
		case c := <-r.leave:
			if r.clients[c] {
				delete(r.clients, c)
				close(c.send)
				atomic.AddInt32(&r.count, -1)
				utils.L().Info("live stream: client left (%s)", c.socket.RemoteAddr())
			}
		case msg := <-r.forward:
			for c := range r.clients {
				select {
				case c.send <- msg:
				default:
					atomic.AddUint64(&r.dropped, 1)
				}
			}
		}
	}
}

// Broadcast queues one output for every connected client.
func (r *LiveStream) Broadcast(o *models.Output) error {
	if atomic.LoadInt32(&r.count) == 0 {
		return nil
	}
	b, err := json.Marshal(NewLiveMessage(o))
	if err != nil {
		return err
	}
	select {
	case r.forward <- b:
	case <-r.done:
	default:
		atomic.AddUint64(&r.dropped, 1)
	}
	return nil
}

// Clients returns the number of connected clients.
func (r *LiveStream) Clients() int { return int(atomic.LoadInt32(&r.count)) }

// Dropped returns how many frames were not delivered to a client.
func (r *LiveStream) Dropped() uint64 { return atomic.LoadUint64(&r.dropped) }

var upgrader = &websocket.Upgrader{ReadBufferSize: socketBufferSize, WriteBufferSize: socketBufferSize}

func (r *LiveStream) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	socket, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		utils.L().Warn("live stream upgrade: %v", err)
		return
	}
	c := &liveClient{
		socket: socket,
		send:   make(chan []byte, messageBufferSize),
	}
	select {
	case r.join <- c:
	case <-r.done:
		socket.Close()
		return
	}

	go c.write()
	c.read()

	select {
	case r.leave <- c:
	case <-r.done:
	}
}

// read discards client frames until the connection fails.
func (c *liveClient) read() {
	defer c.socket.Close()
	for {
		if _, _, err := c.socket.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *liveClient) write() {
	defer c.socket.Close()
	for msg := range c.send {
		if err := c.socket.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
	_ = c.socket.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
