package ws

import (
	"context"
	"encoding/json"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"ecomap-navigation/internal/geo"
	"ecomap-navigation/internal/navigation"
	"ecomap-navigation/internal/route"
	"ecomap-navigation/internal/search"
)

const (
	// sendChannelSize controls the max number
	// of messages that can be queued for a client.
	sendChannelSize = 16
	pingPeriod      = (60 * 9 * time.Second) / 10

	// maxRouteDeviation is how far a fix may sit from the active route
	// before it is rejected as noise, in meters.
	maxRouteDeviation = 250.0
)

type Message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type startPayload struct {
	Geometry [][]float64 `json:"geometry"`
	Distance float64     `json:"distance"`
	Duration float64     `json:"duration"`
}

type advancePayload struct {
	Direction string `json:"direction"`
}

type syncPayload struct {
	Enabled bool `json:"enabled"`
}

type searchPayload struct {
	Query string `json:"query"`
}

type instructionPayload struct {
	Text string `json:"text"`
}

type Client struct {
	ID      string
	Conn    *websocket.Conn
	Manager *Manager
	send    chan Message
	ctx     context.Context
	cancel  context.CancelFunc

	feed      *positionFeed
	session   *navigation.Session
	debouncer *search.Debouncer
}

func NewClient(id string, conn *websocket.Conn, manager *Manager) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		ID:        id,
		Conn:      conn,
		Manager:   manager,
		send:      make(chan Message, sendChannelSize),
		ctx:       ctx,
		cancel:    cancel,
		feed:      newPositionFeed(),
		debouncer: search.NewDebouncer(search.DebounceInterval),
	}
	c.session = navigation.NewSession(id, c.feed, c, manager.logger)
	return c
}

func (c *Client) Start() {
	go c.readPump()
	go c.writePump()
	c.Manager.register <- c
}

func (c *Client) Close() {
	c.debouncer.Stop()
	c.session.Stop()
	if err := c.Conn.Close(websocket.StatusNormalClosure, "bye :P"); err != nil {
		c.Manager.logger.Warn("failed to close connection", "error", err)
	}
	c.cancel()
}

func (c *Client) Send(msg Message) {
	select {
	case c.send <- msg:
	default:
		// Close tears down the session, which waits for the position
		// consumer to finish. Speak can be called from that consumer, so
		// the disconnect must not run on the caller's goroutine.
		go c.Manager.forceDisconnect(c)
	}
}

// Speak delivers a spoken instruction to the client as an outbound message.
func (c *Client) Speak(text string) {
	data, err := json.Marshal(instructionPayload{Text: text})
	if err != nil {
		c.Manager.logger.Warn("failed to marshal instruction", "clientID", c.ID, "error", err)
		return
	}
	c.Send(Message{Type: "instruction", Data: data})
}

// Cancel tells the client to stop any in-flight speech.
func (c *Client) Cancel() {
	c.Send(Message{Type: "speech-cancel"})
}

func (c *Client) readPump() {
	defer func() {
		c.Manager.unregister <- c
		c.Close()
	}()

	for {
		var msg Message
		if err := wsjson.Read(c.ctx, c.Conn, &msg); err != nil {
			c.Manager.logger.Warn("failed to read message", "clientID", c.ID, "error", err)
			break
		}
		c.handleMessage(msg)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				_ = c.Conn.Close(websocket.StatusNormalClosure, "bye :P")
				return
			}
			if err := wsjson.Write(c.ctx, c.Conn, msg); err != nil {
				c.Manager.logger.Warn("failed to write message", "clientID", c.ID, "error", err)
				return
			}
			c.Manager.logger.Debug("message sent", "clientID", c.ID, "type", msg.Type)
		case <-ticker.C:
			if err := c.Conn.Ping(c.ctx); err != nil {
				c.Manager.logger.Debug("failed to ping client", "clientID", c.ID, "error", err)
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Client) handleMessage(msg Message) {
	switch msg.Type {
	case "start":
		c.handleStart(msg.Data)
	case "position":
		c.handlePosition(msg.Data)
	case "advance":
		c.handleAdvance(msg.Data)
	case "sync":
		c.handleSync(msg.Data)
	case "search":
		c.handleSearch(msg.Data)
	case "stop":
		c.session.Stop()
		c.sendSnapshot()
	default:
		c.Manager.logger.Debug("received unknown type message", "clientID", c.ID, "type", msg.Type)
	}
}

func (c *Client) handleStart(data json.RawMessage) {
	var payload startPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		c.Manager.logger.Warn("failed to unmarshal start message", "clientID", c.ID, "error", err)
		return
	}

	geometry := make([]geo.Point, 0, len(payload.Geometry))
	for _, coord := range payload.Geometry {
		if len(coord) != 2 {
			c.Manager.logger.Warn("malformed coordinate in start message", "clientID", c.ID)
			return
		}
		geometry = append(geometry, geo.Point{Lon: coord[0], Lat: coord[1]})
	}

	r := route.New(geometry, payload.Distance, payload.Duration)
	if err := c.session.Start(r); err != nil {
		c.Manager.logger.Warn("failed to start navigation", "clientID", c.ID, "error", err)
		return
	}
	c.sendSnapshot()
}

func (c *Client) handlePosition(data json.RawMessage) {
	var pos navigation.Position
	if err := json.Unmarshal(data, &pos); err != nil {
		c.Manager.logger.Warn("failed to unmarshal position", "clientID", c.ID, "error", err)
		return
	}
	if pos.Timestamp.IsZero() {
		pos.Timestamp = time.Now()
	}

	geometry := c.session.Route().Geometry
	if len(geometry) > 0 {
		deviation := geo.DistanceToPolyline(geo.Point{Lon: pos.Lon, Lat: pos.Lat}, geometry)
		if deviation > maxRouteDeviation {
			c.Manager.logger.Debug("position too far from route, dropping",
				"clientID", c.ID, "deviation", deviation)
			return
		}
	}

	c.feed.Publish(pos)
}

func (c *Client) handleAdvance(data json.RawMessage) {
	var payload advancePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		c.Manager.logger.Warn("failed to unmarshal advance message", "clientID", c.ID, "error", err)
		return
	}

	switch payload.Direction {
	case "previous":
		c.session.Advance(navigation.DirectionPrevious)
	default:
		c.session.Advance(navigation.DirectionNext)
	}
	c.sendSnapshot()
}

func (c *Client) handleSync(data json.RawMessage) {
	var payload syncPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		c.Manager.logger.Warn("failed to unmarshal sync message", "clientID", c.ID, "error", err)
		return
	}

	if payload.Enabled {
		c.session.EnableSync(c.ctx)
	} else {
		c.session.DisableSync()
	}
	c.sendSnapshot()
}

// handleSearch debounces keystroke bursts so only the last query in a quiet
// window hits the geocoder.
func (c *Client) handleSearch(data json.RawMessage) {
	var payload searchPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		c.Manager.logger.Warn("failed to unmarshal search message", "clientID", c.ID, "error", err)
		return
	}

	c.debouncer.Do(func() {
		suggestions := c.Manager.searcher.Search(c.ctx, payload.Query)
		out, err := json.Marshal(suggestions)
		if err != nil {
			c.Manager.logger.Warn("failed to marshal suggestions", "clientID", c.ID, "error", err)
			return
		}
		c.Send(Message{Type: "suggestions", Data: out})
	})
}

func (c *Client) sendSnapshot() {
	data, err := json.Marshal(c.session.Snapshot())
	if err != nil {
		c.Manager.logger.Warn("failed to marshal snapshot", "clientID", c.ID, "error", err)
		return
	}
	c.Send(Message{Type: "snapshot", Data: data})
}
