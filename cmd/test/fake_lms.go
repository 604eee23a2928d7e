package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"submission-observer/src/logger"
	"submission-observer/src/models"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// -----------------------------------------------------------------------------
// FakeLMS is a minimal stand-in for the learning platform: the REST endpoints
// the observer pulls from plus the raw websocket endpoint it subscribes to.
// Used for local end-to-end runs without a real server.
// -----------------------------------------------------------------------------

type FakeLMS struct {
	Logger *logger.Logger
	Token  string

	engine   *gin.Engine
	upgrader websocket.Upgrader

	mu             sync.Mutex
	clients        map[*client]struct{}
	participations []models.MParticipation
}

// client is one websocket session with its subscription set.
type client struct {
	conn   *websocket.Conn
	mu     sync.Mutex // Serializes writes
	topics map[string]bool
}

// -----------------------------------------------------------------------------

func NewFakeLMS(log *logger.Logger, token string) *FakeLMS {
	gin.SetMode(gin.ReleaseMode)

	f := &FakeLMS{
		Logger:   log,
		Token:    token,
		engine:   gin.New(),
		upgrader: websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 1024},
		clients:  make(map[*client]struct{}),
	}

	f.engine.GET("/api/health", f.getHealth)
	f.engine.GET("/api/participations", f.getParticipations)
	f.engine.GET("/api/participations/:pid/results/:rid/details", f.getResultDetails)
	f.engine.GET("/websocket/tracker/websocket", f.handleWebsocket)

	return f
}

// -----------------------------------------------------------------------------

func (f *FakeLMS) Start(addr string) error {
	f.Logger.Info("Starting fake LMS on %s", addr)
	return f.engine.Run(addr)
}

// -----------------------------------------------------------------------------

// SetParticipations replaces the dashboard the REST pull returns.
func (f *FakeLMS) SetParticipations(participations []models.MParticipation) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.participations = participations
}

// -----------------------------------------------------------------------------

// authorized checks the session cookie. The credential is always carried as a
// cookie, never as a URL parameter.
func (f *FakeLMS) authorized(c *gin.Context) bool {
	cookie, err := c.Cookie("jwt")
	return err == nil && cookie == f.Token
}

// -----------------------------------------------------------------------------
// REST handlers
// -----------------------------------------------------------------------------

func (f *FakeLMS) getHealth(c *gin.Context) {
	c.JSON(200, gin.H{"status": "ok"})
}

// -----------------------------------------------------------------------------

func (f *FakeLMS) getParticipations(c *gin.Context) {
	if !f.authorized(c) {
		c.JSON(401, gin.H{"error": "unauthorized"})
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	c.JSON(200, f.participations)
}

// -----------------------------------------------------------------------------

func (f *FakeLMS) getResultDetails(c *gin.Context) {
	if !f.authorized(c) {
		c.JSON(401, gin.H{"error": "unauthorized"})
		return
	}

	var pid, rid int64
	fmt.Sscanf(c.Param("pid"), "%d", &pid)
	fmt.Sscanf(c.Param("rid"), "%d", &rid)

	f.mu.Lock()
	defer f.mu.Unlock()

	for i := range f.participations {
		if f.participations[i].ID != pid {
			continue
		}
		for j := range f.participations[i].Submissions {
			for k := range f.participations[i].Submissions[j].Results {
				if f.participations[i].Submissions[j].Results[k].ID == rid {
					c.JSON(200, f.participations[i].Submissions[j].Results[k])
					return
				}
			}
		}
	}

	c.JSON(404, gin.H{"error": "result not found"})
}

// -----------------------------------------------------------------------------
// Websocket handling
// -----------------------------------------------------------------------------

func (f *FakeLMS) handleWebsocket(c *gin.Context) {
	if !f.authorized(c) {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	conn, err := f.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		f.Logger.Error("Upgrade failed: %v", err)
		return
	}

	cl := &client{conn: conn, topics: make(map[string]bool)}

	f.mu.Lock()
	f.clients[cl] = struct{}{}
	f.mu.Unlock()

	f.Logger.Info("Client connected")
	go f.readLoop(cl)
}

// -----------------------------------------------------------------------------

func (f *FakeLMS) readLoop(cl *client) {
	defer func() {
		f.mu.Lock()
		delete(f.clients, cl)
		f.mu.Unlock()
		cl.conn.Close()
		f.Logger.Info("Client disconnected")
	}()

	for {
		_, raw, err := cl.conn.ReadMessage()
		if err != nil {
			return
		}

		var cmd models.MSubscribeCommand
		if err := json.Unmarshal(raw, &cmd); err != nil {
			f.Logger.Warning("Unreadable command: %v", err)
			continue
		}

		f.mu.Lock()
		switch cmd.Command {
		case "subscribe":
			cl.topics[cmd.Topic] = true
			f.Logger.Info("Subscribed: %s", cmd.Topic)
		case "unsubscribe":
			delete(cl.topics, cmd.Topic)
			f.Logger.Info("Unsubscribed: %s", cmd.Topic)
		default:
			f.Logger.Warning("Unknown command: %s", cmd.Command)
		}
		f.mu.Unlock()
	}
}

// -----------------------------------------------------------------------------

// Push publishes one payload on a topic to every subscribed client.
func (f *FakeLMS) Push(topic string, payload interface{}) {
	body, err := json.Marshal(payload)
	if err != nil {
		f.Logger.Error("Marshal for push failed: %v", err)
		return
	}

	frame := models.MTopicFrame{Topic: topic, Payload: body}

	f.mu.Lock()
	targets := make([]*client, 0, len(f.clients))
	for cl := range f.clients {
		if cl.topics[topic] {
			targets = append(targets, cl)
		}
	}
	f.mu.Unlock()

	for _, cl := range targets {
		cl.mu.Lock()
		if err := cl.conn.WriteJSON(frame); err != nil {
			f.Logger.Warning("Push write failed: %v", err)
		}
		cl.mu.Unlock()
	}
}

// -----------------------------------------------------------------------------

// ClientCount returns how many websocket sessions are open.
func (f *FakeLMS) ClientCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.clients)
}
