package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// ChangeEvent is one row change pushed by the backend.
type ChangeEvent struct {
	Type      string          // INSERT, UPDATE or DELETE
	Schema    string
	Table     string
	Record    json.RawMessage
	OldRecord json.RawMessage
}

// ChangeHandler receives change events. Handlers are expected to trigger a
// full refetch of the affected store; because every refetch is idempotent,
// duplicate or reordered events are harmless and no ordering guarantee is
// given.
type ChangeHandler func(ChangeEvent)

// ChangeConfig selects the rows a subscription observes.
type ChangeConfig struct {
	Event  string // INSERT, UPDATE, DELETE or "*" (default)
	Schema string // default "public"
	Table  string
	Filter string // equality predicate, e.g. "user_id=eq.<id>"
}

// ChangeFeed is the one-method surface stores depend on, so tests can
// substitute a fake feed for the websocket client.
type ChangeFeed interface {
	// Subscribe registers a handler and returns a cancel function. Cancel is
	// idempotent and must be called on teardown; the underlying channel is
	// closed when its last subscriber cancels.
	Subscribe(ctx context.Context, cfg ChangeConfig, fn ChangeHandler) (func(), error)
}

// RealtimeConfig configures the realtime client.
type RealtimeConfig struct {
	// URL is the project base URL; the websocket endpoint is derived from it.
	URL string
	// APIKey authenticates the socket.
	APIKey string
	// AccessToken, when set, is forwarded on join so row-level security
	// applies to the subscribed changes.
	AccessToken string
	// Logger receives connection-level logging.
	Logger *logrus.Logger
}

// RealtimeClient multiplexes change subscriptions over a single websocket.
// Channels are registered per (schema, table, filter) and reference counted:
// the first subscriber opens the channel, later subscribers share it, and the
// channel is left exactly once when the last subscriber cancels.
type RealtimeClient struct {
	mu          sync.Mutex
	url         string
	accessToken string
	dial        func(ctx context.Context) (wsConn, error)
	conn        wsConn
	channels    map[string]*realtimeChannel
	done        chan struct{}
	ref         int
	closed      bool
	log         *logrus.Logger
}

// wsConn is the subset of the websocket connection the client uses; tests
// inject fakes through the dial hook.
type wsConn interface {
	ReadMessage() (int, []byte, error)
	WriteJSON(v any) error
	Close() error
}

type realtimeChannel struct {
	topic   string
	joinRef string
	config  ChangeConfig
	subs    map[int]*subscription
	nextSub int
}

type subscription struct {
	event string
	fn    ChangeHandler
}

// NewRealtimeClient creates a realtime client. The connection is dialed
// lazily on the first subscription.
func NewRealtimeClient(cfg RealtimeConfig) *RealtimeClient {
	wsURL := cfg.URL
	if strings.HasPrefix(wsURL, "https") {
		wsURL = "wss" + wsURL[len("https"):]
	} else if strings.HasPrefix(wsURL, "http") {
		wsURL = "ws" + wsURL[len("http"):]
	}
	wsURL = strings.TrimSuffix(wsURL, "/") + "/realtime/v1/websocket?apikey=" + cfg.APIKey + "&vsn=1.0.0"

	log := cfg.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}

	c := &RealtimeClient{
		url:         wsURL,
		accessToken: cfg.AccessToken,
		channels:    make(map[string]*realtimeChannel),
		done:        make(chan struct{}),
		log:         log,
	}
	c.dial = c.dialWebsocket
	return c
}

// Subscribe implements ChangeFeed.
func (r *RealtimeClient) Subscribe(ctx context.Context, cfg ChangeConfig, fn ChangeHandler) (func(), error) {
	if cfg.Table == "" {
		return nil, fmt.Errorf("gateway: realtime subscription needs a table")
	}
	if cfg.Schema == "" {
		cfg.Schema = "public"
	}
	if cfg.Event == "" {
		cfg.Event = "*"
	}
	topic := topicFor(cfg)

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, fmt.Errorf("gateway: realtime client is closed")
	}
	if err := r.ensureConnLocked(ctx); err != nil {
		r.mu.Unlock()
		return nil, err
	}

	ch, joined := r.channels[topic]
	if !joined {
		ch = &realtimeChannel{topic: topic, config: cfg, subs: make(map[int]*subscription)}
		r.channels[topic] = ch
	}
	id := ch.nextSub
	ch.nextSub++
	ch.subs[id] = &subscription{event: cfg.Event, fn: fn}

	if !joined {
		r.ref++
		ch.joinRef = strconv.Itoa(r.ref)
		if err := r.conn.WriteJSON(joinMessage(ch, r.accessToken)); err != nil {
			delete(r.channels, topic)
			r.mu.Unlock()
			return nil, fmt.Errorf("gateway: join channel: %w", err)
		}
	}
	r.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() { r.unsubscribe(topic, id) })
	}
	return cancel, nil
}

// Close tears down every channel and the socket. Handlers registered before
// Close are never invoked afterwards.
func (r *RealtimeClient) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	close(r.done)
	r.channels = make(map[string]*realtimeChannel)
	if r.conn != nil {
		err := r.conn.Close()
		r.conn = nil
		return err
	}
	return nil
}

func (r *RealtimeClient) unsubscribe(topic string, id int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ch, ok := r.channels[topic]
	if !ok {
		return
	}
	delete(ch.subs, id)
	if len(ch.subs) > 0 {
		return
	}

	delete(r.channels, topic)
	if r.conn != nil {
		r.ref++
		msg := map[string]any{
			"topic":    topic,
			"event":    "phx_leave",
			"payload":  map[string]any{},
			"ref":      strconv.Itoa(r.ref),
			"join_ref": ch.joinRef,
		}
		if err := r.conn.WriteJSON(msg); err != nil {
			r.log.WithError(err).WithField("topic", topic).Warn("realtime leave failed")
		}
	}
}

func (r *RealtimeClient) ensureConnLocked(ctx context.Context) error {
	if r.conn != nil {
		return nil
	}
	conn, err := r.dial(ctx)
	if err != nil {
		return fmt.Errorf("gateway: realtime dial: %w", err)
	}
	r.conn = conn
	go r.readLoop(conn)
	go r.heartbeat()
	return nil
}

func (r *RealtimeClient) dialWebsocket(ctx context.Context) (wsConn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, r.url, nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

type envelope struct {
	Topic   string          `json:"topic"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
	Ref     any             `json:"ref"`
}

type changePayload struct {
	Data struct {
		Type      string          `json:"type"`
		Schema    string          `json:"schema"`
		Table     string          `json:"table"`
		Record    json.RawMessage `json:"record"`
		OldRecord json.RawMessage `json:"old_record"`
	} `json:"data"`
}

func (r *RealtimeClient) readLoop(conn wsConn) {
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-r.done:
			default:
				r.log.WithError(err).Warn("realtime connection closed")
			}
			return
		}

		var env envelope
		if err := json.Unmarshal(msg, &env); err != nil {
			continue
		}
		if env.Event != "postgres_changes" {
			continue
		}
		var payload changePayload
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			continue
		}
		r.dispatch(env.Topic, ChangeEvent{
			Type:      payload.Data.Type,
			Schema:    payload.Data.Schema,
			Table:     payload.Data.Table,
			Record:    payload.Data.Record,
			OldRecord: payload.Data.OldRecord,
		})
	}
}

// dispatch invokes matching handlers synchronously, outside the client lock.
// Handlers only schedule refetches, so serial delivery keeps teardown
// deterministic: once a subscription is cancelled its handler cannot fire.
func (r *RealtimeClient) dispatch(topic string, event ChangeEvent) {
	r.mu.Lock()
	ch, ok := r.channels[topic]
	var handlers []ChangeHandler
	if ok {
		for _, sub := range ch.subs {
			if sub.event == "*" || sub.event == event.Type {
				handlers = append(handlers, sub.fn)
			}
		}
	}
	r.mu.Unlock()

	for _, fn := range handlers {
		fn(event)
	}
}

func (r *RealtimeClient) heartbeat() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-r.done:
			return
		case <-ticker.C:
			r.mu.Lock()
			if r.conn != nil {
				r.ref++
				msg := map[string]any{
					"topic":   "phoenix",
					"event":   "heartbeat",
					"payload": map[string]any{},
					"ref":     strconv.Itoa(r.ref),
				}
				if err := r.conn.WriteJSON(msg); err != nil {
					r.log.WithError(err).Warn("realtime heartbeat failed")
				}
			}
			r.mu.Unlock()
		}
	}
}

func topicFor(cfg ChangeConfig) string {
	topic := "realtime:" + cfg.Schema + ":" + cfg.Table
	if cfg.Filter != "" {
		topic += ":" + cfg.Filter
	}
	return topic
}

func joinMessage(ch *realtimeChannel, accessToken string) map[string]any {
	change := map[string]any{
		"event":  ch.config.Event,
		"schema": ch.config.Schema,
		"table":  ch.config.Table,
	}
	if ch.config.Filter != "" {
		change["filter"] = ch.config.Filter
	}
	payload := map[string]any{
		"config": map[string]any{
			"postgres_changes": []map[string]any{change},
		},
	}
	if accessToken != "" {
		payload["access_token"] = accessToken
	}
	return map[string]any{
		"topic":    ch.topic,
		"event":    "phx_join",
		"payload":  payload,
		"ref":      ch.joinRef,
		"join_ref": ch.joinRef,
	}
}
