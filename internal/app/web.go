package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sort"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gorilla/websocket"

	"github.com/relabs-tech/aoa_tester/internal/aoa"
	"github.com/relabs-tech/aoa_tester/internal/config"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// sampleClientBuffer is how many samples a slow websocket client may lag
// behind before samples are dropped for it.
const sampleClientBuffer = 64

// webState keeps what the web server has seen on MQTT.
type webState struct {
	mu      sync.RWMutex
	buckets map[string]map[aoa.GroundTruth]BucketMessage
	last    map[string]SampleMessage

	clientsMu sync.Mutex
	clients   map[chan []byte]struct{}
}

func newWebState() *webState {
	return &webState{
		buckets: make(map[string]map[aoa.GroundTruth]BucketMessage),
		last:    make(map[string]SampleMessage),
		clients: make(map[chan []byte]struct{}),
	}
}

func (s *webState) addBucket(m BucketMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byGT, ok := s.buckets[m.Anchor]
	if !ok {
		byGT = make(map[aoa.GroundTruth]BucketMessage)
		s.buckets[m.Anchor] = byGT
	}
	byGT[m.GroundTruth] = m
}

// addSample records m and fans the raw payload out to websocket clients.
func (s *webState) addSample(m SampleMessage, payload []byte) {
	s.mu.Lock()
	s.last[m.Anchor] = m
	s.mu.Unlock()

	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	for ch := range s.clients {
		select {
		case ch <- payload:
		default:
		}
	}
}

func (s *webState) subscribe() chan []byte {
	ch := make(chan []byte, sampleClientBuffer)
	s.clientsMu.Lock()
	s.clients[ch] = struct{}{}
	s.clientsMu.Unlock()
	return ch
}

func (s *webState) unsubscribe(ch chan []byte) {
	s.clientsMu.Lock()
	delete(s.clients, ch)
	s.clientsMu.Unlock()
}

// bucketList returns the windows of every anchor ordered by anchor and
// orientation.
func (s *webState) bucketList() []BucketMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	anchors := make([]string, 0, len(s.buckets))
	for a := range s.buckets {
		anchors = append(anchors, a)
	}
	sort.Strings(anchors)

	var out []BucketMessage
	for _, a := range anchors {
		byGT := s.buckets[a]
		keys := make([]aoa.GroundTruth, 0, len(byGT))
		for gt := range byGT {
			keys = append(keys, gt)
		}
		sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
		for _, gt := range keys {
			out = append(out, byGT[gt])
		}
	}
	return out
}

func (s *webState) anchorList() []SampleMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]SampleMessage, 0, len(s.last))
	for _, m := range s.last {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Anchor < out[j].Anchor })
	return out
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("web: json encode error: %v", err)
	}
}

func (s *webState) handleSamplesWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("web: websocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	ch := s.subscribe()
	defer s.unsubscribe(ch)

	// the reader only notices the client going away
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case payload := <-ch:
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				log.Printf("web: websocket write error: %v", err)
				return
			}
		}
	}
}

// routes registers the API, the live sample websocket and static files
// from staticDir.
func (s *webState) routes(staticDir string) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/buckets", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, s.bucketList())
	})
	mux.HandleFunc("/api/anchors", func(w http.ResponseWriter, r *http.Request) {
		anchors := s.anchorList()
		if len(anchors) == 0 {
			http.Error(w, "no data yet", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, anchors)
	})
	mux.HandleFunc("/ws/samples", s.handleSamplesWS)
	mux.Handle("/", http.FileServer(http.Dir(staticDir)))
	return mux
}

// RunWeb serves the live view of a sweep or a listener from MQTT.
func RunWeb(ctx context.Context, cfg *config.Config) error {
	if cfg.MQTTBroker == "" {
		return fmt.Errorf("MQTT_BROKER is not configured")
	}
	client, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDWeb)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	state := newWebState()

	token := client.Subscribe(cfg.TopicSamples, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var m SampleMessage
		if err := json.Unmarshal(msg.Payload(), &m); err != nil {
			log.Printf("web: sample unmarshal error: %v", err)
			return
		}
		state.addSample(m, msg.Payload())
	})
	token.Wait()
	if token.Error() != nil {
		return token.Error()
	}

	bucketTopic := cfg.TopicBuckets + "/#"
	token = client.Subscribe(bucketTopic, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var m BucketMessage
		if err := json.Unmarshal(msg.Payload(), &m); err != nil {
			log.Printf("web: bucket unmarshal error: %v", err)
			return
		}
		state.addBucket(m)
	})
	token.Wait()
	if token.Error() != nil {
		return token.Error()
	}
	log.Printf("web: subscribed to %s and %s", cfg.TopicSamples, bucketTopic)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.WebServerPort),
		Handler: state.routes("web"),
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Printf("web: server listening on %s", srv.Addr)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
