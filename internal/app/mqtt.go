package app

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/aoa_tester/internal/aoa"
	"github.com/relabs-tech/aoa_tester/internal/config"
	"github.com/relabs-tech/aoa_tester/internal/correlator"
	"github.com/relabs-tech/aoa_tester/internal/report"
)

// SampleMessage is published on TOPIC_SAMPLES for every report.
type SampleMessage struct {
	Anchor      string           `json:"anchor"`
	GroundTruth *aoa.GroundTruth `json:"ground_truth,omitempty"`
	Sample      aoa.AngleSample  `json:"sample"`
}

// BucketMessage is published on TOPIC_BUCKETS after every window.
type BucketMessage struct {
	Anchor      string                 `json:"anchor"`
	GroundTruth aoa.GroundTruth        `json:"ground_truth"`
	Samples     int                    `json:"samples"`
	Emitters    []report.EmitterResult `json:"emitters"`
}

// Publisher sends samples and window results to MQTT. A nil Publisher
// drops everything, which is what runs without a broker use.
type Publisher struct {
	client       mqtt.Client
	topicSamples string
	topicBuckets string
}

func connectMQTT(broker, clientID string) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectTimeout(5 * time.Second)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connect to MQTT broker %s: %w", broker, token.Error())
	}
	log.Printf("mqtt: connected to broker at %s as %s", broker, clientID)
	return client, nil
}

// NewPublisher connects when MQTT_BROKER is set and returns nil otherwise.
func NewPublisher(cfg *config.Config, clientID string) (*Publisher, error) {
	if cfg.MQTTBroker == "" {
		return nil, nil
	}
	client, err := connectMQTT(cfg.MQTTBroker, clientID)
	if err != nil {
		return nil, err
	}
	return &Publisher{client: client, topicSamples: cfg.TopicSamples, topicBuckets: cfg.TopicBuckets}, nil
}

func (p *Publisher) publish(topic string, retained bool, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		log.Printf("mqtt: marshal for %s: %v", topic, err)
		return
	}
	// QoS 0 and no wait, a slow broker must not stall collection
	token := p.client.Publish(topic, 0, retained, payload)
	go func() {
		if token.Wait() && token.Error() != nil {
			log.Printf("mqtt: publish to %s: %v", topic, token.Error())
		}
	}()
}

// PublishSample publishes one report. gt is nil outside a sweep.
func (p *Publisher) PublishSample(anchor string, gt *aoa.GroundTruth, s aoa.AngleSample) {
	if p == nil {
		return
	}
	p.publish(p.topicSamples, false, SampleMessage{Anchor: anchor, GroundTruth: gt, Sample: s})
}

// PublishBucket publishes the verdicts of one window.
func (p *Publisher) PublishBucket(anchor string, b *correlator.Bucket, a report.Analyzer) {
	if p == nil {
		return
	}
	s := a.Summarize(anchor, map[aoa.GroundTruth]*correlator.Bucket{b.GroundTruth: b})
	msg := BucketMessage{Anchor: anchor, GroundTruth: b.GroundTruth, Samples: b.Len()}
	if len(s.Buckets) > 0 {
		msg.Emitters = s.Buckets[0].Emitters
	}
	p.publish(p.topicBuckets+"/"+anchor, true, msg)
}

// Close disconnects from the broker.
func (p *Publisher) Close() {
	if p == nil {
		return
	}
	p.client.Disconnect(250)
}
