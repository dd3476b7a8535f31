package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/aoa_tester/internal/config"
)

func formatSample(m SampleMessage) string {
	gt := "-"
	if m.GroundTruth != nil {
		gt = m.GroundTruth.String()
	}
	return fmt.Sprintf("[%-9s] gt=%-7s tag=%s az=%4d el=%4d rssi=%4d ch=%2d",
		m.Anchor, gt, m.Sample.EmitterID, m.Sample.Azimuth, m.Sample.Elevation, m.Sample.RSSI, m.Sample.Channel)
}

func formatBucket(m BucketMessage) string {
	s := fmt.Sprintf("[BUCKET] %s gt=%s samples=%d", m.Anchor, m.GroundTruth, m.Samples)
	for _, e := range m.Emitters {
		verdict := "FAIL"
		if e.Passed {
			verdict = "PASS"
		}
		s += fmt.Sprintf("\n         tag=%s az %.0f%% el %.0f%% %s",
			e.EmitterID, e.Azimuth.PassRate*100, e.Elevation.PassRate*100, verdict)
	}
	return s
}

// RunConsoleMQTT prints samples and window results published by a sweep
// or a listener until ctx is done.
func RunConsoleMQTT(ctx context.Context, cfg *config.Config, out io.Writer) error {
	if cfg.MQTTBroker == "" {
		return fmt.Errorf("MQTT_BROKER is not configured")
	}
	client, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDConsole)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	sampleToken := client.Subscribe(cfg.TopicSamples, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var m SampleMessage
		if err := json.Unmarshal(msg.Payload(), &m); err != nil {
			log.Printf("console: sample unmarshal error: %v", err)
			return
		}
		fmt.Fprintln(out, formatSample(m))
	})
	sampleToken.Wait()
	if sampleToken.Error() != nil {
		return sampleToken.Error()
	}
	log.Printf("console: subscribed to %s", cfg.TopicSamples)

	bucketTopic := cfg.TopicBuckets + "/#"
	bucketToken := client.Subscribe(bucketTopic, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var m BucketMessage
		if err := json.Unmarshal(msg.Payload(), &m); err != nil {
			log.Printf("console: bucket unmarshal error: %v", err)
			return
		}
		fmt.Fprintln(out, formatBucket(m))
	})
	bucketToken.Wait()
	if bucketToken.Error() != nil {
		return bucketToken.Error()
	}
	log.Printf("console: subscribed to %s", bucketTopic)

	<-ctx.Done()
	log.Println("console: shutting down")
	return nil
}
