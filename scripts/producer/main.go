// CloudEvents test producer - sends sensor readings to arcsink over MQTT or HTTP
//
// Usage:
//   go run ./scripts/producer [flags]
//
// Examples:
//   go run ./scripts/producer -target mqtt -broker tcp://localhost:1883 -topic sensors/temp -count 100
//   go run ./scripts/producer -target http -url http://127.0.0.1:8080/ -rate 100 -duration 60s
//   go run ./scripts/producer -target http -format msgpack
//
// Suggested mappings: FIELD_temperature=$.temperature FIELD_humidity=$.humidity
// TAG_sensor=$.data.sensor_id TAG_source=$.source

package main

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
)

var (
	target   = flag.String("target", "http", "Where to send events: http or mqtt")
	url      = flag.String("url", "http://127.0.0.1:8080/", "arcsink receiver URL (http target)")
	broker   = flag.String("broker", "tcp://localhost:1883", "MQTT broker URL (mqtt target)")
	topic    = flag.String("topic", "sensors/temperature", "Topic to publish to (mqtt target)")
	qos      = flag.Int("qos", 1, "QoS level (0, 1, or 2)")
	source   = flag.String("source", "/producer", "CloudEvents source attribute")
	count    = flag.Int("count", 0, "Number of events to send (0 = unlimited)")
	rate     = flag.Int("rate", 10, "Events per second")
	duration = flag.Duration("duration", 0, "Duration to run (0 = until count or Ctrl+C)")
	format   = flag.String("format", "json", "Data encoding: json or msgpack")
	username = flag.String("username", "", "MQTT username")
	password = flag.String("password", "", "MQTT password")
	verbose  = flag.Bool("verbose", false, "Verbose output")
)

type SensorReading struct {
	SensorID    string  `json:"sensor_id" msgpack:"sensor_id"`
	Temperature float64 `json:"temperature" msgpack:"temperature"`
	Humidity    float64 `json:"humidity" msgpack:"humidity"`
	Location    string  `json:"location" msgpack:"location"`
}

type sender func(reading SensorReading) (int, error)

func main() {
	flag.Parse()

	fmt.Printf("CloudEvents Test Producer\n")
	fmt.Printf("=========================\n")
	fmt.Printf("Target:   %s\n", *target)
	fmt.Printf("Format:   %s\n", *format)
	fmt.Printf("Rate:     %d events/s\n", *rate)
	if *count > 0 {
		fmt.Printf("Count:    %d events\n", *count)
	}
	if *duration > 0 {
		fmt.Printf("Duration: %s\n", *duration)
	}
	fmt.Println()

	var send sender
	switch *target {
	case "http":
		send = httpSender()
	case "mqtt":
		client := connect()
		defer client.Disconnect(1000)
		send = mqttSender(client)
	default:
		fmt.Fprintf(os.Stderr, "Unknown target %q (use http or mqtt)\n", *target)
		os.Exit(1)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	var sent, failed int64
	startTime := time.Now()

	ticker := time.NewTicker(time.Second / time.Duration(max(*rate, 1)))
	defer ticker.Stop()

	var durationTimer <-chan time.Time
	if *duration > 0 {
		durationTimer = time.After(*duration)
	}

	locations := []string{"warehouse-a", "warehouse-b", "office-1", "office-2", "lab", "datacenter"}
	sensorIDs := []string{"temp-001", "temp-002", "temp-003", "hum-001", "hum-002", "combo-001"}

	fmt.Println("Sending events... (Ctrl+C to stop)")

	eventNum := 0
	running := true

	for running {
		select {
		case <-sigCh:
			fmt.Println("\nReceived shutdown signal")
			running = false

		case <-durationTimer:
			fmt.Println("\nDuration reached")
			running = false

		case <-ticker.C:
			reading := SensorReading{
				SensorID:    sensorIDs[rand.Intn(len(sensorIDs))],
				Temperature: 20.0 + rand.Float64()*15.0,
				Humidity:    40.0 + rand.Float64()*40.0,
				Location:    locations[rand.Intn(len(locations))],
			}

			size, err := send(reading)
			if err != nil {
				atomic.AddInt64(&failed, 1)
				if *verbose {
					fmt.Printf("Failed to send event %d: %v\n", eventNum+1, err)
				}
			} else {
				atomic.AddInt64(&sent, 1)
				if *verbose {
					fmt.Printf("Sent event %d (%d bytes)\n", eventNum+1, size)
				}
			}

			eventNum++
			if *count > 0 && eventNum >= *count {
				fmt.Println("\nEvent count reached")
				running = false
			}
		}
	}

	elapsed := time.Since(startTime)
	totalSent := atomic.LoadInt64(&sent)

	fmt.Printf("\n")
	fmt.Printf("Summary\n")
	fmt.Printf("=======\n")
	fmt.Printf("Duration:      %s\n", elapsed.Round(time.Millisecond))
	fmt.Printf("Events sent:   %d\n", totalSent)
	fmt.Printf("Events failed: %d\n", atomic.LoadInt64(&failed))
	fmt.Printf("Throughput:    %.1f events/s\n", float64(totalSent)/elapsed.Seconds())
}

func encode(reading SensorReading) ([]byte, string, error) {
	if *format == "msgpack" {
		data, err := msgpack.Marshal(reading)
		return data, "application/msgpack", err
	}
	data, err := json.Marshal(reading)
	return data, "application/json", err
}

// httpSender posts binary-mode events: attributes in ce- headers, data as the body
func httpSender() sender {
	client := &http.Client{Timeout: 10 * time.Second}

	return func(reading SensorReading) (int, error) {
		data, contentType, err := encode(reading)
		if err != nil {
			return 0, err
		}

		req, err := http.NewRequest(http.MethodPost, *url, bytes.NewReader(data))
		if err != nil {
			return 0, err
		}
		req.Header.Set("Content-Type", contentType)
		req.Header.Set("ce-specversion", "1.0")
		req.Header.Set("ce-id", uuid.NewString())
		req.Header.Set("ce-source", *source)
		req.Header.Set("ce-type", "sensor.reading")
		req.Header.Set("ce-time", time.Now().UTC().Format(time.RFC3339Nano))

		resp, err := client.Do(req)
		if err != nil {
			return 0, err
		}
		resp.Body.Close()
		if resp.StatusCode >= 300 {
			return 0, fmt.Errorf("receiver returned status %d", resp.StatusCode)
		}
		return len(data), nil
	}
}

// mqttSender publishes structured-mode events
func mqttSender(client pahomqtt.Client) sender {
	return func(reading SensorReading) (int, error) {
		data, contentType, err := encode(reading)
		if err != nil {
			return 0, err
		}

		envelope := map[string]interface{}{
			"specversion":     "1.0",
			"id":              uuid.NewString(),
			"source":          *source,
			"type":            "sensor.reading",
			"time":            time.Now().UTC().Format(time.RFC3339Nano),
			"datacontenttype": contentType,
		}
		if *format == "msgpack" {
			envelope["data_base64"] = base64.StdEncoding.EncodeToString(data)
		} else {
			envelope["data"] = json.RawMessage(data)
		}

		payload, err := json.Marshal(envelope)
		if err != nil {
			return 0, err
		}

		token := client.Publish(*topic, byte(*qos), false, payload)
		if !token.WaitTimeout(5 * time.Second) {
			return 0, fmt.Errorf("publish timeout")
		}
		return len(payload), token.Error()
	}
}

func connect() pahomqtt.Client {
	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(*broker)
	opts.SetClientID("arcsink-producer-" + uuid.NewString())
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(10 * time.Second)

	if *username != "" {
		opts.SetUsername(*username)
		opts.SetPassword(*password)
	}

	opts.SetOnConnectHandler(func(c pahomqtt.Client) {
		fmt.Println("Connected to broker")
	})
	opts.SetConnectionLostHandler(func(c pahomqtt.Client, err error) {
		fmt.Printf("Connection lost: %v\n", err)
	})

	client := pahomqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		fmt.Fprintf(os.Stderr, "Connection timeout\n")
		os.Exit(1)
	}
	if err := token.Error(); err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(1)
	}
	return client
}
