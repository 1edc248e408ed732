// Утилита для публикации тестовых статусов трекинга в MQTT.
// Симулирует подсистему трекинга: цели перескакивают между уровнями
// уверенности, изредка сообщают аномалию масштаба и уничтожаются
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

var confidences = []string{"not_observed", "limited", "extended_tracked", "tracked"}

type targetState struct {
	id         string
	name       string
	lat        float64
	lon        float64
	confidence string
}

func main() {
	broker := flag.String("broker", "tcp://localhost:1883", "MQTT broker URL")
	count := flag.Int("targets", 5, "number of simulated targets")
	interval := flag.Duration("interval", 2*time.Second, "publish interval")
	seed := flag.Int64("seed", time.Now().UnixNano(), "random seed")
	flag.Parse()

	rng := rand.New(rand.NewSource(*seed))

	opts := mqtt.NewClientOptions()
	opts.AddBroker(*broker)
	opts.SetClientID(fmt.Sprintf("argate-test-publisher-%d", os.Getpid()))
	opts.SetCleanSession(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		log.Fatalf("failed to connect to broker: %v", token.Error())
	}
	defer client.Disconnect(250)

	log.Printf("connected to %s, simulating %d targets", *broker, *count)

	targets := make([]*targetState, 0, *count)
	for i := 0; i < *count; i++ {
		targets = append(targets, &targetState{
			id:         fmt.Sprintf("anchor-%d", i+1),
			name:       fmt.Sprintf("Test anchor %d", i+1),
			lat:        46.0 + rng.Float64()*0.5,
			lon:        8.0 + rng.Float64()*0.5,
			confidence: "not_observed",
		})
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	for {
		select {
		case <-sigChan:
			log.Println("shutting down")
			return
		case <-ticker.C:
			for _, t := range targets {
				publishStatus(client, t, rng)
			}
		}
	}
}

func publishStatus(client mqtt.Client, t *targetState, rng *rand.Rand) {
	// Уверенность дрейфует на соседний уровень с вероятностью 30%
	if rng.Float64() < 0.3 {
		idx := indexOf(confidences, t.confidence)
		if rng.Float64() < 0.5 && idx > 0 {
			idx--
		} else if idx < len(confidences)-1 {
			idx++
		}
		t.confidence = confidences[idx]
	}

	info := "normal"
	if t.confidence == "tracked" && rng.Float64() < 0.05 {
		info = "wrong_scale"
	}

	payload, _ := json.Marshal(map[string]interface{}{
		"confidence": t.confidence,
		"info":       info,
		"ts":         time.Now().UnixMilli(),
		"name":       t.name,
		"anchor":     map[string]float64{"lat": t.lat, "lon": t.lon},
	})

	topic := fmt.Sprintf("ar/t/%s/status", t.id)
	if token := client.Publish(topic, 1, false, payload); token.Wait() && token.Error() != nil {
		log.Printf("publish failed for %s: %v", t.id, token.Error())
		return
	}

	log.Printf("published %s: %s", t.id, strings.ToUpper(t.confidence))
}

func indexOf(values []string, v string) int {
	for i, x := range values {
		if x == v {
			return i
		}
	}
	return 0
}
