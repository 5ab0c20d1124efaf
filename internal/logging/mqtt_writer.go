package logging

import (
	"fmt"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Publisher je část mqtt.Client, kterou writer potřebuje.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MqttLogWriter implementuje io.Writer a každý zapsaný řádek pošle do MQTT
// na topic logs/<služba>, kde ho sbírá log collector.
type MqttLogWriter struct {
	client Publisher
	topic  string
}

func NewMqttLogWriter(client Publisher, serviceName string) *MqttLogWriter {
	return &MqttLogWriter{
		client: client,
		topic:  fmt.Sprintf("logs/%s", serviceName),
	}
}

// Write neblokuje: token.Wait() nevoláme (fire-and-forget), logování tak
// nezpomaluje aplikaci. Chyba MQTT se nikdy nevrací, stdout běží dál.
func (w *MqttLogWriter) Write(p []byte) (n int, err error) {
	// slog buffer po návratu recykluje, payload musíme zkopírovat.
	payload := make([]byte, len(p))
	copy(payload, p)

	w.client.Publish(w.topic, 0, false, payload)
	return len(p), nil
}
