package brokerlink

import (
	"context"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

// PahoDialer připojuje link k MQTT brokeru přes knihovnu paho.
// Automatický reconnect paho je vypnutý, opakování řídí Link.
type PahoDialer struct {
	Broker   string // např. tcp://mosquitto:1883
	ClientID string
	Topic    string
	QoS      byte
	Username string
	Password string
}

// UniqueClientID přidá k prefixu náhodnou příponu. Dva klienti se stejným
// ID by se u brokera navzájem odpojovali.
func UniqueClientID(prefix string) string {
	return fmt.Sprintf("%s-%s", prefix, uuid.NewString()[:8])
}

func (d *PahoDialer) Dial(ctx context.Context, h Handlers) (Session, error) {
	opts := mqtt.NewClientOptions().AddBroker(d.Broker).SetClientID(d.ClientID)
	opts.SetAutoReconnect(false)
	opts.SetConnectRetry(false)
	opts.SetCleanSession(true)
	if d.Username != "" {
		opts.SetUsername(d.Username)
		opts.SetPassword(d.Password)
	}
	if deadline, ok := ctx.Deadline(); ok {
		opts.SetConnectTimeout(time.Until(deadline))
	}
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		h.OnLost(err)
	})

	client := mqtt.NewClient(opts)
	if err := waitToken(ctx, client.Connect()); err != nil {
		client.Disconnect(0)
		return nil, fmt.Errorf("mqtt connect %s: %w", d.Broker, err)
	}

	token := client.Subscribe(d.Topic, d.QoS, func(_ mqtt.Client, msg mqtt.Message) {
		h.OnMessage(msg.Payload())
	})
	if err := waitToken(ctx, token); err != nil {
		client.Disconnect(0)
		return nil, fmt.Errorf("mqtt subscribe %s: %w", d.Topic, err)
	}
	// SUBACK 0x80 = broker subscribe odmítl (typicky ACL).
	if st, ok := token.(*mqtt.SubscribeToken); ok {
		if code, ok := st.Result()[d.Topic]; ok && code == 0x80 {
			client.Disconnect(0)
			return nil, fmt.Errorf("mqtt subscribe %s rejected by broker", d.Topic)
		}
	}

	return &pahoSession{client: client}, nil
}

// waitToken čeká na dokončení tokenu nebo na zrušení contextu.
func waitToken(ctx context.Context, t mqtt.Token) error {
	select {
	case <-t.Done():
		return t.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

type pahoSession struct {
	client mqtt.Client
}

// Close odpojí klienta s timeoutem 250ms (stejně jako ostatní služby).
func (s *pahoSession) Close() {
	s.client.Disconnect(250)
}
