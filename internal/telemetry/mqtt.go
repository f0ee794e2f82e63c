package telemetry

import (
	"fmt"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MQTTRadio is a Radio that publishes datagrams to an MQTT topic. It stands
// in for the RF downlink on the bench and feeds the ground-station tools.
type MQTTRadio struct {
	client mqtt.Client
	topic  string
}

// NewMQTTRadio connects to broker and returns a radio publishing to topic.
func NewMQTTRadio(broker, clientID, topic string) (*MQTTRadio, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("telemetry: MQTT connect: %w", token.Error())
	}
	return &MQTTRadio{client: client, topic: topic}, nil
}

// Send publishes one payload, retained so late subscribers see the last
// known state.
func (r *MQTTRadio) Send(payload []byte) error {
	token := r.client.Publish(r.topic, 0, true, payload)
	token.Wait()
	return token.Error()
}

// Close disconnects from the broker.
func (r *MQTTRadio) Close() {
	r.client.Disconnect(250)
}
