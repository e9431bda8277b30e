package mqtt

import (
	"encoding/json"
	"fmt"
	"time"

	"face-gate-go/config"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"
)

// Publisher meldet Registrierungs- und Anmelde-Ereignisse an einen
// MQTT-Broker. Der Versand ist rein informativ: Fehler werden geloggt,
// aber nie an die aufrufenden Dienste zurückgegeben.
type Publisher struct {
	config      config.MQTTConfig
	client      mqtt.Client
	isConnected bool
}

// EnrollmentEvent beschreibt eine abgeschlossene Registrierung
type EnrollmentEvent struct {
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
}

// LoginEvent beschreibt einen Identifikationsversuch
type LoginEvent struct {
	UserID    string    `json:"user_id,omitempty"`
	Matched   bool      `json:"matched"`
	Distance  float64   `json:"distance"`
	Timestamp time.Time `json:"timestamp"`
}

// NewPublisher erstellt einen neuen Ereignis-Publisher
func NewPublisher(cfg config.MQTTConfig) *Publisher {
	return &Publisher{
		config: cfg,
	}
}

// Start verbindet den Publisher mit dem Broker
func (p *Publisher) Start() error {
	if !p.config.Enabled {
		log.Info("MQTT publisher is disabled in configuration")
		return nil
	}

	// MQTT-Client-Optionen konfigurieren
	opts := mqtt.NewClientOptions()

	brokerURL := fmt.Sprintf("tcp://%s:%d", p.config.Broker, p.config.Port)
	opts.AddBroker(brokerURL)
	opts.SetClientID(p.config.ClientID)

	// Optionale Authentifizierung
	if p.config.Username != "" {
		opts.SetUsername(p.config.Username)
		opts.SetPassword(p.config.Password)
	}

	// Automatisch neu verbinden
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(time.Minute)

	opts.SetOnConnectHandler(func(client mqtt.Client) {
		p.isConnected = true
		log.Infof("Connected to MQTT broker %s", brokerURL)
	})
	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		p.isConnected = false
		log.Warnf("Lost connection to MQTT broker: %v", err)
	})

	p.client = mqtt.NewClient(opts)

	token := p.client.Connect()
	if token.WaitTimeout(10*time.Second) && token.Error() != nil {
		return fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	return nil
}

// Stop trennt die Verbindung zum Broker
func (p *Publisher) Stop() {
	if p.client != nil && p.client.IsConnected() {
		p.client.Disconnect(250)
		log.Info("Disconnected from MQTT broker")
	}
}

// publish serialisiert ein Ereignis und veröffentlicht es unter dem Topic
func (p *Publisher) publish(topic string, event interface{}) {
	if !p.config.Enabled || p.client == nil || !p.client.IsConnected() {
		return
	}

	payload, err := json.Marshal(event)
	if err != nil {
		log.Errorf("Failed to marshal MQTT event: %v", err)
		return
	}

	fullTopic := fmt.Sprintf("%s/%s", p.config.TopicPrefix, topic)
	token := p.client.Publish(fullTopic, 0, false, payload)
	if token.WaitTimeout(5*time.Second) && token.Error() != nil {
		log.Warnf("Failed to publish MQTT event to %s: %v", fullTopic, token.Error())
	}
}

// PublishEnrollment meldet eine abgeschlossene Registrierung
func (p *Publisher) PublishEnrollment(userID, username, source string) {
	p.publish("enrollment", EnrollmentEvent{
		UserID:    userID,
		Username:  username,
		Source:    source,
		Timestamp: time.Now(),
	})
}

// PublishLogin meldet einen Identifikationsversuch
func (p *Publisher) PublishLogin(userID string, matched bool, distance float64) {
	p.publish("login", LoginEvent{
		UserID:    userID,
		Matched:   matched,
		Distance:  distance,
		Timestamp: time.Now(),
	})
}
