package mqtt

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	coremqtt "github.com/medbox-iot/medbox/core/mqtt"
	"github.com/medbox-iot/medbox/infra/logger"
)

// Config defines the connection parameters for the Paho MQTT connector.
type Config struct {
	Broker      string          `json:"broker"`
	ClientID    string          `json:"client_id"`
	Username    string          `json:"username"`
	Password    string          `json:"password"`
	TopicPrefix string          `json:"topic_prefix"`
	UseTLS      bool            `json:"use_tls"`
	ClientCert  string          `json:"client_cert"`
	ClientKey   string          `json:"client_key"`
	CABundle    string          `json:"ca_bundle"`
	QoS         map[string]byte `json:"qos"`
	// ReconnectMS is the fixed delay between reconnect attempts.
	ReconnectMS int         `json:"reconnect_ms"`
	TLSConfig   *tls.Config `json:"-"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.TopicPrefix == "" {
		c.TopicPrefix = "medbox"
	}
	if c.ClientID == "" {
		c.ClientID = "medbox-coordinator"
	}
	if c.ReconnectMS <= 0 {
		c.ReconnectMS = 1000
	}
}

type pahoClient interface {
	IsConnected() bool
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
}

// PahoConnector implements core/mqtt.Connector using Eclipse Paho. It
// owns the broker session, resubscribes to the box topic filters on
// every (re)connect and broadcasts each inbound message to all
// registered handlers in registration order.
type PahoConnector struct {
	cli    pahoClient
	prefix string
	qos    map[string]byte

	mu       sync.RWMutex
	handlers []coremqtt.Handler
	logger   logger.Logger
}

var newMQTTClient = func(opts *paho.ClientOptions) pahoClient {
	return paho.NewClient(opts)
}

// NewPahoConnector connects to the MQTT broker and subscribes to the
// box telemetry and acknowledgment filters. The connection is retried
// with a fixed delay for as long as the process lives.
func NewPahoConnector(cfg Config) (*PahoConnector, error) {
	cfg.SetDefaults()
	opts, err := NewClientOptions(cfg)
	if err != nil {
		return nil, err
	}

	log := logger.New("mqtt_connector")
	pc := &PahoConnector{
		prefix: cfg.TopicPrefix,
		qos:    cfg.QoS,
		logger: log,
	}

	opts.OnConnect = func(c paho.Client) {
		log.Infof("MQTT connected")
		qos := byte(0)
		if q, ok := pc.qos["subscribe"]; ok {
			qos = q
		}
		for _, filter := range coremqtt.SubscriptionFilters(pc.prefix) {
			if token := c.Subscribe(filter, qos, pc.onMessage); token.Wait() && token.Error() != nil {
				log.Errorf("subscribe %s: %v", filter, token.Error())
			}
		}
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		log.Errorf("connection lost: %v", err)
	}
	opts.OnReconnecting = func(_ paho.Client, _ *paho.ClientOptions) {
		log.Warnf("reconnecting to MQTT broker")
	}

	c := newMQTTClient(opts)
	token := c.Connect()
	if token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	pc.cli = c
	return pc, nil
}

// NewClientOptions builds paho client options from Config.
func NewClientOptions(cfg Config) (*paho.ClientOptions, error) {
	opts := paho.NewClientOptions().AddBroker(cfg.Broker).SetClientID(cfg.ClientID)
	opts.AutoReconnect = true
	opts.ConnectRetry = true
	retry := time.Duration(cfg.ReconnectMS) * time.Millisecond
	opts.SetConnectRetryInterval(retry)
	opts.SetMaxReconnectInterval(retry)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	if cfg.UseTLS {
		tlsCfg, err := cfg.LoadTLSConfig()
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsCfg)
	}
	return opts, nil
}

// LoadTLSConfig loads the TLS configuration from the file paths in the config.
func (c Config) LoadTLSConfig() (*tls.Config, error) {
	if c.TLSConfig != nil {
		return c.TLSConfig, nil
	}
	if c.ClientCert == "" || c.ClientKey == "" || c.CABundle == "" {
		return nil, fmt.Errorf("tls config requires client_cert, client_key and ca_bundle")
	}
	cert, err := tls.LoadX509KeyPair(c.ClientCert, c.ClientKey)
	if err != nil {
		return nil, fmt.Errorf("load cert: %w", err)
	}
	caBytes, err := os.ReadFile(c.CABundle)
	if err != nil {
		return nil, fmt.Errorf("read ca: %w", err)
	}
	pool := x509.NewCertPool()
	pool.AppendCertsFromPEM(caBytes)
	return &tls.Config{Certificates: []tls.Certificate{cert}, RootCAs: pool, MinVersion: tls.VersionTLS12}, nil
}

func (p *PahoConnector) onMessage(_ paho.Client, msg paho.Message) {
	p.mu.RLock()
	handlers := make([]coremqtt.Handler, len(p.handlers))
	copy(handlers, p.handlers)
	p.mu.RUnlock()
	for _, h := range handlers {
		p.invoke(h, msg.Topic(), msg.Payload())
	}
}

// invoke isolates a panicking handler so delivery to the remaining
// handlers is never blocked or dropped.
func (p *PahoConnector) invoke(h coremqtt.Handler, topic string, payload []byte) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Errorf("handler panic on %s: %v", topic, r)
		}
	}()
	h(topic, payload)
}

// AddHandler registers a broadcast message handler.
func (p *PahoConnector) AddHandler(h coremqtt.Handler) {
	p.mu.Lock()
	p.handlers = append(p.handlers, h)
	p.mu.Unlock()
}

// Connected reports the paho session state.
func (p *PahoConnector) Connected() bool {
	return p.cli != nil && p.cli.IsConnected()
}

// Publish sends a payload to the given topic and waits for the token.
func (p *PahoConnector) Publish(topic string, payload []byte, qos byte) error {
	token := p.cli.Publish(topic, qos, false, payload)
	token.Wait()
	return token.Error()
}

// Disconnect gracefully closes the MQTT connection.
func (p *PahoConnector) Disconnect() {
	if p.cli != nil && p.cli.IsConnected() {
		p.cli.Disconnect(250)
	}
}
