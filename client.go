package pagelink

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lanewave/pagelink-go/messaging"
	"github.com/lanewave/pagelink-go/transports/amqp"
)

// Client provides the main entry point for pagelink-go: one broker endpoint
// standing in for one execution context, vending messengers wired to it.
type Client struct {
	endpoint *amqp.Endpoint
	logger   *slog.Logger
}

// NewClient dials the broker and returns a client carrying the given
// origin. The origin is the identity every transmission from this client is
// tagged with; peers restrict their handshakes against it.
func NewClient(connectionString, origin string, options ...ClientOption) (*Client, error) {
	cfg := &clientConfig{
		logger: slog.Default(),
	}

	for _, opt := range options {
		opt(cfg)
	}

	if connectionString == "" {
		return nil, fmt.Errorf("pagelink: connection string cannot be empty")
	}
	if origin == "" {
		return nil, fmt.Errorf("pagelink: origin cannot be empty")
	}

	endpointOpts := []amqp.EndpointOption{
		amqp.WithEndpointLogger(cfg.logger),
	}
	if cfg.endpointName != "" {
		endpointOpts = append(endpointOpts, amqp.WithAddress(cfg.endpointName))
	}

	endpoint, err := amqp.Dial(context.Background(), connectionString, origin, endpointOpts...)
	if err != nil {
		return nil, fmt.Errorf("pagelink: failed to dial endpoint: %w", err)
	}

	return &Client{
		endpoint: endpoint,
		logger:   cfg.logger,
	}, nil
}

// Messenger returns a fresh messenger wired to the client's endpoint. A
// messenger carries at most one connection; create one per conversation.
func (c *Client) Messenger() *messaging.Messenger {
	return messaging.NewMessenger(
		messaging.WithPairer(c.endpoint),
		messaging.WithLogger(c.logger),
	)
}

// Endpoint returns the underlying broker endpoint.
func (c *Client) Endpoint() *amqp.Endpoint {
	return c.endpoint
}

// Address returns the broadcast address peers reach this client by.
func (c *Client) Address() string {
	return c.endpoint.Address()
}

// Close closes the endpoint. Messengers vended by this client go dead with
// it.
func (c *Client) Close() error {
	return c.endpoint.Close()
}

// clientConfig holds client configuration
type clientConfig struct {
	logger       *slog.Logger
	endpointName string
}

// ClientOption configures the client
type ClientOption func(*clientConfig)

// WithLogger sets the logger for all components
func WithLogger(logger *slog.Logger) ClientOption {
	return func(cfg *clientConfig) {
		cfg.logger = logger
	}
}

// WithEndpointName pins the endpoint's broadcast address instead of
// generating one. Well-known services use it so peers can find them.
func WithEndpointName(name string) ClientOption {
	return func(cfg *clientConfig) {
		cfg.endpointName = name
	}
}
