package config

import (
	"fmt"
	"slices"
	"strings"

	"github.com/multiformats/go-multiaddr"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string
	Value   any
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"trace", "debug", "info", "warn", "error"}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError
	errors = append(errors, c.validateNetwork()...)
	errors = append(errors, c.validateGroup()...)
	errors = append(errors, c.validateQueue()...)
	errors = append(errors, c.validateLogging()...)
	return errors
}

func (c *Config) validateNetwork() []ValidationError {
	var errors []ValidationError
	if len(c.Network.ListenAddrs) == 0 {
		errors = append(errors, ValidationError{
			Field:   "network.listen_addrs",
			Value:   c.Network.ListenAddrs,
			Message: "at least one listen address is required",
		})
	}
	for _, addr := range c.Network.ListenAddrs {
		if _, err := multiaddr.NewMultiaddr(addr); err != nil {
			errors = append(errors, ValidationError{
				Field:   "network.listen_addrs",
				Value:   addr,
				Message: "must be a valid multiaddr",
			})
		}
	}
	if strings.TrimSpace(c.Network.Topic) == "" {
		errors = append(errors, ValidationError{
			Field:   "network.topic",
			Value:   c.Network.Topic,
			Message: "must not be empty",
		})
	}
	if c.Network.MDNS && strings.TrimSpace(c.Network.ServiceName) == "" {
		errors = append(errors, ValidationError{
			Field:   "network.service_name",
			Value:   c.Network.ServiceName,
			Message: "must not be empty when mdns is enabled",
		})
	}
	if c.Network.DiscoveryTTLSeconds <= 0 {
		errors = append(errors, ValidationError{
			Field:   "network.discovery_ttl_seconds",
			Value:   c.Network.DiscoveryTTLSeconds,
			Message: "must be positive",
		})
	}
	if c.Network.ConnectTimeoutSeconds <= 0 {
		errors = append(errors, ValidationError{
			Field:   "network.connect_timeout_seconds",
			Value:   c.Network.ConnectTimeoutSeconds,
			Message: "must be positive",
		})
	}
	return errors
}

func (c *Config) validateGroup() []ValidationError {
	var errors []ValidationError
	if c.Group.PaddingSize < 0 {
		errors = append(errors, ValidationError{
			Field:   "group.padding_size",
			Value:   c.Group.PaddingSize,
			Message: "must not be negative",
		})
	}
	if c.Group.MaximumForwardDistance == 0 {
		errors = append(errors, ValidationError{
			Field:   "group.maximum_forward_distance",
			Value:   c.Group.MaximumForwardDistance,
			Message: "must be positive",
		})
	}
	return errors
}

func (c *Config) validateQueue() []ValidationError {
	var errors []ValidationError
	if c.Queue.InboundCapacity < 0 {
		errors = append(errors, ValidationError{
			Field:   "queue.inbound_capacity",
			Value:   c.Queue.InboundCapacity,
			Message: "must not be negative (0 means unbounded)",
		})
	}
	if c.Queue.OutboundCapacity < 0 {
		errors = append(errors, ValidationError{
			Field:   "queue.outbound_capacity",
			Value:   c.Queue.OutboundCapacity,
			Message: "must not be negative (0 means unbounded)",
		})
	}
	return errors
}

func (c *Config) validateLogging() []ValidationError {
	if !slices.Contains(ValidLogLevels(), c.Logging.Level) {
		return []ValidationError{{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of %v", ValidLogLevels()),
		}}
	}
	return nil
}
