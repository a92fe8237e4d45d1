package config

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var registryUUIDRe = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

// Validate runs semantic checks beyond what Viper's decoding already
// guarantees, refusing to start the service on an invalid configuration.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}

	g := c.Global
	if g.ListenPort <= 0 || g.ListenPort > 65535 {
		return newFieldError("Global.ListenPort", "must be in 1-65535")
	}
	if g.StoragePath == "" {
		return newFieldError("Global.StoragePath", "must not be empty")
	}
	if g.UpstreamTimeout.DurationValue() <= 0 {
		return newFieldError("Global.UpstreamTimeout", "must be greater than 0")
	}
	if g.ConvergeInterval.DurationValue() <= 0 {
		return newFieldError("Global.ConvergeInterval", "must be greater than 0")
	}
	if g.ShardCount <= 0 {
		return newFieldError("Global.ShardCount", "must be greater than 0")
	}
	if g.ShardCount&(g.ShardCount-1) != 0 {
		return newFieldError("Global.ShardCount", "must be a power of two")
	}
	if g.ProbeConcurrency <= 0 {
		return newFieldError("Global.ProbeConcurrency", "must be greater than 0")
	}
	if (g.AdminUsername == "") != (g.AdminPassword == "") {
		return newFieldError("Global.AdminUsername/AdminPassword", "must both be set or both empty")
	}

	if len(c.Registries) == 0 {
		return errors.New("at least one registry must be configured")
	}
	seenRegistries := map[string]struct{}{}
	for i, uuid := range c.Registries {
		normalized := strings.ToLower(strings.TrimSpace(uuid))
		if !registryUUIDRe.MatchString(normalized) {
			return newFieldError(fmt.Sprintf("Registries[%d]", i), "must be a lowercase 8-4-4-4-12 hex UUID")
		}
		if _, exists := seenRegistries[normalized]; exists {
			return newFieldError(fmt.Sprintf("Registries[%d]", i), "duplicate registry UUID")
		}
		seenRegistries[normalized] = struct{}{}
		c.Registries[i] = normalized
	}

	if len(c.Upstreams) == 0 {
		return errors.New("at least one upstream must be configured")
	}
	for i, raw := range c.Upstreams {
		if err := validateUpstream(raw); err != nil {
			return fmt.Errorf("%s: %w", fmt.Sprintf("Upstreams[%d]", i), err)
		}
	}

	return nil
}

func validateUpstream(raw string) error {
	if raw == "" {
		return errors.New("missing upstream address")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("only http/https supported, upstream: %s", raw)
	}
	if parsed.Host == "" {
		return fmt.Errorf("upstream missing host: %s", raw)
	}
	return nil
}
