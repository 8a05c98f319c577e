package broker

import (
	"crypto/tls"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"
)

// URLOptions configures BuildURL beyond the RABBITMQ_* environment
// defaults.
type URLOptions struct {
	ConnectionAttempts int
	HeartbeatInterval  time.Duration
	TLS                *tls.Config
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// BuildURL constructs an AMQP URL from RABBITMQ_USER, RABBITMQ_PASS,
// RABBITMQ_HOST, and RABBITMQ_PORT, defaulting to guest/guest/127.0.0.1
// and port 5672 (5671 when opt.TLS is set, with scheme amqps instead of
// amqp). opt.ConnectionAttempts and opt.HeartbeatInterval, when nonzero,
// are added as URL query parameters.
func BuildURL(opt URLOptions) string {
	user := envOr("RABBITMQ_USER", "guest")
	pass := envOr("RABBITMQ_PASS", "guest")
	host := envOr("RABBITMQ_HOST", "127.0.0.1")

	scheme := "amqp"
	defaultPort := "5672"
	if opt.TLS != nil {
		scheme = "amqps"
		defaultPort = "5671"
	}
	port := envOr("RABBITMQ_PORT", defaultPort)

	u := url.URL{
		Scheme: scheme,
		User:   url.UserPassword(user, pass),
		Host:   fmt.Sprintf("%s:%s", host, port),
	}

	q := u.Query()
	if opt.ConnectionAttempts > 0 {
		q.Set("connection_attempts", strconv.Itoa(opt.ConnectionAttempts))
	}
	if opt.HeartbeatInterval > 0 {
		q.Set("heartbeat", strconv.Itoa(int(opt.HeartbeatInterval.Seconds())))
	}
	u.RawQuery = q.Encode()
	return u.String()
}
