package healthcheck

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaChecker verifies a broker accepts connections. When no brokers are
// configured the deployment runs without Kafka and the check reports a
// warning instead of an error.
type KafkaChecker struct {
	brokers []string
	timeout time.Duration
	dial    func(ctx context.Context, network, address string) (*kafka.Conn, error)
}

// NewKafkaChecker creates a broker connectivity checker.
func NewKafkaChecker(brokers []string) *KafkaChecker {
	return &KafkaChecker{
		brokers: brokers,
		timeout: 2 * time.Second,
		dial:    kafka.DialContext,
	}
}

// Check dials the first broker.
func (c *KafkaChecker) Check(ctx context.Context) CheckResult {
	result := CheckResult{ID: "kafka"}
	if len(c.brokers) == 0 {
		result.Status = StatusWarn
		result.Detail = "no brokers configured, event streaming disabled"
		return result
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	conn, err := c.dial(ctx, "tcp", c.brokers[0])
	if err != nil {
		result.Status = StatusError
		result.Detail = err.Error()
		return result
	}
	_ = conn.Close()
	result.Status = StatusOK
	return result
}
