package health

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"go.mongodb.org/mongo-driver/mongo"

	"ampere/internal/constants"
)

type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

type Checker interface {
	Check(ctx context.Context) error
	Name() string
}

type Health struct {
	Status    Status                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks"`
}

type CheckResult struct {
	Status    Status    `json:"status"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type registration struct {
	checker  Checker
	optional bool
}

type CheckerRegistry struct {
	checkers []registration
}

func NewCheckerRegistry() *CheckerRegistry {
	return &CheckerRegistry{}
}

func (r *CheckerRegistry) Register(checker Checker) {
	r.checkers = append(r.checkers, registration{checker: checker})
}

// RegisterOptional adds a checker whose failure only degrades the overall
// status.
func (r *CheckerRegistry) RegisterOptional(checker Checker) {
	r.checkers = append(r.checkers, registration{checker: checker, optional: true})
}

func (r *CheckerRegistry) Check(ctx context.Context) Health {
	results := make(map[string]CheckResult, len(r.checkers))
	overall := StatusHealthy

	for _, reg := range r.checkers {
		result := CheckResult{Status: StatusHealthy}
		if err := reg.checker.Check(ctx); err != nil {
			result.Message = err.Error()
			if reg.optional {
				result.Status = StatusDegraded
				if overall == StatusHealthy {
					overall = StatusDegraded
				}
			} else {
				result.Status = StatusUnhealthy
				overall = StatusUnhealthy
			}
		}
		result.Timestamp = time.Now()
		results[reg.checker.Name()] = result
	}

	return Health{
		Status:    overall,
		Timestamp: time.Now(),
		Checks:    results,
	}
}

// Handler serves the registry as JSON; unhealthy maps to 503.
func Handler(registry *CheckerRegistry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h := registry.Check(r.Context())
		statusCode := http.StatusOK
		if h.Status == StatusUnhealthy {
			statusCode = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(statusCode)
		json.NewEncoder(w).Encode(h)
	}
}

// pingChecker adapts a client ping to Checker.
type pingChecker struct {
	name string
	ping func(ctx context.Context) error
}

func (c *pingChecker) Name() string {
	return c.name
}

func (c *pingChecker) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, constants.HealthCheckTimeout)
	defer cancel()

	if err := c.ping(ctx); err != nil {
		return fmt.Errorf("%s ping failed: %w", c.name, err)
	}
	return nil
}

func NewPostgreSQLChecker(db *sql.DB) Checker {
	return &pingChecker{name: "postgresql", ping: db.PingContext}
}

func NewRedisChecker(client *redis.Client) Checker {
	return &pingChecker{name: "redis", ping: func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}}
}

func NewMongoDBChecker(client *mongo.Client) Checker {
	return &pingChecker{name: "mongodb", ping: func(ctx context.Context) error {
		return client.Ping(ctx, nil)
	}}
}

// NewKafkaChecker dials the seed brokers in order and confirms the topic
// still has partitions.
func NewKafkaChecker(brokers []string, topic string) Checker {
	dialer := &kafka.Dialer{Timeout: constants.HealthCheckTimeout}
	return &pingChecker{name: "kafka", ping: func(ctx context.Context) error {
		var lastErr error
		for _, addr := range brokers {
			conn, err := dialer.DialContext(ctx, "tcp", addr)
			if err != nil {
				lastErr = err
				continue
			}
			partitions, err := conn.ReadPartitions(topic)
			conn.Close()
			if err != nil {
				return err
			}
			if len(partitions) == 0 {
				return fmt.Errorf("topic %s has no partitions", topic)
			}
			return nil
		}
		if lastErr == nil {
			lastErr = errors.New("no brokers configured")
		}
		return lastErr
	}}
}

// RunningChecker reports unhealthy once done is closed.
type RunningChecker struct {
	name string
	done <-chan struct{}
}

func NewRunningChecker(name string, done <-chan struct{}) *RunningChecker {
	return &RunningChecker{name: name, done: done}
}

func (c *RunningChecker) Name() string {
	return c.name
}

func (c *RunningChecker) Check(ctx context.Context) error {
	select {
	case <-c.done:
		return fmt.Errorf("%s is not running", c.name)
	default:
		return nil
	}
}
