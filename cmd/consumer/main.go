// The consumer drains the driver location topic and applies each update
// to the Redis presence tracker. It is the write path the matcher's
// geofence reads depend on, so it retries transient Redis failures
// before giving up on a message.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/kafka-go"

	"github.com/example/ride-hail/internal/config"
	"github.com/example/ride-hail/internal/logging"
	"github.com/example/ride-hail/internal/models"
	"github.com/example/ride-hail/internal/presence"
)

var (
	msgsConsumed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_messages_consumed_total",
		Help: "Total driver presence messages consumed",
	})
	msgsInvalid = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_messages_invalid_total",
		Help: "Total invalid messages received",
	})
	presenceUpdates = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_presence_updates_total",
		Help: "Total successful presence updates",
	})
	presenceErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_presence_errors_total",
		Help: "Total presence updates abandoned after retries",
	})
	presenceRejected = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_presence_rejected_total",
		Help: "Total online updates dropped for unapproved drivers",
	})
)

func init() {
	prometheus.MustRegister(msgsConsumed, msgsInvalid, presenceUpdates, presenceErrors, presenceRejected)
}

func main() {
	var metricsAddr string
	flag.StringVar(&metricsAddr, "metrics-addr", ":2112", "address to serve prometheus metrics on")
	flag.Parse()

	cfg, err := config.LoadServerConfig()
	if err != nil {
		os.Stderr.WriteString("bad configuration: " + err.Error() + "\n")
		os.Exit(1)
	}
	logger := logging.NewLogger(cfg.LogLevel)

	brokers := cfg.KafkaBrokers
	if len(brokers) == 0 {
		brokers = []string{"localhost:9092"}
	}
	group := os.Getenv("KAFKA_GROUP")
	if group == "" {
		group = "ride-hail-presence"
	}
	redisAddr := cfg.RedisAddr
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}

	tracker := presence.NewRedisTracker(redisAddr, cfg.RedisPassword, cfg.RedisGeoKey)

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) })
		mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
			if err := tracker.Ping(r.Context()); err != nil {
				http.Error(w, "redis not ready", http.StatusServiceUnavailable)
				return
			}
			w.WriteHeader(200)
			w.Write([]byte("ready"))
		})
		logger.Info("metrics/health listening", "addr", metricsAddr)
		if err := http.ListenAndServe(metricsAddr, mux); err != nil {
			logger.Error("metrics server stopped", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	r := kafka.NewReader(kafka.ReaderConfig{Brokers: brokers, Topic: cfg.KafkaTopic, GroupID: group, MinBytes: 10e3, MaxBytes: 10e6})
	defer func() {
		_ = r.Close()
		_ = tracker.Close()
	}()

	logger.Info("consumer listening", "topic", cfg.KafkaTopic, "brokers", brokers, "group", group)

	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		m, err := r.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				logger.Info("shutting down consumer")
				return
			}
			logger.Warn("kafka read error", "error", err, "backoff", backoff)
			time.Sleep(backoff)
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}
		backoff = time.Second

		msgsConsumed.Inc()

		var p models.DriverPresence
		if err := json.Unmarshal(m.Value, &p); err != nil || p.DriverID == "" {
			msgsInvalid.Inc()
			logger.Warn("invalid message", "error", err)
			continue
		}
		if p.LastUpdated.IsZero() {
			p.LastUpdated = m.Time
		}

		if err := applyPresence(ctx, tracker, p, 3, 200*time.Millisecond); err != nil {
			if errors.Is(err, errNotApproved) {
				presenceRejected.Inc()
				logger.Warn("dropping online update for unapproved driver", "driver_id", p.DriverID)
				continue
			}
			presenceErrors.Inc()
			logger.Error("presence update failed", "driver_id", p.DriverID, "error", err)
			continue
		}
		presenceUpdates.Inc()
	}
}

// PresenceUpdater is the slice of the tracker the consumer needs,
// narrowed so tests can fake it.
type PresenceUpdater interface {
	Upsert(ctx context.Context, p models.DriverPresence) error
	Status(ctx context.Context, driverID string) (models.ApprovalStatus, error)
}

var errNotApproved = errors.New("driver not approved for online presence")

// applyPresence applies one presence update. Only approved drivers may
// go online; offline updates always land.
func applyPresence(ctx context.Context, tr PresenceUpdater, p models.DriverPresence, attempts int, delay time.Duration) error {
	if p.Status == models.PresenceOnline {
		st, err := tr.Status(ctx, p.DriverID)
		if err != nil {
			return err
		}
		if st != models.ApprovalApproved {
			return errNotApproved
		}
	}
	return updatePresenceWithRetry(ctx, tr, p, attempts, delay)
}

// updatePresenceWithRetry retries a tracker write with doubling delay.
// The last error wins when attempts run out.
func updatePresenceWithRetry(ctx context.Context, tr PresenceUpdater, p models.DriverPresence, attempts int, delay time.Duration) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = tr.Upsert(ctx, p); err == nil {
			return nil
		}
		if i < attempts-1 {
			time.Sleep(delay)
			delay *= 2
		}
	}
	return err
}
