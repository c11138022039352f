package server

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/fathima-sithara/school-chat/internal/api"
	"github.com/fathima-sithara/school-chat/internal/auth"
	"github.com/fathima-sithara/school-chat/internal/config"
	"github.com/fathima-sithara/school-chat/internal/events"
	"github.com/fathima-sithara/school-chat/internal/hub"
	"github.com/fathima-sithara/school-chat/internal/media"
	"github.com/fathima-sithara/school-chat/internal/repository"
	"github.com/fathima-sithara/school-chat/internal/service"
	"github.com/fathima-sithara/school-chat/internal/ws"
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

type publisher interface {
	service.EventPublisher
	Close() error
}

// Server owns the process: stores, event bus, hub and the Fiber app.
type Server struct {
	cfg *config.Config
	log *zap.SugaredLogger

	app      *fiber.App
	mongo    *mongo.Client
	redis    *redis.Client
	producer publisher
	consumer *events.Consumer

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New connects every dependency. Redis, Kafka and S3 are optional and skipped when
// not configured.
func New(ctx context.Context, cfg *config.Config, log *zap.SugaredLogger) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Server{cfg: cfg, log: log, producer: events.Nop{}}

	mc, err := repository.NewMongoClient(ctx, cfg.Mongo.URI)
	if err != nil {
		return nil, err
	}
	s.mongo = mc
	db := mc.Database(cfg.Mongo.Database)

	messages, err := repository.NewMessageRepo(ctx, db, cfg.MongoTimeout)
	if err != nil {
		return nil, s.abort(err)
	}
	chats, err := repository.NewChatListRepo(ctx, db, cfg.MongoTimeout)
	if err != nil {
		return nil, s.abort(err)
	}
	notifications, err := repository.NewNotificationRepo(ctx, db, cfg.MongoTimeout)
	if err != nil {
		return nil, s.abort(err)
	}
	roster := repository.NewRosterRepo(db, cfg.MongoTimeout)

	var (
		presence hub.PresenceTracker
		limiter  api.Limiter
	)
	if cfg.Redis.Addr != "" {
		s.redis = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err := s.redis.Ping(ctx).Err(); err != nil {
			return nil, s.abort(fmt.Errorf("redis ping: %w", err))
		}
		presence = hub.NewPresenceStore(s.redis, cfg.Redis.Prefix, 0)
		if cfg.Redis.RateLimitCount > 0 {
			limiter = api.NewRedisLimiter(s.redis, cfg.Redis.Prefix, cfg.Redis.RateLimitCount, cfg.RateWindow)
		}
	} else {
		log.Warn("redis not configured: presence and REST rate limiting disabled")
	}

	if len(cfg.Kafka.Brokers) > 0 {
		s.producer = events.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.EventsTopic, events.BreakerConfig{
			MaxFailures: cfg.Kafka.BreakerMaxFailures,
			Timeout:     cfg.BreakerTimeout,
		}, log)
	} else {
		log.Warn("kafka not configured: domain events and school event fan-out disabled")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	hb := hub.New(chats, presence, hub.NewMetrics(reg), log)
	dispatcher := service.NewDispatcher(notifications, s.producer, log)
	orch := service.NewOrchestrator(messages, chats, dispatcher, hb, s.producer, log)
	if len(cfg.Kafka.Brokers) > 0 && cfg.Kafka.FanoutTopic != "" {
		fanout := service.NewFanout(dispatcher, roster, hb, log)
		s.consumer = events.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.FanoutTopic, cfg.Kafka.GroupID, cfg.Kafka.DLQTopic, fanout, cfg.RetryMaxElapsed, log)
	}

	verifier, err := auth.NewJWTValidator(cfg.JWT.PublicKeyPath, cfg.JWT.Alg, cfg.JWT.HSSecret)
	if err != nil {
		return nil, s.abort(fmt.Errorf("jwt validator: %w", err))
	}

	uploadLimit := int64(cfg.App.UploadLimitMB) << 20
	var mediaSvc *media.Service
	if cfg.AWS.Bucket != "" {
		store, err := media.NewS3Store(ctx, cfg.AWS)
		if err != nil {
			return nil, s.abort(err)
		}
		mediaSvc = media.NewService(store, cfg.PresignTTL, uploadLimit, log)
	} else {
		log.Warn("aws bucket not configured: uploads disabled")
	}

	s.app = api.NewApp(api.NewHandler(orch, dispatcher, mediaSvc, hb, uploadLimit, log), api.Options{
		Verifier:    verifier,
		Limiter:     limiter,
		Metrics:     promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
		Health:      s.health,
		UploadLimit: uploadLimit,
		Log:         log,
	})
	ws.NewHandler(hb, orch, verifier, ws.Settings{
		PingInterval:    cfg.PingInterval,
		WriteDeadline:   cfg.WriteDeadline,
		MaxMessageBytes: cfg.WS.MaxMessageBytes,
		RatePerSecond:   cfg.WS.RatePerSecond,
		SendBuffer:      cfg.WS.SendBuffer,
	}, log).Mount(s.app, "/ws")

	return s, nil
}

func (s *Server) health(ctx context.Context) error {
	if err := s.mongo.Ping(ctx, nil); err != nil {
		return fmt.Errorf("mongo: %w", err)
	}
	if s.redis != nil {
		if err := s.redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	return nil
}

func (s *Server) abort(err error) error {
	if s.redis != nil {
		_ = s.redis.Close()
	}
	_ = s.mongo.Disconnect(context.Background())
	return err
}

// Start runs the fan-out consumer in the background and blocks serving HTTP.
func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	if s.consumer != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.consumer.Run(ctx)
		}()
	}
	s.log.Infow("server starting", "addr", s.cfg.Addr(), "env", s.cfg.App.Env)
	return s.app.Listen(s.cfg.Addr())
}

// Shutdown stops accepting requests, then releases every dependency.
func (s *Server) Shutdown(ctx context.Context) error {
	var errs []error
	if err := s.app.ShutdownWithContext(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http: %w", err))
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	if s.consumer != nil {
		if err := s.consumer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("kafka consumer: %w", err))
		}
	}
	if err := s.producer.Close(); err != nil {
		errs = append(errs, fmt.Errorf("kafka producer: %w", err))
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis: %w", err))
		}
	}
	if err := s.mongo.Disconnect(ctx); err != nil {
		errs = append(errs, fmt.Errorf("mongo: %w", err))
	}
	return errors.Join(errs...)
}
