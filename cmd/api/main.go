package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ANIKETSHETTY47/grid-risk-engine/internal/cache"
	"github.com/ANIKETSHETTY47/grid-risk-engine/internal/cloud"
	"github.com/ANIKETSHETTY47/grid-risk-engine/internal/config"
	"github.com/ANIKETSHETTY47/grid-risk-engine/internal/database"
	"github.com/ANIKETSHETTY47/grid-risk-engine/internal/engine"
	httpHandlers "github.com/ANIKETSHETTY47/grid-risk-engine/internal/http"
	"github.com/ANIKETSHETTY47/grid-risk-engine/internal/jobs"
	"github.com/ANIKETSHETTY47/grid-risk-engine/internal/notify"
	"github.com/ANIKETSHETTY47/grid-risk-engine/internal/repository"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	if err := config.Load(); err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := []engine.Option{engine.WithLogger(log.Logger)}

	switch backend := config.StorageBackend(); backend {
	case "postgres":
		db, err := database.Connect(ctx, config.DSN())
		if err != nil {
			log.Fatal().Err(err).Msg("db connect failed")
		}
		defer db.Close()
		opts = append(opts,
			engine.WithAlgorithmStore(repository.NewAlgorithmStore(db)),
			engine.WithHistoryStore(repository.NewHistoryStore(db)),
		)
	case "dynamodb":
		table, err := cloud.NewHistoryTable(ctx, config.AWSRegion(), config.HistoryTable())
		if err != nil {
			log.Fatal().Err(err).Msg("dynamodb setup failed")
		}
		opts = append(opts, engine.WithHistoryStore(table))
	case "memory":
	default:
		log.Fatal().Str("backend", backend).Msg("unknown STORAGE_BACKEND")
	}

	notifiers := notify.Fanout{notify.NewLog(log.Logger)}

	var client mqtt.Client
	if broker := config.MQTTBroker(); broker != "" {
		client = mqtt.NewClient(mqtt.NewClientOptions().AddBroker(broker).SetClientID("grid-risk-api"))
		if token := client.Connect(); token.Wait() && token.Error() != nil {
			log.Fatal().Err(token.Error()).Msg("mqtt connect")
		}
		defer client.Disconnect(250)
		notifiers = append(notifiers, notify.NewMQTT(client, config.MQTTNotifyTopic()))
	}

	if config.UseCloudServices() {
		archive, err := cloud.NewResultArchive(ctx, config.AWSRegion(), config.S3Bucket())
		if err != nil {
			log.Fatal().Err(err).Msg("s3 setup failed")
		}
		opts = append(opts, engine.WithArchive(archive))

		if arn := config.SNSTopicArn(); arn != "" {
			sns, err := cloud.NewSNSNotifier(ctx, config.AWSRegion(), arn)
			if err != nil {
				log.Fatal().Err(err).Msg("sns setup failed")
			}
			notifiers = append(notifiers, sns)
		}
	}
	opts = append(opts, engine.WithNotifier(notifiers))

	s := config.Engine()
	eng, err := engine.New(ctx, engine.Settings{
		Jobs: jobs.Settings{Workers: s.Workers, QueueSize: s.QueueSize, ItemTimeout: s.ItemTimeout, Retention: s.JobRetention},
		Cache: cache.Settings{
			EquipmentTTL: s.EquipmentCacheTTL,
			FacilityTTL:  s.FacilityCacheTTL,
			Retention:    s.CacheRetention,
		},
		ForecastHorizon: s.ForecastHorizon,
		RecomputeLimit:  s.Workers,
	}, opts...)
	if err != nil {
		log.Fatal().Err(err).Msg("engine init failed")
	}
	eng.Start()

	if client != nil {
		subscribeSubmissions(client, config.MQTTSubmitTopic(), eng)
	}

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Get("/health", func(c *fiber.Ctx) error { return c.SendString("ok") })
	httpHandlers.Register(app, eng)

	go func() {
		<-ctx.Done()
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Error().Err(err).Msg("http shutdown")
		}
	}()

	addr := config.APIAddr()
	log.Info().Str("addr", addr).Str("backend", config.StorageBackend()).Msg("api listening")
	if err := app.Listen(addr); err != nil {
		log.Error().Err(err).Msg("server exit")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := eng.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("engine shutdown")
	}
	log.Info().Msg("api stopped")
}

// subscribeSubmissions accepts the same JSON as POST /calculations.
func subscribeSubmissions(client mqtt.Client, topic string, eng *engine.Engine) {
	handler := func(_ mqtt.Client, msg mqtt.Message) {
		var s engine.Submission
		if err := json.Unmarshal(msg.Payload(), &s); err != nil {
			log.Error().Err(err).Str("topic", msg.Topic()).Msg("bad submission payload")
			return
		}
		id, err := eng.SubmitCalculation(context.Background(), s)
		if err != nil {
			log.Error().Err(err).Str("topic", msg.Topic()).Msg("submission rejected")
			return
		}
		log.Info().Str("job_id", id).Str("topic", msg.Topic()).Msg("submission accepted")
	}

	if token := client.Subscribe(topic, 1, handler); token.Wait() && token.Error() != nil {
		log.Fatal().Err(token.Error()).Msg("subscribe failed")
	}
	log.Info().Str("topic", topic).Msg("mqtt submissions enabled")
}
