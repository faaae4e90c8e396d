package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	adactor "sunfence/internal/adapter/actor"
	"sunfence/internal/config"
	"sunfence/internal/core/actor"
	"sunfence/internal/pricefeed"
	"sunfence/internal/recorder"
	"sunfence/internal/server"
	"sunfence/internal/telemetry"
	"sunfence/internal/util/actorutil"
	"sunfence/pkg/goodwe"

	pactor "github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/carlmjohnson/versioninfo"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func gracefulShutdown(apiServer *http.Server, done chan bool) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	log.Println("shutting down gracefully, press Ctrl+C again to force")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown with error: %v", err)
	}

	log.Println("Server exiting")

	done <- true
}

func main() {

	cfg, err := initConfig()
	if err != nil {
		slog.Error("config errors", "error", err)
		return
	}
	safePrintConfig(*cfg)

	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)

	logger := zap.Must(zapCfg.Build())
	defer logger.Sync()

	logger.Info("sunfence starting",
		zap.String("version", versioninfo.Version),
		zap.String("revision", versioninfo.Revision))

	as := actorutil.NewActorSystemWithZapLogger(logger)
	ctx := as.Root

	store, err := recorder.NewStore(cfg.Recorder.DBPath)
	if err != nil {
		logger.Fatal("could not open event store", zap.Error(err))
	}

	modbusProv, err := modbusActorProvider(cfg, logger)
	if err != nil {
		logger.Fatal("could not init inverter client", zap.Error(err))
	}

	props := pactor.PropsFromProducer(func() pactor.Actor {
		return actor.NewMasterActor(*cfg, modbusProv,
			priceFeedActorProvider(cfg, logger),
			telemetryActorProvider(cfg, logger),
			recorderActorProvider(store, logger),
			mqttActorProvider(cfg, logger),
			logger)
	})
	pid, err := ctx.SpawnNamed(props, "master")
	if err != nil {
		return
	}

	server := server.NewServer(*cfg, ctx, pid, store)
	done := make(chan bool, 1)

	go gracefulShutdown(server, done)

	err = server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		panic(fmt.Sprintf("http server error: %s", err))
	}

	<-done
	log.Println("Graceful shutdown complete.")

	ctx.Stop(pid)
	as.Shutdown()
}

func initConfig() (*config.Config, error) {

	// alias PORT => SUNFENCE_PORT
	if port := os.Getenv("PORT"); port != "" {
		os.Setenv("SUNFENCE_PORT", port)
	}

	setConfigDefaults()

	viper.SetEnvPrefix("sunfence")
	viper.AutomaticEnv()

	// if defined, try to load config from yaml file
	if cfgFile := os.Getenv("CONFIG_FILE"); cfgFile != "" {
		if _, err := os.Stat(cfgFile); err == nil {
			slog.Info("Using config", "file", cfgFile)
			viper.SetConfigFile(cfgFile)

			err = viper.ReadInConfig()
			if err != nil {
				slog.Error("Error reading config file", "error", err)
			}
		}
	}

	var cfg config.Config

	err := viper.Unmarshal(&cfg)
	if err != nil {
		return nil, err
	}

	switch viper.GetString("log_level") {
	case "trace":
		cfg.LogLevel = zap.DebugLevel
	case "debug":
		cfg.LogLevel = zap.DebugLevel
	case "info":
		cfg.LogLevel = zap.InfoLevel
	case "error":
		cfg.LogLevel = zap.ErrorLevel
	case "warn":
		cfg.LogLevel = zap.WarnLevel
	case "fatal":
		cfg.LogLevel = zap.FatalLevel
	default:
		cfg.LogLevel = zap.InfoLevel
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func modbusActorProvider(cfg *config.Config, logger *zap.Logger) (actor.ModbusActorProvider, error) {

	client, err := goodwe.NewClient(cfg.InverterModbusTcp.Host, cfg.InverterModbusTcp.Port,
		uint8(cfg.InverterModbusTcp.UnitId),
		time.Duration(cfg.InverterModbusTcp.TimeoutMillis)*time.Millisecond, nil)
	if err != nil {
		return nil, err
	}

	mode, err := goodwe.ParseLimitMode(cfg.InverterModbusTcp.LimiterMode)
	if err != nil {
		return nil, err
	}

	limiter := goodwe.NewLimiter(client, mode,
		time.Duration(cfg.InverterModbusTcp.ReconnectMinSeconds*float64(time.Second)),
		time.Duration(cfg.InverterModbusTcp.ReconnectMaxSeconds*float64(time.Second)),
		logger)

	return func() *adactor.ModbusActor {
		return adactor.NewModbusActor(limiter, logger)
	}, nil
}

func priceFeedActorProvider(cfg *config.Config, logger *zap.Logger) actor.PriceFeedActorProvider {
	return func() *adactor.PriceFeedActor {
		client := pricefeed.NewClient(cfg.PriceFeed.URL, time.Duration(cfg.PriceFeed.TimeoutMillis)*time.Millisecond)
		return adactor.NewPriceFeedActor(client, time.Duration(cfg.PriceFeed.TimeoutMillis)*time.Millisecond, logger)
	}
}

func telemetryActorProvider(cfg *config.Config, logger *zap.Logger) actor.TelemetryActorProvider {
	return func() *adactor.TelemetryActor {
		client := telemetry.NewClient(cfg.TelemetryFeed.URL, time.Duration(cfg.TelemetryFeed.TimeoutMillis)*time.Millisecond)
		return adactor.NewTelemetryActor(client, cfg.TelemetryFeed, logger)
	}
}

func recorderActorProvider(store recorder.Store, logger *zap.Logger) actor.RecorderActorProvider {
	return func(es *eventstream.EventStream) *adactor.RecorderActor {
		return adactor.NewRecorderActor(store, es, logger)
	}
}

func mqttActorProvider(cfg *config.Config, logger *zap.Logger) actor.MQTTActorProvider {
	return func(es *eventstream.EventStream) *adactor.MQTTActor {
		return adactor.NewMQTTActor(cfg, es, logger)
	}
}

func setConfigDefaults() {
	viper.SetDefault("log_level", "info")
	viper.SetDefault("port", 8080)
	viper.SetDefault("inverter_modbus_tcp.port", 502)
	viper.SetDefault("inverter_modbus_tcp.unit_id", 247)
	viper.SetDefault("inverter_modbus_tcp.timeout_millis", 1000)
	viper.SetDefault("inverter_modbus_tcp.limiter_mode", "export_pct")
	viper.SetDefault("inverter_modbus_tcp.reconnect_min_seconds", 1)
	viper.SetDefault("inverter_modbus_tcp.reconnect_max_seconds", 60)
	viper.SetDefault("price_feed.timeout_millis", 2000)
	viper.SetDefault("price_feed.max_stale_seconds", 900)
	viper.SetDefault("price_feed.export_cost_threshold_c", 0)
	viper.SetDefault("telemetry_feed.timeout_millis", 2000)
	viper.SetDefault("telemetry_feed.max_stale_seconds", 120)
	viper.SetDefault("telemetry_feed.pbat_positive_is_charge", true)
	viper.SetDefault("telemetry_feed.pgrid_positive_is_import", true)
	viper.SetDefault("control.poll_interval_millis", 5000)
	viper.SetDefault("control.rated_capacity_w", 10000)
	viper.SetDefault("control.grid_import_bias_w", 50)
	viper.SetDefault("control.battery_idle_threshold_w", 25)
	viper.SetDefault("control.auto_charge_below_soc_pct", 0)
	viper.SetDefault("control.auto_charge_w", 0)
	viper.SetDefault("control.auto_charge_max_w", 0)
	viper.SetDefault("control.limit_smoothing", 0.5)
	viper.SetDefault("control.min_pct_step", 1)
	viper.SetDefault("control.min_seconds_between_writes", 15)
	viper.SetDefault("recorder.db_path", "sunfence.db")
	viper.SetDefault("mqtt.enabled", false)
	viper.SetDefault("mqtt.base_topic", "sunfence")
}

func safePrintConfig(cfg config.Config) {
	cfg.MQTT.Username = "*redacted*"
	cfg.MQTT.Password = "*redacted*"
	slog.Info("Using", "config", cfg)
}
