package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ledgrid/matrixd/internal/bootanim"
	"github.com/ledgrid/matrixd/internal/config"
	"github.com/ledgrid/matrixd/internal/gifdec"
	"github.com/ledgrid/matrixd/internal/led"
	"github.com/ledgrid/matrixd/internal/mqttctl"
	"github.com/ledgrid/matrixd/internal/playback"
	"github.com/ledgrid/matrixd/internal/server"
	"github.com/ledgrid/matrixd/internal/store"
)

func main() {
	// ---- Flags (config.yaml can override most) ----
	var (
		configPath = flag.String("config", "config.yaml", "path to config.yaml")
		addr       = flag.String("addr", "", "HTTP listen address (overrides config)")
		rows       = flag.Int("rows", 0, "matrix rows (overrides config)")
		cols       = flag.Int("cols", 0, "matrix cols (overrides config)")
		driver     = flag.String("driver", "", "driver: spi | sim (overrides config)")
		brightness = flag.Int("brightness", 0, "initial brightness 1..100 (overrides config)")
		simOnly    = flag.Bool("sim-only", false, "force simulation (no hardware output)")
	)
	flag.Parse()

	// ---- Logging ----
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen})

	// ---- Config ----
	cfg := config.Default()
	if c, err := config.Load(*configPath); err != nil {
		log.Warn().Err(err).Str("path", *configPath).Msg("config load failed; proceeding with defaults")
	} else {
		cfg = c
	}
	if *addr != "" {
		cfg.Addr = *addr
	}
	if *rows > 0 {
		cfg.Rows = *rows
	}
	if *cols > 0 {
		cfg.Cols = *cols
	}
	if *driver != "" {
		cfg.Driver = *driver
	}
	if *brightness > 0 {
		cfg.Brightness = *brightness
	}
	if *simOnly {
		cfg.Driver = "sim"
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	// ---- Playback state & engine ----
	state, err := playback.NewState(cfg.Brightness)
	if err != nil {
		log.Fatal().Err(err).Msg("playback state")
	}
	opts := gifdec.Options{
		Rows:      cfg.Rows,
		Cols:      cfg.Cols,
		MaxBytes:  cfg.MaxUploadBytes,
		MaxFrames: cfg.MaxFrames,
	}
	eng := playback.NewEngine(state, nil, opts)

	// ---- Persistence ----
	st, err := store.New(cfg.RunDir)
	if err != nil {
		log.Warn().Err(err).Str("dir", cfg.RunDir).Msg("runtime dir unavailable; uploads will not persist")
	} else {
		eng.Persist = st.SaveCurrent
	}

	// ---- Hardware driver ----
	count := cfg.Rows * cfg.Cols
	var drv led.Driver
	switch cfg.Driver {
	case "spi":
		log.Info().
			Str("hardware_mapping", cfg.HardwareMapping).
			Bool("disable_hardware_pulse", cfg.DisableHardwarePulse).
			Str("dev", cfg.SPI.Dev).
			Msg("initializing SPI matrix")
		d, err := led.NewSPI(cfg.SPI.Dev, count, cfg.SPI.SpeedHz)
		if err != nil {
			// Startup hardware init failure is fatal when hardware was
			// explicitly requested; -sim-only is the escape hatch.
			log.Fatal().Err(err).Msg("SPI init failed")
		}
		drv = d
	case "sim":
		drv = led.NewSim(count)
	default:
		log.Warn().Str("driver", cfg.Driver).Msg("unknown driver; using sim")
		drv = led.NewSim(count)
	}

	// ---- HTTP surface (frames tee into the websocket preview) ----
	srv, err := server.New(eng, cfg.Rows, cfg.Cols, cfg.MaxUploadBytes, cfg.AllowNets)
	if err != nil {
		log.Fatal().Err(err).Msg("server setup")
	}
	out := srv.Tee(drv)

	// ---- Render loop ----
	loop := playback.NewLoop(state, out, playback.SystemClock, time.Duration(cfg.SoftStartMs)*time.Millisecond)
	eng.AttachLoop(loop)

	// ---- Default animation ----
	installDefault(eng, st, cfg)

	// ---- MQTT surface (optional) ----
	var mq *mqttctl.Client
	if cfg.MQTT.URL != "" {
		mq = mqttctl.New(cfg.MQTT, eng)
		go func() {
			if err := mq.Connect(); err != nil {
				log.Warn().Err(err).Str("url", cfg.MQTT.URL).Msg("mqtt connect failed")
			}
		}()
	}

	httpSrv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      srv.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	go loop.Run(ctx)
	go func() {
		log.Info().Str("addr", cfg.Addr).Str("driver", cfg.Driver).
			Int("rows", cfg.Rows).Int("cols", cfg.Cols).
			Msg("HTTP server starting")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server crashed")
		}
	}()

	// ---- Graceful shutdown ----
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	s := <-ch
	log.Info().Str("signal", s.String()).Msg("shutting down")

	cancel()
	_ = httpSrv.Close()
	if mq != nil {
		mq.Disconnect()
	}
	_ = out.Close()
}

// installDefault restores the last persisted GIF, falls back to the
// configured default file, and finally to the generated boot sweep.
func installDefault(eng *playback.Engine, st *store.Store, cfg *config.Config) {
	if st != nil {
		if data, err := st.LoadCurrent(); err == nil {
			if _, err := eng.ReplaceAnimation(data); err == nil {
				log.Info().Str("path", st.CurrentPath()).Msg("restored persisted animation")
				return
			} else {
				log.Warn().Err(err).Msg("persisted animation unusable")
			}
		}
	}
	if cfg.DefaultGIF != "" {
		if data, err := os.ReadFile(cfg.DefaultGIF); err != nil {
			log.Warn().Err(err).Str("path", cfg.DefaultGIF).Msg("default gif unreadable")
		} else if _, err := eng.ReplaceAnimation(data); err != nil {
			log.Warn().Err(err).Str("path", cfg.DefaultGIF).Msg("default gif undecodable")
		} else {
			log.Info().Str("path", cfg.DefaultGIF).Msg("installed default animation")
			return
		}
	}
	eng.InstallDecoded(bootanim.Generate(cfg.Rows, cfg.Cols))
	log.Info().Msg("installed generated boot animation")
}
