// Command pidisplay serves an HTTP API that renders uploaded images on an
// SPI e-paper panel.
//
//	pidisplay -config config.yaml        serve the API
//	pidisplay -image logo.png -rotate 90 draw one image and exit
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/AndreRenaud/pidisplay/config"
	"github.com/AndreRenaud/pidisplay/display"
	"github.com/AndreRenaud/pidisplay/epd"
	"github.com/AndreRenaud/pidisplay/logging"
	"github.com/AndreRenaud/pidisplay/server"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const version = "0.99.0"

func main() {
	configPath := flag.String("config", "", "Path to the YAML config file")
	imageFilename := flag.String("image", "", "Draw this image on the panel and exit")
	rotate := flag.Int("rotate", 0, "Rotation angle, overrides display.rotate when non-zero")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logging.Setup("info", "console")
		log.Fatal().Err(err).Msg("failed to load config")
	}
	logging.Setup(cfg.Log.Level, cfg.Log.Format)
	if *rotate != 0 {
		cfg.Display.Rotate = *rotate
	}

	panel, err := epd.Open(cfg.Display.EPDOptions())
	if err != nil {
		log.Fatal().Err(err).Str("type", cfg.Display.Type).Msg("failed to open display")
	}
	d := display.New(panel, display.Options{Type: cfg.Display.Type, Rotate: cfg.Display.Rotate})
	info := d.Info()
	log.Info().
		Str("type", info.Type).
		Int("width", info.Width).
		Int("height", info.Height).
		Msg("display resolution")

	if *imageFilename != "" {
		err := drawFile(d, *imageFilename)
		if cerr := d.Close(); cerr != nil {
			log.Error().Err(cerr).Msg("closing display failed")
		}
		if err != nil {
			log.Fatal().Err(err).Str("image", *imageFilename).Msg("draw failed")
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gin.SetMode(gin.ReleaseMode)
	log.Info().Str("version", version).Msg("starting PiDisplay API")
	srvErr := server.New(cfg.Server, d).Run(ctx)

	if err := d.Close(); err != nil {
		log.Error().Err(err).Msg("closing display failed")
	} else {
		log.Info().Msg("display asleep")
	}
	if srvErr != nil {
		log.Fatal().Err(srvErr).Msg("HTTP server failed")
	}
}

func drawFile(d *display.Display, filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return err
	}
	return d.Render(log.Logger.WithContext(context.Background()), data, display.RenderOptions{})
}
