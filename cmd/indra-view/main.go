package main

import (
	"flag"
	"log"

	"github.com/hajimehoshi/ebiten/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	flag.Parse()

	logCfg := zap.NewDevelopmentConfig()
	if !*verboseFlag {
		logCfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}
	logger, err := logCfg.Build()
	if err != nil {
		log.Fatalf("logger initialization failed: %v", err)
	}
	defer logger.Sync()

	g, err := newGame(logger)
	if err != nil {
		logger.Fatal("lattice initialization failed", zap.Error(err))
	}

	ebiten.SetWindowSize(g.state.Width*windowScale, g.state.Height*windowScale)
	ebiten.SetWindowTitle("Indra")
	runErr := ebiten.RunGame(g)
	g.shutdown()
	if runErr != nil {
		logger.Fatal("game loop failed", zap.Error(runErr))
	}
}
