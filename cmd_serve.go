package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Perceptus-Labs/perceptus-object-detector/handlers"
	"github.com/Perceptus-Labs/perceptus-object-detector/utils"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeCommand(app *appContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the detector screen over WebSocket",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), app)
		},
	}
}

func runServe(ctx context.Context, app *appContext) error {
	log := app.logger
	cfg := app.cfg

	openaiClient, err := utils.NewOpenAIClient(cfg.OpenAI)
	if err != nil {
		return err
	}

	redisClient, err := utils.ConnectRedis(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	var publisher *utils.StatePublisher
	if redisClient != nil {
		defer redisClient.Close()
		publisher = utils.NewStatePublisher(redisClient, cfg.Redis.Channel)
		log.Info("Successfully connected to Redis", zap.String("channel", cfg.Redis.Channel))
	}

	media := utils.NewMediaLibrary(cfg.Media, nil)
	screen := &handlers.ScreenServer{
		NewMedia: func(chooser utils.GalleryChooser) handlers.MediaAcquirer {
			return media.WithChooser(chooser)
		},
		Encoder:   utils.NewFileEncoder(),
		Inference: openaiClient,
		Publisher: publisher,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/screen", screen.HandleScreenSession)

	server := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(stop)

	serverErr := make(chan error, 1)
	go func() {
		log.Info("Starting server", zap.String("addr", server.Addr), zap.String("model", openaiClient.Model))
		serverErr <- server.ListenAndServe()
	}()

	select {
	case <-stop:
		log.Info("Shutting down server...")
	case err := <-serverErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("Server shutdown", zap.Error(err))
	}
	log.Info("Server shut down gracefully")
	return nil
}
