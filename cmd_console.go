package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/Perceptus-Labs/perceptus-object-detector/handlers"
	"github.com/Perceptus-Labs/perceptus-object-detector/utils"
	"github.com/chzyer/readline"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newConsoleCommand(app *appContext) *cobra.Command {
	return &cobra.Command{
		Use:   "console",
		Short: "Run the detector screen in the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConsole(cmd.Context(), app)
		},
	}
}

func runConsole(ctx context.Context, app *appContext) error {
	cfg := app.cfg

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt)
	defer cancel()

	openaiClient, err := utils.NewOpenAIClient(cfg.OpenAI)
	if err != nil {
		return err
	}

	rl, err := readline.New("> ")
	if err != nil {
		return err
	}
	defer func() {
		_ = rl.Close()
	}()

	screen := handlers.NewConsoleScreen(rl, rl.Stdout())
	sessionID := uuid.New().String()
	ctrl := handlers.NewWorkflowController(sessionID, handlers.ControllerDeps{
		Media:     utils.NewMediaLibrary(cfg.Media, utils.ChooserFunc(screen.ChooseFromGallery)),
		Encoder:   utils.NewFileEncoder(),
		Inference: openaiClient,
		Notifier:  screen,
		Logger:    app.logger,
	})

	redisClient, err := utils.ConnectRedis(ctx, cfg.Redis)
	if err != nil {
		app.logger.Warn("Continuing without state publishing", zap.Error(err))
	} else if redisClient != nil {
		defer redisClient.Close()
		ctrl.Subscribe(utils.NewStatePublisher(redisClient, cfg.Redis.Channel).Listener(sessionID, ctrl.Logger))
	}

	return screen.Run(ctx, ctrl)
}
