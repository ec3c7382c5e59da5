package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Perceptus-Labs/perceptus-object-detector/handlers"
	"github.com/Perceptus-Labs/perceptus-object-detector/models"
	"github.com/Perceptus-Labs/perceptus-object-detector/utils"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newAnalyzeCommand(app *appContext) *cobra.Command {
	return &cobra.Command{
		Use:   "analyze <image>",
		Short: "Identify the object in a single image file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(cmd.Context(), app, args[0])
		},
	}
}

func runAnalyze(ctx context.Context, app *appContext, imagePath string) error {
	absPath, err := filepath.Abs(imagePath)
	if err != nil {
		return err
	}

	openaiClient, err := utils.NewOpenAIClient(app.cfg.OpenAI)
	if err != nil {
		return err
	}

	// The file's directory acts as the gallery and the file is the choice.
	mediaCfg := app.cfg.Media
	mediaCfg.GalleryDir = filepath.Dir(absPath)
	name := filepath.Base(absPath)
	chooser := utils.ChooserFunc(func(context.Context, []utils.GalleryItem) (string, error) {
		return name, nil
	})

	ctrl := handlers.NewWorkflowController(uuid.New().String(), handlers.ControllerDeps{
		Media:     utils.NewMediaLibrary(mediaCfg, chooser),
		Encoder:   utils.NewFileEncoder(),
		Inference: openaiClient,
		Notifier: handlers.NotifierFunc(func(alert models.Alert) {
			fmt.Fprintf(os.Stderr, "[%s] %s\n", alert.Title, alert.Message)
		}),
		Logger: app.logger,
	})

	ctrl.AcquireFromGallery(ctx)
	if ctrl.State().SelectedImage == "" {
		return fmt.Errorf("could not load %s", imagePath)
	}
	if err := ctrl.Analyze(ctx); err != nil {
		return err
	}

	result := ctrl.State().AnalysisResult
	fmt.Println(result)
	if result == models.ResultFailedMessage {
		return errors.New("analysis failed")
	}
	return nil
}
