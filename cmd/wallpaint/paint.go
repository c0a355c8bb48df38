package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jo-hoe/wallpaint/internal/backend/database"
	"github.com/jo-hoe/wallpaint/internal/backend/storage"
	"github.com/jo-hoe/wallpaint/internal/core"
	"github.com/jo-hoe/wallpaint/internal/imageio"
	"github.com/jo-hoe/wallpaint/internal/pipeline"
	"github.com/jo-hoe/wallpaint/internal/segmentation"
)

type paintSettings struct {
	output     string
	color      string
	x, y       int
	config     string
	segmenter  string
	endpoint   string
	checkpoint string
	format     string
	blend      float64
}

// paintCommand recolours a local file without starting the server. Records
// and intermediate objects live in a throwaway in-memory database and a
// temporary directory.
func paintCommand() *cobra.Command {
	settings := &paintSettings{}
	cmd := &cobra.Command{
		Use:   "paint [input image]",
		Short: "Recolour the wall at a point of a local image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return runPaint(ctx, cmd, settings, args[0])
		},
	}

	cmd.Flags().StringVarP(&settings.output, "output", "o", "", "Path of the painted image (default painted_<input>)")
	cmd.Flags().StringVarP(&settings.color, "color", "c", "", "Paint colour as #rrggbb (default from config)")
	cmd.Flags().IntVar(&settings.x, "x", -1, "Horizontal click position; omit both --x and --y to prompt at the top-left corner (0,0)")
	cmd.Flags().IntVar(&settings.y, "y", -1, "Vertical click position; out-of-bounds points fall back to the image centre")
	cmd.Flags().StringVar(&settings.config, "config", "", "Optional config file supplying segmentation and pipeline settings")
	cmd.Flags().StringVar(&settings.segmenter, "segmenter", "", "Segmentation collaborator: floodfill or sam-http")
	cmd.Flags().StringVar(&settings.endpoint, "endpoint", "", "Inference endpoint for sam-http")
	cmd.Flags().StringVar(&settings.checkpoint, "checkpoint", "", "Model checkpoint expected at the endpoint")
	cmd.Flags().StringVarP(&settings.format, "format", "f", "", "Output format: jpeg, png, bmp or tiff")
	cmd.Flags().Float64Var(&settings.blend, "blend", 0, "Blend alpha in (0,1]; 0 replaces pixels outright")
	return cmd
}

func (s *paintSettings) serviceConfig(tempDir string) (*core.ServiceConfig, error) {
	config := &core.ServiceConfig{}
	if s.config != "" {
		loaded, err := core.LoadConfig(s.config)
		if err != nil {
			return nil, err
		}
		config = loaded
	}

	config.Database = core.Database{Type: database.TypeSQLite, ConnectionString: ":memory:"}
	config.Storage = core.Storage{Type: storage.TypeFilesystem, Directory: tempDir}
	config.Pipeline.Workers = 1
	config.Pipeline.QueueSize = 1
	config.Pipeline.PostProcess = nil
	if s.segmenter != "" {
		config.Segmentation.Type = s.segmenter
	}
	if s.endpoint != "" {
		config.Segmentation.Endpoint = s.endpoint
	}
	if s.checkpoint != "" {
		config.Segmentation.Checkpoint = s.checkpoint
	}
	if s.format != "" {
		config.Pipeline.OutputFormat = s.format
	}
	if s.blend > 0 {
		alpha := s.blend
		config.Pipeline.Blend = core.Blend{Enabled: true, Alpha: &alpha}
	}
	if config.Segmentation.Type == "" {
		config.Segmentation.Type = segmentation.TypeFloodFill
	}

	if err := config.Complete(); err != nil {
		return nil, err
	}
	return config, nil
}

func runPaint(ctx context.Context, cmd *cobra.Command, settings *paintSettings, input string) error {
	data, err := os.ReadFile(input)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", input, err)
	}

	tempDir, err := os.MkdirTemp("", "wallpaint-*")
	if err != nil {
		return fmt.Errorf("failed to create work directory: %w", err)
	}
	defer os.RemoveAll(tempDir)

	config, err := settings.serviceConfig(tempDir)
	if err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}
	service, err := core.NewCoreService(ctx, config)
	if err != nil {
		return err
	}
	defer service.Close()

	req := core.UploadRequest{Image: data, Color: settings.color}
	if cmd.Flags().Changed("x") {
		req.X = &settings.x
	}
	if cmd.Flags().Changed("y") {
		req.Y = &settings.y
	}

	view, result, err := service.Paint(ctx, req)
	if err != nil {
		var validation pipeline.ValidationFailure
		if errors.As(err, &validation) {
			return fmt.Errorf("invalid %s: %s", validation.Field, validation.Reason)
		}
		return err
	}

	success, ok := result.(pipeline.Success)
	if !ok {
		return fmt.Errorf("painting failed: %v", result)
	}

	painted, _, err := service.ReadResult(ctx, view.ID)
	if err != nil {
		return err
	}
	output := settings.output
	if output == "" {
		output = defaultOutputPath(input, config.Pipeline.OutputFormat)
	}
	if err := os.WriteFile(output, painted, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", output, err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "painted %s at (%d,%d) with %s, score %.3f -> %s\n",
		input, success.Point.X, success.Point.Y, view.Color, success.Score, output)
	if success.Substituted {
		fmt.Fprintln(cmd.OutOrStdout(), "click point was outside the image, the centre was used")
	}
	return nil
}

func defaultOutputPath(input, format string) string {
	base := filepath.Base(input)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(filepath.Dir(input), "painted_"+stem+"."+imageio.Extension(format))
}
