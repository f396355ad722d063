package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/bobarin/storytime/internal/api"
	"github.com/bobarin/storytime/internal/app"
	"github.com/bobarin/storytime/internal/config"
	"github.com/bobarin/storytime/internal/story"
)

// cliSession is the quota session used for every CLI run.
const cliSession = "storyctl"

type generateOptions struct {
	name        string
	ageGroup    string
	theme       string
	customTheme string
	voice       string
	language    string
	out         string
}

func NewGenerateCommand() *cobra.Command {
	var opts generateOptions

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Write and narrate one story",
		Long: `Write a personalised bedtime story with the configured LLM, narrate it
with the configured TTS provider and save the MP3.

Configuration is read from the environment and .env, the same as the API server.

Examples:
  storyctl generate --name Emma --theme "Space Adventure"
  storyctl generate --name Leo --theme Custom --custom-theme "a sleepy dragon" --language es --out leo.mp3`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.name, "name", "", "Child's name")
	cmd.Flags().StringVar(&opts.ageGroup, "age", "preschool", "Age group (toddler, preschool, early_reader, older_kids)")
	cmd.Flags().StringVar(&opts.theme, "theme", "", "Story theme, or Custom")
	cmd.Flags().StringVar(&opts.customTheme, "custom-theme", "", "Theme text used with --theme Custom")
	cmd.Flags().StringVar(&opts.voice, "voice", "", "Narrator voice")
	cmd.Flags().StringVar(&opts.language, "language", "en", "ISO 639-1 language code")
	cmd.Flags().StringVarP(&opts.out, "out", "o", "", "Output MP3 path (default: bedtime-story-<id>.mp3)")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("theme")

	return cmd
}

func runGenerate(cmd *cobra.Command, opts generateOptions) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	app.SetupLogging(cfg.LogLevel, "console")

	ctx := cmd.Context()
	a, err := app.Build(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.Stories.Generate(ctx, story.Request{
		SessionID:   cliSession,
		ChildName:   opts.name,
		AgeGroup:    opts.ageGroup,
		Theme:       opts.theme,
		CustomTheme: opts.customTheme,
		Voice:       opts.voice,
		Language:    opts.language,
	})
	if err != nil {
		return errors.New(story.UserMessage(err))
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, res.Story)
	fmt.Fprintln(out)
	fmt.Fprintln(out, res.Status)
	if res.Quota != nil {
		fmt.Fprintln(out, res.Quota.Message)
	}

	if !res.HasAudio {
		fmt.Fprintln(out, "Audio unavailable, story saved as text only.")
		return nil
	}

	path := opts.out
	if path == "" {
		path = fmt.Sprintf("bedtime-story-%s.mp3", res.ID)
	}
	if err := saveAudio(cmd, a, res.ID, path); err != nil {
		return err
	}

	if a.FFmpeg != nil {
		if ms, err := a.FFmpeg.GetAudioDuration(ctx, path); err == nil {
			fmt.Fprintf(out, "Audio length: %d min %d sec\n", ms/60000, (ms/1000)%60)
		} else {
			log.Warn().Err(err).Str("component", "storyctl").Msg("could not measure audio")
		}
	}

	return nil
}

func saveAudio(cmd *cobra.Command, a *app.App, id, path string) error {
	data, err := a.Stories.Audio(cmd.Context(), id)
	if err != nil {
		return fmt.Errorf("failed to load audio: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create output dir: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write audio: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Audio saved to %s\n", path)
	return nil
}

func NewCatalogCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "catalog",
		Short: "List age groups, themes, voices and languages",
		RunE: func(cmd *cobra.Command, args []string) error {
			printCatalog(cmd.OutOrStdout())
			return nil
		},
	}
}

func printCatalog(w io.Writer) {
	opts := api.BuildOptions()

	fmt.Fprintln(w, "Age groups:")
	for _, g := range opts.AgeGroups {
		fmt.Fprintf(w, "  %-13s %s, ~%d words (%s)\n", g.Value, g.Label, g.WordCount, g.Duration)
	}

	fmt.Fprintln(w, "\nThemes:")
	for _, t := range opts.Themes {
		fmt.Fprintf(w, "  %s\n", t)
	}
	fmt.Fprintf(w, "  %s (use --custom-theme)\n", opts.CustomTheme)

	fmt.Fprintln(w, "\nVoices:")
	for _, v := range opts.Voices {
		fmt.Fprintf(w, "  %-17s %s\n", v.Value, v.Label)
	}

	fmt.Fprintln(w, "\nLanguages:")
	for _, l := range opts.Languages {
		fmt.Fprintf(w, "  %s  %s\n", l.Value, l.Label)
	}
}
