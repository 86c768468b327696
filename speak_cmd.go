package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/caarlos0/env/v11"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/civichero/civichero/internal/config"
	"github.com/civichero/civichero/internal/lesson"
	"github.com/civichero/civichero/tts"
	"github.com/civichero/civichero/tts/engines"
	"github.com/civichero/civichero/tts/engines/espeak"
	"github.com/civichero/civichero/tts/engines/mock"
	"github.com/civichero/civichero/ui"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"
)

// autoMaxFailures is how often espeak may fail before the auto engine
// switches to silent playback.
const autoMaxFailures = 3

var (
	plain      bool
	render     bool
	listVoices bool
	width      uint

	speakCmd = &cobra.Command{
		Use:   "speak [FILE|-]",
		Short: "Read a lesson aloud",
		Long: paragraph(fmt.Sprintf(
			"\nRead a lesson %s. Markdown lessons are reduced to their prose first, and a YAML front matter block may set the %s and %s. In a terminal the lesson plays in an interactive player.",
			keyword("aloud"), keyword("title"), keyword("language"),
		)),
		Example: paragraph("civichero speak lessons/devolution.md\ncivichero speak --lang sw katiba.md\necho 'Kenya has 47 counties.' | civichero speak --engine mock"),
		Args:    cobra.MaximumNArgs(1),
		RunE:    executeSpeak,
	}
)

func init() {
	speakCmd.Flags().String("engine", cfg.Speech.Engine, "speech engine: auto, espeak or mock")
	speakCmd.Flags().String("lang", cfg.Speech.Language, "lesson language when the lesson does not set one: en or sw")
	speakCmd.Flags().String("voice", "", "voice ID or name (see --list-voices)")
	speakCmd.Flags().Float64("rate", cfg.Speech.Rate, "speaking rate, 1.0 is normal")
	speakCmd.Flags().BoolVar(&plain, "plain", false, "print progress instead of running the interactive player")
	speakCmd.Flags().BoolVarP(&render, "render", "r", false, "render the lesson with glamour before reading it (plain mode)")
	speakCmd.Flags().BoolVar(&listVoices, "list-voices", false, "list the engine's voices and exit")
	speakCmd.Flags().UintVarP(&width, "width", "w", 0, "word-wrap at width (set to 0 to use the terminal width)")

	_ = viper.BindPFlag("speech.engine", speakCmd.Flags().Lookup("engine"))
	_ = viper.BindPFlag("speech.language", speakCmd.Flags().Lookup("lang"))
	_ = viper.BindPFlag("speech.voice", speakCmd.Flags().Lookup("voice"))
	_ = viper.BindPFlag("speech.rate", speakCmd.Flags().Lookup("rate"))
}

func stdinIsPipe() (bool, error) {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false, fmt.Errorf("unable to open file: %w", err)
	}
	if stat.Mode()&os.ModeCharDevice == 0 || stat.Size() > 0 {
		return true, nil
	}
	return false, nil
}

func readLesson(args []string) (lesson.Lesson, error) {
	name := "-"
	if len(args) == 1 {
		name = args[0]
	}

	var r io.Reader
	if name == "-" {
		if yes, err := stdinIsPipe(); err != nil {
			return lesson.Lesson{}, err
		} else if !yes {
			return lesson.Lesson{}, errors.New("missing lesson: pass a file or pipe text on stdin")
		}
		r = os.Stdin
	} else {
		f, err := os.Open(name)
		if err != nil {
			return lesson.Lesson{}, fmt.Errorf("unable to open file: %w", err)
		}
		defer f.Close() //nolint:errcheck
		r = f
	}

	b, err := io.ReadAll(r)
	if err != nil {
		return lesson.Lesson{}, fmt.Errorf("unable to read lesson: %w", err)
	}
	return lesson.Parse(name, b)
}

// newEngine builds the configured speech engine.
func newEngine(c config.SpeechConfig) (tts.Engine, func(), error) {
	var e tts.Engine
	switch c.Engine {
	case "mock":
		e = mock.New()
	case "espeak":
		es := espeak.New(espeak.Config{BinaryPath: c.Binary}, log.Default())
		if !es.Available() {
			return nil, nil, fmt.Errorf("%s not found: install espeak-ng or use --engine mock", c.Binary)
		}
		e = es
	case "auto":
		es := espeak.New(espeak.Config{BinaryPath: c.Binary}, log.Default())
		e = engines.NewFallbackEngine(es, mock.New(), autoMaxFailures, log.Default())
	default:
		return nil, nil, fmt.Errorf("unknown speech engine %q", c.Engine)
	}
	return e, func() {
		if err := engines.Shutdown(e); err != nil {
			log.Debug("Engine shutdown failed", "err", err)
		}
	}, nil
}

func executeSpeak(cmd *cobra.Command, args []string) error {
	engine, shutdown, err := newEngine(cfg.Speech)
	if err != nil {
		return err
	}
	defer shutdown()

	if listVoices {
		return printVoices(cmd.OutOrStdout(), engine.Voices())
	}

	l, err := readLesson(args)
	if err != nil {
		return err
	}
	if l.Language == "" {
		l.Language = tts.Language(cfg.Speech.Language)
	}

	voice := tts.DefaultVoiceConfig()
	voice.Rate = cfg.Speech.Rate
	voice.Pitch = cfg.Speech.Pitch
	voice.Volume = cfg.Speech.Volume
	if cfg.Speech.Voice != "" {
		v, err := tts.FindVoice(engine.Voices(), cfg.Speech.Voice)
		if err != nil {
			return fmt.Errorf("unable to use voice %q: %w", cfg.Speech.Voice, err)
		}
		voice.Voice = v
	}

	controller := tts.NewController(engine,
		tts.WithConfig(tts.ControllerConfig{
			MaxChunkLength: cfg.Speech.MaxChunkLength,
			WordsPerMinute: cfg.Speech.WordsPerMinute,
			PollInterval:   tts.DefaultControllerConfig().PollInterval,
		}),
		tts.WithVoiceConfig(voice),
		tts.WithLogger(log.Default().WithPrefix("tts")),
	)
	defer controller.Close() //nolint:errcheck

	req := tts.Request{Text: l.Text, Language: l.Language, AutoPlay: true}

	isTerminal := term.IsTerminal(int(os.Stdout.Fd())) && term.IsTerminal(int(os.Stdin.Fd()))
	if isTerminal && !plain && !render {
		return runPlayer(controller, req, l)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if render {
		if err := renderLesson(cmd.OutOrStdout(), l, isTerminal); err != nil {
			return err
		}
	}
	return runPlain(ctx, cmd.ErrOrStderr(), controller, req)
}

func runPlayer(controller *tts.Controller, req tts.Request, l lesson.Lesson) error {
	// Read environment to get debugging stuff
	uiCfg, err := env.ParseAs[ui.Config]()
	if err != nil {
		return fmt.Errorf("error parsing config: %v", err)
	}
	uiCfg.Title = l.Title
	uiCfg.Engine = cfg.Speech.Engine
	uiCfg.MaxChunkLength = cfg.Speech.MaxChunkLength

	if err := logToFile(cfg.Log.File); err != nil {
		log.Warn("Could not open log file", "err", err)
	}

	p, player := ui.NewProgram(uiCfg, controller, req)
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("unable to run tui program: %w", err)
	}
	fmt.Println(player.Summary())
	return nil
}

// runPlain reads the lesson without a TUI, printing each chunk as it
// starts. It returns when the lesson ends, fails, or ctx is cancelled.
func runPlain(ctx context.Context, w io.Writer, controller *tts.Controller, req tts.Request) error {
	done := make(chan error, 1)
	finish := func(err error) {
		select {
		case done <- err:
		default:
		}
	}

	controller.OnUtterance(func(u tts.Utterance) {
		st := controller.Status()
		fmt.Fprintf(w, "%s %s\n",
			subtleStyle.Render(fmt.Sprintf("[%d/%d]", u.Index+1, st.Total)),
			ui.Truncate(u.Text, terminalWidth()-10),
		)
	})
	controller.OnComplete(func() { finish(nil) })
	controller.OnError(func(err error) { finish(err) })

	if err := controller.Load(req); err != nil {
		return err
	}
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("playback failed: %w", err)
		}
		fmt.Fprintln(w, successStyle.Render("Done."))
		return nil
	case <-ctx.Done():
		_ = controller.Stop()
		fmt.Fprintln(w, failureStyle.Render("Stopped."))
		return nil
	}
}

func renderLesson(w io.Writer, l lesson.Lesson, isTerminal bool) error {
	content := string(l.Source)
	if !l.Markdown {
		content = l.Text
	}

	style := glamour.WithAutoStyle()
	if !isTerminal {
		style = glamour.WithStandardStyle("notty")
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithColorProfile(lipgloss.ColorProfile()),
		style,
		glamour.WithWordWrap(terminalWidth()),
	)
	if err != nil {
		return fmt.Errorf("unable to create renderer: %w", err)
	}
	out, err := r.Render(content)
	if err != nil {
		return fmt.Errorf("unable to render markdown: %w", err)
	}
	_, err = fmt.Fprint(w, out)
	return err
}

func printVoices(w io.Writer, voices []tts.Voice) error {
	if len(voices) == 0 {
		return tts.ErrNoVoices
	}
	for _, v := range voices {
		if _, err := fmt.Fprintf(w, "%-16s %-32s %s\n", v.ID, v.Name, subtleStyle.Render(v.Locale)); err != nil {
			return err
		}
	}
	return nil
}

// terminalWidth returns --width, or the terminal width capped at 120.
func terminalWidth() int {
	if width > 0 {
		return int(width) //nolint:gosec
	}
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || w <= 0 {
		return 80
	}
	if w > 120 {
		w = 120
	}
	return w
}
