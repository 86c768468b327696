// Package espeak speaks utterances through the espeak-ng command line
// synthesizer, one process per utterance.
package espeak

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/civichero/civichero/tts"
)

// DefaultBinary is looked up in PATH when Config.BinaryPath is empty.
const DefaultBinary = "espeak-ng"

// espeak-ng speaks at 175 words per minute by default.
const baseWordsPerMinute = 175

// Config holds espeak engine settings.
type Config struct {
	BinaryPath string        // Path to espeak-ng
	Timeout    time.Duration // Upper bound for a single utterance
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		BinaryPath: DefaultBinary,
		Timeout:    2 * time.Minute,
	}
}

// Engine runs espeak-ng for each utterance.
type Engine struct {
	config Config
	logger *log.Logger

	mu      sync.Mutex
	current *process
	paused  bool
	voices  []tts.Voice
}

type process struct {
	cmd       *exec.Cmd
	cancel    context.CancelFunc
	cancelled bool
	timedOut  bool
	stderr    bytes.Buffer

	// deadline counts playing time only; it is stopped while paused
	deadline  *time.Timer
	budget    time.Duration
	resumedAt time.Time
}

// New creates an espeak engine.
func New(config Config, logger *log.Logger) *Engine {
	if config.BinaryPath == "" {
		config.BinaryPath = DefaultBinary
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultConfig().Timeout
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Engine{
		config: config,
		logger: logger.WithPrefix("espeak"),
	}
}

// Available reports whether the binary can be found.
func (e *Engine) Available() bool {
	_, err := exec.LookPath(e.config.BinaryPath)
	return err == nil
}

// Speak starts an espeak-ng process for u. The text goes in on stdin.
func (e *Engine) Speak(u tts.Utterance, notify func(tts.Event)) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.current != nil {
		return errors.New("espeak: utterance already in flight")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(ctx, e.config.BinaryPath, Args(u)...)
	configure(cmd)
	cmd.WaitDelay = time.Second

	p := &process{cmd: cmd, cancel: cancel, budget: e.config.Timeout}
	// stdin is set before start so the process never sees a half-written pipe
	cmd.Stdin = strings.NewReader(u.Text)
	cmd.Stderr = &p.stderr

	if err := cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("failed to start %s: %w", e.config.BinaryPath, err)
	}
	e.current = p
	e.paused = false
	e.armLocked(p)

	e.logger.Debug("Speaking", "session", u.Session, "index", u.Index, "pid", cmd.Process.Pid)
	go e.wait(p, u, notify)
	return nil
}

func (e *Engine) wait(p *process, u tts.Utterance, notify func(tts.Event)) {
	notify(tts.EventFor(u, tts.EventStart, nil))

	err := p.cmd.Wait()
	p.cancel()

	e.mu.Lock()
	p.deadline.Stop()
	if e.current == p {
		e.current = nil
		e.paused = false
	}
	cancelled, timedOut := p.cancelled, p.timedOut
	e.mu.Unlock()

	switch {
	case cancelled:
		notify(tts.EventFor(u, tts.EventError, tts.ErrInterrupted))
	case timedOut:
		notify(tts.EventFor(u, tts.EventError, fmt.Errorf("espeak-ng timed out after %s of speech", e.config.Timeout)))
	case err != nil:
		if msg := strings.TrimSpace(p.stderr.String()); msg != "" {
			err = fmt.Errorf("espeak-ng failed: %w\nstderr: %s", err, msg)
		} else {
			err = fmt.Errorf("espeak-ng failed: %w", err)
		}
		notify(tts.EventFor(u, tts.EventError, err))
	default:
		notify(tts.EventFor(u, tts.EventEnd, nil))
	}
}

// Pause stops the running process with SIGSTOP.
func (e *Engine) Pause() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current == nil || e.paused {
		return nil
	}
	if err := suspend(e.current.cmd.Process); err != nil {
		return fmt.Errorf("suspend espeak-ng: %w", err)
	}
	p := e.current
	if p.deadline.Stop() {
		p.budget -= time.Since(p.resumedAt)
	} else {
		p.budget = 0
	}
	e.paused = true
	return nil
}

// Resume continues a stopped process with SIGCONT.
func (e *Engine) Resume() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current == nil || !e.paused {
		return nil
	}
	if err := resume(e.current.cmd.Process); err != nil {
		return fmt.Errorf("resume espeak-ng: %w", err)
	}
	e.paused = false
	e.armLocked(e.current)
	return nil
}

// armLocked starts p's deadline with the playing time it has left.
func (e *Engine) armLocked(p *process) {
	if p.budget <= 0 {
		p.budget = time.Millisecond
	}
	p.resumedAt = time.Now()
	if p.deadline == nil {
		p.deadline = time.AfterFunc(p.budget, func() { e.expire(p) })
		return
	}
	p.deadline.Reset(p.budget)
}

func (e *Engine) expire(p *process) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if p.cancelled || e.current != p || e.paused {
		return
	}
	e.logger.Warn("Utterance timed out", "pid", p.cmd.Process.Pid, "timeout", e.config.Timeout)
	p.timedOut = true
	p.cancel()
}

// Cancel kills the running process. Its waiter reports ErrInterrupted.
func (e *Engine) Cancel() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current == nil {
		return
	}
	e.current.cancelled = true
	e.current.cancel()
	e.current = nil
	e.paused = false
}

// Voices lists installed voices. The list is read once and cached; an
// engine whose binary is missing has no voices.
func (e *Engine) Voices() []tts.Voice {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.voices != nil {
		return e.voices
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	out, err := exec.CommandContext(ctx, e.config.BinaryPath, "--voices").Output()
	if err != nil {
		e.logger.Warn("Could not list voices", "err", err)
		return nil
	}
	e.voices = ParseVoices(out)
	return e.voices
}

// Args maps utterance parameters onto espeak-ng flags.
func Args(u tts.Utterance) []string {
	rate := u.Rate
	if rate <= 0 {
		rate = 1
	}
	args := []string{
		"-s", strconv.Itoa(clamp(baseWordsPerMinute*rate, 80, 450)),
		"-p", strconv.Itoa(clamp(50*u.Pitch, 0, 99)),
		"-a", strconv.Itoa(clamp(100*u.Volume, 0, 200)),
	}
	if u.Voice.ID != "" {
		args = append(args, "-v", u.Voice.ID)
	}
	return args
}

func clamp(v, lo, hi float64) int {
	return int(math.Round(math.Max(lo, math.Min(hi, v))))
}

// ParseVoices reads the table printed by `espeak-ng --voices`:
//
//	Pty Language       Age/Gender VoiceName          File          Other Languages
//	 5  sw              --/M      Swahili            bnt/sw
func ParseVoices(out []byte) []tts.Voice {
	voices := []tts.Voice{}
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 4 || fields[0] == "Pty" {
			continue
		}
		if _, err := strconv.Atoi(fields[0]); err != nil {
			continue
		}
		voices = append(voices, tts.Voice{
			ID:     fields[1],
			Name:   strings.ReplaceAll(fields[3], "_", " "),
			Locale: fields[1],
		})
	}
	return voices
}
