package abc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/orpheus-ai/orpheus/pkg/logging"
	"github.com/orpheus-ai/orpheus/pkg/models"
)

// CommandRunner executes an external converter.
type CommandRunner func(ctx context.Context, name string, args ...string) error

// Converter is an external command turning the .abc file into another
// format. Args may reference {in} and {out}.
type Converter struct {
	Command []string
	Ext     string
}

func (c Converter) enabled() bool { return len(c.Command) > 0 && c.Ext != "" }

// Renderer writes a creation's bundle: the .abc source, a .mid built
// natively, and optional score and audio files from external converters.
type Renderer struct {
	score  Converter
	audio  Converter
	run    CommandRunner
	logger *slog.Logger
}

// RenderOption configures a Renderer.
type RenderOption func(*Renderer)

// WithScoreConverter sets the command producing the score file.
func WithScoreConverter(c Converter) RenderOption {
	return func(r *Renderer) { r.score = c }
}

// WithAudioConverter sets the command producing the audio file.
func WithAudioConverter(c Converter) RenderOption {
	return func(r *Renderer) { r.audio = c }
}

// WithCommandRunner overrides how converters are executed.
func WithCommandRunner(run CommandRunner) RenderOption {
	return func(r *Renderer) {
		if run != nil {
			r.run = run
		}
	}
}

// WithRenderLogger sets the logger.
func WithRenderLogger(logger *slog.Logger) RenderOption {
	return func(r *Renderer) { r.logger = logging.OrDiscard(logger) }
}

// NewRenderer constructs a renderer.
func NewRenderer(opts ...RenderOption) *Renderer {
	r := &Renderer{run: runCommand, logger: logging.Discard()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Render writes dir/baseName.abc and its derived files. The .abc file is
// written even when the notation is invalid, in which case the returned
// bundle is partial and the error describes the problems.
func (r *Renderer) Render(ctx context.Context, content, dir, baseName string) (models.OutputBundle, error) {
	var bundle models.OutputBundle
	if err := RequireContent(content); err != nil {
		return bundle, err
	}
	if baseName == "" {
		return bundle, errors.New("render: base name required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return bundle, fmt.Errorf("render: create dir: %w", err)
	}

	abcPath := filepath.Join(dir, baseName+".abc")
	if err := os.WriteFile(abcPath, []byte(strings.TrimSpace(content)+"\n"), 0o644); err != nil {
		return bundle, fmt.Errorf("render: write abc: %w", err)
	}
	bundle.ContentFile = abcPath

	report := Validate(content)
	for _, w := range report.Warnings {
		r.logger.Debug("abc warning", "file", abcPath, "warning", w)
	}
	if err := report.Err(); err != nil {
		return bundle, fmt.Errorf("render %s: %w", baseName, err)
	}

	midiPath := filepath.Join(dir, baseName+".mid")
	if err := WriteMIDI(midiPath, content); err != nil {
		return bundle, fmt.Errorf("render %s: %w", baseName, err)
	}
	bundle.MIDIFile = midiPath

	var errs []error
	if r.score.enabled() {
		out, err := r.convert(ctx, r.score, abcPath, dir, baseName)
		if err != nil {
			errs = append(errs, fmt.Errorf("score: %w", err))
		}
		bundle.ScoreFile = out
	}
	if r.audio.enabled() {
		out, err := r.convert(ctx, r.audio, abcPath, dir, baseName)
		if err != nil {
			errs = append(errs, fmt.Errorf("audio: %w", err))
		}
		bundle.AudioFile = out
	}
	if err := errors.Join(errs...); err != nil {
		return bundle, fmt.Errorf("render %s: %w", baseName, err)
	}
	return bundle, nil
}

func (r *Renderer) convert(ctx context.Context, c Converter, in, dir, baseName string) (string, error) {
	out := filepath.Join(dir, baseName+"."+strings.TrimPrefix(c.Ext, "."))
	args := expandArgs(c.Command[1:], in, out)
	r.logger.Debug("running converter", "command", c.Command[0], "args", args)
	if err := r.run(ctx, c.Command[0], args...); err != nil {
		return "", err
	}
	if _, err := os.Stat(out); err != nil {
		return "", fmt.Errorf("%s produced no output: %w", c.Command[0], err)
	}
	return out, nil
}

func expandArgs(args []string, in, out string) []string {
	expanded := make([]string, len(args))
	for i, a := range args {
		a = strings.ReplaceAll(a, "{in}", in)
		expanded[i] = strings.ReplaceAll(a, "{out}", out)
	}
	return expanded
}

func runCommand(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(output)))
	}
	return nil
}
