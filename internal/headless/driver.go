package headless

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/quarryhq/quarry/internal/events"
	"github.com/quarryhq/quarry/internal/observability"
)

// promptQueueDepth bounds how many stdin prompts buffer while a run is
// in flight. Stdin reads block past this.
const promptQueueDepth = 64

// Session is the slice of the agent the driver needs.
type Session interface {
	SendStream(ctx context.Context, text string) *events.Stream
}

// Config wires one driver instance.
type Config struct {
	Session   Session
	SessionID string // assigned a uuid when empty
	Profile   string

	Manifest         any
	WorkingDir       string
	WorkspaceContext string

	Out    io.Writer // NDJSON sink, normally stdout
	In     io.Reader // prompt source, normally stdin; nil disables
	Logger *slog.Logger

	// Interactive prints a usage hint to the logger when stdin is a
	// terminal.
	Interactive bool
}

// Driver processes prompts strictly in order: the initial prompt
// first, then stdin lines as they arrive.
type Driver struct {
	cfg Config
	enc *json.Encoder
}

func New(cfg Config) *Driver {
	if cfg.SessionID == "" {
		cfg.SessionID = uuid.NewString()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Driver{cfg: cfg, enc: json.NewEncoder(cfg.Out)}
}

func (d *Driver) SessionID() string { return d.cfg.SessionID }

// Run emits the session envelope, then drains the prompt queue until
// stdin closes. Returns nil on a clean drain, the context error on
// cancellation.
func (d *Driver) Run(ctx context.Context, initialPrompt string) error {
	if err := d.emit(SessionEnvelope{
		Type:             TypeSession,
		SessionID:        d.cfg.SessionID,
		Profile:          d.cfg.Profile,
		Manifest:         d.cfg.Manifest,
		WorkingDir:       d.cfg.WorkingDir,
		WorkspaceContext: nullableString(d.cfg.WorkspaceContext),
		Version:          observability.Version,
	}); err != nil {
		return err
	}

	if d.cfg.Interactive {
		d.cfg.Logger.Info("reading prompts from stdin, one per line; EOF ends the session")
	}

	prompts := d.readPrompts(ctx)

	if p := strings.TrimSpace(initialPrompt); p != "" {
		if err := d.runOne(ctx, p); err != nil {
			return err
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case p, ok := <-prompts:
			if !ok {
				return nil
			}
			if err := d.runOne(ctx, p); err != nil {
				return err
			}
		}
	}
}

// readPrompts feeds non-empty stdin lines into a bounded channel. The
// channel closes on EOF, which ends the session once drained.
func (d *Driver) readPrompts(ctx context.Context) <-chan string {
	ch := make(chan string, promptQueueDepth)
	if d.cfg.In == nil {
		close(ch)
		return ch
	}

	go func() {
		defer close(ch)
		scanner := bufio.NewScanner(d.cfg.In)
		scanner.Buffer(make([]byte, 64*1024), 1<<20)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			select {
			case ch <- line:
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			d.cfg.Logger.Warn("stdin read failed", "error", err)
		}
	}()
	return ch
}

func (d *Driver) runOne(ctx context.Context, prompt string) error {
	runID := uuid.NewString()

	if err := d.emit(UserInputEnvelope{
		Type:      TypeUserInput,
		SessionID: d.cfg.SessionID,
		Profile:   d.cfg.Profile,
		RunID:     runID,
		Content:   prompt,
	}); err != nil {
		return err
	}

	stream := d.cfg.Session.SendStream(ctx, prompt)
	for {
		ev, err := stream.Next(ctx)
		if errors.Is(err, events.ErrStreamDone) {
			break
		}
		if err != nil {
			if ctx.Err() != nil {
				stream.Cancel()
				return ctx.Err()
			}
			if emitErr := d.emit(ErrorEnvelope{
				Type:      TypeError,
				SessionID: d.cfg.SessionID,
				Profile:   d.cfg.Profile,
				RunID:     runID,
				Message:   err.Error(),
			}); emitErr != nil {
				return emitErr
			}
			break
		}
		if err := d.emit(AgentEventEnvelope{
			Type:      TypeAgentEvent,
			SessionID: d.cfg.SessionID,
			Profile:   d.cfg.Profile,
			RunID:     runID,
			Event:     ev,
		}); err != nil {
			return err
		}
	}

	return d.emit(RunCompleteEnvelope{
		Type:      TypeRunComplete,
		SessionID: d.cfg.SessionID,
		Profile:   d.cfg.Profile,
		RunID:     runID,
	})
}

func (d *Driver) emit(env any) error {
	return d.enc.Encode(env)
}

// nullableString maps an empty workspace context to JSON null.
func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
