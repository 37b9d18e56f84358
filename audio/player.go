package audio

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/emiago/diago"
	"github.com/emiago/sipgo/sip"

	"github.com/Reverse-Call-Center/voice-playbook/runner"
	"github.com/Reverse-Call-Center/voice-playbook/types"
)

// Synthesizer turns text into a playable audio stream.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (io.ReadCloser, string, error)
}

// Player is the SIP media surface for one call. Playback is asynchronous and
// serialized: each Speak or Play queues behind the previous one, and the
// runner is told through EventPlaybackEnd when a segment finishes. Interrupt
// cancels everything queued or playing.
type Player struct {
	dialog    *diago.DialogServerSession
	tts       Synthesizer
	soundsDir string
	deliver   func(types.SessionEvent)
	logger    *slog.Logger

	mu   sync.Mutex
	tail chan struct{} // completion of the most recently queued segment
	stop chan struct{} // closed on interrupt, replaced for the next segment
}

func NewPlayer(dialog *diago.DialogServerSession, tts Synthesizer, soundsDir string, deliver func(types.SessionEvent), logger *slog.Logger) *Player {
	return &Player{
		dialog:    dialog,
		tts:       tts,
		soundsDir: soundsDir,
		deliver:   deliver,
		logger:    logger,
		stop:      make(chan struct{}),
	}
}

func (p *Player) Speak(ctx context.Context, text string, opts runner.SpeakOptions) error {
	if p.tts == nil {
		p.logger.Warn("no synthesizer configured, skipping speech")
		p.deliver(types.PlaybackEnd())
		return nil
	}
	p.enqueue(ctx, func() (io.ReadCloser, string, error) {
		return p.tts.Synthesize(ctx, text)
	})
	return nil
}

func (p *Player) Play(ctx context.Context, file string) error {
	path := filepath.Join(p.soundsDir, file)
	p.enqueue(ctx, func() (io.ReadCloser, string, error) {
		f, err := os.Open(path)
		if err != nil {
			return nil, "", fmt.Errorf("open audio file %s: %w", path, err)
		}
		return f, "audio/wav", nil
	})
	return nil
}

// Interrupt cancels the current and all queued segments. Graceful and hard
// interrupts behave the same at this layer; the distinction is the caller's.
func (p *Player) Interrupt(bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	close(p.stop)
	p.stop = make(chan struct{})
}

func (p *Player) Transfer(ctx context.Context, target string) error {
	var uri sip.Uri
	if err := sip.ParseUri(target, &uri); err != nil {
		return fmt.Errorf("parse transfer target %q: %w", target, err)
	}
	return p.dialog.Refer(ctx, uri)
}

func (p *Player) Hangup(ctx context.Context) error {
	return p.dialog.Hangup(ctx)
}

// enqueue schedules one playback segment behind the in-flight chain.
func (p *Player) enqueue(ctx context.Context, open func() (io.ReadCloser, string, error)) {
	p.mu.Lock()
	prev := p.tail
	done := make(chan struct{})
	p.tail = done
	stop := p.stop
	p.mu.Unlock()

	go func() {
		defer close(done)
		if prev != nil {
			select {
			case <-prev:
			case <-stop:
				p.deliver(types.PlaybackEnd())
				return
			case <-ctx.Done():
				return
			}
		}
		select {
		case <-stop:
			p.deliver(types.PlaybackEnd())
			return
		default:
		}
		p.playSegment(ctx, open, stop)
	}()
}

func (p *Player) playSegment(ctx context.Context, open func() (io.ReadCloser, string, error), stop <-chan struct{}) {
	defer p.deliver(types.PlaybackEnd())

	stream, mimeType, err := open()
	if err != nil {
		p.logger.Error("audio source failed", "error", err)
		return
	}
	defer stream.Close()

	pb, err := p.dialog.PlaybackCreate()
	if err != nil {
		p.logger.Error("playback create failed", "error", err)
		return
	}

	playDone := make(chan error, 1)
	go func() {
		_, err := pb.Play(stream, mimeType)
		playDone <- err
	}()

	select {
	case err := <-playDone:
		if err != nil {
			p.logger.Error("playback failed", "error", err)
		}
	case <-stop:
		// Closing the stream makes the play goroutine unwind.
	case <-ctx.Done():
	}
}

// ListenDTMF forwards keypad presses into the session until the call ends.
// The media stream dying is how the remote hangup surfaces here, so a read
// failure is reported as a hangup event.
func (p *Player) ListenDTMF(ctx context.Context) {
	reader := p.dialog.AudioReaderDTMF()

	err := reader.Listen(func(dtmf rune) error {
		p.logger.Debug("dtmf received", "digit", string(dtmf))
		p.deliver(types.DigitPressed(string(dtmf)))
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			return nil
		}
	}, 10*time.Second)

	if err != nil && ctx.Err() == nil {
		p.logger.Debug("dtmf listener stopped", "error", err)
		p.deliver(types.Hangup())
	}
}
