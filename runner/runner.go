package runner

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Reverse-Call-Center/voice-playbook/dialogue"
	"github.com/Reverse-Call-Center/voice-playbook/dtmf"
	"github.com/Reverse-Call-Center/voice-playbook/followup"
	"github.com/Reverse-Call-Center/voice-playbook/interrupt"
	"github.com/Reverse-Call-Center/voice-playbook/metrics"
	"github.com/Reverse-Call-Center/voice-playbook/playbook"
	"github.com/Reverse-Call-Center/voice-playbook/tools"
	"github.com/Reverse-Call-Center/voice-playbook/types"
)

// SpeakOptions tune one outbound utterance.
type SpeakOptions struct {
	Streaming     bool
	Interruptible bool
}

// CallSurface is the media side of a call: speech synthesis, file playback
// and call control. Speak and Play start playback and return; the surface
// delivers exactly one EventPlaybackEnd per accepted segment, whether it
// played out, was interrupted, or was cancelled while still queued.
type CallSurface interface {
	Speak(ctx context.Context, text string, opts SpeakOptions) error
	Play(ctx context.Context, file string) error
	Interrupt(graceful bool)
	Transfer(ctx context.Context, target string) error
	Hangup(ctx context.Context) error
}

// HandlerFactory builds the dialogue handler for a call. The variable map is
// the session's live variable store; the handler and the runner share it on
// the call's goroutine.
type HandlerFactory func(vars map[string]string) dialogue.Handler

const eventQueueSize = 64

// Runner executes a playbook for one call. All session state lives on the
// Run goroutine; the outside world only ever touches the event channel.
type Runner struct {
	pb      *playbook.Playbook
	info    types.CallInfo
	surface CallSurface
	handler dialogue.Handler
	invoker *tools.Invoker
	logger  *slog.Logger

	events chan types.SessionEvent

	vars       map[string]string
	scene      *playbook.Scene
	state      types.CallState
	transcript []types.TranscriptEntry

	pending       int           // playback segments issued but not yet ended
	interruptible bool          // policy of the playback in flight
	nextWait      time.Duration // per-turn wait-input override

	collection   *dtmf.Collection
	collectGen   uint64
	collectTimer *time.Timer

	followup   *followup.Timer
	interrupts *interrupt.Controller

	terminated bool
	endTime    time.Time
}

type Option func(*Runner)

func WithInvoker(inv *tools.Invoker) Option {
	return func(r *Runner) { r.invoker = inv }
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) { r.logger = logger }
}

func New(pb *playbook.Playbook, info types.CallInfo, surface CallSurface, newHandler HandlerFactory, opts ...Option) *Runner {
	r := &Runner{
		pb:      pb,
		info:    info,
		surface: surface,
		logger:  slog.Default(),
		events:  make(chan types.SessionEvent, eventQueueSize),
		scene:   pb.EntryScene(),
		state:   types.StateConnecting,
		vars: map[string]string{
			"call_id":   info.ID,
			"caller_id": info.CallerID,
			"callee":    info.Callee,
		},
		interrupts: interrupt.NewController(pb.Config.Interruption),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger != nil {
		r.logger = r.logger.With("call_id", info.ID)
	}
	if r.invoker == nil {
		r.invoker = tools.NewInvoker(r.logger)
	}
	r.followup = followup.NewTimer(pb.Config.Followup, r.Deliver)
	r.handler = newHandler(r.vars)
	return r
}

// Deliver queues an inbound event. Safe from any goroutine; when the call is
// so far behind that the queue is full the event is dropped rather than
// blocking the media path.
func (r *Runner) Deliver(ev types.SessionEvent) {
	select {
	case r.events <- ev:
	default:
		r.logger.Warn("event queue full, dropping event", "kind", ev.Kind.String())
	}
}

// Vars exposes the session variable store for read-only inspection.
func (r *Runner) Vars() map[string]string { return r.vars }

func (r *Runner) State() types.CallState { return r.state }

// Report assembles the end-of-call summary. Call after Run returns.
func (r *Runner) Report() types.CallReport {
	end := r.endTime
	if end.IsZero() {
		end = time.Now()
	}
	return types.CallReport{
		CallID:     r.info.ID,
		CallerID:   r.info.CallerID,
		Callee:     r.info.Callee,
		StartTime:  r.info.StartTime,
		EndTime:    end,
		FinalState: r.state.String(),
		Variables:  r.vars,
		Transcript: r.transcript,
	}
}

// Run drives the call until hangup, transfer or context cancellation.
func (r *Runner) Run(ctx context.Context) error {
	defer func() {
		r.endTime = time.Now()
		r.followup.Stop()
		r.stopCollectTimer()
	}()

	if s, ok := r.handler.(interface{ SetCommandSink(dialogue.CommandSink) }); ok {
		s.SetCommandSink(func(cmd types.Command) {
			r.execute(ctx, []types.Command{cmd})
		})
	}

	r.state = types.StateActive
	commands, err := r.handler.OnStart(ctx)
	if err != nil {
		return fmt.Errorf("handler start: %w", err)
	}
	r.execute(ctx, commands)

	for !r.terminated {
		select {
		case <-ctx.Done():
			r.state = types.StateHangup
			r.surface.Hangup(context.WithoutCancel(ctx))
			return ctx.Err()
		case ev := <-r.events:
			r.handleEvent(ctx, ev)
		}
	}
	return nil
}

func (r *Runner) handleEvent(ctx context.Context, ev types.SessionEvent) {
	r.interrupts.Observe(ev)

	switch ev.Kind {
	case types.EventHangup:
		r.logger.Info("caller hung up")
		r.state = types.StateHangup
		r.terminated = true
		return

	case types.EventFollowupFired:
		r.onFollowupFired(ctx, ev)
		return

	case types.EventCollectTick:
		r.onCollectTick(ctx, ev)
		return

	case types.EventDigit:
		r.onDigit(ctx, ev)
		return

	case types.EventPlaybackEnd:
		// One end per queued segment; the utterance is over only when the
		// whole chain has drained.
		if r.pending > 0 {
			r.pending--
		}
		if r.pending == 0 && !r.collecting() {
			r.armFollowup()
		}
		return
	}

	// A collection that cannot be interrupted swallows speech events; only
	// the keypad and hangup get through.
	if r.collecting() && !r.collection.Interruptible() {
		return
	}

	switch ev.Kind {
	case types.EventVoiceStart, types.EventVoiceStop, types.EventPartialTranscript:
		r.maybeInterrupt(ev)

	case types.EventFinalTranscript:
		r.maybeInterrupt(ev)
		if strings.TrimSpace(ev.Text) == "" {
			return
		}
		r.transcript = append(r.transcript, types.TranscriptEntry{Role: "caller", Text: ev.Text, Time: ev.Timestamp})
		r.followup.ResetCount()
		r.followup.Stop()
		r.forward(ctx, ev)
		r.rearmIfIdle()

	case types.EventSilence, types.EventToolResult:
		r.forward(ctx, ev)
	}
}

func (r *Runner) maybeInterrupt(ev types.SessionEvent) {
	if r.pending == 0 || !r.interruptible {
		return
	}
	if r.interrupts.ShouldInterrupt(ev, true, time.Now()) {
		r.logger.Debug("interrupting playback", "trigger", ev.Kind.String())
		metrics.InterruptionsTotal.Inc()
		r.surface.Interrupt(true)
		// Cancelled segments still report their ends; until they drain,
		// don't interrupt again.
		r.interruptible = false
	}
}

// forward hands an event to the dialogue handler and executes what it
// returns.
func (r *Runner) forward(ctx context.Context, ev types.SessionEvent) {
	commands, err := r.handler.OnEvent(ctx, ev)
	if err != nil {
		r.logger.Error("handler failed", "event", ev.Kind.String(), "error", err)
		return
	}
	r.execute(ctx, commands)
}

func (r *Runner) execute(ctx context.Context, commands []types.Command) {
	for _, cmd := range commands {
		if r.terminated {
			return
		}
		r.executeOne(ctx, cmd)
	}
}

func (r *Runner) executeOne(ctx context.Context, cmd types.Command) {
	metrics.CommandsTotal.WithLabelValues(cmd.Kind.String()).Inc()

	switch cmd.Kind {
	case types.CmdSpeak:
		r.speak(ctx, cmd)

	case types.CmdPlay:
		if err := r.surface.Play(ctx, cmd.File); err != nil {
			r.logger.Error("playback failed", "file", cmd.File, "error", err)
			return
		}
		r.pending++
		r.interruptible = r.defaultInterruptible()

	case types.CmdHangup:
		r.logger.Info("hanging up")
		r.state = types.StateHangup
		r.followup.Stop()
		r.surface.Hangup(ctx)
		r.terminated = true

	case types.CmdTransfer:
		r.logger.Info("transferring call", "target", cmd.Target)
		r.state = types.StateTransferring
		r.followup.Stop()
		if err := r.surface.Transfer(ctx, cmd.Target); err != nil {
			r.logger.Error("transfer failed", "target", cmd.Target, "error", err)
			r.state = types.StateActive
			return
		}
		r.terminated = true

	case types.CmdGoto:
		r.gotoScene(ctx, cmd.SceneID)

	case types.CmdStartCollect:
		r.startCollect(ctx, cmd)

	case types.CmdToolCall:
		r.logger.Info("dispatching tool", "tool", cmd.Tool.Name, "url", cmd.Tool.URL)
		r.invoker.Dispatch(ctx, cmd.Tool, r.Deliver)

	case types.CmdInterrupt:
		r.surface.Interrupt(cmd.Graceful)
		r.interruptible = false
	}
}

func (r *Runner) speak(ctx context.Context, cmd types.Command) {
	interruptible := r.defaultInterruptible()
	if cmd.AllowInterrupt != nil {
		interruptible = *cmd.AllowInterrupt
	}
	opts := SpeakOptions{Streaming: cmd.Streaming, Interruptible: interruptible}
	if err := r.surface.Speak(ctx, cmd.Text, opts); err != nil {
		r.logger.Error("speak failed", "error", err)
		return
	}
	r.transcript = append(r.transcript, types.TranscriptEntry{Role: "agent", Text: cmd.Text, Time: time.Now()})
	r.pending++
	r.interruptible = interruptible
	if cmd.WaitInputTimeout > 0 {
		r.nextWait = cmd.WaitInputTimeout
	}
}

func (r *Runner) defaultInterruptible() bool {
	return r.pb.Config.Interruption.Strategy != playbook.InterruptNone
}

// armFollowup schedules the silence re-engagement, honoring a per-turn
// wait-input override once.
func (r *Runner) armFollowup() {
	wait := r.nextWait
	r.nextWait = 0
	r.followup.Arm(wait)
}

// rearmIfIdle restarts the silence timer after a caller turn that produced no
// audio. With audio in flight the chain's last EventPlaybackEnd arms it
// instead.
func (r *Runner) rearmIfIdle() {
	if r.terminated || r.collecting() || r.pending > 0 {
		return
	}
	r.armFollowup()
}

func (r *Runner) onFollowupFired(ctx context.Context, ev types.SessionEvent) {
	if r.collecting() {
		return
	}
	if !r.followup.Fired(ev.Gen) {
		return
	}
	r.logger.Debug("follow-up fired")
	r.forward(ctx, types.Silence())
	r.rearmIfIdle()
}

// gotoScene validates and performs a scene transition. An unknown scene
// leaves the current scene active and reports back to the handler.
func (r *Runner) gotoScene(ctx context.Context, id string) {
	scene, ok := r.pb.Scene(id)
	if !ok {
		r.logger.Warn("scene not found", "scene", id)
		r.forward(ctx, types.SceneNotFound(id))
		return
	}

	r.logger.Info("entering scene", "scene", id)
	r.scene = scene
	r.followup.ResetCount()
	r.followup.Stop()

	if scene.Play != "" {
		if err := r.surface.Play(ctx, scene.Play); err != nil {
			r.logger.Error("scene playback failed", "file", scene.Play, "error", err)
		} else {
			r.pending++
			r.interruptible = r.defaultInterruptible()
		}
	}
	r.forward(ctx, types.SceneEntered(id))
}

func (r *Runner) collecting() bool {
	return r.collection != nil && r.collection.Active()
}

func (r *Runner) startCollect(ctx context.Context, cmd types.Command) {
	tmpl, ok := r.pb.Collector(cmd.Collector)
	if !ok {
		reason := fmt.Sprintf("unknown collector %q, valid collectors: %s",
			cmd.Collector, strings.Join(r.pb.CollectorNames(), ", "))
		r.logger.Warn("collection rejected", "collector", cmd.Collector)
		r.forward(ctx, types.CollectionFailed(cmd.VarName, reason))
		return
	}

	r.logger.Info("starting collection", "collector", cmd.Collector, "var", cmd.VarName)
	r.followup.Stop()
	r.state = types.StateCollecting
	r.collection = dtmf.Start(cmd.Collector, cmd.VarName, tmpl, time.Now())
	r.armCollectTimer()

	if cmd.Prompt != "" {
		r.speak(ctx, types.Speak(dialogue.Render(cmd.Prompt, r.vars)))
	}
}

func (r *Runner) onDigit(ctx context.Context, ev types.SessionEvent) {
	// A keypad press during playback cancels it regardless of strategy.
	if r.pending > 0 {
		r.surface.Interrupt(true)
		r.interruptible = false
	}

	if r.collecting() {
		result := r.collection.Digit(ev.Digit, ev.Timestamp)
		r.finishCollectStep(ctx, result)
		return
	}

	r.followup.ResetCount()
	r.followup.Stop()

	if r.scene != nil {
		if binding, ok := r.scene.Bindings[ev.Digit]; ok {
			r.executeBinding(ctx, binding)
			r.rearmIfIdle()
			return
		}
	}
	r.forward(ctx, ev)
	r.rearmIfIdle()
}

func (r *Runner) executeBinding(ctx context.Context, b playbook.Binding) {
	switch b.Action {
	case playbook.BindGoto:
		r.gotoScene(ctx, b.Target)
	case playbook.BindHangup:
		r.executeOne(ctx, types.HangupCall())
	case playbook.BindTransfer:
		r.executeOne(ctx, types.Transfer(b.Target))
	case playbook.BindCollect:
		r.startCollect(ctx, types.StartCollect(b.Target, b.VarName, ""))
	}
}

func (r *Runner) onCollectTick(ctx context.Context, ev types.SessionEvent) {
	if !r.collecting() || ev.Gen != r.collectGen {
		return
	}
	result := r.collection.Tick(time.Now())
	r.finishCollectStep(ctx, result)
}

func (r *Runner) finishCollectStep(ctx context.Context, result dtmf.Result) {
	switch result.Outcome {
	case dtmf.OutcomeNone:
		r.armCollectTimer()

	case dtmf.OutcomeRetry:
		r.logger.Info("collection retry", "collector", r.collection.Name, "attempt", r.collection.RetryCount())
		metrics.CollectionsTotal.WithLabelValues("retry").Inc()
		r.armCollectTimer()
		r.speak(ctx, types.Speak(result.ErrorPrompt))

	case dtmf.OutcomeCompleted:
		collected := r.collection
		r.logger.Info("collection completed", "collector", collected.Name, "var", collected.VarName)
		metrics.CollectionsTotal.WithLabelValues("completed").Inc()
		r.endCollection()
		r.vars[collected.VarName] = result.Value
		r.followup.ResetCount()
		r.forward(ctx, types.CollectionSucceeded(collected.VarName, result.Value))
		r.rearmIfIdle()

	case dtmf.OutcomeFailed:
		collected := r.collection
		r.logger.Warn("collection failed", "collector", collected.Name, "reason", result.Reason)
		metrics.CollectionsTotal.WithLabelValues("failed").Inc()
		r.endCollection()
		r.forward(ctx, types.CollectionFailed(collected.VarName, result.Reason))
		r.rearmIfIdle()
	}
}

func (r *Runner) endCollection() {
	r.stopCollectTimer()
	r.collection = nil
	r.state = types.StateActive
}

func (r *Runner) armCollectTimer() {
	r.stopCollectTimer()
	r.collectGen++
	gen := r.collectGen
	delay := time.Until(r.collection.NextDeadline())
	if delay < 0 {
		delay = 0
	}
	r.collectTimer = time.AfterFunc(delay, func() {
		r.Deliver(types.SessionEvent{Kind: types.EventCollectTick, Gen: gen, Timestamp: time.Now()})
	})
}

func (r *Runner) stopCollectTimer() {
	if r.collectTimer != nil {
		r.collectTimer.Stop()
		r.collectTimer = nil
	}
}
