package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/emiago/diago"
	"github.com/emiago/sipgo"
	"github.com/google/uuid"

	"github.com/Reverse-Call-Center/voice-playbook/audio"
	"github.com/Reverse-Call-Center/voice-playbook/config"
	"github.com/Reverse-Call-Center/voice-playbook/dialogue"
	"github.com/Reverse-Call-Center/voice-playbook/metrics"
	"github.com/Reverse-Call-Center/voice-playbook/playbook"
	"github.com/Reverse-Call-Center/voice-playbook/posthook"
	"github.com/Reverse-Call-Center/voice-playbook/runner"
	"github.com/Reverse-Call-Center/voice-playbook/session"
	"github.com/Reverse-Call-Center/voice-playbook/types"
)

// SIPServer answers inbound calls and runs one playbook session per call.
type SIPServer struct {
	cfg      *config.Config
	pb       *playbook.Playbook
	provider dialogue.Provider
	registry *session.Registry
	notifier *posthook.Notifier
	hub      *Hub
	tts      audio.Synthesizer
	logger   *slog.Logger
}

func NewSIPServer(cfg *config.Config, pb *playbook.Playbook, provider dialogue.Provider,
	registry *session.Registry, notifier *posthook.Notifier, hub *Hub, logger *slog.Logger) *SIPServer {

	s := &SIPServer{
		cfg:      cfg,
		pb:       pb,
		provider: provider,
		registry: registry,
		notifier: notifier,
		hub:      hub,
		logger:   logger,
	}
	if len(pb.Config.TTS) > 0 {
		tts, err := audio.NewHTTPSynthesizer(pb.Config.TTS)
		if err != nil {
			logger.Warn("tts disabled", "error", err)
		} else {
			s.tts = tts
		}
	}
	return s
}

// Start serves SIP until the context is canceled.
func (s *SIPServer) Start(ctx context.Context) error {
	transport := diago.Transport{
		Transport: s.cfg.SIP.Protocol,
		BindHost:  s.cfg.SIP.ListenAddress,
		BindPort:  s.cfg.SIP.Port,
	}

	ua, err := sipgo.NewUA()
	if err != nil {
		return err
	}

	dg := diago.NewDiago(ua, diago.WithTransport(transport))
	s.logger.Info("sip server listening",
		"protocol", s.cfg.SIP.Protocol,
		"address", s.cfg.SIP.ListenAddress,
		"port", s.cfg.SIP.Port)

	return dg.Serve(ctx, func(inDialog *diago.DialogServerSession) {
		s.handleIncomingCall(ctx, inDialog)
	})
}

func (s *SIPServer) handleIncomingCall(parentCtx context.Context, inDialog *diago.DialogServerSession) {
	callCtx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	info := types.CallInfo{
		ID:        uuid.NewString(),
		CallerID:  extractCallerPhone(inDialog.InviteRequest.Headers()),
		Callee:    extractCallee(inDialog),
		StartTime: time.Now(),
	}

	logger := s.logger.With("call_id", info.ID)
	if s.cfg.Log.PhoneNumbers {
		logger.Info("new call", "caller", info.CallerID, "callee", info.Callee)
	} else {
		logger.Info("new call")
	}

	inDialog.Trying()
	if err := inDialog.Answer(); err != nil {
		logger.Error("answer failed", "error", err)
		return
	}

	var r *runner.Runner
	player := audio.NewPlayer(inDialog, s.tts, s.cfg.Sounds,
		func(ev types.SessionEvent) { r.Deliver(ev) }, logger)
	r = runner.New(s.pb, info, player, s.newHandler, runner.WithLogger(logger))

	call := &session.Call{Info: info, Runner: r}
	s.registry.Register(call)
	s.hub.CallStarted(call)
	defer func() {
		s.registry.Unregister(info.ID)
		s.hub.CallEnded(call)
	}()

	go player.ListenDTMF(callCtx)

	if err := r.Run(callCtx); err != nil && callCtx.Err() == nil {
		logger.Error("session ended with error", "error", err)
	}
	cancel()

	report := r.Report()
	metrics.CallsTotal.WithLabelValues(report.FinalState).Inc()
	metrics.CallDuration.Observe(report.EndTime.Sub(report.StartTime).Seconds())
	if s.cfg.Log.PhoneNumbers {
		logger.Info("call ended", "caller", info.CallerID, "state", report.FinalState)
	} else {
		logger.Info("call ended", "state", report.FinalState)
	}

	// The call context is gone; the webhook gets its own deadline.
	notifyCtx, notifyCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer notifyCancel()
	if err := s.notifier.Notify(notifyCtx, report); err != nil {
		logger.Error("posthook failed", "error", err)
	}
}

// newHandler picks the dialogue handler for a call: LLM-driven when the
// playbook configures a model, scripted scene prompts otherwise.
func (s *SIPServer) newHandler(vars map[string]string) dialogue.Handler {
	if s.pb.Config.LLM != nil {
		return dialogue.NewLLMHandler(s.pb, s.provider, vars, s.logger)
	}
	return dialogue.NewScriptedHandler(s.pb, vars)
}
