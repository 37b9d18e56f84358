package types

import "time"

type EventKind int

const (
	EventPartialTranscript EventKind = iota
	EventFinalTranscript
	EventVoiceStart
	EventVoiceStop
	EventSilence
	EventDigit
	EventToolResult
	EventSceneEntered
	EventSceneNotFound
	EventPlaybackEnd
	EventHangup
	EventCollectionResult

	// Internal timer events. The follow-up and collector timers never act on
	// their own: a fire is queued here like any other event so it can be
	// ignored when a superseding event was already processed.
	EventFollowupFired
	EventCollectTick
)

func (k EventKind) String() string {
	switch k {
	case EventPartialTranscript:
		return "partial_transcript"
	case EventFinalTranscript:
		return "final_transcript"
	case EventVoiceStart:
		return "voice_start"
	case EventVoiceStop:
		return "voice_stop"
	case EventSilence:
		return "silence"
	case EventDigit:
		return "digit"
	case EventToolResult:
		return "tool_result"
	case EventSceneEntered:
		return "scene_entered"
	case EventSceneNotFound:
		return "scene_not_found"
	case EventPlaybackEnd:
		return "playback_end"
	case EventHangup:
		return "hangup"
	case EventCollectionResult:
		return "collection_result"
	case EventFollowupFired:
		return "followup_fired"
	case EventCollectTick:
		return "collect_tick"
	default:
		return "unknown"
	}
}

// SessionEvent is a single inbound event for one call. Only the fields
// relevant to Kind are set.
type SessionEvent struct {
	Kind      EventKind
	Text      string // transcripts
	Digit     string
	SceneID   string
	Tool      string // tool name for EventToolResult
	Payload   string // tool response body
	Err       string // tool or collection error detail
	VarName   string
	Value     string
	Success   bool   // EventCollectionResult outcome
	Reason    string // failure reason for the handler
	Gen       uint64 // timer generation, see runner
	Timestamp time.Time
}

func PartialTranscript(text string) SessionEvent {
	return SessionEvent{Kind: EventPartialTranscript, Text: text, Timestamp: time.Now()}
}

func FinalTranscript(text string) SessionEvent {
	return SessionEvent{Kind: EventFinalTranscript, Text: text, Timestamp: time.Now()}
}

func VoiceStart() SessionEvent {
	return SessionEvent{Kind: EventVoiceStart, Timestamp: time.Now()}
}

func VoiceStop() SessionEvent {
	return SessionEvent{Kind: EventVoiceStop, Timestamp: time.Now()}
}

func Silence() SessionEvent {
	return SessionEvent{Kind: EventSilence, Timestamp: time.Now()}
}

func DigitPressed(digit string) SessionEvent {
	return SessionEvent{Kind: EventDigit, Digit: digit, Timestamp: time.Now()}
}

func ToolResult(name, payload, errText string) SessionEvent {
	return SessionEvent{Kind: EventToolResult, Tool: name, Payload: payload, Err: errText, Timestamp: time.Now()}
}

func SceneEntered(id string) SessionEvent {
	return SessionEvent{Kind: EventSceneEntered, SceneID: id, Timestamp: time.Now()}
}

func SceneNotFound(id string) SessionEvent {
	return SessionEvent{Kind: EventSceneNotFound, SceneID: id, Timestamp: time.Now()}
}

func PlaybackEnd() SessionEvent {
	return SessionEvent{Kind: EventPlaybackEnd, Timestamp: time.Now()}
}

func Hangup() SessionEvent {
	return SessionEvent{Kind: EventHangup, Timestamp: time.Now()}
}

func CollectionSucceeded(varName, value string) SessionEvent {
	return SessionEvent{Kind: EventCollectionResult, Success: true, VarName: varName, Value: value, Timestamp: time.Now()}
}

func CollectionFailed(varName, reason string) SessionEvent {
	return SessionEvent{Kind: EventCollectionResult, Success: false, VarName: varName, Reason: reason, Timestamp: time.Now()}
}
