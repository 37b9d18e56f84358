package types

import "time"

type CommandKind int

const (
	CmdSpeak CommandKind = iota
	CmdHangup
	CmdTransfer
	CmdPlay
	CmdGoto
	CmdStartCollect
	CmdToolCall
	CmdInterrupt
)

func (k CommandKind) String() string {
	switch k {
	case CmdSpeak:
		return "speak"
	case CmdHangup:
		return "hangup"
	case CmdTransfer:
		return "transfer"
	case CmdPlay:
		return "play"
	case CmdGoto:
		return "goto"
	case CmdStartCollect:
		return "collect"
	case CmdToolCall:
		return "tool_call"
	case CmdInterrupt:
		return "interrupt"
	default:
		return "unknown"
	}
}

// ToolRequest describes an external HTTP tool call requested by the handler.
type ToolRequest struct {
	Name   string
	URL    string
	Method string
	Body   string
}

// Command is an outbound action for the call surface. Commands are consumed
// exactly once by the runner and never persisted.
type Command struct {
	Kind CommandKind

	// Speak
	Text             string
	Streaming        bool
	AllowInterrupt   *bool // nil means use the call's current policy
	WaitInputTimeout time.Duration

	Target    string // Transfer
	File      string // Play
	SceneID   string // Goto
	Collector string // StartCollect
	VarName   string
	Prompt    string

	Tool ToolRequest

	Graceful bool // Interrupt
}

func Speak(text string) Command {
	return Command{Kind: CmdSpeak, Text: text}
}

func HangupCall() Command {
	return Command{Kind: CmdHangup}
}

func Transfer(target string) Command {
	return Command{Kind: CmdTransfer, Target: target}
}

func Play(file string) Command {
	return Command{Kind: CmdPlay, File: file}
}

func GotoScene(id string) Command {
	return Command{Kind: CmdGoto, SceneID: id}
}

func StartCollect(collector, varName, prompt string) Command {
	return Command{Kind: CmdStartCollect, Collector: collector, VarName: varName, Prompt: prompt}
}

func ToolCall(req ToolRequest) Command {
	return Command{Kind: CmdToolCall, Tool: req}
}

func Interrupt(graceful bool) Command {
	return Command{Kind: CmdInterrupt, Graceful: graceful}
}
