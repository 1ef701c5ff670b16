package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/mossy-p/peerconnect/internal/models"
	"github.com/mossy-p/peerconnect/internal/session"
)

const helpText = `Commands:
  /react <emoji>  send a reaction (👏 👍 ❤️ 😂 😮 🎉)
  /camera         toggle the camera
  /mic            toggle the microphone
  /state          print the call state
  /leave          leave the room and exit
Any other line is sent as a chat message.`

// parseCommand splits "/name arg" input. Lines without a leading slash are
// chat and yield an empty name.
func parseCommand(line string) (name, arg string) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "/") {
		return "", line
	}
	name, arg, _ = strings.Cut(line[1:], " ")
	return strings.ToLower(name), strings.TrimSpace(arg)
}

// handleLine runs one line of user input. It reports whether the client
// should exit.
func handleLine(o *session.Orchestrator, line string, out io.Writer) (bool, error) {
	name, arg := parseCommand(line)

	switch name {
	case "":
		_, err := o.SendMessage(arg)
		return false, err

	case "react":
		_, err := o.SendReaction(models.ReactionEmoji(arg))
		return false, err

	case "camera":
		enabled, err := o.ToggleCamera()
		if err == nil {
			fmt.Fprintf(out, "camera %s\n", onOff(enabled))
		}
		return false, err

	case "mic":
		muted, err := o.ToggleMicrophone()
		if err == nil {
			fmt.Fprintf(out, "microphone %s\n", onOff(!muted))
		}
		return false, err

	case "state":
		data, err := json.MarshalIndent(o.Snapshot(), "", "  ")
		if err != nil {
			return false, err
		}
		fmt.Fprintln(out, string(data))
		return false, nil

	case "leave", "quit", "exit":
		return true, o.LeaveRoom()

	case "help":
		fmt.Fprintln(out, helpText)
		return false, nil

	default:
		return false, fmt.Errorf("unknown command /%s", name)
	}
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}

// printer reports call progress. It runs on the orchestrator's event loop.
type printer struct {
	mu        sync.Mutex
	out       io.Writer
	state     session.State
	seenChat  map[string]bool
	seenReact map[string]bool
	remoteCam bool
	remoteMic bool
}

func newPrinter(out io.Writer) *printer {
	return &printer{
		out:       out,
		seenChat:  make(map[string]bool),
		seenReact: make(map[string]bool),
		remoteCam: true,
	}
}

func (p *printer) onChange(s session.Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if s.State != p.state {
		fmt.Fprintf(p.out, "* %s\n", s.State)
		p.state = s.State
	}

	for _, m := range s.Messages {
		if p.seenChat[m.ID] {
			continue
		}
		p.seenChat[m.ID] = true
		who := m.SenderID
		if who == s.SelfID {
			who = "me"
		}
		fmt.Fprintf(p.out, "[%s] %s\n", who, m.Content)
	}

	for _, r := range s.Reactions {
		if p.seenReact[r.ID] {
			continue
		}
		p.seenReact[r.ID] = true
		if r.SenderID != s.SelfID {
			fmt.Fprintf(p.out, "peer reacted %s\n", r.Emoji)
		}
	}

	if s.IsRemoteVideoEnabled != p.remoteCam {
		p.remoteCam = s.IsRemoteVideoEnabled
		fmt.Fprintf(p.out, "peer camera %s\n", onOff(p.remoteCam))
	}
	if s.IsRemoteMicMuted != p.remoteMic {
		p.remoteMic = s.IsRemoteMicMuted
		fmt.Fprintf(p.out, "peer microphone %s\n", onOff(!p.remoteMic))
	}
}
