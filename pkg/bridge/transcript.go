package bridge

import (
	"fmt"
	"strings"
	"sync"

	"github.com/voxbridge/voxbridge/pkg/realtime"
)

// TranscriptTurn is one completed AI response cycle.
type TranscriptTurn struct {
	AIText    string
	HumanText string
}

// transcriptLog is the append-only record of completed turns. Appends happen
// only on the AI-receive task; reads may come from other goroutines after the
// session ends, so access stays guarded.
type transcriptLog struct {
	mu    sync.Mutex
	turns []TranscriptTurn
}

func (l *transcriptLog) append(turn TranscriptTurn) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.turns = append(l.turns, turn)
}

func (l *transcriptLog) snapshot() []TranscriptTurn {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]TranscriptTurn, len(l.turns))
	copy(out, l.turns)
	return out
}

func (l *transcriptLog) concatenated() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	var b strings.Builder
	for _, turn := range l.turns {
		fmt.Fprintf(&b, "AI: %s\nHuman: %s\n", turn.AIText, turn.HumanText)
	}
	return b.String()
}

// turnAccumulator gathers the current turn's transcript fragments per speaker.
// Owned exclusively by the AI-receive task; no locking needed.
type turnAccumulator struct {
	ai    strings.Builder
	human strings.Builder
}

func (a *turnAccumulator) append(frag realtime.TranscriptFragment) {
	var b *strings.Builder
	switch frag.Speaker {
	case realtime.SpeakerAI:
		b = &a.ai
	case realtime.SpeakerHuman:
		b = &a.human
	default:
		return
	}
	if frag.Text == "" {
		return
	}
	// Streaming deltas carry their own spacing and must concatenate verbatim.
	// Whole-utterance fragments (final with text) need a separator from any
	// earlier utterance in the same turn, unless one side already provides it.
	if frag.Final && b.Len() > 0 &&
		!strings.HasPrefix(frag.Text, " ") && !strings.HasSuffix(b.String(), " ") {
		b.WriteByte(' ')
	}
	b.WriteString(frag.Text)
}

func (a *turnAccumulator) empty() bool {
	return a.ai.Len() == 0 && a.human.Len() == 0
}

// flush drains the accumulator into a turn record.
func (a *turnAccumulator) flush() TranscriptTurn {
	turn := TranscriptTurn{AIText: a.ai.String(), HumanText: a.human.String()}
	a.ai.Reset()
	a.human.Reset()
	return turn
}

func (a *turnAccumulator) text() string {
	return a.ai.String() + " " + a.human.String()
}
