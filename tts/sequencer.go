package tts

// Sequencer holds the ordered utterance queue of one session and hands
// utterances out strictly one at a time.
type Sequencer struct {
	queue  []Utterance
	cursor int
}

// Build replaces the queue with one utterance per chunk. Voice parameters
// are copied from cfg now; changing the configuration later does not touch
// utterances already built.
func (s *Sequencer) Build(session uint64, chunks []string, cfg VoiceConfig) []Utterance {
	queue := make([]Utterance, 0, len(chunks))
	for i, chunk := range chunks {
		queue = append(queue, Utterance{
			Session: session,
			Index:   i,
			Text:    chunk,
			Voice:   cfg.Voice,
			Rate:    cfg.Rate,
			Pitch:   cfg.Pitch,
			Volume:  cfg.EffectiveVolume(),
		})
	}
	s.queue = queue
	s.cursor = 0

	out := make([]Utterance, len(queue))
	copy(out, queue)
	return out
}

// Current returns the utterance at the cursor.
func (s *Sequencer) Current() (Utterance, bool) {
	if s.cursor < 0 || s.cursor >= len(s.queue) {
		return Utterance{}, false
	}
	return s.queue[s.cursor], true
}

// Advance moves past the current utterance and returns the next one, or
// false at the end of the queue. The cursor never moves backwards.
func (s *Sequencer) Advance() (Utterance, bool) {
	if s.cursor < len(s.queue) {
		s.cursor++
	}
	return s.Current()
}

// Recover decides what follows a failed utterance. An interruption with
// utterances remaining skips ahead; anything else ends the session.
func (s *Sequencer) Recover(err error) (Utterance, bool) {
	if !IsInterrupted(err) {
		return Utterance{}, false
	}
	return s.Advance()
}

// Remaining reports whether an utterance follows the current one.
func (s *Sequencer) Remaining() bool {
	return s.cursor+1 < len(s.queue)
}

// Cursor returns the index of the current utterance.
func (s *Sequencer) Cursor() int {
	return s.cursor
}

// Len returns the number of queued utterances.
func (s *Sequencer) Len() int {
	return len(s.queue)
}

// Reset empties the queue.
func (s *Sequencer) Reset() {
	s.queue = nil
	s.cursor = 0
}
