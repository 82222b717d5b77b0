package transcript

import (
	"strings"
	"sync"
)

// Buffer accumulates finalized phrases the way the dictation editor does.
// It is safe for concurrent use.
type Buffer struct {
	mu   sync.RWMutex
	text string
}

// NewBuffer creates an empty transcript buffer
func NewBuffer() *Buffer {
	return &Buffer{}
}

// Append adds a finalized phrase, separated by a single space from the
// existing text. Blank phrases are ignored.
func (b *Buffer) Append(phrase string) string {
	phrase = strings.TrimSpace(phrase)

	b.mu.Lock()
	defer b.mu.Unlock()
	if phrase == "" {
		return b.text
	}
	if b.text == "" {
		b.text = phrase
	} else {
		b.text = b.text + " " + phrase
	}
	return b.text
}

// Text returns the accumulated transcript
func (b *Buffer) Text() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.text
}

// Set replaces the transcript, as when the user edits it by hand
func (b *Buffer) Set(text string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.text = text
}

// Clear empties the transcript
func (b *Buffer) Clear() {
	b.Set("")
}

// Display returns what the editor shows: the transcript followed by the
// interim text of the utterance in progress.
func (b *Buffer) Display(interim string) string {
	text := b.Text()
	switch {
	case interim == "":
		return text
	case text == "":
		return interim
	}
	return text + " " + interim
}

// WordCount counts whitespace separated words of the transcript
func (b *Buffer) WordCount() int {
	return len(strings.Fields(b.Text()))
}
