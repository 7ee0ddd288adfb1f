package synth

import "sync"

// MaxReflectionEntries bounds the reflection buffer (spec §4.9:
// "capacity 5 with sliding-window truncation").
const MaxReflectionEntries = 5

// ReflectionEntry is one failed refiner iteration's takeaway.
type ReflectionEntry struct {
	Iteration    int
	ErrorType    string
	ErrorSummary string
	Lesson       string
}

// ReflectionBuffer is session-scoped working memory for the refiner's
// outer loop: "lessons from this session, do not repeat" (spec §4.9).
// Reset at the start of every task.
type ReflectionBuffer struct {
	mu      sync.Mutex
	entries []ReflectionEntry
}

// NewReflectionBuffer returns an empty buffer. The buffer lives in
// memory only; its entries are not written to disk.
func NewReflectionBuffer() *ReflectionBuffer {
	return &ReflectionBuffer{}
}

// Record appends a failed-iteration record; when the buffer overflows it
// keeps the newest MaxReflectionEntries and drops the oldest.
func (b *ReflectionBuffer) Record(iteration int, errorSummary string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	errType := ClassifyErrorType(errorSummary)
	entry := ReflectionEntry{
		Iteration:    iteration,
		ErrorType:    errType,
		ErrorSummary: errorSummary,
		Lesson:       LessonForError(errType),
	}

	b.entries = append(b.entries, entry)
	if len(b.entries) > MaxReflectionEntries {
		b.entries = b.entries[len(b.entries)-MaxReflectionEntries:]
	}
}

// Entries returns a copy of the buffered reflections, oldest first.
func (b *ReflectionBuffer) Entries() []ReflectionEntry {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]ReflectionEntry, len(b.entries))
	copy(out, b.entries)
	return out
}

// Reset clears the buffer for a new task session.
func (b *ReflectionBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = nil
}

// Bullets renders the buffer as the "do not repeat" bullet list injected
// into every refine prompt.
func (b *ReflectionBuffer) Bullets() []string {
	entries := b.Entries()
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.ErrorType + ": " + e.Lesson
	}
	return out
}
