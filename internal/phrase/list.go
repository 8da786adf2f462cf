package phrase

// List is an ordered sequence of phrases sharing one tracker.
type List struct {
	tracker *Tracker
	phrases []*Phrase
}

// NewList creates an empty list bound to tracker.
func NewList(tracker *Tracker) *List {
	return &List{tracker: tracker}
}

// Add creates a phrase for text and appends it.
func (l *List) Add(text string, opts ...Option) *Phrase {
	p := New(l.tracker, text, opts...)
	l.phrases = append(l.phrases, p)
	return p
}

// Phrases returns the phrases in insertion order.
func (l *List) Phrases() []*Phrase {
	return l.phrases
}

// Len returns the number of phrases.
func (l *List) Len() int {
	return len(l.phrases)
}

// Tracker returns the shared tracker.
func (l *List) Tracker() *Tracker {
	return l.tracker
}

// ExpireAllPrior advances the watermark past every serial issued so far,
// canceling all phrases not yet voiced in one step.
func (l *List) ExpireAllPrior() {
	l.tracker.ExpireAll()
}

// IsExpired reports whether the last phrase of the list is expired.
func (l *List) IsExpired() bool {
	if len(l.phrases) == 0 {
		return false
	}
	return l.phrases[len(l.phrases)-1].IsExpired()
}
