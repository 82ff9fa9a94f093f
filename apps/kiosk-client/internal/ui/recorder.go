package ui

import "sync"

// Notice is one recorded Notify call.
type Notice struct {
	Level   Level
	Message string
}

// Recorder keeps everything sent to it. Tests and the status endpoint use it.
type Recorder struct {
	mu           sync.Mutex
	Notices      []Notice
	States       []Connectivity
	Face         bool
	Prompts      int
	CartLines    []string
	CartQuantity int
	CartAmount   float64
}

var _ Notifier = (*Recorder)(nil)

func (r *Recorder) Notify(level Level, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Notices = append(r.Notices, Notice{Level: level, Message: message})
}

func (r *Recorder) SetConnectivity(c Connectivity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.States = append(r.States, c)
}

func (r *Recorder) SetFaceDetected(detected bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Face = detected
}

func (r *Recorder) PromptRegistration() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Prompts++
}

func (r *Recorder) ShowCart(lines []string, totalQuantity int, totalAmount float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.CartLines = append([]string(nil), lines...)
	r.CartQuantity = totalQuantity
	r.CartAmount = totalAmount
}

// Last returns the most recent notice.
func (r *Recorder) Last() (Notice, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.Notices) == 0 {
		return Notice{}, false
	}
	return r.Notices[len(r.Notices)-1], true
}

// Multi fans out to several notifiers.
type Multi []Notifier

func (m Multi) Notify(level Level, message string) {
	for _, n := range m {
		n.Notify(level, message)
	}
}

func (m Multi) SetConnectivity(c Connectivity) {
	for _, n := range m {
		n.SetConnectivity(c)
	}
}

func (m Multi) SetFaceDetected(detected bool) {
	for _, n := range m {
		n.SetFaceDetected(detected)
	}
}

func (m Multi) PromptRegistration() {
	for _, n := range m {
		n.PromptRegistration()
	}
}

func (m Multi) ShowCart(lines []string, totalQuantity int, totalAmount float64) {
	for _, n := range m {
		n.ShowCart(lines, totalQuantity, totalAmount)
	}
}

// Has reports whether a notice with exactly this level and message was seen.
func (r *Recorder) Has(level Level, message string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, n := range r.Notices {
		if n.Level == level && n.Message == message {
			return true
		}
	}
	return false
}
