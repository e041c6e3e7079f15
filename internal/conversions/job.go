package conversions

import "time"

// Stage is a step of the conversion state machine.
type Stage string

const (
	StageIdle            Stage = "idle"
	StageProcessingText  Stage = "processing-text"
	StageGeneratingAudio Stage = "generating-audio"
	StageComplete        Stage = "complete"
	StageError           Stage = "error"
)

// rank orders stages; complete and error share the terminal rank.
func (s Stage) rank() int {
	switch s {
	case StageIdle:
		return 0
	case StageProcessingText:
		return 1
	case StageGeneratingAudio:
		return 2
	case StageComplete, StageError:
		return 3
	}
	return -1
}

// Terminal reports whether no further transitions can happen.
func (s Stage) Terminal() bool {
	return s == StageComplete || s == StageError
}

// Progress markers.
const (
	progressExtracting  = 10
	progressExtracted   = 30
	progressGenerating  = 40
	progressGenerateMax = 90
	progressComplete    = 100
)

// Messages shown to the user.
const (
	MessageQueued             = "Waiting to start..."
	MessageExtracting         = "Processing document and extracting text..."
	MessageGenerating         = "Generating audio with AI voice synthesis..."
	MessageComplete           = "Audio generation completed successfully!"
	MessageInsufficientTokens = "Insufficient tokens. Please upgrade your plan or wait for monthly reset."
)

// Job is a snapshot of one conversion. Progress is 0..100.
type Job struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	Stage       Stage     `json:"stage"`
	Progress    int       `json:"progress"`
	Message     string    `json:"message"`
	FailedStage Stage     `json:"failedStage,omitempty"`
	ContentType string    `json:"contentType,omitempty"`
	Title       string    `json:"title,omitempty"`
	WordCount   int       `json:"wordCount,omitempty"`
	TokensUsed  int       `json:"tokensUsed,omitempty"`
	AudioKey    string    `json:"audioKey,omitempty"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Observer receives every job update synchronously, in order.
type Observer interface {
	OnUpdate(Job)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Job)

func (f ObserverFunc) OnUpdate(j Job) { f(j) }
