package events

import "context"

// Publisher is implemented by downstream fan-out mechanisms.
type Publisher interface {
	PublishEpisode(ctx context.Context, payload EpisodeEvent) error
	PublishTargetSync(ctx context.Context, payload TargetSyncEvent) error
}

// EpisodeEvent is emitted whenever an episode finishes.
type EpisodeEvent struct {
	RunID      string  `json:"run_id"`
	Variant    string  `json:"variant"`
	Episode    int     `json:"episode"`
	Steps      int     `json:"steps"`
	Return     float64 `json:"return"`
	Epsilon    float64 `json:"epsilon"`
	LearnSteps int     `json:"learn_steps"`
	ReplaySize int     `json:"replay_size"`
	Truncated  bool    `json:"truncated,omitempty"`
}

// TargetSyncEvent tracks target network refreshes.
type TargetSyncEvent struct {
	RunID   string `json:"run_id"`
	Variant string `json:"variant"`
	Step    int    `json:"step"`
	Mode    string `json:"mode"`
}

// NoopPublisher logs nothing; useful for tests.
type NoopPublisher struct{}

// PublishEpisode satisfies Publisher.
func (NoopPublisher) PublishEpisode(context.Context, EpisodeEvent) error { return nil }

// PublishTargetSync satisfies Publisher.
func (NoopPublisher) PublishTargetSync(context.Context, TargetSyncEvent) error { return nil }
