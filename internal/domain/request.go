package domain

// GenerationRequest is one confirmed "make me a deck" request from a chat user.
// Topic is untrusted and must only ever be treated as display text.
type GenerationRequest struct {
	RequesterID string
	ChatID      string
	Topic       string
	SlideCount  int
	Language    string
}

// Prompt is the provider-agnostic system/user prompt pair sent to a model client.
type Prompt struct {
	System string
	User   string
}

// Artifact is a rendered deck ready to be handed to a delivery channel.
type Artifact struct {
	Path        string
	Name        string
	ContentType string
	Size        int64
}
