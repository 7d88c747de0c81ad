// Package capability provides the generation providers behind slot calls.
//
// Every provider implements Capability:
//
//   - OpenAIImages: OpenAI images API (URL responses)
//   - HTTP: any JSON endpoint answering {"urls": [...]}
//   - Fake: deterministic offline URLs
//
// NewLimited adds a token-bucket rate limit in front of any of them.
// Message converts a provider error into the text stored on a failed slot.
package capability
