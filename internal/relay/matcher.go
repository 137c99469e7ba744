package relay

import (
	"echobot/internal/config"
	"echobot/internal/domain"
)

// MatchingRedirects returns every redirect listing the message's channel as
// a source, in configuration order.
func MatchingRedirects(msg domain.InboundMessage, redirects []config.Redirect) []config.Redirect {
	var matches []config.Redirect
	for _, r := range redirects {
		if r.Sources.Contains(msg.Channel.ID) {
			matches = append(matches, r)
		}
	}
	return matches
}
