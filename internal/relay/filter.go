package relay

import (
	"unicode/utf16"

	"echobot/internal/config"
	"echobot/internal/domain"
	"echobot/internal/metrics"
)

// PassesAuthorFilter reports whether the message author may be relayed by r.
func PassesAuthorFilter(msg domain.InboundMessage, r config.Redirect) bool {
	return r.Options.Allows(msg.Author.ID)
}

// textLength counts UTF-16 code units, the unit Discord clients use for
// message length.
func textLength(s string) int {
	return len(utf16.Encode([]rune(s)))
}

// bodyDropReason returns the metrics drop reason when body must not be
// relayed under opts, or "" when it may go out.
func bodyDropReason(body domain.Body, opts config.RedirectOptions) string {
	if opts.MinLength > 0 && body.Embed == nil && textLength(body.Contents) < opts.MinLength {
		return metrics.DropTooShort
	}
	if body.Empty() {
		return metrics.DropEmpty
	}
	return ""
}
