package domain

import "github.com/bwmarrin/discordgo"

// HeaderKind tags which variant a Header holds.
type HeaderKind int

const (
	HeaderNone HeaderKind = iota
	HeaderText
	HeaderEmbed
)

func (k HeaderKind) String() string {
	switch k {
	case HeaderText:
		return "text"
	case HeaderEmbed:
		return "embed"
	default:
		return "none"
	}
}

// Header is the optional message posted before a relayed body. Exactly one
// of Text or Embed is meaningful, selected by Kind.
type Header struct {
	Kind  HeaderKind
	Text  string
	Embed *discordgo.MessageEmbed
}

// TextHeader returns a plain text header.
func TextHeader(text string) Header {
	return Header{Kind: HeaderText, Text: text}
}

// EmbedHeader returns a rich embed header.
func EmbedHeader(embed *discordgo.MessageEmbed) Header {
	return Header{Kind: HeaderEmbed, Embed: embed}
}

// Present reports whether the header should be sent at all.
func (h Header) Present() bool { return h.Kind != HeaderNone }

// Outbound converts the header into a message carrying the given nonce.
func (h Header) Outbound(nonce string) OutboundMessage {
	switch h.Kind {
	case HeaderEmbed:
		return OutboundMessage{Embed: h.Embed, Nonce: nonce}
	default:
		return OutboundMessage{Content: h.Text, Nonce: nonce}
	}
}

// Body is the relayed content of a message.
type Body struct {
	Contents string
	Embed    *discordgo.MessageEmbed
}

// Empty reports whether nothing would be posted.
func (b Body) Empty() bool {
	return b.Contents == "" && b.Embed == nil
}
