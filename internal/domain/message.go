package domain

import (
	"strings"

	"github.com/bwmarrin/discordgo"
)

// EmbedTypeRich is the embed type produced by bots and webhooks.
const EmbedTypeRich = discordgo.EmbedTypeRich

// Author identifies who wrote an inbound message.
type Author struct {
	ID          string
	Username    string
	DisplayName string // guild nickname when present, otherwise the username
}

// Name returns the name shown in relay headers.
func (a Author) Name() string {
	if a.DisplayName != "" {
		return a.DisplayName
	}
	return a.Username
}

// ChannelInfo carries a channel ID together with the context needed to
// describe where it lives.
type ChannelInfo struct {
	ID         string
	Name       string
	GuildName  string
	ParentName string // category, empty when uncategorised
	Private    bool   // direct message or group DM
	Text       bool   // messages can be posted to it
}

// Path renders the location of the channel as guild/parent/channel, or
// "Direct Messages" for private channels.
func (c ChannelInfo) Path() string {
	if c.Private {
		return "Direct Messages"
	}
	parts := make([]string, 0, 3)
	if c.GuildName != "" {
		parts = append(parts, c.GuildName)
	}
	if c.ParentName != "" {
		parts = append(parts, c.ParentName)
	}
	if c.Name != "" {
		parts = append(parts, c.Name)
	}
	return strings.Join(parts, "/")
}

// Attachment is a file attached to a message.
type Attachment struct {
	URL      string
	Filename string
}

// InboundMessage is a message observed in a channel.
type InboundMessage struct {
	ID          string
	Author      Author
	Channel     ChannelInfo
	Content     string
	Attachments []Attachment
	Embeds      []*discordgo.MessageEmbed
}

// OutboundMessage is a single post to a destination channel.
type OutboundMessage struct {
	Content     string
	Embed       *discordgo.MessageEmbed
	Attachments []Attachment
	Nonce       string
}
