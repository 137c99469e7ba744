package relay

import (
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"

	"echobot/internal/config"
	"echobot/internal/domain"
)

const (
	everyoneMention = "@everyone"
	hereMention     = "@here"
)

// BuildHeader builds the header posted ahead of the relayed body. The
// header is absent when the redirect asks for neither a title nor the
// source annotation.
func BuildHeader(msg domain.InboundMessage, r config.Redirect) domain.Header {
	opts := r.Options
	if opts.Title == "" && !opts.IncludeSource {
		return domain.Header{}
	}

	if opts.RichEmbed {
		embed := &discordgo.MessageEmbed{
			Type:  domain.EmbedTypeRich,
			Title: opts.Title,
			Color: opts.Color(),
		}
		if opts.IncludeSource {
			embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
				Name:  "Author",
				Value: fmt.Sprintf("**%s** in **%s**", msg.Author.Name(), msg.Channel.Path()),
			})
		}
		return domain.EmbedHeader(embed)
	}

	var sb strings.Builder
	if opts.Title != "" {
		sb.WriteString("**" + opts.Title + "**\n")
	}
	if opts.IncludeSource {
		fmt.Fprintf(&sb, "*Author: **%s** in **%s***\n", msg.Author.Name(), msg.Channel.Path())
	}
	return domain.TextHeader(sb.String())
}

// BuildBody builds the relayed body. Mention removal strips only the first
// occurrence of each token.
func BuildBody(msg domain.InboundMessage, r config.Redirect) domain.Body {
	opts := r.Options
	body := domain.Body{Contents: msg.Content}

	if opts.CopyRichEmbed {
		for _, e := range msg.Embeds {
			if e != nil && e.Type == domain.EmbedTypeRich {
				body.Embed = cloneEmbed(e)
				break
			}
		}
	}

	if opts.RemoveEveryone {
		body.Contents = strings.Replace(body.Contents, everyoneMention, "", 1)
	}
	if opts.RemoveHere {
		body.Contents = strings.Replace(body.Contents, hereMention, "", 1)
	}
	return body
}

// cloneEmbed copies e deeply enough that the copy can be modified or sent
// concurrently without touching the inbound message.
func cloneEmbed(e *discordgo.MessageEmbed) *discordgo.MessageEmbed {
	cp := *e
	if e.Fields != nil {
		cp.Fields = make([]*discordgo.MessageEmbedField, len(e.Fields))
		for i, f := range e.Fields {
			if f == nil {
				continue
			}
			fc := *f
			cp.Fields[i] = &fc
		}
	}
	if e.Footer != nil {
		v := *e.Footer
		cp.Footer = &v
	}
	if e.Image != nil {
		v := *e.Image
		cp.Image = &v
	}
	if e.Thumbnail != nil {
		v := *e.Thumbnail
		cp.Thumbnail = &v
	}
	if e.Video != nil {
		v := *e.Video
		cp.Video = &v
	}
	if e.Provider != nil {
		v := *e.Provider
		cp.Provider = &v
	}
	if e.Author != nil {
		v := *e.Author
		cp.Author = &v
	}
	return &cp
}
