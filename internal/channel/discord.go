package channel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/bwmarrin/discordgo"
	lru "github.com/hashicorp/golang-lru/v2"

	"echobot/internal/domain"
)

const defaultChannelCacheSize = 512

var (
	errNotConnected = errors.New("discord session is not connected")
	errDisconnected = errors.New("discord gateway disconnected")
)

// DiscordConfig configures the Discord platform.
type DiscordConfig struct {
	Token   string
	Logger  *slog.Logger
	Fetcher *AttachmentFetcher
	// ChannelCacheSize bounds how many channels fetched over REST are kept.
	ChannelCacheSize int
	// Reconnect tunes the delay between reconnect attempts.
	Reconnect ReconnectorConfig
}

// Discord connects to the Discord gateway, publishes every observed message
// to the bus and implements domain.Platform for posting.
type Discord struct {
	token     string
	logger    *slog.Logger
	fetcher   *AttachmentFetcher
	channels  *lru.Cache[string, *discordgo.Channel]
	reconnect ReconnectorConfig
	bus       domain.MessageBus

	mu      sync.RWMutex
	session *discordgo.Session
}

// NewDiscord creates a new Discord platform.
func NewDiscord(cfg DiscordConfig) (*Discord, error) {
	size := cfg.ChannelCacheSize
	if size <= 0 {
		size = defaultChannelCacheSize
	}
	cache, err := lru.New[string, *discordgo.Channel](size)
	if err != nil {
		return nil, fmt.Errorf("channel cache: %w", err)
	}
	d := &Discord{
		token:     cfg.Token,
		logger:    cfg.Logger,
		fetcher:   cfg.Fetcher,
		channels:  cache,
		reconnect: cfg.Reconnect,
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}
	if d.fetcher == nil {
		d.fetcher = NewAttachmentFetcher(AttachmentFetcherConfig{Logger: d.logger})
	}
	return d, nil
}

// Start keeps a gateway session open until ctx is cancelled, publishing
// inbound messages to bus.
func (d *Discord) Start(ctx context.Context, bus domain.MessageBus) error {
	d.bus = bus

	rc := d.reconnect
	rc.Dial = d.dial
	if rc.Logger == nil {
		rc.Logger = d.logger
	}
	err := NewReconnector(rc).Run(ctx)
	d.logger.Info("discord bot disconnected")
	return err
}

func (d *Discord) dial(ctx context.Context) (Conn, error) {
	session, err := discordgo.New("Bot " + d.token)
	if err != nil {
		return nil, fmt.Errorf("discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent
	// Reconnects are driven by Reconnector.
	session.ShouldReconnectOnError = false

	conn := newDiscordConn(d, session)
	session.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		d.logger.Info("signed into Discord", "user", r.User.Username, "guilds", len(r.Guilds))
		conn.markReady()
	})
	session.AddHandler(func(s *discordgo.Session, _ *discordgo.Disconnect) {
		conn.fail(errDisconnected)
	})
	session.AddHandler(d.onMessageCreate)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := session.Open(); err != nil {
		return nil, fmt.Errorf("discord connect: %w", err)
	}
	d.setSession(session)
	return conn, nil
}

func (d *Discord) setSession(s *discordgo.Session) {
	d.mu.Lock()
	d.session = s
	d.mu.Unlock()
}

// clearSession forgets s if it is still the current session.
func (d *Discord) clearSession(s *discordgo.Session) {
	d.mu.Lock()
	if d.session == s {
		d.session = nil
	}
	d.mu.Unlock()
}

func (d *Discord) current() *discordgo.Session {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.session
}

func (d *Discord) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || d.bus == nil {
		return
	}
	msg := inboundFromDiscord(s.State, m)
	d.logger.Debug("discord message received",
		"author", msg.Author.Username,
		"channel_id", m.ChannelID,
		"content_len", len(msg.Content),
	)
	d.bus.Publish(msg)
}

// ResolveChannel looks channelID up in the gateway state, then the REST
// cache, then the REST API.
func (d *Discord) ResolveChannel(ctx context.Context, channelID string) (domain.ChannelInfo, error) {
	s := d.current()
	if s == nil {
		return domain.ChannelInfo{}, errNotConnected
	}

	ch, err := s.State.Channel(channelID)
	if err != nil {
		cached, ok := d.channels.Get(channelID)
		if ok {
			ch = cached
		} else {
			ch, err = s.Channel(channelID, discordgo.WithContext(ctx))
			if err != nil {
				if isMissing(err) {
					return domain.ChannelInfo{}, fmt.Errorf("%w: %s", domain.ErrChannelNotFound, channelID)
				}
				return domain.ChannelInfo{}, fmt.Errorf("fetch channel %s: %w", channelID, err)
			}
			d.channels.Add(channelID, ch)
		}
	}
	return channelInfo(s.State, ch), nil
}

// isMissing reports whether a REST error means the bot cannot see the
// channel at all.
func isMissing(err error) bool {
	var rest *discordgo.RESTError
	if !errors.As(err, &rest) || rest.Response == nil {
		return false
	}
	switch rest.Response.StatusCode {
	case http.StatusNotFound, http.StatusForbidden:
		return true
	}
	return false
}

// outboundPayload is the create-message body. It is built by hand so the
// nonce is sent alongside content and embeds.
type outboundPayload struct {
	Content string                    `json:"content,omitempty"`
	Embeds  []*discordgo.MessageEmbed `json:"embeds,omitempty"`
	Nonce   string                    `json:"nonce,omitempty"`
}

func newPayload(msg domain.OutboundMessage) outboundPayload {
	p := outboundPayload{Content: msg.Content, Nonce: msg.Nonce}
	if msg.Embed != nil {
		p.Embeds = []*discordgo.MessageEmbed{msg.Embed}
	}
	return p
}

// Send posts msg to channelID, uploading its attachments.
func (d *Discord) Send(ctx context.Context, channelID string, msg domain.OutboundMessage) error {
	s := d.current()
	if s == nil {
		return errNotConnected
	}

	files := make([]*discordgo.File, 0, len(msg.Attachments))
	for _, a := range msg.Attachments {
		f, err := d.fetcher.Fetch(ctx, a)
		if err != nil {
			return fmt.Errorf("attachment %s: %w", a.Filename, err)
		}
		files = append(files, f)
	}

	payload := newPayload(msg)
	endpoint := discordgo.EndpointChannelMessages(channelID)

	var err error
	if len(files) == 0 {
		_, err = s.RequestWithBucketID(http.MethodPost, endpoint, payload, endpoint, discordgo.WithContext(ctx))
	} else {
		var contentType string
		var body []byte
		contentType, body, err = discordgo.MultipartBodyWithJSON(payload, files)
		if err != nil {
			return fmt.Errorf("encode upload: %w", err)
		}
		_, err = s.RequestRaw(http.MethodPost, endpoint, contentType, body, endpoint, 0, discordgo.WithContext(ctx))
	}
	if err != nil {
		return fmt.Errorf("discord send: %w", err)
	}
	return nil
}

// inboundFromDiscord converts a gateway message into an InboundMessage.
func inboundFromDiscord(state *discordgo.State, m *discordgo.MessageCreate) domain.InboundMessage {
	msg := domain.InboundMessage{
		ID: m.ID,
		Author: domain.Author{
			ID:          m.Author.ID,
			Username:    m.Author.Username,
			DisplayName: displayName(m.Message),
		},
		Content: m.Content,
		Embeds:  m.Embeds,
	}
	for _, a := range m.Attachments {
		if a == nil {
			continue
		}
		msg.Attachments = append(msg.Attachments, domain.Attachment{URL: a.URL, Filename: a.Filename})
	}

	if ch, err := state.Channel(m.ChannelID); err == nil {
		msg.Channel = channelInfo(state, ch)
	} else {
		// Uncached DM channels arrive without a guild.
		msg.Channel = domain.ChannelInfo{ID: m.ChannelID, Private: m.GuildID == "", Text: m.GuildID != ""}
	}
	return msg
}

func displayName(m *discordgo.Message) string {
	if m.Member != nil && m.Member.Nick != "" {
		return m.Member.Nick
	}
	if m.Author.GlobalName != "" {
		return m.Author.GlobalName
	}
	return m.Author.Username
}

func channelInfo(state *discordgo.State, ch *discordgo.Channel) domain.ChannelInfo {
	info := domain.ChannelInfo{
		ID:   ch.ID,
		Name: ch.Name,
		Text: isTextChannel(ch.Type),
	}
	switch ch.Type {
	case discordgo.ChannelTypeDM, discordgo.ChannelTypeGroupDM:
		info.Private = true
		return info
	}
	if ch.GuildID != "" {
		if g, err := state.Guild(ch.GuildID); err == nil {
			info.GuildName = g.Name
		}
	}
	if ch.ParentID != "" {
		if p, err := state.Channel(ch.ParentID); err == nil {
			info.ParentName = p.Name
		}
	}
	return info
}

// isTextChannel reports whether bot posts to a channel of type t are relayed.
func isTextChannel(t discordgo.ChannelType) bool {
	switch t {
	case discordgo.ChannelTypeGuildText, discordgo.ChannelTypeGuildNews:
		return true
	}
	return false
}

// discordConn adapts a gateway session to Conn.
type discordConn struct {
	d         *Discord
	session   *discordgo.Session
	ready     chan struct{}
	readyOnce sync.Once
	errs      chan error
}

func newDiscordConn(d *Discord, s *discordgo.Session) *discordConn {
	return &discordConn{
		d:       d,
		session: s,
		ready:   make(chan struct{}),
		errs:    make(chan error, 1),
	}
}

func (c *discordConn) markReady() { c.readyOnce.Do(func() { close(c.ready) }) }

func (c *discordConn) fail(err error) {
	select {
	case c.errs <- err:
	default:
	}
}

func (c *discordConn) Ready() <-chan struct{} { return c.ready }
func (c *discordConn) Errors() <-chan error   { return c.errs }

func (c *discordConn) Close() error {
	c.d.clearSession(c.session)
	return c.session.Close()
}
