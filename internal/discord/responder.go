package discord

import (
	"errors"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/keshon/warden/internal/command"
)

// ErrAcknowledged is returned when a second initial response is attempted.
var ErrAcknowledged = errors.New("interaction already acknowledged")

// API is the part of the Discord REST client the router and responders use.
type API interface {
	InteractionRespond(i *discordgo.Interaction, r *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
	InteractionResponseEdit(i *discordgo.Interaction, e *discordgo.WebhookEdit, options ...discordgo.RequestOption) (*discordgo.Message, error)
	FollowupMessageCreate(i *discordgo.Interaction, wait bool, p *discordgo.WebhookParams, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageSendComplex(channelID string, m *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageEditComplex(m *discordgo.MessageEdit, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// interactionResponder answers through the interaction webhook.
type interactionResponder struct {
	api API
	i   *discordgo.Interaction

	mu    sync.Mutex
	acked bool
}

func newInteractionResponder(api API, i *discordgo.Interaction) *interactionResponder {
	return &interactionResponder{api: api, i: i}
}

func flags(r command.Response) discordgo.MessageFlags {
	if r.Ephemeral {
		return discordgo.MessageFlagsEphemeral
	}
	return 0
}

// consume sends the initial response once.
func (r *interactionResponder) consume(resp *discordgo.InteractionResponse) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.acked {
		return ErrAcknowledged
	}
	if err := r.api.InteractionRespond(r.i, resp); err != nil {
		return err
	}
	r.acked = true
	return nil
}

func (r *interactionResponder) Respond(resp command.Response) error {
	return r.consume(&discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: responseData(resp),
	})
}

func (r *interactionResponder) Defer(ephemeral bool) error {
	return r.consume(&discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Flags: flags(command.Response{Ephemeral: ephemeral})},
	})
}

func (r *interactionResponder) DeferUpdate() error {
	return r.consume(&discordgo.InteractionResponse{Type: discordgo.InteractionResponseDeferredMessageUpdate})
}

func (r *interactionResponder) Update(resp command.Response) error {
	return r.consume(&discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseUpdateMessage,
		Data: responseData(resp),
	})
}

func (r *interactionResponder) Modal(customID, title string, inputs ...discordgo.TextInput) error {
	rows := make([]discordgo.MessageComponent, 0, len(inputs))
	for _, in := range inputs {
		rows = append(rows, discordgo.ActionsRow{Components: []discordgo.MessageComponent{in}})
	}
	return r.consume(&discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseModal,
		Data: &discordgo.InteractionResponseData{CustomID: customID, Title: title, Components: rows},
	})
}

func (r *interactionResponder) Edit(resp command.Response) (*discordgo.Message, error) {
	embeds, components := editSlices(resp)
	edit := &discordgo.WebhookEdit{
		Content:         &resp.Content,
		Embeds:          embeds,
		Components:      components,
		Files:           resp.Files,
		AllowedMentions: resp.Mentions,
	}
	return r.api.InteractionResponseEdit(r.i, edit)
}

func (r *interactionResponder) Followup(resp command.Response) (*discordgo.Message, error) {
	return r.api.FollowupMessageCreate(r.i, true, &discordgo.WebhookParams{
		Content:         resp.Content,
		Embeds:          resp.Embeds,
		Components:      resp.Components,
		Files:           resp.Files,
		AllowedMentions: resp.Mentions,
		Flags:           flags(resp),
	})
}

func (r *interactionResponder) Acknowledged() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.acked
}

func responseData(resp command.Response) *discordgo.InteractionResponseData {
	return &discordgo.InteractionResponseData{
		Content:         resp.Content,
		Embeds:          resp.Embeds,
		Components:      resp.Components,
		Files:           resp.Files,
		AllowedMentions: resp.Mentions,
		Flags:           flags(resp),
	}
}

// editSlices turns nil slices into "leave unchanged" and non-nil ones,
// including empty, into replacements.
func editSlices(resp command.Response) (*[]*discordgo.MessageEmbed, *[]discordgo.MessageComponent) {
	var (
		embeds     *[]*discordgo.MessageEmbed
		components *[]discordgo.MessageComponent
	)
	if resp.Embeds != nil {
		embeds = &resp.Embeds
	}
	if resp.Components != nil {
		components = &resp.Components
	}
	return embeds, components
}

// messageResponder answers a prefix command by replying in the channel.
// Ephemeral has no meaning here and is ignored.
type messageResponder struct {
	api API
	msg *discordgo.Message

	mu    sync.Mutex
	acked bool
	sent  *discordgo.Message
}

func newMessageResponder(api API, msg *discordgo.Message) *messageResponder {
	return &messageResponder{api: api, msg: msg}
}

func (r *messageResponder) send(resp command.Response) (*discordgo.Message, error) {
	return r.api.ChannelMessageSendComplex(r.msg.ChannelID, &discordgo.MessageSend{
		Content:         resp.Content,
		Embeds:          resp.Embeds,
		Components:      resp.Components,
		Files:           resp.Files,
		AllowedMentions: resp.Mentions,
		Reference:       r.msg.Reference(),
	})
}

func (r *messageResponder) Respond(resp command.Response) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sent != nil {
		return ErrAcknowledged
	}
	m, err := r.send(resp)
	if err != nil {
		return err
	}
	r.sent = m
	r.acked = true
	return nil
}

func (r *messageResponder) Defer(bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.acked = true
	return nil
}

func (r *messageResponder) DeferUpdate() error { return command.ErrUnsupported }

func (r *messageResponder) Update(command.Response) error { return command.ErrUnsupported }

func (r *messageResponder) Modal(string, string, ...discordgo.TextInput) error {
	return command.ErrUnsupported
}

func (r *messageResponder) Edit(resp command.Response) (*discordgo.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.acked = true
	if r.sent == nil {
		m, err := r.send(resp)
		if err != nil {
			return nil, err
		}
		r.sent = m
		return m, nil
	}
	embeds, components := editSlices(resp)
	return r.api.ChannelMessageEditComplex(&discordgo.MessageEdit{
		ID:         r.sent.ID,
		Channel:    r.sent.ChannelID,
		Content:    &resp.Content,
		Embeds:     embeds,
		Components: components,
	})
}

func (r *messageResponder) Followup(resp command.Response) (*discordgo.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.acked = true
	return r.send(resp)
}

func (r *messageResponder) Acknowledged() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.acked
}
