package welcome

import (
	"context"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/keshon/warden/internal/command"
	"github.com/keshon/warden/pkg/cmd"
)

// Wizard steps, in order. Each step persists what it collected so an
// abandoned wizard keeps the earlier answers.
const (
	idMessageModal  = "welcomeSetupStep1"
	idChannelSelect = "welcomeChannelSelect"
	idRoleSelect    = "welcomeRoleSelect"
	idOpenButtons   = "openOptionalButtonsModal"
	idButtonsModal  = "optionalButtons"

	inputMessage     = "welcomeMessage"
	inputLinkURL     = "linkButton"
	inputButtonLabel = "buttonLabel"
	inputCountLabel  = "memberCountLabel"

	colorStep = 0x2E8B57
)

const (
	msgDone    = "🎉 Configuration complete! Your welcome system is now fully set up."
	msgBadStep = "🚨 Something went wrong during setup. Please try again!"
)

type configCommand struct{ p *Plugin }

func (c *configCommand) Name() string        { return "config" }
func (c *configCommand) Description() string { return "Configure welcome messages and member roles." }

func (c *configCommand) ComponentPrefixes() []string {
	return []string{"welcome", idOpenButtons, idButtonsModal}
}

func (c *configCommand) SlashDefinition() *discordgo.ApplicationCommand {
	perm := int64(discordgo.PermissionManageServer)
	return &discordgo.ApplicationCommand{DefaultMemberPermissions: &perm}
}

func (c *configCommand) Run(_ context.Context, inv *cmd.Invocation) error {
	dc, err := command.From(inv)
	if err != nil {
		return err
	}
	if !dc.HasPermission(discordgo.PermissionManageServer) {
		return dc.Reply.Respond(command.Text(command.MsgForbidden))
	}
	current, _ := c.p.store.Lookup(dc.GuildID)
	return dc.Reply.Modal(idMessageModal, "Setup Welcome Message", discordgo.TextInput{
		CustomID:    inputMessage,
		Label:       "Welcome Message",
		Style:       discordgo.TextInputParagraph,
		Placeholder: "Example: Welcome {mention} to {server}! We are now {member} members.",
		Value:       current.Message,
		MinLength:   1,
		MaxLength:   2000,
	})
}

func step(title, description string) []*discordgo.MessageEmbed {
	return []*discordgo.MessageEmbed{{Title: title, Description: description, Color: colorStep}}
}

func selectRow(menu discordgo.SelectMenu) []discordgo.MessageComponent {
	return []discordgo.MessageComponent{discordgo.ActionsRow{Components: []discordgo.MessageComponent{menu}}}
}

func (c *configCommand) Component(ctx context.Context, inv *cmd.Invocation) error {
	dc, err := command.From(inv)
	if err != nil {
		return err
	}
	if !dc.HasPermission(discordgo.PermissionManageServer) {
		return dc.Reply.Respond(command.Text(command.MsgForbidden))
	}
	guildID := dc.GuildID
	save := func(fn func(*Settings)) error {
		_, err := c.p.store.Update(guildID, func(s *Settings) error {
			fn(s)
			return nil
		})
		return err
	}

	switch dc.CustomID() {
	case idMessageModal:
		text := strings.TrimSpace(dc.ModalValue(inputMessage))
		if text == "" {
			return dc.Reply.Respond(command.Text(msgBadStep))
		}
		if err := save(func(s *Settings) { s.Message = text }); err != nil {
			return err
		}
		return dc.Reply.Respond(command.Response{
			Ephemeral: true,
			Embeds:    step("Step 2: Select a Welcome Channel!", "Choose the channel where new members are greeted upon joining your server."),
			Components: selectRow(discordgo.SelectMenu{
				MenuType:     discordgo.ChannelSelectMenu,
				CustomID:     idChannelSelect,
				Placeholder:  "Select a channel to send welcome messages.",
				ChannelTypes: []discordgo.ChannelType{discordgo.ChannelTypeGuildText},
			}),
		})

	case idChannelSelect:
		values := dc.Values()
		if len(values) == 0 {
			return dc.Reply.Respond(command.Text(msgBadStep))
		}
		if err := save(func(s *Settings) { s.ChannelID = values[0] }); err != nil {
			return err
		}
		return dc.Reply.Update(command.Response{
			Embeds: step("Step 3: Select a Role for New Members!", "Choose a role to automatically assign to new members when they join."),
			Components: selectRow(discordgo.SelectMenu{
				MenuType:    discordgo.RoleSelectMenu,
				CustomID:    idRoleSelect,
				Placeholder: "Select a role to assign to new members.",
			}),
		})

	case idRoleSelect:
		values := dc.Values()
		if len(values) == 0 {
			return dc.Reply.Respond(command.Text(msgBadStep))
		}
		if values[0] == guildID {
			return dc.Reply.Respond(command.Text("❌ The @everyone role cannot be assigned."))
		}
		if err := save(func(s *Settings) { s.RoleID = values[0] }); err != nil {
			return err
		}
		return dc.Reply.Update(command.Response{
			Embeds: []*discordgo.MessageEmbed{{
				Title:       "Optional Step: Add Buttons",
				Description: "You can add a linked button, member count button label, and more.",
			}},
			Components: []discordgo.MessageComponent{discordgo.ActionsRow{Components: []discordgo.MessageComponent{
				discordgo.Button{CustomID: idOpenButtons, Label: "Configure Optional Buttons", Style: discordgo.PrimaryButton},
			}}},
		})

	case idOpenButtons:
		current, _ := c.p.store.Lookup(guildID)
		return dc.Reply.Modal(idButtonsModal, "Optional Buttons Configuration",
			discordgo.TextInput{CustomID: inputLinkURL, Label: "Link Button URL (Optional)", Style: discordgo.TextInputShort, Placeholder: "https://example.com", Value: current.LinkURL},
			discordgo.TextInput{CustomID: inputButtonLabel, Label: "Link Button Label (Optional)", Style: discordgo.TextInputShort, Value: current.ButtonLabel},
			discordgo.TextInput{CustomID: inputCountLabel, Label: "Member Count Button Label (Optional)", Style: discordgo.TextInputShort, Placeholder: "Example: We now have {member} members!", Value: current.MemberCountLabel},
		)

	case idButtonsModal:
		link := strings.TrimSpace(dc.ModalValue(inputLinkURL))
		label := strings.TrimSpace(dc.ModalValue(inputButtonLabel))
		count := strings.TrimSpace(dc.ModalValue(inputCountLabel))
		if link != "" && !strings.HasPrefix(link, "https://") && !strings.HasPrefix(link, "http://") {
			return dc.Reply.Respond(command.Text("❌ The link button URL must start with http:// or https://."))
		}
		// blank fields leave the stored value alone
		if err := save(func(s *Settings) {
			if link != "" {
				s.LinkURL = link
			}
			if label != "" {
				s.ButtonLabel = label
			}
			if count != "" {
				s.MemberCountLabel = count
			}
		}); err != nil {
			return err
		}
		dc.Log.Info().Str("guild", guildID).Msg("welcome configured")
		return dc.Reply.Respond(command.Text(msgDone))
	}
	return dc.Reply.Respond(command.Text(msgBadStep))
}
