package erlc

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Embed kinds, also used in component custom IDs.
const (
	KindSSU    = "ssu"
	KindBoost  = "boost"
	KindStatus = "status"
)

// ErrUnknownKind is returned for embed kinds other than ssu, boost, status.
var ErrUnknownKind = errors.New("unknown embed kind")

// DefaultColor is used when an embed has no color.
const DefaultColor = 0x36FFDD

type Button struct {
	Label  string `json:"label"`
	Style  string `json:"style"`
	Action string `json:"action"`
	Value  string `json:"value"`
}

type Field struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

// Embed is an editable notice template.
type Embed struct {
	Enabled     bool     `json:"enabled"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Color       int      `json:"color"`
	Image       string   `json:"image,omitempty"`
	Thumbnail   string   `json:"thumbnail,omitempty"`
	Footer      string   `json:"footer,omitempty"`
	Webhook     string   `json:"webhook,omitempty"`
	Fields      []Field  `json:"fields"`
	Buttons     []Button `json:"buttons"`

	// boost only
	AutoTrigger          bool `json:"autoTrigger,omitempty"`
	AutoTriggerThreshold int  `json:"autoTriggerThreshold,omitempty"`
}

type Embeds struct {
	SSU    Embed `json:"ssu"`
	Boost  Embed `json:"boost"`
	Status Embed `json:"status"`
}

// Get returns a pointer to the embed of kind.
func (e *Embeds) Get(kind string) (*Embed, error) {
	switch kind {
	case KindSSU:
		return &e.SSU, nil
	case KindBoost:
		return &e.Boost, nil
	case KindStatus:
		return &e.Status, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
}

// Commands toggles each ERLC slash command.
type Commands struct {
	SSU     bool `json:"ssu"`
	Boost   bool `json:"boost"`
	Command bool `json:"command"`
	Status  bool `json:"status"`
}

// Settings is the per-guild ERLC configuration.
type Settings struct {
	APIKey             string   `json:"apiKey,omitempty"`
	SSURoles           []string `json:"ssuRoles"`
	BoostRoles         []string `json:"boostRoles"`
	CommandPermissions []string `json:"commandPermissions"`
	EmbedsConfig       Embeds   `json:"embedsConfig"`
	Commands           Commands `json:"commands"`
}

// SetCommands enables exactly the selected commands.
func (c *Commands) SetCommands(selected []string) {
	*c = Commands{}
	for _, name := range selected {
		switch name {
		case KindSSU:
			c.SSU = true
		case KindBoost:
			c.Boost = true
		case "command":
			c.Command = true
		case KindStatus:
			c.Status = true
		}
	}
}

// Merge overlays the top level keys of the JSON object raw onto e.
func (e *Embed) Merge(raw string) error {
	var patch map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &patch); err != nil {
		return fmt.Errorf("decode patch: %w", err)
	}
	if patch == nil {
		return errors.New("patch is not a JSON object")
	}

	current, err := json.Marshal(e)
	if err != nil {
		return err
	}
	var merged map[string]json.RawMessage
	if err := json.Unmarshal(current, &merged); err != nil {
		return err
	}
	for k, v := range patch {
		merged[k] = v
	}

	buf, err := json.Marshal(merged)
	if err != nil {
		return err
	}
	var out Embed
	if err := json.Unmarshal(buf, &out); err != nil {
		return fmt.Errorf("apply patch: %w", err)
	}
	*e = out
	return nil
}

const serverInfoField = "**Name:** {server-name}\n**Join Key:** `{join-key}`\n**Players:** {current-players}/{max-players}"

// DefaultSettings is what a guild gets on first access.
func DefaultSettings() Settings {
	return Settings{
		SSURoles:           []string{},
		BoostRoles:         []string{},
		CommandPermissions: []string{},
		EmbedsConfig: Embeds{
			SSU: Embed{
				Enabled:     true,
				Title:       "Server Startup Required",
				Description: "🚨 **{server-name}** needs more players!\n\n📊 **Current Players:** {current-players}/{max-players}",
				Color:       0xFF0000,
				Footer:      "Powered by ERLC Plugin",
				Fields: []Field{
					{Name: "🎮 Server Information", Value: serverInfoField, Inline: true},
					{Name: "⚙️ Settings", Value: "**Team Balance:** {team-balance}\n**Verification:** {verification}", Inline: true},
				},
				Buttons: []Button{{Label: "Join Server", Style: "Link", Action: "link", Value: "{join-key}"}},
			},
			Boost: Embed{
				Enabled:              true,
				Title:                "Server Boost Needed",
				Description:          "⚡ Help boost **{server-name}**!\n\n📊 **Current Players:** {current-players}/{max-players}",
				Color:                0xFFFF00,
				AutoTrigger:          false,
				AutoTriggerThreshold: 5,
				Footer:               "Powered by ERLC Plugin",
				Fields: []Field{
					{Name: "🎮 Server Information", Value: serverInfoField, Inline: true},
					{Name: "📈 Boost Benefits", Value: "• Increased visibility\n• Better player retention\n• Community growth", Inline: true},
				},
				Buttons: []Button{{Label: "Boost Now", Style: "Primary", Action: "none"}},
			},
			Status: Embed{
				Enabled:     true,
				Title:       "📊 {server-name} - Server Status",
				Description: "Current status of the server",
				Color:       DefaultColor,
				Footer:      "ERLC Server Status",
				Fields: []Field{
					{Name: "🎮 Server Information", Value: "**Name:** {server-name}\n**Join Key:** `{join-key}`\n**Owner ID:** {owner-id}", Inline: true},
					{Name: "👥 Players", Value: "**Current:** {current-players}\n**Maximum:** {max-players}\n**Utilization:** {utilization}%", Inline: true},
					{Name: "⚙️ Settings", Value: "**Team Balance:** {team-balance}\n**Verification:** {verification}", Inline: true},
				},
				Buttons: []Button{{Label: "Refresh Status", Style: "Secondary", Action: "none"}},
			},
		},
		Commands: Commands{SSU: true, Boost: true, Command: true, Status: true},
	}
}
