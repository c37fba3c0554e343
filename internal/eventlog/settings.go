package eventlog

import "slices"

// Event keys a guild can enable.
const (
	EventMessageDelete     = "messageDelete"
	EventMessageBulkDelete = "messageBulkDelete"
	EventMessageEdit       = "messageEdit"
	EventChannelCreate     = "channelCreate"
	EventChannelDelete     = "channelDelete"
	EventChannelUpdate     = "channelUpdate"
	EventNicknameChange    = "nicknameChange"
	EventMemberRoleUpdate  = "memberRoleUpdate"
)

// EventKeys lists every event key in menu order.
var EventKeys = []string{
	EventMessageDelete,
	EventMessageBulkDelete,
	EventMessageEdit,
	EventChannelCreate,
	EventChannelDelete,
	EventChannelUpdate,
	EventNicknameChange,
	EventMemberRoleUpdate,
}

// Settings is where a guild's log goes and what is logged. New guilds copy
// the document's "default" section when it has one.
type Settings struct {
	ChannelID     string   `json:"channelId"`
	EnabledEvents []string `json:"enabledEvents"`
}

func DefaultSettings() Settings {
	return Settings{EnabledEvents: []string{}}
}

func (s Settings) Enabled(key string) bool {
	return slices.Contains(s.EnabledEvents, key)
}

// Apply sets the enabled events to selected. Events that stay enabled keep
// their position; newly selected ones are appended in selection order.
func (s *Settings) Apply(selected []string) {
	kept := make([]string, 0, len(selected))
	for _, e := range s.EnabledEvents {
		if slices.Contains(selected, e) && !slices.Contains(kept, e) {
			kept = append(kept, e)
		}
	}
	for _, e := range selected {
		if slices.Contains(EventKeys, e) && !slices.Contains(kept, e) {
			kept = append(kept, e)
		}
	}
	s.EnabledEvents = kept
}
