package template

import (
	"fmt"
	"regexp"
	"strings"
	"testing"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/keshon/warden/internal/prc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var everyToken = "{server-name} {current-players} {max-players} {join-key} {owner-id} " +
	"{team-balance} {verification} {utilization} {co-owners} {player-list} {player-count}"

func TestUtilization(t *testing.T) {
	tests := []struct {
		cur, max int
		want     string
	}{
		{0, 0, "0"},
		{5, 10, "50"},
		{1, 3, "33"},
		{2, 3, "67"},
		{3, 0, "300"},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d/%d", tt.cur, tt.max), func(t *testing.T) {
			got := Render("{utilization}", Context{Server: &prc.Server{CurrentPlayers: tt.cur, MaxPlayers: tt.max}})
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRenderNilContextUsesFallbacks(t *testing.T) {
	got := Render(everyToken, Context{})
	assert.Equal(t,
		"Unknown Server 0 0 N/A N/A ❌ Disabled N/A 0 None No players online 0",
		got)
}

func TestRenderLeavesNoKnownToken(t *testing.T) {
	known := regexp.MustCompile(`\{(server-name|current-players|max-players|join-key|owner-id|team-balance|verification|utilization|co-owners|player-list|player-count)\}`)

	faker := gofakeit.New(7)
	for i := 0; i < 20; i++ {
		s := &prc.Server{
			Name:           faker.Company(),
			CurrentPlayers: faker.IntRange(0, 40),
			MaxPlayers:     faker.IntRange(0, 40),
			JoinKey:        faker.LetterN(6),
			OwnerID:        faker.Int64(),
		}
		var players []prc.Player
		for j := 0; j < faker.IntRange(0, 15); j++ {
			players = append(players, prc.Player{Player: faker.Username() + ":" + faker.Numerify("#####")})
		}
		out := Render(everyToken+" {"+everyToken+"}", Context{Server: s, Players: players})
		assert.False(t, known.MatchString(out), out)
	}
}

func TestRenderUnknownTokensPassThrough(t *testing.T) {
	got := Render("{server-name} {nope} {server-name}", Context{Server: &prc.Server{Name: "RC"}})
	assert.Equal(t, "RC {nope} RC", got)
}

func TestRenderServerFields(t *testing.T) {
	s := &prc.Server{
		Name: "River City", CurrentPlayers: 5, MaxPlayers: 10, JoinKey: "rcrp",
		OwnerID: 11, CoOwnerIDs: []int64{22, 33}, TeamBalance: true, AccVerifiedReq: "Email",
	}
	got := Render(everyToken, Context{Server: s})
	assert.Equal(t, "River City 5 10 rcrp 11 ✅ Enabled Email 50 22, 33 No players online 0", got)
}

func TestPlayerListFormatAndCap(t *testing.T) {
	players := []prc.Player{
		{Player: "alice:1", Permission: "Server Owner", Team: "Police", Callsign: "1A"},
		{Player: "bob:2", Permission: "Normal"},
		{Player: "", Permission: ""},
	}
	assert.Equal(t,
		"**alice** - Owner (Police) [1A]\n**bob** - Normal\n**Unknown** - Unknown",
		PlayerList(players))

	many := make([]prc.Player, 12)
	for i := range many {
		many[i] = prc.Player{Player: fmt.Sprintf("p%d:%d", i, i), Permission: "Normal"}
	}
	list := PlayerList(many)
	require.Len(t, strings.Split(list, "\n"), 10)
	assert.Equal(t, "12", Render("{player-count}", Context{Players: many}))
}

func TestWelcomeReplacesAllOccurrences(t *testing.T) {
	got := Expand("Hi {mention}! {server} now has {member} members. Bye {mention}", Welcome("Guild", 42, "<@1>"))
	assert.Equal(t, "Hi <@1>! Guild now has 42 members. Bye <@1>", got)
}
