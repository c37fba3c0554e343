// Package template expands {token} placeholders in user-configurable text.
// Replacement is literal. Unknown tokens pass through untouched and missing
// data falls back to fixed strings, so rendering never fails.
package template

import (
	"math"
	"strconv"
	"strings"

	"github.com/keshon/warden/internal/prc"
)

const maxListedPlayers = 10

// Context is the data available to ERLC templates. Both fields may be nil.
type Context struct {
	Server  *prc.Server
	Players []prc.Player
}

// Render expands every ERLC token in tpl.
func Render(tpl string, ctx Context) string {
	if tpl == "" {
		return ""
	}
	return Expand(tpl, Vars(ctx))
}

// Expand replaces each {key} in tpl with vars[key]. All occurrences are
// replaced.
func Expand(tpl string, vars map[string]string) string {
	if tpl == "" || len(vars) == 0 {
		return tpl
	}
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(tpl)
}

// Vars resolves the ERLC vocabulary for ctx.
func Vars(ctx Context) map[string]string {
	s := ctx.Server
	if s == nil {
		s = &prc.Server{}
	}

	vars := map[string]string{
		"server-name":     fallback(s.Name, "Unknown Server"),
		"current-players": strconv.Itoa(s.CurrentPlayers),
		"max-players":     strconv.Itoa(s.MaxPlayers),
		"join-key":        fallback(s.JoinKey, "N/A"),
		"owner-id":        "N/A",
		"team-balance":    "❌ Disabled",
		"verification":    fallback(s.AccVerifiedReq, "N/A"),
		"utilization":     strconv.Itoa(Utilization(s.CurrentPlayers, s.MaxPlayers)),
		"co-owners":       "None",
		"player-list":     PlayerList(ctx.Players),
		"player-count":    strconv.Itoa(len(ctx.Players)),
	}
	if s.OwnerID != 0 {
		vars["owner-id"] = strconv.FormatInt(s.OwnerID, 10)
	}
	if s.TeamBalance {
		vars["team-balance"] = "✅ Enabled"
	}
	if len(s.CoOwnerIDs) > 0 {
		ids := make([]string, len(s.CoOwnerIDs))
		for i, id := range s.CoOwnerIDs {
			ids[i] = strconv.FormatInt(id, 10)
		}
		vars["co-owners"] = strings.Join(ids, ", ")
	}
	return vars
}

// Utilization is current/max as a rounded percentage; a zero max counts as one.
func Utilization(current, maxPlayers int) int {
	return int(math.Round(float64(current) / float64(max(maxPlayers, 1)) * 100))
}

// PlayerList formats at most ten players, one per line.
func PlayerList(players []prc.Player) string {
	if len(players) == 0 {
		return "No players online"
	}
	lines := make([]string, 0, min(len(players), maxListedPlayers))
	for _, p := range players[:min(len(players), maxListedPlayers)] {
		name, _, _ := strings.Cut(p.Player, ":")
		name = fallback(name, "Unknown")

		perm := fallback(strings.Replace(p.Permission, "Server ", "", 1), "Unknown")

		line := "**" + name + "** - " + perm
		if p.Team != "" {
			line += " (" + p.Team + ")"
		}
		if p.Callsign != "" {
			line += " [" + p.Callsign + "]"
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

// Welcome resolves the welcome message vocabulary.
func Welcome(serverName string, memberCount int, mention string) map[string]string {
	return map[string]string{
		"server":  serverName,
		"member":  strconv.Itoa(memberCount),
		"mention": mention,
	}
}

func fallback(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
