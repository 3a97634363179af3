package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// Output handles formatting output based on the configured format
type Output struct {
	format string
	w      io.Writer
}

// NewOutput creates a new Output formatter writing to w
func NewOutput(format string, w io.Writer) *Output {
	if w == nil {
		w = os.Stdout
	}
	return &Output{format: format, w: w}
}

// Print outputs data in the configured format
func (o *Output) Print(data any) {
	if o.format == "json" {
		o.printJSON(data)
	} else {
		o.printText(data)
	}
}

// PrintError outputs an error
func (o *Output) PrintError(err error) {
	if o.format == "json" {
		errData := map[string]any{
			"error": map[string]string{
				"message": err.Error(),
			},
		}
		data, _ := json.Marshal(errData)
		fmt.Fprintln(os.Stderr, string(data))
	} else {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
	}
}

// PrintMessage outputs a simple message
func (o *Output) PrintMessage(msg string) {
	if o.format == "json" {
		data, _ := json.Marshal(map[string]string{"message": msg})
		fmt.Fprintln(o.w, string(data))
	} else {
		fmt.Fprintln(o.w, msg)
	}
}

func (o *Output) printJSON(data any) {
	enc := json.NewEncoder(o.w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(data)
}

func (o *Output) printText(data any) {
	switch v := data.(type) {
	case HealthResult:
		fmt.Fprintf(o.w, "Status: %s\n", v.Status)
	case StatusResult:
		o.printStatus(v)
	case PlayerList:
		o.printPlayers(v)
	case Player:
		o.printPlayer(v)
	case TransitionResult:
		o.printTransition(v)
	case SessionList:
		o.printSessions(v)
	case PredictionResult:
		o.printPrediction(v)
	case PlaytimeStats:
		o.printStats(v)
	case []LeaderboardEntry:
		o.printLeaderboard(v)
	case MarketSearch:
		o.printMarket(v)
	case EconomyReport:
		o.printEconomy(v)
	case MergeReport:
		o.printMerge(v)
	case DuplicateList:
		o.printDuplicates(v)
	case DedupeReport:
		o.printDedupe(v)
	case WipeResult:
		o.printWipe(v)
	case ReconcileResult:
		o.printReconcile(v)
	case ResetReport:
		fmt.Fprintf(o.w, "Removed %d players, %d sessions, %d trades, %d listings\n", v.Players, v.Sessions, v.Trades, v.Listings)
	case DeviceList:
		o.printDevices(v)
	case TriggerResult:
		fmt.Fprintln(o.w, v.Message)
	case GroupConfig:
		o.printGroupConfig(v)
	case SessionResult:
		fmt.Fprintf(o.w, "Logged in, session expires %s\n", formatTime(&v.ExpiresAt))
	case ServerInfo:
		fmt.Fprintf(o.w, "%s (%s)\n  %s:%d  %s, %d/%d players\n", v.Name, v.ID, v.IP, v.Port, v.Status, v.Players, v.MaxPlayers)
	case Trade:
		fmt.Fprintf(o.w, "Recorded trade %d: %d %s for %d %s\n", v.ID, v.Quantity, v.Item, v.CostAmount, v.CostItem)
	default:
		// Fallback to JSON for unknown types
		o.printJSON(data)
	}
}

// HealthResult response type
type HealthResult struct {
	Status string `json:"status"`
}

// GroupStatus response type
type GroupStatus struct {
	Group      int64      `json:"group"`
	Online     int        `json:"online"`
	Players    int        `json:"players"`
	PollTarget string     `json:"poll_target,omitempty"`
	Polling    bool       `json:"polling"`
	WipeEpoch  *time.Time `json:"wipe_epoch,omitempty"`
}

// StatusResult response type
type StatusResult struct {
	Time   time.Time     `json:"time"`
	Groups []GroupStatus `json:"groups"`
}

// SessionResult is an admin login response
type SessionResult struct {
	Token     string    `json:"session_token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Player response type (matches API)
type Player struct {
	ID       int64      `json:"id"`
	Group    int64      `json:"group"`
	Name     string     `json:"name"`
	Online   bool       `json:"online"`
	LastSeen *time.Time `json:"last_seen,omitempty"`
	Teammate bool       `json:"teammate"`
}

// PlayerList response type
type PlayerList struct {
	Group   int64    `json:"group"`
	Players []Player `json:"players"`
}

// TransitionResult response type
type TransitionResult struct {
	Player         *Player `json:"player"`
	Opened         bool    `json:"opened"`
	Closed         bool    `json:"closed"`
	Continued      bool    `json:"continued"`
	ZombieRepaired bool    `json:"zombie_repaired"`
}

// Session response type
type Session struct {
	ID    int64      `json:"id"`
	Start time.Time  `json:"start"`
	End   *time.Time `json:"end,omitempty"`
}

// SessionList response type
type SessionList struct {
	Player   Player     `json:"player"`
	Since    *time.Time `json:"since,omitempty"`
	Sessions []Session  `json:"sessions"`
}

// Prediction response type
type Prediction struct {
	At            time.Time `json:"at"`
	Hour          int       `json:"hour"`
	Minute        int       `json:"minute"`
	UntilSeconds  int64     `json:"until_seconds"`
	Concentration float64   `json:"concentration"`
	Confidence    string    `json:"confidence"`
	Samples       int       `json:"samples"`
	Overdue       bool      `json:"overdue"`
}

// PredictionResult response type
type PredictionResult struct {
	Status     string      `json:"status"`
	Player     *Player     `json:"player,omitempty"`
	Prediction *Prediction `json:"prediction,omitempty"`
}

// PlaytimeStats response type
type PlaytimeStats struct {
	Player       string     `json:"player"`
	Online       bool       `json:"online"`
	LastSeen     *time.Time `json:"last_seen,omitempty"`
	Sessions     int        `json:"sessions"`
	TotalHours   float64    `json:"total_hours"`
	DaysTracked  int        `json:"days_tracked"`
	WeeklyHours  float64    `json:"weekly_hours"`
	WeekendRatio float64    `json:"weekend_ratio"`
	TopStartHour int        `json:"top_start_hour"`
	Region       string     `json:"region"`
	Tags         []string   `json:"tags"`
}

// LeaderboardEntry response type
type LeaderboardEntry struct {
	Rank         int    `json:"rank"`
	Player       string `json:"player"`
	Online       bool   `json:"online"`
	TotalSeconds int64  `json:"total_seconds"`
}

// ItemStats response type
type ItemStats struct {
	Item         string `json:"item"`
	CostItem     string `json:"cost_item"`
	QuantitySold int    `json:"quantity_sold"`
	Volume       int    `json:"volume"`
	Trades       int    `json:"trades"`
}

// MarketListing response type
type MarketListing struct {
	ID         int64     `json:"id"`
	Shop       string    `json:"shop"`
	Item       string    `json:"item"`
	Quantity   int       `json:"quantity"`
	CostItem   string    `json:"cost_item"`
	CostAmount int       `json:"cost_amount"`
	Stock      int       `json:"stock"`
	At         time.Time `json:"at"`
}

// MarketSearch response type
type MarketSearch struct {
	Query    string          `json:"query"`
	Since    time.Time       `json:"since"`
	Shops    int             `json:"shops"`
	Listings []MarketListing `json:"listings"`
}

// EconomyReport response type
type EconomyReport struct {
	Since    *time.Time  `json:"since,omitempty"`
	Trades   int         `json:"trades"`
	TopItems []ItemStats `json:"top_items"`
}

// MergeReport response type
type MergeReport struct {
	Source           int64 `json:"source"`
	Target           int64 `json:"target"`
	SessionsMoved    int   `json:"sessions_moved"`
	RecordsRewritten int   `json:"records_rewritten"`
}

// Duplicate response type
type Duplicate struct {
	Source        Player  `json:"source"`
	Target        *Player `json:"target,omitempty"`
	CandidateName string  `json:"candidate_name"`
}

// DuplicateList response type
type DuplicateList struct {
	Duplicates []Duplicate `json:"duplicates"`
}

// Rename response type
type Rename struct {
	PlayerID int64  `json:"player_id"`
	From     string `json:"from"`
	To       string `json:"to"`
}

// DedupeReport response type
type DedupeReport struct {
	Merged  []MergeReport `json:"merged"`
	Renamed []Rename      `json:"renamed"`
}

// WipeResult response type
type WipeResult struct {
	Group     int64      `json:"group"`
	WipeEpoch *time.Time `json:"wipe_epoch"`
}

// CycleReport response type
type CycleReport struct {
	At             time.Time `json:"at"`
	Authoritative  int       `json:"authoritative"`
	MarkedOffline  []string  `json:"marked_offline"`
	MarkedOnline   []string  `json:"marked_online"`
	IgnoredUnknown []string  `json:"ignored_unknown"`
}

// ReconcileResult response type
type ReconcileResult struct {
	Report      CycleReport `json:"report"`
	Corrections int         `json:"corrections"`
}

// ResetReport response type
type ResetReport struct {
	Players  int `json:"players"`
	Sessions int `json:"sessions"`
	Trades   int `json:"trades"`
	Listings int `json:"listings"`
}

// Device response type
type Device struct {
	EntityID int64  `json:"entity_id"`
	Name     string `json:"name"`
	Kind     string `json:"kind"`
}

// TriggerResult is the outcome of a device state change
type TriggerResult struct {
	Device  Device `json:"device"`
	Value   bool   `json:"value"`
	Message string `json:"message"`
}

// GroupConfig response type
type GroupConfig struct {
	Group      int64      `json:"group"`
	WipeEpoch  *time.Time `json:"wipe_epoch,omitempty"`
	PollTarget string     `json:"poll_target,omitempty"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// ServerInfo response type
type ServerInfo struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	IP         string `json:"ip"`
	Port       int    `json:"port"`
	Players    int    `json:"players"`
	MaxPlayers int    `json:"max_players"`
	Status     string `json:"status"`
}

// Trade response type
type Trade struct {
	ID         int64     `json:"id"`
	Buyer      string    `json:"buyer"`
	Seller     string    `json:"seller"`
	Item       string    `json:"item"`
	Quantity   int       `json:"quantity"`
	CostItem   string    `json:"cost_item"`
	CostAmount int       `json:"cost_amount"`
	At         time.Time `json:"at"`
}

// DeviceList response type
type DeviceList struct {
	Devices []Device `json:"devices"`
}

const timeLayout = "2006-01-02 15:04 MST"

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Local().Format(timeLayout)
}

func onlineLabel(online bool) string {
	if online {
		return "online"
	}
	return "offline"
}

func (o *Output) printStatus(s StatusResult) {
	if len(s.Groups) == 0 {
		fmt.Fprintln(o.w, "No groups configured")
		return
	}
	for _, g := range s.Groups {
		fmt.Fprintf(o.w, "Group %d: %d/%d online", g.Group, g.Online, g.Players)
		if g.PollTarget != "" {
			fmt.Fprintf(o.w, ", polling server %s", g.PollTarget)
			if !g.Polling {
				fmt.Fprint(o.w, " (idle)")
			}
		}
		if g.WipeEpoch != nil {
			fmt.Fprintf(o.w, ", wiped %s", formatTime(g.WipeEpoch))
		}
		fmt.Fprintln(o.w)
	}
}

func (o *Output) printPlayer(p Player) {
	teammate := ""
	if p.Teammate {
		teammate = " [team]"
	}
	fmt.Fprintf(o.w, "%-6d %-24s %-8s last seen %s%s\n", p.ID, p.Name, onlineLabel(p.Online), formatTime(p.LastSeen), teammate)
}

func (o *Output) printPlayers(l PlayerList) {
	fmt.Fprintf(o.w, "Players (%d):\n", len(l.Players))
	for _, p := range l.Players {
		o.printPlayer(p)
	}
}

func (o *Output) printTransition(t TransitionResult) {
	if t.Player != nil {
		o.printPlayer(*t.Player)
	}
	switch {
	case t.ZombieRepaired:
		fmt.Fprintln(o.w, "Abandoned session closed, new session opened")
	case t.Opened:
		fmt.Fprintln(o.w, "Session opened")
	case t.Closed:
		fmt.Fprintln(o.w, "Session closed")
	case t.Continued:
		fmt.Fprintln(o.w, "Session continued")
	default:
		fmt.Fprintln(o.w, "No change")
	}
}

func (o *Output) printSessions(l SessionList) {
	fmt.Fprintf(o.w, "Sessions of %s", l.Player.Name)
	if l.Since != nil {
		fmt.Fprintf(o.w, " since %s", formatTime(l.Since))
	}
	fmt.Fprintf(o.w, " (%d):\n", len(l.Sessions))
	for _, s := range l.Sessions {
		end := "now"
		d := time.Since(s.Start)
		if s.End != nil {
			end = formatTime(s.End)
			d = s.End.Sub(s.Start)
		}
		fmt.Fprintf(o.w, "  %s -> %s (%s)\n", formatTime(&s.Start), end, d.Round(time.Minute))
	}
}

func (o *Output) printPrediction(p PredictionResult) {
	name := ""
	if p.Player != nil {
		name = p.Player.Name
	}
	if p.Prediction == nil {
		fmt.Fprintf(o.w, "Not enough sessions to predict %s\n", name)
		return
	}
	pr := p.Prediction
	fmt.Fprintf(o.w, "%s usually comes online around %02d:%02d UTC\n", name, pr.Hour, pr.Minute)
	if pr.Overdue {
		fmt.Fprintln(o.w, "Expected return is overdue")
	} else {
		fmt.Fprintf(o.w, "Next: %s (in %s)\n", formatTime(&pr.At), (time.Duration(pr.UntilSeconds) * time.Second).Round(time.Minute))
	}
	fmt.Fprintf(o.w, "Confidence: %s (r=%.2f, %d samples)\n", pr.Confidence, pr.Concentration, pr.Samples)
}

func (o *Output) printStats(s PlaytimeStats) {
	fmt.Fprintf(o.w, "Player: %s (%s)\n", s.Player, onlineLabel(s.Online))
	fmt.Fprintf(o.w, "Sessions: %d over %d days\n", s.Sessions, s.DaysTracked)
	fmt.Fprintf(o.w, "Total: %.1f h", s.TotalHours)
	if s.WeeklyHours > 0 {
		fmt.Fprintf(o.w, ", %.1f h/week", s.WeeklyHours)
	}
	fmt.Fprintln(o.w)
	fmt.Fprintf(o.w, "Weekend share: %.0f%%\n", s.WeekendRatio*100)
	fmt.Fprintf(o.w, "Usual start: %02d:00 UTC (%s)\n", s.TopStartHour, s.Region)
	if len(s.Tags) > 0 {
		fmt.Fprintf(o.w, "Tags: %s\n", strings.Join(s.Tags, ", "))
	}
}

func (o *Output) printLeaderboard(entries []LeaderboardEntry) {
	if len(entries) == 0 {
		fmt.Fprintln(o.w, "No playtime recorded")
		return
	}
	for _, e := range entries {
		d := time.Duration(e.TotalSeconds) * time.Second
		fmt.Fprintf(o.w, "%2d. %-24s %8.1f h  %s\n", e.Rank, e.Player, d.Hours(), onlineLabel(e.Online))
	}
}

func (o *Output) printEconomy(r EconomyReport) {
	fmt.Fprintf(o.w, "Trades: %d", r.Trades)
	if r.Since != nil {
		fmt.Fprintf(o.w, " since %s", formatTime(r.Since))
	}
	fmt.Fprintln(o.w)
	for _, it := range r.TopItems {
		fmt.Fprintf(o.w, "  %-20s %6d sold for %6d %s (%d trades)\n", it.Item, it.QuantitySold, it.Volume, it.CostItem, it.Trades)
	}
}

func (o *Output) printMarket(m MarketSearch) {
	if len(m.Listings) == 0 {
		fmt.Fprintf(o.w, "No recent listings for %q\n", m.Query)
		return
	}
	fmt.Fprintf(o.w, "Listings for %q (%d shops):\n", m.Query, m.Shops)
	if m.Shops > len(m.Listings) {
		fmt.Fprintf(o.w, "  showing the %d most recent\n", len(m.Listings))
	}
	for _, l := range m.Listings {
		fmt.Fprintf(o.w, "  %-24s %4d x %-18s for %5d %-8s stock %d  (%s)\n",
			l.Shop, l.Quantity, l.Item, l.CostAmount, l.CostItem, l.Stock, formatTime(&l.At))
	}
}

func (o *Output) printMerge(m MergeReport) {
	fmt.Fprintf(o.w, "Merged player %d into %d: %d sessions moved, %d records rewritten\n",
		m.Source, m.Target, m.SessionsMoved, m.RecordsRewritten)
}

func (o *Output) printDuplicates(l DuplicateList) {
	if len(l.Duplicates) == 0 {
		fmt.Fprintln(o.w, "No legacy duplicates")
		return
	}
	for _, d := range l.Duplicates {
		if d.Target != nil {
			fmt.Fprintf(o.w, "%q (%d) duplicates %q (%d)\n", d.Source.Name, d.Source.ID, d.Target.Name, d.Target.ID)
		} else {
			fmt.Fprintf(o.w, "%q (%d) will be renamed to %q\n", d.Source.Name, d.Source.ID, d.CandidateName)
		}
	}
}

func (o *Output) printDedupe(r DedupeReport) {
	for _, m := range r.Merged {
		o.printMerge(m)
	}
	for _, rn := range r.Renamed {
		fmt.Fprintf(o.w, "Renamed %q to %q\n", rn.From, rn.To)
	}
	if len(r.Merged) == 0 && len(r.Renamed) == 0 {
		fmt.Fprintln(o.w, "Nothing to repair")
	}
}

func (o *Output) printWipe(w WipeResult) {
	if w.WipeEpoch == nil {
		fmt.Fprintf(o.w, "Group %d: no wipe epoch, full history\n", w.Group)
		return
	}
	fmt.Fprintf(o.w, "Group %d: wiped %s\n", w.Group, formatTime(w.WipeEpoch))
}

func (o *Output) printReconcile(r ReconcileResult) {
	fmt.Fprintf(o.w, "Authoritative online: %d, corrections: %d\n", r.Report.Authoritative, r.Corrections)
	if len(r.Report.MarkedOffline) > 0 {
		fmt.Fprintf(o.w, "Marked offline: %s\n", strings.Join(r.Report.MarkedOffline, ", "))
	}
	if len(r.Report.MarkedOnline) > 0 {
		fmt.Fprintf(o.w, "Marked online: %s\n", strings.Join(r.Report.MarkedOnline, ", "))
	}
	if len(r.Report.IgnoredUnknown) > 0 {
		fmt.Fprintf(o.w, "Unknown (ignored): %s\n", strings.Join(r.Report.IgnoredUnknown, ", "))
	}
}

func (o *Output) printDevices(l DeviceList) {
	if len(l.Devices) == 0 {
		fmt.Fprintln(o.w, "No devices paired")
		return
	}
	for _, d := range l.Devices {
		fmt.Fprintf(o.w, "%-12d %-8s %s\n", d.EntityID, d.Kind, d.Name)
	}
}

func (o *Output) printGroupConfig(c GroupConfig) {
	if c.PollTarget == "" {
		fmt.Fprintf(o.w, "Group %d: polling disabled\n", c.Group)
		return
	}
	fmt.Fprintf(o.w, "Group %d: polling server %s\n", c.Group, c.PollTarget)
}
