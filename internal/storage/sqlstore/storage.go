package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"
	_ "github.com/glebarez/go-sqlite"
	_ "github.com/lib/pq"

	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/model"
	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/storage"
)

// Storage is a relational implementation of the storage interface backed by
// sqlite or postgres. Multi-record writes run inside one database transaction.
type Storage struct {
	raw    *sql.DB
	db     *goqu.Database
	driver string
}

// Ensure Storage implements the interface
var _ storage.Storage = (*Storage)(nil)

// New opens the database described by cfg and applies the schema
func New(ctx context.Context, cfg Config) (*Storage, error) {
	raw, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("opening %s database: %w", cfg.Driver, err)
	}
	if cfg.MaxOpenConns > 0 {
		raw.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		raw.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if err := raw.PingContext(ctx); err != nil {
		_ = raw.Close()
		return nil, fmt.Errorf("connecting to %s database: %w", cfg.Driver, err)
	}

	s, err := NewWithDB(ctx, raw, cfg.Driver)
	if err != nil {
		_ = raw.Close()
		return nil, err
	}
	return s, nil
}

// NewWithDB wraps an already opened database handle and applies the schema
func NewWithDB(ctx context.Context, raw *sql.DB, driver string) (*Storage, error) {
	var dialect string
	switch driver {
	case DriverSQLite:
		dialect = "sqlite3"
	case DriverPostgres:
		dialect = "postgres"
	default:
		return nil, fmt.Errorf("unsupported sql driver %q", driver)
	}

	s := &Storage{raw: raw, db: goqu.New(dialect, raw), driver: driver}
	if err := s.migrate(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Close releases the underlying connection pool
func (s *Storage) Close() error {
	return s.raw.Close()
}

func (s *Storage) migrate(ctx context.Context) error {
	schema := sqliteSchema
	if s.driver == DriverPostgres {
		schema = postgresSchema
	}
	for _, stmt := range schema {
		if _, err := s.raw.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("applying schema: %w", err)
		}
	}
	return nil
}

// inTx runs fn inside a transaction, committing only when fn succeeds
func (s *Storage) inTx(ctx context.Context, fn func(tx *goqu.TxDatabase) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// insertID inserts one record and returns its generated id.
// The sqlite dialect cannot render RETURNING so it reads LastInsertId instead.
func (s *Storage) insertID(ctx context.Context, tx *goqu.TxDatabase, table string, rec goqu.Record) (int64, error) {
	ds := tx.Insert(table).Rows(rec)
	if s.driver == DriverPostgres {
		var id int64
		if _, err := ds.Returning("id").Executor().ScanValContext(ctx, &id); err != nil {
			return 0, err
		}
		return id, nil
	}
	res, err := ds.Executor().ExecContext(ctx)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// Player operations

func (s *Storage) GetPlayer(ctx context.Context, id model.PlayerID) (*model.Player, error) {
	var row playerRow
	found, err := s.db.From(tablePlayers).Where(goqu.C("id").Eq(int64(id))).ScanStructContext(ctx, &row)
	if err != nil {
		return nil, fmt.Errorf("loading player %s: %w", id, err)
	}
	if !found {
		return nil, model.ErrPlayerNotFound
	}
	return row.toModel(), nil
}

func (s *Storage) GetPlayerByName(ctx context.Context, group model.GroupID, name string) (*model.Player, error) {
	row, found, err := findPlayerByName(ctx, s.db.From(tablePlayers), group, name)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, model.ErrPlayerNotFound
	}
	return row.toModel(), nil
}

func (s *Storage) ListPlayers(ctx context.Context, group model.GroupID) ([]*model.Player, error) {
	var rows []playerRow
	err := s.db.From(tablePlayers).
		Where(goqu.C("group_id").Eq(int64(group))).
		Order(goqu.C("name").Asc()).
		ScanStructsContext(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("listing players: %w", err)
	}
	players := make([]*model.Player, 0, len(rows))
	for _, row := range rows {
		players = append(players, row.toModel())
	}
	return players, nil
}

func (s *Storage) EnsurePlayer(ctx context.Context, group model.GroupID, name string, teammate *bool) (*model.Player, error) {
	var player *model.Player
	err := s.inTx(ctx, func(tx *goqu.TxDatabase) error {
		row, err := s.upsertPlayer(ctx, tx, group, name)
		if err != nil {
			return err
		}
		if teammate != nil && row.Teammate != *teammate {
			row.Teammate = *teammate
			_, err := tx.Update(tablePlayers).
				Set(goqu.Record{"teammate": row.Teammate}).
				Where(goqu.C("id").Eq(row.ID)).
				Executor().ExecContext(ctx)
			if err != nil {
				return fmt.Errorf("updating teammate flag: %w", err)
			}
		}
		player = row.toModel()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return player, nil
}

func (s *Storage) RenamePlayer(ctx context.Context, id model.PlayerID, name string) error {
	return s.inTx(ctx, func(tx *goqu.TxDatabase) error {
		var row playerRow
		found, err := tx.From(tablePlayers).Where(goqu.C("id").Eq(int64(id))).ScanStructContext(ctx, &row)
		if err != nil {
			return fmt.Errorf("loading player %s: %w", id, err)
		}
		if !found {
			return model.ErrPlayerNotFound
		}
		_, taken, err := findPlayerByName(ctx, tx.From(tablePlayers), model.GroupID(row.GroupID), name)
		if err != nil {
			return err
		}
		if taken {
			return model.ErrPlayerExists
		}
		_, err = tx.Update(tablePlayers).
			Set(goqu.Record{"name": name}).
			Where(goqu.C("id").Eq(row.ID)).
			Executor().ExecContext(ctx)
		if err != nil {
			return fmt.Errorf("renaming player %s: %w", id, err)
		}
		return nil
	})
}

func findPlayerByName(ctx context.Context, ds *goqu.SelectDataset, group model.GroupID, name string) (playerRow, bool, error) {
	var row playerRow
	found, err := ds.Where(
		goqu.C("group_id").Eq(int64(group)),
		goqu.C("name").Eq(name),
	).ScanStructContext(ctx, &row)
	if err != nil {
		return row, false, fmt.Errorf("looking up player %q: %w", name, err)
	}
	return row, found, nil
}

// upsertPlayer returns the stored row, inserting it when absent
func (s *Storage) upsertPlayer(ctx context.Context, tx *goqu.TxDatabase, group model.GroupID, name string) (playerRow, error) {
	row, found, err := findPlayerByName(ctx, tx.From(tablePlayers), group, name)
	if err != nil || found {
		return row, err
	}
	row = playerRow{GroupID: int64(group), Name: name}
	id, err := s.insertID(ctx, tx, tablePlayers, goqu.Record{
		"group_id": row.GroupID,
		"name":     row.Name,
		"online":   false,
		"teammate": false,
	})
	if err != nil {
		return row, fmt.Errorf("creating player %q: %w", name, err)
	}
	row.ID = id
	return row, nil
}

// Session operations

func (s *Storage) ApplyTransition(ctx context.Context, t *model.Transition) (*model.Player, error) {
	var player *model.Player
	err := s.inTx(ctx, func(tx *goqu.TxDatabase) error {
		row, err := s.upsertPlayer(ctx, tx, t.Group, t.Name)
		if err != nil {
			return err
		}
		row.Online = t.Online
		row.LastSeen = sql.NullInt64{Int64: toMillis(t.At), Valid: true}
		if t.Teammate != nil {
			row.Teammate = *t.Teammate
		}
		_, err = tx.Update(tablePlayers).
			Set(goqu.Record{
				"online":    row.Online,
				"last_seen": row.LastSeen.Int64,
				"teammate":  row.Teammate,
			}).
			Where(goqu.C("id").Eq(row.ID)).
			Executor().ExecContext(ctx)
		if err != nil {
			return fmt.Errorf("updating player %q: %w", t.Name, err)
		}

		if t.CloseOpenAt != nil {
			if err := closeOpenSessions(ctx, tx, row.ID, *t.CloseOpenAt); err != nil {
				return err
			}
		}
		if t.OpenAt != nil {
			open, err := tx.From(tableSessions).
				Where(goqu.C("player_id").Eq(row.ID), goqu.C("end_time").IsNull()).
				CountContext(ctx)
			if err != nil {
				return fmt.Errorf("checking open session: %w", err)
			}
			if open == 0 {
				_, err := s.insertID(ctx, tx, tableSessions, goqu.Record{
					"player_id":  row.ID,
					"start_time": toMillis(*t.OpenAt),
				})
				if err != nil {
					return fmt.Errorf("opening session: %w", err)
				}
			}
		}
		player = row.toModel()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return player, nil
}

func closeOpenSessions(ctx context.Context, tx *goqu.TxDatabase, playerID int64, at time.Time) error {
	_, err := tx.Update(tableSessions).
		Set(goqu.Record{"end_time": toMillis(at)}).
		Where(goqu.C("player_id").Eq(playerID), goqu.C("end_time").IsNull()).
		Executor().ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("closing open session: %w", err)
	}
	return nil
}

func (s *Storage) GetOpenSession(ctx context.Context, playerID model.PlayerID) (*model.Session, error) {
	var row sessionRow
	found, err := s.db.From(tableSessions).
		Where(goqu.C("player_id").Eq(int64(playerID)), goqu.C("end_time").IsNull()).
		ScanStructContext(ctx, &row)
	if err != nil {
		return nil, fmt.Errorf("loading open session: %w", err)
	}
	if !found {
		return nil, model.ErrSessionNotFound
	}
	sess := row.toModel()
	return &sess, nil
}

func (s *Storage) ListSessions(ctx context.Context, playerID model.PlayerID) ([]model.Session, error) {
	if _, err := s.GetPlayer(ctx, playerID); err != nil {
		return nil, err
	}
	var rows []sessionRow
	err := s.db.From(tableSessions).
		Where(goqu.C("player_id").Eq(int64(playerID))).
		Order(goqu.C("start_time").Asc(), goqu.C("id").Asc()).
		ScanStructsContext(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	sessions := make([]model.Session, 0, len(rows))
	for _, row := range rows {
		sessions = append(sessions, row.toModel())
	}
	return sessions, nil
}

// Identity operations

func (s *Storage) MergePlayers(ctx context.Context, m *model.Merge) (*model.MergeReport, error) {
	report := &model.MergeReport{Source: m.Source.ID, Target: m.Target.ID}
	err := s.inTx(ctx, func(tx *goqu.TxDatabase) error {
		source, err := loadGroupPlayer(ctx, tx, m.Group, m.Source.ID)
		if err != nil {
			return err
		}
		target, err := loadGroupPlayer(ctx, tx, m.Group, m.Target.ID)
		if err != nil {
			return err
		}

		if m.CloseSourceSessionAt != nil {
			if err := closeOpenSessions(ctx, tx, source.ID, *m.CloseSourceSessionAt); err != nil {
				return err
			}
		}

		res, err := tx.Update(tableSessions).
			Set(goqu.Record{"player_id": target.ID}).
			Where(goqu.C("player_id").Eq(source.ID)).
			Executor().ExecContext(ctx)
		if err != nil {
			return fmt.Errorf("moving sessions: %w", err)
		}
		moved, err := res.RowsAffected()
		if err != nil {
			return err
		}
		report.SessionsMoved = int(moved)

		rewritten, err := tx.From(tableTrades).Where(
			goqu.C("group_id").Eq(int64(m.Group)),
			goqu.Or(goqu.C("buyer").Eq(source.Name), goqu.C("seller").Eq(source.Name)),
		).CountContext(ctx)
		if err != nil {
			return fmt.Errorf("counting trades: %w", err)
		}
		report.RecordsRewritten = int(rewritten)
		for _, column := range []string{"buyer", "seller"} {
			_, err := tx.Update(tableTrades).
				Set(goqu.Record{column: target.Name}).
				Where(goqu.C("group_id").Eq(int64(m.Group)), goqu.C(column).Eq(source.Name)).
				Executor().ExecContext(ctx)
			if err != nil {
				return fmt.Errorf("rewriting trade %s: %w", column, err)
			}
		}

		_, err = tx.Update(tablePlayers).
			Set(goqu.Record{
				"online":    m.Target.Online,
				"last_seen": millisOrNil(m.Target.LastSeen),
				"teammate":  m.Target.Teammate,
			}).
			Where(goqu.C("id").Eq(target.ID)).
			Executor().ExecContext(ctx)
		if err != nil {
			return fmt.Errorf("updating merge target: %w", err)
		}

		_, err = tx.Delete(tablePlayers).Where(goqu.C("id").Eq(source.ID)).Executor().ExecContext(ctx)
		if err != nil {
			return fmt.Errorf("deleting merge source: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

func loadGroupPlayer(ctx context.Context, tx *goqu.TxDatabase, group model.GroupID, id model.PlayerID) (playerRow, error) {
	var row playerRow
	found, err := tx.From(tablePlayers).Where(
		goqu.C("id").Eq(int64(id)),
		goqu.C("group_id").Eq(int64(group)),
	).ScanStructContext(ctx, &row)
	if err != nil {
		return row, fmt.Errorf("loading player %s: %w", id, err)
	}
	if !found {
		return row, model.ErrPlayerNotFound
	}
	return row, nil
}

// Group operations

func (s *Storage) GetGroupConfig(ctx context.Context, group model.GroupID) (*model.GroupConfig, error) {
	var row groupConfigRow
	found, err := s.db.From(tableGroupConfigs).
		Where(goqu.C("group_id").Eq(int64(group))).
		ScanStructContext(ctx, &row)
	if err != nil {
		return nil, fmt.Errorf("loading group config: %w", err)
	}
	if !found {
		return nil, model.ErrGroupNotFound
	}
	return row.toModel(), nil
}

func (s *Storage) SaveGroupConfig(ctx context.Context, cfg *model.GroupConfig) error {
	return s.inTx(ctx, func(tx *goqu.TxDatabase) error {
		rec := goqu.Record{
			"wipe_epoch":  millisOrNil(cfg.WipeEpoch),
			"poll_target": cfg.PollTarget,
			"updated_at":  toMillis(cfg.UpdatedAt),
		}
		res, err := tx.Update(tableGroupConfigs).
			Set(rec).
			Where(goqu.C("group_id").Eq(int64(cfg.Group))).
			Executor().ExecContext(ctx)
		if err != nil {
			return fmt.Errorf("updating group config: %w", err)
		}
		if n, err := res.RowsAffected(); err != nil || n > 0 {
			return err
		}
		rec["group_id"] = int64(cfg.Group)
		if _, err := tx.Insert(tableGroupConfigs).Rows(rec).Executor().ExecContext(ctx); err != nil {
			return fmt.Errorf("inserting group config: %w", err)
		}
		return nil
	})
}

func (s *Storage) ListGroupConfigs(ctx context.Context) ([]*model.GroupConfig, error) {
	var rows []groupConfigRow
	if err := s.db.From(tableGroupConfigs).Order(goqu.C("group_id").Asc()).ScanStructsContext(ctx, &rows); err != nil {
		return nil, fmt.Errorf("listing group configs: %w", err)
	}
	configs := make([]*model.GroupConfig, 0, len(rows))
	for _, row := range rows {
		configs = append(configs, row.toModel())
	}
	return configs, nil
}

func (s *Storage) ResetGroup(ctx context.Context, group model.GroupID) (*model.ResetReport, error) {
	report := &model.ResetReport{}
	err := s.inTx(ctx, func(tx *goqu.TxDatabase) error {
		groupPlayers := tx.From(tablePlayers).Select("id").Where(goqu.C("group_id").Eq(int64(group)))

		deletes := []struct {
			ds    *goqu.DeleteDataset
			count *int
		}{
			{tx.Delete(tableSessions).Where(goqu.C("player_id").In(groupPlayers)), &report.Sessions},
			{tx.Delete(tablePlayers).Where(goqu.C("group_id").Eq(int64(group))), &report.Players},
			{tx.Delete(tableTrades).Where(goqu.C("group_id").Eq(int64(group))), &report.Trades},
			{tx.Delete(tableListings).Where(goqu.C("group_id").Eq(int64(group))), &report.Listings},
		}
		for _, d := range deletes {
			res, err := d.ds.Executor().ExecContext(ctx)
			if err != nil {
				return fmt.Errorf("resetting group %s: %w", group, err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			*d.count = int(n)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

// Economy operations

func (s *Storage) SaveTrade(ctx context.Context, trade *model.Trade) error {
	return s.inTx(ctx, func(tx *goqu.TxDatabase) error {
		id, err := s.insertID(ctx, tx, tableTrades, goqu.Record{
			"group_id":    int64(trade.Group),
			"buyer":       trade.Buyer,
			"seller":      trade.Seller,
			"item":        trade.Item,
			"quantity":    trade.Quantity,
			"cost_item":   trade.CostItem,
			"cost_amount": trade.CostAmount,
			"traded_at":   toMillis(trade.At),
		})
		if err != nil {
			return fmt.Errorf("saving trade: %w", err)
		}
		trade.ID = id
		return nil
	})
}

func (s *Storage) ListTrades(ctx context.Context, group model.GroupID) ([]*model.Trade, error) {
	var rows []tradeRow
	err := s.db.From(tableTrades).
		Where(goqu.C("group_id").Eq(int64(group))).
		Order(goqu.C("id").Asc()).
		ScanStructsContext(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("listing trades: %w", err)
	}
	trades := make([]*model.Trade, 0, len(rows))
	for _, row := range rows {
		trades = append(trades, row.toModel())
	}
	return trades, nil
}

func (s *Storage) SaveListings(ctx context.Context, listings []*model.MarketListing) error {
	return s.inTx(ctx, func(tx *goqu.TxDatabase) error {
		for _, l := range listings {
			id, err := s.insertID(ctx, tx, tableListings, goqu.Record{
				"group_id":    int64(l.Group),
				"shop":        l.Shop,
				"item":        l.Item,
				"quantity":    l.Quantity,
				"cost_item":   l.CostItem,
				"cost_amount": l.CostAmount,
				"stock":       l.Stock,
				"seen_at":     toMillis(l.At),
			})
			if err != nil {
				return fmt.Errorf("saving listing: %w", err)
			}
			l.ID = id
		}
		return nil
	})
}

func (s *Storage) SearchListings(ctx context.Context, group model.GroupID, term string, since time.Time) ([]*model.MarketListing, error) {
	var rows []listingRow
	err := s.db.From(tableListings).
		Where(
			goqu.C("group_id").Eq(int64(group)),
			goqu.C("seen_at").Gt(toMillis(since)),
		).
		Order(goqu.C("seen_at").Desc(), goqu.C("id").Desc()).
		ScanStructsContext(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("searching listings: %w", err)
	}
	// LIKE wildcards and case rules differ between dialects; match in Go
	term = strings.ToLower(term)
	var listings []*model.MarketListing
	for _, row := range rows {
		if strings.Contains(strings.ToLower(row.Item), term) {
			listings = append(listings, row.toModel())
		}
	}
	return listings, nil
}

// Device operations

func (s *Storage) SaveDevice(ctx context.Context, device *model.Device) error {
	return s.inTx(ctx, func(tx *goqu.TxDatabase) error {
		res, err := tx.Update(tableDevices).
			Set(goqu.Record{"name": device.Name, "kind": string(device.Kind)}).
			Where(goqu.C("group_id").Eq(int64(device.Group)), goqu.C("entity_id").Eq(device.EntityID)).
			Executor().ExecContext(ctx)
		if err != nil {
			return fmt.Errorf("updating device: %w", err)
		}
		if n, err := res.RowsAffected(); err != nil || n > 0 {
			return err
		}
		_, err = tx.Insert(tableDevices).Rows(goqu.Record{
			"group_id":  int64(device.Group),
			"entity_id": device.EntityID,
			"name":      device.Name,
			"kind":      string(device.Kind),
		}).Executor().ExecContext(ctx)
		if err != nil {
			return fmt.Errorf("inserting device: %w", err)
		}
		return nil
	})
}

func (s *Storage) GetDevice(ctx context.Context, group model.GroupID, entityID int64) (*model.Device, error) {
	var row deviceRow
	found, err := s.db.From(tableDevices).Where(
		goqu.C("group_id").Eq(int64(group)),
		goqu.C("entity_id").Eq(entityID),
	).ScanStructContext(ctx, &row)
	if err != nil {
		return nil, fmt.Errorf("loading device: %w", err)
	}
	if !found {
		return nil, model.ErrDeviceNotFound
	}
	return row.toModel(), nil
}

func (s *Storage) ListDevices(ctx context.Context, group model.GroupID) ([]*model.Device, error) {
	var rows []deviceRow
	err := s.db.From(tableDevices).
		Where(goqu.C("group_id").Eq(int64(group))).
		Order(goqu.C("entity_id").Asc()).
		ScanStructsContext(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("listing devices: %w", err)
	}
	devices := make([]*model.Device, 0, len(rows))
	for _, row := range rows {
		devices = append(devices, row.toModel())
	}
	return devices, nil
}
