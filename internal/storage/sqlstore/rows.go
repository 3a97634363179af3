package sqlstore

import (
	"database/sql"
	"time"

	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/model"
)

type playerRow struct {
	ID       int64         `db:"id" goqu:"skipinsert"`
	GroupID  int64         `db:"group_id"`
	Name     string        `db:"name"`
	Online   bool          `db:"online"`
	LastSeen sql.NullInt64 `db:"last_seen"`
	Teammate bool          `db:"teammate"`
}

func (r playerRow) toModel() *model.Player {
	return &model.Player{
		ID:       model.PlayerID(r.ID),
		Group:    model.GroupID(r.GroupID),
		Name:     r.Name,
		Online:   r.Online,
		LastSeen: fromNullMillis(r.LastSeen),
		Teammate: r.Teammate,
	}
}

type sessionRow struct {
	ID        int64         `db:"id" goqu:"skipinsert"`
	PlayerID  int64         `db:"player_id"`
	StartTime int64         `db:"start_time"`
	EndTime   sql.NullInt64 `db:"end_time"`
}

func (r sessionRow) toModel() model.Session {
	return model.Session{
		ID:       model.SessionID(r.ID),
		PlayerID: model.PlayerID(r.PlayerID),
		Start:    fromMillis(r.StartTime),
		End:      fromNullMillis(r.EndTime),
	}
}

type groupConfigRow struct {
	GroupID    int64         `db:"group_id"`
	WipeEpoch  sql.NullInt64 `db:"wipe_epoch"`
	PollTarget string        `db:"poll_target"`
	UpdatedAt  int64         `db:"updated_at"`
}

func (r groupConfigRow) toModel() *model.GroupConfig {
	return &model.GroupConfig{
		Group:      model.GroupID(r.GroupID),
		WipeEpoch:  fromNullMillis(r.WipeEpoch),
		PollTarget: r.PollTarget,
		UpdatedAt:  fromMillis(r.UpdatedAt),
	}
}

type tradeRow struct {
	ID         int64  `db:"id" goqu:"skipinsert"`
	GroupID    int64  `db:"group_id"`
	Buyer      string `db:"buyer"`
	Seller     string `db:"seller"`
	Item       string `db:"item"`
	Quantity   int    `db:"quantity"`
	CostItem   string `db:"cost_item"`
	CostAmount int    `db:"cost_amount"`
	TradedAt   int64  `db:"traded_at"`
}

func (r tradeRow) toModel() *model.Trade {
	return &model.Trade{
		ID:         r.ID,
		Group:      model.GroupID(r.GroupID),
		Buyer:      r.Buyer,
		Seller:     r.Seller,
		Item:       r.Item,
		Quantity:   r.Quantity,
		CostItem:   r.CostItem,
		CostAmount: r.CostAmount,
		At:         fromMillis(r.TradedAt),
	}
}

type listingRow struct {
	ID         int64  `db:"id" goqu:"skipinsert"`
	GroupID    int64  `db:"group_id"`
	Shop       string `db:"shop"`
	Item       string `db:"item"`
	Quantity   int    `db:"quantity"`
	CostItem   string `db:"cost_item"`
	CostAmount int    `db:"cost_amount"`
	Stock      int    `db:"stock"`
	SeenAt     int64  `db:"seen_at"`
}

func (r listingRow) toModel() *model.MarketListing {
	return &model.MarketListing{
		ID:         r.ID,
		Group:      model.GroupID(r.GroupID),
		Shop:       r.Shop,
		Item:       r.Item,
		Quantity:   r.Quantity,
		CostItem:   r.CostItem,
		CostAmount: r.CostAmount,
		Stock:      r.Stock,
		At:         fromMillis(r.SeenAt),
	}
}

type deviceRow struct {
	GroupID  int64  `db:"group_id"`
	EntityID int64  `db:"entity_id"`
	Name     string `db:"name"`
	Kind     string `db:"kind"`
}

func (r deviceRow) toModel() *model.Device {
	return &model.Device{
		Group:    model.GroupID(r.GroupID),
		EntityID: r.EntityID,
		Name:     r.Name,
		Kind:     model.DeviceKind(r.Kind),
	}
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// millisOrNil returns a value goqu renders as NULL for a nil time
func millisOrNil(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixMilli()
}

func fromNullMillis(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := fromMillis(n.Int64)
	return &t
}
