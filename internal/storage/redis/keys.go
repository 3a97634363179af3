package redis

import (
	"fmt"

	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/model"
)

// Key prefix for all tracker data
const keyPrefix = "rtrack"

// playerKey returns the Redis key for a Player
func playerKey(id model.PlayerID) string {
	return fmt.Sprintf("%s:player:%d", keyPrefix, id)
}

// playerNameIndexKey returns the Redis key for the (group, name) -> player_id index
func playerNameIndexKey(group model.GroupID, name string) string {
	return fmt.Sprintf("%s:idx:player_name:%d:%s", keyPrefix, group, name)
}

// groupPlayersKey returns the Redis key for the SET of player ids in a group
func groupPlayersKey(group model.GroupID) string {
	return fmt.Sprintf("%s:idx:group_players:%d", keyPrefix, group)
}

// sessionsKey returns the Redis key for the HASH of a player's sessions (id -> json)
func sessionsKey(playerID model.PlayerID) string {
	return fmt.Sprintf("%s:sessions:%d", keyPrefix, playerID)
}

// openSessionKey returns the Redis key holding the id of a player's open session
func openSessionKey(playerID model.PlayerID) string {
	return fmt.Sprintf("%s:open_session:%d", keyPrefix, playerID)
}

// groupConfigKey returns the Redis key for a GroupConfig
func groupConfigKey(group model.GroupID) string {
	return fmt.Sprintf("%s:group:%d", keyPrefix, group)
}

// groupsIndexKey returns the Redis key for the SET of configured groups
func groupsIndexKey() string {
	return fmt.Sprintf("%s:idx:groups", keyPrefix)
}

// tradesKey returns the Redis key for the HASH of a group's trades (id -> json)
func tradesKey(group model.GroupID) string {
	return fmt.Sprintf("%s:trades:%d", keyPrefix, group)
}

// listingsKey returns the Redis key for the ZSET of a group's market
// listings (json scored by unix millis)
func listingsKey(group model.GroupID) string {
	return fmt.Sprintf("%s:listings:%d", keyPrefix, group)
}

// deviceKey returns the Redis key for a Device
func deviceKey(group model.GroupID, entityID int64) string {
	return fmt.Sprintf("%s:device:%d:%d", keyPrefix, group, entityID)
}

// groupDevicesKey returns the Redis key for the SET of entity ids paired in a group
func groupDevicesKey(group model.GroupID) string {
	return fmt.Sprintf("%s:idx:group_devices:%d", keyPrefix, group)
}

// sequenceKey returns the Redis key of an id counter
func sequenceKey(entity string) string {
	return fmt.Sprintf("%s:seq:%s", keyPrefix, entity)
}
