package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/model"
)

// PlayerResolver looks players up by id or display name
type PlayerResolver interface {
	GetPlayer(ctx context.Context, group model.GroupID, id model.PlayerID) (*model.Player, error)
	FindPlayer(ctx context.Context, group model.GroupID, rawName string) (*model.Player, error)
}

// groupID parses the {group} path variable
func groupID(r *http.Request) (model.GroupID, error) {
	return model.ParseGroupID(mux.Vars(r)["group"])
}

// resolvePlayer accepts a numeric player id or a display name. A numeric
// reference that matches no id is looked up as a name.
func resolvePlayer(ctx context.Context, players PlayerResolver, group model.GroupID, ref string) (*model.Player, error) {
	if _, err := strconv.ParseInt(ref, 10, 64); err == nil {
		if id, err := model.ParsePlayerID(ref); err == nil {
			player, err := players.GetPlayer(ctx, group, id)
			if !errors.Is(err, model.ErrPlayerNotFound) {
				return player, err
			}
		}
	}
	return players.FindPlayer(ctx, group, ref)
}

// decode reads a JSON request body into v
func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return NewInvalidRequestError("invalid request body")
	}
	return nil
}

// decodeOptional is decode for routes whose body may be empty
func decodeOptional(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return NewInvalidRequestError("invalid request body")
}
