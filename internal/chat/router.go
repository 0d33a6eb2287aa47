// Package chat contains the message router: the orchestration of
// validate, persist, roster sync, and deliver for each inbound payload
// on an admitted channel.
package chat

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/eldtechnologies/parley/internal/metrics"
	"github.com/eldtechnologies/parley/internal/models"
	"github.com/eldtechnologies/parley/internal/store"
	"github.com/eldtechnologies/parley/internal/ws"
)

// Notifier delivers events to connected identities. *ws.Registry
// implements it; tests substitute a recorder.
type Notifier interface {
	SendTo(identity string, ev ws.Event) bool
}

// Router processes inbound messages: persist, sync both rosters, then
// deliver or notify the sender of the offline peer. It holds no per-message
// state and is safe for concurrent use from many channel goroutines.
type Router struct {
	store    store.DataStore
	notifier Notifier
	logger   zerolog.Logger
}

// NewRouter creates a message router over the given store and notifier.
func NewRouter(dataStore store.DataStore, notifier Notifier, logger zerolog.Logger) *Router {
	return &Router{
		store:    dataStore,
		notifier: notifier,
		logger:   logger,
	}
}

// HandleInbound runs one payload from the bound sender through the routing
// pipeline. Every fault is converted to a typed error event on the
// sender's channel; none are fatal to the channel.
func (r *Router) HandleInbound(ctx context.Context, sender string, in ws.Inbound) {
	if in.To == "" || in.Message == "" {
		metrics.MessagesRouted.WithLabelValues("malformed").Inc()
		r.notifier.SendTo(sender, ws.ErrorEvent(ws.ErrKindMalformed, "to and message are required"))
		return
	}

	// The persisted message carries a server-assigned timestamp; anything
	// the client supplied is ignored.
	msg, err := r.store.AppendMessage(ctx, sender, in.To, in.Message, time.Now().UTC())
	if err != nil {
		metrics.MessagesRouted.WithLabelValues("storage_error").Inc()
		r.logger.Error().Err(err).Str("from", sender).Str("to", in.To).Msg("message insert failed")
		r.notifier.SendTo(sender, ws.ErrorEvent(ws.ErrKindStorage, "failed to store message"))
		return
	}

	senderUser := r.profileSnapshot(ctx, sender)
	receiverUser := r.profileSnapshot(ctx, in.To)

	r.syncRosters(ctx, sender, senderUser, receiverUser, msg)
	r.deliver(sender, senderUser, msg)
}

// profileSnapshot fetches the current display fields for an identity,
// falling back to the bare identity string when the profile is missing or
// the lookup fails.
func (r *Router) profileSnapshot(ctx context.Context, identity string) *models.User {
	user, err := r.store.GetUser(ctx, identity)
	if err != nil {
		r.logger.Warn().Err(err).Str("user", identity).Msg("profile lookup failed")
	}
	if user == nil {
		return &models.User{Username: identity}
	}
	return user
}

// syncRosters ensures both (sender, receiver) and (receiver, sender) roster
// rows exist with current display snapshots, then records the exchange on
// both. Each write is idempotent; a partial failure leaves history correct
// and is repaired by the next exchange between the pair, but it is still
// reported to the sender rather than swallowed.
func (r *Router) syncRosters(ctx context.Context, sender string, senderUser, receiverUser *models.User, msg *models.Message) {
	ts := time.UnixMilli(msg.Timestamp)

	var failed bool
	if err := r.store.UpsertRosterEntry(ctx, sender, msg.To, receiverUser.DisplayName(), receiverUser.AvatarURL); err != nil {
		failed = true
		r.logger.Error().Err(err).Str("owner", sender).Str("peer", msg.To).Msg("roster upsert failed")
	}
	if err := r.store.UpsertRosterEntry(ctx, msg.To, sender, senderUser.DisplayName(), senderUser.AvatarURL); err != nil {
		failed = true
		r.logger.Error().Err(err).Str("owner", msg.To).Str("peer", sender).Msg("roster upsert failed")
	}
	if err := r.store.RecordExchange(ctx, sender, msg.To, msg.Body, ts); err != nil {
		failed = true
		r.logger.Error().Err(err).Str("owner", sender).Str("peer", msg.To).Msg("roster exchange update failed")
	}
	if err := r.store.RecordExchange(ctx, msg.To, sender, msg.Body, ts); err != nil {
		failed = true
		r.logger.Error().Err(err).Str("owner", msg.To).Str("peer", sender).Msg("roster exchange update failed")
	}

	if failed {
		r.notifier.SendTo(sender, ws.ErrorEvent(ws.ErrKindStorage, "failed to update chat list"))
	}
}

// deliver pushes the message to the receiver when connected and confirms
// to the sender; a disconnected receiver yields exactly one offline notice
// to the sender, and the message stays durably persisted either way.
func (r *Router) deliver(sender string, senderUser *models.User, msg *models.Message) {
	delivered := r.notifier.SendTo(msg.To, ws.MessageEvent(sender, senderUser.DisplayName(), senderUser.AvatarURL, msg.Body, msg.Timestamp))
	if delivered {
		metrics.MessagesRouted.WithLabelValues("delivered").Inc()
		r.notifier.SendTo(sender, ws.SentEvent(msg.To, msg.Body, msg.Timestamp))
		return
	}

	metrics.MessagesRouted.WithLabelValues("offline").Inc()
	r.notifier.SendTo(sender, ws.ErrorEvent(ws.ErrKindOffline, fmt.Sprintf("user %s is not online", msg.To)))
}
