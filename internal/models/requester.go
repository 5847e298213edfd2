// Package models defines core data structures for requesters, documents, conversations,
// policies, and answers.
package models

import "github.com/hyperjump/kotae/pkg/utils"

const maxWidgetIDBytes = 64

// Requester is the capability set the answer pipeline needs from whoever is asking.
// Authenticated accounts, widget sessions, and social-channel senders all satisfy it;
// the pipeline never inspects which concrete variant it received.
type Requester interface {
	ID() string
	TenantID() string
	// SourceChannel is where the question arrived (api, embed, whatsapp, ...).
	SourceChannel() string
	// DisplayName is the tenant's company display name used in persona replies.
	DisplayName() string
	// BotDisplayName is the name the assistant introduces itself with.
	BotDisplayName() string
	// Role gates restricted documents; empty means unprivileged.
	Role() string
}

// Account is an authenticated platform user.
type Account struct {
	UserID      string
	Tenant      string
	UserRole    string
	CompanyName string
	BotName     string
}

func (a Account) ID() string             { return a.UserID }
func (a Account) TenantID() string       { return a.Tenant }
func (a Account) SourceChannel() string  { return ChannelAPI }
func (a Account) DisplayName() string    { return a.CompanyName }
func (a Account) BotDisplayName() string { return a.BotName }
func (a Account) Role() string           { return a.UserRole }

// WidgetSession is an anonymous visitor of an embedded website widget.
type WidgetSession struct {
	BotID       string
	SessionID   string
	Tenant      string
	CompanyName string
	BotName     string
}

// ID derives a stable requester id from the bot and session, capped at 64 bytes
// on a rune boundary.
func (w WidgetSession) ID() string {
	return utils.TruncateBytes("w_"+w.BotID+"_"+w.SessionID, maxWidgetIDBytes)
}
func (w WidgetSession) TenantID() string       { return w.Tenant }
func (w WidgetSession) SourceChannel() string  { return ChannelEmbed }
func (w WidgetSession) DisplayName() string    { return w.CompanyName }
func (w WidgetSession) BotDisplayName() string { return w.BotName }
func (w WidgetSession) Role() string           { return "" }

// ChannelSender is a social-channel (WhatsApp, Messenger, Instagram) pseudo-identity.
type ChannelSender struct {
	// SenderID is the channel-scoped id; callers hash it before constructing the sender.
	SenderID    string
	Channel     string
	Tenant      string
	CompanyName string
	BotName     string
}

func (c ChannelSender) ID() string             { return c.SenderID }
func (c ChannelSender) TenantID() string       { return c.Tenant }
func (c ChannelSender) SourceChannel() string  { return c.Channel }
func (c ChannelSender) DisplayName() string    { return c.CompanyName }
func (c ChannelSender) BotDisplayName() string { return c.BotName }
func (c ChannelSender) Role() string           { return "" }

// Source channels.
const (
	ChannelAPI   = "api"
	ChannelEmbed = "embed"
)
