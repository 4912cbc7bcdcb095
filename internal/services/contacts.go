package services

import (
	"context"
	"sort"

	"github.com/linked-app/linked/backend/internal/conversation"
	"github.com/linked-app/linked/backend/internal/models"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

// MatchReader is the part of the contract reader the contact list needs.
type MatchReader interface {
	ProfileReader
	MutualMatches(ctx context.Context, wallet string) ([]string, error)
	MutualSuperMatches(ctx context.Context, wallet string) ([]string, error)
}

// LastMessageReader returns the newest message of a conversation.
type LastMessageReader interface {
	LastMessage(ctx context.Context, a, b string) (*models.Message, error)
}

// ContactService builds the chat sidebar: every mutual match of a wallet with
// its profile and the last message exchanged.
type ContactService struct {
	chain    MatchReader
	messages LastMessageReader
	log      *zap.Logger

	// lookups caps the contacts enriched concurrently
	lookups int
}

// NewContactService creates a new ContactService instance.
func NewContactService(chain MatchReader, messages LastMessageReader, log *zap.Logger) *ContactService {
	return &ContactService{chain: chain, messages: messages, log: log, lookups: maxChainLookups}
}

// Contacts returns the matches of wallet, newest conversation first.
// A wallet matched both ways is listed once, as a super match. Profile and
// last message lookups are best effort; a failure leaves the field nil.
func (s *ContactService) Contacts(ctx context.Context, wallet string) ([]models.Contact, error) {
	wallet, err := conversation.Normalize(wallet)
	if err != nil {
		return nil, err
	}

	supers, err := s.chain.MutualSuperMatches(ctx, wallet)
	if err != nil {
		return nil, err
	}
	matches, err := s.chain.MutualMatches(ctx, wallet)
	if err != nil {
		return nil, err
	}

	supers = lo.Uniq(supers)
	matches = lo.Without(lo.Uniq(matches), supers...)

	contacts := append(
		lo.Map(supers, func(addr string, _ int) models.Contact {
			return models.Contact{ProfileCard: models.ProfileCard{Address: addr}, Type: models.ContactSuperMatch}
		}),
		lo.Map(matches, func(addr string, _ int) models.Contact {
			return models.Contact{ProfileCard: models.ProfileCard{Address: addr}, Type: models.ContactMatch}
		})...,
	)

	forEachLimited(len(contacts), s.lookups, func(i int) {
		s.enrich(ctx, wallet, &contacts[i])
	})

	sort.SliceStable(contacts, func(i, j int) bool {
		a, b := contacts[i].LastMessage, contacts[j].LastMessage
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.CreatedAt.After(b.CreatedAt)
		}
	})

	return contacts, nil
}

func (s *ContactService) enrich(ctx context.Context, wallet string, c *models.Contact) {
	lookupProfile(ctx, s.chain, &c.ProfileCard, s.log)

	last, err := s.messages.LastMessage(ctx, wallet, c.Address)
	if err != nil {
		s.log.Warn("[Contacts] Failed to get last message", zap.String("address", c.Address), zap.Error(err))
		return
	}
	c.LastMessage = last
}
