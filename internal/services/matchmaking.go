package services

import (
	"context"
	"math/big"

	"github.com/linked-app/linked/backend/internal/conversation"
	"github.com/linked-app/linked/backend/internal/models"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

// LikesReader is the part of the contract reader the match page needs.
type LikesReader interface {
	ProfileReader
	IncomingLikes(ctx context.Context, wallet string) ([]string, error)
	OutgoingLikes(ctx context.Context, wallet string) ([]string, error)
	AllUsers(ctx context.Context) ([]string, error)
	TotalProfiles(ctx context.Context) (*big.Int, error)
}

// MatchmakingService serves the likes dashboard and the profile deck.
type MatchmakingService struct {
	chain   LikesReader
	log     *zap.Logger
	lookups int
}

// NewMatchmakingService creates a new MatchmakingService instance.
func NewMatchmakingService(chain LikesReader, log *zap.Logger) *MatchmakingService {
	return &MatchmakingService{chain: chain, log: log, lookups: maxChainLookups}
}

// Likes returns the wallets that liked wallet and the ones it liked, each
// with its profile when the lookup succeeds.
func (s *MatchmakingService) Likes(ctx context.Context, wallet string) (models.LikesResponse, error) {
	wallet, err := conversation.Normalize(wallet)
	if err != nil {
		return models.LikesResponse{}, err
	}

	incoming, err := s.chain.IncomingLikes(ctx, wallet)
	if err != nil {
		return models.LikesResponse{}, err
	}
	outgoing, err := s.chain.OutgoingLikes(ctx, wallet)
	if err != nil {
		return models.LikesResponse{}, err
	}

	resp := models.LikesResponse{
		Incoming: profileCards(lo.Uniq(incoming)),
		Outgoing: profileCards(lo.Uniq(outgoing)),
	}
	s.lookupAll(ctx, resp.Incoming, resp.Outgoing)
	return resp, nil
}

// Discover returns every profile holder except wallet itself, in contract
// order, along with the number of minted profiles.
func (s *MatchmakingService) Discover(ctx context.Context, wallet string) (models.DiscoverResponse, error) {
	wallet, err := conversation.Normalize(wallet)
	if err != nil {
		return models.DiscoverResponse{}, err
	}

	users, err := s.chain.AllUsers(ctx)
	if err != nil {
		return models.DiscoverResponse{}, err
	}
	total, err := s.chain.TotalProfiles(ctx)
	if err != nil {
		return models.DiscoverResponse{}, err
	}

	others := lo.Filter(lo.Uniq(users), func(addr string, _ int) bool { return addr != wallet })
	resp := models.DiscoverResponse{
		TotalProfiles: total,
		Profiles:      profileCards(others),
	}
	s.lookupAll(ctx, resp.Profiles)

	s.log.Debug("[Matchmaking] Deck built",
		zap.String("wallet", wallet),
		zap.Int("profiles", len(resp.Profiles)),
		zap.String("total", total.String()))
	return resp, nil
}

func (s *MatchmakingService) lookupAll(ctx context.Context, lists ...[]models.ProfileCard) {
	var cards []*models.ProfileCard
	for _, list := range lists {
		for i := range list {
			cards = append(cards, &list[i])
		}
	}
	forEachLimited(len(cards), s.lookups, func(i int) {
		lookupProfile(ctx, s.chain, cards[i], s.log)
	})
}
