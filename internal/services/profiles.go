package services

import (
	"context"
	"math/big"

	"github.com/linked-app/linked/backend/internal/models"
	"github.com/samber/lo"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// maxChainLookups bounds the eth_call fan-out of a single request.
const maxChainLookups = 8

// ProfileReader resolves the profile minted by a wallet.
type ProfileReader interface {
	TokenID(ctx context.Context, wallet string) (*big.Int, error)
	Profile(ctx context.Context, tokenID *big.Int) (*models.Profile, error)
}

// profileCards returns one card per address, in order.
func profileCards(addresses []string) []models.ProfileCard {
	return lo.Map(addresses, func(addr string, _ int) models.ProfileCard {
		return models.ProfileCard{Address: addr}
	})
}

// lookupProfile fills the token id and profile of card. Failures are logged
// and leave the fields nil; a zero token id means the wallet minted nothing.
func lookupProfile(ctx context.Context, chain ProfileReader, card *models.ProfileCard, log *zap.Logger) {
	tokenID, err := chain.TokenID(ctx, card.Address)
	if err != nil {
		log.Warn("[Profiles] Failed to get token id", zap.String("address", card.Address), zap.Error(err))
		return
	}
	if tokenID == nil || tokenID.Sign() <= 0 {
		return
	}
	card.TokenID = tokenID

	profile, err := chain.Profile(ctx, tokenID)
	if err != nil {
		log.Warn("[Profiles] Failed to get profile", zap.String("token_id", tokenID.String()), zap.Error(err))
		return
	}
	card.Profile = profile
}

// forEachLimited calls fn for every index in [0, n) with at most limit calls
// running at once, and returns when all of them did.
func forEachLimited(n, limit int, fn func(i int)) {
	if limit <= 0 {
		limit = maxChainLookups
	}
	var g errgroup.Group
	g.SetLimit(limit)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			fn(i)
			return nil
		})
	}
	_ = g.Wait()
}
