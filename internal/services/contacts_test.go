package services

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/linked-app/linked/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeMatches struct {
	matches, supers []string
	tokens          map[string]int64
	profiles        map[int64]*models.Profile
	err             error
}

func (f *fakeMatches) MutualMatches(context.Context, string) ([]string, error) {
	return f.matches, f.err
}

func (f *fakeMatches) MutualSuperMatches(context.Context, string) ([]string, error) {
	return f.supers, f.err
}

func (f *fakeMatches) TokenID(_ context.Context, wallet string) (*big.Int, error) {
	return big.NewInt(f.tokens[wallet]), nil
}

func (f *fakeMatches) Profile(_ context.Context, tokenID *big.Int) (*models.Profile, error) {
	p, ok := f.profiles[tokenID.Int64()]
	if !ok {
		return nil, errors.New("execution reverted")
	}
	return p, nil
}

type fakeLastMessages struct {
	mu   sync.Mutex
	last map[string]*models.Message
}

func (f *fakeLastMessages) LastMessage(_ context.Context, _, other string) (*models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last[other], nil
}

func TestContacts_SortedByLastMessage(t *testing.T) {
	t0 := time.Date(2025, 8, 4, 12, 0, 0, 0, time.UTC)
	chain := &fakeMatches{
		matches: []string{"0xb", "0xc", "0xd"},
		supers:  []string{"0xd", "0xe"},
		tokens:  map[string]int64{"0xb": 1, "0xc": 2, "0xd": 3},
		profiles: map[int64]*models.Profile{
			1: {Name: "B"},
			3: {Name: "D"},
		},
	}
	messages := &fakeLastMessages{last: map[string]*models.Message{
		"0xb": {ID: "1", CreatedAt: t0},
		"0xd": {ID: "2", CreatedAt: t0.Add(time.Minute)},
	}}

	contacts, err := NewContactService(chain, messages, zap.NewNop()).Contacts(context.Background(), "0xA")
	require.NoError(t, err)
	require.Len(t, contacts, 4)

	assert.Equal(t, "0xd", contacts[0].Address)
	assert.Equal(t, models.ContactSuperMatch, contacts[0].Type)
	assert.Equal(t, "D", contacts[0].Profile.Name)

	assert.Equal(t, "0xb", contacts[1].Address)
	assert.Equal(t, models.ContactMatch, contacts[1].Type)

	// No last message: original order, super matches first
	assert.Equal(t, "0xe", contacts[2].Address)
	assert.Nil(t, contacts[2].TokenID)
	assert.Nil(t, contacts[2].Profile)

	// Profile lookup failed, contact still listed
	assert.Equal(t, "0xc", contacts[3].Address)
	assert.Equal(t, int64(2), contacts[3].TokenID.Int64())
	assert.Nil(t, contacts[3].Profile)
}

func TestContacts_ChainFailure(t *testing.T) {
	chain := &fakeMatches{err: errors.New("rpc down")}

	_, err := NewContactService(chain, &fakeLastMessages{}, zap.NewNop()).Contacts(context.Background(), "0xa")
	assert.Error(t, err)
}
