package contract

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/linked-app/linked/backend/internal/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var (
	contractAddr = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
	alice        = common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	bob          = common.HexToAddress("0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC")
	carol        = common.HexToAddress("0x90F79bf6EB2c4f870365E785982E1f101E93b906")
)

type profile struct {
	name      string
	age       int64
	interests string
	uri       string
	owner     common.Address
}

// fakeChain answers eth_call like a deployed dating contract.
type fakeChain struct {
	t        *testing.T
	abi      abi.ABI
	matches  map[common.Address][]common.Address
	supers   map[common.Address][]common.Address
	tokens   map[common.Address]int64
	profiles map[int64]profile
	err      error
}

func newFakeChain(t *testing.T) *fakeChain {
	parsed, err := abi.JSON(strings.NewReader(DatingABI))
	require.NoError(t, err)
	return &fakeChain{
		t:        t,
		abi:      parsed,
		matches:  map[common.Address][]common.Address{},
		supers:   map[common.Address][]common.Address{},
		tokens:   map[common.Address]int64{},
		profiles: map[int64]profile{},
	}
}

func (f *fakeChain) CodeAt(context.Context, common.Address, *big.Int) ([]byte, error) {
	return []byte{0x60}, nil
}

func (f *fakeChain) CallContract(_ context.Context, call ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	require.Equal(f.t, contractAddr, *call.To)

	method, err := f.abi.MethodById(call.Data[:4])
	require.NoError(f.t, err)
	args, err := method.Inputs.Unpack(call.Data[4:])
	require.NoError(f.t, err)

	switch method.Name {
	case "getMutualMatches":
		return method.Outputs.Pack(f.matches[call.From])
	case "getMutualSuperMatches":
		return method.Outputs.Pack(f.supers[call.From])
	case "getIncomingLikes", "getOutgoingLikes", "getAllUsers":
		return method.Outputs.Pack([]common.Address{alice, bob})
	case "userToTokenId":
		return method.Outputs.Pack(big.NewInt(f.tokens[args[0].(common.Address)]))
	case "getProfileByTokenId":
		p, ok := f.profiles[args[0].(*big.Int).Int64()]
		if !ok {
			return nil, errors.New("execution reverted: profile does not exist")
		}
		return method.Outputs.Pack(p.name, big.NewInt(p.age), p.interests, p.uri, p.owner)
	case "totalProfiles":
		return method.Outputs.Pack(big.NewInt(int64(len(f.profiles))))
	}
	f.t.Fatalf("unexpected method %s", method.Name)
	return nil, nil
}

func newTestReader(t *testing.T, chain *fakeChain) *Reader {
	r, err := NewReader(chain, contractAddr, time.Second, zap.NewNop())
	require.NoError(t, err)
	return r
}

func TestMatches_CalledAsWallet(t *testing.T) {
	chain := newFakeChain(t)
	chain.matches[alice] = []common.Address{bob}
	chain.supers[alice] = []common.Address{carol}
	r := newTestReader(t, chain)

	matches, err := r.MutualMatches(context.Background(), strings.ToLower(alice.Hex()))
	require.NoError(t, err)
	assert.Equal(t, []string{strings.ToLower(bob.Hex())}, matches)

	supers, err := r.MutualSuperMatches(context.Background(), alice.Hex())
	require.NoError(t, err)
	assert.Equal(t, []string{strings.ToLower(carol.Hex())}, supers)

	none, err := r.MutualMatches(context.Background(), carol.Hex())
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestLikesAndUsers(t *testing.T) {
	r := newTestReader(t, newFakeChain(t))
	ctx := context.Background()

	incoming, err := r.IncomingLikes(ctx, carol.Hex())
	require.NoError(t, err)
	assert.Len(t, incoming, 2)

	outgoing, err := r.OutgoingLikes(ctx, carol.Hex())
	require.NoError(t, err)
	assert.Len(t, outgoing, 2)

	users, err := r.AllUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{strings.ToLower(alice.Hex()), strings.ToLower(bob.Hex())}, users)
}

func TestTokenAndProfile(t *testing.T) {
	chain := newFakeChain(t)
	chain.tokens[bob] = 7
	chain.profiles[7] = profile{name: "Bob", age: 29, interests: "hiking", uri: "ipfs://bob", owner: bob}
	r := newTestReader(t, chain)
	ctx := context.Background()

	token, err := r.TokenID(ctx, bob.Hex())
	require.NoError(t, err)
	assert.Equal(t, int64(7), token.Int64())

	p, err := r.Profile(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "Bob", p.Name)
	assert.Equal(t, int64(29), p.Age.Int64())
	assert.Equal(t, "hiking", p.Interests)
	assert.Equal(t, "ipfs://bob", p.URI)
	assert.Equal(t, strings.ToLower(bob.Hex()), p.Owner)

	total, err := r.TotalProfiles(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total.Int64())

	noToken, err := r.TokenID(ctx, carol.Hex())
	require.NoError(t, err)
	assert.Zero(t, noToken.Sign())
}

func TestInvalidInput(t *testing.T) {
	r := newTestReader(t, newFakeChain(t))
	ctx := context.Background()

	_, err := r.MutualMatches(ctx, "not-a-wallet")
	assert.True(t, apperr.IsValidation(err))

	_, err = r.TokenID(ctx, "0x123")
	assert.True(t, apperr.IsValidation(err))

	_, err = r.Profile(ctx, big.NewInt(0))
	assert.True(t, apperr.IsValidation(err))
}

func TestCallFailure(t *testing.T) {
	chain := newFakeChain(t)
	r := newTestReader(t, chain)

	_, err := r.Profile(context.Background(), big.NewInt(99))
	assert.True(t, apperr.IsPersistence(err))

	chain.err = errors.New("connection refused")
	_, err = r.TotalProfiles(context.Background())
	assert.True(t, apperr.IsPersistence(err))
}
