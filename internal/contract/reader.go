// Package contract reads the dating profile contract: matches, likes and the
// profiles minted as NFTs. Transactions stay with the wallet in the browser;
// the gateway only issues eth_call.
package contract

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/linked-app/linked/backend/internal/apperr"
	"github.com/linked-app/linked/backend/internal/models"
	"go.uber.org/zap"
)

// DatingABI holds the view functions of the dating contract.
const DatingABI = `[
	{"type":"function","name":"getMutualMatches","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address[]"}]},
	{"type":"function","name":"getMutualSuperMatches","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address[]"}]},
	{"type":"function","name":"getIncomingLikes","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address[]"}]},
	{"type":"function","name":"getOutgoingLikes","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address[]"}]},
	{"type":"function","name":"getAllUsers","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address[]"}]},
	{"type":"function","name":"userToTokenId","stateMutability":"view","inputs":[{"name":"user","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"getProfileByTokenId","stateMutability":"view","inputs":[{"name":"tokenId","type":"uint256"}],"outputs":[
		{"name":"name","type":"string"},
		{"name":"age","type":"uint256"},
		{"name":"interests","type":"string"},
		{"name":"uri","type":"string"},
		{"name":"owner","type":"address"}
	]},
	{"type":"function","name":"totalProfiles","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]}
]`

// Reader issues read-only calls against the dating contract.
type Reader struct {
	contract *bind.BoundContract
	address  common.Address
	timeout  time.Duration
	log      *zap.Logger
}

// Dial connects to an Ethereum JSON-RPC endpoint and binds the contract at
// address. The returned close func releases the connection.
func Dial(ctx context.Context, rpcURL, address string, timeout time.Duration, log *zap.Logger) (*Reader, func(), error) {
	if !common.IsHexAddress(address) {
		return nil, nil, fmt.Errorf("invalid contract address %q", address)
	}
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to dial %s: %w", rpcURL, err)
	}
	reader, err := NewReader(client, common.HexToAddress(address), timeout, log)
	if err != nil {
		client.Close()
		return nil, nil, err
	}
	return reader, client.Close, nil
}

// NewReader binds the contract at address over caller.
func NewReader(caller bind.ContractCaller, address common.Address, timeout time.Duration, log *zap.Logger) (*Reader, error) {
	parsed, err := abi.JSON(strings.NewReader(DatingABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse contract ABI: %w", err)
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Reader{
		contract: bind.NewBoundContract(address, parsed, caller, nil, nil),
		address:  address,
		timeout:  timeout,
		log:      log,
	}, nil
}

// Address returns the bound contract address.
func (r *Reader) Address() common.Address {
	return r.address
}

func (r *Reader) call(ctx context.Context, from *common.Address, method string, params ...interface{}) ([]interface{}, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	opts := &bind.CallOpts{Context: ctx}
	if from != nil {
		opts.From = *from
	}

	var out []interface{}
	if err := r.contract.Call(opts, &out, method, params...); err != nil {
		r.log.Debug("[Contract] Call failed", zap.String("method", method), zap.Error(err))
		return nil, apperr.Persistence(method, err)
	}
	return out, nil
}

// addresses calls a method returning address[] as the given wallet.
func (r *Reader) addresses(ctx context.Context, wallet, method string) ([]string, error) {
	var from *common.Address
	if wallet != "" {
		addr, err := parseWallet(method, wallet)
		if err != nil {
			return nil, err
		}
		from = &addr
	}

	out, err := r.call(ctx, from, method)
	if err != nil {
		return nil, err
	}
	raw := *abi.ConvertType(out[0], new([]common.Address)).(*[]common.Address)

	result := make([]string, len(raw))
	for i, addr := range raw {
		result[i] = strings.ToLower(addr.Hex())
	}
	return result, nil
}

// MutualMatches returns the wallets wallet has mutually liked.
func (r *Reader) MutualMatches(ctx context.Context, wallet string) ([]string, error) {
	return r.addresses(ctx, wallet, "getMutualMatches")
}

// MutualSuperMatches returns the wallets wallet has mutually super liked.
func (r *Reader) MutualSuperMatches(ctx context.Context, wallet string) ([]string, error) {
	return r.addresses(ctx, wallet, "getMutualSuperMatches")
}

// IncomingLikes returns the wallets that liked wallet.
func (r *Reader) IncomingLikes(ctx context.Context, wallet string) ([]string, error) {
	return r.addresses(ctx, wallet, "getIncomingLikes")
}

// OutgoingLikes returns the wallets liked by wallet.
func (r *Reader) OutgoingLikes(ctx context.Context, wallet string) ([]string, error) {
	return r.addresses(ctx, wallet, "getOutgoingLikes")
}

// AllUsers returns every wallet holding a profile.
func (r *Reader) AllUsers(ctx context.Context) ([]string, error) {
	return r.addresses(ctx, "", "getAllUsers")
}

// TokenID returns the profile token of wallet; zero means no profile.
func (r *Reader) TokenID(ctx context.Context, wallet string) (*big.Int, error) {
	addr, err := parseWallet("userToTokenId", wallet)
	if err != nil {
		return nil, err
	}
	out, err := r.call(ctx, nil, "userToTokenId", addr)
	if err != nil {
		return nil, err
	}
	return *abi.ConvertType(out[0], new(*big.Int)).(**big.Int), nil
}

// Profile returns the profile minted as tokenID.
func (r *Reader) Profile(ctx context.Context, tokenID *big.Int) (*models.Profile, error) {
	if tokenID == nil || tokenID.Sign() <= 0 {
		return nil, apperr.Validation("getProfileByTokenId", fmt.Errorf("token id must be positive"))
	}
	out, err := r.call(ctx, nil, "getProfileByTokenId", tokenID)
	if err != nil {
		return nil, err
	}
	if len(out) != 5 {
		return nil, apperr.Persistence("getProfileByTokenId", fmt.Errorf("unexpected %d outputs", len(out)))
	}
	return &models.Profile{
		Name:      *abi.ConvertType(out[0], new(string)).(*string),
		Age:       *abi.ConvertType(out[1], new(*big.Int)).(**big.Int),
		Interests: *abi.ConvertType(out[2], new(string)).(*string),
		URI:       *abi.ConvertType(out[3], new(string)).(*string),
		Owner:     strings.ToLower((*abi.ConvertType(out[4], new(common.Address)).(*common.Address)).Hex()),
	}, nil
}

// TotalProfiles returns the number of minted profiles.
func (r *Reader) TotalProfiles(ctx context.Context) (*big.Int, error) {
	out, err := r.call(ctx, nil, "totalProfiles")
	if err != nil {
		return nil, err
	}
	return *abi.ConvertType(out[0], new(*big.Int)).(**big.Int), nil
}

func parseWallet(op, wallet string) (common.Address, error) {
	wallet = strings.TrimSpace(wallet)
	if !common.IsHexAddress(wallet) {
		return common.Address{}, apperr.Validation(op,
			fmt.Errorf("%w: %q is not an address", apperr.ErrInvalidIdentifier, wallet))
	}
	return common.HexToAddress(wallet), nil
}
