package rpc

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/alanyoungcy/walletledger/internal/domain"
)

// Layout of the exchange program's client account: an 8 byte discriminator,
// the 32 byte owner key, then the u64 client id.
const (
	ownerOffset    = 8
	clientIDOffset = 40
	clientIDLength = 8
)

type programAccount struct {
	Pubkey  string `json:"pubkey"`
	Account struct {
		Data []string `json:"data"`
	} `json:"account"`
}

// ResolveClientID looks up the protocol client id registered for wallet. It
// returns ErrClientNotFound when the wallet never opened an account.
func (c *Client) ResolveClientID(ctx context.Context, wallet string) (uint64, error) {
	opts := map[string]any{
		"encoding":  "base64",
		"dataSlice": map[string]int{"offset": clientIDOffset, "length": clientIDLength},
		"filters": []any{
			map[string]any{"memcmp": map[string]any{"offset": ownerOffset, "bytes": wallet}},
		},
	}

	raw, err := c.call(ctx, "getProgramAccounts", c.cfg.ProgramID, opts)
	if err != nil {
		return 0, fmt.Errorf("rpc: resolve client id for %s: %w", wallet, err)
	}

	var accounts []programAccount
	if err := json.Unmarshal(raw, &accounts); err != nil {
		return 0, fmt.Errorf("rpc: decode program accounts: %w", err)
	}
	if len(accounts) == 0 {
		return 0, fmt.Errorf("rpc: resolve client id for %s: %w", wallet, domain.ErrClientNotFound)
	}

	acct := accounts[0]
	if len(acct.Account.Data) == 0 {
		return 0, fmt.Errorf("rpc: account %s: empty data", acct.Pubkey)
	}
	data, err := base64.StdEncoding.DecodeString(acct.Account.Data[0])
	if err != nil {
		return 0, fmt.Errorf("rpc: account %s: %w", acct.Pubkey, err)
	}
	if len(data) < clientIDLength {
		return 0, fmt.Errorf("rpc: account %s: short data (%d bytes)", acct.Pubkey, len(data))
	}
	return binary.LittleEndian.Uint64(data[:clientIDLength]), nil
}
