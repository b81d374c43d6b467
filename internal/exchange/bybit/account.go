package bybit

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/ducminhle1904/capital-guard/internal/balance"
)

// AccountType represents different account types in Bybit
type AccountType string

const (
	AccountTypeUnified  AccountType = "UNIFIED"
	AccountTypeSpot     AccountType = "SPOT"
	AccountTypeContract AccountType = "CONTRACT"
	AccountTypeFund     AccountType = "FUND"
)

// CoinBalance is one coin of the wallet
type CoinBalance struct {
	Coin                string
	WalletBalance       decimal.Decimal
	AvailableToWithdraw decimal.Decimal
	Locked              decimal.Decimal
}

// Available is the balance not tied up in orders or positions. Unified
// accounts may leave availableToWithdraw empty, in which case it is derived
// from the wallet balance and the locked margin.
func (b CoinBalance) Available() decimal.Decimal {
	if b.AvailableToWithdraw.IsPositive() {
		return b.AvailableToWithdraw
	}
	available := b.WalletBalance.Sub(b.Locked)
	if available.IsNegative() {
		return decimal.Zero
	}
	return available
}

type walletResult struct {
	List []struct {
		AccountType string `json:"accountType"`
		Coin        []struct {
			Coin                string `json:"coin"`
			WalletBalance       string `json:"walletBalance"`
			AvailableToWithdraw string `json:"availableToWithdraw"`
			TotalOrderIM        string `json:"totalOrderIM"`
			TotalPositionIM     string `json:"totalPositionIM"`
			Locked              string `json:"locked"`
		} `json:"coin"`
	} `json:"list"`
}

// GetWalletBalances retrieves coin balances of the configured account type
func (c *Client) GetWalletBalances(ctx context.Context, coins ...string) ([]CoinBalance, error) {
	params := map[string]interface{}{
		"accountType": string(c.config.AccountType),
	}
	if len(coins) > 0 {
		params["coin"] = joinCoins(coins)
	}

	resp, err := c.call(ctx, "get wallet balance", func() (interface{}, error) {
		return c.httpClient.NewUtaBybitServiceWithParams(params).GetAccountWallet(ctx)
	})
	if err != nil {
		return nil, err
	}
	return parseWalletBalances(resp)
}

func parseWalletBalances(response interface{}) ([]CoinBalance, error) {
	var result walletResult
	if err := decodeResult(response, &result); err != nil {
		return nil, fmt.Errorf("failed to parse wallet balance: %w", err)
	}
	if len(result.List) == 0 {
		return nil, fmt.Errorf("no account data found")
	}

	var balances []CoinBalance
	for _, account := range result.List {
		for _, coin := range account.Coin {
			wallet, err := parseDecimal(coin.WalletBalance)
			if err != nil {
				return nil, fmt.Errorf("%s walletBalance %q: %w", coin.Coin, coin.WalletBalance, err)
			}
			withdrawable, err := parseDecimal(coin.AvailableToWithdraw)
			if err != nil {
				return nil, fmt.Errorf("%s availableToWithdraw %q: %w", coin.Coin, coin.AvailableToWithdraw, err)
			}
			locked := decimal.Zero
			for _, field := range []string{coin.TotalOrderIM, coin.TotalPositionIM, coin.Locked} {
				v, err := parseDecimal(field)
				if err != nil {
					return nil, fmt.Errorf("%s margin %q: %w", coin.Coin, field, err)
				}
				locked = locked.Add(v)
			}
			balances = append(balances, CoinBalance{
				Coin:                coin.Coin,
				WalletBalance:       wallet,
				AvailableToWithdraw: withdrawable,
				Locked:              locked,
			})
		}
	}
	return balances, nil
}

// Name identifies the client as a balance source
func (c *Client) Name() string {
	return ExchangeName
}

// Balances reports wallet balances for the balance feed
func (c *Client) Balances(ctx context.Context) ([]balance.Update, error) {
	coins, err := c.GetWalletBalances(ctx, c.config.Coins...)
	if err != nil {
		return nil, err
	}
	updates := make([]balance.Update, 0, len(coins))
	for _, coin := range coins {
		updates = append(updates, balance.Update{
			Exchange:  ExchangeName,
			Currency:  coin.Coin,
			Available: coin.Available(),
			Total:     coin.WalletBalance,
		})
	}
	return updates, nil
}
