package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

const (
	endpointKey = "endpoint"
	tokenKey    = "token"
	userKey     = "user"
	timeoutKey  = "timeout"
	baseKey     = "base-units"
)

func rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "credoctl",
		Short:         "Operate a credo lending ledger",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	flags := root.PersistentFlags()
	flags.String(endpointKey, envOr("CREDO_ENDPOINT", "http://127.0.0.1:8080"), "credod base URL")
	flags.String(tokenKey, os.Getenv("CREDO_TOKEN"), "bearer token; takes precedence over --user")
	flags.String(userKey, os.Getenv("CREDO_USER"), "caller identity sent in the dev header when auth is disabled")
	flags.Duration(timeoutKey, 15*time.Second, "request timeout")

	root.AddCommand(
		reservesCommand(),
		accountCommand(),
		positionCommand("deposit", "Supply collateral"),
		positionCommand("withdraw", "Withdraw collateral"),
		positionCommand("borrow", "Borrow against collateral"),
		positionCommand("repay", "Repay own debt"),
		liquidateCommand(),
		setPriceCommand(),
		pauseCommand(),
		eventsCommand(),
		exportCommand(),
		digestCommand(),
	)
	return root
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func clientFor(c *cobra.Command) (*client, error) {
	flags := c.Flags()
	endpoint, err := flags.GetString(endpointKey)
	if err != nil {
		return nil, err
	}
	token, err := flags.GetString(tokenKey)
	if err != nil {
		return nil, err
	}
	user, err := flags.GetString(userKey)
	if err != nil {
		return nil, err
	}
	timeout, err := flags.GetDuration(timeoutKey)
	if err != nil {
		return nil, err
	}
	return newClient(endpoint, token, user, timeout)
}

func printJSON(c *cobra.Command, v any) error {
	enc := json.NewEncoder(c.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// call runs one request and prints the decoded response.
func call(c *cobra.Command, method, path string, query url.Values, body any) error {
	cl, err := clientFor(c)
	if err != nil {
		return err
	}
	var out json.RawMessage
	if err := cl.do(c.Context(), method, path, query, body, &out); err != nil {
		return err
	}
	return printJSON(c, out)
}

// amountField picks the request field for a CLI amount: "amount" for base
// units, "value" for a decimal in whole tokens.
func amountField(c *cobra.Command, raw string) (string, string, error) {
	base, err := c.Flags().GetBool(baseKey)
	if err != nil {
		return "", "", err
	}
	if base {
		v, err := uint256.FromDecimal(raw)
		if err != nil {
			return "", "", errors.New("base-unit amounts must be non-negative integers")
		}
		return "amount", v.Dec(), nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return "", "", err
	}
	if !d.IsPositive() {
		return "", "", errors.New("amount must be positive")
	}
	return "value", d.String(), nil
}

func reservesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "reserves [asset]",
		Short: "Show listed reserves",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			path := "/v1/reserves"
			if len(args) == 1 {
				path += "/" + url.PathEscape(args[0])
			}
			return call(c, http.MethodGet, path, nil, nil)
		},
	}
}

func accountCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "account <user>",
		Short: "Show balances and health factor for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			return call(c, http.MethodGet, "/v1/accounts/"+url.PathEscape(args[0]), nil, nil)
		},
	}
}

func positionCommand(action, short string) *cobra.Command {
	c := &cobra.Command{
		Use:   action + " <asset> <amount>",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(c *cobra.Command, args []string) error {
			field, amount, err := amountField(c, args[1])
			if err != nil {
				return err
			}
			return call(c, http.MethodPost, "/v1/"+action, nil, map[string]string{"asset": args[0], field: amount})
		},
	}
	c.Flags().Bool(baseKey, false, "interpret amount as integer base units")
	return c
}

func liquidateCommand() *cobra.Command {
	c := &cobra.Command{
		Use:   "liquidate <borrower> <amount>",
		Short: "Repay part of an unhealthy borrower's debt for discounted collateral",
		Args:  cobra.ExactArgs(2),
		RunE: func(c *cobra.Command, args []string) error {
			flags := c.Flags()
			collateral, err := flags.GetString("collateral")
			if err != nil {
				return err
			}
			debt, err := flags.GetString("debt")
			if err != nil {
				return err
			}
			field, amount, err := amountField(c, args[1])
			if err != nil {
				return err
			}
			return call(c, http.MethodPost, "/v1/liquidate", nil, map[string]string{
				"collateralAsset": collateral,
				"debtAsset":       debt,
				"borrower":        args[0],
				field:             amount,
			})
		},
	}
	c.Flags().String("collateral", "", "collateral asset to seize (required)")
	c.Flags().String("debt", "", "debt asset to repay (required)")
	c.Flags().Bool(baseKey, false, "interpret amount as integer base units")
	_ = c.MarkFlagRequired("collateral")
	_ = c.MarkFlagRequired("debt")
	return c
}

func setPriceCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "set-price <asset> <usd>",
		Short: "Set the oracle price of an asset (admin)",
		Args:  cobra.ExactArgs(2),
		RunE: func(c *cobra.Command, args []string) error {
			return call(c, http.MethodPut, "/v1/prices/"+url.PathEscape(args[0]), nil, map[string]string{"price": args[1]})
		},
	}
}

func pauseCommand() *cobra.Command {
	c := &cobra.Command{
		Use:   "pause [on|off]",
		Short: "Show or change the module-wide pause (admin)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			if len(args) == 0 {
				return call(c, http.MethodGet, "/v1/pause", nil, nil)
			}
			var paused bool
			switch args[0] {
			case "on":
				paused = true
			case "off":
			default:
				return errors.New("expected on or off")
			}
			return call(c, http.MethodPut, "/v1/pause", nil, map[string]bool{"paused": paused})
		},
	}
	return c
}

func eventsCommand() *cobra.Command {
	c := &cobra.Command{
		Use:   "events",
		Short: "List journaled ledger events",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			flags := c.Flags()
			query := url.Values{}
			for _, key := range []string{"type", "user"} {
				v, err := flags.GetString(key)
				if err != nil {
					return err
				}
				if v != "" {
					query.Set(key, v)
				}
			}
			after, err := flags.GetUint64("after")
			if err != nil {
				return err
			}
			if after > 0 {
				query.Set("after", strconv.FormatUint(after, 10))
			}
			limit, err := flags.GetInt("limit")
			if err != nil {
				return err
			}
			if limit > 0 {
				query.Set("limit", strconv.Itoa(limit))
			}
			return call(c, http.MethodGet, "/v1/events", query, nil)
		},
	}
	c.Flags().String("type", "", "filter by event type, e.g. lending.liquidation")
	c.Flags().String("user", "", "filter by user")
	c.Flags().Uint64("after", 0, "only events after this sequence")
	c.Flags().Int("limit", 0, "maximum events to return")
	return c
}
