package exports

import (
	"bytes"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"

	"credo/native/lending"
)

var csvHeader = []string{
	"user", "asset", "collateral", "collateral_display", "debt", "debt_display",
	"collateral_usd", "debt_usd", "health_factor",
}

// PositionsCSV builds a CSV export for the supplied rows and returns the
// serialised data alongside a SHA-256 checksum of the payload.
func PositionsCSV(rows []Row) ([]byte, string, error) {
	buffer := &bytes.Buffer{}
	writer := csv.NewWriter(buffer)
	if err := writer.Write(csvHeader); err != nil {
		return nil, "", err
	}
	for _, row := range rows {
		record := []string{
			row.User,
			row.Asset,
			decString(row.Collateral),
			lending.FormatUnits(row.Collateral, row.Decimals),
			decString(row.Debt),
			lending.FormatUnits(row.Debt, row.Decimals),
			lending.FormatUSD(row.CollateralUSD),
			lending.FormatUSD(row.DebtUSD),
			lending.FormatWad(row.HealthFactor),
		}
		if err := writer.Write(record); err != nil {
			return nil, "", err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, "", err
	}
	data := buffer.Bytes()
	checksum := sha256.Sum256(data)
	return data, hex.EncodeToString(checksum[:]), nil
}
