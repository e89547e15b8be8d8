package exports

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"credo/native/lending"
)

// PositionsJSONL builds a JSON Lines export for the supplied rows and returns
// the serialised payload alongside a checksum.
func PositionsJSONL(rows []Row) ([]byte, string, error) {
	buffer := &bytes.Buffer{}
	encoder := json.NewEncoder(buffer)
	encoder.SetEscapeHTML(false)
	for _, row := range rows {
		payload := map[string]interface{}{
			"user":          row.User,
			"asset":         row.Asset,
			"collateral":    decString(row.Collateral),
			"debt":          decString(row.Debt),
			"collateralUsd": lending.FormatUSD(row.CollateralUSD),
			"debtUsd":       lending.FormatUSD(row.DebtUSD),
			"healthFactor":  lending.FormatWad(row.HealthFactor),
		}
		if err := encoder.Encode(payload); err != nil {
			return nil, "", err
		}
	}
	data := buffer.Bytes()
	checksum := sha256.Sum256(data)
	return data, hex.EncodeToString(checksum[:]), nil
}
