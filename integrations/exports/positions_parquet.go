package exports

import (
	"fmt"
	"os"

	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"credo/native/lending"
)

// Amounts are stored as decimal strings; they routinely exceed 64 bits.
type parquetRow struct {
	User          string `parquet:"name=user, type=UTF8, encoding=PLAIN_DICTIONARY"`
	Asset         string `parquet:"name=asset, type=UTF8, encoding=PLAIN_DICTIONARY"`
	Decimals      int32  `parquet:"name=decimals, type=INT32"`
	Collateral    string `parquet:"name=collateral, type=UTF8, encoding=PLAIN_DICTIONARY"`
	Debt          string `parquet:"name=debt, type=UTF8, encoding=PLAIN_DICTIONARY"`
	CollateralUSD string `parquet:"name=collateral_usd, type=UTF8, encoding=PLAIN_DICTIONARY"`
	DebtUSD       string `parquet:"name=debt_usd, type=UTF8, encoding=PLAIN_DICTIONARY"`
	HealthFactor  string `parquet:"name=health_factor, type=UTF8, encoding=PLAIN_DICTIONARY"`
}

// WritePositionsParquet writes rows to a Snappy-compressed Parquet file.
func WritePositionsParquet(path string, rows []Row) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("exports: create parquet: %w", err)
	}
	fw := writerfile.NewWriterFile(file)
	pw, err := writer.NewParquetWriter(fw, new(parquetRow), 1)
	if err != nil {
		file.Close()
		return fmt.Errorf("exports: parquet schema: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, row := range rows {
		pr := &parquetRow{
			User:          row.User,
			Asset:         row.Asset,
			Decimals:      int32(row.Decimals),
			Collateral:    decString(row.Collateral),
			Debt:          decString(row.Debt),
			CollateralUSD: lending.FormatUSD(row.CollateralUSD),
			DebtUSD:       lending.FormatUSD(row.DebtUSD),
			HealthFactor:  lending.FormatWad(row.HealthFactor),
		}
		if err := pw.Write(pr); err != nil {
			pw.WriteStop()
			file.Close()
			return fmt.Errorf("exports: parquet write: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		file.Close()
		return fmt.Errorf("exports: parquet flush: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("exports: close parquet file: %w", err)
	}
	return nil
}
