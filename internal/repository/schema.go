package repository

import (
	"fmt"

	domrepo "OptSignal/internal/domain/repository"
)

const (
	tableBars1d     = "bars_1d"
	tableBars1h     = "bars_1h"
	tableFeatures   = "option_features"
	tableBacktests  = "backtests"
	replacingEngine = "ReplacingMergeTree(updated_at)"
)

// Schema returns the idempotent DDL for database db. Bar tables keep the
// latest version of a bucket, so re-sent session bars overwrite earlier
// snapshots on merge and reads use FINAL.
func Schema(db string) []string {
	bars := func(table string) string {
		return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (
    symbol LowCardinality(String),
    ts DateTime('UTC'),
    open Float64,
    high Float64,
    low Float64,
    close Float64,
    volume Float64,
    updated_at DateTime64(3, 'UTC') DEFAULT now64(3)
) ENGINE = %s
ORDER BY (symbol, ts)`, db, table, replacingEngine)
	}
	return []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", db),
		bars(tableBars1d),
		bars(tableBars1h),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (
    run_id String,
    underlying LowCardinality(String),
    reference_time DateTime64(3, 'UTC'),
    type LowCardinality(String),
    expiration DateTime('UTC'),
    strike Float64,
    moneyness Float64,
    days_to_expiry Float64,
    implied_volatility Float64,
    iv_bucket LowCardinality(String),
    delta Float64,
    gamma Float64,
    theta Float64,
    vega Float64,
    rho Float64,
    created_at DateTime64(3, 'UTC') DEFAULT now64(3)
) ENGINE = MergeTree
ORDER BY (underlying, reference_time, run_id)`, db, tableFeatures),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (
    run_id String,
    symbol LowCardinality(String),
    bars UInt32,
    initial_capital Float64,
    final_value Float64,
    cash Float64,
    shares Int64,
    last_close Float64,
    trades UInt32,
    created_at DateTime64(3, 'UTC') DEFAULT now64(3)
) ENGINE = MergeTree
ORDER BY (symbol, created_at)`, db, tableBacktests),
	}
}

// barTable maps a timeframe to its table name.
func barTable(tf domrepo.Timeframe) (string, error) {
	switch tf {
	case domrepo.TF1d:
		return tableBars1d, nil
	case domrepo.TF1h:
		return tableBars1h, nil
	default:
		return "", fmt.Errorf("unsupported timeframe: %s", tf)
	}
}
