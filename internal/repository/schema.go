package repository

import "fmt"

// SchemaStatements returns idempotent DDL for the trade history tables.
// Executed once at startup through clickhouse.Client.InitSchema.
func SchemaStatements(database string) []string {
	return []string{
		fmt.Sprintf(`CREATE DATABASE IF NOT EXISTS %s`, database),
		fmt.Sprintf(`
            CREATE TABLE IF NOT EXISTS %s.client_trades (
                ts          DateTime64(3),
                client_id   String,
                trade_id    String,
                instrument  LowCardinality(String),
                side        LowCardinality(String),
                quantity    Float64,
                price       Float64,
                order_type  LowCardinality(String),
                venue       LowCardinality(String)
            )
            ENGINE = MergeTree
            PARTITION BY toYYYYMM(ts)
            ORDER BY (client_id, ts)
            TTL toDateTime(ts) + INTERVAL 2 YEAR
        `, database),
		fmt.Sprintf(`
            CREATE TABLE IF NOT EXISTS %s.client_positions (
                client_id      String,
                instrument     LowCardinality(String),
                net_position   Float64,
                gross_position Float64,
                avg_price      Float64,
                market_value   Float64,
                updated_at     DateTime64(3)
            )
            ENGINE = ReplacingMergeTree(updated_at)
            ORDER BY (client_id, instrument)
        `, database),
		fmt.Sprintf(`
            CREATE TABLE IF NOT EXISTS %s.client_features (
                client_id           String,
                momentum_beta       Nullable(Float64),
                holding_period_days Nullable(Float64),
                aggressiveness      Nullable(Float64),
                updated_at          DateTime64(3)
            )
            ENGINE = MergeTree
            ORDER BY (client_id, updated_at)
        `, database),
	}
}
