package clickhouse

// Schema is the DDL for the FinSense database. Every statement is idempotent.
var Schema = []string{
	`CREATE DATABASE IF NOT EXISTS finsense`,
	`CREATE TABLE IF NOT EXISTS finsense.bars (
		symbol      LowCardinality(String),
		timeframe   LowCardinality(String),
		ts          DateTime64(3, 'UTC'),
		open        Float64,
		high        Float64,
		low         Float64,
		close       Float64,
		volume      Float64,
		spread      Float64 DEFAULT 0,
		real_volume Float64 DEFAULT 0
	) ENGINE = ReplacingMergeTree
	ORDER BY (symbol, timeframe, ts)`,
	`CREATE TABLE IF NOT EXISTS finsense.predictions (
		id               String,
		symbol           LowCardinality(String),
		timeframe        LowCardinality(String),
		sentiment        LowCardinality(String),
		confidence       Float64,
		price            Float64,
		model_version    String,
		created_at       DateTime64(3, 'UTC'),
		verified         Bool,
		verified_at      Nullable(DateTime64(3, 'UTC')),
		actual_sentiment LowCardinality(String),
		verify_price     Float64,
		change_pct       Float64,
		correct          Bool,
		row_version      UInt64
	) ENGINE = ReplacingMergeTree(row_version)
	ORDER BY id`,
	`CREATE TABLE IF NOT EXISTS finsense.model_versions (
		version       String,
		training_date DateTime64(3, 'UTC'),
		test_accuracy Float64,
		cv_mean       Float64,
		metadata      String
	) ENGINE = ReplacingMergeTree
	ORDER BY version`,
}
