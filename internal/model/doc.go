// Package model defines the market data entities stored by the ingester.
//
// Each entity is a schema.Table:
//   - CalendarTable: trading sessions per broker (timeseries on date)
//   - AssetTable: tradable instruments (relational on symbol)
//   - BarTable: OHLCV bars (timeseries on timestamp, hashed by broker, symbol, timeframe)
//
// Conventions:
//   - Timestamps: UTC
//   - Prices and volumes: float64, strictly positive
//   - The data provider is stored in a "broker" column in every table
package model
