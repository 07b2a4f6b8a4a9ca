package usecase

import "errors"

// ErrPredictorDisabled is returned by Predict when no predictor is wired.
var ErrPredictorDisabled = errors.New("price predictor disabled")

// ErrJobNotFound is returned for unknown or expired backtest job ids.
var ErrJobNotFound = errors.New("backtest job not found")

// ErrQueueDisabled is returned when asynchronous backtests are not wired.
var ErrQueueDisabled = errors.New("backtest queue disabled")
