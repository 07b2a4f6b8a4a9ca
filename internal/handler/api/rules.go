package api

import (
	"regexp"

	domrepo "OptSignal/internal/domain/repository"
	xhttp "OptSignal/pkg/http"

	"github.com/go-playground/validator/v10"
)

var tickerRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9.\-^]{0,11}$`)

func init() {
	mustRegister("ticker", func(fl validator.FieldLevel) bool {
		return tickerRe.MatchString(fl.Field().String())
	}, "%s must be a ticker symbol")
	mustRegister("timeframe", func(fl validator.FieldLevel) bool {
		return domrepo.IsValidTimeframe(domrepo.Timeframe(fl.Field().String()))
	}, "%s must be one of: 1h, 1d")
}

func mustRegister(tag string, fn validator.Func, msg string) {
	if err := xhttp.RegisterRule(tag, fn, msg); err != nil {
		panic(err)
	}
}

func timeError(field string) []xhttp.ValidationError {
	return []xhttp.ValidationError{{
		Code:    "ERR_TIME",
		Field:   field,
		Message: field + " must be RFC3339, a date or unix seconds",
	}}
}
