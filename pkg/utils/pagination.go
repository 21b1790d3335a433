package utils

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// GetLimit reads the "limit" query parameter, falling back to DefaultListLimit
// for missing or invalid values and capping at MaxListLimit.
func GetLimit(c echo.Context) int {
	limit, err := strconv.Atoi(c.QueryParam("limit"))
	if err != nil || limit <= 0 {
		return DefaultListLimit
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}
