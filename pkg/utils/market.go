package utils

import (
	"time"

	"virtual-trader/internal/models"
)

// IndiaLocation is the timezone for Indian markets.
var IndiaLocation *time.Location

func init() {
	var err error
	IndiaLocation, err = time.LoadLocation("Asia/Kolkata")
	if err != nil {
		// Fallback to UTC+5:30
		IndiaLocation = time.FixedZone("IST", 5*60*60+30*60)
	}
}

const (
	preOpenMinute = 9 * 60     // 09:00
	openMinute    = 9*60 + 15  // 09:15
	closeMinute   = 15*60 + 30 // 15:30
)

// IsTradingDay reports whether t falls on an NSE weekday.
func IsTradingDay(t time.Time) bool {
	wd := t.In(IndiaLocation).Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

// GetMarketStatusAt returns the market status at t.
func GetMarketStatusAt(t time.Time) models.MarketStatus {
	if !IsTradingDay(t) {
		return models.MarketClosed
	}

	now := t.In(IndiaLocation)
	minutes := now.Hour()*60 + now.Minute()

	switch {
	case minutes >= preOpenMinute && minutes < openMinute:
		return models.MarketPreOpen
	case minutes >= openMinute && minutes < closeMinute:
		return models.MarketOpen
	}
	return models.MarketClosed
}

// GetMarketStatus returns the current market status.
func GetMarketStatus() models.MarketStatus {
	return GetMarketStatusAt(time.Now())
}

// IsMarketOpenAt reports whether the market is open at t.
func IsMarketOpenAt(t time.Time) bool {
	return GetMarketStatusAt(t) == models.MarketOpen
}

// MarketStatusMessage returns a human readable message for a status.
func MarketStatusMessage(status models.MarketStatus) string {
	switch status {
	case models.MarketOpen:
		return "Market is open"
	case models.MarketPreOpen:
		return "Pre-open session in progress"
	}
	return "Market is closed"
}

// SessionDate returns the IST calendar day of t as YYYY-MM-DD.
func SessionDate(t time.Time) string {
	return t.In(IndiaLocation).Format("2006-01-02")
}
