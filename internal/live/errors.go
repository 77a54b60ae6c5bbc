package live

import "errors"

// Typed failures returned by placement and settlement. Handlers map these
// to HTTP statuses and wire error payloads; the engine's contract is a
// stable error kind plus a human-readable message.
var (
	// ErrMarketNotFound is returned when the market does not exist.
	ErrMarketNotFound = errors.New("live: market not found")

	// ErrMarketClosed is returned when a wager targets a market whose
	// status is no longer open.
	ErrMarketClosed = errors.New("live: market is closed for betting")

	// ErrInvalidOption is returned when the option key is not part of the
	// market's option set.
	ErrInvalidOption = errors.New("live: unknown market option")

	// ErrBetLimit is returned when the amount falls outside the
	// configured bet limits.
	ErrBetLimit = errors.New("live: amount outside bet limits")

	// ErrInsufficientBalance is returned when the user's ledger balance
	// cannot cover the stake.
	ErrInsufficientBalance = errors.New("live: insufficient balance")

	// ErrAlreadyClosed is returned on a settlement attempt against a
	// market that has already been settled or voided.
	ErrAlreadyClosed = errors.New("live: market already closed")
)
