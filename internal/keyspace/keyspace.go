// Package keyspace builds every Redis key used by the bot command store.
//
// All per-account keys live under the prefix "bot:{userId}:{accountNumber}:".
// Account numbers are restricted to a separator-free alphabet so that two
// different (user, account) pairs can never produce the same prefix.
package keyspace

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/vikasavnish/botbridge/internal/apperr"
)

const root = "bot"

// reserved account names that would collide with non-namespace keys
var reserved = map[string]bool{
	"master": true,
}

var accountPattern = regexp.MustCompile(`^[A-Za-z0-9_.\-]+$`)

// Namespace scopes all keys of one brokerage account of one user.
type Namespace struct {
	UserID  uint
	Account string
}

// New validates the account number and returns its namespace.
func New(userID uint, account string) (Namespace, error) {
	if err := ValidateAccount(account); err != nil {
		return Namespace{}, err
	}
	return Namespace{UserID: userID, Account: account}, nil
}

// ValidateAccount checks that an account number is safe to embed in a key.
func ValidateAccount(account string) error {
	if account == "" {
		return apperr.Validation("accountNumber required")
	}
	if !accountPattern.MatchString(account) {
		return apperr.Validation("accountNumber contains invalid characters")
	}
	if reserved[account] {
		return apperr.Validation("accountNumber %q is reserved", account)
	}
	return nil
}

func userPart(userID uint) string {
	return strconv.FormatUint(uint64(userID), 10)
}

// Prefix returns "bot:{userId}:{account}:".
func (n Namespace) Prefix() string {
	return root + ":" + userPart(n.UserID) + ":" + n.Account + ":"
}

// Key joins parts with ':' under the namespace prefix.
func (n Namespace) Key(parts ...string) string {
	return n.Prefix() + strings.Join(parts, ":")
}

func (n Namespace) String() string { return n.Prefix() }

func (n Namespace) Order(id string) string { return n.Key("order", id) }
func (n Namespace) OrderIDs() string { return n.Key("trading_orders_ids") }
func (n Namespace) RunningTrade(id string) string { return n.Key("running_trade", id) }
func (n Namespace) RunningTradeIDs() string { return n.Key("running_trades_ids") }
func (n Namespace) RemovedOrder(id string) string { return n.Key("removed_order", id) }
func (n Namespace) RemovedOrderIDs() string { return n.Key("removed_orders_ids") }
func (n Namespace) OrdersToDelete() string { return n.Key("orders_to_delete") }
func (n Namespace) SpotsToDelete() string { return n.Key("spots_to_delete") }
func (n Namespace) OrdersToDeleteAt() string { return n.Key("orders_to_delete_at") }
func (n Namespace) SpotsToDeleteAt() string { return n.Key("spots_to_delete_at") }
func (n Namespace) AvailableSymbols() string { return n.Key("available_symbols") }
func (n Namespace) SymbolMap() string { return n.Key("symbol_map") }
func (n Namespace) CommonAliases() string { return n.Key("common_aliases") }
func (n Namespace) AccountInfo() string { return n.Key("account_info") }
func (n Namespace) MasterMultipliers() string { return n.Key("master_multipliers") }
func (n Namespace) ExecutedOrders() string { return n.Key("executed_orders") }
func (n Namespace) Market(symbol string) string { return n.Key("market", symbol) }

// Sessions is the registry of live streaming sessions of the namespace.
func (n Namespace) Sessions() string { return n.Key("sessions") }

// Events is the pub/sub channel carrying change notifications for the
// namespace.
func (n Namespace) Events() string { return n.Key("events") }

// SpotTicket is the deletion ticket for the spot add at index of parentID.
func SpotTicket(parentID string, index int) string {
	return parentID + ":" + strconv.Itoa(index)
}

// SlavesKey is the set of slave accounts linked to master.
func SlavesKey(userID uint, master string) string {
	return root + ":" + userPart(userID) + ":master:" + master + ":slaves"
}

// PauseKey is the hash holding the pause flag of slave under master.
func PauseKey(userID uint, master, slave string) string {
	return root + ":" + userPart(userID) + ":master:" + master + ":slave:" + slave
}

// QueueRegistry is the set of enqueue-time hash keys of every namespace that
// ever queued a ticket. It is written together with the ticket.
const QueueRegistry = root + ":queue_stamps"

var stampSuffixes = map[string]bool{
	"orders_to_delete_at": true,
	"spots_to_delete_at":  true,
}

// IsStampKey reports whether key is exactly "bot:{userId}:{account}:" followed
// by an enqueue-time hash suffix.
func IsStampKey(key string) bool {
	parts := strings.Split(key, ":")
	if len(parts) != 4 || parts[0] != root || !stampSuffixes[parts[3]] {
		return false
	}
	if _, err := strconv.ParseUint(parts[1], 10, 64); err != nil {
		return false
	}
	return ValidateAccount(parts[2]) == nil
}

// QueueForStamp maps an enqueue-time hash key to the queue set it describes.
func QueueForStamp(stampKey string) string {
	return strings.TrimSuffix(stampKey, "_at")
}
