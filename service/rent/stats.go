package rent

import "fmt"

// Aggregate reduces accounts into RentStats. Closed accounts are excluded from
// every count and sum. The result does not depend on input order.
func Aggregate(accounts []SponsoredAccount) RentStats {
	var s RentStats
	for _, a := range accounts {
		if a.Status == StatusClosed {
			continue
		}
		s.TotalAccounts++
		s.TotalLocked += a.RentLamports

		if a.Status == StatusCloseable {
			s.CloseableAccounts++
			if a.Classification == Reclaimable {
				s.ReclaimableAccounts++
				s.Reclaimable += a.RentLamports
			}
		}
		if a.Classification == MonitorOnly {
			s.MonitorOnly += a.RentLamports
		}
	}
	return s
}

// ReclaimableAccounts returns the accounts the fee payer can close now.
func ReclaimableAccounts(accounts []SponsoredAccount) []SponsoredAccount {
	return filter(accounts, SponsoredAccount.Eligible)
}

// AlertableAccounts returns closeable empty accounts that only their owner can close.
// These are the accounts worth notifying the owner about.
func AlertableAccounts(accounts []SponsoredAccount) []SponsoredAccount {
	return filter(accounts, func(a SponsoredAccount) bool {
		return a.Classification == MonitorOnly && a.Status == StatusCloseable && a.TokenBalance == 0
	})
}

// Filter selects a subset of accounts for listing.
type Filter string

const (
	FilterAll         Filter = "all"
	FilterReclaimable Filter = "reclaimable"
	FilterCloseable   Filter = "closeable"
)

// ParseFilter validates a filter name; empty means FilterAll.
func ParseFilter(s string) (Filter, error) {
	switch Filter(s) {
	case "", FilterAll:
		return FilterAll, nil
	case FilterReclaimable, FilterCloseable:
		return Filter(s), nil
	default:
		return "", validationErrorf("invalid filter %q: must be all, reclaimable or closeable", s)
	}
}

// FilterAccounts applies f to accounts.
func FilterAccounts(accounts []SponsoredAccount, f Filter) []SponsoredAccount {
	switch f {
	case FilterReclaimable:
		return filter(accounts, func(a SponsoredAccount) bool { return a.Classification == Reclaimable })
	case FilterCloseable:
		return filter(accounts, func(a SponsoredAccount) bool { return a.Status == StatusCloseable })
	default:
		return accounts
	}
}

func filter(accounts []SponsoredAccount, keep func(SponsoredAccount) bool) []SponsoredAccount {
	out := make([]SponsoredAccount, 0, len(accounts))
	for _, a := range accounts {
		if keep(a) {
			out = append(out, a)
		}
	}
	return out
}

// String renders the stats as the multi-line report printed by the CLI.
func (s RentStats) String() string {
	return fmt.Sprintf(
		"Total Accounts:        %d\n"+
			"Total Rent Locked:     %s\n"+
			"Reclaimable Accounts:  %d\n"+
			"Reclaimable Rent:      %s\n"+
			"Monitor-Only Rent:     %s\n"+
			"Closeable (balance=0): %d\n",
		s.TotalAccounts,
		FormatSOL(s.TotalLocked),
		s.ReclaimableAccounts,
		FormatSOL(s.Reclaimable),
		FormatSOL(s.MonitorOnly),
		s.CloseableAccounts,
	)
}
